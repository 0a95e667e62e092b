package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/amirbrooks/todo/internal/export"
	"github.com/amirbrooks/todo/internal/store"
)

func cmdExport(e *env, args []string) int {
	args = reorderFlags(args, map[string]bool{
		"--format": true,
		"-format":  true,
		"--out":    true,
		"-out":     true,
	})
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	format := fs.String("format", "json", "Export format ("+strings.Join(export.Formats, "|")+")")
	out := fs.String("out", "", "Output file (default: <export dir>/tasks-<timestamp>.<ext>)")
	openOnly := fs.Bool("open", false, "Only export tasks that are not completed")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(e.stderr, "Usage: todo export [--format json|ndjson|csv|pdf] [--out <path>] [--open]")
		return ExitUsage
	}
	ext := export.Ext(*format)
	if ext == "" {
		fmt.Fprintf(e.stderr, "export: unknown format %q\n", *format)
		return ExitUsage
	}

	tasks := e.st.List(!*openOnly)
	data, err := export.Render(tasks, ext)
	if err != nil {
		fmt.Fprintln(e.stderr, "export:", err)
		return ExitInternal
	}

	var path string
	if strings.TrimSpace(*out) != "" {
		path = strings.TrimSpace(*out)
		err = store.WriteFileAtomic(path, data, 0o644)
	} else {
		path, err = writeExportFile(e.cfg.ExportDir, "tasks", ext, data)
	}
	if err != nil {
		fmt.Fprintln(e.stderr, "export:", err)
		return ExitInternal
	}
	e.log.WithFields(log.Fields{"path": path, "format": ext, "tasks": len(tasks), "source": e.st.Path()}).Debug("exported tasks")

	if e.gf.JSON {
		return e.writeJSON(map[string]any{"path": path, "format": ext, "count": len(tasks)})
	}
	if !e.gf.Quiet {
		fmt.Fprintf(e.stdout, "Wrote %s to: %s\n", strings.ToUpper(ext), path)
	}
	return ExitOK
}

func writeExportFile(dir, base, ext string, data []byte) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("export directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	t := time.Now().UTC()
	ts := t.Format("20060102-150405")
	name := fmt.Sprintf("%s-%s.%s", base, ts, ext)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		name = fmt.Sprintf("%s-%s-%d.%s", base, ts, i, ext)
		path = filepath.Join(dir, name)
	}
	return path, store.WriteFileAtomic(path, data, 0o644)
}
