package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/amirbrooks/todo/internal/config"
	"github.com/amirbrooks/todo/internal/store"
)

// Exit codes
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitInternal = 10
)

const bannerWidth = 60

type GlobalFlags struct {
	File    string
	Config  string
	JSON    bool
	Plain   bool
	ASCII   bool
	Quiet   bool
	Verbose bool
}

// env carries everything a command needs for one invocation.
type env struct {
	gf     GlobalFlags
	cfg    config.Config
	st     *store.Store
	log    *log.Logger
	stdout io.Writer
	stderr io.Writer
}

func reorderFlags(args []string, takesValue map[string]bool) []string {
	if len(args) == 0 {
		return args
	}
	var flags []string
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			if i+1 < len(args) {
				rest = append(rest, args[i+1:]...)
			}
			break
		}
		if strings.HasPrefix(a, "-") && a != "-" {
			flags = append(flags, a)
			if takesValue[a] && !strings.Contains(a, "=") {
				if i+1 == len(args) {
					// Leave the flag last so flag.Parse reports the missing value.
					return flags
				}
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		rest = append(rest, a)
	}
	out := append(flags, "--")
	return append(out, rest...)
}

func Run(args []string) int {
	return run(args, os.Stdout, os.Stderr, os.Getenv)
}

func run(args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	gf, rest, err := extractGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return ExitUsage
	}

	if len(rest) == 0 {
		printHelp(stdout)
		return ExitOK
	}

	cmd := rest[0]
	cmdArgs := rest[1:]

	var handler func(*env, []string) int
	switch cmd {
	case "help", "--help", "-h":
		printHelp(stdout)
		return ExitOK
	case "add":
		handler = cmdAdd
	case "ls", "list":
		handler = cmdList
	case "done", "complete":
		handler = cmdComplete
	case "rm", "delete":
		handler = cmdDelete
	case "export":
		handler = cmdExport
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		printHelp(stderr)
		return ExitUsage
	}

	cfg, err := config.Resolve(config.Overrides{TasksFile: gf.File, ConfigPath: gf.Config}, getenv)
	if err != nil {
		fmt.Fprintln(stderr, "todo:", err)
		return ExitUsage
	}
	logger, err := newLogger(cfg, gf, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "todo:", err)
		return ExitUsage
	}
	st, _ := store.Open(cfg.TasksFile, store.WithLogger(logger))

	e := &env{gf: gf, cfg: cfg, st: st, log: logger, stdout: stdout, stderr: stderr}
	return handler(e, cmdArgs)
}

func newLogger(cfg config.Config, gf GlobalFlags, out io.Writer) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(out)
	logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	switch {
	case gf.Verbose:
		lvl = log.DebugLevel
	case gf.Quiet:
		lvl = log.ErrorLevel
	}
	logger.SetLevel(lvl)
	return logger, nil
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `todo — a simple command-line to-do list

Usage:
  todo [global flags] <command> [args]

Global flags:
  --file <path>    Task file (default: tasks.json or TODO_FILE)
  --config <path>  YAML config file (default: .todo.yaml or TODO_CONFIG)
  --json           JSON output to stdout
  --plain          TSV output
  --ascii          ASCII status glyphs
  --quiet
  --verbose

Commands:
  add "<title>" [--desc <text>]
  list [--all]
  complete <id>
  delete <id>
  export [--format json|ndjson|csv|pdf] [--out <path>] [--open]

Examples:
  todo add "Buy groceries" --desc "Milk, eggs, bread"
  todo list
  todo complete 1
  todo delete 1
`)
}

func extractGlobalFlags(args []string) (GlobalFlags, []string, error) {
	// Allow flags anywhere by scanning and stripping known globals.
	gf := GlobalFlags{}

	out := make([]string, 0, len(args))
	skip := 0

	for i := 0; i < len(args); i++ {
		if skip > 0 {
			skip--
			continue
		}
		a := args[i]
		switch a {
		case "--":
			out = append(out, args[i:]...)
			return gf, out, nil
		case "--file":
			if i+1 >= len(args) {
				return gf, nil, errors.New("--file requires a value")
			}
			gf.File = args[i+1]
			skip = 1
		case "--config":
			if i+1 >= len(args) {
				return gf, nil, errors.New("--config requires a value")
			}
			gf.Config = args[i+1]
			skip = 1
		case "--json":
			gf.JSON = true
		case "--plain":
			gf.Plain = true
		case "--ascii":
			gf.ASCII = true
		case "--quiet":
			gf.Quiet = true
		case "--verbose":
			gf.Verbose = true
		default:
			switch {
			case strings.HasPrefix(a, "--file="):
				gf.File = strings.TrimPrefix(a, "--file=")
			case strings.HasPrefix(a, "--config="):
				gf.Config = strings.TrimPrefix(a, "--config=")
			default:
				out = append(out, a)
			}
		}
	}

	if gf.JSON && gf.Plain {
		return gf, nil, errors.New("--json and --plain are mutually exclusive")
	}
	if gf.Quiet && gf.Verbose {
		return gf, nil, errors.New("--quiet and --verbose are mutually exclusive")
	}
	return gf, out, nil
}

func (e *env) okGlyph() string {
	if e.gf.ASCII {
		return "OK"
	}
	return "✓"
}

func (e *env) failGlyph() string {
	if e.gf.ASCII {
		return "!!"
	}
	return "✗"
}

func (e *env) statusGlyph(t store.Task) string {
	switch {
	case e.gf.ASCII && t.Completed:
		return "[x]"
	case e.gf.ASCII:
		return "[ ]"
	case t.Completed:
		return "✓"
	default:
		return "○"
	}
}

func (e *env) writeJSON(payload any) int {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintln(e.stderr, "todo:", err)
		return ExitInternal
	}
	return ExitOK
}

// notFound reports an unknown id. It is an ordinary outcome, not a failure.
func (e *env) notFound(id int) int {
	if e.gf.JSON {
		return e.writeJSON(map[string]any{"found": false, "id": id})
	}
	fmt.Fprintf(e.stdout, "%s Task %d not found.\n", e.failGlyph(), id)
	return ExitOK
}

// storeFailure maps a store error to the user-facing exit code.
func (e *env) storeFailure(cmd string, err error) int {
	fmt.Fprintf(e.stderr, "%s: %v\n", cmd, err)
	if errors.Is(err, store.ErrInvalid) {
		return ExitUsage
	}
	return ExitInternal
}

func cmdAdd(e *env, args []string) int {
	args = reorderFlags(args, map[string]bool{
		"--desc":        true,
		"-desc":         true,
		"--description": true,
		"-description":  true,
	})
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	desc := fs.String("desc", "", "Task description")
	fs.StringVar(desc, "description", "", "Task description")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(e.stderr, "Usage: todo add \"<title>\" [--desc <text>]")
		return ExitUsage
	}
	title := strings.Join(rest, " ")
	task, err := e.st.Add(title, strings.TrimSpace(*desc))
	if err != nil {
		return e.storeFailure("add", err)
	}
	if e.gf.JSON {
		return e.writeJSON(map[string]any{"task": task})
	}
	if !e.gf.Quiet {
		fmt.Fprintf(e.stdout, "%s Task added: %s\n", e.okGlyph(), task.Title)
	}
	return ExitOK
}

func cmdList(e *env, args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	all := fs.Bool("all", e.cfg.ShowCompleted, "Show completed tasks (default: show only active tasks)")
	if err := fs.Parse(reorderFlags(args, nil)); err != nil {
		return ExitUsage
	}

	tasks := e.st.List(*all)

	if e.gf.JSON {
		return e.writeJSON(map[string]any{"tasks": tasks})
	}

	if e.gf.Plain {
		fmt.Fprintln(e.stdout, "ID\tDONE\tCREATED\tTITLE\tDESCRIPTION")
		for _, t := range tasks {
			fmt.Fprintf(e.stdout, "%d\t%t\t%s\t%s\t%s\n",
				t.ID, t.Completed, t.CreatedAt, t.Title, strings.ReplaceAll(t.Description, "\n", " "))
		}
		return ExitOK
	}

	if len(e.st.List(true)) == 0 {
		fmt.Fprintln(e.stdout, "No tasks found.")
		return ExitOK
	}

	rule := strings.Repeat("=", bannerWidth)
	fmt.Fprintln(e.stdout)
	fmt.Fprintln(e.stdout, rule)
	fmt.Fprintln(e.stdout, center("TO-DO LIST", bannerWidth))
	fmt.Fprintln(e.stdout, rule)
	if len(tasks) == 0 {
		fmt.Fprintln(e.stdout)
		fmt.Fprintln(e.stdout, "No open tasks. Use --all to show completed ones.")
	}
	for _, t := range tasks {
		fmt.Fprintf(e.stdout, "\n[%d] %s %s\n", t.ID, e.statusGlyph(t), t.Title)
		if t.Description != "" {
			fmt.Fprintf(e.stdout, "    %s\n", t.Description)
		}
		fmt.Fprintf(e.stdout, "    Created: %s\n", t.CreatedAt)
	}
	fmt.Fprintln(e.stdout)
	fmt.Fprintln(e.stdout, rule)
	return ExitOK
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}

func parseTaskID(e *env, cmd string, args []string) (int, bool) {
	if len(args) != 1 {
		fmt.Fprintf(e.stderr, "Usage: todo %s <id>\n", cmd)
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		fmt.Fprintf(e.stderr, "%s: invalid task id %q\n", cmd, args[0])
		return 0, false
	}
	return id, true
}

func cmdComplete(e *env, args []string) int {
	id, ok := parseTaskID(e, "complete", args)
	if !ok {
		return ExitUsage
	}
	task, err := e.st.Complete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return e.notFound(id)
		}
		return e.storeFailure("complete", err)
	}
	if e.gf.JSON {
		return e.writeJSON(map[string]any{"found": true, "task": task})
	}
	if !e.gf.Quiet {
		fmt.Fprintf(e.stdout, "%s Task %d marked as completed: %s\n", e.okGlyph(), id, task.Title)
	}
	return ExitOK
}

func cmdDelete(e *env, args []string) int {
	id, ok := parseTaskID(e, "delete", args)
	if !ok {
		return ExitUsage
	}
	task, err := e.st.Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return e.notFound(id)
		}
		return e.storeFailure("delete", err)
	}
	if e.gf.JSON {
		return e.writeJSON(map[string]any{"found": true, "deleted": task})
	}
	if !e.gf.Quiet {
		fmt.Fprintf(e.stdout, "%s Task %d deleted.\n", e.okGlyph(), id)
	}
	return ExitOK
}
