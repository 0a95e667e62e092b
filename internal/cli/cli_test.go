package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr, func(string) string { return "" })
	return code, stdout.String(), stderr.String()
}

func tasksPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tasks.json")
}

func TestReorderFlags(t *testing.T) {
	got := reorderFlags([]string{"Buy", "milk", "--desc", "2 litres", "now"}, map[string]bool{"--desc": true})
	want := []string{"--desc", "2 litres", "--", "Buy", "milk", "now"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reorderFlags() = %q, want %q", got, want)
	}
	got = reorderFlags([]string{"a", "--", "--desc"}, map[string]bool{"--desc": true})
	want = []string{"--", "a", "--desc"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reorderFlags() = %q, want %q", got, want)
	}
	got = reorderFlags([]string{"a", "--desc"}, map[string]bool{"--desc": true})
	want = []string{"--desc"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reorderFlags() with a trailing value flag = %q, want %q", got, want)
	}
}

func TestExtractGlobalFlags(t *testing.T) {
	gf, rest, err := extractGlobalFlags([]string{"list", "--file", "x.json", "--all", "--ascii"})
	if err != nil {
		t.Fatalf("extractGlobalFlags() err = %v", err)
	}
	if gf.File != "x.json" || !gf.ASCII {
		t.Fatalf("unexpected flags %#v", gf)
	}
	if !reflect.DeepEqual(rest, []string{"list", "--all"}) {
		t.Fatalf("rest = %q", rest)
	}
	gf, rest, err = extractGlobalFlags([]string{"--file=a.json", "list", "--config=c.yaml"})
	if err != nil {
		t.Fatalf("extractGlobalFlags() err = %v", err)
	}
	if gf.File != "a.json" || gf.Config != "c.yaml" || !reflect.DeepEqual(rest, []string{"list"}) {
		t.Fatalf("unexpected flags %#v rest %q", gf, rest)
	}
	if _, _, err := extractGlobalFlags([]string{"list", "--file"}); err == nil {
		t.Fatal("expected error for --file without a value")
	}
	if _, _, err := extractGlobalFlags([]string{"list", "--json", "--plain"}); err == nil {
		t.Fatal("expected error for --json with --plain")
	}
}

func TestAdd(t *testing.T) {
	path := tasksPath(t)
	code, out, errOut := runCLI(t, "--file", path, "add", "Buy", "groceries", "--desc", "Milk, eggs, bread")
	if code != ExitOK {
		t.Fatalf("add exit = %d, stderr = %s", code, errOut)
	}
	if out != "✓ Task added: Buy groceries\n" {
		t.Fatalf("add stdout = %q", out)
	}
	code, out, _ = runCLI(t, "--file", path, "--json", "list")
	if code != ExitOK {
		t.Fatalf("list exit = %d", code)
	}
	var payload struct {
		Tasks []struct {
			ID          int    `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Completed   bool   `json:"completed"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("list --json output invalid: %v\n%s", err, out)
	}
	if len(payload.Tasks) != 1 || payload.Tasks[0].ID != 1 || payload.Tasks[0].Description != "Milk, eggs, bread" {
		t.Fatalf("unexpected tasks %#v", payload.Tasks)
	}
}

func TestAddDescWithoutValue(t *testing.T) {
	path := tasksPath(t)
	for _, flagName := range []string{"--desc", "--description"} {
		code, out, errOut := runCLI(t, "--file", path, "add", "Buy milk", flagName)
		if code != ExitUsage {
			t.Fatalf("add %s without value exit = %d, want %d", flagName, code, ExitUsage)
		}
		if out != "" || !strings.Contains(errOut, "flag needs an argument") {
			t.Fatalf("add %s stdout = %q stderr = %q", flagName, out, errOut)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no task file, stat err = %v", err)
	}
}

func TestFileFlagWithEquals(t *testing.T) {
	path := tasksPath(t)
	if code, _, errOut := runCLI(t, "--file="+path, "add", "Buy milk"); code != ExitOK {
		t.Fatalf("add exit = %d stderr = %s", code, errOut)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected task file at %s: %v", path, err)
	}
}

func TestAddRequiresTitle(t *testing.T) {
	path := tasksPath(t)
	if code, _, _ := runCLI(t, "--file", path, "add"); code != ExitUsage {
		t.Fatalf("add without title exit = %d, want %d", code, ExitUsage)
	}
	if code, _, errOut := runCLI(t, "--file", path, "add", "  "); code != ExitUsage || !strings.Contains(errOut, "title is required") {
		t.Fatalf("add blank title exit = %d stderr = %q", code, errOut)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no task file, stat err = %v", err)
	}
}

func TestListEmptyStore(t *testing.T) {
	code, out, _ := runCLI(t, "--file", tasksPath(t), "list")
	if code != ExitOK || out != "No tasks found.\n" {
		t.Fatalf("list exit = %d stdout = %q", code, out)
	}
}

func TestListRendering(t *testing.T) {
	path := tasksPath(t)
	content := `[
  {"id": 1, "title": "Buy milk", "description": "2 litres", "completed": false, "created_at": "2024-03-01T09:30:12.048113"},
  {"id": 2, "title": "Walk dog", "description": "", "completed": true, "created_at": "2024-03-01T10:00:00"}
]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	rule := strings.Repeat("=", 60)
	title := strings.Repeat(" ", 25) + "TO-DO LIST" + strings.Repeat(" ", 25)

	code, out, _ := runCLI(t, "--file", path, "list", "--all")
	if code != ExitOK {
		t.Fatalf("list exit = %d", code)
	}
	want := "\n" + rule + "\n" + title + "\n" + rule + "\n" +
		"\n[1] ○ Buy milk\n    2 litres\n    Created: 2024-03-01T09:30:12.048113\n" +
		"\n[2] ✓ Walk dog\n    Created: 2024-03-01T10:00:00\n" +
		"\n" + rule + "\n"
	if out != want {
		t.Fatalf("list --all =\n%s\nwant\n%s", out, want)
	}

	_, out, _ = runCLI(t, "--file", path, "list")
	if strings.Contains(out, "Walk dog") || !strings.Contains(out, "[1] ○ Buy milk") {
		t.Fatalf("list without --all =\n%s", out)
	}

	_, out, _ = runCLI(t, "--file", path, "--ascii", "list", "--all")
	if !strings.Contains(out, "[2] [x] Walk dog") || !strings.Contains(out, "[1] [ ] Buy milk") {
		t.Fatalf("list --ascii =\n%s", out)
	}

	_, out, _ = runCLI(t, "--file", path, "--plain", "list", "--all")
	wantPlain := "ID\tDONE\tCREATED\tTITLE\tDESCRIPTION\n" +
		"1\tfalse\t2024-03-01T09:30:12.048113\tBuy milk\t2 litres\n" +
		"2\ttrue\t2024-03-01T10:00:00\tWalk dog\t\n"
	if out != wantPlain {
		t.Fatalf("list --plain = %q, want %q", out, wantPlain)
	}
}

func TestScenario(t *testing.T) {
	path := tasksPath(t)
	steps := []struct {
		args []string
		out  string
	}{
		{[]string{"add", "Buy milk"}, "✓ Task added: Buy milk\n"},
		{[]string{"add", "Walk dog"}, "✓ Task added: Walk dog\n"},
		{[]string{"delete", "1"}, "✓ Task 1 deleted.\n"},
		{[]string{"complete", "2"}, "✓ Task 2 marked as completed: Walk dog\n"},
	}
	for _, step := range steps {
		code, out, errOut := runCLI(t, append([]string{"--file", path}, step.args...)...)
		if code != ExitOK {
			t.Fatalf("%v exit = %d stderr = %s", step.args, code, errOut)
		}
		if out != step.out {
			t.Fatalf("%v stdout = %q, want %q", step.args, out, step.out)
		}
	}

	_, out, _ := runCLI(t, "--file", path, "list")
	if strings.Contains(out, "Walk dog") || !strings.Contains(out, "No open tasks") {
		t.Fatalf("list after completing everything =\n%s", out)
	}
	_, out, _ = runCLI(t, "--file", path, "list", "--all")
	if !strings.Contains(out, "[2] ✓ Walk dog") {
		t.Fatalf("list --all =\n%s", out)
	}
}

func TestCompleteAndDeleteNotFound(t *testing.T) {
	path := tasksPath(t)
	for _, cmd := range []string{"complete", "delete"} {
		code, out, errOut := runCLI(t, "--file", path, cmd, "9")
		if code != ExitOK {
			t.Fatalf("%s exit = %d, want %d", cmd, code, ExitOK)
		}
		if out != "✗ Task 9 not found.\n" || errOut != "" {
			t.Fatalf("%s stdout = %q stderr = %q", cmd, out, errOut)
		}

		code, out, _ = runCLI(t, "--file", path, "--json", cmd, "9")
		var payload struct {
			Found bool `json:"found"`
			ID    int  `json:"id"`
		}
		if err := json.Unmarshal([]byte(out), &payload); err != nil {
			t.Fatalf("%s --json output invalid: %v\n%s", cmd, err, out)
		}
		if code != ExitOK || payload.Found || payload.ID != 9 {
			t.Fatalf("%s --json exit = %d payload = %#v", cmd, code, payload)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("not-found commands wrote the task file, stat err = %v", err)
	}
}

func TestInvalidTaskID(t *testing.T) {
	path := tasksPath(t)
	for _, args := range [][]string{{"complete", "one"}, {"delete"}, {"complete", "1", "2"}} {
		code, _, _ := runCLI(t, append([]string{"--file", path}, args...)...)
		if code != ExitUsage {
			t.Fatalf("%v exit = %d, want %d", args, code, ExitUsage)
		}
	}
}

func TestCorruptFileWarns(t *testing.T) {
	path := tasksPath(t)
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCLI(t, "--file", path, "list")
	if code != ExitOK || out != "No tasks found.\n" {
		t.Fatalf("list exit = %d stdout = %q", code, out)
	}
	if !strings.Contains(errOut, "level=warning") || !strings.Contains(errOut, "task file unreadable") {
		t.Fatalf("expected a recovery warning, stderr = %q", errOut)
	}

	_, _, errOut = runCLI(t, "--file", path, "--quiet", "list")
	if errOut != "" {
		t.Fatalf("--quiet should hide the warning, stderr = %q", errOut)
	}
}

func TestWriteFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCLI(t, "--file", filepath.Join(blocker, "tasks.json"), "--quiet", "add", "x")
	if code != ExitInternal {
		t.Fatalf("add exit = %d, want %d", code, ExitInternal)
	}
	if out != "" || !strings.HasPrefix(errOut, "add: save ") {
		t.Fatalf("stdout = %q stderr = %q", out, errOut)
	}
}

func TestExport(t *testing.T) {
	path := tasksPath(t)
	runCLI(t, "--file", path, "add", "Buy milk")
	runCLI(t, "--file", path, "add", "Walk dog")
	runCLI(t, "--file", path, "complete", "2")

	csvPath := filepath.Join(t.TempDir(), "out.csv")
	code, out, errOut := runCLI(t, "--file", path, "export", "--format", "csv", "--open", "--out", csvPath)
	if code != ExitOK {
		t.Fatalf("export exit = %d stderr = %s", code, errOut)
	}
	if out != "Wrote CSV to: "+csvPath+"\n" {
		t.Fatalf("export stdout = %q", out)
	}
	b, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(string(b)), "\n"); len(lines) != 2 || !strings.HasPrefix(lines[1], "1,Buy milk,") {
		t.Fatalf("csv export = %q", b)
	}

	code, _, errOut = runCLI(t, "--file", path, "export", "--format", "pdf")
	if code != ExitOK {
		t.Fatalf("export pdf exit = %d stderr = %s", code, errOut)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "exports", "tasks-*.pdf"))
	if len(matches) != 1 {
		t.Fatalf("expected one pdf in the export dir, got %v", matches)
	}

	if code, _, _ := runCLI(t, "--file", path, "export", "--format", "xml"); code != ExitUsage {
		t.Fatalf("export xml exit = %d, want %d", code, ExitUsage)
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "frobnicate")
	if code != ExitUsage || !strings.Contains(errOut, "Unknown command: frobnicate") {
		t.Fatalf("exit = %d stderr = %q", code, errOut)
	}
	if code, out, _ := runCLI(t, "help"); code != ExitOK || !strings.Contains(out, "Usage:") {
		t.Fatalf("help exit = %d", code)
	}
	if code, out, _ := runCLI(t); code != ExitOK || !strings.Contains(out, "Usage:") {
		t.Fatalf("no-argument exit = %d stdout = %q", code, out)
	}
}
