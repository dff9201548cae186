package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tessellate-ai/helmsman/agent"
)

func setup(t *testing.T) (*agent.ToolRegistry, *Workspace) {
	t.Helper()
	ws := NewWorkspace(t.TempDir())
	reg := agent.NewToolRegistry()
	Register(reg, ws, DefaultOptions())
	return reg, ws
}

func run(t *testing.T, reg *agent.ToolRegistry, name, args string) agent.ExecOutcome {
	t.Helper()
	return reg.Execute(context.Background(), name, json.RawMessage(args), agent.ExecContext{})
}

func TestWriteThenReadFile(t *testing.T) {
	reg, _ := setup(t)

	out := run(t, reg, "write_file", `{"file_path":"pkg/a.txt","content":"alpha\nbeta\n"}`)
	if !out.Success {
		t.Fatalf("write failed: %s", out.Error)
	}

	out = run(t, reg, "read_file", `{"file_path":"pkg/a.txt"}`)
	if !out.Success {
		t.Fatalf("read failed: %s", out.Error)
	}
	if !strings.Contains(out.Output, "1 | alpha") || !strings.Contains(out.Output, "2 | beta") {
		t.Errorf("numbered output = %q", out.Output)
	}
}

func TestReadFileOffsetAndLimit(t *testing.T) {
	reg, ws := setup(t)
	if err := ws.WriteFile("big.txt", "one\ntwo\nthree\nfour\n"); err != nil {
		t.Fatal(err)
	}

	out := run(t, reg, "read_file", `{"file_path":"big.txt","offset":2,"limit":2}`)
	if !out.Success {
		t.Fatalf("read failed: %s", out.Error)
	}
	if strings.Contains(out.Output, "one") || strings.Contains(out.Output, "four") {
		t.Errorf("slice leaked outside offset/limit: %q", out.Output)
	}
	if !strings.Contains(out.Output, "2 | two") || !strings.Contains(out.Output, "3 | three") {
		t.Errorf("slice missing requested lines: %q", out.Output)
	}
}

func TestEditFileRequiresUniqueMatch(t *testing.T) {
	reg, ws := setup(t)
	if err := ws.WriteFile("dup.txt", "x = 1\nx = 1\n"); err != nil {
		t.Fatal(err)
	}

	out := run(t, reg, "edit_file", `{"file_path":"dup.txt","old_string":"x = 1","new_string":"x = 2"}`)
	if out.Success {
		t.Fatal("edit succeeded despite ambiguous old_string")
	}
	if !strings.Contains(out.Error, "2 times") {
		t.Errorf("error = %q, want occurrence count", out.Error)
	}

	out = run(t, reg, "edit_file", `{"file_path":"dup.txt","old_string":"x = 1","new_string":"x = 2","replace_all":true}`)
	if !out.Success {
		t.Fatalf("replace_all edit failed: %s", out.Error)
	}
	content, err := ws.ReadRaw("dup.txt")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(content, "x = 1") {
		t.Errorf("old string still present after replace_all: %q", content)
	}
}

func TestEditFileMissingString(t *testing.T) {
	reg, ws := setup(t)
	if err := ws.WriteFile("m.txt", "hello\n"); err != nil {
		t.Fatal(err)
	}
	out := run(t, reg, "edit_file", `{"file_path":"m.txt","old_string":"absent","new_string":"x"}`)
	if out.Success || !strings.Contains(out.Error, "not found") {
		t.Errorf("outcome = %+v, want not-found failure", out)
	}
}

func TestListDir(t *testing.T) {
	reg, ws := setup(t)
	if err := ws.WriteFile("sub/file.go", "package sub\n"); err != nil {
		t.Fatal(err)
	}

	out := run(t, reg, "list_dir", `{"path":"."}`)
	if !out.Success {
		t.Fatalf("list failed: %s", out.Error)
	}
	if !strings.Contains(out.Output, "sub/") {
		t.Errorf("listing = %q, want sub/", out.Output)
	}
}

func TestGlobFindsFiles(t *testing.T) {
	reg, ws := setup(t)
	for _, f := range []string{"a.go", "b.go", "c.txt"} {
		if err := ws.WriteFile(f, "content"); err != nil {
			t.Fatal(err)
		}
	}

	out := run(t, reg, "glob", `{"pattern":"*.go"}`)
	if !out.Success {
		t.Fatalf("glob failed: %s", out.Error)
	}
	if !strings.Contains(out.Output, "a.go") || !strings.Contains(out.Output, "b.go") {
		t.Errorf("glob output = %q", out.Output)
	}
	if strings.Contains(out.Output, "c.txt") {
		t.Errorf("glob matched non-go file: %q", out.Output)
	}
}

func TestToolCategoriesAndParallelSafety(t *testing.T) {
	reg, _ := setup(t)

	cases := []struct {
		name         string
		category     agent.ToolCategory
		parallelSafe bool
	}{
		{"read_file", agent.CategoryReadOnly, true},
		{"grep", agent.CategoryReadOnly, true},
		{"glob", agent.CategoryReadOnly, true},
		{"list_dir", agent.CategoryReadOnly, true},
		{"write_file", agent.CategoryWrite, false},
		{"edit_file", agent.CategoryWrite, false},
		{"shell", agent.CategoryVerify, false},
	}
	for _, tc := range cases {
		def, ok := reg.Lookup(tc.name)
		if !ok {
			t.Errorf("%s not registered", tc.name)
			continue
		}
		if def.Category != tc.category {
			t.Errorf("%s category = %s, want %s", tc.name, def.Category, tc.category)
		}
		if def.ParallelSafe != tc.parallelSafe {
			t.Errorf("%s parallel-safe = %v, want %v", tc.name, def.ParallelSafe, tc.parallelSafe)
		}
	}
}

func TestShellReportsExitCode(t *testing.T) {
	reg, _ := setup(t)

	out := run(t, reg, "shell", `{"command":"echo hi"}`)
	if !out.Success {
		t.Fatalf("shell failed: %s", out.Error)
	}
	if !strings.Contains(out.Output, "hi") {
		t.Errorf("output = %q", out.Output)
	}

	out = run(t, reg, "shell", `{"command":"exit 3"}`)
	if out.Success {
		t.Fatal("non-zero exit reported success")
	}
	if !strings.Contains(out.Error, "Exit code: 3") {
		t.Errorf("error = %q, want exit code note", out.Error)
	}
}
