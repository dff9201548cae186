// Package tools provides the built-in tool set and the local workspace the
// tools operate on. Hosts register these on an agent.ToolRegistry, or skip
// them entirely and bring their own Runner.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"
)

// Workspace runs tool operations against a local directory tree. Relative
// paths resolve against the root.
type Workspace struct {
	root string
}

// NewWorkspace creates a workspace rooted at dir, defaulting to the current
// directory.
func NewWorkspace(dir string) *Workspace {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return &Workspace{root: dir}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.root, path)
}

// ReadNumbered reads a file slice as line-numbered text. offset is 1-based;
// limit 0 means the whole file.
func (w *Workspace) ReadNumbered(path string, offset, limit int) (string, error) {
	raw, err := w.ReadRaw(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(raw, "\n")

	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

// ReadRaw reads a file's exact content.
func (w *Workspace) ReadRaw(path string) (string, error) {
	data, err := os.ReadFile(w.resolve(path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile writes content, creating parent directories as needed.
func (w *Workspace) WriteFile(path, content string) error {
	resolved := w.resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.WriteFile(resolved, []byte(content), 0o644)
}

// Exists reports whether a path exists.
func (w *Workspace) Exists(path string) bool {
	_, err := os.Stat(w.resolve(path))
	return err == nil
}

// DirEntry is one entry from List.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// List returns the entries of a directory.
func (w *Workspace) List(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(w.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		de := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil {
			de.Size = info.Size()
		}
		out = append(out, de)
	}
	return out, nil
}

// CommandResult is the outcome of one shell command.
type CommandResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Combined merges stdout and stderr for the transcript.
func (r CommandResult) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// Run executes a shell command under the workspace root with a filtered
// environment. A zero timeout inherits the context's deadline.
func (w *Workspace) Run(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = w.root
	// Own process group so a timeout can kill the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = filteredEnvironment()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			res.TimedOut = true
			res.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run command: %w", err)
		}
	}
	return res, nil
}

// SearchOptions configures Search.
type SearchOptions struct {
	Glob            string
	CaseInsensitive bool
	MaxResults      int
}

// Search greps file contents, preferring ripgrep when installed.
func (w *Workspace) Search(ctx context.Context, pattern, path string, opts SearchOptions) (string, error) {
	if path == "" {
		path = w.root
	} else {
		path = w.resolve(path)
	}

	rg, err := exec.LookPath("rg")
	if err != nil {
		return w.searchWithGrep(ctx, pattern, path, opts)
	}

	args := []string{pattern, path, "--line-number", "--no-heading"}
	if opts.CaseInsensitive {
		args = append(args, "-i")
	}
	if opts.Glob != "" {
		args = append(args, "--glob", opts.Glob)
	}
	if opts.MaxResults > 0 {
		args = append(args, "--max-count", fmt.Sprintf("%d", opts.MaxResults))
	}

	cmd := exec.CommandContext(ctx, rg, args...)
	cmd.Dir = w.root
	var out bytes.Buffer
	cmd.Stdout = &out
	// rg exits 1 on no matches.
	_ = cmd.Run()
	return out.String(), nil
}

func (w *Workspace) searchWithGrep(ctx context.Context, pattern, path string, opts SearchOptions) (string, error) {
	args := []string{"-rn", pattern, path}
	if opts.CaseInsensitive {
		args = append([]string{"-i"}, args...)
	}
	cmd := exec.CommandContext(ctx, "grep", args...)
	cmd.Dir = w.root
	var out bytes.Buffer
	cmd.Stdout = &out
	_ = cmd.Run()
	return out.String(), nil
}

// Glob returns paths matching a pattern, newest first, relative to the root
// where possible.
func (w *Workspace) Glob(pattern, path string) ([]string, error) {
	if path == "" {
		path = w.root
	} else {
		path = w.resolve(path)
	}

	matches, err := filepath.Glob(filepath.Join(path, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, erri := os.Stat(matches[i])
		fj, errj := os.Stat(matches[j])
		if erri != nil || errj != nil {
			return matches[i] < matches[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		if rel, err := filepath.Rel(w.root, m); err == nil {
			out[i] = rel
		} else {
			out[i] = m
		}
	}
	return out, nil
}

// Environment variables with these suffixes are withheld from shell commands.
var sensitiveEnvSuffixes = []string{
	"_API_KEY", "_SECRET", "_TOKEN", "_PASSWORD", "_CREDENTIAL",
}

var alwaysAllowedEnv = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnv(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filteredEnvironment() []string {
	var out []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if alwaysAllowedEnv[name] || !isSensitiveEnv(name) {
			out = append(out, kv)
		}
	}
	return out
}
