package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tessellate-ai/helmsman/agent"
)

// Options tunes the built-in tool set.
type Options struct {
	// DefaultShellTimeout applies when a shell call does not ask for one.
	DefaultShellTimeout time.Duration
	// MaxShellTimeout caps what a shell call may ask for.
	MaxShellTimeout time.Duration
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		DefaultShellTimeout: 2 * time.Minute,
		MaxShellTimeout:     10 * time.Minute,
	}
}

// Register adds the built-in tools to the registry, backed by the given
// workspace. Read-only tools are parallel-safe; mutating tools and shell
// are sequential.
func Register(reg *agent.ToolRegistry, ws *Workspace, opts Options) {
	if opts.DefaultShellTimeout <= 0 {
		opts.DefaultShellTimeout = DefaultOptions().DefaultShellTimeout
	}
	if opts.MaxShellTimeout <= 0 {
		opts.MaxShellTimeout = DefaultOptions().MaxShellTimeout
	}

	registerReadFile(reg, ws)
	registerWriteFile(reg, ws)
	registerEditFile(reg, ws)
	registerShell(reg, ws, opts)
	registerGrep(reg, ws)
	registerGlob(reg, ws)
	registerListDir(reg, ws)
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func prop(typ, desc string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": desc}
}

func fail(format string, a ...interface{}) agent.ExecOutcome {
	return agent.ExecOutcome{Error: fmt.Sprintf(format, a...)}
}

func ok(output string) agent.ExecOutcome {
	return agent.ExecOutcome{Success: true, Output: output}
}

func registerReadFile(reg *agent.ToolRegistry, ws *Workspace) {
	reg.Register(agent.RegisteredTool{
		Definition: agent.ToolDefinition{
			Name:        "read_file",
			Description: "Read a file from the workspace. Returns line-numbered content.",
			Parameters: objectSchema([]string{"file_path"}, map[string]interface{}{
				"file_path": prop("string", "Path to the file to read."),
				"offset":    prop("integer", "1-based line number to start from."),
				"limit":     prop("integer", "Maximum lines to read. Default: 2000."),
			}),
			ParallelSafe: true,
			Category:     agent.CategoryReadOnly,
		},
		Run: func(_ context.Context, raw json.RawMessage, _ agent.ExecContext) agent.ExecOutcome {
			var args struct {
				FilePath string `json:"file_path"`
				Offset   int    `json:"offset"`
				Limit    int    `json:"limit"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return fail("invalid arguments: %v", err)
			}
			if args.FilePath == "" {
				return fail("file_path is required")
			}
			if args.Limit == 0 {
				args.Limit = 2000
			}
			content, err := ws.ReadNumbered(args.FilePath, args.Offset, args.Limit)
			if err != nil {
				return fail("%v", err)
			}
			return ok(content)
		},
	})
}

func registerWriteFile(reg *agent.ToolRegistry, ws *Workspace) {
	reg.Register(agent.RegisteredTool{
		Definition: agent.ToolDefinition{
			Name:        "write_file",
			Description: "Write content to a file, creating it and any parent directories.",
			Parameters: objectSchema([]string{"file_path", "content"}, map[string]interface{}{
				"file_path": prop("string", "Path to write to."),
				"content":   prop("string", "Full file content."),
			}),
			Category: agent.CategoryWrite,
		},
		Run: func(_ context.Context, raw json.RawMessage, _ agent.ExecContext) agent.ExecOutcome {
			var args struct {
				FilePath string `json:"file_path"`
				Content  string `json:"content"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return fail("invalid arguments: %v", err)
			}
			if args.FilePath == "" {
				return fail("file_path is required")
			}
			if err := ws.WriteFile(args.FilePath, args.Content); err != nil {
				return fail("%v", err)
			}
			return ok(fmt.Sprintf("Wrote %d bytes to %s", len(args.Content), args.FilePath))
		},
	})
}

func registerEditFile(reg *agent.ToolRegistry, ws *Workspace) {
	reg.Register(agent.RegisteredTool{
		Definition: agent.ToolDefinition{
			Name:        "edit_file",
			Description: "Replace an exact string in a file. old_string must be unique unless replace_all is set.",
			Parameters: objectSchema([]string{"file_path", "old_string", "new_string"}, map[string]interface{}{
				"file_path":   prop("string", "Path to the file to edit."),
				"old_string":  prop("string", "Exact text to find."),
				"new_string":  prop("string", "Replacement text."),
				"replace_all": prop("boolean", "Replace every occurrence. Default: false."),
			}),
			Category: agent.CategoryWrite,
		},
		Run: func(_ context.Context, raw json.RawMessage, _ agent.ExecContext) agent.ExecOutcome {
			var args struct {
				FilePath   string `json:"file_path"`
				OldString  string `json:"old_string"`
				NewString  string `json:"new_string"`
				ReplaceAll bool   `json:"replace_all"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return fail("invalid arguments: %v", err)
			}
			if args.FilePath == "" || args.OldString == "" {
				return fail("file_path and old_string are required")
			}

			content, err := ws.ReadRaw(args.FilePath)
			if err != nil {
				return fail("%v", err)
			}
			count := strings.Count(content, args.OldString)
			if count == 0 {
				return fail("old_string not found in %s", args.FilePath)
			}
			if count > 1 && !args.ReplaceAll {
				return fail("old_string found %d times in %s; add context to make it unique or set replace_all",
					count, args.FilePath)
			}

			var updated string
			replaced := 1
			if args.ReplaceAll {
				updated = strings.ReplaceAll(content, args.OldString, args.NewString)
				replaced = count
			} else {
				updated = strings.Replace(content, args.OldString, args.NewString, 1)
			}
			if err := ws.WriteFile(args.FilePath, updated); err != nil {
				return fail("%v", err)
			}
			return ok(fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, args.FilePath))
		},
	})
}

func registerShell(reg *agent.ToolRegistry, ws *Workspace, opts Options) {
	reg.Register(agent.RegisteredTool{
		Definition: agent.ToolDefinition{
			Name:        "shell",
			Description: "Execute a shell command in the workspace. Returns combined output and exit code.",
			Parameters: objectSchema([]string{"command"}, map[string]interface{}{
				"command":    prop("string", "The command to run."),
				"timeout_ms": prop("integer", "Override the default timeout in milliseconds."),
			}),
			Category: agent.CategoryVerify,
		},
		Run: func(ctx context.Context, raw json.RawMessage, _ agent.ExecContext) agent.ExecOutcome {
			var args struct {
				Command   string `json:"command"`
				TimeoutMs int    `json:"timeout_ms"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return fail("invalid arguments: %v", err)
			}
			if args.Command == "" {
				return fail("command is required")
			}

			timeout := opts.DefaultShellTimeout
			if args.TimeoutMs > 0 {
				timeout = time.Duration(args.TimeoutMs) * time.Millisecond
			}
			if timeout > opts.MaxShellTimeout {
				timeout = opts.MaxShellTimeout
			}

			res, err := ws.Run(ctx, args.Command, timeout)
			if err != nil {
				return fail("%v", err)
			}

			var sb strings.Builder
			sb.WriteString(res.Combined())
			if res.TimedOut {
				fmt.Fprintf(&sb, "\n\n[Command timed out after %s. Partial output above; retry with a larger timeout_ms.]", timeout)
				return agent.ExecOutcome{Error: sb.String()}
			}
			if res.ExitCode != 0 {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", res.ExitCode)
				return agent.ExecOutcome{Error: sb.String()}
			}
			return ok(sb.String())
		},
	})
}

func registerGrep(reg *agent.ToolRegistry, ws *Workspace) {
	reg.Register(agent.RegisteredTool{
		Definition: agent.ToolDefinition{
			Name:        "grep",
			Description: "Search file contents with a regex. Returns matching lines with paths and line numbers.",
			Parameters: objectSchema([]string{"pattern"}, map[string]interface{}{
				"pattern":          prop("string", "Regex pattern."),
				"path":             prop("string", "Directory or file to search. Default: workspace root."),
				"glob_filter":      prop("string", "File pattern filter, e.g. \"*.go\"."),
				"case_insensitive": prop("boolean", "Case insensitive search."),
				"max_results":      prop("integer", "Per-file match cap. Default: 100."),
			}),
			ParallelSafe: true,
			Category:     agent.CategoryReadOnly,
		},
		Run: func(ctx context.Context, raw json.RawMessage, _ agent.ExecContext) agent.ExecOutcome {
			var args struct {
				Pattern         string `json:"pattern"`
				Path            string `json:"path"`
				GlobFilter      string `json:"glob_filter"`
				CaseInsensitive bool   `json:"case_insensitive"`
				MaxResults      int    `json:"max_results"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return fail("invalid arguments: %v", err)
			}
			if args.Pattern == "" {
				return fail("pattern is required")
			}
			if args.MaxResults <= 0 {
				args.MaxResults = 100
			}
			result, err := ws.Search(ctx, args.Pattern, args.Path, SearchOptions{
				Glob:            args.GlobFilter,
				CaseInsensitive: args.CaseInsensitive,
				MaxResults:      args.MaxResults,
			})
			if err != nil {
				return fail("%v", err)
			}
			if result == "" {
				result = "No matches found."
			}
			return ok(result)
		},
	})
}

func registerGlob(reg *agent.ToolRegistry, ws *Workspace) {
	reg.Register(agent.RegisteredTool{
		Definition: agent.ToolDefinition{
			Name:        "glob",
			Description: "Find files matching a glob pattern, newest first.",
			Parameters: objectSchema([]string{"pattern"}, map[string]interface{}{
				"pattern": prop("string", "Glob pattern, e.g. \"**/*.go\"."),
				"path":    prop("string", "Base directory. Default: workspace root."),
			}),
			ParallelSafe: true,
			Category:     agent.CategoryReadOnly,
		},
		Run: func(_ context.Context, raw json.RawMessage, _ agent.ExecContext) agent.ExecOutcome {
			var args struct {
				Pattern string `json:"pattern"`
				Path    string `json:"path"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return fail("invalid arguments: %v", err)
			}
			if args.Pattern == "" {
				return fail("pattern is required")
			}
			matches, err := ws.Glob(args.Pattern, args.Path)
			if err != nil {
				return fail("%v", err)
			}
			if len(matches) == 0 {
				return ok("No files matched the pattern.")
			}
			return ok(strings.Join(matches, "\n"))
		},
	})
}

func registerListDir(reg *agent.ToolRegistry, ws *Workspace) {
	reg.Register(agent.RegisteredTool{
		Definition: agent.ToolDefinition{
			Name:        "list_dir",
			Description: "List the entries of a directory.",
			Parameters: objectSchema([]string{"path"}, map[string]interface{}{
				"path": prop("string", "Directory to list."),
			}),
			ParallelSafe: true,
			Category:     agent.CategoryReadOnly,
		},
		Run: func(_ context.Context, raw json.RawMessage, _ agent.ExecContext) agent.ExecOutcome {
			var args struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return fail("invalid arguments: %v", err)
			}
			entries, err := ws.List(args.Path)
			if err != nil {
				return fail("%v", err)
			}
			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir {
					fmt.Fprintf(&sb, "%s/\n", e.Name)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name, e.Size)
				}
			}
			if sb.Len() == 0 {
				return ok("Directory is empty.")
			}
			return ok(sb.String())
		},
	})
}
