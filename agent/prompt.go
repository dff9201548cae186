package agent

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

// EnvironmentContext renders the structured environment block included in
// the system prompt.
func EnvironmentContext(workingDir, model string) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	inRepo := isGitRepository(workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", inRepo)
	if inRepo {
		if branch := gitBranch(workingDir); branch != "" {
			fmt.Fprintf(&sb, "Git branch: %s\n", branch)
		}
	}
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads AGENTS.md instruction files from the repository
// root down to the working directory, capped at 32KB total.
func DiscoverProjectDocs(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	var docs []string
	total := 0
	for _, dir := range pathHierarchy(root, workingDir) {
		path := filepath.Join(dir, "AGENTS.md")
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		remaining := maxProjectDocBytes - total
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}
		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}
		docs = append(docs, fmt.Sprintf("# AGENTS.md (from %s)\n\n%s", dir, text))
		total += len(text)
	}

	return strings.Join(docs, "\n\n---\n\n")
}

// GitContext summarizes repository state for the system prompt. Empty when
// the working directory is not inside a repository.
func GitContext(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<git_context>\n")
	if branch := gitBranch(root); branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", branch)
	}
	if status := gitOutput(root, "status", "--short"); status != "" {
		lines := strings.Split(strings.TrimSpace(status), "\n")
		fmt.Fprintf(&sb, "Modified/untracked files: %d\n", len(lines))
	}
	if log := gitOutput(root, "log", "--oneline", "-10"); log != "" {
		sb.WriteString("Recent commits:\n")
		sb.WriteString(log)
	}
	sb.WriteString("</git_context>")
	return sb.String()
}

// BuildSystemPrompt assembles the base instructions with environment,
// project-doc and git sections.
func BuildSystemPrompt(base, workingDir, model string) string {
	sections := []string{base, EnvironmentContext(workingDir, model)}
	if docs := DiscoverProjectDocs(workingDir); docs != "" {
		sections = append(sections, docs)
	}
	if git := GitContext(workingDir); git != "" {
		sections = append(sections, git)
	}
	return strings.Join(sections, "\n\n")
}

// pathHierarchy lists the directories from root down to target, inclusive.
func pathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if root == target {
		return []string{root}
	}

	dirs := []string{root}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." || part == ".." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func isGitRepository(dir string) bool {
	out := gitOutput(dir, "rev-parse", "--is-inside-work-tree")
	return strings.TrimSpace(out) == "true"
}

func gitRoot(dir string) string {
	return strings.TrimSpace(gitOutput(dir, "rev-parse", "--show-toplevel"))
}

func gitBranch(dir string) string {
	return strings.TrimSpace(gitOutput(dir, "rev-parse", "--abbrev-ref", "HEAD"))
}

func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(out)
}
