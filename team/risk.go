package team

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RiskLevel grades a proposed execution request.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk is the outcome of assessing an execution request. Each matched
// category contributes exactly one reason; zero reasons is low, one is
// medium, two or more is high.
type Risk struct {
	Level   RiskLevel `json:"level"`
	Reasons []string  `json:"reasons,omitempty"`
}

// ExecutionRequest describes a proposed tool execution for risk assessment.
type ExecutionRequest struct {
	Tool       string   `json:"tool"`
	Command    string   `json:"command,omitempty"`
	WritePaths []string `json:"write_paths,omitempty"`
	WorkingDir string   `json:"working_dir"`
}

var destructivePatterns = []string{
	"rm -rf",
	"rm -fr",
	"rm -r /",
	"mkfs",
	"dd if=",
	"shred ",
	"> /dev/",
}

var dangerousCommands = []string{
	"sudo ",
	"chmod 777",
	"chmod -R 777",
	"git push --force",
	"git push -f",
	":(){",
}

// AssessRisk is a pure function scoring a proposed execution request.
func AssessRisk(req ExecutionRequest) Risk {
	var reasons []string

	cmd := strings.ToLower(req.Command)
	for _, p := range destructivePatterns {
		if strings.Contains(cmd, p) {
			reasons = append(reasons, fmt.Sprintf("destructive filesystem pattern %q", strings.TrimSpace(p)))
			break
		}
	}

	if isDangerousCommand(cmd) {
		reasons = append(reasons, "dangerous shell command")
	}

	for _, p := range req.WritePaths {
		if !pathWithin(req.WorkingDir, p) {
			reasons = append(reasons, fmt.Sprintf("write outside working directory: %s", p))
			break
		}
	}

	level := RiskLow
	switch {
	case len(reasons) >= 2:
		level = RiskHigh
	case len(reasons) == 1:
		level = RiskMedium
	}
	return Risk{Level: level, Reasons: reasons}
}

func isDangerousCommand(cmd string) bool {
	for _, p := range dangerousCommands {
		if strings.Contains(cmd, p) {
			return true
		}
	}
	// Piping a remote fetch straight into a shell.
	if strings.Contains(cmd, "curl") || strings.Contains(cmd, "wget") {
		if strings.Contains(cmd, "| sh") || strings.Contains(cmd, "| bash") || strings.Contains(cmd, "|sh") || strings.Contains(cmd, "|bash") {
			return true
		}
	}
	return false
}

// pathWithin reports whether path resolves inside root.
func pathWithin(root, path string) bool {
	if root == "" {
		return true
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	rel, err := filepath.Rel(root, filepath.Clean(abs))
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
