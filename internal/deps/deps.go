package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"fingerid/internal/config"
)

// Requirement defines an external command fingerid relies on. Script, when
// set, names a file the command is expected to run.
type Requirement struct {
	Name        string
	Command     string
	Script      string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// FromConfig lists the subprocesses the configuration invokes. The
// binarization transform is optional when disabled.
func FromConfig(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{
			Name:        "Similarity model",
			Command:     cfg.Oracle.Python,
			Script:      cfg.Oracle.Script,
			Description: "Scores biometric logins",
		},
		{
			Name:        "Vein binarization",
			Command:     cfg.Binarize.Python,
			Script:      cfg.Binarize.Script,
			Description: "Derives binary vein images",
			Optional:    !cfg.Binarize.Enabled,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		if script := strings.TrimSpace(req.Script); script != "" {
			info, err := os.Stat(script)
			if err != nil || info.IsDir() {
				status.Available = false
				status.Detail = fmt.Sprintf("script %q not found", script)
				results = append(results, status)
				continue
			}
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
