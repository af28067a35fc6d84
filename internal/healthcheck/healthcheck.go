package healthcheck

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-class-shrink/internal/config"
	"github.com/l3aro/go-class-shrink/internal/scanner"
	"github.com/l3aro/go-class-shrink/pkg/keep"
)

// PathStatus represents the health status of one configured path.
type PathStatus struct {
	Path   string
	Kind   string // "directory", "class", "archive" or "keep file"
	Status string // "ready", "missing", "error"
	Error  string
}

// RulesStatus summarizes whether the configured rules parse.
type RulesStatus struct {
	Count  int
	Status string // "ready", "empty", "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Inputs         []PathStatus
	Libraries      []PathStatus
	KeepFiles      []PathStatus
	Rules          RulesStatus
	Output         PathStatus
}

// HasErrors reports whether any check failed. Empty rules are a warning.
func (r *HealthCheckResult) HasErrors() bool {
	if r.Rules.Status == "error" || r.Output.Status == "error" || len(r.Inputs) == 0 {
		return true
	}
	for _, list := range [][]PathStatus{r.Inputs, r.Libraries, r.KeepFiles} {
		for _, s := range list {
			if s.Status != "ready" {
				return true
			}
		}
	}
	return false
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
		Output:         checkOutput(cfg.Output),
	}
	for _, p := range cfg.Inputs {
		result.Inputs = append(result.Inputs, checkClassPath(p))
	}
	for _, p := range cfg.Libraries {
		result.Libraries = append(result.Libraries, checkClassPath(p))
	}
	for _, p := range cfg.KeepFiles {
		result.KeepFiles = append(result.KeepFiles, checkKeepFile(p))
	}
	result.Rules = checkRules(cfg)

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".gcs")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// checkClassPath verifies that an input or library path exists and holds
// class files. Files with an unknown extension are sniffed.
func checkClassPath(path string) PathStatus {
	status := PathStatus{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		status.Status = "missing"
		status.Error = err.Error()
		return status
	}
	if info.IsDir() {
		status.Kind = "directory"
		status.Status = "ready"
		return status
	}

	kind := scanner.DetectKind(filepath.Ext(path))
	if kind == scanner.KindUnknown {
		kind, err = sniff(path)
		if err != nil {
			status.Status = "error"
			status.Error = err.Error()
			return status
		}
	}
	if kind == scanner.KindUnknown {
		status.Status = "error"
		status.Error = "neither a class file nor an archive"
		return status
	}
	status.Kind = string(kind)
	status.Status = "ready"
	return status
}

func sniff(path string) (scanner.Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return scanner.KindUnknown, err
	}
	defer f.Close()

	header := make([]byte, 4)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return scanner.KindUnknown, err
	}
	return scanner.SniffKind(header[:n]), nil
}

func checkKeepFile(path string) PathStatus {
	status := PathStatus{Path: path, Kind: "keep file"}
	if _, err := os.Stat(path); err != nil {
		status.Status = "missing"
		status.Error = err.Error()
		return status
	}
	status.Status = "ready"
	return status
}

// checkRules parses every keep and assumenosideeffects rule.
func checkRules(cfg *config.Config) RulesStatus {
	rules, err := cfg.Rules()
	if err != nil {
		return RulesStatus{Status: "error", Error: err.Error()}
	}
	rules = append(rules, cfg.AssumeNoSideEffects...)
	specs, err := keep.ParseRules(rules)
	if err != nil {
		return RulesStatus{Status: "error", Error: err.Error()}
	}
	if len(specs) == 0 {
		return RulesStatus{Status: "empty", Error: "no keep rules: shrinking would remove everything"}
	}
	return RulesStatus{Count: len(specs), Status: "ready"}
}

// checkOutput verifies that the output can be created. An existing output
// directory is overwritten, an existing plain file is only accepted as an
// archive target.
func checkOutput(path string) PathStatus {
	status := PathStatus{Path: path, Kind: "directory"}
	if scanner.DetectKind(filepath.Ext(path)) == scanner.KindArchive {
		status.Kind = string(scanner.KindArchive)
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && !info.IsDir() && status.Kind == "directory":
		status.Status = "error"
		status.Error = "output exists and is not a directory"
	case err == nil && info.IsDir() && status.Kind != "directory":
		status.Status = "error"
		status.Error = "archive output is a directory"
	case err != nil && !os.IsNotExist(err):
		status.Status = "error"
		status.Error = err.Error()
	default:
		status.Status = "ready"
	}
	return status
}
