package healthcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/go-class-shrink/internal/config"
)

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(nil, "", "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheckReady(t *testing.T) {
	dir := t.TempDir()
	classes := filepath.Join(dir, "classes")
	if err := os.Mkdir(classes, 0755); err != nil {
		t.Fatal(err)
	}
	lib := filepath.Join(dir, "rt.bin")
	if err := os.WriteFile(lib, []byte{'P', 'K', 3, 4, 0}, 0644); err != nil {
		t.Fatal(err)
	}
	keepFile := filepath.Join(dir, "rules.pro")
	if err := os.WriteFile(keepFile, []byte("keep class B"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Inputs = []string{classes}
	cfg.Libraries = []string{lib}
	cfg.Keep = []string{"keep class A { public *; }"}
	cfg.KeepFiles = []string{keepFile}
	cfg.Output = filepath.Join(dir, "out.jar")

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.HasErrors() {
		t.Fatalf("HasErrors() = true, result: %+v", result)
	}
	if result.Inputs[0].Kind != "directory" {
		t.Errorf("input kind = %q, want directory", result.Inputs[0].Kind)
	}
	if result.Libraries[0].Kind != "archive" {
		t.Errorf("library kind = %q, want archive", result.Libraries[0].Kind)
	}
	if result.Rules.Count != 2 {
		t.Errorf("Rules.Count = %d, want 2", result.Rules.Count)
	}
	if result.Output.Kind != "archive" {
		t.Errorf("output kind = %q, want archive", result.Output.Kind)
	}
}

func TestCheckErrors(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		setup func(cfg *config.Config)
		check func(t *testing.T, r *HealthCheckResult)
	}{
		{
			name:  "no inputs",
			setup: func(cfg *config.Config) { cfg.Inputs = nil },
			check: func(t *testing.T, r *HealthCheckResult) {},
		},
		{
			name:  "missing input",
			setup: func(cfg *config.Config) { cfg.Inputs = []string{filepath.Join(dir, "nope")} },
			check: func(t *testing.T, r *HealthCheckResult) {
				if r.Inputs[0].Status != "missing" {
					t.Errorf("Status = %q, want missing", r.Inputs[0].Status)
				}
			},
		},
		{
			name:  "unknown file",
			setup: func(cfg *config.Config) { cfg.Libraries = []string{notes} },
			check: func(t *testing.T, r *HealthCheckResult) {
				if r.Libraries[0].Status != "error" {
					t.Errorf("Status = %q, want error", r.Libraries[0].Status)
				}
			},
		},
		{
			name:  "bad rule",
			setup: func(cfg *config.Config) { cfg.Keep = []string{"keep clas A"} },
			check: func(t *testing.T, r *HealthCheckResult) {
				if r.Rules.Status != "error" {
					t.Errorf("Rules.Status = %q, want error", r.Rules.Status)
				}
			},
		},
		{
			name:  "output is a file",
			setup: func(cfg *config.Config) { cfg.Output = notes },
			check: func(t *testing.T, r *HealthCheckResult) {
				if r.Output.Status != "error" {
					t.Errorf("Output.Status = %q, want error", r.Output.Status)
				}
			},
		},
		{
			name:  "missing keep file",
			setup: func(cfg *config.Config) { cfg.KeepFiles = []string{filepath.Join(dir, "gone.pro")} },
			check: func(t *testing.T, r *HealthCheckResult) {
				if r.Rules.Status != "error" {
					t.Errorf("Rules.Status = %q, want error", r.Rules.Status)
				}
				if r.KeepFiles[0].Status != "missing" {
					t.Errorf("KeepFiles[0].Status = %q, want missing", r.KeepFiles[0].Status)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Inputs = []string{dir}
			cfg.Keep = []string{"keep class A"}
			cfg.Output = filepath.Join(dir, "out")
			tt.setup(cfg)

			result, err := Check(cfg, "", "")
			if err != nil {
				t.Fatalf("Check() failed: %v", err)
			}
			if !result.HasErrors() {
				t.Error("HasErrors() = false, want true")
			}
			tt.check(t, result)
		})
	}
}

func TestCheckEmptyRules(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Inputs = []string{t.TempDir()}

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Rules.Status != "empty" {
		t.Errorf("Rules.Status = %q, want empty", result.Rules.Status)
	}
	if result.HasErrors() {
		t.Error("empty rules should only warn")
	}
}

func TestScopeFromPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	globalPath := ""
	if home != "" {
		globalPath = filepath.Join(home, ".gcs", "config.yaml")
	}

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"empty path", "", ""},
		{"project path", "/project/.gcs/config.yaml", "project"},
		{"relative project path", ".gcs/config.yaml", "project"},
	}
	if globalPath != "" {
		tests = append(tests, struct {
			name     string
			path     string
			expected string
		}{"global path", globalPath, "global"})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scopeFromPath(tt.path)
			if result != tt.expected {
				t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}
