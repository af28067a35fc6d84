package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/internal/config"
	"github.com/l3aro/go-class-shrink/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	Long: `Guides you through setting up gcs step by step: where the program and
library classes are, where the shrunk output goes and which entry points to keep.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Class path ===
	input := "build/classes"
	library := ""
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Program classes").
				Description("Directory, jar or class file to shrink").
				Placeholder("build/classes").
				Value(&input),
			huh.NewInput().
				Title("Library classes (optional, press Enter to skip)").
				Description("Jars the program compiles against, such as rt.jar").
				Placeholder("optional").
				Value(&library),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.Inputs = splitPaths(input)
	cfg.Libraries = splitPaths(library)

	// === SECTION 2: Output and rules ===
	output := cfg.Output
	keepRule := ""
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Output").
				Description("Directory, or archive when ending in .jar").
				Placeholder(cfg.Output).
				Value(&output),
			huh.NewInput().
				Title("Entry point").
				Description("Keep rule for the code that must survive").
				Placeholder("keep class com.example.Main { public static void main(java.lang.String[]); }").
				Value(&keepRule),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if output != "" {
		cfg.Output = output
	}
	if keepRule != "" {
		cfg.Keep = []string{keepRule}
	}

	// === SECTION 3: Optimization ===
	var attributes string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Optional attributes").
				Description("Which debugging attributes to keep").
				Options(
					huh.NewOption("None (smallest output)", ""),
					huh.NewOption("Source and line numbers", "SourceFile,LineNumberTable"),
					huh.NewOption("All debug information", "SourceFile,LineNumberTable,LocalVariable*,Signature,*Annotations"),
				).
				Value(&attributes),
			huh.NewConfirm().
				Title("Evaluate methods").
				Description("Run the abstract interpreter over every kept method?").
				Affirmative("Yes").
				Negative("No, shrink only").
				Value(&cfg.Optimize),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.KeepAttributes = attributes

	// === SECTION 4: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.gcs/config.yaml)", "project"),
					huh.NewOption("Global (~/.gcs/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	if fileExists(configPath) {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Inputs: %v\n", cfg.Inputs)
	if len(cfg.Libraries) > 0 {
		fmt.Printf("Libraries: %v\n", cfg.Libraries)
	}
	fmt.Printf("Output: %s\n", cfg.Output)
	for _, rule := range cfg.Keep {
		fmt.Printf("Keep: %s\n", rule)
	}
	if cfg.KeepAttributes != "" {
		fmt.Printf("Keep attributes: %s\n", cfg.KeepAttributes)
	}
	fmt.Printf("Evaluate methods: %v\n", cfg.Optimize)
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 5: Health Check ===
	fmt.Println("\n=== Running Health Check ===")
	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("\nConfig Scope: %s\n", result.SavedScope)
	if abs, err := filepath.Abs(configPath); err == nil {
		fmt.Printf("Config Path: %s\n", abs)
	}
	displayDoctorResult(os.Stdout, result)
	if result.HasErrors() {
		fmt.Println("\nFix the errors above, then run 'gcs doctor' again.")
	}
	return nil
}

// splitPaths splits a comma separated answer into paths.
func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	RootCmd.AddCommand(initCmd)
}
