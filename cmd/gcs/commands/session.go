package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/internal/classpath"
	"github.com/l3aro/go-class-shrink/internal/config"
	"github.com/l3aro/go-class-shrink/internal/log"
	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/keep"
)

// session is the loaded state shared by the analysis commands.
type session struct {
	cfg     *config.Config
	logger  log.Logger
	program *classfile.Program
	loaded  *classpath.Loaded
	specs   []*keep.ClassSpec
}

// loadConfig reads the configuration file and applies the persistent flags
// that were set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Inputs, _ = flags.GetStringSlice("input")
	}
	if flags.Changed("library") {
		cfg.Libraries, _ = flags.GetStringSlice("library")
	}
	if flags.Changed("keep") {
		cfg.Keep, _ = flags.GetStringArray("keep")
	}
	if flags.Changed("keep-file") {
		cfg.KeepFiles, _ = flags.GetStringSlice("keep-file")
	}
	if flags.Changed("parallelism") {
		cfg.Parallelism, _ = flags.GetInt("parallelism")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("log-json") {
		cfg.LogJSON, _ = flags.GetBool("log-json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) log.Logger {
	level := log.WarnLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: cfg.LogJSON,
		Stderr:     os.Stderr,
	})
}

// openSession loads the configuration, the class path and the rules.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs: pass --input or set inputs in .gcs/config.yaml")
	}
	s := &session{cfg: cfg, logger: newLogger(cfg)}

	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	rules = append(rules, cfg.AssumeNoSideEffects...)
	if s.specs, err = keep.ParseRules(rules); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}

	loader := classpath.NewLoader(
		classpath.WithLogger(s.logger),
		classpath.WithParallelism(cfg.Parallelism),
	)
	s.loaded, err = loader.Load(cmd.Context(), cfg.Inputs, cfg.Libraries)
	if err != nil {
		return nil, fmt.Errorf("loading classes: %w", err)
	}
	for _, f := range s.loaded.Failures {
		fmt.Fprintf(os.Stderr, "warning: skipped %v\n", f)
	}
	s.program = s.loaded.Program
	if missing := s.program.Missing(); len(missing) > 0 {
		s.logger.Warn("unresolved class references", "count", len(missing), "first", missing[0])
	}
	return s, nil
}

// internalName accepts both java.lang.String and java/lang/String.
func internalName(name string) string {
	return strings.ReplaceAll(strings.TrimSuffix(name, ".class"), ".", "/")
}

func (s *session) class(name string) (*classfile.Class, error) {
	id := s.program.Lookup(internalName(name))
	if id == classfile.NoClass {
		return nil, fmt.Errorf("class %s not found", name)
	}
	return s.program.Class(id), nil
}

// findMember resolves a member by its full signature, such as
// "main([Ljava/lang/String;)V" or "count:I", or by its bare name when that
// is unambiguous.
func findMember(c *classfile.Class, members []*classfile.Member, spec string) (*classfile.Member, error) {
	var matches []*classfile.Member
	for _, m := range members {
		if m.Signature(c) == spec {
			return m, nil
		}
		if m.Name(c) == spec {
			matches = append(matches, m)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, fmt.Errorf("%s not found in %s\nAvailable: %s", spec, c.Name(), strings.Join(signatures(c, members), ", "))
	}
	return nil, fmt.Errorf("%s is ambiguous in %s, use one of: %s", spec, c.Name(), strings.Join(signatures(c, matches), ", "))
}

func signatures(c *classfile.Class, members []*classfile.Member) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Signature(c))
	}
	sort.Strings(out)
	return out
}

// methodsWithCode returns the named method or, for an empty spec, every
// method of c that has code.
func methodsWithCode(c *classfile.Class, spec string) ([]*classfile.Member, error) {
	if spec != "" {
		m, err := findMember(c, c.Methods, spec)
		if err != nil {
			return nil, err
		}
		return []*classfile.Member{m}, nil
	}
	var out []*classfile.Member
	for _, m := range c.Methods {
		if m.Code() != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
