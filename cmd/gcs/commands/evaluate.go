package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/evaluation"
	"github.com/l3aro/go-class-shrink/pkg/keep"
	"github.com/l3aro/go-class-shrink/pkg/report"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <class> [method]",
	Short: "Run the abstract interpreter over methods of a class",
	Long: `Evaluates one method, or every method with code, and prints what the
interpreter proved: unreachable code, dead stores, unused parameters,
decided branches, constant results and removable calls.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		c, err := s.class(args[0])
		if err != nil {
			return err
		}
		spec := ""
		if len(args) == 2 {
			spec = args[1]
		}
		methods, err := methodsWithCode(c, spec)
		if err != nil {
			return err
		}

		ev := s.evaluator()
		var (
			facts  []report.MethodFacts
			failed []report.MethodError
		)
		for _, m := range methods {
			res, err := ev.Evaluate(c, m)
			if err != nil {
				// A single named method is an error, a sweep reports and goes on.
				if spec != "" {
					return err
				}
				failed = append(failed, report.MethodError{Class: c.Name(), Method: m.Signature(c), Message: err.Error()})
				continue
			}
			facts = append(facts, report.Facts(res))
		}

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(w, struct {
				Methods []report.MethodFacts `json:"methods"`
				Errors  []report.MethodError `json:"errors,omitempty"`
			}{facts, failed})
		}
		fmt.Fprintf(w, "=== Evaluation of %s ===\n", c.Name())
		for i := range facts {
			facts[i].WriteText(w)
			if !facts[i].Finds() {
				fmt.Fprintf(w, "    nothing to optimize\n")
			}
		}
		for _, e := range failed {
			fmt.Fprintf(w, "  %s: %s\n", e.Method, e.Message)
		}
		return nil
	},
}

// evaluator returns an evaluator that honors the session's
// assumenosideeffects rules.
func (s *session) evaluator() *evaluation.Evaluator {
	return evaluation.NewEvaluator(s.program,
		evaluation.WithLogger(s.logger),
		evaluation.WithSideEffects(keep.DefaultSideEffectTable(s.specs...)),
	)
}

// evaluateMethod resolves and evaluates a single method.
func (s *session) evaluateMethod(c *classfile.Class, m *classfile.Member) (*evaluation.Result, error) {
	res, err := s.evaluator().Evaluate(c, m)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s.%s: %w", c.Name(), m.Signature(c), err)
	}
	return res, nil
}

func init() {
	evaluateCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(evaluateCmd)
}
