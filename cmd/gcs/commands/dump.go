package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <class>",
	Short: "Disassemble a class",
	Long: `Prints the header, members and bytecode of a class as the shrinker sees it.
Use --pool to include the constant pool.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		c, err := s.class(args[0])
		if err != nil {
			return err
		}
		pool, _ := cmd.Flags().GetBool("pool")
		return dumpClass(cmd.OutOrStdout(), c, pool)
	},
}

func dumpClass(w io.Writer, c *classfile.Class, pool bool) error {
	kind := "program"
	if c.Library {
		kind = "library"
	}
	fmt.Fprintf(w, "%s %s (%s, version %d.%d)\n", c.AccessFlags.ClassString(), c.Name(), kind, c.MajorVersion, c.MinorVersion)
	if super := c.SuperName(); super != "" {
		fmt.Fprintf(w, "  extends %s\n", super)
	}
	for _, iface := range c.InterfaceNames() {
		fmt.Fprintf(w, "  implements %s\n", iface)
	}

	if pool {
		fmt.Fprintf(w, "\nConstant pool (%d):\n", c.Pool.Count())
		for i := 1; i < c.Pool.Count(); i++ {
			if c.Pool.Valid(uint16(i)) {
				fmt.Fprintf(w, "  #%d = %s\n", i, c.Pool.Describe(uint16(i)))
			}
		}
	}

	if len(c.Fields) > 0 {
		fmt.Fprintf(w, "\nFields (%d):\n", len(c.Fields))
		for _, f := range c.Fields {
			fmt.Fprintf(w, "  %s %s\n", f.AccessFlags.MemberString(f.Kind), f.Signature(c))
		}
	}

	fmt.Fprintf(w, "\nMethods (%d):\n", len(c.Methods))
	for _, m := range c.Methods {
		fmt.Fprintf(w, "  %s %s\n", m.AccessFlags.MemberString(m.Kind), m.Signature(c))
		code := m.Code()
		if code == nil {
			continue
		}
		instructions, err := code.Instructions()
		if err != nil {
			return fmt.Errorf("decoding %s.%s: %w", c.Name(), m.Signature(c), err)
		}
		fmt.Fprintf(w, "    max_stack=%d max_locals=%d\n", code.MaxStack, code.MaxLocals)
		for _, ins := range instructions {
			fmt.Fprintf(w, "    %4d: %s\n", ins.Offset, ins)
		}
		for _, h := range code.ExceptionTable {
			catch := "any"
			if h.CatchType != 0 {
				if catch, err = c.Pool.ClassName(h.CatchType); err != nil {
					return err
				}
			}
			fmt.Fprintf(w, "    catch %s [%d, %d) -> %d\n", catch, h.StartPC, h.EndPC, h.HandlerPC)
		}
	}
	return nil
}

func init() {
	dumpCmd.Flags().Bool("pool", false, "Include the constant pool")
	RootCmd.AddCommand(dumpCmd)
}
