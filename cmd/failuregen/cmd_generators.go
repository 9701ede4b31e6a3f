package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/curbz/failure-niner/internal/failgen"
	"github.com/curbz/failure-niner/internal/store"
)

func newGeneratorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generators",
		Aliases: []string{"gen"},
		Short:   "List and edit failure generators",
	}
	cmd.AddCommand(
		newGeneratorsListCmd(),
		newGeneratorsAddCmd(),
		newGeneratorsEraseCmd(),
		newGeneratorsSetCmd(),
		newGeneratorsCompactCmd(),
	)
	return cmd
}

func newGeneratorsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [type]",
		Short: "Show generator types and their records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			if raw, _ := cmd.Flags().GetBool("raw"); raw {
				return printStore(cmd.OutOrStdout(), a.store)
			}

			regs := a.registries.All()
			if len(args) == 1 {
				r, err := a.registries.ByName(args[0])
				if err != nil {
					return err
				}
				regs = []*failgen.Registry{r}
			}
			p := message.NewPrinter(language.English)
			for _, r := range regs {
				printRegistry(cmd.OutOrStdout(), p, r, a.assoc)
			}
			return nil
		},
	}
	cmd.Flags().Bool("raw", false, "Print every stored settings and association string")
	return cmd
}

func printStore(w io.Writer, st *store.SQLite) error {
	keys, err := st.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		v, _ := st.Get(k)
		fmt.Fprintf(w, "%s=%s\n", k, v)
	}
	return nil
}

func printRegistry(w io.Writer, p *message.Printer, r *failgen.Registry, assoc *failgen.Associations) {
	typ := r.Type()
	p.Fprintf(w, "%s (%s): %d record(s)\n", typ.Name, typ.Prefix, r.Count())
	for i, rec := range r.Snapshot() {
		uid := failgen.UniqueID(typ.Prefix, i)
		mode := failgen.ModeOf(rec[failgen.ModeIndex])
		if mode == failgen.Disabled {
			p.Fprintf(w, "  %-4s %s\n", uid, mode)
			continue
		}
		fields := make([]string, 0, len(rec)-1)
		for f := 1; f < len(rec); f++ {
			fields = append(fields, p.Sprintf("%s=%v", typ.FieldNames[f], rec[f]))
		}
		p.Fprintf(w, "  %-4s %-16s %s  [%d failures]\n", uid, mode, strings.Join(fields, ", "), len(assoc.FindAssociated(uid)))
	}
}

func newGeneratorsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <type>",
		Short: "Add a generator with default settings, associated with every failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.registries.ByName(args[0])
			if err != nil {
				return err
			}
			uid, err := r.Add()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", uid)
			return nil
		},
	}
}

func newGeneratorsEraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase <uid>",
		Short: "Erase a generator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			r, i, err := a.registries.Lookup(args[0])
			if err != nil {
				return err
			}
			if err := r.Erase(i); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "erased %s\n", args[0])
			return nil
		},
	}
}

func newGeneratorsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <uid> <field> <value>",
		Short: "Change one setting of a generator",
		Long: `Change one setting of a generator. The field is its index or its name,
e.g. "mode" or "max failures". Mode values: -1 disabled, 0 inactive,
1 armed once, 2 armed in flight, 3 always armed.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			r, i, err := a.registries.Lookup(args[0])
			if err != nil {
				return err
			}
			field, err := fieldIndex(r.Type(), args[1])
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[2], err)
			}
			if err := r.SetField(i, field, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %v\n", args[0], r.Type().FieldNames[field], value)
			return nil
		},
	}
}

func fieldIndex(typ failgen.GeneratorType, s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= typ.Width {
			return 0, fmt.Errorf("%w: %d", failgen.ErrFieldOutOfRange, n)
		}
		return n, nil
	}
	for i, name := range typ.FieldNames {
		// "min altitude" selects "min altitude (100 ft)"
		base, _, _ := strings.Cut(name, " (")
		if strings.EqualFold(name, s) || strings.EqualFold(base, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s has no field %q", failgen.ErrFieldOutOfRange, typ.Name, s)
}

func newGeneratorsCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Remove erased generators and renumber the ones after them",
		Long: `Remove every erased generator slot and renumber the generators after it,
rewriting failure associations to match. Do not run while "failuregen run"
is active, the running engine would keep the old numbering.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			for _, r := range a.registries.All() {
				n, err := r.Compact()
				if err != nil {
					return err
				}
				if n > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d erased record(s)\n", r.Type().Name, n)
				}
			}
			return nil
		},
	}
}
