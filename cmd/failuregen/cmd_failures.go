package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/curbz/failure-niner/internal/failures"
)

func newFailuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Show the failure catalogue and choose which failures a generator may activate",
	}
	cmd.AddCommand(newFailuresListCmd(), newFailuresSelectCmd())
	return cmd
}

func newFailuresListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [uid]",
		Short: "List catalogue failures by ATA chapter, marking those associated with a generator",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			var selected []int
			if len(args) == 1 {
				if _, _, err := a.registries.Lookup(args[0]); err != nil {
					return err
				}
				selected = a.assoc.FindAssociated(args[0])
			}
			out := cmd.OutOrStdout()
			for _, chapter := range failures.Chapters(a.catalogue) {
				fmt.Fprintf(out, "ATA %02d\n", chapter)
				for _, f := range a.catalogue {
					if f.ATA != chapter {
						continue
					}
					mark := " "
					if slices.Contains(selected, f.Identifier) {
						mark = "x"
					}
					if len(args) == 1 {
						fmt.Fprintf(out, "  [%s] %6d  %s\n", mark, f.Identifier, f.Name)
					} else {
						fmt.Fprintf(out, "  %6d  %s  %v\n", f.Identifier, f.Name, a.assoc.IDs(f.Identifier))
					}
				}
			}
			return nil
		},
	}
}

func newFailuresSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <uid>",
		Short: "Associate failures with a generator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, _ := cmd.Flags().GetIntSlice("failure")
			chapter, _ := cmd.Flags().GetInt("chapter")
			all, _ := cmd.Flags().GetBool("all")
			off, _ := cmd.Flags().GetBool("off")
			if len(ids) == 0 && chapter < 0 && !all {
				return fmt.Errorf("one of --failure, --chapter or --all is required")
			}

			a, err := openApp(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			uid := args[0]
			if _, _, err := a.registries.Lookup(uid); err != nil {
				return err
			}
			value := !off
			switch {
			case all:
				err = a.assoc.SelectCatalogue(uid, value)
			case chapter >= 0:
				err = a.assoc.SelectAllInChapter(chapter, uid, value)
			default:
				err = a.assoc.SelectAll(ids, uid, value)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now covers %d failure(s)\n", uid, len(a.assoc.FindAssociated(uid)))
			return nil
		},
	}
	cmd.Flags().IntSlice("failure", nil, "Failure identifier (repeatable)")
	cmd.Flags().Int("chapter", -1, "ATA chapter")
	cmd.Flags().Bool("all", false, "Every failure in the catalogue")
	cmd.Flags().Bool("off", false, "Remove instead of add")
	return cmd
}
