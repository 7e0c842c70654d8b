package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProgressCmd(flags *storageFlags) *cobra.Command {
	progress := &cobra.Command{
		Use:   "progress",
		Short: "Read stored unit progress",
	}

	var class, unit string
	list := &cobra.Command{
		Use:   "list",
		Short: "List every learner's stage per unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, done, err := flags.openProgress(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			records, err := st.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLASS\tSTUDENT\tUNIT\tSTAGE\tPREDICTION\tREFLECTION\tLAST ACCESS")
			for _, rec := range records {
				if !matches(class, rec.Identity.ClassNumber) || !matches(unit, rec.Unit) {
					continue
				}
				p := rec.Progress
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					rec.Identity.ClassNumber, rec.Identity.StudentNumber, rec.Unit, p.CurrentStage,
					p.StageProgress.Prediction.ConversationCount, p.StageProgress.Reflection.ConversationCount,
					p.LastAccess.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&class, "class", "", "only this class number")
	list.Flags().StringVar(&unit, "unit", "", "only this unit")

	progress.AddCommand(list)
	return progress
}
