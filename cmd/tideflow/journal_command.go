package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tideflow/internal/runjournal"
)

func newJournalCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var inputFile string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show journalled pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			journal, err := runjournal.Open(cfg.Paths.JournalDir)
			if err != nil {
				return err
			}
			defer journal.Close()

			var entries []runjournal.Entry
			if inputFile != "" {
				entries, err = journal.ForInputFile(cmd.Context(), inputFile)
			} else {
				entries, err = journal.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no journalled runs")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					fmt.Sprintf("%d", e.ID),
					e.RecordedAt.Format("2006-01-02 15:04:05"),
					e.Pipeline,
					e.InputFile,
					e.Result,
					e.State,
					fmt.Sprintf("%d", e.FileCount),
					e.Error,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{
				{title: "ID", numeric: true}, {title: "Recorded"}, {title: "Pipeline"},
				{title: "Input"}, {title: "Result"}, {title: "State"},
				{title: "Files", numeric: true}, {title: "Error"},
			}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "Show only runs for this input file")
	return cmd
}
