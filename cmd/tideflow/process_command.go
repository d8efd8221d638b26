package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"tideflow/internal/handler"
	"tideflow/internal/incoming"
	"tideflow/internal/runjournal"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <input-file>",
		Short: "Run the pipeline for one input file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			inputFile := args[0]

			claim, err := incoming.ClaimFile(inputFile)
			if err != nil {
				if errors.Is(err, incoming.ErrAlreadyClaimed) {
					return fmt.Errorf("%s is being processed by another instance", inputFile)
				}
				return err
			}
			defer func() {
				if releaseErr := claim.Release(); releaseErr != nil {
					logger.Warn("release claim", slog.String("error", releaseErr.Error()))
				}
			}()

			h, err := handler.New(inputFile, cfg, handler.Hooks{}, handler.Options{Logger: logger})
			if err != nil {
				return err
			}
			report := h.Run(cmd.Context())

			journal, err := runjournal.Open(cfg.Paths.JournalDir)
			if err != nil {
				logger.Warn("open run journal", slog.String("error", err.Error()))
			} else {
				defer journal.Close()
				if err := journal.Record(cmd.Context(), report); err != nil {
					logger.Warn("record run", slog.String("error", err.Error()))
				}
			}

			printReport(cmd, report)
			if report.Result == handler.ResultFailed {
				return fmt.Errorf("run failed: %s", report.Error)
			}
			return nil
		},
	}
}

func printReport(cmd *cobra.Command, report *handler.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pipeline:  %s\n", report.Pipeline)
	fmt.Fprintf(out, "Input:     %s\n", report.InputFile)
	fmt.Fprintf(out, "Handler:   %s\n", report.HandlerID)
	fmt.Fprintf(out, "Result:    %s\n", report.Result)
	fmt.Fprintf(out, "State:     %s\n", report.State)
	fmt.Fprintf(out, "Elapsed:   %s\n", report.Elapsed)
	if report.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", report.Error)
	}

	if report.Files != nil && report.Files.Len() > 0 {
		rows := make([][]string, 0, report.Files.Len())
		for _, f := range report.Files.Files() {
			rows = append(rows, []string{
				f.Name,
				f.PublishType().String(),
				checkCell(f.IsChecked(), f.CheckPassed()),
				boolCell(f.IsStored),
				boolCell(f.IsHarvested),
				boolCell(f.IsArchived),
				f.PublishError,
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]tableColumn{
			{title: "File"}, {title: "Publish Type"}, {title: "Check"},
			{title: "Stored"}, {title: "Harvested"}, {title: "Archived"}, {title: "Error"},
		}, rows))
	}

	if report.Notifications != nil && report.Notifications.Len() > 0 {
		rows := make([][]string, 0, report.Notifications.Len())
		for _, r := range report.Notifications.Recipients() {
			rows = append(rows, []string{r.Spec, boolCell(r.Sent), r.Error})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]tableColumn{
			{title: "Recipient"}, {title: "Sent"}, {title: "Error"},
		}, rows))
	}
}

func checkCell(checked, passed bool) string {
	switch {
	case !checked:
		return "-"
	case passed:
		return "pass"
	default:
		return "fail"
	}
}

func boolCell(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
