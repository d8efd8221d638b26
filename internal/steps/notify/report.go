package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"tideflow/internal/pipefile"
)

// Report carries everything the notification body needs about a finished run.
type Report struct {
	PipelineName string
	InputFile    string
	HandlerID    string
	Result       string
	Error        string
	Elapsed      time.Duration
	Files        *pipefile.Collection
}

// Subject renders the notification subject line.
func (r Report) Subject() string {
	return fmt.Sprintf("[%s] %s: %s", r.PipelineName, r.Result, r.InputFile)
}

// Body renders the plain-text notification body, with the per-file outcomes
// laid out as a table.
func (r Report) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline: %s\n", r.PipelineName)
	fmt.Fprintf(&b, "Input file: %s\n", r.InputFile)
	fmt.Fprintf(&b, "Handler: %s\n", r.HandlerID)
	fmt.Fprintf(&b, "Result: %s\n", r.Result)
	fmt.Fprintf(&b, "Elapsed: %s\n", r.Elapsed.Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	}
	if r.Files != nil && r.Files.Len() > 0 {
		b.WriteString("\n")
		b.WriteString(fileTable(r.Files))
		b.WriteString("\n")
	}
	return b.String()
}

func fileTable(files *pipefile.Collection) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"File", "Publish Type", "Check", "Stored", "Harvested", "Archived", "Error"})
	for _, f := range files.Files() {
		tw.AppendRow(table.Row{
			f.Name,
			f.PublishType().String(),
			checkOutcome(f),
			yesNo(f.IsStored),
			yesNo(f.IsHarvested),
			yesNo(f.IsArchived),
			f.PublishError,
		})
	}
	return tw.Render()
}

func checkOutcome(f *pipefile.File) string {
	switch {
	case !f.IsChecked():
		return "-"
	case f.CheckPassed():
		return "pass"
	default:
		return "fail"
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
