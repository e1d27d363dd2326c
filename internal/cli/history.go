package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/specialistvlad/incrbuild/internal/executor"
	"github.com/specialistvlad/incrbuild/internal/history"
)

func printHistory(w io.Writer, runs []history.Run, now time.Time) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tMODE\tNEW\tCHANGED\tDELETED\tACTIONS\tFAILED\tEXIT\tCOMMITTED")
	for _, r := range runs {
		failed := 0
		for _, a := range r.Actions {
			if !executor.Outcome(a.Outcome).Succeeded() {
				failed++
			}
		}
		committed := "no"
		if r.ManifestCommitted {
			committed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			shortID(r.ID),
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Mode,
			r.NewFiles, r.ChangedFiles, r.DeletedFiles,
			len(r.Actions), failed,
			r.ExitCode,
			committed,
		)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
