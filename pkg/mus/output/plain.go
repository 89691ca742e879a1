package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jamesainslie/mus/pkg/mus/types"
)

// PlainFormatter formats the failed files as an aligned table followed by a
// one-line summary. No colors or styling are applied.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	failures := r.Failures()
	if len(failures) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

		if _, err := tw.Write([]byte("STATUS\tSIZE\tPATH\tCAUSE\n")); err != nil {
			return err
		}
		for _, file := range failures {
			if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", file.Status, file.SizeHuman, file.RelPath, file.Cause); err != nil {
				return err
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "%d files, %d ok, %d failed, %d missing, %s in %s\n",
		r.Status.TotalFiles, r.Status.DoneOK, r.Status.DoneKO, r.Status.DoneMissing,
		types.FormatSize(r.Status.ProcessedBytes), types.FormatSeconds(r.Status.ElapsedSeconds))

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
