package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// TSVFormatter formats every file as tab-separated values.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString("STATUS\tSIZE\tDIGEST\tPATH\n")

	for _, file := range r.Files {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", file.Status, file.Size, file.Digest, file.RelPath)
	}

	return nil
}

func init() {
	Register("tsv", func() Formatter {
		return &TSVFormatter{}
	})
}

// Ensure TSVFormatter implements Formatter.
var _ Formatter = (*TSVFormatter)(nil)

// CSVFormatter formats every file as RFC 4180 comma-separated values.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Report) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"STATUS", "SIZE", "DIGEST", "PATH", "CAUSE"}); err != nil {
		return err
	}

	for _, file := range r.Files {
		row := []string{string(file.Status), strconv.FormatInt(file.Size, 10), file.Digest, file.RelPath, file.Cause}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

// Ensure CSVFormatter implements Formatter.
var _ Formatter = (*CSVFormatter)(nil)

// MarkdownFormatter formats the failed files as a GitHub-flavored Markdown table.
type MarkdownFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString("| STATUS | SIZE | PATH | CAUSE |\n")
	w.WriteString("|--------|------|------|-------|\n")

	for _, file := range r.Failures() {
		fmt.Fprintf(w, "| %s | %s | %s | %s |\n",
			file.Status,
			escapeMarkdownPipe(file.SizeHuman),
			escapeMarkdownPipe(file.RelPath),
			escapeMarkdownPipe(file.Cause))
	}

	return nil
}

// escapeMarkdownPipe escapes pipe characters in a string for Markdown tables.
func escapeMarkdownPipe(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	Register("markdown", func() Formatter {
		return &MarkdownFormatter{}
	})
}

// Ensure MarkdownFormatter implements Formatter.
var _ Formatter = (*MarkdownFormatter)(nil)
