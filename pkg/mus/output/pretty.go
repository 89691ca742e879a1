package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jamesainslie/mus/pkg/mus/types"
)

// PrettyFormatter formats a report with colors and styling using lipgloss.
// Only failed files are listed; corrupted and missing files are grouped
// separately.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	corrupted, missing := r.Corrupted(), r.Missing()
	if len(corrupted) == 0 && len(missing) == 0 {
		w.WriteString(SuccessStyle.Render(fmt.Sprintf("  All %d files OK", r.Status.DoneOK)))
		w.WriteString("\n")
	}
	if len(corrupted) > 0 {
		w.WriteString(f.formatSection("Corrupted", corrupted, true))
	}
	if len(missing) > 0 {
		w.WriteString(f.formatSection("Missing", missing, false))
	}

	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}

	return nil
}

// formatHeader builds the header box with run metadata.
func (f *PrettyFormatter) formatHeader(r *Report) string {
	var lines []string

	title := "Verification"
	if r.Mode == types.ModeGenerate.String() {
		title = "Generation"
	}
	lines = append(lines, TitleStyle.Render(title))
	lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Source:"), ValueStyle.Render(r.Source)))

	for _, m := range r.Manifest {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Manifest:"), ValueStyle.Render(m)))
	}

	info := fmt.Sprintf("%s %s  %s %s",
		LabelStyle.Render("Algorithm:"), ValueStyle.Render(r.Algorithm),
		LabelStyle.Render("Hashed:"), ValueStyle.Render(fmt.Sprintf("%s in %s",
			types.FormatSize(r.Status.ProcessedBytes), types.FormatSeconds(r.Status.ElapsedSeconds))),
	)
	lines = append(lines, info)

	if r.Interrupted {
		lines = append(lines, WarningStyle.Bold(true).Render("Run interrupted by user"))
	}

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// formatSection lists failed files under a title.
func (f *PrettyFormatter) formatSection(title string, files []FileResult, withCause bool) string {
	var sb strings.Builder

	sb.WriteString(ErrorStyle.Bold(true).Render(fmt.Sprintf("%s (%d)", title, len(files))))
	sb.WriteString("\n")

	maxSizeWidth := 8
	for _, file := range files {
		maxSizeWidth = max(maxSizeWidth, len(file.SizeHuman))
	}

	for _, file := range files {
		sizeStr := SizeStyle.Render(padLeft(file.SizeHuman, maxSizeWidth))
		sb.WriteString(fmt.Sprintf("  %s  %s\n", sizeStr, PathStyle.Render(file.RelPath)))
		if withCause && file.Cause != "" {
			sb.WriteString(MutedStyle.Render(fmt.Sprintf("  %s  %s", strings.Repeat(" ", maxSizeWidth), file.Cause)))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// formatFooter builds the footer box with totals.
func (f *PrettyFormatter) formatFooter(r *Report) string {
	box := FooterBox
	if !r.Succeeded() {
		box = box.BorderForeground(ColorDanger)
	}

	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Files:"), ValueStyle.Render(fmt.Sprintf("%d", r.Status.TotalFiles))),
		fmt.Sprintf("%s %s", LabelStyle.Render("OK:"), SuccessStyle.Render(fmt.Sprintf("%d", r.Status.DoneOK))),
	}
	if r.Status.DoneKO > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Failed:"), ErrorStyle.Render(fmt.Sprintf("%d", r.Status.DoneKO))))
	}
	if r.Status.DoneMissing > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Missing:"), ErrorStyle.Render(fmt.Sprintf("%d", r.Status.DoneMissing))))
	}
	parts = append(parts,
		fmt.Sprintf("%s %s", LabelStyle.Render("Total:"), SizeStyle.Render(types.FormatSize(r.TotalSize()))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Speed:"), ValueStyle.Render(types.FormatSpeed(r.Status.BytesPerSecond))),
	)

	return box.Render(strings.Join(parts, "  "))
}

// formatWarnings builds a warning block.
func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder

	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")

	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}

	return sb.String()
}

// padLeft pads a string with spaces on the left to achieve the desired width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
