package output

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/jamesainslie/mus/pkg/mus/types"
)

// jsonOutput represents the full JSON output structure.
type jsonOutput struct {
	Files   []FileResult `json:"files"`
	Summary jsonSummary  `json:"summary"`
	Meta    jsonMeta     `json:"meta"`
}

// jsonSummary holds the run totals.
type jsonSummary struct {
	TotalFiles     int    `json:"total_files"`
	TotalBytes     int64  `json:"total_bytes"`
	ProcessedBytes int64  `json:"processed_bytes"`
	OK             int    `json:"ok"`
	Failed         int    `json:"failed"`
	Missing        int    `json:"missing"`
	BytesPerSecond int64  `json:"bytes_per_second"`
	Elapsed        string `json:"elapsed"`
}

// jsonMeta describes the run.
type jsonMeta struct {
	Mode        string   `json:"mode"`
	Source      string   `json:"source"`
	Manifest    []string `json:"manifest,omitempty"`
	Algorithm   string   `json:"algorithm"`
	State       string   `json:"state"`
	Succeeded   bool     `json:"succeeded"`
	Warnings    []string `json:"warnings,omitempty"`
	Interrupted bool     `json:"interrupted"`
}

func buildSummary(r *Report) jsonSummary {
	return jsonSummary{
		TotalFiles:     r.Status.TotalFiles,
		TotalBytes:     r.Status.TotalBytes,
		ProcessedBytes: r.Status.ProcessedBytes,
		OK:             r.Status.DoneOK,
		Failed:         r.Status.DoneKO,
		Missing:        r.Status.DoneMissing,
		BytesPerSecond: r.Status.BytesPerSecond,
		Elapsed:        types.FormatSeconds(r.Status.ElapsedSeconds),
	}
}

func buildMeta(r *Report) jsonMeta {
	return jsonMeta{
		Mode:        r.Mode,
		Source:      r.Source,
		Manifest:    r.Manifest,
		Algorithm:   r.Algorithm,
		State:       r.Status.State.String(),
		Succeeded:   r.Succeeded(),
		Warnings:    r.Warnings,
		Interrupted: r.Interrupted,
	}
}

// JSONFormatter formats a report as a single indented JSON object with
// files, summary and meta sections.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	files := r.Files
	if files == nil {
		files = []FileResult{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonOutput{
		Files:   files,
		Summary: buildSummary(r),
		Meta:    buildMeta(r),
	})
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)

// JSONLFormatter writes one compact JSON object per file, for streaming
// into tools like jq.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Report) error {
	for _, file := range r.Files {
		data, err := json.Marshal(file)
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("jsonl", func() Formatter {
		return &JSONLFormatter{}
	})
}

// Ensure JSONLFormatter implements Formatter.
var _ Formatter = (*JSONLFormatter)(nil)
