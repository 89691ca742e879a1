package output

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// yamlOutput mirrors jsonOutput.
type yamlOutput struct {
	Files   []FileResult `yaml:"files"`
	Summary yamlSummary  `yaml:"summary"`
	Meta    yamlMeta     `yaml:"meta"`
}

type yamlSummary struct {
	TotalFiles     int    `yaml:"total_files"`
	TotalBytes     int64  `yaml:"total_bytes"`
	ProcessedBytes int64  `yaml:"processed_bytes"`
	OK             int    `yaml:"ok"`
	Failed         int    `yaml:"failed"`
	Missing        int    `yaml:"missing"`
	BytesPerSecond int64  `yaml:"bytes_per_second"`
	Elapsed        string `yaml:"elapsed"`
}

type yamlMeta struct {
	Mode        string   `yaml:"mode"`
	Source      string   `yaml:"source"`
	Manifest    []string `yaml:"manifest,omitempty"`
	Algorithm   string   `yaml:"algorithm"`
	State       string   `yaml:"state"`
	Succeeded   bool     `yaml:"succeeded"`
	Warnings    []string `yaml:"warnings,omitempty"`
	Interrupted bool     `yaml:"interrupted"`
}

// YAMLFormatter formats output as YAML.
// It produces the same structure as JSONFormatter but in YAML format.
type YAMLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *YAMLFormatter) Format(w *bytes.Buffer, r *Report) error {
	files := r.Files
	if files == nil {
		files = []FileResult{}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(yamlOutput{
		Files:   files,
		Summary: yamlSummary(buildSummary(r)),
		Meta:    yamlMeta(buildMeta(r)),
	}); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("yaml", func() Formatter {
		return &YAMLFormatter{}
	})
}

// Ensure YAMLFormatter implements Formatter.
var _ Formatter = (*YAMLFormatter)(nil)
