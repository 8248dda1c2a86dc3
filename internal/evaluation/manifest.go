package evaluation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Manifest lists photos with the values a scan should extract from them
type Manifest struct {
	Entries []Entry `yaml:"entries"`
}

// Entry is one photo. Image paths are relative to the manifest file.
type Entry struct {
	Image    string            `yaml:"image"`
	Step     string            `yaml:"step"`
	Expected map[string]string `yaml:"expected"`
}

// EntryResult scores one manifest entry
type EntryResult struct {
	Image  string       `yaml:"image"`
	Step   string       `yaml:"step"`
	Error  string       `yaml:"error,omitempty"`
	Scores []FieldScore `yaml:"scores,omitempty"`
}

// RunReport is the output of Run
type RunReport struct {
	Entries []EntryResult `yaml:"entries"`
	Failed  int           `yaml:"failed"`
	Summary Report        `yaml:"summary"`
}

// ScanFunc extracts field values from one photo
type ScanFunc func(ctx context.Context, image []byte, step string) (map[string]string, error)

// LoadManifest reads a YAML manifest and resolves image paths
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	base := filepath.Dir(path)
	for i := range m.Entries {
		e := &m.Entries[i]
		if e.Image == "" || e.Step == "" {
			return nil, fmt.Errorf("entry %d: image and step are required", i+1)
		}
		if !filepath.IsAbs(e.Image) {
			e.Image = filepath.Join(base, e.Image)
		}
	}
	return &m, nil
}

// Run scans every entry and compares the expected fields. A failed scan
// scores each expected field against an empty value.
func Run(ctx context.Context, m *Manifest, scan ScanFunc) (*RunReport, error) {
	report := &RunReport{Entries: make([]EntryResult, 0, len(m.Entries))}
	var all []FieldScore

	for _, e := range m.Entries {
		data, err := os.ReadFile(e.Image)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Image, err)
		}

		res := EntryResult{Image: e.Image, Step: e.Step}
		got, err := scan(ctx, data, e.Step)
		if err != nil {
			res.Error = err.Error()
			report.Failed++
		}
		for _, field := range sortedKeys(e.Expected) {
			s := Compare(field, e.Expected[field], got[field])
			res.Scores = append(res.Scores, s)
			all = append(all, s)
		}
		report.Entries = append(report.Entries, res)
	}

	report.Summary = Summarize(all)
	report.Summary.Fields = nil
	return report, nil
}

// FormatPrice renders a price the way extracted prices are compared
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

// WriteYAML encodes v as YAML
func WriteYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if path == "" || path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
