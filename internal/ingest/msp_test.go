package ingest

import (
	"strings"
	"testing"
)

const sampleMSP = `Name: n-hexane
Comment: nist test
RT: 2.31
Num Peaks: 3
41 50; 43 100; 57 90

Name: toluene
Num Peaks: 2
91 100
92 70
`

// TestMSPReader tests streaming MSP parsing
func TestMSPReader(t *testing.T) {
	t.Run("ReadsAllEntries", func(t *testing.T) {
		reader := NewMSPReader(strings.NewReader(sampleMSP))

		if !reader.Next() {
			t.Fatalf("Expected first spectrum, err: %v", reader.Err())
		}
		first := reader.Spectrum()
		if first.ID() != "n-hexane" {
			t.Errorf("Expected id n-hexane, got %s", first.ID())
		}
		if first.Len() != 3 {
			t.Errorf("Expected 3 peaks, got %d", first.Len())
		}
		if first.Meta().Source != "nist test" {
			t.Errorf("Comment not mapped to source: %q", first.Meta().Source)
		}
		if first.Meta().RetentionTime != 2.31 {
			t.Errorf("Expected retention time 2.31, got %f", first.Meta().RetentionTime)
		}

		if !reader.Next() {
			t.Fatalf("Expected second spectrum, err: %v", reader.Err())
		}
		second := reader.Spectrum()
		if second.ID() != "toluene" || second.Len() != 2 {
			t.Errorf("Unexpected second spectrum %s with %d peaks", second.ID(), second.Len())
		}
		if second.Meta().ScanIndex != 2 {
			t.Errorf("Expected scan index 2, got %d", second.Meta().ScanIndex)
		}

		if reader.Next() {
			t.Error("Expected end of stream")
		}
		if reader.Err() != nil {
			t.Errorf("Unexpected error at end: %v", reader.Err())
		}
	})

	t.Run("SemicolonAndNewlinePeaks", func(t *testing.T) {
		reader := NewMSPReader(strings.NewReader(sampleMSP))
		reader.Next()
		peaks := reader.Spectrum().Peaks()
		if peaks[0].Mass != 41 || peaks[1].Mass != 43 || peaks[2].Mass != 57 {
			t.Errorf("Semicolon-separated peaks parsed wrong: %+v", peaks)
		}
	})

	t.Run("MissingNameGetsSequenceID", func(t *testing.T) {
		input := "Num Peaks: 1\n43 100\n"
		reader := NewMSPReader(strings.NewReader(input))
		if !reader.Next() {
			t.Fatalf("Expected a spectrum, err: %v", reader.Err())
		}
		if reader.Spectrum().ID() != "msp-1" {
			t.Errorf("Expected fallback id msp-1, got %s", reader.Spectrum().ID())
		}
	})

	t.Run("Empty", func(t *testing.T) {
		reader := NewMSPReader(strings.NewReader(""))
		if reader.Next() {
			t.Error("Expected no spectra")
		}
		if reader.Err() != nil {
			t.Errorf("Empty input should not error: %v", reader.Err())
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		cases := map[string]string{
			"header without colon": "Name hexane\nNum Peaks: 1\n43 100\n",
			"bad peak count":       "Name: x\nNum Peaks: two\n43 100\n",
			"bad peak mass":        "Name: x\nNum Peaks: 1\nabc 100\n",
			"truncated peaks":      "Name: x\nNum Peaks: 3\n43 100\n",
		}
		for name, input := range cases {
			reader := NewMSPReader(strings.NewReader(input))
			if reader.Next() {
				t.Errorf("%s: expected failure", name)
				continue
			}
			if reader.Err() == nil {
				t.Errorf("%s: expected error", name)
			}
		}
	})
}

// TestDetectFileFormat tests extension-based format detection
func TestDetectFileFormat(t *testing.T) {
	cases := map[string]FileFormat{
		"library.msp":     FormatMSP,
		"library.MSP":     FormatMSP,
		"export.csv":      FormatCSV,
		"export.parquet":  FormatParquet,
		"records.json":    FormatJSON,
		"records.jsonl":   FormatJSON,
		"unknown.spectra": FormatMSP,
	}
	for name, want := range cases {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %s, want %s", name, got, want)
		}
	}
}
