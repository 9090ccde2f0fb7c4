package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/specmatch/specmatch/internal/spectrum"
)

// MSPReader provides streaming access to NIST MSP format spectral
// libraries: a block of "Key: value" headers, a "Num Peaks:" count, then
// mass/intensity pairs separated by semicolons or newlines.
type MSPReader struct {
	scanner *bufio.Scanner
	lineNum int
	seq     int
	current *spectrum.Spectrum
	err     error
}

// NewMSPReader creates a new MSP reader
func NewMSPReader(r io.Reader) *MSPReader {
	return &MSPReader{scanner: bufio.NewScanner(r)}
}

// Next advances to the next spectrum. Returns false when no more spectra or error.
func (r *MSPReader) Next() bool {
	r.current = nil

	spec, err := r.readSpectrum()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.current = spec
	return true
}

// Spectrum returns the current spectrum
func (r *MSPReader) Spectrum() *spectrum.Spectrum {
	return r.current
}

// Err returns any error encountered during reading
func (r *MSPReader) Err() error {
	return r.err
}

// readSpectrum reads a single spectrum entry from the MSP file
func (r *MSPReader) readSpectrum() (*spectrum.Spectrum, error) {
	meta := spectrum.Metadata{}
	var peaks []spectrum.Peak
	var numPeaks int
	inPeaks := false
	sawHeader := false

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip empty lines between entries
		if line == "" {
			if inPeaks {
				break
			}
			continue
		}

		if !inPeaks {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, fmt.Errorf("line %d: malformed header %q", r.lineNum, line)
			}
			value = strings.TrimSpace(value)
			sawHeader = true

			switch strings.ToLower(strings.TrimSpace(key)) {
			case "name":
				meta.Name = value
			case "comment", "comments":
				meta.Source = value
			case "retention_time", "retentiontime", "rt":
				if rt, err := strconv.ParseFloat(value, 64); err == nil {
					meta.RetentionTime = rt
				}
			case "num peaks", "numpeaks":
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid num peaks: %w", r.lineNum, err)
				}
				numPeaks = n
				inPeaks = true
			}
			continue
		}

		// Peak lines: "mass intensity" pairs, optionally several per line
		// separated by semicolons.
		for _, pair := range strings.Split(line, ";") {
			fields := strings.Fields(strings.TrimSpace(pair))
			if len(fields) == 0 {
				continue
			}
			if len(fields) < 2 {
				return nil, fmt.Errorf("line %d: malformed peak %q", r.lineNum, pair)
			}
			mass, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid peak mass %q: %w", r.lineNum, fields[0], err)
			}
			intensity, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid peak intensity %q: %w", r.lineNum, fields[1], err)
			}
			peaks = append(peaks, spectrum.Peak{Mass: mass, Intensity: intensity})
		}

		if len(peaks) >= numPeaks {
			break
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, io.EOF
	}
	if len(peaks) < numPeaks {
		return nil, fmt.Errorf("line %d: expected %d peaks, got %d", r.lineNum, numPeaks, len(peaks))
	}

	r.seq++
	id := meta.Name
	if id == "" {
		id = fmt.Sprintf("msp-%d", r.seq)
	}
	meta.ScanIndex = r.seq

	return spectrum.New(id, peaks, meta)
}
