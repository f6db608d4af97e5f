package metrics

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultCSVPath matches the dashboard's historical metrics file.
const DefaultCSVPath = "data/metrics/metrics.csv"

var csvHeader = []string{"timestamp", "model", "identity", "latency", "response_length", "estimated_cost", "status", "run_id", "objective"}

// CSVSink appends records to a CSV file. Timestamps are unix seconds with
// fractional part and latency is in seconds.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

func NewCSVSink(path string) (*CSVSink, error) {
	if path == "" {
		path = DefaultCSVPath
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create metrics directory: %w", err)
		}
	}
	return &CSVSink{path: path}, nil
}

func (s *CSVSink) Write(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, r := range records {
		if err := w.Write(encodeCSV(r)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *CSVSink) Query(_ context.Context, flt Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	var out []Record
	line := 0
	for {
		row, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && len(row) > 0 && row[0] == csvHeader[0] {
			continue
		}
		rec, err := decodeCSV(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", s.path, line, err)
		}
		if !flt.Match(rec) {
			continue
		}
		out = append(out, rec)
		if flt.Limit > 0 && len(out) == flt.Limit {
			break
		}
	}
	return out, nil
}

func (s *CSVSink) Close() error { return nil }

func encodeCSV(r Record) []string {
	return []string{
		formatUnix(r.Timestamp),
		r.ModelID,
		r.Identity,
		strconv.FormatFloat(r.Latency.Seconds(), 'f', 6, 64),
		strconv.Itoa(r.ResponseLength),
		strconv.FormatFloat(r.EstimatedCost, 'f', -1, 64),
		r.Status,
		r.RunID,
		r.Objective,
	}
}

// decodeCSV accepts legacy rows with only four columns
// (timestamp, model, latency, response_length) as well as the full layout.
func decodeCSV(row []string) (Record, error) {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	if len(row) == 4 {
		row = []string{row[0], row[1], "", row[2], row[3]}
	}
	if len(row) < 5 {
		return Record{}, fmt.Errorf("expected at least 5 columns, got %d", len(row))
	}
	ts, err := parseUnix(get(0))
	if err != nil {
		return Record{}, fmt.Errorf("timestamp: %w", err)
	}
	lat, err := strconv.ParseFloat(get(3), 64)
	if err != nil {
		return Record{}, fmt.Errorf("latency: %w", err)
	}
	n, err := strconv.Atoi(get(4))
	if err != nil {
		return Record{}, fmt.Errorf("response_length: %w", err)
	}
	var cost float64
	if v := get(5); v != "" {
		if cost, err = strconv.ParseFloat(v, 64); err != nil {
			return Record{}, fmt.Errorf("estimated_cost: %w", err)
		}
	}
	return Record{
		Timestamp:      ts,
		ModelID:        get(1),
		Identity:       get(2),
		Latency:        time.Duration(lat * float64(time.Second)).Round(time.Microsecond),
		ResponseLength: n,
		EstimatedCost:  cost,
		Status:         get(6),
		RunID:          get(7),
		Objective:      get(8),
	}, nil
}

func formatUnix(t time.Time) string {
	us := t.UnixMicro()
	return fmt.Sprintf("%d.%06d", us/1e6, us%1e6)
}

// parseUnix reads "seconds[.fraction]" without going through float64.
func parseUnix(v string) (time.Time, error) {
	secPart, fracPart, _ := strings.Cut(strings.TrimSpace(v), ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var nsec int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		fracPart += strings.Repeat("0", 9-len(fracPart))
		if nsec, err = strconv.ParseInt(fracPart, 10, 64); err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(sec, nsec), nil
}
