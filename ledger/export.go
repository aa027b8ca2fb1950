package ledger

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var ErrUnknownFormat = errors.New("unknown export format")

var csvHeader = []string{"timestamp", "class_name", "total_so_far"}

// ExportError reports a failed export. The ledger itself is unchanged.
type ExportError struct {
	Format Format
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s to %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Export writes the current history (and totals, for JSON) to path.
func (l *Ledger) Export(format Format, path string) error {
	switch format {
	case FormatCSV:
		return l.ExportCSV(path)
	case FormatJSON:
		return l.ExportJSON(path)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func (l *Ledger) ExportCSV(path string) error {
	_, history := l.snapshot()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := make([][]string, 0, len(history)+1)
	rows = append(rows, csvHeader)
	for _, r := range history {
		rows = append(rows, []string{
			r.Timestamp.Format(time.RFC3339Nano),
			r.ClassName,
			strconv.Itoa(r.TotalSoFar),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return &ExportError{Format: FormatCSV, Path: path, Err: err}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return &ExportError{Format: FormatCSV, Path: path, Err: err}
	}
	return nil
}

type jsonExport struct {
	Totals  map[string]int `json:"totals"`
	History []jsonRecord   `json:"history"`
}

type jsonRecord struct {
	Timestamp  string `json:"timestamp"`
	ClassName  string `json:"class_name"`
	TotalSoFar int    `json:"total_so_far"`
}

func (l *Ledger) ExportJSON(path string) error {
	totals, history := l.snapshot()

	out := jsonExport{
		Totals:  totals,
		History: make([]jsonRecord, 0, len(history)),
	}
	for _, r := range history {
		out.History = append(out.History, jsonRecord{
			Timestamp:  r.Timestamp.Format(time.RFC3339Nano),
			ClassName:  r.ClassName,
			TotalSoFar: r.TotalSoFar,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return &ExportError{Format: FormatJSON, Path: path, Err: err}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return &ExportError{Format: FormatJSON, Path: path, Err: err}
	}
	return nil
}
