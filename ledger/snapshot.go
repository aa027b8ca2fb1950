package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/khaledhikmat/vs-counter/model"
)

// SnapshotColumns are the per-class columns written by AppendSnapshot after
// the timestamp and total columns.
var SnapshotColumns = []string{"person", "bicycle", "car", "motorcycle", "bus", "truck"}

// AppendSnapshot appends one "timestamp,total,<class>..." row to the CSV at
// path, creating the file and its header when missing.
func AppendSnapshot(path string, at time.Time, counts model.Counts, names model.ClassNames) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		header := append([]string{"timestamp", "total"}, SnapshotColumns...)
		if err := w.Write(header); err != nil {
			return err
		}
	}

	row := []string{at.Format(time.RFC3339), strconv.Itoa(counts.Total())}
	for _, col := range SnapshotColumns {
		n := 0
		if id, ok := names.ID(col); ok {
			n = counts[id]
		}
		row = append(row, strconv.Itoa(n))
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// ReadSnapshots returns the newest limit rows (every row when limit is not
// positive), newest first.
func ReadSnapshots(path string, limit int) ([]map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
