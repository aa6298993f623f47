// Package catalog loads the per-area journal catalog CSV files that
// drive a crawl run.
package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/scholarpipe/indexer/internal/ids"
	"github.com/scholarpipe/indexer/internal/record"
)

// LoadRows reads one catalog CSV into header-keyed rows. Every row gets
// a library column, defaulting to defaultLibrary when the file omits it.
func LoadRows(path, defaultLibrary string) ([]record.CSVRow, error) {
	handle, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer handle.Close()

	reader := csv.NewReader(handle)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	rows := make([]record.CSVRow, 0, len(records)-1)
	for _, fields := range records[1:] {
		row := make(record.CSVRow, len(header))
		for i, name := range header {
			if i < len(fields) {
				row[name] = fields[i]
			}
		}
		if row["library"] == "" {
			row["library"] = defaultLibrary
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteRows writes rows back out with the given column order.
func WriteRows(path string, header []string, rows []record.CSVRow) error {
	handle, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create catalog %s: %w", path, err)
	}
	defer handle.Close()

	writer := csv.NewWriter(handle)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write catalog header: %w", err)
	}
	for _, row := range rows {
		fields := make([]string, len(header))
		for i, name := range header {
			fields[i] = row[name]
		}
		if err := writer.Write(fields); err != nil {
			return fmt.Errorf("write catalog row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush catalog %s: %w", path, err)
	}
	return nil
}

// JournalID resolves a row's journal id: the native id column when it
// parses, else a stable hash of the ISSN, else of the title. Returns
// false for rows with nothing to key on.
func JournalID(row record.CSVRow) (int64, bool) {
	if id, ok := ids.ParseInt64(row["id"]); ok && id != 0 {
		return id, true
	}
	if issn := row["issn"]; issn != "" {
		return ids.StableID("issn", issn), true
	}
	if title := row["title"]; title != "" {
		return ids.StableID("title", title), true
	}
	return 0, false
}

// Discover lists the catalog CSV paths for a run: the single named file
// when file is non-empty, otherwise every .csv in dir, sorted.
func Discover(dir, file string) ([]string, error) {
	if file != "" {
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("catalog not found: %s", path)
		}
		return []string{path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list catalogs in %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}
