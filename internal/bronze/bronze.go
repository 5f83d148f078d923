// Package bronze maintains the append-only Bronze data files, one per
// source, pipe-delimited with a fixed header.
package bronze

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ingot/internal/ingest"
	"ingot/internal/schema"
	"ingot/internal/tabular"
	"ingot/internal/transform"
)

// Delimiter of Bronze data files.
const Delimiter = '|'

// Store appends rows to per-source Bronze data files under dir.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// FilePath returns the Bronze data file for source.
func (s *Store) FilePath(source string) string {
	return filepath.Join(s.dir, fmt.Sprintf("Bronze.%s.txt", source))
}

// Append writes rows to the source's Bronze file, creating it with the given
// header on first use. Rows whose content already exists in the file are
// dropped, so re-running over an already promoted file cannot duplicate data.
// Returns the number of rows actually written.
func (s *Store) Append(source string, columns []string, rows [][]string) (int, error) {
	path := s.FilePath(source)

	existing := map[string]bool{}
	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return 0, ingest.Wrap(ingest.ErrIO, source, "bronze", s.dir, err)
		}
		if err := tabular.WriteHeader(path, Delimiter, columns); err != nil {
			return 0, ingest.Wrap(ingest.ErrIO, source, "bronze", path, err)
		}
	case err != nil:
		return 0, ingest.Wrap(ingest.ErrIO, source, "bronze", path, err)
	default:
		tbl, err := tabular.ReadFile(path, Delimiter, "")
		if err != nil {
			return 0, ingest.Wrap(ingest.ErrIO, source, "bronze", path, err)
		}
		if res := schema.Validate(tbl.Columns, columns); !res.OK() {
			return 0, ingest.Wrap(ingest.ErrSchemaMismatch, source, "bronze",
				fmt.Sprintf("%s: %s", path, strings.Join(res.Messages(), "; ")), nil)
		}
		for _, row := range tbl.Rows {
			existing[transform.ContentKey(tbl.Columns, row)] = true
		}
	}

	fresh := make([][]string, 0, len(rows))
	for _, row := range rows {
		key := transform.ContentKey(columns, row)
		if existing[key] {
			continue
		}
		existing[key] = true
		fresh = append(fresh, row)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := tabular.AppendRows(path, Delimiter, fresh); err != nil {
		return 0, ingest.Wrap(ingest.ErrIO, source, "bronze", path, err)
	}
	return len(fresh), nil
}
