package tabular

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Table is a delimited flat file held in memory: one header row and zero or
// more data rows. Rows are not padded; a short row keeps its original width.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Empty reports whether the table has no data rows.
func (t *Table) Empty() bool { return len(t.Rows) == 0 }

// Index returns a column-name to position map for the header.
func (t *Table) Index() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, name := range t.Columns {
		idx[name] = i
	}
	return idx
}

// Value returns the cell for column position pos in row, or "" when the row
// is shorter than the header.
func Value(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return row[pos]
}

// Read parses a delimited document. qualifier selects quoting behavior: an
// empty qualifier reads rows by raw splitting (the legacy no-quoting mode),
// `"` engages CSV-style quoting. Upstream providers ship files with UTF-8 or
// UTF-16 byte order marks, so the stream is BOM-decoded before parsing.
func Read(r io.Reader, delimiter rune, qualifier string) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	var records [][]string
	if qualifier == `"` {
		reader := csv.NewReader(decoded)
		reader.Comma = delimiter
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		var err error
		records, err = reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse delimited document: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(decoded)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			records = append(records, strings.Split(line, string(delimiter)))
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read delimited document: %w", err)
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("document has no header row")
	}
	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &Table{Columns: header, Rows: records[1:]}, nil
}

// ReadFile opens and parses path. See Read.
func ReadFile(path string, delimiter rune, qualifier string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, delimiter, qualifier)
}

// Line joins fields with the delimiter. No quoting is applied; callers that
// need delimiter-safe output sanitize fields first.
func Line(delimiter rune, fields []string) string {
	return strings.Join(fields, string(delimiter))
}

// WriteHeader creates path containing only the header row. The parent
// directory is created on demand.
func WriteHeader(path string, delimiter rune, columns []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(Line(delimiter, columns)+"\n"), 0o644)
}

// AppendRows appends rows to path without a header. The file must already
// exist; Bronze and log files are created with their header first and only
// ever appended to afterwards.
func AppendRows(path string, delimiter rune, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, row := range rows {
		if _, err := w.WriteString(Line(delimiter, row)); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
