// Package transform turns a validated inbound table into Bronze rows:
// duplicate rows collapse keep-last, per-column expressions run against the
// raw values, file columns rename to their bronze names, and the standard
// lineage columns are stamped on every row.
package transform

import (
	"sort"
	"strings"
	"time"

	"ingot/internal/configstore"
	"ingot/internal/expr"
	"ingot/internal/ingest"
	"ingot/internal/tabular"
)

// Standard lineage columns appended to every Bronze row.
const (
	ColumnExecutionGUID  = "ExecutionGUID"
	ColumnIngestDatetime = "IngestDatetime"
	ColumnSource         = "Source"
	ColumnSourceFile     = "SourceFile"
)

// StandardColumns in their destination order.
var StandardColumns = []string{
	ColumnExecutionGUID,
	ColumnIngestDatetime,
	ColumnSource,
	ColumnSourceFile,
}

// Options carry the per-file constants stamped onto every output row.
type Options struct {
	ExecutionGUID string
	Source        string
	SourceFile    string
	Now           time.Time
}

// Result is the Bronze-shaped output of one file.
type Result struct {
	Columns []string
	Rows    [][]string
	// RowCount is the number of rows surviving de-duplication. It is the
	// count reported to the audit log.
	RowCount int
}

// Apply maps a validated file table onto the Bronze schema for its source.
// Expression failures are ingest.ErrTransformation, which aborts promotion
// for the whole folder.
func Apply(tbl *tabular.Table, columns []configstore.ColumnConfig, opts Options) (*Result, error) {
	rows := dedupKeepLast(tbl.Columns, tbl.Rows)

	exprs, err := compile(columns, opts.Source)
	if err != nil {
		return nil, err
	}
	rename := configstore.BronzeRename(columns)
	outCols := destinationColumns(configstore.BronzeColumns(columns))

	stamp := map[string]string{
		ColumnExecutionGUID:  opts.ExecutionGUID,
		ColumnIngestDatetime: opts.Now.Format(expr.TimestampLayout),
		ColumnSource:         opts.Source,
		ColumnSourceFile:     opts.SourceFile,
	}

	outRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		fields := make(map[string]string, len(tbl.Columns))
		for i, name := range tbl.Columns {
			fields[name] = tabular.Value(row, i)
		}

		values := make(map[string]string, len(outCols))
		for file, bronze := range rename {
			values[bronze] = fields[file]
		}
		env := expr.Env{Fields: fields, Now: opts.Now}
		for bronze, ex := range exprs {
			v, err := ex.Eval(env)
			if err != nil {
				return nil, ingest.Wrap(ingest.ErrTransformation, opts.Source, bronze, opts.SourceFile, err)
			}
			values[bronze] = v
		}
		for name, v := range stamp {
			values[name] = v
		}

		out := make([]string, len(outCols))
		for i, name := range outCols {
			out[i] = values[name]
		}
		outRows = append(outRows, out)
	}

	return &Result{Columns: outCols, Rows: outRows, RowCount: len(rows)}, nil
}

// ContentKey serializes a row for duplicate detection, skipping the per-run
// stamps ExecutionGUID and IngestDatetime so re-ingesting the same data on a
// later run still matches. The key is column-order independent.
func ContentKey(columns, row []string) string {
	pairs := make([]string, 0, len(columns))
	for i, name := range columns {
		if name == ColumnExecutionGUID || name == ColumnIngestDatetime {
			continue
		}
		pairs = append(pairs, name+"\x1f"+tabular.Value(row, i))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\x1e")
}

// dedupKeepLast collapses identical rows, keeping the final occurrence in its
// original relative position. Providers append corrections at the bottom of
// re-sent files, so the last copy is the authoritative one.
func dedupKeepLast(columns []string, rows [][]string) [][]string {
	lastAt := make(map[string]int, len(rows))
	for i, row := range rows {
		lastAt[ContentKey(columns, row)] = i
	}
	out := make([][]string, 0, len(lastAt))
	for i, row := range rows {
		if lastAt[ContentKey(columns, row)] == i {
			out = append(out, row)
		}
	}
	return out
}

func compile(columns []configstore.ColumnConfig, source string) (map[string]*expr.Expr, error) {
	srcs := configstore.Transformations(columns)
	exprs := make(map[string]*expr.Expr, len(srcs))
	for bronze, src := range srcs {
		ex, err := expr.Compile(src)
		if err != nil {
			return nil, ingest.Wrap(ingest.ErrTransformation, source, bronze, "", err)
		}
		exprs[bronze] = ex
	}
	return exprs, nil
}

func destinationColumns(bronze []string) []string {
	out := make([]string, 0, len(bronze)+len(StandardColumns))
	seen := make(map[string]bool, len(bronze))
	for _, name := range bronze {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, name := range StandardColumns {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
