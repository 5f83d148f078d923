// Package disposition decides what happens to a single inbound file: promote
// it, quarantine it, mark it empty, or leave it alone. Moving promoted files
// out of the inbound folder is deliberately not done here; the caller defers
// those moves until the folder's Bronze rows are safely written.
package disposition

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"ingot/internal/configstore"
	"ingot/internal/fileutil"
	"ingot/internal/ingest"
	"ingot/internal/schema"
	"ingot/internal/tabular"
	"ingot/internal/transform"
)

// Kind classifies the outcome for one file.
type Kind string

const (
	// KindPromoted means the file validated and its Bronze rows are staged in
	// Outcome.Result. The file itself still sits in the inbound folder.
	KindPromoted Kind = "promoted"
	// KindQuarantined means the header failed validation and the file was
	// renamed and moved to the error folder.
	KindQuarantined Kind = "quarantined"
	// KindEmpty means the file had a header but no data rows. It is renamed
	// in place so the next run skips it.
	KindEmpty Kind = "empty"
	// KindIgnored means the file is not a data file and was left untouched.
	KindIgnored Kind = "ignored"
	// KindFailed means the file could not be processed. Err carries the cause.
	KindFailed Kind = "failed"
)

// EmptyTag is inserted into the name of an empty inbound file.
const EmptyTag = "Empty"

// QuarantineTag prefixes the issue tags in a quarantined file's name.
const QuarantineTag = "InvalidColumnHeader"

// Options carry the per-file context for Evaluate.
type Options struct {
	Source           string
	ExecutionGUID    string
	DefaultDelimiter rune
	// ErrorDir is the source's quarantine folder.
	ErrorDir string
	Now      time.Time
}

// Outcome is the result of evaluating one inbound file.
type Outcome struct {
	Kind Kind
	// Path is where the file now lives: unchanged for promoted and ignored
	// files, the post-rename location for empty and quarantined ones.
	Path string
	// Issue is the schema violation tag for quarantined files.
	Issue string
	// Messages are the human diagnostics behind a quarantine.
	Messages []string
	// Result holds the staged Bronze rows of a promoted file.
	Result *transform.Result
	// RowCount mirrors Result.RowCount, zero for empty files.
	RowCount int
	Err      error
}

// IsDataFile reports whether name looks like an inbound data file. Only
// these participate in validation; everything else in the folder is ignored.
// Files already tagged by a previous run do not re-enter the pipeline.
func IsDataFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
	default:
		return false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return !strings.HasSuffix(base, "."+EmptyTag) && !previouslyQuarantined(base)
}

func previouslyQuarantined(base string) bool {
	for _, tag := range []string{schema.IssueExtra, schema.IssueMissing} {
		if strings.HasSuffix(base, "."+tag) {
			return true
		}
	}
	return false
}

// Evaluate reads and validates one inbound file. Quarantine and empty
// renames happen immediately; promoted files stay in place with their Bronze
// rows staged in the outcome.
func Evaluate(path string, fc configstore.FileConfig, columns []configstore.ColumnConfig, opts Options) Outcome {
	name := filepath.Base(path)
	if !IsDataFile(name) {
		return Outcome{Kind: KindIgnored, Path: path, RowCount: -1}
	}

	tbl, err := tabular.ReadFile(path, fc.DelimiterRune(opts.DefaultDelimiter), fc.TextQualifier)
	if err != nil {
		return Outcome{
			Kind: KindFailed, Path: path, RowCount: -1,
			Err: ingest.Wrap(ingest.ErrIO, opts.Source, "read", name, err),
		}
	}

	if tbl.Empty() {
		target := filepath.Join(filepath.Dir(path), taggedName(name, EmptyTag))
		if err := fileutil.MoveFile(path, target); err != nil {
			return Outcome{
				Kind: KindFailed, Path: path, RowCount: -1,
				Err: ingest.Wrap(ingest.ErrIO, opts.Source, "rename empty", name, err),
			}
		}
		return Outcome{Kind: KindEmpty, Path: target}
	}

	expected := configstore.ExpectedHeader(columns)
	if res := schema.Validate(tbl.Columns, expected); !res.OK() {
		tagged := taggedName(name, QuarantineTag+"."+res.Issue())
		target := filepath.Join(opts.ErrorDir, tagged)
		if err := fileutil.MoveFile(path, target); err != nil {
			return Outcome{
				Kind: KindFailed, Path: path, RowCount: -1,
				Err: ingest.Wrap(ingest.ErrIO, opts.Source, "quarantine", name, err),
			}
		}
		return Outcome{
			Kind: KindQuarantined, Path: target,
			Issue: res.Issue(), Messages: res.Messages(),
			RowCount: len(tbl.Rows),
		}
	}

	result, err := transform.Apply(tbl, columns, transform.Options{
		ExecutionGUID: opts.ExecutionGUID,
		Source:        opts.Source,
		SourceFile:    name,
		Now:           opts.Now,
	})
	if err != nil {
		return Outcome{Kind: KindFailed, Path: path, RowCount: -1, Err: err}
	}
	return Outcome{Kind: KindPromoted, Path: path, Result: result, RowCount: result.RowCount}
}

// taggedName inserts tag between the base name and the extension, keeping
// the extension so the file stays recognizable in a directory listing.
func taggedName(name, tag string) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s.%s%s", strings.TrimSuffix(name, ext), tag, ext)
}
