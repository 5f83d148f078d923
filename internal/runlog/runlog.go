package runlog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ingot/internal/ingest"
	"ingot/internal/schema"
	"ingot/internal/tabular"
)

// TimeLayout renders Begin/End timestamps.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Delimiter of the log file.
const Delimiter = '|'

// Severity values recorded in log entries.
const (
	SeverityInfo    = "Info"
	SeverityWarning = "Warning"
	SeverityError   = "Error"
)

// ResultSuccess is the Result value of a successful step.
const ResultSuccess = "Success"

// Definition is the canonical log file header.
var Definition = []string{
	"ExecutionGUID",
	"ParentExecutionGUID",
	"Begin",
	"End",
	"Severity",
	"Caller",
	"CallStack",
	"Action",
	"RowCount",
	"Source",
	"Target",
	"Result",
	"File",
	"Parameters",
}

// Entry is one audit record. RowCount below zero means "not applicable" and
// renders empty; zero is a real count.
type Entry struct {
	ExecutionGUID       string
	ParentExecutionGUID string
	Begin               time.Time
	End                 time.Time
	Severity            string
	CallStack           string
	Action              string
	RowCount            int
	Source              string
	Target              string
	Result              string
	File                string
	Params              map[string]string
}

// NewEntry starts an entry for a step beginning now, with no row count.
func NewEntry(callStack, parentGUID string) Entry {
	return Entry{
		ExecutionGUID:       uuid.NewString(),
		ParentExecutionGUID: parentGUID,
		Begin:               time.Now(),
		RowCount:            -1,
	}.withCallStack(callStack)
}

func (e Entry) withCallStack(callStack string) Entry {
	e.CallStack = callStack
	return e
}

// Recorder buffers entries for one run. Entries are written to the log file
// once, at the very end of the run, sorted by Begin so the file reads in
// chronological rather than call-return order.
type Recorder struct {
	mu      sync.Mutex
	caller  string
	entries []Entry
}

// NewRecorder creates a Recorder. caller identifies the producing program in
// the log's Caller column.
func NewRecorder(caller string) *Recorder {
	return &Recorder{caller: caller}
}

// Record finalizes and buffers an entry. Missing pieces get defaults: a
// fresh ExecutionGUID, End of now, Info severity, Success result.
func (r *Recorder) Record(e Entry) {
	if e.ExecutionGUID == "" {
		e.ExecutionGUID = uuid.NewString()
	}
	if e.Begin.IsZero() {
		e.Begin = time.Now()
	}
	if e.End.IsZero() {
		e.End = time.Now()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if e.Result == "" {
		e.Result = ResultSuccess
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Len returns the number of buffered entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns a copy of the buffered entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Flush appends all buffered entries to the log file at path, ordered by
// Begin, and clears the buffer. The log file must already exist with its
// header (see ValidateFile).
func (r *Recorder) Flush(path string) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Begin.Before(entries[j].Begin) })

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, r.row(e))
	}
	if err := tabular.AppendRows(path, Delimiter, rows); err != nil {
		return ingest.Wrap(ingest.ErrIO, "runlog", "append", path, err)
	}
	return nil
}

func (r *Recorder) row(e Entry) []string {
	rowCount := ""
	if e.RowCount >= 0 {
		rowCount = strconv.Itoa(e.RowCount)
	}
	fields := []string{
		e.ExecutionGUID,
		e.ParentExecutionGUID,
		e.Begin.Format(TimeLayout),
		e.End.Format(TimeLayout),
		e.Severity,
		r.caller,
		e.CallStack,
		e.Action,
		rowCount,
		e.Source,
		e.Target,
		e.Result,
		e.File,
		formatParams(e.Params),
	}
	for i, f := range fields {
		fields[i] = sanitize(f)
	}
	return fields
}

// ValidateFile checks the log file at path can durably record entries. A
// missing file is created with the canonical header and reported as a
// warning. A present file whose header does not match the definition is
// ingest.ErrLogFileInvalid: the run proceeds but may only report to stderr.
func ValidateFile(path string) (string, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := tabular.WriteHeader(path, Delimiter, Definition); err != nil {
			return "", ingest.Wrap(ingest.ErrLogFileInvalid, "runlog", "bootstrap", path, err)
		}
		return fmt.Sprintf("log file was not found and therefore created: %s", path), nil
	}
	if err != nil {
		return "", ingest.Wrap(ingest.ErrLogFileInvalid, "runlog", "stat", path, err)
	}

	tbl, err := tabular.ReadFile(path, Delimiter, "")
	if err != nil {
		return "", ingest.Wrap(ingest.ErrLogFileInvalid, "runlog", "read", path, err)
	}
	if res := schema.Validate(tbl.Columns, Definition); !res.OK() {
		return "", ingest.Wrap(ingest.ErrLogFileInvalid, "runlog", path,
			strings.Join(res.Messages(), "; "), nil)
	}
	return "", nil
}

// formatParams renders parameters deterministically as "k=v; k=v", sorted
// by key.
func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "; ")
}

// sanitize keeps a field from breaking the pipe-delimited, line-oriented
// log format.
func sanitize(field string) string {
	field = strings.ReplaceAll(field, string(Delimiter), "/")
	field = strings.ReplaceAll(field, "\r", " ")
	return strings.ReplaceAll(field, "\n", " ")
}
