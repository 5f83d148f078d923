// Package walker processes one source folder at a time: resolve the
// source's configuration, evaluate every inbound file, write the folder's
// Bronze rows in a single batch, and only then move the promoted files out
// of the inbound folder. A failure in one folder never touches its siblings.
package walker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"ingot/internal/bronze"
	"ingot/internal/config"
	"ingot/internal/configstore"
	"ingot/internal/disposition"
	"ingot/internal/fileutil"
	"ingot/internal/ingest"
	"ingot/internal/runlog"
	"ingot/internal/transform"
)

// Status summarizes how a folder run ended.
type Status string

const (
	// StatusOK means every data file reached a terminal disposition.
	StatusOK Status = "ok"
	// StatusNoFiles means the folder held no data files. A warning, not an
	// error; providers deliver on their own schedule.
	StatusNoFiles Status = "no files"
	// StatusSkipped means the source's configuration could not be resolved
	// and no file was touched.
	StatusSkipped Status = "skipped"
	// StatusAborted means a transformation or Bronze write failure stopped
	// the folder with its validated files still staged in the inbound folder.
	StatusAborted Status = "aborted"
	// StatusPartial means at least one file failed or was quarantined while
	// the rest of the folder completed.
	StatusPartial Status = "partial"
)

// FolderResult is the outcome of processing one source folder.
type FolderResult struct {
	Source      string
	Status      Status
	Promoted    int
	Quarantined int
	Empty       int
	Ignored     int
	Failed      int
	RowsWritten int
	Err         error
}

// Walker drives folder processing for one run.
type Walker struct {
	cfg        *config.Config
	store      *configstore.Store
	bronze     *bronze.Store
	log        *slog.Logger
	rec        *runlog.Recorder
	dest       string
	parentGUID string
	now        func() time.Time
}

// New creates a Walker. dest selects where promoted files land, one of the
// config destination values. parentGUID threads the run's correlation id
// into every audit entry.
func New(cfg *config.Config, store *configstore.Store, bronzeStore *bronze.Store, log *slog.Logger, rec *runlog.Recorder, dest, parentGUID string) *Walker {
	return &Walker{
		cfg:        cfg,
		store:      store,
		bronze:     bronzeStore,
		log:        log,
		rec:        rec,
		dest:       dest,
		parentGUID: parentGUID,
		now:        time.Now,
	}
}

type staged struct {
	path   string
	result *transform.Result
	entry  runlog.Entry
}

// ProcessFolder runs one source folder end to end.
func (w *Walker) ProcessFolder(source string) FolderResult {
	res := FolderResult{Source: source, Status: StatusOK}

	fc, err := w.store.ResolveFileConfig(source)
	if err == nil {
		var columns []configstore.ColumnConfig
		columns, err = w.store.ResolveColumnConfig(fc.ConfigurationFileID)
		if err == nil {
			return w.processFiles(source, fc, columns)
		}
	}

	res.Status = StatusSkipped
	res.Err = err
	w.log.Error("source skipped", "source", source, "error", err)
	w.record(runlog.Entry{
		CallStack: "run.folder",
		Action:    "ResolveConfiguration",
		Severity:  runlog.SeverityError,
		Source:    source,
		Result:    err.Error(),
		RowCount:  -1,
	})
	return res
}

func (w *Walker) processFiles(source string, fc configstore.FileConfig, columns []configstore.ColumnConfig) FolderResult {
	res := FolderResult{Source: source, Status: StatusOK}
	inbound := filepath.Join(w.cfg.BronzeInboundDir(), source)

	names, err := listFiles(inbound)
	if err != nil {
		res.Status = StatusSkipped
		res.Err = ingest.Wrap(ingest.ErrIO, source, "list", inbound, err)
		w.log.Error("cannot list inbound folder", "source", source, "error", err)
		return res
	}

	dataFiles := 0
	for _, name := range names {
		if disposition.IsDataFile(name) {
			dataFiles++
		}
	}
	if dataFiles == 0 {
		res.Status = StatusNoFiles
		w.log.Warn("no files found", "source", source, "folder", inbound)
		w.record(runlog.Entry{
			CallStack: "run.folder",
			Action:    "NoFilesFound",
			Severity:  runlog.SeverityWarning,
			Source:    source,
			RowCount:  -1,
		})
		return res
	}

	var promoted []staged
	for _, name := range names {
		path := filepath.Join(inbound, name)
		begin := w.now()
		guid := uuid.NewString()
		out := disposition.Evaluate(path, fc, columns, disposition.Options{
			Source:           source,
			ExecutionGUID:    guid,
			DefaultDelimiter: w.defaultDelimiter(),
			ErrorDir:         filepath.Join(w.cfg.BronzeErrorDir(), source),
			Now:              begin,
		})

		switch out.Kind {
		case disposition.KindIgnored:
			res.Ignored++
		case disposition.KindEmpty:
			res.Empty++
			w.log.Warn("empty file renamed", "source", source, "file", name)
			w.record(runlog.Entry{
				ExecutionGUID: guid,
				Begin:         begin,
				CallStack:     "run.folder.file",
				Action:        "EmptyFile",
				Severity:      runlog.SeverityWarning,
				Source:        source,
				Target:        out.Path,
				File:          name,
				RowCount:      0,
			})
		case disposition.KindQuarantined:
			res.Quarantined++
			w.log.Error("file quarantined", "source", source, "file", name, "issue", out.Issue)
			w.record(runlog.Entry{
				ExecutionGUID: guid,
				Begin:         begin,
				CallStack:     "run.folder.file",
				Action:        "Quarantine",
				Severity:      runlog.SeverityError,
				Source:        source,
				Target:        out.Path,
				Result:        fmt.Sprintf("%v", out.Messages),
				File:          name,
				RowCount:      out.RowCount,
				Params:        map[string]string{"issue": out.Issue},
			})
		case disposition.KindPromoted:
			promoted = append(promoted, staged{
				path:   path,
				result: out.Result,
				entry: runlog.Entry{
					ExecutionGUID: guid,
					Begin:         begin,
					CallStack:     "run.folder.file",
					Action:        "Promote",
					Source:        source,
					File:          name,
					RowCount:      out.RowCount,
				},
			})
		case disposition.KindFailed:
			if ingest.FolderFatal(out.Err) {
				res.Status = StatusAborted
				res.Err = out.Err
				w.log.Error("folder aborted, staged files untouched", "source", source, "file", name, "error", out.Err)
				w.record(runlog.Entry{
					ExecutionGUID: guid,
					Begin:         begin,
					CallStack:     "run.folder",
					Action:        "Abort",
					Severity:      runlog.SeverityError,
					Source:        source,
					Result:        out.Err.Error(),
					File:          name,
					RowCount:      -1,
				})
				return res
			}
			res.Failed++
			w.log.Error("file failed", "source", source, "file", name, "error", out.Err)
			w.record(runlog.Entry{
				ExecutionGUID: guid,
				Begin:         begin,
				CallStack:     "run.folder.file",
				Action:        "ProcessFile",
				Severity:      runlog.SeverityError,
				Source:        source,
				Result:        out.Err.Error(),
				File:          name,
				RowCount:      -1,
			})
		}
	}

	if len(promoted) > 0 {
		if err := w.flushAndMove(source, promoted, &res); err != nil {
			res.Status = StatusAborted
			res.Err = err
			return res
		}
	}

	if (res.Failed > 0 || res.Quarantined > 0) && res.Status == StatusOK {
		res.Status = StatusPartial
	}
	return res
}

// flushAndMove writes the folder's Bronze rows in one batch and only then
// moves the promoted files. A Bronze failure leaves every file staged; a
// crash between the write and the moves is absorbed on the next run by the
// Bronze content check.
func (w *Walker) flushAndMove(source string, promoted []staged, res *FolderResult) error {
	columns := promoted[0].result.Columns
	var rows [][]string
	for _, p := range promoted {
		rows = append(rows, p.result.Rows...)
	}

	written, err := w.bronze.Append(source, columns, rows)
	if err != nil {
		w.log.Error("bronze write failed, staged files untouched", "source", source, "error", err)
		w.record(runlog.Entry{
			CallStack: "run.folder",
			Action:    "BronzeAppend",
			Severity:  runlog.SeverityError,
			Source:    source,
			Target:    w.bronze.FilePath(source),
			Result:    err.Error(),
			RowCount:  -1,
		})
		return err
	}
	res.RowsWritten = written

	targetDir := filepath.Join(w.cfg.BronzeArchiveDir(), source)
	if w.dest == config.DestinationPromote {
		targetDir = filepath.Join(w.cfg.SilverInboundDir(), source)
	}

	for _, p := range promoted {
		target := filepath.Join(targetDir, filepath.Base(p.path))
		entry := p.entry
		entry.Target = target
		if err := fileutil.MoveFile(p.path, target); err != nil {
			res.Failed++
			entry.Severity = runlog.SeverityError
			entry.Result = err.Error()
			w.log.Error("move failed, file stays staged", "source", source, "file", p.path, "error", err)
		} else {
			res.Promoted++
		}
		w.record(entry)
	}
	return nil
}

func (w *Walker) defaultDelimiter() rune {
	return []rune(w.cfg.Pipeline.DefaultDelimiter)[0]
}

func (w *Walker) record(e runlog.Entry) {
	e.ParentExecutionGUID = w.parentGUID
	if e.End.IsZero() {
		e.End = w.now()
	}
	w.rec.Record(e)
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
