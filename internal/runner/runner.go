// Package runner executes one full ingestion pass: lock the data root, load
// the configuration tables, walk every inbound source folder, and leave an
// audit trail plus an optional history record behind.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"ingot/internal/bronze"
	"ingot/internal/config"
	"ingot/internal/configstore"
	"ingot/internal/history"
	"ingot/internal/ingest"
	"ingot/internal/runlog"
	"ingot/internal/walker"
)

// Options adjust a single run.
type Options struct {
	// Source restricts the run to one source folder. Empty processes all.
	Source string
	// ParentGUID correlates this run with an external orchestrator. Empty
	// means the run is its own root.
	ParentGUID string
	// Destination overrides the configured destination when non-empty.
	Destination string
}

// Summary is the aggregate outcome of one run.
type Summary struct {
	ExecutionGUID string
	Started       time.Time
	Finished      time.Time
	Destination   string
	Success       bool
	Folders       []walker.FolderResult
	Warnings      []string
	Promoted      int
	Quarantined   int
	Empty         int
	Failed        int
	RowsWritten   int
	HistoryID     int64
}

// Run performs one ingestion pass. The returned error is non-nil only for
// conditions that prevented the run from doing any work at all: a held lock
// or an invalid configuration header. Per-folder failures are reported in
// the summary with Success set to false.
func Run(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	summary := &Summary{
		ExecutionGUID: uuid.NewString(),
		Started:       time.Now(),
		Destination:   cfg.Pipeline.Destination,
	}
	if opts.Destination != "" {
		summary.Destination = opts.Destination
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, ingest.Wrap(ingest.ErrIO, "run", "ensure directories", "", err)
	}

	lock := flock.New(cfg.LockFilePath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, ingest.Wrap(ingest.ErrLocked, "run", "lock", cfg.LockFilePath(), err)
	}
	if !locked {
		return nil, ingest.Wrap(ingest.ErrLocked, "run", "lock", cfg.LockFilePath(), nil)
	}
	defer func() { _ = lock.Unlock() }()

	// A broken audit log never blocks ingestion; the run degrades to stderr
	// reporting so the data keeps flowing.
	logUsable := true
	logWarning, err := runlog.ValidateFile(cfg.LogFilePath())
	if err != nil {
		logUsable = false
		summary.Warnings = append(summary.Warnings, err.Error())
		fmt.Fprintf(os.Stderr, "audit log unusable, continuing without it: %v\n", err)
		log.Error("audit log unusable", "path", cfg.LogFilePath(), "error", err)
	} else if logWarning != "" {
		summary.Warnings = append(summary.Warnings, logWarning)
		log.Warn(logWarning)
	}

	rec := runlog.NewRecorder("ingot")
	defer func() {
		if !logUsable {
			return
		}
		if err := rec.Flush(cfg.LogFilePath()); err != nil {
			fmt.Fprintf(os.Stderr, "audit log flush failed: %v\n", err)
			log.Error("audit log flush failed", "error", err)
		}
	}()

	store, warnings, err := configstore.Load(cfg.FileConfigPath(), cfg.ColumnConfigPath())
	if err != nil {
		rec.Record(runlog.Entry{
			ExecutionGUID:       summary.ExecutionGUID,
			ParentExecutionGUID: opts.ParentGUID,
			Begin:               summary.Started,
			CallStack:           "run",
			Action:              "LoadConfiguration",
			Severity:            runlog.SeverityError,
			Result:              err.Error(),
			RowCount:            -1,
		})
		return nil, err
	}
	for _, w := range warnings {
		summary.Warnings = append(summary.Warnings, w.Error())
		log.Warn(w.Error())
		rec.Record(runlog.Entry{
			ParentExecutionGUID: opts.ParentGUID,
			CallStack:           "run",
			Action:              "LoadConfiguration",
			Severity:            runlog.SeverityWarning,
			Result:              w.Error(),
			RowCount:            -1,
		})
	}

	// A requested source whose inbound folder has not been delivered to yet
	// is bootstrapped, same as a missing configuration table. The folder then
	// walks as NoFilesFound rather than failing the run.
	if opts.Source != "" {
		inbound := filepath.Join(cfg.BronzeInboundDir(), opts.Source)
		if _, statErr := os.Stat(inbound); errors.Is(statErr, fs.ErrNotExist) {
			if err := os.MkdirAll(inbound, 0o755); err != nil {
				return nil, ingest.Wrap(ingest.ErrIO, opts.Source, "create inbound folder", inbound, err)
			}
			w := fmt.Sprintf("inbound folder was not found and therefore created: %s", inbound)
			summary.Warnings = append(summary.Warnings, w)
			log.Warn("inbound folder created", "source", opts.Source, "path", inbound)
			rec.Record(runlog.Entry{
				ParentExecutionGUID: opts.ParentGUID,
				CallStack:           "run",
				Action:              "CreateSourceFolder",
				Severity:            runlog.SeverityWarning,
				Source:              opts.Source,
				Result:              w,
				RowCount:            -1,
			})
		}
	}

	sources, err := resolveSources(cfg, opts.Source)
	if err != nil {
		return nil, err
	}

	w := walker.New(cfg, store, bronze.NewStore(cfg.BronzeDir()), log, rec, summary.Destination, summary.ExecutionGUID)
	summary.Success = true
	for _, source := range sources {
		res := w.ProcessFolder(source)
		summary.Folders = append(summary.Folders, res)
		summary.Promoted += res.Promoted
		summary.Quarantined += res.Quarantined
		summary.Empty += res.Empty
		summary.Failed += res.Failed
		summary.RowsWritten += res.RowsWritten
		switch res.Status {
		case walker.StatusOK, walker.StatusNoFiles:
		case walker.StatusPartial:
			// Quarantined and failed siblings are per-file outcomes. The
			// folder still counts as successful when at least one file
			// reached Bronze.
			if res.Promoted == 0 {
				summary.Success = false
			}
		default:
			summary.Success = false
		}
	}
	summary.Finished = time.Now()

	result := "Failed"
	severity := runlog.SeverityError
	if summary.Success {
		result = runlog.ResultSuccess
		severity = runlog.SeverityInfo
	}
	rec.Record(runlog.Entry{
		ExecutionGUID:       summary.ExecutionGUID,
		ParentExecutionGUID: opts.ParentGUID,
		Begin:               summary.Started,
		End:                 summary.Finished,
		CallStack:           "run",
		Action:              "Run",
		Severity:            severity,
		Result:              result,
		RowCount:            summary.RowsWritten,
		Params: map[string]string{
			"destination": summary.Destination,
			"sources":     fmt.Sprintf("%d", len(sources)),
		},
	})

	if cfg.History.Enabled {
		if err := recordHistory(ctx, cfg, opts, summary, sources); err != nil {
			summary.Warnings = append(summary.Warnings, err.Error())
			log.Warn("history not recorded", "error", err)
		}
	}

	log.Info("run complete",
		"success", summary.Success,
		"sources", len(sources),
		"promoted", summary.Promoted,
		"quarantined", summary.Quarantined,
		"rows", summary.RowsWritten,
	)
	return summary, nil
}

// resolveSources lists the source folders to process: every directory under
// the Bronze inbound layer, or just the requested one. An unconfigured
// directory still gets processed (and skipped with a logged error) so the
// mistake is visible rather than silent.
func resolveSources(cfg *config.Config, only string) ([]string, error) {
	if only != "" {
		return []string{only}, nil
	}
	entries, err := os.ReadDir(cfg.BronzeInboundDir())
	if err != nil {
		return nil, ingest.Wrap(ingest.ErrIO, "run", "list sources", cfg.BronzeInboundDir(), err)
	}
	var sources []string
	for _, entry := range entries {
		if entry.IsDir() {
			sources = append(sources, entry.Name())
		}
	}
	sort.Strings(sources)
	return sources, nil
}

func recordHistory(ctx context.Context, cfg *config.Config, opts Options, summary *Summary, sources []string) error {
	path := cfg.History.Path
	if path == "" {
		path = filepath.Join(cfg.AdminDir(), "history.db")
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	folders := make([]history.FolderRecord, 0, len(summary.Folders))
	for _, f := range summary.Folders {
		detail := ""
		if f.Err != nil {
			detail = f.Err.Error()
		}
		folders = append(folders, history.FolderRecord{
			Source:      f.Source,
			Status:      string(f.Status),
			Promoted:    f.Promoted,
			Quarantined: f.Quarantined,
			Empty:       f.Empty,
			Failed:      f.Failed,
			RowsWritten: f.RowsWritten,
			Detail:      detail,
		})
	}

	id, err := store.RecordRun(ctx, history.Run{
		ExecutionGUID: summary.ExecutionGUID,
		ParentGUID:    opts.ParentGUID,
		StartedAt:     summary.Started,
		FinishedAt:    summary.Finished,
		Destination:   summary.Destination,
		Success:       summary.Success,
		Sources:       len(sources),
		Promoted:      summary.Promoted,
		Quarantined:   summary.Quarantined,
		Empty:         summary.Empty,
		Failed:        summary.Failed,
		RowsWritten:   summary.RowsWritten,
	}, folders)
	if err != nil {
		return err
	}
	summary.HistoryID = id
	return nil
}
