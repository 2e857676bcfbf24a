package sync

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yycdirectory/sync-cli/internal/config"
	"github.com/yycdirectory/sync-cli/internal/metrics"
	"github.com/yycdirectory/sync-cli/internal/model"
	"github.com/yycdirectory/sync-cli/internal/normalize"
	"github.com/yycdirectory/sync-cli/internal/store"
)

// Fetcher is the feed surface the runner needs.
type Fetcher interface {
	Fetch(ctx context.Context, limit, offset int, since string) ([]model.RawLicence, error)
	FetchAll(ctx context.Context, since string) ([]model.RawLicence, error)
}

// Runner drives a full sync run: fetch, normalize, reconcile, report.
type Runner struct {
	feed    Fetcher
	store   store.Store
	rec     *Reconciler
	metrics *metrics.Registry
	cfg     config.SyncConfig
}

// NewRunner creates a Runner. The store may be nil only when every run is a
// dry run that is rejected upstream before reconciliation.
func NewRunner(f Fetcher, st store.Store, m *metrics.Registry, cfg config.SyncConfig) *Runner {
	return &Runner{
		feed:    f,
		store:   st,
		rec:     NewReconciler(st, nil),
		metrics: m,
		cfg:     cfg,
	}
}

// Run executes one sync and always returns a structured report; run-level
// failures (a feed fetch error) short-circuit into a failed report rather
// than an error.
func (r *Runner) Run(ctx context.Context, req model.SyncRequest) *model.SyncReport {
	start := time.Now()
	mode := req.Mode
	if mode == "" {
		mode = model.ModeRecent
	}

	report := &model.SyncReport{Mode: mode, DryRun: req.DryRun}
	r.metrics.Runs.Inc()
	log := zap.L().With(
		zap.String("mode", string(mode)),
		zap.Bool("dry_run", req.DryRun),
	)

	records, err := r.fetch(ctx, mode, req)
	if err != nil {
		// A fetch failure aborts the whole run; nothing is persisted.
		log.Error("feed fetch failed", zap.Error(err))
		report.Errors = 1
		report.ErrorMessages = []string{eris.ToString(err, false)}
		r.finalize(report, start)
		return report
	}
	report.Fetched = len(records)
	r.metrics.RecordsFetched.Add(float64(len(records)))
	log.Info("feed fetch complete", zap.Int("fetched", len(records)))

	batchSize := r.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	for _, raw := range records {
		b, ok := normalize.Normalize(raw)
		if !ok {
			report.Skipped++
			r.metrics.RecordsFiltered.Inc()
			continue
		}
		report.Processed++

		if req.DryRun {
			// Count what would have been written, touch nothing.
			report.Inserted++
		} else {
			switch outcome, recErr := r.rec.Reconcile(ctx, b); outcome {
			case OutcomeInserted:
				report.Inserted++
				r.metrics.RecordsInserted.Inc()
			case OutcomeUpdated:
				report.Updated++
				r.metrics.RecordsUpdated.Inc()
			case OutcomeErrored:
				report.Errors++
				r.metrics.RecordsErrored.Inc()
				log.Warn("record reconcile failed",
					zap.String("external_id", b.ExternalID),
					zap.Error(recErr),
				)
				if len(report.ErrorMessages) < r.maxErrorMessages() {
					report.ErrorMessages = append(report.ErrorMessages, eris.ToString(recErr, false))
				}
			}
		}

		if report.Processed%batchSize == 0 {
			log.Info("sync progress",
				zap.Int("processed", report.Processed),
				zap.Int("inserted", report.Inserted),
				zap.Int("updated", report.Updated),
				zap.Int("errors", report.Errors),
			)
		}
	}

	r.finalize(report, start)
	log.Info("sync complete",
		zap.Int("fetched", report.Fetched),
		zap.Int("processed", report.Processed),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors),
		zap.Bool("success", report.Success),
		zap.Int64("duration_ms", report.DurationMS),
	)
	return report
}

// fetch selects the feed strategy for the requested mode. The full corpus
// is collected before any reconciliation starts, so a mid-crawl page
// failure persists nothing.
func (r *Runner) fetch(ctx context.Context, mode model.SyncMode, req model.SyncRequest) ([]model.RawLicence, error) {
	switch mode {
	case model.ModeRecent:
		daysBack := req.DaysBack
		if daysBack <= 0 {
			daysBack = r.cfg.DaysBack
		}
		since := time.Now().UTC().AddDate(0, 0, -daysBack).Format("2006-01-02T15:04:05")
		return r.feed.FetchAll(ctx, since)
	case model.ModeFull:
		return r.feed.FetchAll(ctx, "")
	case model.ModeTest:
		limit := req.Limit
		if limit <= 0 {
			limit = r.cfg.TestLimit
		}
		return r.feed.Fetch(ctx, limit, 0, "")
	default:
		return nil, eris.Errorf("sync: unknown mode %q", mode)
	}
}

func (r *Runner) maxErrorMessages() int {
	if r.cfg.MaxErrorMessages <= 0 {
		return 10
	}
	return r.cfg.MaxErrorMessages
}

// finalize stamps duration and the success flag: a run succeeds when the
// error rate among processed records stays under 10%.
func (r *Runner) finalize(report *model.SyncReport, start time.Time) {
	elapsed := time.Since(start)
	report.DurationMS = elapsed.Milliseconds()
	r.metrics.RunDurationSec.Observe(elapsed.Seconds())

	if report.Processed == 0 {
		report.Success = report.Errors == 0
		return
	}
	report.Success = report.Errors*10 < report.Processed
}
