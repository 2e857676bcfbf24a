// Package sync drives the ingestion pipeline: it pulls raw licence records
// from the feed, normalizes them, and reconciles each canonical record
// against the store.
package sync

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/yycdirectory/sync-cli/internal/model"
	"github.com/yycdirectory/sync-cli/internal/store"
)

// Outcome is the result of reconciling one record.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeErrored
)

// Reconciler upserts canonical records by external id. The clock is
// injected so the slug-collision suffix is deterministic in tests.
type Reconciler struct {
	store store.Store
	now   func() time.Time
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(st store.Store, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: st, now: now}
}

// Reconcile inserts or updates one record. An existing record keeps its
// slug and primary key; only the mutable fields are rewritten and active is
// forced true. A fresh insert that collides on slug is retried exactly once
// with a timestamp-derived suffix. Errors never abort a batch; the caller
// counts them and moves on.
func (r *Reconciler) Reconcile(ctx context.Context, b *model.Business) (Outcome, error) {
	existing, err := r.store.GetByExternalID(ctx, b.ExternalID)
	if err != nil {
		return OutcomeErrored, eris.Wrapf(err, "reconcile: lookup %s", b.ExternalID)
	}

	if existing != nil {
		if err := r.store.Update(ctx, b); err != nil {
			return OutcomeErrored, eris.Wrapf(err, "reconcile: update %s", b.ExternalID)
		}
		return OutcomeUpdated, nil
	}

	b.Active = true
	err = r.store.Insert(ctx, b)
	if err == nil {
		return OutcomeInserted, nil
	}
	if !store.IsSlugConflict(err) {
		return OutcomeErrored, eris.Wrapf(err, "reconcile: insert %s", b.ExternalID)
	}

	// Slug taken by another record; retry once with a suffixed slug.
	b.Slug = b.Slug + "-" + slugSuffix(r.now())
	if err := r.store.Insert(ctx, b); err != nil {
		return OutcomeErrored, eris.Wrapf(err, "reconcile: insert retry %s", b.ExternalID)
	}
	return OutcomeInserted, nil
}

// slugSuffix derives a short base-36 suffix from the clock.
func slugSuffix(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli()%1_000_000, 36)
}
