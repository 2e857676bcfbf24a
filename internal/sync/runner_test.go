package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yycdirectory/sync-cli/internal/config"
	"github.com/yycdirectory/sync-cli/internal/metrics"
	"github.com/yycdirectory/sync-cli/internal/model"
)

// fakeFetcher serves canned records and captures how it was called.
type fakeFetcher struct {
	records []model.RawLicence
	err     error

	fetchCalls    int
	fetchAllCalls int
	lastLimit     int
	lastSince     string
}

func (f *fakeFetcher) Fetch(_ context.Context, limit, _ int, since string) ([]model.RawLicence, error) {
	f.fetchCalls++
	f.lastLimit = limit
	f.lastSince = since
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeFetcher) FetchAll(_ context.Context, since string) ([]model.RawLicence, error) {
	f.fetchAllCalls++
	f.lastSince = since
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func rawRecord(id, name string) model.RawLicence {
	return model.RawLicence{
		BusinessID:   id,
		TradeName:    name,
		Address:      "123 Test St SW",
		LicenceTypes: "Business License",
		FirstIssued:  "2024-03-01T00:00:00.000",
	}
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{DaysBack: 30, TestLimit: 50, BatchSize: 100, MaxErrorMessages: 10}
}

func newTestRunner(f Fetcher, st *memStore) *Runner {
	return NewRunner(f, st, metrics.NewRegistry(), testSyncConfig())
}

func TestRun_MixedBatch(t *testing.T) {
	// Three valid new records, one missing its address, and one whose
	// external id is already stored.
	missingAddr := rawRecord("BL0004", "No Address Here")
	missingAddr.Address = ""
	fetcher := &fakeFetcher{records: []model.RawLicence{
		rawRecord("BL0001", "Alpha Cafe"),
		rawRecord("BL0002", "Beta Books"),
		rawRecord("BL0003", "Gamma Salon"),
		missingAddr,
		rawRecord("BL0005", "Existing Business"),
	}}

	st := newMemStore()
	require.NoError(t, st.Insert(context.Background(), seedBusiness("BL0005", "existing-business-bl0005")))

	report := newTestRunner(fetcher, st).Run(context.Background(), model.SyncRequest{Mode: model.ModeRecent})

	assert.Equal(t, 5, report.Fetched)
	assert.Equal(t, 4, report.Processed, "filtered record is not processed")
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 0, report.Errors)
	assert.True(t, report.Success)
	assert.Len(t, st.byID, 4)
}

func TestRun_Idempotent(t *testing.T) {
	fetcher := &fakeFetcher{records: []model.RawLicence{
		rawRecord("BL0101", "Repeat One"),
		rawRecord("BL0102", "Repeat Two"),
	}}
	st := newMemStore()
	runner := newTestRunner(fetcher, st)

	first := runner.Run(context.Background(), model.SyncRequest{Mode: model.ModeRecent})
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Updated)

	second := runner.Run(context.Background(), model.SyncRequest{Mode: model.ModeRecent})
	assert.Equal(t, 0, second.Inserted, "second run over an unchanged feed inserts nothing")
	assert.Equal(t, 2, second.Updated)
	assert.Len(t, st.byID, 2)
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	fetcher := &fakeFetcher{records: []model.RawLicence{
		rawRecord("BL0201", "Dry One"),
		rawRecord("BL0202", "Dry Two"),
	}}
	st := newMemStore()

	report := newTestRunner(fetcher, st).Run(context.Background(),
		model.SyncRequest{Mode: model.ModeRecent, DryRun: true})

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Inserted, "dry run reports would-be inserts")
	assert.True(t, report.Success)
	assert.Equal(t, 0, st.mutations, "dry run must not mutate the store")
	assert.Empty(t, st.byID)
}

func TestRun_FetchFailureShortCircuits(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("feed: unexpected status 502")}
	st := newMemStore()

	report := newTestRunner(fetcher, st).Run(context.Background(), model.SyncRequest{Mode: model.ModeFull})

	assert.Equal(t, 0, report.Fetched)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 1, report.Errors)
	assert.False(t, report.Success)
	require.Len(t, report.ErrorMessages, 1)
	assert.Contains(t, report.ErrorMessages[0], "502")
	assert.Equal(t, 0, st.mutations, "nothing persists on a fetch failure")
}

func TestRun_RecordErrorsDoNotAbortBatch(t *testing.T) {
	fetcher := &fakeFetcher{records: []model.RawLicence{
		rawRecord("BL0301", "Fine One"),
		rawRecord("BL0302", "Fine Two"),
	}}
	st := newMemStore()
	st.updateErr = errors.New("write conflict")
	require.NoError(t, st.Insert(context.Background(), seedBusiness("BL0301", "fine-one-bl0301")))
	st.mutations = 0

	report := newTestRunner(fetcher, st).Run(context.Background(), model.SyncRequest{Mode: model.ModeRecent})

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Errors, "the failing update is absorbed")
	assert.Equal(t, 1, report.Inserted, "the batch continues past the error")
	require.NotEmpty(t, report.ErrorMessages)
	assert.Contains(t, report.ErrorMessages[0], "write conflict")
}

func TestRun_SuccessThreshold(t *testing.T) {
	// 10 records, one errors: exactly 10% is not below the threshold.
	var records []model.RawLicence
	for i := 0; i < 10; i++ {
		records = append(records, rawRecord(fmt.Sprintf("BL04%02d", i), fmt.Sprintf("Biz %d", i)))
	}
	fetcher := &fakeFetcher{records: records}

	st := newMemStore()
	st.updateErr = errors.New("write conflict")
	require.NoError(t, st.Insert(context.Background(), seedBusiness("BL0400", "biz-0-bl0400")))
	st.mutations = 0

	report := newTestRunner(fetcher, st).Run(context.Background(), model.SyncRequest{Mode: model.ModeRecent})
	assert.Equal(t, 10, report.Processed)
	assert.Equal(t, 1, report.Errors)
	assert.False(t, report.Success, "1 in 10 is not under the 10% threshold")
}

func TestRun_ErrorMessagesAreBounded(t *testing.T) {
	var records []model.RawLicence
	for i := 0; i < 30; i++ {
		records = append(records, rawRecord(fmt.Sprintf("BL05%02d", i), fmt.Sprintf("Biz %d", i)))
	}
	fetcher := &fakeFetcher{records: records}

	st := newMemStore()
	st.insertErr = errors.New("store offline")

	report := newTestRunner(fetcher, st).Run(context.Background(), model.SyncRequest{Mode: model.ModeRecent})
	assert.Equal(t, 30, report.Errors)
	assert.Len(t, report.ErrorMessages, 10, "messages are capped")
	assert.False(t, report.Success)
}

func TestRun_ModeSelection(t *testing.T) {
	t.Run("recent passes a since bound", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		newTestRunner(fetcher, newMemStore()).Run(context.Background(),
			model.SyncRequest{Mode: model.ModeRecent, DaysBack: 7})
		assert.Equal(t, 1, fetcher.fetchAllCalls)
		assert.NotEmpty(t, fetcher.lastSince)
	})

	t.Run("full crawls without a bound", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		newTestRunner(fetcher, newMemStore()).Run(context.Background(),
			model.SyncRequest{Mode: model.ModeFull})
		assert.Equal(t, 1, fetcher.fetchAllCalls)
		assert.Empty(t, fetcher.lastSince)
	})

	t.Run("test fetches one bounded page", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		newTestRunner(fetcher, newMemStore()).Run(context.Background(),
			model.SyncRequest{Mode: model.ModeTest})
		assert.Equal(t, 1, fetcher.fetchCalls)
		assert.Equal(t, 0, fetcher.fetchAllCalls)
		assert.Equal(t, 50, fetcher.lastLimit, "default test cap from config")
	})

	t.Run("empty mode defaults to recent", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		report := newTestRunner(fetcher, newMemStore()).Run(context.Background(), model.SyncRequest{})
		assert.Equal(t, model.ModeRecent, report.Mode)
		assert.Equal(t, 1, fetcher.fetchAllCalls)
	})

	t.Run("unknown mode fails the run", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		report := newTestRunner(fetcher, newMemStore()).Run(context.Background(),
			model.SyncRequest{Mode: "bogus"})
		assert.False(t, report.Success)
		assert.Equal(t, 1, report.Errors)
	})
}

func TestRun_EmptyFeedSucceeds(t *testing.T) {
	fetcher := &fakeFetcher{}
	report := newTestRunner(fetcher, newMemStore()).Run(context.Background(),
		model.SyncRequest{Mode: model.ModeRecent})
	assert.Equal(t, 0, report.Processed)
	assert.True(t, report.Success)
}
