package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yycdirectory/sync-cli/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, pageSize int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:   srv.URL,
		PageSize:  pageSize,
		PageDelay: time.Millisecond,
		Timeout:   5 * time.Second,
	})
}

func licences(n int, prefix string) []model.RawLicence {
	out := make([]model.RawLicence, n)
	for i := range out {
		out[i] = model.RawLicence{
			BusinessID:   fmt.Sprintf("%s%04d", prefix, i),
			TradeName:    "Test Business",
			Address:      "123 Test St",
			LicenceTypes: "Business License",
		}
	}
	return out
}

func TestFetch_QueryParams(t *testing.T) {
	var gotQuery map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"$order":  r.URL.Query().Get("$order"),
			"$limit":  r.URL.Query().Get("$limit"),
			"$offset": r.URL.Query().Get("$offset"),
			"$where":  r.URL.Query().Get("$where"),
		}
		_ = json.NewEncoder(w).Encode([]model.RawLicence{})
	}, 100)

	_, err := client.Fetch(context.Background(), 25, 50, "2024-01-01T00:00:00")
	require.NoError(t, err)

	assert.Equal(t, "first_iss_dt DESC", gotQuery["$order"])
	assert.Equal(t, "25", gotQuery["$limit"])
	assert.Equal(t, "50", gotQuery["$offset"])
	assert.Equal(t, "first_iss_dt >= '2024-01-01T00:00:00'", gotQuery["$where"])
}

func TestFetch_NoWhereWithoutSince(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("$where"))
		_ = json.NewEncoder(w).Encode([]model.RawLicence{})
	}, 100)

	_, err := client.Fetch(context.Background(), 10, 0, "")
	require.NoError(t, err)
}

func TestFetch_CapsPageSize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1000", r.URL.Query().Get("$limit"))
		_ = json.NewEncoder(w).Encode([]model.RawLicence{})
	}, 100)

	_, err := client.Fetch(context.Background(), 5000, 0, "")
	require.NoError(t, err)
}

func TestFetch_ErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}, 100)

	_, err := client.Fetch(context.Background(), 10, 0, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFetch_MalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"`))
	}, 100)

	_, err := client.Fetch(context.Background(), 10, 0, "")
	require.Error(t, err)
}

func TestFetchAll_PaginatesUntilShortPage(t *testing.T) {
	var offsets []int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		fmt.Sscanf(r.URL.Query().Get("$offset"), "%d", &offset)
		offsets = append(offsets, offset)

		// Pages of 2, 2, then a short page of 1.
		switch offset {
		case 0, 2:
			_ = json.NewEncoder(w).Encode(licences(2, fmt.Sprintf("P%d-", offset)))
		default:
			_ = json.NewEncoder(w).Encode(licences(1, "LAST-"))
		}
	}, 2)

	records, err := client.FetchAll(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, []int{0, 2, 4}, offsets)
}

func TestFetchAll_ShortFirstPageStopsImmediately(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(licences(1, "ONLY-"))
	}, 2)

	records, err := client.FetchAll(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, calls)
}

func TestFetchAll_PageFailureAbortsCrawl(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(licences(2, "P-"))
	}, 2)

	records, err := client.FetchAll(context.Background(), "")
	require.Error(t, err)
	assert.Nil(t, records, "partial data must not be returned as complete")
	assert.Contains(t, err.Error(), "offset 4")
}
