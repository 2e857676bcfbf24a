// Package feed fetches raw licence records from the City of Calgary
// open-data API (Socrata). Results are ordered by issue date descending so
// recent-window syncs surface new records first.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yycdirectory/sync-cli/internal/model"
)

// maxPageSize caps any single request against the external API.
const maxPageSize = 1000

// Config configures the feed client.
type Config struct {
	BaseURL   string
	PageSize  int
	PageDelay time.Duration
	Timeout   time.Duration
}

// Client fetches pages of raw licence records.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	pacer      *rate.Limiter
}

// New creates a feed client. PageDelay paces successive pages of a
// multi-page crawl; single-page fetches are never delayed.
func New(cfg Config) *Client {
	if cfg.PageSize <= 0 || cfg.PageSize > maxPageSize {
		cfg.PageSize = maxPageSize
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 250 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		pageSize:   cfg.PageSize,
		pacer:      rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
	}
}

// Fetch retrieves one page of records ordered by issue date descending.
// A non-empty since restricts results to issue dates at or after that
// instant (inclusive).
func (c *Client) Fetch(ctx context.Context, limit, offset int, since string) ([]model.RawLicence, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	params := url.Values{
		"$order":  {"first_iss_dt DESC"},
		"$limit":  {strconv.Itoa(limit)},
		"$offset": {strconv.Itoa(offset)},
	}
	if since != "" {
		params.Set("$where", fmt.Sprintf("first_iss_dt >= '%s'", since))
	}

	reqURL := c.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "feed: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "feed: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("feed: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "feed: read body")
	}

	var records []model.RawLicence
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, eris.Wrap(err, "feed: parse response")
	}
	return records, nil
}

// FetchAll paginates until a short page signals exhaustion. Successive
// pages are paced by the configured delay as courtesy to the external
// service. Any page failure aborts the whole crawl: a partial result is
// never returned as if it were complete.
func (c *Client) FetchAll(ctx context.Context, since string) ([]model.RawLicence, error) {
	var all []model.RawLicence
	for offset := 0; ; offset += c.pageSize {
		if offset > 0 {
			if err := c.pacer.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "feed: page pacing")
			}
		}

		page, err := c.Fetch(ctx, c.pageSize, offset, since)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: page at offset %d", offset)
		}
		all = append(all, page...)

		zap.L().Debug("fetched feed page",
			zap.Int("offset", offset),
			zap.Int("records", len(page)),
		)

		if len(page) < c.pageSize {
			return all, nil
		}
	}
}
