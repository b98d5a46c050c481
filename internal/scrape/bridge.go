package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/platform/logger"
)

// scheduleEntry is one match row on the bridge's schedule endpoint.
type scheduleEntry struct {
	Code        string    `json:"code"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	League      string    `json:"league"`
	GroupKey    string    `json:"group_key"`
	KickoffTime time.Time `json:"kickoff_time"`
}

type schedulePayload struct {
	Matches []scheduleEntry `json:"matches"`
}

type resultsPayload struct {
	Results []domain.Result `json:"results"`
}

// BridgeClient talks to the external browser-automation scraper over its
// local HTTP bridge. It implements both ScheduleSource and ResultSource.
type BridgeClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var (
	_ ScheduleSource = (*BridgeClient)(nil)
	_ ResultSource   = (*BridgeClient)(nil)
)

// NewBridgeClient creates a BridgeClient against the given base URL. The
// timeout bounds one request end to end; scrapes drive a real browser
// upstream, so callers should pass a generous value. If logger is nil, a
// default logger will be used.
func NewBridgeClient(baseURL string, timeout time.Duration, logger *slog.Logger) *BridgeClient {
	if baseURL == "" {
		panic("baseURL cannot be empty")
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BridgeClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "scrape_bridge")),
	}
}

// FetchSchedule implements ScheduleSource over the bridge's /schedule
// endpoint. Rows that fail validation are skipped with a warning rather
// than poisoning the batch.
func (c *BridgeClient) FetchSchedule(ctx context.Context) ([]domain.Match, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	var payload schedulePayload
	if err := c.getJSON(ctx, "/schedule", nil, &payload); err != nil {
		return nil, err
	}

	matches := make([]domain.Match, 0, len(payload.Matches))
	for _, entry := range payload.Matches {
		match, err := domain.NewMatch(entry.Code, entry.HomeTeam, entry.AwayTeam,
			entry.League, entry.GroupKey, entry.KickoffTime)
		if err != nil {
			log.Warn("skipping malformed schedule row",
				"code", entry.Code,
				"error", err)
			continue
		}
		matches = append(matches, *match)
	}

	log.Info("schedule fetched",
		"rows", len(payload.Matches),
		"accepted", len(matches))
	return matches, nil
}

// FetchResults implements ResultSource over the bridge's /results
// endpoint.
func (c *BridgeClient) FetchResults(ctx context.Context, lookbackDays int) ([]domain.Result, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	query := url.Values{"lookback_days": []string{strconv.Itoa(lookbackDays)}}

	var payload resultsPayload
	if err := c.getJSON(ctx, "/results", query, &payload); err != nil {
		return nil, err
	}

	log.Info("results fetched", "rows", len(payload.Results))
	return payload.Results, nil
}

// getJSON issues one GET against the bridge and decodes the response body
// into out. A 503 from the bridge means the upstream site gave it nothing
// usable and maps to ErrSourceUnavailable.
func (c *BridgeClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build bridge request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: bridge returned 503 for %s", ErrSourceUnavailable, path)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge returned status %d for %s: %s",
			resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode bridge response for %s: %w", path, err)
	}
	return nil
}
