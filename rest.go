package lavaflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/lavaflow/lavaflow/lavalink"
	"golang.org/x/sync/singleflight"
)

// REST transport defaults.
const (
	defaultRequestTimeout = 15 * time.Second
	defaultMaxRetries     = 3
	retryBackoffBase      = 250 * time.Millisecond
	retryBackoffMax       = 5 * time.Second
	retryBackoffJitter    = 100 * time.Millisecond

	getCacheTTL      = 10 * time.Second
	getCacheSize     = 256
	loadCacheTTL     = 5 * time.Minute
	loadCacheSize    = 512
	apiVersionPrefix = "/v4"
)

// RestClient is the request/response transport to a single audio node.
// It retries transient failures, caches idempotent GET responses and
// load-tracks results, and deduplicates identical concurrent requests.
type RestClient struct {
	baseURL    string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries     int
	requestTimeout time.Duration

	getCache  *ttlCache[string, []byte]
	loadCache *ttlCache[string, lavalink.LoadResult]
	inflight  singleflight.Group
}

// NewRestClient creates a RestClient for the node at baseURL
// (e.g. "http://localhost:2333").
func NewRestClient(baseURL, password string, logger *slog.Logger) *RestClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RestClient{
		baseURL:  baseURL,
		password: password,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:         logger,
		maxRetries:     defaultMaxRetries,
		requestTimeout: defaultRequestTimeout,
		getCache:       newTTLCache[string, []byte](getCacheTTL, getCacheSize),
		loadCache:      newTTLCache[string, lavalink.LoadResult](loadCacheTTL, loadCacheSize),
	}
}

// ClearCaches drops all cached GET and load-tracks responses.
func (c *RestClient) ClearCaches() {
	c.getCache.clear()
	c.loadCache.clear()
}

// UpdatePlayer applies a partial update to the player of guildID.
func (c *RestClient) UpdatePlayer(ctx context.Context, sessionID string, guildID snowflake.ID, update lavalink.PlayerUpdate) (*lavalink.RestPlayer, error) {
	path := fmt.Sprintf("%s/sessions/%s/players/%s?noReplace=false", apiVersionPrefix, sessionID, guildID)
	body, err := c.Do(ctx, http.MethodPatch, path, update)
	if err != nil {
		return nil, err
	}
	var player lavalink.RestPlayer
	if err := json.Unmarshal(body, &player); err != nil {
		return nil, fmt.Errorf("failed to decode player: %w", err)
	}
	return &player, nil
}

// DestroyPlayer removes the player of guildID from the node session.
func (c *RestClient) DestroyPlayer(ctx context.Context, sessionID string, guildID snowflake.ID) error {
	path := fmt.Sprintf("%s/sessions/%s/players/%s", apiVersionPrefix, sessionID, guildID)
	_, err := c.Do(ctx, http.MethodDelete, path, nil)
	return err
}

// GetPlayers lists the node-side players of the session.
func (c *RestClient) GetPlayers(ctx context.Context, sessionID string) ([]lavalink.RestPlayer, error) {
	path := fmt.Sprintf("%s/sessions/%s/players", apiVersionPrefix, sessionID)
	body, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var players []lavalink.RestPlayer
	if err := json.Unmarshal(body, &players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	return players, nil
}

// LoadTracks resolves an identifier (URL, encoded search, or raw id) into
// tracks. Results are cached by identifier.
func (c *RestClient) LoadTracks(ctx context.Context, identifier string) (lavalink.LoadResult, error) {
	if result, ok := c.loadCache.get(identifier); ok {
		return result, nil
	}

	path := apiVersionPrefix + "/loadtracks?identifier=" + url.QueryEscape(identifier)
	body, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return lavalink.LoadResult{}, err
	}
	var result lavalink.LoadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return lavalink.LoadResult{}, fmt.Errorf("failed to decode load result: %w", err)
	}
	// Error results are not cached so a broken upstream can recover.
	if result.LoadType != lavalink.LoadTypeError {
		c.loadCache.set(identifier, result)
	}
	return result, nil
}

// DecodeTrack turns an encoded blob back into a full track.
func (c *RestClient) DecodeTrack(ctx context.Context, encoded string) (*lavalink.Track, error) {
	path := apiVersionPrefix + "/decodetrack?encodedTrack=" + url.QueryEscape(encoded)
	body, err := c.cachedGet(ctx, path)
	if err != nil {
		return nil, err
	}
	var track lavalink.Track
	if err := json.Unmarshal(body, &track); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}
	return &track, nil
}

// DecodeTracks turns a batch of encoded blobs back into full tracks.
func (c *RestClient) DecodeTracks(ctx context.Context, encoded []string) ([]lavalink.Track, error) {
	body, err := c.Do(ctx, http.MethodPost, apiVersionPrefix+"/decodetracks", encoded)
	if err != nil {
		return nil, err
	}
	var tracks []lavalink.Track
	if err := json.Unmarshal(body, &tracks); err != nil {
		return nil, fmt.Errorf("failed to decode tracks: %w", err)
	}
	return tracks, nil
}

// GetStats fetches a fresh stats snapshot, bypassing the GET cache.
func (c *RestClient) GetStats(ctx context.Context) (*lavalink.Stats, error) {
	body, err := c.Do(ctx, http.MethodGet, apiVersionPrefix+"/stats", nil)
	if err != nil {
		return nil, err
	}
	var stats lavalink.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &stats, nil
}

// GetInfo fetches the node's version and capability information.
func (c *RestClient) GetInfo(ctx context.Context) (*lavalink.Info, error) {
	body, err := c.cachedGet(ctx, apiVersionPrefix+"/info")
	if err != nil {
		return nil, err
	}
	var info lavalink.Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode info: %w", err)
	}
	return &info, nil
}

// UpdateSession configures session resumption on the node.
func (c *RestClient) UpdateSession(ctx context.Context, sessionID string, update lavalink.SessionUpdate) (*lavalink.Session, error) {
	path := fmt.Sprintf("%s/sessions/%s", apiVersionPrefix, sessionID)
	body, err := c.Do(ctx, http.MethodPatch, path, update)
	if err != nil {
		return nil, err
	}
	var session lavalink.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// GetSponsorBlockCategories reads the SponsorBlock categories of a player.
func (c *RestClient) GetSponsorBlockCategories(ctx context.Context, sessionID string, guildID snowflake.ID) (lavalink.SponsorBlockCategories, error) {
	path := fmt.Sprintf("%s/sessions/%s/players/%s/sponsorblock/categories", apiVersionPrefix, sessionID, guildID)
	body, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var categories lavalink.SponsorBlockCategories
	if err := json.Unmarshal(body, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return categories, nil
}

// PutSponsorBlockCategories replaces the SponsorBlock categories of a player.
func (c *RestClient) PutSponsorBlockCategories(ctx context.Context, sessionID string, guildID snowflake.ID, categories lavalink.SponsorBlockCategories) error {
	path := fmt.Sprintf("%s/sessions/%s/players/%s/sponsorblock/categories", apiVersionPrefix, sessionID, guildID)
	_, err := c.Do(ctx, http.MethodPut, path, categories)
	return err
}

// DeleteSponsorBlockCategories clears the SponsorBlock categories of a player.
func (c *RestClient) DeleteSponsorBlockCategories(ctx context.Context, sessionID string, guildID snowflake.ID) error {
	path := fmt.Sprintf("%s/sessions/%s/players/%s/sponsorblock/categories", apiVersionPrefix, sessionID, guildID)
	_, err := c.Do(ctx, http.MethodDelete, path, nil)
	return err
}

// cachedGet serves a GET from the TTL cache, falling through to the node.
func (c *RestClient) cachedGet(ctx context.Context, path string) ([]byte, error) {
	key := http.MethodGet + ":" + path
	if body, ok := c.getCache.get(key); ok {
		return body, nil
	}
	body, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	c.getCache.set(key, body)
	return body, nil
}

// Do performs one request against the node, with retries for idempotent
// methods and in-flight deduplication for identical concurrent calls.
func (c *RestClient) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	key := method + ":" + path + ":" + string(payload)
	result, err, _ := c.inflight.Do(key, func() (any, error) {
		return c.doWithRetries(ctx, method, path, payload)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// retriable reports whether a method may be safely replayed.
func retriable(method string) bool {
	return method == http.MethodGet || method == http.MethodPatch
}

func (c *RestClient) doWithRetries(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	attempts := 1
	if retriable(method) {
		attempts = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, retryBackoffBase, retryBackoffMax, retryBackoffJitter)
			c.logger.Debug("retrying request",
				"method", method, "path", path, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var restErr *RestError
		if errors.As(err, &restErr) && !restErr.Retriable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *RestClient) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.password)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		restErr := &RestError{Status: resp.StatusCode}
		// The error body is best effort; the status alone is meaningful.
		_ = json.Unmarshal(body, &restErr.Body)
		return nil, restErr
	}
	return body, nil
}
