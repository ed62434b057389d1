// Package places talks to the third-party place search service used by address
// entry: autocomplete suggestions and the details of a picked place.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"routemaster/internal/api"
	"routemaster/internal/domain"
	"routemaster/internal/store"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MinQueryLength shorter queries are answered with no suggestions.
	MinQueryLength = 4

	DefaultBaseURL  = "https://places.googleapis.com/v1/places"
	DefaultLanguage = "de-DE"
	DefaultRegion   = "de"

	detailsFieldMask = "location,formattedAddress,addressComponents"
	searchKeyPrefix  = "places:search:"
	failureMessage   = "Error while searching places."
)

// Doer executes a request against an absolute URL; *api.Client implements it.
type Doer interface {
	Do(ctx context.Context, req api.Request, out any) error
}

type Config struct {
	BaseURL  string
	APIKey   string
	Language string
	Region   string
	// CacheTTL applies to stored suggestion lists; zero keeps them forever.
	CacheTTL time.Duration
}

// Client is safe for concurrent use. A session token groups the searches that
// lead up to one details lookup and is replaced once details were fetched.
type Client struct {
	http     Doer
	cache    store.KV
	cfg      Config
	notifier store.Notifier
	logger   *zap.Logger

	mu         sync.Mutex
	session    string
	newSession func() string
}

// NewClient wires a places client. cache may be shared between processes
// (store.RedisKV) or local (store.MemoryKV); nil means a fresh MemoryKV.
func NewClient(http Doer, cache store.KV, cfg Config, notifier store.Notifier, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = store.NewMemoryKV()
	}
	if notifier == nil {
		notifier = store.LogNotifier{Logger: logger}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	c := &Client{
		http:       http,
		cache:      cache,
		cfg:        cfg,
		notifier:   notifier,
		logger:     logger.With(zap.String("component", "places")),
		newSession: uuid.NewString,
	}
	c.session = c.newSession()
	return c
}

type autocompleteRequest struct {
	Input        string `json:"input"`
	LanguageCode string `json:"languageCode"`
	RegionCode   string `json:"regionCode"`
	SessionToken string `json:"sessionToken"`
}

// SessionToken returns the token the next request will carry.
func (c *Client) SessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) rotateSession() {
	c.mu.Lock()
	c.session = c.newSession()
	c.mu.Unlock()
}

// SearchPlaces returns suggestions for query. Results are cached per raw query
// string; queries shorter than MinQueryLength never reach the network. Callers
// superseding a search cancel the previous ctx themselves.
func (c *Client) SearchPlaces(ctx context.Context, query string) ([]domain.PlaceSearchResult, error) {
	if utf8.RuneCountInString(query) < MinQueryLength {
		return []domain.PlaceSearchResult{}, nil
	}
	if cached, ok := c.cached(ctx, query); ok {
		return cached, nil
	}

	var resp domain.PlacePredictionResponse
	err := c.http.Do(ctx, api.Request{
		Method: resty.MethodPost,
		Path:   c.cfg.BaseURL + ":autocomplete",
		Body: autocompleteRequest{
			Input:        query,
			LanguageCode: c.cfg.Language,
			RegionCode:   c.cfg.Region,
			SessionToken: c.SessionToken(),
		},
		Header: c.headers(nil),
	}, &resp)
	if err != nil {
		return nil, c.fail(err, "search places", zap.String("query", query))
	}

	results := make([]domain.PlaceSearchResult, 0, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		results = append(results, domain.PlaceSearchResult{
			PlaceID:          s.PlacePrediction.PlaceID,
			FormattedAddress: s.PlacePrediction.Text.Text,
		})
	}
	if len(results) > 0 {
		c.remember(ctx, query, results)
	}
	return results, nil
}

// GetPlaceDetails resolves a suggestion to a location and address components
// and starts a new session.
func (c *Client) GetPlaceDetails(ctx context.Context, placeID string) (domain.PlaceDetailsResult, error) {
	var out domain.PlaceDetailsResult
	err := c.http.Do(ctx, api.Request{
		Method: resty.MethodGet,
		Path:   c.cfg.BaseURL + "/" + url.PathEscape(placeID),
		Query:  url.Values{"sessionToken": {c.SessionToken()}},
		Header: c.headers(map[string]string{"X-Goog-FieldMask": detailsFieldMask}),
	}, &out)
	if err != nil {
		return out, c.fail(err, "get place details", zap.String("place_id", placeID))
	}
	c.rotateSession()
	return out, nil
}

// CachedQueries lists the queries with stored suggestions.
func (c *Client) CachedQueries(ctx context.Context) ([]string, error) {
	keys, err := c.cache.ScanKeys(ctx, searchKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan places cache: %w", err)
	}
	queries := make([]string, len(keys))
	for i, k := range keys {
		queries[i] = strings.TrimPrefix(k, searchKeyPrefix)
	}
	return queries, nil
}

func (c *Client) headers(extra map[string]string) map[string]string {
	h := map[string]string{"X-Goog-Api-Key": c.cfg.APIKey}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func (c *Client) cached(ctx context.Context, query string) ([]domain.PlaceSearchResult, bool) {
	raw, err := c.cache.Get(ctx, searchKeyPrefix+query)
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			c.logger.Warn("Places cache read failed", zap.String("query", query), zap.Error(err))
		}
		return nil, false
	}
	var results []domain.PlaceSearchResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		c.logger.Warn("Dropping unreadable places cache entry", zap.String("query", query), zap.Error(err))
		return nil, false
	}
	c.logger.Debug("Places cache hit", zap.String("query", query))
	return results, true
}

func (c *Client) remember(ctx context.Context, query string, results []domain.PlaceSearchResult) {
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, searchKeyPrefix+query, string(raw), c.cfg.CacheTTL); err != nil {
		c.logger.Warn("Places cache write failed", zap.String("query", query), zap.Error(err))
	}
}

func (c *Client) fail(err error, op string, fields ...zap.Field) error {
	if api.IsCanceled(err) {
		c.logger.Debug("Places request canceled", append(fields, zap.String("op", op))...)
		return err
	}
	c.logger.Error("Places request failed", append(fields, zap.String("op", op), zap.Error(err))...)
	c.notifier.Notify(store.SeverityError, failureMessage)
	return fmt.Errorf("%s: %w", op, err)
}
