package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/config"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/observability"
	"github.com/homequest/realestate-search/internal/resilience"
)

// ErrUnavailable marks failures where the index itself could not be reached:
// transport errors, timeouts, open circuit. Callers must surface these as
// service errors, never as an empty result.
var ErrUnavailable = errors.New("entity index unavailable")

type Client struct {
	es       *elasticsearch.Client
	cb       *gobreaker.CircuitBreaker
	cfg      config.ElasticsearchConfig
	retryCfg resilience.RetryConfig
	logger   *zap.Logger
}

func NewClient(cfg config.ElasticsearchConfig, logger *zap.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("pinging elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping returned status: %s", res.Status())
	}

	cb := resilience.NewCircuitBreaker("entity-index", cfg.CircuitBreaker, logger)

	logger.Info("entity index connected",
		zap.Strings("addresses", cfg.Addresses),
		zap.String("index", cfg.Index),
	)

	return &Client{
		es:  es,
		cb:  cb,
		cfg: cfg,
		retryCfg: resilience.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			InitialWait: cfg.Retry.InitialWait,
			MaxWait:     cfg.Retry.MaxWait,
			Multiplier:  cfg.Retry.Multiplier,
		},
		logger: logger,
	}, nil
}

// SearchResult carries decoded hits plus the term-suggester correction, if
// any.
type SearchResult struct {
	Hits       []models.Entity
	Total      int64
	TookMs     int64
	TimedOut   bool
	DidYouMean string
}

func (c *Client) Search(ctx context.Context, query map[string]any) (*SearchResult, error) {
	ctx, span := observability.StartSpan(ctx, "index.search",
		attribute.String("es.index", c.cfg.Index),
	)
	defer span.End()

	start := time.Now()

	cbResult, err := c.cb.Execute(func() (any, error) {
		var retryResult *SearchResult
		retryErr := resilience.Retry(ctx, c.retryCfg, func() error {
			var execErr error
			retryResult, execErr = c.executeSearch(ctx, query)
			return execErr
		})
		return retryResult, retryErr
	})

	duration := time.Since(start)
	if err != nil {
		observability.ESQueryDuration.WithLabelValues("search", "error").Observe(duration.Seconds())
		return nil, fmt.Errorf("searching index %s: %w: %w", c.cfg.Index, ErrUnavailable, err)
	}

	result, ok := cbResult.(*SearchResult)
	if !ok || result == nil {
		observability.ESQueryDuration.WithLabelValues("search", "error").Observe(duration.Seconds())
		return nil, fmt.Errorf("searching index %s: %w: nil result", c.cfg.Index, ErrUnavailable)
	}
	observability.ESQueryDuration.WithLabelValues("search", "success").Observe(duration.Seconds())

	return result, nil
}

func (c *Client) executeSearch(ctx context.Context, query map[string]any) (*SearchResult, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshaling es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.cfg.Index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithTimeout(c.cfg.RequestTimeout),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("executing es search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("es search error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("decoding es response: %w", err)
	}

	queryText, _ := extractSuggestText(query)

	hits := make([]models.Entity, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hits = append(hits, entityFromHit(h))
	}

	return &SearchResult{
		Hits:       hits,
		Total:      esResp.Hits.Total.Value,
		TookMs:     esResp.Took,
		TimedOut:   esResp.TimedOut,
		DidYouMean: extractDidYouMean(esResp.Suggest, queryText),
	}, nil
}

// SearchEntities runs the strict entity query used during resolution.
func (c *Client) SearchEntities(ctx context.Context, q string, limit int, cityID string, entityTypes []models.EntityType) ([]models.Entity, error) {
	result, err := c.Search(ctx, EntityQuery(q, limit, cityID, entityTypes))
	if err != nil {
		return nil, err
	}
	return result.Hits, nil
}

// LookupByCanonicalPath returns the entity owning a canonical URL path, or
// nil when no entity claims it.
func (c *Client) LookupByCanonicalPath(ctx context.Context, path string) (*models.Entity, error) {
	result, err := c.Search(ctx, CanonicalPathQuery(path))
	if err != nil {
		return nil, err
	}
	if len(result.Hits) == 0 {
		return nil, nil
	}
	ent := result.Hits[0]
	return &ent, nil
}

func (c *Client) FetchTrending(ctx context.Context, limit int, cityID string) ([]models.Entity, error) {
	return c.FetchTrendingByType(ctx, limit, cityID, nil)
}

// FetchTrendingByType narrows trending to the given entity types. Used by
// the zero-state surface for its locality strip.
func (c *Client) FetchTrendingByType(ctx context.Context, limit int, cityID string, entityTypes []models.EntityType) ([]models.Entity, error) {
	result, err := c.Search(ctx, TrendingQuery(limit, cityID, entityTypes))
	if err != nil {
		return nil, err
	}
	return result.Hits, nil
}

func (c *Client) BulkIndex(ctx context.Context, actions []models.IndexAction) error {
	if len(actions) == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "index.bulk",
		attribute.Int("batch_size", len(actions)),
	)
	defer span.End()

	var buf bytes.Buffer
	for _, action := range actions {
		index := action.Index
		if index == "" {
			index = c.cfg.Index
		}
		meta := map[string]any{
			action.Action: map[string]any{
				"_index": index,
				"_id":    action.ID,
			},
		}

		metaLine, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshaling bulk meta: %w", err)
		}
		buf.Write(metaLine)
		buf.WriteByte('\n')

		if action.Action != "delete" && action.Body != nil {
			bodyLine, err := json.Marshal(action.Body)
			if err != nil {
				return fmt.Errorf("marshaling bulk body: %w", err)
			}
			buf.Write(bodyLine)
			buf.WriteByte('\n')
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("executing bulk request: %w: %w", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk request error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var bulkResp bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decoding bulk response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			for _, result := range item {
				if result.Error != nil {
					errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s", result.ID, result.Error.Reason))
				}
			}
		}
		return fmt.Errorf("bulk indexing had errors: %s", strings.Join(errMsgs, "; "))
	}

	return nil
}

// EnsureIndex creates the entity index if it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists(
		[]string{c.cfg.Index},
		c.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("checking index existence: %w: %w", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	return c.createIndex(ctx)
}

// ResetIndex drops and recreates the entity index, then loads the seed
// catalogue. Intended for the admin surface and local development only.
func (c *Client) ResetIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete(
		[]string{c.cfg.Index},
		c.es.Indices.Delete.WithContext(ctx),
		c.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("deleting index: %w: %w", ErrUnavailable, err)
	}
	res.Body.Close()

	if err := c.createIndex(ctx); err != nil {
		return err
	}
	return c.Seed(ctx)
}

func (c *Client) createIndex(ctx context.Context) error {
	body, err := json.Marshal(IndexSettings(c.cfg.NumShards, c.cfg.NumReplicas))
	if err != nil {
		return fmt.Errorf("marshaling index settings: %w", err)
	}

	res, err := c.es.Indices.Create(
		c.cfg.Index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("creating index: %w: %w", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	c.logger.Info("entity index created", zap.String("index", c.cfg.Index))
	return nil
}

// Seed bulk-loads the seed catalogue into the entity index.
func (c *Client) Seed(ctx context.Context) error {
	docs := SeedDocs()
	actions := make([]models.IndexAction, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc["id"].(string)
		actions = append(actions, models.IndexAction{
			Action: "index",
			Index:  c.cfg.Index,
			ID:     id,
			Body:   doc,
		})
	}
	if err := c.BulkIndex(ctx, actions); err != nil {
		return fmt.Errorf("seeding index: %w", err)
	}
	c.logger.Info("entity index seeded", zap.Int("docs", len(actions)))
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) (string, error) {
	res, err := c.es.Cluster.Health(
		c.es.Cluster.Health.WithContext(ctx),
	)
	if err != nil {
		return "red", fmt.Errorf("es health check: %w", err)
	}
	defer res.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return "red", fmt.Errorf("decoding health response: %w", err)
	}
	return health.Status, nil
}

func (c *Client) Close() error {
	return nil
}

func entityFromHit(h esHit) models.Entity {
	ent := models.Entity{}
	if h.Source != nil {
		if v, ok := h.Source["id"].(string); ok {
			ent.ID = v
		}
		if v, ok := h.Source["entity_type"].(string); ok {
			ent.EntityType = models.EntityType(v)
		}
		if v, ok := h.Source["name"].(string); ok {
			ent.Name = v
		}
		if v, ok := h.Source["city"].(string); ok {
			ent.City = v
		}
		if v, ok := h.Source["city_id"].(string); ok {
			ent.CityID = v
		}
		if v, ok := h.Source["parent_name"].(string); ok {
			ent.ParentName = v
		}
		if v, ok := h.Source["canonical_url"].(string); ok {
			ent.CanonicalURL = v
		}
		if v, ok := h.Source["popularity_score"].(float64); ok {
			pop := v
			ent.PopularityScore = &pop
		}
	}
	if h.Score != nil {
		score := *h.Score
		ent.Score = &score
	}
	return ent
}

// extractDidYouMean folds token-level term-suggester corrections back into
// the original query string.
func extractDidYouMean(suggest map[string][]esSuggestEntry, original string) string {
	entries, ok := suggest["did_you_mean"]
	if !ok || original == "" {
		return ""
	}

	tokens := strings.Fields(original)
	for _, entry := range entries {
		if len(entry.Options) == 0 {
			continue
		}
		top := entry.Options[0]
		if top.Text == "" || entry.Text == "" {
			continue
		}
		for i, tok := range tokens {
			if tok == entry.Text {
				tokens[i] = top.Text
				break
			}
		}
	}

	candidate := strings.TrimSpace(strings.Join(tokens, " "))
	if candidate == "" || strings.EqualFold(candidate, original) {
		return ""
	}
	return candidate
}

func extractSuggestText(query map[string]any) (string, bool) {
	suggest, ok := query["suggest"].(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := suggest["text"].(string)
	return text, ok
}

// ES response types

type esSearchResponse struct {
	Took     int64 `json:"took"`
	TimedOut bool  `json:"timed_out"`
	Hits     struct {
		Total struct {
			Value    int64  `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
	Suggest map[string][]esSuggestEntry `json:"suggest,omitempty"`
}

type esHit struct {
	Index  string         `json:"_index"`
	ID     string         `json:"_id"`
	Score  *float64       `json:"_score"`
	Source map[string]any `json:"_source"`
}

type esSuggestEntry struct {
	Text    string `json:"text"`
	Offset  int    `json:"offset"`
	Length  int    `json:"length"`
	Options []struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	} `json:"options"`
}

type bulkResponse struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkItemResult `json:"items"`
}

type bulkItemResult struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}
