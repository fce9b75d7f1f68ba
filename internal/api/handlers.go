package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/analytics"
	"github.com/homequest/realestate-search/internal/cache"
	"github.com/homequest/realestate-search/internal/events"
	"github.com/homequest/realestate-search/internal/index"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/registry"
	"github.com/homequest/realestate-search/internal/search"
)

const (
	maxRequestBodySize = 1 << 20 // 1 MB
	maxQueryLen        = 256
)

// truncateQuery caps q at maxQueryLen bytes, backing off to the nearest
// rune boundary so the cut never leaves a broken UTF-8 tail.
func truncateQuery(q string) string {
	if len(q) <= maxQueryLen {
		return q
	}
	cut := maxQueryLen
	for cut > 0 && !utf8.RuneStart(q[cut]) {
		cut--
	}
	return q[:cut]
}

// Resolver is the decision engine behind /search/resolve and /search/parse.
type Resolver interface {
	Resolve(ctx context.Context, rawQuery, cityID, contextURL string) (*models.Decision, error)
	Parse(raw string) models.ParsedQuery
}

// SearchService backs the grouped SERP, suggest and trending endpoints.
type SearchService interface {
	Search(ctx context.Context, q, cityID string, limit int) (*search.Response, error)
	Suggest(ctx context.Context, q, cityID string, limit int) (*search.SuggestResponse, error)
	Trending(ctx context.Context, cityID string, limit int) ([]models.Entity, error)
}

// ZeroStateService builds the pre-typing payload.
type ZeroStateService interface {
	ZeroState(ctx context.Context, cityID string, limit int) (*models.ZeroState, error)
}

// EventSink is the durable event log.
type EventSink interface {
	LogSearch(ev *models.SearchEvent) error
	LogClick(ev *models.ClickEvent) error
}

// EntityPublisher feeds entity change events into the ingestion topic.
type EntityPublisher interface {
	PublishBatch(ctx context.Context, events []*models.EntityChangeEvent) error
}

// AdminIndex is the slice of the index client the admin surface needs.
type AdminIndex interface {
	EnsureIndex(ctx context.Context) error
	ResetIndex(ctx context.Context) error
	Seed(ctx context.Context) error
	HealthCheck(ctx context.Context) (string, error)
}

type Handler struct {
	resolver  Resolver
	searchSvc SearchService
	zeroState ZeroStateService
	events    EventSink
	logger    *zap.Logger

	// Optional collaborators; each surface degrades without one.
	cache     *cache.RedisCache
	producer  *events.Producer
	analytics *analytics.Client
	admin     AdminIndex
	redirects *registry.Registry
	ingest    EntityPublisher
}

func NewHandler(res Resolver, searchSvc SearchService, zeroState ZeroStateService, sink EventSink, logger *zap.Logger) *Handler {
	return &Handler{
		resolver:  res,
		searchSvc: searchSvc,
		zeroState: zeroState,
		events:    sink,
		logger:    logger,
	}
}

// WithCache attaches the Redis cache fronting resolve decisions.
func (h *Handler) WithCache(c *cache.RedisCache) *Handler {
	h.cache = c
	return h
}

// WithProducer attaches the Kafka event producer.
func (h *Handler) WithProducer(p *events.Producer) *Handler {
	h.producer = p
	return h
}

// WithAnalytics attaches the ClickHouse analytics sink.
func (h *Handler) WithAnalytics(a *analytics.Client) *Handler {
	h.analytics = a
	return h
}

// WithAdmin attaches the index admin surface and the redirect registry.
func (h *Handler) WithAdmin(idx AdminIndex, redirects *registry.Registry) *Handler {
	h.admin = idx
	h.redirects = redirects
	return h
}

// WithIngest attaches the entity change publisher for admin bulk updates.
func (h *Handler) WithIngest(p EntityPublisher) *Handler {
	h.ingest = p
	return h
}

// Resolve is GET /api/v1/search/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)

	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}
	q = truncateQuery(q)
	cityID := r.URL.Query().Get("city_id")
	contextURL := r.URL.Query().Get("context_url")

	if h.cache != nil {
		cached, err := h.cache.GetDecision(ctx, q, cityID, contextURL)
		if err != nil {
			h.logger.Warn("decision cache error", zap.Error(err))
		}
		if cached != nil {
			h.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	decision, err := h.resolver.Resolve(ctx, q, cityID, contextURL)
	if err != nil {
		h.logger.Error("resolve failed",
			zap.String("request_id", requestID),
			zap.String("query", q),
			zap.Error(err),
		)
		if errors.Is(err, index.ErrUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, "index_unavailable", "Entity index temporarily unavailable")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "resolve_error", "Resolve service error")
		return
	}

	if h.cache != nil {
		if err := h.cache.SetDecision(ctx, q, cityID, contextURL, decision); err != nil {
			h.logger.Warn("decision cache set error", zap.Error(err))
		}
	}

	h.writeJSON(w, http.StatusOK, decision)
}

type parseResponse struct {
	models.ParsedQuery
	OK bool `json:"ok"`
}

// ParseQuery is GET /api/v1/search/parse. It exposes the parser for QA and
// frontend debugging without running the decision policy.
func (h *Handler) ParseQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}
	q = truncateQuery(q)

	h.writeJSON(w, http.StatusOK, parseResponse{
		ParsedQuery: h.resolver.Parse(q),
		OK:          true,
	})
}

// Serp is GET /api/v1/search: the grouped results page.
func (h *Handler) Serp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := r.URL.Query().Get("q")
	cityID := r.URL.Query().Get("city_id")
	limit := intParam(r, "limit", 20)

	resp, err := h.searchSvc.Search(ctx, q, cityID, limit)
	if err != nil {
		h.logger.Error("serp failed", zap.String("query", q), zap.Error(err))
		if errors.Is(err, index.ErrUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, "index_unavailable", "Entity index temporarily unavailable")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "search_error", "Search service error")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Suggest is GET /api/v1/search/suggest.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := r.URL.Query().Get("q")
	cityID := r.URL.Query().Get("city_id")
	limit := intParam(r, "limit", 10)

	resp, err := h.searchSvc.Suggest(ctx, q, cityID, limit)
	if err != nil {
		h.logger.Error("suggest failed", zap.String("query", q), zap.Error(err))
		if errors.Is(err, index.ErrUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, "index_unavailable", "Entity index temporarily unavailable")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "suggest_error", "Suggest service error")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Trending is GET /api/v1/search/trending.
func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cityID := r.URL.Query().Get("city_id")
	limit := intParam(r, "limit", 10)

	entities, err := h.searchSvc.Trending(ctx, cityID, limit)
	if err != nil {
		h.logger.Error("trending failed", zap.String("city_id", cityID), zap.Error(err))
		if errors.Is(err, index.ErrUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, "index_unavailable", "Entity index temporarily unavailable")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "trending_error", "Trending service error")
		return
	}

	if entities == nil {
		entities = []models.Entity{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"city_id":  cityID,
		"trending": entities,
	})
}

// ZeroState is GET /api/v1/search/zero-state.
func (h *Handler) ZeroState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cityID := r.URL.Query().Get("city_id")
	limit := intParam(r, "limit", 8)

	zs, err := h.zeroState.ZeroState(ctx, cityID, limit)
	if err != nil {
		h.logger.Error("zero state failed", zap.String("city_id", cityID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "zero_state_error", "Zero state service error")
		return
	}

	h.writeJSON(w, http.StatusOK, zs)
}

// LogSearchEvent is POST /api/v1/events/search.
func (h *Handler) LogSearchEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.SearchEvent
	if err := decodeBody(r, &ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if ev.QueryID == "" || (ev.RawQuery == "" && ev.NormalizedQuery == "") {
		h.writeError(w, http.StatusBadRequest, "invalid_event", "query_id and a query are required")
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := h.events.LogSearch(&ev); err != nil {
		h.logger.Error("search event write failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "event_error", "Failed to record event")
		return
	}

	h.fanOutSearchEvent(&ev)
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// LogClickEvent is POST /api/v1/events/click.
func (h *Handler) LogClickEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.ClickEvent
	if err := decodeBody(r, &ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if ev.QueryID == "" || ev.EntityID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_event", "query_id and entity_id are required")
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := h.events.LogClick(&ev); err != nil {
		h.logger.Error("click event write failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "event_error", "Failed to record event")
		return
	}

	h.fanOutClickEvent(&ev)
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// fanOutSearchEvent ships the event to Kafka and ClickHouse off the request
// path. The JSONL log already holds the durable copy.
func (h *Handler) fanOutSearchEvent(ev *models.SearchEvent) {
	if h.producer == nil && h.analytics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if h.producer != nil {
			if err := h.producer.PublishSearch(ctx, ev); err != nil {
				h.logger.Warn("search event publish failed", zap.Error(err))
			}
		}
		if h.analytics != nil {
			if err := h.analytics.InsertSearchEvent(ctx, ev); err != nil {
				h.logger.Warn("search event analytics insert failed", zap.Error(err))
			}
		}
	}()
}

func (h *Handler) fanOutClickEvent(ev *models.ClickEvent) {
	if h.producer == nil && h.analytics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if h.producer != nil {
			if err := h.producer.PublishClick(ctx, ev); err != nil {
				h.logger.Warn("click event publish failed", zap.Error(err))
			}
		}
		if h.analytics != nil {
			if err := h.analytics.InsertClickEvent(ctx, ev); err != nil {
				h.logger.Warn("click event analytics insert failed", zap.Error(err))
			}
		}
	}()
}

// PingIndex is GET /api/v1/admin/ping-es.
func (h *Handler) PingIndex(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		h.writeError(w, http.StatusNotImplemented, "admin_disabled", "Admin surface not configured")
		return
	}
	status, err := h.admin.HealthCheck(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "es_unreachable", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cluster_status": status})
}

// CreateIndex is POST /api/v1/admin/create-index.
func (h *Handler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		h.writeError(w, http.StatusNotImplemented, "admin_disabled", "Admin surface not configured")
		return
	}
	if err := h.admin.EnsureIndex(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, "create_index_error", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ResetIndex is POST /api/v1/admin/reset-index. Drops, recreates and seeds.
func (h *Handler) ResetIndex(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		h.writeError(w, http.StatusNotImplemented, "admin_disabled", "Admin surface not configured")
		return
	}
	if err := h.admin.ResetIndex(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, "reset_index_error", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// SeedIndex is POST /api/v1/admin/seed.
func (h *Handler) SeedIndex(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		h.writeError(w, http.StatusNotImplemented, "admin_disabled", "Admin surface not configured")
		return
	}
	if err := h.admin.Seed(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, "seed_error", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ReloadRedirects is POST /api/v1/admin/reload-redirects.
func (h *Handler) ReloadRedirects(w http.ResponseWriter, r *http.Request) {
	if h.redirects == nil {
		h.writeError(w, http.StatusNotImplemented, "admin_disabled", "Redirect registry not configured")
		return
	}
	if err := h.redirects.Reload(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, "reload_error", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "entries": h.redirects.Len()})
}

// PublishEntities is POST /api/v1/admin/entities. Admin catalogue updates go
// through the ingestion topic so they follow the same bulk-index and
// cache-invalidation path as upstream changes.
func (h *Handler) PublishEntities(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		h.writeError(w, http.StatusNotImplemented, "admin_disabled", "Entity ingestion not configured")
		return
	}

	var events []*models.EntityChangeEvent
	if err := decodeBody(r, &events); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if len(events) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "At least one change event is required")
		return
	}
	for i, ev := range events {
		if ev.EntityID == "" || ev.Type == "" {
			h.writeError(w, http.StatusBadRequest, "invalid_event", "entity_id and type are required")
			return
		}
		if ev.Timestamp.IsZero() {
			events[i].Timestamp = time.Now().UTC()
		}
	}

	if err := h.ingest.PublishBatch(r.Context(), events); err != nil {
		h.logger.Error("entity publish failed", zap.Int("count", len(events)), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "publish_error", "Failed to publish change events")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "published": len(events)})
}

// TopQueries is GET /api/v1/admin/top-queries.
func (h *Handler) TopQueries(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		h.writeError(w, http.StatusNotImplemented, "admin_disabled", "Analytics not configured")
		return
	}

	cityID := r.URL.Query().Get("city_id")
	limit := intParam(r, "limit", 10)
	window := 24 * time.Hour
	if wq := r.URL.Query().Get("window"); wq != "" {
		if parsed, err := time.ParseDuration(wq); err == nil && parsed > 0 {
			window = parsed
		}
	}

	queries, err := h.analytics.TopQueries(r.Context(), cityID, window, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "analytics_error", err.Error())
		return
	}
	if queries == nil {
		queries = []analytics.TopQuery{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "queries": queries})
}

func decodeBody(r *http.Request, dst any) error {
	limited := io.LimitReader(r.Body, maxRequestBodySize)
	return json.NewDecoder(limited).Decode(dst)
}

func intParam(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("writing json response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
