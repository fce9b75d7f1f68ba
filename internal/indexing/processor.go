package indexing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/cache"
	"github.com/homequest/realestate-search/internal/config"
	"github.com/homequest/realestate-search/internal/index"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/observability"
)

// StreamProcessor turns entity change events into buffered bulk writes
// against the entity index and invalidates the resolve caches that the
// changed entity could affect.
type StreamProcessor struct {
	idx    *index.Client
	cache  *cache.RedisCache
	esCfg  config.ElasticsearchConfig
	logger *zap.Logger

	// Bulk buffer
	mu     sync.Mutex
	buffer []models.IndexAction
	ticker *time.Ticker
	done   chan struct{}
}

func NewStreamProcessor(
	idx *index.Client,
	cache *cache.RedisCache,
	esCfg config.ElasticsearchConfig,
	logger *zap.Logger,
) *StreamProcessor {
	sp := &StreamProcessor{
		idx:    idx,
		cache:  cache,
		esCfg:  esCfg,
		logger: logger,
		buffer: make([]models.IndexAction, 0, esCfg.BulkSize),
		ticker: time.NewTicker(esCfg.BulkFlushInterval),
		done:   make(chan struct{}),
	}

	go sp.flushLoop()

	return sp
}

func (sp *StreamProcessor) HandleEvent(ctx context.Context, event *models.EntityChangeEvent) error {
	action, err := sp.transformEvent(event)
	if err != nil {
		return fmt.Errorf("transforming event: %w", err)
	}

	// Buffer for bulk indexing
	sp.mu.Lock()
	sp.buffer = append(sp.buffer, *action)
	shouldFlush := len(sp.buffer) >= sp.esCfg.BulkSize
	sp.mu.Unlock()

	if shouldFlush {
		if err := sp.flush(ctx); err != nil {
			sp.logger.Error("flush on buffer full failed", zap.Error(err))
		}
	}

	// An entity change can flip any resolve outcome, so the whole decision
	// surface is dropped rather than guessing affected keys.
	if sp.cache != nil {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := sp.cache.InvalidateResolveSurfaces(cacheCtx); err != nil {
				sp.logger.Warn("cache invalidation failed",
					zap.String("entity_id", event.EntityID),
					zap.Error(err),
				)
			}
		}()
	}

	return nil
}

func (sp *StreamProcessor) transformEvent(event *models.EntityChangeEvent) (*models.IndexAction, error) {
	action := &models.IndexAction{
		ID:        event.EntityID,
		Timestamp: event.Timestamp,
	}

	switch event.Type {
	case "CREATE", "UPDATE":
		action.Action = "index"
		action.Body = sp.extractEntityFields(event.Document)
	case "DELETE":
		action.Action = "delete"
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}

	return action, nil
}

func (sp *StreamProcessor) extractEntityFields(doc map[string]any) map[string]any {
	fields := map[string]any{
		"freshness_ts": time.Now().UTC().Format(time.RFC3339),
	}

	indexedFields := []string{
		"id", "entity_type", "name", "name_sayt", "aliases",
		"city", "city_id", "parent_name", "canonical_url",
		"status", "popularity_score", "suggest",
	}

	for _, field := range indexedFields {
		if v, ok := doc[field]; ok {
			fields[field] = v
		}
	}

	// name_sayt mirrors name unless the producer set it explicitly.
	if _, ok := fields["name_sayt"]; !ok {
		if name, ok := fields["name"]; ok {
			fields["name_sayt"] = name
		}
	}

	return fields
}

func (sp *StreamProcessor) flushLoop() {
	for {
		select {
		case <-sp.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := sp.flush(ctx); err != nil {
				sp.logger.Error("periodic flush failed", zap.Error(err))
			}
			cancel()
		case <-sp.done:
			return
		}
	}
}

func (sp *StreamProcessor) flush(ctx context.Context) error {
	sp.mu.Lock()
	if len(sp.buffer) == 0 {
		sp.mu.Unlock()
		return nil
	}
	batch := make([]models.IndexAction, len(sp.buffer))
	copy(batch, sp.buffer)
	sp.buffer = sp.buffer[:0]
	sp.mu.Unlock()

	start := time.Now()
	if err := sp.idx.BulkIndex(ctx, batch); err != nil {
		// Put failed items back into buffer for retry
		sp.mu.Lock()
		sp.buffer = append(batch, sp.buffer...)
		sp.mu.Unlock()

		observability.IndexingEventsTotal.WithLabelValues("bulk", "error").Inc()
		return fmt.Errorf("bulk index flush: %w", err)
	}

	observability.IndexingEventsTotal.WithLabelValues("bulk", "success").Add(float64(len(batch)))
	sp.logger.Info("bulk flush completed",
		zap.Int("count", len(batch)),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

func (sp *StreamProcessor) Stop() error {
	sp.ticker.Stop()
	close(sp.done)

	// Final flush
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return sp.flush(ctx)
}
