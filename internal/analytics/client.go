package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/config"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/observability"
)

// Client is the ClickHouse analytics sink. Search and click events land
// here for offline analysis; resolve latency rows back the slow-query
// dashboards.
type Client struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewClient(cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	logger.Info("clickhouse analytics connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{
		conn:   conn,
		logger: logger,
	}, nil
}

// EnsureTables creates the analytics tables if they do not exist.
func (c *Client) EnsureTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS search_events (
			query_id String,
			raw_query String,
			normalized_query String,
			city_id String,
			context_url String,
			timestamp DateTime
		) ENGINE = MergeTree()
		ORDER BY (timestamp, city_id)`,
		`CREATE TABLE IF NOT EXISTS click_events (
			query_id String,
			entity_id String,
			entity_type String,
			rank UInt16,
			url String,
			city_id String,
			context_url String,
			timestamp DateTime
		) ENGINE = MergeTree()
		ORDER BY (timestamp, entity_type)`,
		`CREATE TABLE IF NOT EXISTS resolve_latency (
			event_type String,
			query_hash String,
			action String,
			reason String,
			city_id String,
			duration_ms Float64,
			timestamp DateTime,
			trace_id String
		) ENGINE = MergeTree()
		ORDER BY (timestamp, action)`,
	}

	for _, stmt := range statements {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating analytics table: %w", err)
		}
	}
	return nil
}

func (c *Client) InsertSearchEvent(ctx context.Context, ev *models.SearchEvent) error {
	start := time.Now()

	ts, err := time.Parse(time.RFC3339, ev.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	query := `
		INSERT INTO search_events (
			query_id, raw_query, normalized_query, city_id, context_url, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	if err := c.conn.Exec(ctx, query,
		ev.QueryID,
		ev.RawQuery,
		ev.NormalizedQuery,
		ev.CityID,
		ev.ContextURL,
		ts,
	); err != nil {
		observability.CHWriteDuration.WithLabelValues("search_events", "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("ch insert search event: %w", err)
	}
	observability.CHWriteDuration.WithLabelValues("search_events", "success").Observe(time.Since(start).Seconds())
	return nil
}

func (c *Client) InsertClickEvent(ctx context.Context, ev *models.ClickEvent) error {
	start := time.Now()

	ts, err := time.Parse(time.RFC3339, ev.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	query := `
		INSERT INTO click_events (
			query_id, entity_id, entity_type, rank, url, city_id, context_url, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := c.conn.Exec(ctx, query,
		ev.QueryID,
		ev.EntityID,
		ev.EntityType,
		uint16(ev.Rank),
		ev.URL,
		ev.CityID,
		ev.ContextURL,
		ts,
	); err != nil {
		observability.CHWriteDuration.WithLabelValues("click_events", "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("ch insert click event: %w", err)
	}
	observability.CHWriteDuration.WithLabelValues("click_events", "success").Observe(time.Since(start).Seconds())
	return nil
}

// WriteResolveLatency satisfies observability.AnalyticsWriter.
func (c *Client) WriteResolveLatency(ctx context.Context, event *models.AnalyticsEvent) error {
	start := time.Now()

	query := `
		INSERT INTO resolve_latency (
			event_type, query_hash, action, reason, city_id, duration_ms, timestamp, trace_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := c.conn.Exec(ctx, query,
		event.EventType,
		event.QueryHash,
		event.Action,
		event.Reason,
		event.CityID,
		event.DurationMs,
		event.Timestamp,
		event.TraceID,
	); err != nil {
		observability.CHWriteDuration.WithLabelValues("resolve_latency", "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("ch insert resolve latency: %w", err)
	}
	observability.CHWriteDuration.WithLabelValues("resolve_latency", "success").Observe(time.Since(start).Seconds())
	return nil
}

// TopQuery is one row of the query popularity aggregation.
type TopQuery struct {
	Query  string `json:"query"`
	CityID string `json:"city_id,omitempty"`
	Count  int64  `json:"count"`
}

// TopQueries aggregates the most frequent normalized queries over the last
// `window`, optionally scoped to a city.
func (c *Client) TopQueries(ctx context.Context, cityID string, window time.Duration, limit int) ([]TopQuery, error) {
	ctx, span := observability.StartSpan(ctx, "ch.top_queries",
		attribute.String("city_id", cityID),
	)
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	since := time.Now().Add(-window)

	query := `
		SELECT normalized_query, city_id, count() AS cnt
		FROM search_events
		WHERE timestamp >= ? AND (? = '' OR city_id = ?)
		GROUP BY normalized_query, city_id
		ORDER BY cnt DESC
		LIMIT ?
	`
	rows, err := c.conn.Query(ctx, query, since, cityID, cityID, limit)
	if err != nil {
		return nil, fmt.Errorf("ch top queries: %w", err)
	}
	defer rows.Close()

	var out []TopQuery
	for rows.Next() {
		var tq TopQuery
		var cnt uint64
		if err := rows.Scan(&tq.Query, &tq.CityID, &cnt); err != nil {
			return nil, fmt.Errorf("scanning top query row: %w", err)
		}
		tq.Count = int64(cnt)
		out = append(out, tq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top query rows: %w", err)
	}
	return out, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
