package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/config"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/observability"
)

const (
	searchLogFile = "search.jsonl"
	clickLogFile  = "click.jsonl"
)

// Store is the append-only JSONL event log. It is the durable record the
// zero-state surface reads back; Kafka publication is layered on top and
// best-effort.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewStore(cfg config.EventsConfig, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating events dir %s: %w", cfg.Dir, err)
	}
	return &Store{dir: cfg.Dir, logger: logger}, nil
}

func (s *Store) LogSearch(ev *models.SearchEvent) error {
	if err := s.appendJSONL(searchLogFile, ev); err != nil {
		observability.EventLogWrites.WithLabelValues("search", "error").Inc()
		return err
	}
	observability.EventLogWrites.WithLabelValues("search", "success").Inc()
	return nil
}

func (s *Store) LogClick(ev *models.ClickEvent) error {
	if err := s.appendJSONL(clickLogFile, ev); err != nil {
		observability.EventLogWrites.WithLabelValues("click", "error").Inc()
		return err
	}
	observability.EventLogWrites.WithLabelValues("click", "success").Inc()
	return nil
}

// RecentSearches reads the tail of the search log newest-first, deduped by
// normalized query and city. Malformed lines are skipped, not fatal.
func (s *Store) RecentSearches(cityID string, limit int) ([]models.RecentSearch, error) {
	if limit <= 0 {
		limit = 8
	}

	lines, err := s.readLines(searchLogFile)
	if err != nil {
		return nil, err
	}

	results := make([]models.RecentSearch, 0, limit)
	seen := make(map[string]struct{})

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		var ev models.SearchEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}

		query := strings.TrimSpace(ev.NormalizedQuery)
		if query == "" {
			query = strings.TrimSpace(ev.RawQuery)
		}
		if query == "" {
			continue
		}

		if cityID != "" && ev.CityID != cityID {
			continue
		}

		key := strings.ToLower(query) + "|" + ev.CityID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		display := strings.TrimSpace(ev.RawQuery)
		if display == "" {
			display = query
		}
		results = append(results, models.RecentSearch{
			Query:      display,
			CityID:     ev.CityID,
			ContextURL: ev.ContextURL,
			Timestamp:  ev.Timestamp,
		})

		if len(results) >= limit {
			break
		}
	}

	return results, nil
}

func (s *Store) appendJSONL(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening event log %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending to event log %s: %w", path, err)
	}
	return nil
}

func (s *Store) readLines(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading event log %s: %w", path, err)
	}
	return lines, nil
}
