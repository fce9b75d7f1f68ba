package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexHealthChecker reports the cluster status string alongside the error.
type IndexHealthChecker interface {
	HealthCheck(ctx context.Context) (string, error)
}

// HealthHandler serves liveness and readiness. Required components (cache,
// entity index) gate readiness; optional ones (analytics, ingestion) are
// reported but never flip the probe, since resolve keeps working without them.
type HealthHandler struct {
	required map[string]HealthChecker
	optional map[string]HealthChecker
	index    IndexHealthChecker
	logger   *zap.Logger
}

func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		required: make(map[string]HealthChecker),
		optional: make(map[string]HealthChecker),
		logger:   logger,
	}
}

func (h *HealthHandler) Register(name string, checker HealthChecker) {
	h.required[name] = checker
}

func (h *HealthHandler) RegisterOptional(name string, checker HealthChecker) {
	h.optional[name] = checker
}

func (h *HealthHandler) RegisterIndex(checker IndexHealthChecker) {
	h.index = checker
}

type componentHealth struct {
	Status   string `json:"status"`
	Latency  string `json:"latency,omitempty"`
	Error    string `json:"error,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]componentHealth)
	var mu sync.Mutex
	var wg sync.WaitGroup

	check := func(name string, checker HealthChecker, optional bool) {
		defer wg.Done()
		start := time.Now()
		err := checker.HealthCheck(ctx)
		ch := componentHealth{
			Status:   "healthy",
			Latency:  time.Since(start).String(),
			Optional: optional,
		}
		if err != nil {
			ch.Status = "unhealthy"
			ch.Error = err.Error()
		}
		mu.Lock()
		results[name] = ch
		mu.Unlock()
	}

	for name, checker := range h.required {
		wg.Add(1)
		go check(name, checker, false)
	}
	for name, checker := range h.optional {
		wg.Add(1)
		go check(name, checker, true)
	}

	if h.index != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			status, err := h.index.HealthCheck(ctx)
			ch := componentHealth{
				Status:  status,
				Latency: time.Since(start).String(),
			}
			if err != nil {
				ch.Status = "unhealthy"
				ch.Error = err.Error()
			}
			mu.Lock()
			results["elasticsearch"] = ch
			mu.Unlock()
		}()
	}

	wg.Wait()

	overallStatus := http.StatusOK
	overall := "healthy"
	for _, ch := range results {
		if ch.Status == "healthy" || ch.Status == "green" || ch.Status == "yellow" {
			continue
		}
		if ch.Optional {
			overall = "degraded"
			continue
		}
		overallStatus = http.StatusServiceUnavailable
		overall = "degraded"
		break
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(overallStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     overall,
		"components": results,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
