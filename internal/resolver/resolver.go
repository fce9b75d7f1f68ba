package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/config"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/observability"
	"github.com/homequest/realestate-search/internal/registry"
)

// EntityIndex is the capability set the resolver consumes from the entity
// index collaborator.
type EntityIndex interface {
	SearchEntities(ctx context.Context, q string, limit int, cityID string, entityTypes []models.EntityType) ([]models.Entity, error)
	LookupByCanonicalPath(ctx context.Context, path string) (*models.Entity, error)
}

// Resolver turns a raw query into a redirect / disambiguate / serp Decision
// by running the ordered policy over parsed signals and index candidates.
type Resolver struct {
	index     EntityIndex
	redirects *registry.Registry
	parser    *QueryParser
	slow      *observability.SlowResolveDetector
	cfg       config.ResolverConfig
	logger    *zap.Logger
}

func New(index EntityIndex, redirects *registry.Registry, slow *observability.SlowResolveDetector, cfg config.ResolverConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		index:     index,
		redirects: redirects,
		parser:    NewQueryParser(),
		slow:      slow,
		cfg:       cfg,
		logger:    logger,
	}
}

// Parse exposes the query parser for the parse endpoint.
func (r *Resolver) Parse(raw string) models.ParsedQuery {
	return r.parser.Parse(raw)
}

// Resolve runs the full decision policy. It returns an error only when the
// entity index is unreachable; every product-level outcome (no results,
// ambiguity, constraint fallback) is a normal Decision.
func (r *Resolver) Resolve(ctx context.Context, rawQuery, cityID, contextURL string) (*models.Decision, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "resolver.resolve",
		attribute.String("query", rawQuery),
		attribute.String("city_id", cityID),
	)
	defer span.End()

	normalized := NormalizeQuery(rawQuery)
	if normalized == "" {
		return r.serpDecision(rawQuery, normalized, cityID, contextURL, models.ReasonEmpty, nil), nil
	}

	decision, err := r.resolve(ctx, rawQuery, normalized, cityID, contextURL)
	if err != nil {
		observability.ResolveRequestsTotal.WithLabelValues("error", "index_error").Inc()
		return nil, err
	}

	elapsed := time.Since(start)
	observability.ResolveRequestsTotal.WithLabelValues(string(decision.Action), string(decision.Reason)).Inc()
	observability.ResolveDuration.WithLabelValues(string(decision.Action)).Observe(elapsed.Seconds())
	if r.slow != nil {
		r.slow.Intercept(ctx, rawQuery, string(decision.Action), string(decision.Reason), cityID, elapsed)
	}
	r.logger.Debug("query resolved",
		zap.String("query", rawQuery),
		zap.String("action", string(decision.Action)),
		zap.String("reason", string(decision.Reason)),
	)
	return decision, nil
}

func (r *Resolver) resolve(ctx context.Context, rawQuery, normalized, cityID, contextURL string) (*models.Decision, error) {
	// Step 1: clean-path shortcut. A path-shaped query first hits the static
	// redirect registry, then an exact canonical lookup. A miss falls through
	// to normal resolution in case the "path" was coincidental.
	if path := ExtractPathCandidate(rawQuery); path != "" {
		if target, ok := r.redirects.Lookup(path); ok {
			return &models.Decision{
				Action:          models.ActionRedirect,
				Query:           rawQuery,
				NormalizedQuery: normalized,
				URL:             target,
				Reason:          models.ReasonRedirectRegistry,
				Debug:           map[string]any{"clean_path": path, "target": target},
			}, nil
		}

		ent, err := r.index.LookupByCanonicalPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("clean path lookup: %w", err)
		}
		if ent != nil {
			return &models.Decision{
				Action:          models.ActionRedirect,
				Query:           rawQuery,
				NormalizedQuery: normalized,
				URL:             ent.CanonicalURL,
				Match:           ent,
				Reason:          models.ReasonCleanURL,
				Debug:           map[string]any{"clean_path": path},
			}, nil
		}
	}

	parsed := r.parser.Parse(rawQuery)

	// Step 2: page-intent routing (rate pages, locality overviews).
	if (parsed.PageIntent == models.PageIntentRate || parsed.PageIntent == models.PageIntentOverview) && parsed.LocationQuery != "" {
		decision, err := r.resolvePageIntent(ctx, rawQuery, parsed, cityID)
		if err != nil {
			return nil, err
		}
		if decision != nil {
			return decision, nil
		}
	}

	// Step 3: builder-intent routing. Tried before constraint-heavy routing
	// because it is the more specific rule.
	if parsed.BuilderHint != "" && parsed.LocationQuery != "" {
		decision, err := r.resolveBuilderIntent(ctx, rawQuery, parsed, cityID)
		if err != nil {
			return nil, err
		}
		if decision != nil {
			return decision, nil
		}
	}

	// Step 4: constraint-heavy routing to listing pages.
	if IsConstraintHeavy(parsed) {
		return r.resolveConstraintHeavy(ctx, rawQuery, parsed, cityID, contextURL)
	}

	// Step 5/6: default entity resolution with same-name disambiguation and
	// the score-gap confidence test.
	return r.resolveDefault(ctx, rawQuery, normalized, cityID, contextURL)
}

func (r *Resolver) resolvePageIntent(ctx context.Context, rawQuery string, parsed models.ParsedQuery, cityID string) (*models.Decision, error) {
	ents, err := r.index.SearchEntities(ctx, parsed.LocationQuery, 10, cityID,
		[]models.EntityType{models.EntityType(parsed.PageIntent)})
	if err != nil {
		return nil, fmt.Errorf("page intent search: %w", err)
	}
	if len(ents) == 0 {
		return nil, nil
	}

	nameKey := NormalizeQuery(parsed.LocationQuery)

	// Same page across different cities with no city scope: let the user pick.
	if cityID == "" {
		if cands := sameNameCandidates(ents, nameKey); len(cands) >= 2 {
			return &models.Decision{
				Action:          models.ActionDisambiguate,
				Query:           rawQuery,
				NormalizedQuery: parsed.NormalizedQuery,
				Candidates:      capCandidates(cands),
				Reason:          models.ReasonPageIntentSameName,
				Debug:           map[string]any{"page_intent": string(parsed.PageIntent), "candidate_count": len(cands)},
			}, nil
		}
	}

	picked := pickBest(ents, nameKey, nil, cityID)
	reason := models.ReasonPageIntentRedirect
	if cityID != "" {
		reason = models.ReasonPageIntentCityScoped
	}
	return &models.Decision{
		Action:          models.ActionRedirect,
		Query:           rawQuery,
		NormalizedQuery: parsed.NormalizedQuery,
		URL:             picked.CanonicalURL,
		Match:           &picked,
		Reason:          reason,
		Debug:           map[string]any{"page_intent": string(parsed.PageIntent), "picked": picked.ID, "city_id": cityID},
	}, nil
}

func (r *Resolver) resolveBuilderIntent(ctx context.Context, rawQuery string, parsed models.ParsedQuery, cityID string) (*models.Decision, error) {
	builders, err := r.index.SearchEntities(ctx, parsed.BuilderHint, 5, "", []models.EntityType{models.TypeBuilder})
	if err != nil {
		return nil, fmt.Errorf("builder search: %w", err)
	}
	if len(builders) == 0 {
		return nil, nil
	}
	builder := pickBest(builders, NormalizeQuery(parsed.BuilderHint), nil, "")

	locs, err := r.index.SearchEntities(ctx, parsed.LocationQuery, 10, cityID,
		[]models.EntityType{models.TypeCity, models.TypeMicromarket, models.TypeLocality, models.TypeListingPage})
	if err != nil {
		return nil, fmt.Errorf("builder location search: %w", err)
	}
	if len(locs) == 0 {
		return nil, nil
	}
	loc := pickBest(locs, NormalizeQuery(parsed.LocationQuery),
		[]models.EntityType{models.TypeCity, models.TypeLocality, models.TypeMicromarket}, cityID)

	parsed.BuilderID = builder.ID
	listingURL := BuildListingURL(loc, parsed, "")

	return &models.Decision{
		Action:          models.ActionRedirect,
		Query:           rawQuery,
		NormalizedQuery: parsed.NormalizedQuery,
		URL:             listingURL,
		Match:           &loc,
		Reason:          models.ReasonBuilderIntentListing,
		Debug: map[string]any{
			"builder_hint": parsed.BuilderHint,
			"builder_id":   builder.ID,
			"base":         loc.CanonicalURL,
			"city_id":      cityID,
		},
	}, nil
}

// listingScopes are the entity types a constraint-heavy query may land on.
var listingScopes = []models.EntityType{
	models.TypeCity,
	models.TypeMicromarket,
	models.TypeLocality,
	models.TypeListingPage,
	models.TypeLocalityOverview,
	models.TypeProject,
}

var listingTypePreference = []models.EntityType{
	models.TypeProject, models.TypeLocality, models.TypeCity, models.TypeMicromarket,
}

func (r *Resolver) resolveConstraintHeavy(ctx context.Context, rawQuery string, parsed models.ParsedQuery, cityID, contextURL string) (*models.Decision, error) {
	locationQ := parsed.LocalityHint
	if locationQ == "" {
		locationQ = parsed.LocationQuery
	}

	if locationQ != "" {
		scopes, err := r.index.SearchEntities(ctx, locationQ, 12, cityID, listingScopes)
		if err != nil {
			return nil, fmt.Errorf("constraint location search: %w", err)
		}

		if len(scopes) > 0 {
			key := NormalizeQuery(locationQ)

			if cityID != "" {
				var inCity []models.Entity
				for _, e := range scopes {
					if e.CityID == cityID {
						inCity = append(inCity, e)
					}
				}
				if len(inCity) > 0 {
					picked := pickBest(inCity, key, listingTypePreference, cityID)
					return &models.Decision{
						Action:          models.ActionRedirect,
						Query:           rawQuery,
						NormalizedQuery: parsed.NormalizedQuery,
						URL:             BuildListingURL(picked, parsed, ""),
						Match:           &picked,
						Reason:          models.ReasonConstraintHeavyCityScope,
						Debug:           map[string]any{"city_id": cityID, "base": picked.CanonicalURL},
					}, nil
				}
			}

			candidates := sameNameCandidates(scopes, key)
			if len(candidates) == 0 {
				candidates = scopes
			}
			if cityID == "" && len(candidates) > 1 && distinctCityCount(candidates) > 1 {
				cands := sameTypeOnly(candidates)
				if len(cands) >= 2 {
					return &models.Decision{
						Action:          models.ActionDisambiguate,
						Query:           rawQuery,
						NormalizedQuery: parsed.NormalizedQuery,
						Candidates:      capCandidates(cands),
						Reason:          models.ReasonConstraintHeavySameName,
						Debug:           map[string]any{"candidate_count": len(cands)},
					}, nil
				}
			}

			picked := pickBest(candidates, key, listingTypePreference, cityID)
			return &models.Decision{
				Action:          models.ActionRedirect,
				Query:           rawQuery,
				NormalizedQuery: parsed.NormalizedQuery,
				URL:             BuildListingURL(picked, parsed, ""),
				Match:           &picked,
				Reason:          models.ReasonConstraintHeavyListing,
				Debug:           map[string]any{"base": picked.CanonicalURL},
			}, nil
		}
	}

	// No usable location: SERP, never without a URL.
	return r.serpDecision(rawQuery, parsed.NormalizedQuery, cityID, contextURL, models.ReasonConstraintHeavy, nil), nil
}

func (r *Resolver) resolveDefault(ctx context.Context, rawQuery, normalized, cityID, contextURL string) (*models.Decision, error) {
	ents, err := r.index.SearchEntities(ctx, rawQuery, 10, cityID, nil)
	if err != nil {
		return nil, fmt.Errorf("entity search: %w", err)
	}
	if len(ents) == 0 {
		return r.serpDecision(rawQuery, normalized, cityID, contextURL, models.ReasonNoResults, nil), nil
	}

	top := ents[0]
	var sameName []models.Entity
	for _, e := range ents {
		if NormalizeQuery(e.Name) == NormalizeQuery(top.Name) && e.EntityType == top.EntityType {
			sameName = append(sameName, e)
		}
	}

	if len(sameName) > 1 && distinctCityCount(sameName) > 1 {
		if cityID != "" {
			var scoped []models.Entity
			for _, e := range sameName {
				if e.CityID == cityID {
					scoped = append(scoped, e)
				}
			}
			if len(scoped) == 1 {
				return &models.Decision{
					Action:          models.ActionRedirect,
					Query:           rawQuery,
					NormalizedQuery: normalized,
					URL:             scoped[0].CanonicalURL,
					Match:           &scoped[0],
					Reason:          models.ReasonCityScopedSameName,
					Debug:           map[string]any{"city_id": cityID, "candidate_count": len(sameName)},
				}, nil
			}
		}
		return &models.Decision{
			Action:          models.ActionDisambiguate,
			Query:           rawQuery,
			NormalizedQuery: normalized,
			Candidates:      capCandidates(sameName),
			Reason:          models.ReasonSameName,
			Debug:           map[string]any{"candidate_count": len(sameName)},
		}, nil
	}

	// Score-gap confidence test over the raw ranked list.
	topScore := top.RelevanceScore()
	secondScore := 0.0
	if len(ents) > 1 {
		secondScore = ents[1].RelevanceScore()
	}
	gap := 1.0
	if topScore > 0 {
		gap = (topScore - secondScore) / topScore
	}

	debug := map[string]any{
		"top_score":    topScore,
		"second_score": secondScore,
		"gap":          gap,
		"city_id":      cityID,
	}

	if topScore >= r.cfg.MinRedirectScore && gap >= r.cfg.MinRedirectGap {
		return &models.Decision{
			Action:          models.ActionRedirect,
			Query:           rawQuery,
			NormalizedQuery: normalized,
			URL:             top.CanonicalURL,
			Match:           &top,
			Reason:          models.ReasonConfidentRedirect,
			Debug:           debug,
		}, nil
	}

	return r.serpDecision(rawQuery, normalized, cityID, contextURL, models.ReasonAmbiguous, debug), nil
}

func (r *Resolver) serpDecision(rawQuery, normalized, cityID, contextURL string, reason models.Reason, debug map[string]any) *models.Decision {
	return &models.Decision{
		Action:          models.ActionSerp,
		Query:           rawQuery,
		NormalizedQuery: normalized,
		URL:             BuildSerpURL(rawQuery, cityID, contextURL),
		Reason:          reason,
		Debug:           debug,
	}
}

// pickBest orders candidates by (preferred type, exact name match, city
// scope, relevance, popularity) and returns the winner.
func pickBest(ents []models.Entity, nameKey string, preferTypes []models.EntityType, cityID string) models.Entity {
	rank := func(e models.Entity) [5]float64 {
		var k [5]float64
		for _, t := range preferTypes {
			if e.EntityType == t {
				k[0] = 1
				break
			}
		}
		if nameKey != "" && NormalizeQuery(e.Name) == nameKey {
			k[1] = 1
		}
		if cityID != "" && e.CityID == cityID {
			k[2] = 1
		}
		k[3] = e.RelevanceScore()
		k[4] = e.Popularity()
		return k
	}

	best := ents[0]
	bestK := rank(best)
	for _, e := range ents[1:] {
		k := rank(e)
		for i := range k {
			if k[i] != bestK[i] {
				if k[i] > bestK[i] {
					best, bestK = e, k
				}
				break
			}
		}
	}
	return best
}

func sameNameCandidates(ents []models.Entity, nameKey string) []models.Entity {
	var out []models.Entity
	for _, e := range ents {
		if NormalizeQuery(e.Name) == nameKey {
			out = append(out, e)
		}
	}
	if distinctCityCount(out) < 2 {
		return nil
	}
	return sameTypeOnly(out)
}

// sameTypeOnly restricts a candidate list to the majority entity type so a
// disambiguation list is always homogeneous.
func sameTypeOnly(ents []models.Entity) []models.Entity {
	counts := make(map[models.EntityType]int)
	for _, e := range ents {
		counts[e.EntityType]++
	}
	var topType models.EntityType
	topCount := -1
	for t, c := range counts {
		if c > topCount || (c == topCount && t < topType) {
			topType, topCount = t, c
		}
	}
	var out []models.Entity
	for _, e := range ents {
		if e.EntityType == topType {
			out = append(out, e)
		}
	}
	return out
}

func distinctCityCount(ents []models.Entity) int {
	cities := make(map[string]bool)
	for _, e := range ents {
		if e.CityID != "" {
			cities[e.CityID] = true
		}
	}
	return len(cities)
}

func capCandidates(ents []models.Entity) []models.Entity {
	sort.SliceStable(ents, func(i, j int) bool {
		if ents[i].RelevanceScore() != ents[j].RelevanceScore() {
			return ents[i].RelevanceScore() > ents[j].RelevanceScore()
		}
		return ents[i].Popularity() > ents[j].Popularity()
	})
	if len(ents) > 10 {
		ents = ents[:10]
	}
	return ents
}

