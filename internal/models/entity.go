package models

import "time"

// EntityType enumerates the kinds of records stored in the entity index.
type EntityType string

const (
	TypeCity             EntityType = "city"
	TypeMicromarket      EntityType = "micromarket"
	TypeLocality         EntityType = "locality"
	TypeListingPage      EntityType = "listing_page"
	TypeLocalityOverview EntityType = "locality_overview"
	TypeRatePage         EntityType = "rate_page"
	TypeProject          EntityType = "project"
	TypePropertyPDP      EntityType = "property_pdp"
	TypeBuilder          EntityType = "builder"
)

// LocationTypes are the entity types that behave as a geographic scope when
// building listing URLs.
var LocationTypes = []EntityType{
	TypeCity, TypeMicromarket, TypeLocality, TypeListingPage, TypeLocalityOverview,
}

// Entity is a single record from the entity index. Score is only present on
// search hits; PopularityScore is a static ranking signal carried on the
// document itself.
type Entity struct {
	ID              string     `json:"id"`
	EntityType      EntityType `json:"entity_type"`
	Name            string     `json:"name"`
	City            string     `json:"city,omitempty"`
	CityID          string     `json:"city_id,omitempty"`
	ParentName      string     `json:"parent_name,omitempty"`
	CanonicalURL    string     `json:"canonical_url,omitempty"`
	Score           *float64   `json:"score,omitempty"`
	PopularityScore *float64   `json:"popularity_score,omitempty"`
}

func (e Entity) RelevanceScore() float64 {
	if e.Score == nil {
		return 0
	}
	return *e.Score
}

func (e Entity) Popularity() float64 {
	if e.PopularityScore == nil {
		return 0
	}
	return *e.PopularityScore
}

// Intent is the buy/rent transaction intent extracted from a query.
type Intent string

const (
	IntentBuy  Intent = "buy"
	IntentRent Intent = "rent"
)

// PageIntent routes a query toward a specific page family.
type PageIntent string

const (
	PageIntentRate     PageIntent = "rate_page"
	PageIntentOverview PageIntent = "locality_overview"
	PageIntentListing  PageIntent = "listing"
)

// PropertyStatus is the construction status filter.
type PropertyStatus string

const (
	StatusReady             PropertyStatus = "ready"
	StatusUnderConstruction PropertyStatus = "under_construction"
)

// ParsedQuery is the immutable result of parsing one raw query. Absent
// signals are zero values, never errors. Price and rent bounds are mutually
// exclusive per query: a single numeric mention lands in exactly one pair.
type ParsedQuery struct {
	RawQuery        string         `json:"q"`
	NormalizedQuery string         `json:"normalized_query"`
	Intent          Intent         `json:"intent,omitempty"`
	BHK             int            `json:"bhk,omitempty"`
	PropertyType    string         `json:"property_type,omitempty"`
	Status          PropertyStatus `json:"status,omitempty"`
	MinPrice        int64          `json:"min_price,omitempty"`
	MaxPrice        int64          `json:"max_price,omitempty"`
	MinRent         int64          `json:"min_rent,omitempty"`
	MaxRent         int64          `json:"max_rent,omitempty"`
	BuilderHint     string         `json:"builder_hint,omitempty"`
	LocalityHint    string         `json:"locality_hint,omitempty"`
	LocationQuery   string         `json:"location_query,omitempty"`
	PageIntent      PageIntent     `json:"page_intent,omitempty"`

	// BuilderID is attached during resolution when a builder entity has been
	// matched; it rides along so the URL builder can serialize it.
	BuilderID string `json:"-"`
}

// Action is the resolver's final verdict for a query.
type Action string

const (
	ActionRedirect     Action = "redirect"
	ActionDisambiguate Action = "disambiguate"
	ActionSerp         Action = "serp"
)

// Reason tags the decision branch that produced an outcome.
type Reason string

const (
	ReasonEmpty                    Reason = "empty"
	ReasonRedirectRegistry         Reason = "redirect_registry"
	ReasonCleanURL                 Reason = "clean_url"
	ReasonPageIntentRedirect       Reason = "page_intent_redirect"
	ReasonPageIntentCityScoped     Reason = "page_intent_city_scoped"
	ReasonPageIntentSameName       Reason = "page_intent_same_name"
	ReasonBuilderIntentListing     Reason = "builder_intent_listing"
	ReasonConstraintHeavy          Reason = "constraint_heavy"
	ReasonConstraintHeavyListing   Reason = "constraint_heavy_listing"
	ReasonConstraintHeavyCityScope Reason = "constraint_heavy_city_scoped_listing"
	ReasonConstraintHeavySameName  Reason = "constraint_heavy_same_name"
	ReasonNoResults                Reason = "no_results"
	ReasonSameName                 Reason = "same_name"
	ReasonCityScopedSameName       Reason = "city_scoped_same_name"
	ReasonConfidentRedirect        Reason = "confident_redirect"
	ReasonAmbiguous                Reason = "ambiguous"
)

// Decision is the resolver's output. When Action is ActionSerp, URL is always
// populated. Candidates is populated only for ActionDisambiguate. Debug is an
// opaque diagnostic bag and not part of the contract.
type Decision struct {
	Action          Action         `json:"action"`
	Query           string         `json:"query"`
	NormalizedQuery string         `json:"normalized_query"`
	URL             string         `json:"url,omitempty"`
	Match           *Entity        `json:"match,omitempty"`
	Candidates      []Entity       `json:"candidates,omitempty"`
	Reason          Reason         `json:"reason"`
	Debug           map[string]any `json:"debug,omitempty"`
}

// SearchEvent records a search submission in the event log.
type SearchEvent struct {
	QueryID         string `json:"query_id"`
	RawQuery        string `json:"raw_query"`
	NormalizedQuery string `json:"normalized_query"`
	CityID          string `json:"city_id,omitempty"`
	ContextURL      string `json:"context_url,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// ClickEvent records a result click in the event log.
type ClickEvent struct {
	QueryID    string `json:"query_id"`
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	Rank       int    `json:"rank"`
	URL        string `json:"url"`
	CityID     string `json:"city_id,omitempty"`
	ContextURL string `json:"context_url,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// RecentSearch is one deduplicated entry from the tail of the search log.
type RecentSearch struct {
	Query      string `json:"q"`
	CityID     string `json:"city_id,omitempty"`
	ContextURL string `json:"context_url,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// ZeroState is the payload shown before the user has typed anything.
type ZeroState struct {
	CityID             string         `json:"city_id,omitempty"`
	RecentSearches     []RecentSearch `json:"recent_searches"`
	TrendingSearches   []Entity       `json:"trending_searches"`
	TrendingLocalities []Entity       `json:"trending_localities"`
	PopularEntities    []Entity       `json:"popular_entities"`
}

// EntityChangeEvent is consumed from Kafka by the ingestion pipeline.
type EntityChangeEvent struct {
	Type      string         `json:"type"` // CREATE, UPDATE, DELETE
	EntityID  string         `json:"entity_id"`
	Document  map[string]any `json:"document,omitempty"`
	CityID    string         `json:"city_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Version   int64          `json:"version"`
}

// IndexAction is one bulk operation queued against the entity index.
type IndexAction struct {
	Action    string         `json:"action"` // index, delete
	Index     string         `json:"index"`
	ID        string         `json:"id"`
	Body      map[string]any `json:"body,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AnalyticsEvent is the row shape written to the analytics sink.
type AnalyticsEvent struct {
	EventType  string    `json:"event_type"`
	QueryHash  string    `json:"query_hash"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason"`
	CityID     string    `json:"city_id"`
	DurationMs float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
	TraceID    string    `json:"trace_id"`
}
