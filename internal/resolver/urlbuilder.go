package resolver

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/homequest/realestate-search/internal/models"
)

var (
	nonSlugPattern    = regexp.MustCompile(`[^a-z0-9]+`)
	schemePattern     = regexp.MustCompile(`^https?://[^/]+`)
	multiSlashPattern = regexp.MustCompile(`/{2,}`)
	domainPathPattern = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}/`)
)

// Slugify turns free text into a URL slug.
func Slugify(s string) string {
	s = NormalizeQuery(s)
	return strings.Trim(nonSlugPattern.ReplaceAllString(s, "-"), "-")
}

// CitySlugFromID maps a city id like "city_pune" to its slug "pune".
func CitySlugFromID(cityID string) string {
	if cityID == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(cityID, "city_"); ok {
		return rest
	}
	return Slugify(cityID)
}

// ExtractPathCandidate pulls a plausible canonical path out of a query that
// might be a full URL ("https://example.com/pune/baner?x=1"), an absolute
// path ("/pune/baner") or a slug path ("pune/baner"). Returns "" when the
// query does not look like a path.
func ExtractPathCandidate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s = schemePattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "/") && domainPathPattern.MatchString(strings.ToLower(s)) {
		// domain+path without scheme, e.g. "homequest.com/pune/baner"
		if _, rest, ok := strings.Cut(s, "/"); ok {
			s = "/" + rest
		}
	}

	if !strings.HasPrefix(s, "/") {
		if !strings.Contains(s, "/") || strings.Contains(s, " ") {
			return ""
		}
		s = "/" + s
	}

	s = multiSlashPattern.ReplaceAllString(s, "/")

	// drop querystring and fragment
	s, _, _ = strings.Cut(s, "?")
	s, _, _ = strings.Cut(s, "#")

	if len(s) > 1 {
		s = strings.TrimSuffix(s, "/")
	}
	if s == "" || s == "/" {
		return ""
	}
	return s
}

// BuildSerpURL builds the catch-all results-page URL. Always non-empty, even
// for an empty query.
func BuildSerpURL(q, cityID, contextURL string) string {
	var sb strings.Builder
	sb.WriteString("/search?q=")
	sb.WriteString(url.QueryEscape(q))
	if cityID != "" {
		sb.WriteString("&city_id=")
		sb.WriteString(url.QueryEscape(cityID))
	}
	if contextURL != "" {
		sb.WriteString("&context_url=")
		sb.WriteString(url.QueryEscape(contextURL))
	}
	return sb.String()
}

type queryParams struct {
	pairs []string
}

func (qp *queryParams) add(key, value string) {
	qp.pairs = append(qp.pairs, key+"="+url.QueryEscape(value))
}

func (qp *queryParams) addInt(key string, value int64) {
	qp.pairs = append(qp.pairs, key+"="+strconv.FormatInt(value, 10))
}

func (qp *queryParams) encode() string {
	return strings.Join(qp.pairs, "&")
}

// BuildListingURL constructs the listing URL for an entity plus parsed
// filters. forceIntent, when non-empty, overrides the parsed intent. Filter
// parameters keep a stable insertion order so URLs are deterministic.
func BuildListingURL(entity models.Entity, parsed models.ParsedQuery, forceIntent models.Intent) string {
	intent := parsed.Intent
	if forceIntent != "" {
		intent = forceIntent
	}
	segment := "buy"
	if intent == models.IntentRent {
		segment = "rent"
	}

	filters := &queryParams{}
	if parsed.BHK != 0 {
		filters.addInt("bhk", int64(parsed.BHK))
	}
	if parsed.Status != "" {
		filters.add("status", string(parsed.Status))
	}
	if parsed.PropertyType != "" {
		filters.add("property_type", parsed.PropertyType)
	}
	if parsed.MinPrice != 0 {
		filters.addInt("min_price", parsed.MinPrice)
	}
	if parsed.MaxPrice != 0 {
		filters.addInt("max_price", parsed.MaxPrice)
	}
	if parsed.MinRent != 0 {
		filters.addInt("min_rent", parsed.MinRent)
	}
	if parsed.MaxRent != 0 {
		filters.addInt("max_rent", parsed.MaxRent)
	}

	switch entity.EntityType {
	case models.TypeProject:
		// Project listing is a city-scoped listing with a project_id filter.
		base := "/" + segment
		if slug := citySlugForEntity(entity); slug != "" {
			base = "/" + slug + "/" + segment
		}
		ids := &queryParams{}
		ids.add("project_id", entity.ID)
		if parsed.BuilderID != "" {
			filters.add("builder_id", parsed.BuilderID)
		}
		return base + "?" + joinParams(ids, filters)

	case models.TypeBuilder:
		base := "/" + segment
		if slug := citySlugForEntity(entity); slug != "" {
			base = "/" + slug + "/" + segment
		}
		ids := &queryParams{}
		ids.add("builder_id", entity.ID)
		return base + "?" + joinParams(ids, filters)
	}

	base := strings.TrimRight(entity.CanonicalURL, "/")
	if isLocationType(entity.EntityType) {
		base += "/" + segment
	}
	if parsed.BuilderID != "" {
		filters.add("builder_id", parsed.BuilderID)
	}
	if len(filters.pairs) == 0 {
		return base
	}
	return base + "?" + filters.encode()
}

func joinParams(ids, filters *queryParams) string {
	if len(filters.pairs) == 0 {
		return ids.encode()
	}
	return ids.encode() + "&" + filters.encode()
}

func citySlugForEntity(e models.Entity) string {
	if slug := CitySlugFromID(e.CityID); slug != "" {
		return slug
	}
	return Slugify(e.City)
}

func isLocationType(t models.EntityType) bool {
	for _, lt := range models.LocationTypes {
		if t == lt {
			return true
		}
	}
	return false
}
