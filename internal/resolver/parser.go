package resolver

import (
	"regexp"
	"strings"

	"github.com/homequest/realestate-search/internal/models"
)

// QueryParser extracts intent and constraints from free-form real-estate
// queries. Parse never fails: absent signals stay at their zero values.
type QueryParser struct{}

func NewQueryParser() *QueryParser {
	return &QueryParser{}
}

var (
	multiSpacePattern = regexp.MustCompile(`\s+`)

	ratePagePattern = regexp.MustCompile(`\b(property\s+rates?|rates?|price\s+trends?|trends?)\b`)
	overviewPattern = regexp.MustCompile(`\b(locality\s+overview|overview|about|guide)\b`)

	rentIntentPattern = regexp.MustCompile(`\b(rent|rental|tenant|lease)\b`)
	buyIntentPattern  = regexp.MustCompile(`\b(buy|resale|sale|purchase)\b`)

	bhkPattern = regexp.MustCompile(`\b([1-6])\s*bhk\b`)

	readyPattern = regexp.MustCompile(`\b(ready\s*to\s*move|rtm|ready)\b`)
	ucPattern    = regexp.MustCompile(`\b(under\s*construction|uc)\b`)

	builderByPattern     = regexp.MustCompile(`\bprojects?\s+by\s+([a-z0-9 \-]+?)(?:\s+in\s+|$)`)
	builderPrefixPattern = regexp.MustCompile(`\b([a-z0-9 \-]+?)\s+projects?\b`)

	localityHintPattern = regexp.MustCompile(`\b(?:in|near|at)\s+([a-z0-9 \-]+?)(?:\s+under\b|\s+below\b|\s+between\b|\s+for\b|\s+with\b|\s+near\b|\s+rates?\b|\s+overview\b|$)`)

	budgetBetweenPattern = regexp.MustCompile(`\bbetween\s+([0-9]+(?:\.[0-9]+)?)\s*(cr|crores?|l|lacs?|lakhs?|k)?\s*(?:and|to)\s+([0-9]+(?:\.[0-9]+)?)\s*(cr|crores?|l|lacs?|lakhs?|k)?\b`)
	budgetMaxPattern     = regexp.MustCompile(`\b(?:under|below|upto|up\s*to|less\s*than|max)\s+([0-9]+(?:\.[0-9]+)?)\s*(cr|crores?|l|lacs?|lakhs?|k)?\b`)
	budgetMinPattern     = regexp.MustCompile(`\b(?:above|over|more\s*than|min)\s+([0-9]+(?:\.[0-9]+)?)\s*(cr|crores?|l|lacs?|lakhs?|k)?\b`)

	rentContextPattern = regexp.MustCompile(`\b(rent|rental|per\s*month|pm)\b`)

	// Residual-stripping patterns. Applied to the normalized query to leave a
	// location-ish remainder.
	stripIntentPattern   = regexp.MustCompile(`\b(buy|resale|sale|purchase|rent|rental|tenant|lease)\b`)
	stripStatusPattern   = regexp.MustCompile(`\b(ready\s*to\s*move|rtm|ready|under\s*construction|uc)\b`)
	stripTypePattern     = regexp.MustCompile(`\b(builder\s*floors?|apartment|flat|plot|land|villa|independent\s*house|house|office|shop|retail)\b`)
	stripProjectsPattern = regexp.MustCompile(`\bprojects?\b`)
	stripByPattern       = regexp.MustCompile(`\bby\b`)
	stripBetweenPattern  = regexp.MustCompile(`\bbetween\b[\s\S]{0,40}?\b[0-9]+(?:\.[0-9]+)?\s*(?:cr|crores?|l|lacs?|lakhs?|k)?\b`)
	stripBoundPattern    = regexp.MustCompile(`\b(?:under|below|upto|up\s*to|less\s*than|max|above|over|more\s*than|min)\s+[0-9]+(?:\.[0-9]+)?\s*(?:cr|crores?|l|lacs?|lakhs?|k)?\b`)
	stripStopPattern     = regexp.MustCompile(`\b(in|near|at|for|with|without|and|to|of|per\s*month|pm)\b`)
)

// propertyTypeTable is checked in order; builder_floor comes before apartment
// so "builder floor" never false-matches on the generic "floor" vocabulary.
var propertyTypeTable = []struct {
	key     string
	pattern *regexp.Regexp
}{
	{"builder_floor", regexp.MustCompile(`\bbuilder\s*floors?\b`)},
	{"apartment", regexp.MustCompile(`\b(apartment|flat)\b`)},
	{"plot", regexp.MustCompile(`\b(plot|land)\b`)},
	{"villa", regexp.MustCompile(`\bvilla\b`)},
	{"independent_house", regexp.MustCompile(`\b(independent\s*house|house)\b`)},
	{"office", regexp.MustCompile(`\boffice\b`)},
	{"shop", regexp.MustCompile(`\b(shop|retail)\b`)},
}

// NormalizeQuery collapses whitespace, trims and lower-cases.
func NormalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	return strings.ToLower(multiSpacePattern.ReplaceAllString(q, " "))
}

func (qp *QueryParser) Parse(raw string) models.ParsedQuery {
	s := NormalizeQuery(raw)

	parsed := models.ParsedQuery{
		RawQuery:        raw,
		NormalizedQuery: s,
	}
	if s == "" {
		return parsed
	}

	// Page intent: rate vocabulary wins over overview vocabulary.
	if ratePagePattern.MatchString(s) {
		parsed.PageIntent = models.PageIntentRate
	} else if overviewPattern.MatchString(s) {
		parsed.PageIntent = models.PageIntentOverview
	}

	// Transaction intent: rent vocabulary takes precedence when both appear.
	if rentIntentPattern.MatchString(s) {
		parsed.Intent = models.IntentRent
	} else if buyIntentPattern.MatchString(s) {
		parsed.Intent = models.IntentBuy
	}

	if m := bhkPattern.FindStringSubmatch(s); m != nil {
		parsed.BHK = int(m[1][0] - '0')
	}

	if readyPattern.MatchString(s) {
		parsed.Status = models.StatusReady
	} else if ucPattern.MatchString(s) {
		parsed.Status = models.StatusUnderConstruction
	}

	for _, pt := range propertyTypeTable {
		if pt.pattern.MatchString(s) {
			parsed.PropertyType = pt.key
			break
		}
	}

	// Builder hint: "projects by dlf" first, then the prefix form
	// "dlf projects", capped so a whole sentence is never swallowed.
	if m := builderByPattern.FindStringSubmatch(s); m != nil {
		parsed.BuilderHint = strings.TrimSpace(m[1])
	} else if m := builderPrefixPattern.FindStringSubmatch(s); m != nil {
		hint := strings.TrimSpace(m[1])
		if len(hint) <= 30 {
			parsed.BuilderHint = hint
		}
	}

	if m := localityHintPattern.FindStringSubmatch(s); m != nil {
		parsed.LocalityHint = strings.TrimSpace(m[1])
	}

	qp.parseBudget(s, &parsed)

	// Any constraint at all implies listing intent when no explicit page
	// intent was found.
	if parsed.PageIntent == "" && qp.hasAnyConstraint(parsed) {
		parsed.PageIntent = models.PageIntentListing
	}

	parsed.LocationQuery = qp.locationResidual(s, parsed.LocalityHint)

	return parsed
}

func (qp *QueryParser) hasAnyConstraint(p models.ParsedQuery) bool {
	return p.Intent != "" || p.BHK != 0 || p.Status != "" || p.PropertyType != "" ||
		p.MinPrice != 0 || p.MaxPrice != 0 || p.MinRent != 0 || p.MaxRent != 0 ||
		p.BuilderHint != ""
}

func (qp *QueryParser) parseBudget(s string, parsed *models.ParsedQuery) {
	rentContext := parsed.Intent == models.IntentRent || rentContextPattern.MatchString(s)

	apply := func(minV, maxV int64) {
		if rentContext {
			if minV > 0 && parsed.MinRent == 0 {
				parsed.MinRent = minV
			}
			if maxV > 0 && parsed.MaxRent == 0 {
				parsed.MaxRent = maxV
			}
			return
		}
		if minV > 0 && parsed.MinPrice == 0 {
			parsed.MinPrice = minV
		}
		if maxV > 0 && parsed.MaxPrice == 0 {
			parsed.MaxPrice = maxV
		}
	}

	if m := budgetBetweenPattern.FindStringSubmatch(s); m != nil {
		// "between 50l and 80": a missing second unit inherits the first;
		// missing units otherwise fall to the bare-number heuristic.
		u1, u2 := m[2], m[4]
		if u2 == "" {
			u2 = u1
		}
		apply(moneyToRupees(m[1], u1), moneyToRupees(m[3], u2))
		return
	}

	if m := budgetMaxPattern.FindStringSubmatch(s); m != nil {
		apply(0, moneyToRupees(m[1], m[2]))
	}
	if m := budgetMinPattern.FindStringSubmatch(s); m != nil {
		apply(moneyToRupees(m[1], m[2]), 0)
	}
}

// moneyToRupees converts an amount plus an optional unit into rupees. A bare
// number up to 200 is read as lakhs ("50" means 50 lakh); anything larger is
// taken as a literal rupee amount.
func moneyToRupees(amount, unit string) int64 {
	v := parseFloat(amount)
	switch strings.ToLower(unit) {
	case "cr", "crore", "crores":
		return int64(v * 1e7)
	case "l", "lac", "lacs", "lakh", "lakhs":
		return int64(v * 1e5)
	case "k":
		return int64(v * 1e3)
	}
	if v <= 200 {
		return int64(v * 1e5)
	}
	return int64(v)
}

func parseFloat(s string) float64 {
	var whole, frac int64
	var fracDiv float64 = 1
	inFrac := false
	for _, c := range s {
		if c == '.' {
			inFrac = true
			continue
		}
		d := int64(c - '0')
		if inFrac {
			frac = frac*10 + d
			fracDiv *= 10
		} else {
			whole = whole*10 + d
		}
	}
	return float64(whole) + float64(frac)/fracDiv
}

// locationResidual strips every recognized constraint token and budget phrase
// from the normalized query; the stopword-trimmed remainder is the best-guess
// location phrase. An explicit locality hint supersedes it.
func (qp *QueryParser) locationResidual(s, localityHint string) string {
	if localityHint != "" {
		return localityHint
	}

	loc := s
	loc = stripBetweenPattern.ReplaceAllString(loc, " ")
	loc = stripBoundPattern.ReplaceAllString(loc, " ")
	loc = ratePagePattern.ReplaceAllString(loc, " ")
	loc = overviewPattern.ReplaceAllString(loc, " ")
	loc = bhkPattern.ReplaceAllString(loc, " ")
	loc = stripIntentPattern.ReplaceAllString(loc, " ")
	loc = stripStatusPattern.ReplaceAllString(loc, " ")
	loc = stripTypePattern.ReplaceAllString(loc, " ")
	loc = stripProjectsPattern.ReplaceAllString(loc, " ")
	loc = stripByPattern.ReplaceAllString(loc, " ")
	loc = stripStopPattern.ReplaceAllString(loc, " ")
	loc = strings.TrimSpace(multiSpacePattern.ReplaceAllString(loc, " "))

	return loc
}

// IsConstraintHeavy reports whether the parse carries filter-like signals
// that should bypass entity-redirect logic. Pure function of the parse
// result, no I/O.
func IsConstraintHeavy(p models.ParsedQuery) bool {
	return p.Intent != "" || p.BHK != 0 || p.PropertyType != "" || p.Status != "" ||
		p.MinPrice != 0 || p.MaxPrice != 0 || p.MinRent != 0 || p.MaxRent != 0 ||
		p.BuilderHint != "" || p.PageIntent == models.PageIntentListing
}
