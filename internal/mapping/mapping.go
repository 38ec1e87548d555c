// Package mapping implements the deterministic-or-abstain venue mappers:
// each mapper turns a raw venue market (ticker, title, description) into a
// canonical event id, or abstains rather than guess.
package mapping

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"arbbot/internal/registry"
	"arbbot/internal/types"
)

// Metadata is the closed set of fields a mapper may use beyond title/
// description.
type Metadata struct {
	CloseTime time.Time
	EndDate   time.Time
}

func (m Metadata) resolveCloseTime() time.Time {
	if !m.CloseTime.IsZero() {
		return m.CloseTime
	}
	if !m.EndDate.IsZero() {
		return m.EndDate
	}
	return time.Now().UTC().AddDate(10, 0, 0) // far-future default
}

// Mapper is the deterministic-or-abstain capability every venue implements.
type Mapper interface {
	// Map returns the canonical event id for a raw market, or ok=false if
	// the mapper cannot deterministically extract every required field.
	Map(marketID, title, description string, meta Metadata) (eventID string, ok bool)
}

var titlePrefixes = regexp.MustCompile(`(?i)^(mr|mrs|ms|dr|sen|rep|gov|pres)\.?\s+`)

// normalizeText applies NFD unicode normalization, strips combining marks,
// and lowercases, so accented and unaccented spellings of the same name
// compare equal before any pattern match.
func normalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = titlePrefixes.ReplaceAllString(out, "")
	return strings.ToLower(strings.TrimSpace(out))
}

// candidateAliases maps common full names to the short form used in
// canonical ids, e.g. "Donald Trump" -> "TRUMP".
var candidateAliases = map[string]string{
	"donald trump":   "TRUMP",
	"joe biden":      "BIDEN",
	"kamala harris":  "HARRIS",
	"ron desantis":   "DESANTIS",
	"gavin newsom":   "NEWSOM",
	"jd vance":       "VANCE",
}

func resolveCandidate(name string) string {
	normalized := normalizeText(name)
	if alias, ok := candidateAliases[normalized]; ok {
		return alias
	}
	// Fall back to the last normalized token, upper-cased — a deterministic
	// (if coarse) extraction rather than a fuzzy guess. A bare surname
	// ("Trump") resolves the same way a full name does.
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[len(fields)-1])
}

// ensureEvent creates the canonical event in the registry if absent
// (inferred type/scope, far-future close date if metadata lacks one).
func ensureEvent(reg *registry.Registry, eventID string, eventType types.EventType, scope types.EventScope, displayTitle string, meta Metadata) {
	if _, ok := reg.Event(eventID); ok {
		return
	}
	reg.AddEvent(types.CanonicalEvent{
		EventID:      eventID,
		EventType:    eventType,
		Scope:        scope,
		CloseTime:    meta.resolveCloseTime(),
		DisplayTitle: displayTitle,
	})
}

func recordMapping(reg *registry.Registry, venue types.Venue, marketID, eventID, title, description string, outcomes []string, confidence float64, method types.MappingMethod) error {
	return reg.AddMapping(types.VenueMapping{
		Venue:          venue,
		MarketID:       marketID,
		EventID:        eventID,
		TitleRaw:       title,
		DescriptionRaw: description,
		Outcomes:       outcomes,
		Confidence:     confidence,
		MappingMethod:  method,
	})
}

func expandKSuffix(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(strings.ToUpper(s), "K") {
		numPart := s[:len(s)-1]
		n, err := strconv.ParseFloat(numPart, 64)
		if err != nil {
			return "", false
		}
		return strconv.FormatInt(int64(n*1000), 10), true
	}
	return s, true
}
