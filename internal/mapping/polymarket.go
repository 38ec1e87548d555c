package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"arbbot/internal/registry"
	"arbbot/internal/types"
)

// PolymarketMapper maps Polymarket's free-text market titles to canonical
// event ids. Polymarket tickers are largely cosmetic slugs, so this mapper
// leans on title-pattern extraction rather than a structured ticker format.
type PolymarketMapper struct {
	reg *registry.Registry
}

// NewPolymarketMapper builds a mapper backed by the given registry.
func NewPolymarketMapper(reg *registry.Registry) *PolymarketMapper {
	return &PolymarketMapper{reg: reg}
}

var (
	electionTitleRe = regexp.MustCompile(`(?i)will\s+(.+?)\s+win\s+the\s+(\d{4})\s+presidential\s+election`)
	cryptoTitleRe   = regexp.MustCompile(`(?i)will\s+(btc|bitcoin|eth|ethereum|sol|solana)\s+(?:hit|reach|exceed)\s+\$?([0-9,\.]+[kK]?)\b.*?\bby\s+(?:end of\s+)?(\d{4})`)
	awardsTitleRe   = regexp.MustCompile(`(?i)will\s+(.+?)\s+win\s+(best\s+[a-z ]+?)\s+at\s+the\s+(\d{4})\s+(oscars|grammys|emmys)`)
)

var cryptoTickerSymbol = map[string]string{
	"btc": "BTC", "bitcoin": "BTC",
	"eth": "ETH", "ethereum": "ETH",
	"sol": "SOL", "solana": "SOL",
}

// Map implements Mapper. Policy: deterministic or abstain — every required
// field must be extracted from the title, or Map returns ok=false.
func (m *PolymarketMapper) Map(marketID, title, description string, meta Metadata) (string, bool) {
	eventID, eventType, scope, confidence, ok := parseTitle(title)
	if !ok {
		return "", false
	}
	ensureEvent(m.reg, eventID, eventType, scope, title, meta)
	_ = recordMapping(m.reg, types.VenuePolymarket, marketID, eventID, title, description, nil, confidence, types.MethodDeterministic)
	return eventID, true
}

// parseTitle is the pure (no registry side effects) title-pattern extractor
// shared by PolymarketMapper.Map and KalshiMapper's title fallback, so both
// venues extract the same canonical id from the same title wording without
// either one registering a mapping on the other's behalf.
func parseTitle(title string) (eventID string, eventType types.EventType, scope types.EventScope, confidence float64, ok bool) {
	if id, found := parseElectionTitle(title); found {
		return id, types.EventElection, types.ScopeUS, 0.95, true
	}
	if id, found := parseCryptoTitle(title); found {
		return id, types.EventCrypto, types.ScopeGlobal, 0.95, true
	}
	if id, found := parseAwardsTitle(title); found {
		return id, types.EventAwards, types.ScopeGlobal, 0.90, true
	}
	// Sports titles aren't covered by a template yet; abstain rather than
	// emit an unsupported shape.
	return "", "", "", 0, false
}

func parseElectionTitle(title string) (string, bool) {
	match := electionTitleRe.FindStringSubmatch(title)
	if match == nil {
		return "", false
	}
	candidate := resolveCandidate(match[1])
	year := match[2]
	if candidate == "" || year == "" {
		return "", false
	}
	return fmt.Sprintf("ELECTION:US:PRESIDENT:%s:%s", year, candidate), true
}

func parseCryptoTitle(title string) (string, bool) {
	match := cryptoTitleRe.FindStringSubmatch(title)
	if match == nil {
		return "", false
	}
	ticker, ok := cryptoTickerSymbol[strings.ToLower(match[1])]
	if !ok {
		return "", false
	}
	priceInt, ok := expandKSuffix(match[2])
	if !ok {
		return "", false
	}
	priceInt = strings.ReplaceAll(priceInt, ",", "")
	year := match[3]
	// The title grammar only carries a year; the canonical template wants a
	// full date — default to that year's final day, the convention used
	// throughout the source for year-granularity crypto targets.
	closeDate := year + "-12-31"
	return fmt.Sprintf("CRYPTO:GLOBAL:%s_TARGET:%s:%s", ticker, priceInt, closeDate), true
}

func parseAwardsTitle(title string) (string, bool) {
	match := awardsTitleRe.FindStringSubmatch(title)
	if match == nil {
		return "", false
	}
	nominee := resolveCandidate(match[1])
	category := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(match[2]), " ", "_"))
	year := match[3]
	ceremony := strings.ToUpper(match[4])
	if nominee == "" || category == "" {
		return "", false
	}
	return fmt.Sprintf("AWARDS:GLOBAL:%s:%s:%s:%s", ceremony, category, year, nominee), true
}
