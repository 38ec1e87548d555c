package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"arbbot/internal/registry"
	"arbbot/internal/types"
)

// KalshiMapper maps Kalshi's structured ticker conventions (PRES-2028-TRUMP,
// BTC-150K-2025, FED-RATE-2025-12-31) to canonical event ids, falling back
// to the shared title-pattern parser when the ticker doesn't match a known
// shape.
type KalshiMapper struct {
	reg *registry.Registry
}

// NewKalshiMapper builds a mapper backed by the given registry.
func NewKalshiMapper(reg *registry.Registry) *KalshiMapper {
	return &KalshiMapper{reg: reg}
}

var (
	presTickerRe    = regexp.MustCompile(`(?i)^PRES-(\d{4})-([A-Z]+)$`)
	cryptoTickerRe  = regexp.MustCompile(`(?i)^(BTC|ETH|SOL)-([0-9]+K?)-(\d{4})$`)
	economyTickerRe = regexp.MustCompile(`(?i)^(FED-RATE|CPI|INFLATION)-(\d{4}-\d{2}-\d{2})$`)
)

// Map implements Mapper.
func (m *KalshiMapper) Map(marketID, title, description string, meta Metadata) (string, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(marketID))

	if match := presTickerRe.FindStringSubmatch(ticker); match != nil {
		eventID := fmt.Sprintf("ELECTION:US:PRESIDENT:%s:%s", match[1], strings.ToUpper(match[2]))
		ensureEvent(m.reg, eventID, types.EventElection, types.ScopeUS, title, meta)
		_ = recordMapping(m.reg, types.VenueKalshi, marketID, eventID, title, description, nil, 0.95, types.MethodDeterministic)
		return eventID, true
	}

	if match := cryptoTickerRe.FindStringSubmatch(ticker); match != nil {
		priceInt, ok := expandKSuffix(match[2])
		if !ok {
			return "", false
		}
		eventID := fmt.Sprintf("CRYPTO:GLOBAL:%s_TARGET:%s:%s-12-31", strings.ToUpper(match[1]), priceInt, match[3])
		ensureEvent(m.reg, eventID, types.EventCrypto, types.ScopeGlobal, title, meta)
		_ = recordMapping(m.reg, types.VenueKalshi, marketID, eventID, title, description, nil, 0.95, types.MethodDeterministic)
		return eventID, true
	}

	if match := economyTickerRe.FindStringSubmatch(ticker); match != nil {
		series := strings.ToUpper(strings.ReplaceAll(match[1], "-", "_"))
		eventID := fmt.Sprintf("ECONOMY:%s:%s", series, match[2])
		ensureEvent(m.reg, eventID, types.EventFinance, types.ScopeUS, title, meta)
		_ = recordMapping(m.reg, types.VenueKalshi, marketID, eventID, title, description, nil, 0.95, types.MethodDeterministic)
		return eventID, true
	}

	// Ticker didn't match any known structured shape; fall back to the
	// shared title parser, attributed to Kalshi since this mapping is
	// still recorded against Kalshi's market id.
	if eventID, eventType, scope, confidence, ok := parseTitle(title); ok {
		ensureEvent(m.reg, eventID, eventType, scope, title, meta)
		_ = recordMapping(m.reg, types.VenueKalshi, marketID, eventID, title, description, nil, confidence, types.MethodDeterministic)
		return eventID, true
	}

	return "", false
}
