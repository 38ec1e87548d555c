// Package registry implements the Canonical Event Registry: the single
// source of truth mapping (venue, market_id) pairs to canonical event ids,
// backed by two tabular CSV files with required headers.
package registry

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"arbbot/internal/types"
)

// PipeList is a []string that (de)serializes as a single pipe-delimited CSV
// field, matching spec's "aliases and outcomes are pipe-delimited" format.
type PipeList []string

// MarshalCSV implements gocsv.TypeMarshaller.
func (p PipeList) MarshalCSV() (string, error) {
	return strings.Join([]string(p), "|"), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (p *PipeList) UnmarshalCSV(s string) error {
	if s == "" {
		*p = nil
		return nil
	}
	*p = strings.Split(s, "|")
	return nil
}

// eventRow is the on-disk shape of the events CSV file.
type eventRow struct {
	EventID          string   `csv:"event_id"`
	EventType        string   `csv:"event_type"`
	Scope            string   `csv:"scope"`
	DateClose        string   `csv:"date_close"`
	CanonicalUnits   string   `csv:"canonical_units"`
	DisplayTitle     string   `csv:"display_title"`
	ResolutionSource string   `csv:"resolution_source"`
	Aliases          PipeList `csv:"aliases"`
	CreatedAt        string   `csv:"created_at"`
}

// mappingRow is the on-disk shape of the mappings CSV file.
type mappingRow struct {
	Venue          string   `csv:"venue"`
	MarketID       string   `csv:"market_id"`
	EventID        string   `csv:"event_id"`
	TitleRaw       string   `csv:"title_raw"`
	DescriptionRaw string   `csv:"description_raw"`
	Outcomes       PipeList `csv:"outcomes"`
	Confidence     string   `csv:"confidence"`
	MappingMethod  string   `csv:"mapping_method"`
	CreatedAt      string   `csv:"created_at"`
	UpdatedAt      string   `csv:"updated_at"`
}

const isoLayout = time.RFC3339

// CoverageStats summarizes registry population: how many events and
// mappings exist, broken down per venue and per mapping method, plus how
// many events have mappings from more than one venue.
type CoverageStats struct {
	TotalEvents         int
	TotalMappings       int
	PerVenueCounts      map[types.Venue]int
	PerMethodCounts     map[types.MappingMethod]int
	EventsWithCrossVenue int
}

// Registry is the in-memory canonical event store with CSV persistence.
type Registry struct {
	mu          sync.RWMutex
	events      map[string]types.CanonicalEvent
	mappings    map[string]types.VenueMapping // keyed by venue+"\x00"+market_id
	aliasIndex  map[string]string             // lowercased alias -> event_id
	eventsPath  string
	mappingsPath string
}

// New creates an empty Registry that will persist to the given file paths.
func New(eventsPath, mappingsPath string) *Registry {
	return &Registry{
		events:       make(map[string]types.CanonicalEvent),
		mappings:     make(map[string]types.VenueMapping),
		aliasIndex:   make(map[string]string),
		eventsPath:   eventsPath,
		mappingsPath: mappingsPath,
	}
}

func mappingKey(venue types.Venue, marketID string) string {
	return string(venue) + "\x00" + marketID
}

// AddEvent is idempotent by event_id: a later add overwrites metadata but
// never changes the id. Returns the (possibly pre-existing) event.
func (r *Registry) AddEvent(event types.CanonicalEvent) types.CanonicalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.events[event.EventID]; ok {
		event.CreatedAt = existing.CreatedAt
	} else if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.events[event.EventID] = event

	lower := strings.ToLower(event.EventID)
	r.aliasIndex[lower] = event.EventID
	for _, alias := range event.Aliases {
		r.aliasIndex[strings.ToLower(alias)] = event.EventID
	}
	return event
}

// AddMapping upserts a venue mapping. Fails if the referenced event is
// unknown, satisfying the "every mapping references an extant event"
// invariant.
func (r *Registry) AddMapping(mapping types.VenueMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[mapping.EventID]; !ok {
		return fmt.Errorf("registry: add mapping for unknown event_id %q", mapping.EventID)
	}

	key := mappingKey(mapping.Venue, mapping.MarketID)
	now := time.Now().UTC()
	if existing, ok := r.mappings[key]; ok {
		mapping.CreatedAt = existing.CreatedAt
	} else {
		mapping.CreatedAt = now
	}
	mapping.UpdatedAt = now
	r.mappings[key] = mapping
	return nil
}

// Lookup resolves (venue, market_id) to an event_id, if mapped.
func (r *Registry) Lookup(venue types.Venue, marketID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[mappingKey(venue, marketID)]
	if !ok {
		return "", false
	}
	return m.EventID, true
}

// ResolveAlias resolves a title/alias case-insensitively to at most one
// event_id.
func (r *Registry) ResolveAlias(alias string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.aliasIndex[strings.ToLower(alias)]
	return id, ok
}

// MarketsFor returns every venue mapping pointing at event_id.
func (r *Registry) MarketsFor(eventID string) []types.VenueMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.VenueMapping
	for _, m := range r.mappings {
		if m.EventID == eventID {
			out = append(out, m)
		}
	}
	return out
}

// Event returns a canonical event by id.
func (r *Registry) Event(eventID string) (types.CanonicalEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[eventID]
	return e, ok
}

// CoverageStats computes registry population statistics, including the
// cross-venue count spec scenario S3 checks.
func (r *Registry) CoverageStats() CoverageStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := CoverageStats{
		TotalEvents:     len(r.events),
		TotalMappings:   len(r.mappings),
		PerVenueCounts:  make(map[types.Venue]int),
		PerMethodCounts: make(map[types.MappingMethod]int),
	}

	venuesByEvent := make(map[string]map[types.Venue]bool)
	for _, m := range r.mappings {
		stats.PerVenueCounts[m.Venue]++
		stats.PerMethodCounts[m.MappingMethod]++
		if venuesByEvent[m.EventID] == nil {
			venuesByEvent[m.EventID] = make(map[types.Venue]bool)
		}
		venuesByEvent[m.EventID][m.Venue] = true
	}
	for _, venues := range venuesByEvent {
		if len(venues) >= 2 {
			stats.EventsWithCrossVenue++
		}
	}
	return stats
}

// Save persists events and mappings to their CSV files. Unknown columns on
// load are tolerated by gocsv by default (it matches on tag name); missing
// required columns are handled in Load below, not here.
func (r *Registry) Save() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eventRows := make([]*eventRow, 0, len(r.events))
	for _, e := range r.events {
		eventRows = append(eventRows, &eventRow{
			EventID:          e.EventID,
			EventType:        string(e.EventType),
			Scope:            string(e.Scope),
			DateClose:        e.CloseTime.UTC().Format(isoLayout),
			CanonicalUnits:   e.CanonicalUnits,
			DisplayTitle:     e.DisplayTitle,
			ResolutionSource: e.ResolutionSource,
			Aliases:          PipeList(e.Aliases),
			CreatedAt:        e.CreatedAt.UTC().Format(isoLayout),
		})
	}
	if err := writeCSV(r.eventsPath, &eventRows); err != nil {
		return fmt.Errorf("registry: save events: %w", err)
	}

	mappingRows := make([]*mappingRow, 0, len(r.mappings))
	for _, m := range r.mappings {
		mappingRows = append(mappingRows, &mappingRow{
			Venue:          string(m.Venue),
			MarketID:       m.MarketID,
			EventID:        m.EventID,
			TitleRaw:       m.TitleRaw,
			DescriptionRaw: m.DescriptionRaw,
			Outcomes:       PipeList(m.Outcomes),
			Confidence:     fmt.Sprintf("%.4f", m.Confidence),
			MappingMethod:  string(m.MappingMethod),
			CreatedAt:      m.CreatedAt.UTC().Format(isoLayout),
			UpdatedAt:      m.UpdatedAt.UTC().Format(isoLayout),
		})
	}
	if err := writeCSV(r.mappingsPath, &mappingRows); err != nil {
		return fmt.Errorf("registry: save mappings: %w", err)
	}
	return nil
}

func writeCSV[T any](path string, rows *[]T) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads events and mappings from their CSV files, skipping rows that
// are missing required columns (with a returned warning list) rather than
// failing the whole load.
func (r *Registry) Load() (warnings []string, err error) {
	eventWarnings, err := r.loadEvents()
	if err != nil {
		return nil, fmt.Errorf("registry: load events: %w", err)
	}
	mappingWarnings, err := r.loadMappings()
	if err != nil {
		return nil, fmt.Errorf("registry: load mappings: %w", err)
	}
	return append(eventWarnings, mappingWarnings...), nil
}

func (r *Registry) loadEvents() ([]string, error) {
	f, err := os.Open(r.eventsPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*eventRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var warnings []string
	for _, row := range rows {
		if row.EventID == "" || row.EventType == "" || row.Scope == "" {
			warnings = append(warnings, fmt.Sprintf("registry: skipping event row missing required column: %+v", row))
			continue
		}
		closeTime, err := time.Parse(isoLayout, row.DateClose)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("registry: skipping event %q: bad date_close %q", row.EventID, row.DateClose))
			continue
		}
		createdAt, err := time.Parse(isoLayout, row.CreatedAt)
		if err != nil {
			createdAt = time.Now().UTC()
		}
		event := types.CanonicalEvent{
			EventID:          row.EventID,
			EventType:        types.EventType(row.EventType),
			Scope:            types.EventScope(row.Scope),
			CloseTime:        closeTime,
			CanonicalUnits:   row.CanonicalUnits,
			DisplayTitle:     row.DisplayTitle,
			ResolutionSource: row.ResolutionSource,
			Aliases:          []string(row.Aliases),
			CreatedAt:        createdAt,
		}
		r.events[event.EventID] = event
		lower := strings.ToLower(event.EventID)
		r.aliasIndex[lower] = event.EventID
		for _, alias := range event.Aliases {
			r.aliasIndex[strings.ToLower(alias)] = event.EventID
		}
	}
	return warnings, nil
}

func (r *Registry) loadMappings() ([]string, error) {
	f, err := os.Open(r.mappingsPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*mappingRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var warnings []string
	for _, row := range rows {
		if row.Venue == "" || row.MarketID == "" || row.EventID == "" {
			warnings = append(warnings, fmt.Sprintf("registry: skipping mapping row missing required column: %+v", row))
			continue
		}
		if _, ok := r.events[row.EventID]; !ok {
			warnings = append(warnings, fmt.Sprintf("registry: skipping mapping for unknown event_id %q", row.EventID))
			continue
		}
		var confidence float64
		fmt.Sscanf(row.Confidence, "%f", &confidence)
		createdAt, err := time.Parse(isoLayout, row.CreatedAt)
		if err != nil {
			createdAt = time.Now().UTC()
		}
		updatedAt, err := time.Parse(isoLayout, row.UpdatedAt)
		if err != nil {
			updatedAt = createdAt
		}
		mapping := types.VenueMapping{
			Venue:          types.Venue(row.Venue),
			MarketID:       row.MarketID,
			EventID:        row.EventID,
			TitleRaw:       row.TitleRaw,
			DescriptionRaw: row.DescriptionRaw,
			Outcomes:       []string(row.Outcomes),
			Confidence:     confidence,
			MappingMethod:  types.MappingMethod(row.MappingMethod),
			CreatedAt:      createdAt,
			UpdatedAt:      updatedAt,
		}
		r.mappings[mappingKey(mapping.Venue, mapping.MarketID)] = mapping
	}
	return warnings, nil
}
