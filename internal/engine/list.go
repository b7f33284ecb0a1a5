package engine

import (
	"sort"

	"github.com/openrelief/aidmatch/internal/models"
)

// Filters for the read-side listing queries. Zero values mean "any".
type ReportFilter struct {
	MinSeverity int
	Near        string // geohash cell; combined with Radius
	Radius      int
	Limit       int
}

type OfferFilter struct {
	State  models.OfferState
	Type   models.ResourceType
	Near   string
	Radius int
	Limit  int
}

type RequestFilter struct {
	State      models.RequestState
	Type       models.ResourceType
	MinUrgency int
	Limit      int
}

type MatchFilter struct {
	State models.MatchState
	Limit int
}

func (e *Engine) ListReports(f ReportFilter) []models.DisasterReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	var near map[string]bool
	if f.Near != "" {
		near = idSet(e.reportIndex.Query(f.Near, f.Radius))
	}

	var out []models.DisasterReport
	for _, r := range e.reports {
		if f.MinSeverity > 0 && r.Severity < f.MinSeverity {
			continue
		}
		if near != nil && !near[r.ID] {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return clip(out, f.Limit)
}

func (e *Engine) ListOffers(f OfferFilter) []models.ResourceOffer {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Terminal offers leave the index, so Near only sees live supply.
	var near map[string]bool
	if f.Near != "" {
		near = idSet(e.offerIndex.Query(f.Near, f.Radius))
	}

	var out []models.ResourceOffer
	for _, o := range e.offers {
		if f.State != "" && o.State != f.State {
			continue
		}
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		if near != nil && !near[o.ID] {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return clip(out, f.Limit)
}

func (e *Engine) ListRequests(f RequestFilter) []models.ResourceRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.ResourceRequest
	for _, r := range e.requests {
		if f.State != "" && r.State != f.State {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.MinUrgency > 0 && r.Urgency < f.MinUrgency {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return clip(out, f.Limit)
}

func (e *Engine) ListMatches(f MatchFilter) []models.ResourceMatch {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.ResourceMatch
	for _, m := range e.matches {
		if f.State != "" && m.State != f.State {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return clip(out, f.Limit)
}

// Load rebuilds the in-memory state from persisted entities, typically at
// startup. Entities are replayed in submission order so index and queue
// ordering matches the original run.
func (e *Engine) Load(reports []models.DisasterReport, offers []models.ResourceOffer, requests []models.ResourceRequest, matches []models.ResourceMatch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sort.Slice(reports, func(i, j int) bool { return reports[i].Seq < reports[j].Seq })
	sort.Slice(offers, func(i, j int) bool { return offers[i].Seq < offers[j].Seq })
	sort.Slice(requests, func(i, j int) bool { return requests[i].Seq < requests[j].Seq })

	for i := range reports {
		r := reports[i]
		e.reports[r.ID] = &r
		if err := e.reportIndex.Add(r.ID, r.Location); err != nil {
			return err
		}
		if r.Seq > e.seq {
			e.seq = r.Seq
		}
	}
	for i := range offers {
		o := offers[i]
		e.offers[o.ID] = &o
		if !o.State.Terminal() {
			if err := e.offerIndex.Add(o.ID, o.Location); err != nil {
				return err
			}
		}
		if o.State == models.OfferOpen {
			e.pendingOffers.Enqueue(o.ID, 0)
		}
		if o.Seq > e.seq {
			e.seq = o.Seq
		}
	}
	for i := range requests {
		r := requests[i]
		e.requests[r.ID] = &r
		if r.State == models.RequestOpen {
			e.pendingRequests.Enqueue(r.ID, r.Urgency)
		}
		if r.Seq > e.seq {
			e.seq = r.Seq
		}
	}
	for i := range matches {
		m := matches[i]
		e.matches[m.ID] = &m
		if !m.State.Terminal() {
			e.matchByOffer[m.OfferID] = m.ID
			e.matchByRequest[m.RequestID] = m.ID
		}
	}
	return nil
}

func idSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func clip[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
