package engine

import (
	"fmt"

	"github.com/openrelief/aidmatch/internal/events"
	"github.com/openrelief/aidmatch/internal/geo"
	"github.com/openrelief/aidmatch/internal/models"
)

// Candidate is the outcome of a scored match search.
type Candidate struct {
	OfferID string
	Score   float64
}

// score ranks an (offer, request) pair: proximity decays with geohash cell
// distance, fulfillment is the fraction of the requested quantity the offer
// can still cover, urgency is the request's 1..5 urgency.
func (e *Engine) score(offer *models.ResourceOffer, req *models.ResourceRequest) float64 {
	prox := float64(geo.SharedPrefix(offer.Location, req.Location)) / float64(geo.Precision)
	fill := float64(min(offer.Remaining, req.Quantity)) / float64(req.Quantity)
	return e.cfg.ProximityWeight*prox +
		e.cfg.FulfillmentWeight*fill +
		e.cfg.UrgencyWeight*float64(req.Urgency)
}

// bestOfferLocked selects the maximum-score open offer of matching type
// within the query radius. Ties go to the earliest-submitted offer. The
// index returns candidates in a deterministic order, so repeated calls over
// identical state yield the same result.
func (e *Engine) bestOfferLocked(req *models.ResourceRequest) (*Candidate, bool) {
	var best *models.ResourceOffer
	var bestScore float64

	for _, id := range e.offerIndex.Query(req.Location, e.cfg.QueryRadius) {
		offer, ok := e.offers[id]
		if !ok || offer.State != models.OfferOpen || offer.Type != req.Type || offer.Remaining <= 0 {
			continue
		}
		s := e.score(offer, req)
		if best == nil || s > bestScore || (s == bestScore && offer.Seq < best.Seq) {
			best = offer
			bestScore = s
		}
	}
	if best == nil {
		return nil, false
	}
	return &Candidate{OfferID: best.ID, Score: bestScore}, true
}

// FindBestMatch returns the engine-selected candidate offer for an open
// request, or nil when no compatible open offer is within the radius.
// Read-only: no state changes, safe to call while paused.
func (e *Engine) FindBestMatch(requestID string) (*Candidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	if req.State != models.RequestOpen {
		return nil, fmt.Errorf("request %s is %s: %w", requestID, req.State, ErrInvalidTransition)
	}
	c, found := e.bestOfferLocked(req)
	if !found {
		return nil, nil
	}
	return c, nil
}

// CreateMatch pairs an explicit offer and request, bypassing scoring but
// not validation: resource types must match and the offer must cover the
// full requested quantity.
func (e *Engine) CreateMatch(caller, offerID, requestID string) (models.ResourceMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return models.ResourceMatch{}, ErrSystemPaused
	}
	offer, ok := e.offers[offerID]
	if !ok {
		return models.ResourceMatch{}, fmt.Errorf("offer %s: %w", offerID, ErrNotFound)
	}
	req, ok := e.requests[requestID]
	if !ok {
		return models.ResourceMatch{}, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	if offer.Type != req.Type {
		return models.ResourceMatch{}, fmt.Errorf("%w: offer is %s, request is %s", ErrIncompatibleMatch, offer.Type, req.Type)
	}
	if offer.Remaining < req.Quantity {
		return models.ResourceMatch{}, fmt.Errorf("%w: offer has %d remaining, request needs %d", ErrIncompatibleMatch, offer.Remaining, req.Quantity)
	}

	match, change, err := e.commitMatchLocked(offer, req, e.score(offer, req))
	if err != nil {
		return models.ResourceMatch{}, err
	}
	e.commit(change)
	return match, nil
}

// MatchPending runs a full matching pass over the queued requests, most
// urgent first, pairing each with its best-scoring offer. Returns the
// matches created.
func (e *Engine) MatchPending(caller string) ([]models.ResourceMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return nil, ErrSystemPaused
	}
	change := e.matchPendingLocked(Change{})
	e.commit(change)
	return append([]models.ResourceMatch(nil), change.Matches...), nil
}

// matchPendingLocked drains matchable requests in priority order. Each
// iteration dequeues the most urgent request that has a viable candidate
// and commits the pairing; requests without candidates keep their place.
func (e *Engine) matchPendingLocked(change Change) Change {
	if e.pendingOffers.Len() == 0 {
		return change
	}

	// Requests dequeued but not committed go back at the end of the pass;
	// putting them back immediately would spin the drain loop.
	var stalled []*models.ResourceRequest
	defer func() {
		for _, r := range stalled {
			e.pendingRequests.Enqueue(r.ID, r.Urgency)
		}
	}()

	for {
		reqID, ok := e.pendingRequests.DequeueBest(func(id string) bool {
			req, ok := e.requests[id]
			if !ok || req.State != models.RequestOpen {
				return false
			}
			_, found := e.bestOfferLocked(req)
			return found
		})
		if !ok {
			return change
		}

		req := e.requests[reqID]
		c, found := e.bestOfferLocked(req)
		if !found {
			stalled = append(stalled, req)
			continue
		}
		offer := e.offers[c.OfferID]
		_, mc, err := e.commitMatchLocked(offer, req, c.Score)
		if err != nil {
			stalled = append(stalled, req)
			continue
		}
		change.Offers = append(change.Offers, mc.Offers...)
		change.Requests = append(change.Requests, mc.Requests...)
		change.Matches = append(change.Matches, mc.Matches...)
		change.Events = append(change.Events, mc.Events...)
	}
}

// commitMatchLocked transitions both sides and creates the match record.
// Either both entities transition or neither: all guards run before the
// first mutation.
func (e *Engine) commitMatchLocked(offer *models.ResourceOffer, req *models.ResourceRequest, score float64) (models.ResourceMatch, Change, error) {
	if !offer.State.CanTransitionTo(models.OfferReserved) {
		return models.ResourceMatch{}, Change{}, fmt.Errorf("offer %s is %s: %w", offer.ID, offer.State, ErrInvalidTransition)
	}
	if !req.State.CanTransitionTo(models.RequestMatched) {
		return models.ResourceMatch{}, Change{}, fmt.Errorf("request %s is %s: %w", req.ID, req.State, ErrInvalidTransition)
	}
	if _, busy := e.matchByOffer[offer.ID]; busy {
		return models.ResourceMatch{}, Change{}, fmt.Errorf("offer %s already matched: %w", offer.ID, ErrInvalidTransition)
	}
	if _, busy := e.matchByRequest[req.ID]; busy {
		return models.ResourceMatch{}, Change{}, fmt.Errorf("request %s already matched: %w", req.ID, ErrInvalidTransition)
	}

	committed := min(offer.Remaining, req.Quantity)
	now := e.now()
	match := &models.ResourceMatch{
		ID:        e.newID(),
		OfferID:   offer.ID,
		RequestID: req.ID,
		Quantity:  committed,
		Score:     score,
		State:     models.MatchCreated,
		CreatedAt: now,
	}

	offer.State = models.OfferReserved
	req.State = models.RequestMatched
	e.matches[match.ID] = match
	e.matchByOffer[offer.ID] = match.ID
	e.matchByRequest[req.ID] = match.ID
	e.pendingOffers.Remove(offer.ID)
	e.pendingRequests.Remove(req.ID)

	change := Change{
		Offers:   []models.ResourceOffer{*offer},
		Requests: []models.ResourceRequest{*req},
		Matches:  []models.ResourceMatch{*match},
		Events: []events.Event{events.ResourceMatched{
			MatchID:    match.ID,
			OfferID:    offer.ID,
			RequestID:  req.ID,
			MatchScore: score,
			Timestamp:  now,
		}},
	}
	return *match, change, nil
}
