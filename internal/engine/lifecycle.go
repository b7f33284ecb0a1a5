package engine

import (
	"fmt"
	"strings"

	"github.com/openrelief/aidmatch/internal/events"
	"github.com/openrelief/aidmatch/internal/models"
)

// StartDelivery moves a match into DeliveryPending once the provider has
// started the delivery process.
func (e *Engine) StartDelivery(caller, matchID string) (models.ResourceMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return models.ResourceMatch{}, ErrSystemPaused
	}
	match, ok := e.matches[matchID]
	if !ok {
		return models.ResourceMatch{}, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if !match.State.CanTransitionTo(models.MatchDeliveryPending) {
		return models.ResourceMatch{}, fmt.Errorf("match %s is %s: %w", matchID, match.State, ErrInvalidTransition)
	}

	match.State = models.MatchDeliveryPending
	e.commit(Change{Matches: []models.ResourceMatch{*match}})
	return *match, nil
}

// VerifyDelivery accepts a delivery proof, finalizes the match and cascades
// both sides to Fulfilled. A rejected proof leaves every entity untouched.
func (e *Engine) VerifyDelivery(caller, matchID, proof string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return ErrSystemPaused
	}
	match, ok := e.matches[matchID]
	if !ok {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if !match.State.CanTransitionTo(models.MatchVerified) {
		return fmt.Errorf("match %s is %s: %w", matchID, match.State, ErrInvalidTransition)
	}
	if strings.TrimSpace(proof) == "" {
		return fmt.Errorf("%w: empty proof for match %s", ErrInvalidProof, matchID)
	}

	offer, ok := e.offers[match.OfferID]
	if !ok {
		return fmt.Errorf("offer %s: %w", match.OfferID, ErrNotFound)
	}
	req, ok := e.requests[match.RequestID]
	if !ok {
		return fmt.Errorf("request %s: %w", match.RequestID, ErrNotFound)
	}
	if !offer.State.CanTransitionTo(models.OfferFulfilled) {
		return fmt.Errorf("offer %s is %s: %w", offer.ID, offer.State, ErrInvalidTransition)
	}
	if !req.State.CanTransitionTo(models.RequestFulfilled) {
		return fmt.Errorf("request %s is %s: %w", req.ID, req.State, ErrInvalidTransition)
	}

	now := e.now()
	match.State = models.MatchVerified
	match.DeliveryProof = proof
	match.VerifiedAt = &now
	offer.State = models.OfferFulfilled
	offer.Remaining -= match.Quantity
	req.State = models.RequestFulfilled
	e.releaseSidesLocked(offer, req)

	e.commit(Change{
		Offers:   []models.ResourceOffer{*offer},
		Requests: []models.ResourceRequest{*req},
		Matches:  []models.ResourceMatch{*match},
		Events: []events.Event{events.AidDelivered{
			MatchID:   match.ID,
			Proof:     proof,
			Provider:  offer.Provider,
			Timestamp: now,
		}},
	})
	return nil
}

// DisputeMatch marks a match as disputed (proof rejected or delivery timed
// out). Disputed is terminal for the match; the offer and request are
// released back to Open so they can be matched again.
func (e *Engine) DisputeMatch(caller, matchID string) (models.ResourceMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return models.ResourceMatch{}, ErrSystemPaused
	}
	return e.closeMatchLocked(matchID, models.MatchDisputed)
}

// CancelMatch rolls back a match that has not yet entered delivery,
// reopening both sides.
func (e *Engine) CancelMatch(caller, matchID string) (models.ResourceMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return models.ResourceMatch{}, ErrSystemPaused
	}
	return e.closeMatchLocked(matchID, models.MatchCancelled)
}

func (e *Engine) closeMatchLocked(matchID string, final models.MatchState) (models.ResourceMatch, error) {
	match, ok := e.matches[matchID]
	if !ok {
		return models.ResourceMatch{}, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if !match.State.CanTransitionTo(final) {
		return models.ResourceMatch{}, fmt.Errorf("match %s is %s: %w", matchID, match.State, ErrInvalidTransition)
	}

	offer, ok := e.offers[match.OfferID]
	if !ok {
		return models.ResourceMatch{}, fmt.Errorf("offer %s: %w", match.OfferID, ErrNotFound)
	}
	req, ok := e.requests[match.RequestID]
	if !ok {
		return models.ResourceMatch{}, fmt.Errorf("request %s: %w", match.RequestID, ErrNotFound)
	}
	if !offer.State.CanTransitionTo(models.OfferOpen) {
		return models.ResourceMatch{}, fmt.Errorf("offer %s is %s: %w", offer.ID, offer.State, ErrInvalidTransition)
	}
	if !req.State.CanTransitionTo(models.RequestOpen) {
		return models.ResourceMatch{}, fmt.Errorf("request %s is %s: %w", req.ID, req.State, ErrInvalidTransition)
	}

	match.State = final
	offer.State = models.OfferOpen
	req.State = models.RequestOpen
	delete(e.matchByOffer, offer.ID)
	delete(e.matchByRequest, req.ID)
	e.pendingOffers.Enqueue(offer.ID, 0)
	e.pendingRequests.Enqueue(req.ID, req.Urgency)

	e.commit(Change{
		Offers:   []models.ResourceOffer{*offer},
		Requests: []models.ResourceRequest{*req},
		Matches:  []models.ResourceMatch{*match},
	})
	return *match, nil
}

// CancelOffer withdraws an open offer. Only the provider or the admin may
// cancel it.
func (e *Engine) CancelOffer(caller, offerID string) (models.ResourceOffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return models.ResourceOffer{}, ErrSystemPaused
	}
	offer, ok := e.offers[offerID]
	if !ok {
		return models.ResourceOffer{}, fmt.Errorf("offer %s: %w", offerID, ErrNotFound)
	}
	if caller != offer.Provider && caller != e.cfg.AdminIdentity {
		return models.ResourceOffer{}, ErrUnauthorized
	}
	if !offer.State.CanTransitionTo(models.OfferCancelled) {
		return models.ResourceOffer{}, fmt.Errorf("offer %s is %s: %w", offerID, offer.State, ErrInvalidTransition)
	}

	offer.State = models.OfferCancelled
	e.offerIndex.Remove(offer.ID)
	e.pendingOffers.Remove(offer.ID)

	e.commit(Change{Offers: []models.ResourceOffer{*offer}})
	return *offer, nil
}

// CancelRequest withdraws an open request. Only the requester or the admin
// may cancel it.
func (e *Engine) CancelRequest(caller, requestID string) (models.ResourceRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return models.ResourceRequest{}, ErrSystemPaused
	}
	req, ok := e.requests[requestID]
	if !ok {
		return models.ResourceRequest{}, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	if caller != req.Requester && caller != e.cfg.AdminIdentity {
		return models.ResourceRequest{}, ErrUnauthorized
	}
	if !req.State.CanTransitionTo(models.RequestCancelled) {
		return models.ResourceRequest{}, fmt.Errorf("request %s is %s: %w", requestID, req.State, ErrInvalidTransition)
	}

	req.State = models.RequestCancelled
	e.pendingRequests.Remove(req.ID)

	e.commit(Change{Requests: []models.ResourceRequest{*req}})
	return *req, nil
}

// releaseSidesLocked drops terminal entities out of the queues and indexes
// so proximity queries and matching passes never see them again.
func (e *Engine) releaseSidesLocked(offer *models.ResourceOffer, req *models.ResourceRequest) {
	delete(e.matchByOffer, offer.ID)
	delete(e.matchByRequest, req.ID)
	e.offerIndex.Remove(offer.ID)
	e.pendingOffers.Remove(offer.ID)
	e.pendingRequests.Remove(req.ID)
}
