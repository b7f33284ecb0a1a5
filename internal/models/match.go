package models

import "time"

type MatchState string

const (
	MatchCreated         MatchState = "CREATED"
	MatchDeliveryPending MatchState = "DELIVERY_PENDING"
	MatchVerified        MatchState = "VERIFIED"
	MatchDisputed        MatchState = "DISPUTED"
	MatchCancelled       MatchState = "CANCELLED"
)

var matchTransitions = map[MatchState][]MatchState{
	MatchCreated:         {MatchDeliveryPending, MatchVerified, MatchDisputed, MatchCancelled},
	MatchDeliveryPending: {MatchVerified, MatchDisputed},
}

func (s MatchState) CanTransitionTo(next MatchState) bool {
	for _, n := range matchTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s MatchState) Terminal() bool {
	return s == MatchVerified || s == MatchDisputed || s == MatchCancelled
}

// ResourceMatch pairs exactly one offer with one request. Quantity is the
// amount committed from the offer's remaining availability at match time.
type ResourceMatch struct {
	ID            string
	OfferID       string
	RequestID     string
	Quantity      int64
	Score         float64
	State         MatchState
	DeliveryProof string // opaque handle, set on verification
	CreatedAt     time.Time
	VerifiedAt    *time.Time
}
