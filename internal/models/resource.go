package models

import (
	"strings"
	"time"
)

type ResourceType string

const (
	ResourceFood           ResourceType = "FOOD"
	ResourceWater          ResourceType = "WATER"
	ResourceMedical        ResourceType = "MEDICAL"
	ResourceShelter        ResourceType = "SHELTER"
	ResourceTransportation ResourceType = "TRANSPORTATION"
	ResourceRescue         ResourceType = "RESCUE"
	ResourceCommunication  ResourceType = "COMMUNICATION"
)

// ParseResourceType maps a case-insensitive name to a ResourceType.
// Returns false for names outside the known set.
func ParseResourceType(s string) (ResourceType, bool) {
	rt := ResourceType(strings.ToUpper(strings.TrimSpace(s)))
	switch rt {
	case ResourceFood, ResourceWater, ResourceMedical, ResourceShelter,
		ResourceTransportation, ResourceRescue, ResourceCommunication:
		return rt, true
	}
	return "", false
}

type OfferState string

const (
	OfferOpen      OfferState = "OPEN"
	OfferReserved  OfferState = "RESERVED"
	OfferFulfilled OfferState = "FULFILLED"
	OfferCancelled OfferState = "CANCELLED"
)

var offerTransitions = map[OfferState][]OfferState{
	OfferOpen:     {OfferReserved, OfferCancelled},
	OfferReserved: {OfferFulfilled, OfferOpen},
}

func (s OfferState) CanTransitionTo(next OfferState) bool {
	for _, n := range offerTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s OfferState) Terminal() bool {
	return s == OfferFulfilled || s == OfferCancelled
}

type RequestState string

const (
	RequestOpen      RequestState = "OPEN"
	RequestMatched   RequestState = "MATCHED"
	RequestFulfilled RequestState = "FULFILLED"
	RequestCancelled RequestState = "CANCELLED"
)

var requestTransitions = map[RequestState][]RequestState{
	RequestOpen:    {RequestMatched, RequestCancelled},
	RequestMatched: {RequestFulfilled, RequestOpen},
}

func (s RequestState) CanTransitionTo(next RequestState) bool {
	for _, n := range requestTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s RequestState) Terminal() bool {
	return s == RequestFulfilled || s == RequestCancelled
}

// ResourceOffer is a supply-side declaration. Remaining starts equal to
// Quantity and only decreases when a match against this offer is verified.
type ResourceOffer struct {
	ID        string
	Type      ResourceType
	Quantity  int64
	Remaining int64
	Location  string // geohash cell
	Provider  string
	State     OfferState
	Seq       uint64
	CreatedAt time.Time
}

// ResourceRequest is a demand-side declaration, served in urgency order.
type ResourceRequest struct {
	ID        string
	Type      ResourceType
	Quantity  int64
	Location  string // geohash cell
	Urgency   int    // 1..5
	Requester string
	State     RequestState
	Seq       uint64
	CreatedAt time.Time
}
