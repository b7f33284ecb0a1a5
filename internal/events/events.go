// Package events defines the domain events emitted by the coordination
// engine. Events are append-only and ordered; external observers consume
// them through the Broadcaster or the persisted event log.
package events

import "time"

const (
	KindDisasterAlert   = "disaster_alert"
	KindResourceMatched = "resource_matched"
	KindAidDelivered    = "aid_delivered"
)

type Event interface {
	Kind() string
	OccurredAt() time.Time
}

type DisasterAlert struct {
	ReportID  string    `json:"report_id"`
	Geohash   string    `json:"geohash"`
	Severity  int       `json:"severity"`
	RiskScore float64   `json:"risk_score"`
	Timestamp time.Time `json:"timestamp"`
}

func (e DisasterAlert) Kind() string          { return KindDisasterAlert }
func (e DisasterAlert) OccurredAt() time.Time { return e.Timestamp }

type ResourceMatched struct {
	MatchID    string    `json:"match_id"`
	OfferID    string    `json:"offer_id"`
	RequestID  string    `json:"request_id"`
	MatchScore float64   `json:"match_score"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e ResourceMatched) Kind() string          { return KindResourceMatched }
func (e ResourceMatched) OccurredAt() time.Time { return e.Timestamp }

type AidDelivered struct {
	MatchID   string    `json:"match_id"`
	Proof     string    `json:"proof"`
	Provider  string    `json:"provider"`
	Timestamp time.Time `json:"timestamp"`
}

func (e AidDelivered) Kind() string          { return KindAidDelivered }
func (e AidDelivered) OccurredAt() time.Time { return e.Timestamp }
