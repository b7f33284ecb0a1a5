package models

import "time"

// DisasterReport is immutable after creation except for RiskScore, which an
// external scoring collaborator may recompute.
type DisasterReport struct {
	ID          string
	Location    string // geohash cell
	Severity    int    // 1..5
	RiskScore   float64
	EvidenceRef string // opaque handle into external evidence storage
	Reporter    string
	Seq         uint64
	CreatedAt   time.Time
}
