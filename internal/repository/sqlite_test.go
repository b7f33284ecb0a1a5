package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/openrelief/aidmatch/internal/events"
	"github.com/openrelief/aidmatch/internal/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return s
}

func TestSQLiteStore_SaveAndLoadReport(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()
	report := models.DisasterReport{
		ID:          "report_1",
		Location:    "tz4hnyu7",
		Severity:    4,
		RiskScore:   0.82,
		EvidenceRef: "cid-1",
		Reporter:    "reporter-1",
		Seq:         1,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	got, err := s.LoadReports(ctx)
	if err != nil {
		t.Fatalf("LoadReports failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 report, got %d", len(got))
	}
	if got[0].ID != "report_1" || got[0].Severity != 4 || got[0].RiskScore != 0.82 {
		t.Errorf("unexpected report: %+v", got[0])
	}
}

func TestSQLiteStore_UpsertOfferState(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()
	offer := models.ResourceOffer{
		ID:        "offer_1",
		Type:      models.ResourceWater,
		Quantity:  100,
		Remaining: 100,
		Location:  "tz4hnyu7",
		Provider:  "provider-1",
		State:     models.OfferOpen,
		Seq:       2,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.SaveOffer(ctx, offer); err != nil {
		t.Fatalf("SaveOffer failed: %v", err)
	}

	// Second save with updated state and remaining acts as an upsert.
	offer.State = models.OfferFulfilled
	offer.Remaining = 70
	if err := s.SaveOffer(ctx, offer); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := s.LoadOffers(ctx)
	if err != nil {
		t.Fatalf("LoadOffers failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(got))
	}
	if got[0].State != models.OfferFulfilled || got[0].Remaining != 70 {
		t.Errorf("unexpected offer after upsert: %+v", got[0])
	}
}

func TestSQLiteStore_SaveAndLoadRequest(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()
	req := models.ResourceRequest{
		ID:        "request_1",
		Type:      models.ResourceMedical,
		Quantity:  30,
		Location:  "tz4hnyu8",
		Urgency:   5,
		Requester: "requester-1",
		State:     models.RequestOpen,
		Seq:       3,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.SaveRequest(ctx, req); err != nil {
		t.Fatalf("SaveRequest failed: %v", err)
	}

	got, err := s.LoadRequests(ctx)
	if err != nil {
		t.Fatalf("LoadRequests failed: %v", err)
	}
	if len(got) != 1 || got[0].Urgency != 5 || got[0].Type != models.ResourceMedical {
		t.Errorf("unexpected requests: %+v", got)
	}
}

func TestSQLiteStore_SaveAndLoadMatch(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	match := models.ResourceMatch{
		ID:        "match_1",
		OfferID:   "offer_1",
		RequestID: "request_1",
		Quantity:  30,
		Score:     1.25,
		State:     models.MatchCreated,
		CreatedAt: now,
	}

	if err := s.SaveMatch(ctx, match); err != nil {
		t.Fatalf("SaveMatch failed: %v", err)
	}

	// Verified save fills proof and timestamp.
	verified := now.Add(time.Minute)
	match.State = models.MatchVerified
	match.DeliveryProof = "proof-cid"
	match.VerifiedAt = &verified
	if err := s.SaveMatch(ctx, match); err != nil {
		t.Fatalf("verified upsert failed: %v", err)
	}

	got, err := s.LoadMatches(ctx)
	if err != nil {
		t.Fatalf("LoadMatches failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	m := got[0]
	if m.State != models.MatchVerified || m.DeliveryProof != "proof-cid" {
		t.Errorf("unexpected match: %+v", m)
	}
	if m.VerifiedAt == nil {
		t.Error("expected verified_at to round-trip")
	}
}

func TestSQLiteStore_EventLog(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()
	first := events.DisasterAlert{ReportID: "report_1", Geohash: "tz4hnyu7", Severity: 4, Timestamp: time.Now().UTC()}
	second := events.AidDelivered{MatchID: "match_1", Proof: "p", Provider: "provider-1", Timestamp: time.Now().UTC()}

	if err := s.AppendEvent(ctx, first); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if err := s.AppendEvent(ctx, second); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	got, err := s.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Kind != events.KindDisasterAlert || got[1].Kind != events.KindAidDelivered {
		t.Errorf("events out of order: %s, %s", got[0].Kind, got[1].Kind)
	}

	var alert events.DisasterAlert
	if err := json.Unmarshal(got[0].Payload, &alert); err != nil {
		t.Fatalf("payload decode failed: %v", err)
	}
	if alert.ReportID != "report_1" {
		t.Errorf("unexpected payload: %+v", alert)
	}
}
