package engine

import (
	"testing"

	"github.com/openrelief/aidmatch/internal/models"
)

func TestListOffers_Filters(t *testing.T) {
	e := newTestEngine(t)

	water, _ := e.OfferResource(provider, models.ResourceWater, 10, "tz4hnyu7")
	e.OfferResource(provider, models.ResourceFood, 10, "tz4hnyu7")
	e.OfferResource(provider, models.ResourceWater, 10, "u4pruydq")

	got := e.ListOffers(OfferFilter{Type: models.ResourceWater})
	if len(got) != 2 {
		t.Errorf("type filter: got %d offers, want 2", len(got))
	}

	got = e.ListOffers(OfferFilter{Near: "tz4hnyu7", Radius: 1})
	if len(got) != 2 {
		t.Errorf("near filter: got %d offers, want 2", len(got))
	}

	got = e.ListOffers(OfferFilter{Type: models.ResourceWater, Near: "tz4hnyu7", Radius: 1})
	if len(got) != 1 || got[0].ID != water.ID {
		t.Errorf("combined filter: got %+v, want only %s", got, water.ID)
	}

	got = e.ListOffers(OfferFilter{Limit: 1})
	if len(got) != 1 {
		t.Errorf("limit: got %d offers, want 1", len(got))
	}
}

func TestListRequests_SortedBySubmission(t *testing.T) {
	e := newTestEngine(t)

	a, _ := e.RequestResource(requester, models.ResourceWater, 10, "tz4hnyu7", 1)
	b, _ := e.RequestResource(requester, models.ResourceWater, 10, "tz4hnyu7", 5)

	got := e.ListRequests(RequestFilter{})
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Errorf("expected submission order [%s %s], got %+v", a.ID, b.ID, got)
	}

	got = e.ListRequests(RequestFilter{MinUrgency: 3})
	if len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("urgency filter: got %+v, want only %s", got, b.ID)
	}
}

func TestLoad_RestoresMatchableState(t *testing.T) {
	// Run a few operations, snapshot the entities, rebuild a fresh engine
	// from them and check matching still works the same.
	e := newTestEngine(t)
	e.RegisterDisaster(reporter, "tz4hnyu7", 4, 0.5, "ev")
	offer, _ := e.OfferResource(provider, models.ResourceWater, 100, "tz4hnyu7")
	req, _ := e.RequestResource(requester, models.ResourceWater, 30, "tz4hnyu8", 5)

	restored := newTestEngine(t)
	err := restored.Load(
		e.ListReports(ReportFilter{}),
		e.ListOffers(OfferFilter{}),
		e.ListRequests(RequestFilter{}),
		e.ListMatches(MatchFilter{}),
	)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cand, err := restored.FindBestMatch(req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cand == nil || cand.OfferID != offer.ID {
		t.Fatalf("after restore, candidate = %+v, want %s", cand, offer.ID)
	}
	if _, err := restored.CreateMatch(requester, offer.ID, req.ID); err != nil {
		t.Errorf("match on restored engine failed: %v", err)
	}
}

func TestLoad_SkipsTerminalEntities(t *testing.T) {
	e := newTestEngine(t)
	offer, _ := e.OfferResource(provider, models.ResourceWater, 10, "tz4hnyu7")
	e.CancelOffer(provider, offer.ID)

	restored := newTestEngine(t)
	if err := restored.Load(nil, e.ListOffers(OfferFilter{}), nil, nil); err != nil {
		t.Fatal(err)
	}

	req, _ := restored.RequestResource(requester, models.ResourceWater, 10, "tz4hnyu7", 3)
	cand, err := restored.FindBestMatch(req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cand != nil {
		t.Errorf("cancelled offer should not match after restore, got %+v", cand)
	}
}
