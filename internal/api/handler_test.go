package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/openrelief/aidmatch/internal/engine"
	"github.com/openrelief/aidmatch/internal/events"
	"github.com/openrelief/aidmatch/internal/journal"
	"github.com/openrelief/aidmatch/internal/repository"
)

const adminID = "coordinator-1"

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := engine.DefaultConfig()
	cfg.AdminIdentity = adminID
	broadcaster := events.NewBroadcaster()
	eng := engine.New(cfg, broadcaster)

	router := gin.New()
	handler := NewHandler(eng, broadcaster, store)
	handler.RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, callerID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, _ := http.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if callerID != "" {
		req.Header.Set("X-Caller-ID", callerID)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	resp := decode(t, w)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
	if resp["paused"] != false {
		t.Errorf("expected paused false, got %v", resp["paused"])
	}
}

func TestRegisterDisaster(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/disasters", "reporter-1", map[string]any{
		"geohash":      "tz4hnyu7",
		"severity":     4,
		"risk_score":   0.8,
		"evidence_ref": "photo://abc123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if resp["id"] == "" {
		t.Error("expected a generated report id")
	}
	if resp["reporter"] != "reporter-1" {
		t.Errorf("expected reporter from caller header, got %v", resp["reporter"])
	}
}

func TestRegisterDisaster_FromCoordinates(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/disasters", "reporter-1", map[string]any{
		"latitude":  57.64911,
		"longitude": 10.40744,
		"severity":  3,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if resp["geohash"] != "u4pruydq" {
		t.Errorf("expected encoded geohash u4pruydq, got %v", resp["geohash"])
	}
}

func TestRegisterDisaster_InvalidSeverity(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/disasters", "reporter-1", map[string]any{
		"geohash":  "tz4hnyu7",
		"severity": 9,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestMatchLifecycleOverHTTP(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/offers", "provider-1", map[string]any{
		"resource_type": "WATER",
		"quantity":      100,
		"geohash":       "tz4hnyu7",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("offer: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	offerID := decode(t, w)["id"].(string)

	w = doJSON(t, router, "POST", "/api/requests", "requester-1", map[string]any{
		"resource_type": "WATER",
		"quantity":      30,
		"geohash":       "tz4hnyu8",
		"urgency":       5,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("request: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	requestID := decode(t, w)["id"].(string)

	w = doJSON(t, router, "GET", "/api/requests/"+requestID+"/best-offer", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("best-offer: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cand := decode(t, w)["candidate"].(map[string]any)
	if cand["offer_id"] != offerID {
		t.Errorf("expected best offer %s, got %v", offerID, cand["offer_id"])
	}

	w = doJSON(t, router, "POST", "/api/matches", "requester-1", map[string]any{
		"offer_id":   offerID,
		"request_id": requestID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("match: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	match := decode(t, w)
	matchID := match["id"].(string)
	if match["state"] != "CREATED" {
		t.Errorf("expected state CREATED, got %v", match["state"])
	}
	if match["quantity"] != float64(30) {
		t.Errorf("expected committed quantity 30, got %v", match["quantity"])
	}

	w = doJSON(t, router, "POST", "/api/matches/"+matchID+"/delivery", "provider-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delivery: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/matches/"+matchID+"/verify", "requester-1", map[string]any{
		"proof": "sig:deadbeef",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	verified := decode(t, w)
	if verified["state"] != "VERIFIED" {
		t.Errorf("expected state VERIFIED, got %v", verified["state"])
	}
	if verified["delivery_proof"] != "sig:deadbeef" {
		t.Errorf("expected delivery proof echoed back, got %v", verified["delivery_proof"])
	}

	w = doJSON(t, router, "GET", "/api/offers/"+offerID, "", nil)
	offer := decode(t, w)
	if offer["remaining"] != float64(70) {
		t.Errorf("expected remaining 70, got %v", offer["remaining"])
	}
	if offer["state"] != "FULFILLED" {
		t.Errorf("expected offer FULFILLED, got %v", offer["state"])
	}
}

func TestVerify_EmptyProofRejected(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/offers", "provider-1", map[string]any{
		"resource_type": "FOOD", "quantity": 10, "geohash": "tz4hnyu7",
	})
	offerID := decode(t, w)["id"].(string)
	w = doJSON(t, router, "POST", "/api/requests", "requester-1", map[string]any{
		"resource_type": "FOOD", "quantity": 10, "geohash": "tz4hnyu7", "urgency": 2,
	})
	requestID := decode(t, w)["id"].(string)
	w = doJSON(t, router, "POST", "/api/matches", "requester-1", map[string]any{
		"offer_id": offerID, "request_id": requestID,
	})
	matchID := decode(t, w)["id"].(string)

	w = doJSON(t, router, "POST", "/api/matches/"+matchID+"/verify", "requester-1", map[string]any{
		"proof": "   ",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for blank proof, got %d", w.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	router := setupTestRouter(t)

	// Unknown entity
	w := doJSON(t, router, "GET", "/api/offers/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown offer: expected 404, got %d", w.Code)
	}

	// Non-admin pause attempt
	w = doJSON(t, router, "POST", "/api/admin/pause", "random-user", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-admin pause: expected 403, got %d", w.Code)
	}

	// Paused system rejects writes with 503
	w = doJSON(t, router, "POST", "/api/admin/pause", adminID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin pause: expected 200, got %d", w.Code)
	}
	w = doJSON(t, router, "POST", "/api/offers", "provider-1", map[string]any{
		"resource_type": "WATER", "quantity": 5, "geohash": "tz4hnyu7",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("paused offer: expected 503, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/admin/resume", adminID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin resume: expected 200, got %d", w.Code)
	}
	w = doJSON(t, router, "POST", "/api/offers", "provider-1", map[string]any{
		"resource_type": "WATER", "quantity": 5, "geohash": "tz4hnyu7",
	})
	if w.Code != http.StatusCreated {
		t.Errorf("after resume: expected 201, got %d", w.Code)
	}
}

func TestCancelOffer_ConflictOnDoubleCancel(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/offers", "provider-1", map[string]any{
		"resource_type": "SHELTER", "quantity": 3, "geohash": "tz4hnyu7",
	})
	offerID := decode(t, w)["id"].(string)

	w = doJSON(t, router, "POST", "/api/offers/"+offerID+"/cancel", "someone-else", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-owner cancel: expected 403, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/offers/"+offerID+"/cancel", "provider-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner cancel: expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/offers/"+offerID+"/cancel", "provider-1", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("double cancel: expected 409, got %d", w.Code)
	}
}

func TestListOffers_GeoJSON(t *testing.T) {
	router := setupTestRouter(t)

	doJSON(t, router, "POST", "/api/offers", "provider-1", map[string]any{
		"resource_type": "WATER", "quantity": 10, "geohash": "u4pruydq",
	})
	doJSON(t, router, "POST", "/api/offers", "provider-2", map[string]any{
		"resource_type": "FOOD", "quantity": 20, "geohash": "tz4hnyu7",
	})

	w := doJSON(t, router, "GET", "/api/offers?format=geojson", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", ct)
	}

	var fc FeatureCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("expected type FeatureCollection, got %s", fc.Type)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	coords := fc.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		t.Fatalf("expected [lon lat] coordinates, got %v", coords)
	}
	if coords[0] < 10.40 || coords[0] > 10.41 {
		t.Errorf("expected longitude near 10.407, got %f", coords[0])
	}
}

func TestListOffers_Filters(t *testing.T) {
	router := setupTestRouter(t)

	doJSON(t, router, "POST", "/api/offers", "provider-1", map[string]any{
		"resource_type": "WATER", "quantity": 10, "geohash": "tz4hnyu7",
	})
	doJSON(t, router, "POST", "/api/offers", "provider-2", map[string]any{
		"resource_type": "FOOD", "quantity": 20, "geohash": "tz4hnyu7",
	})

	w := doJSON(t, router, "GET", "/api/offers?type=water", "", nil)
	resp := decode(t, w)
	offers := resp["offers"].([]any)
	if len(offers) != 1 {
		t.Fatalf("expected 1 water offer, got %d", len(offers))
	}
	if offers[0].(map[string]any)["resource_type"] != "WATER" {
		t.Errorf("expected WATER offer, got %v", offers[0])
	}
}

func TestMatchRun(t *testing.T) {
	router := setupTestRouter(t)

	doJSON(t, router, "POST", "/api/offers", "provider-1", map[string]any{
		"resource_type": "MEDICAL", "quantity": 50, "geohash": "tz4hnyu7",
	})
	doJSON(t, router, "POST", "/api/requests", "requester-1", map[string]any{
		"resource_type": "MEDICAL", "quantity": 20, "geohash": "tz4hnyu8", "urgency": 4,
	})

	w := doJSON(t, router, "POST", "/api/matches/run", "anyone", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	matches := decode(t, w)["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

func TestBestOffer_NoCandidate(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/requests", "requester-1", map[string]any{
		"resource_type": "RESCUE", "quantity": 10, "geohash": "tz4hnyu7", "urgency": 3,
	})
	requestID := decode(t, w)["id"].(string)

	w = doJSON(t, router, "GET", "/api/requests/"+requestID+"/best-offer", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if decode(t, w)["candidate"] != nil {
		t.Errorf("expected null candidate, got %v", decode(t, w)["candidate"])
	}
}

func TestEventHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	defer store.Close()

	cfg := engine.DefaultConfig()
	cfg.AdminIdentity = adminID
	broadcaster := events.NewBroadcaster()
	eng := engine.New(cfg, broadcaster)

	j := journal.New(store, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.Start(ctx)
	eng.SetSink(j.Record)

	router := gin.New()
	NewHandler(eng, broadcaster, store).RegisterRoutes(router)

	if _, err := eng.RegisterDisaster("reporter-1", "tz4hnyu7", 4, 0.7, "cid-1"); err != nil {
		t.Fatal(err)
	}
	offer, err := eng.OfferResource("provider-1", "WATER", 50, "tz4hnyu7")
	if err != nil {
		t.Fatal(err)
	}
	req, err := eng.RequestResource("requester-1", "WATER", 20, "tz4hnyu8", 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CreateMatch("requester-1", offer.ID, req.ID); err != nil {
		t.Fatal(err)
	}

	j.Stop() // flush pending writes before reading history

	w := doJSON(t, router, "GET", "/api/events/history", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	history := decode(t, w)["events"].([]any)
	if len(history) != 2 {
		t.Fatalf("expected 2 events, got %d", len(history))
	}
	first := history[0].(map[string]any)
	second := history[1].(map[string]any)
	if first["kind"] != events.KindDisasterAlert || second["kind"] != events.KindResourceMatched {
		t.Errorf("event kinds = [%v %v], want [disaster_alert resource_matched]",
			first["kind"], second["kind"])
	}
	payload := first["payload"].(map[string]any)
	if payload["severity"] != float64(4) {
		t.Errorf("expected severity 4 in payload, got %v", payload["severity"])
	}
}
