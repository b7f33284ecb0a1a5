package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openrelief/aidmatch/internal/engine"
	"github.com/openrelief/aidmatch/internal/events"
	"github.com/openrelief/aidmatch/internal/geo"
	"github.com/openrelief/aidmatch/internal/models"
	"github.com/openrelief/aidmatch/internal/repository"
)

type Handler struct {
	engine      *engine.Engine
	broadcaster *events.Broadcaster
	store       repository.Store
}

func NewHandler(eng *engine.Engine, broadcaster *events.Broadcaster, store repository.Store) *Handler {
	return &Handler{
		engine:      eng,
		broadcaster: broadcaster,
		store:       store,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.POST("/disasters", h.registerDisaster)
	api.GET("/disasters", h.listDisasters)
	api.GET("/disasters/:id", h.getDisaster)

	api.POST("/offers", h.offerResource)
	api.GET("/offers", h.listOffers)
	api.GET("/offers/:id", h.getOffer)
	api.POST("/offers/:id/cancel", h.cancelOffer)

	api.POST("/requests", h.requestResource)
	api.GET("/requests", h.listRequests)
	api.GET("/requests/:id", h.getRequest)
	api.GET("/requests/:id/best-offer", h.bestOffer)
	api.POST("/requests/:id/cancel", h.cancelRequest)

	api.POST("/matches", h.createMatch)
	api.POST("/matches/run", h.matchPending)
	api.GET("/matches", h.listMatches)
	api.GET("/matches/:id", h.getMatch)
	api.POST("/matches/:id/delivery", h.startDelivery)
	api.POST("/matches/:id/verify", h.verifyDelivery)
	api.POST("/matches/:id/dispute", h.disputeMatch)
	api.POST("/matches/:id/cancel", h.cancelMatch)

	api.GET("/events", h.streamEvents)
	api.GET("/events/history", h.eventHistory)

	admin := api.Group("/admin")
	admin.POST("/pause", h.pause)
	admin.POST("/resume", h.resume)
}

// caller returns the opaque caller identity. Authentication proper is an
// external concern; the engine only distinguishes admin from everyone else.
func caller(c *gin.Context) string {
	if id := c.GetHeader("X-Caller-ID"); id != "" {
		return id
	}
	return "anonymous"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrSystemPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrIncompatibleMatch):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// location resolves the geohash cell of a submission: either given
// directly or encoded from coordinates.
type location struct {
	Geohash   string   `json:"geohash"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (l location) cell() string {
	if l.Geohash == "" && l.Latitude != nil && l.Longitude != nil {
		return geo.Encode(*l.Latitude, *l.Longitude, geo.Precision)
	}
	return l.Geohash
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "paused": h.engine.Paused()})
}

type registerDisasterRequest struct {
	location
	Severity    int     `json:"severity"`
	RiskScore   float64 `json:"risk_score"`
	EvidenceRef string  `json:"evidence_ref"`
}

func (h *Handler) registerDisaster(c *gin.Context) {
	var req registerDisasterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	report, err := h.engine.RegisterDisaster(caller(c), req.cell(), req.Severity, req.RiskScore, req.EvidenceRef)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reportJSON(report))
}

type offerRequest struct {
	location
	ResourceType string `json:"resource_type"`
	Quantity     int64  `json:"quantity"`
}

func (h *Handler) offerResource(c *gin.Context) {
	var req offerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	offer, err := h.engine.OfferResource(caller(c), models.ResourceType(req.ResourceType), req.Quantity, req.cell())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, offerJSON(offer))
}

type requestRequest struct {
	location
	ResourceType string `json:"resource_type"`
	Quantity     int64  `json:"quantity"`
	Urgency      int    `json:"urgency"`
}

func (h *Handler) requestResource(c *gin.Context) {
	var req requestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	request, err := h.engine.RequestResource(caller(c), models.ResourceType(req.ResourceType), req.Quantity, req.cell(), req.Urgency)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, requestJSON(request))
}

type createMatchRequest struct {
	OfferID   string `json:"offer_id"`
	RequestID string `json:"request_id"`
}

func (h *Handler) createMatch(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	match, err := h.engine.CreateMatch(caller(c), req.OfferID, req.RequestID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, matchJSON(match))
}

func (h *Handler) matchPending(c *gin.Context) {
	matches, err := h.engine.MatchPending(caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchJSON(m))
	}
	c.JSON(http.StatusOK, gin.H{"matches": out})
}

func (h *Handler) bestOffer(c *gin.Context) {
	cand, err := h.engine.FindBestMatch(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if cand == nil {
		c.JSON(http.StatusOK, gin.H{"candidate": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidate": gin.H{
		"offer_id": cand.OfferID,
		"score":    cand.Score,
	}})
}

func (h *Handler) startDelivery(c *gin.Context) {
	match, err := h.engine.StartDelivery(caller(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, matchJSON(match))
}

type verifyRequest struct {
	Proof string `json:"proof"`
}

func (h *Handler) verifyDelivery(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.VerifyDelivery(caller(c), c.Param("id"), req.Proof); err != nil {
		fail(c, err)
		return
	}
	match, err := h.engine.GetMatch(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, matchJSON(match))
}

func (h *Handler) disputeMatch(c *gin.Context) {
	match, err := h.engine.DisputeMatch(caller(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, matchJSON(match))
}

func (h *Handler) cancelMatch(c *gin.Context) {
	match, err := h.engine.CancelMatch(caller(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, matchJSON(match))
}

func (h *Handler) cancelOffer(c *gin.Context) {
	offer, err := h.engine.CancelOffer(caller(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offerJSON(offer))
}

func (h *Handler) cancelRequest(c *gin.Context) {
	request, err := h.engine.CancelRequest(caller(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requestJSON(request))
}

func (h *Handler) pause(c *gin.Context) {
	if err := h.engine.EmergencyPause(caller(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *Handler) resume(c *gin.Context) {
	if err := h.engine.ResumeOperations(caller(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (h *Handler) getDisaster(c *gin.Context) {
	report, err := h.engine.GetReport(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reportJSON(report))
}

func (h *Handler) getOffer(c *gin.Context) {
	offer, err := h.engine.GetOffer(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offerJSON(offer))
}

func (h *Handler) getRequest(c *gin.Context) {
	request, err := h.engine.GetRequest(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requestJSON(request))
}

func (h *Handler) getMatch(c *gin.Context) {
	match, err := h.engine.GetMatch(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, matchJSON(match))
}

func (h *Handler) listDisasters(c *gin.Context) {
	filter := engine.ReportFilter{Limit: queryInt(c, "limit", 100)}
	if s := c.Query("min_severity"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			filter.MinSeverity = v
		}
	}
	filter.Near = c.Query("near")
	filter.Radius = queryInt(c, "radius", 0)

	reports := h.engine.ListReports(filter)
	if c.Query("format") == "geojson" {
		c.Header("Content-Type", "application/geo+json")
		c.JSON(http.StatusOK, reportsToGeoJSON(reports))
		return
	}
	out := make([]gin.H, 0, len(reports))
	for _, r := range reports {
		out = append(out, reportJSON(r))
	}
	c.JSON(http.StatusOK, gin.H{"disasters": out})
}

func (h *Handler) listOffers(c *gin.Context) {
	filter := engine.OfferFilter{
		State:  models.OfferState(c.Query("state")),
		Near:   c.Query("near"),
		Radius: queryInt(c, "radius", 0),
		Limit:  queryInt(c, "limit", 100),
	}
	if t := c.Query("type"); t != "" {
		if rt, ok := models.ParseResourceType(t); ok {
			filter.Type = rt
		}
	}

	offers := h.engine.ListOffers(filter)
	if c.Query("format") == "geojson" {
		c.Header("Content-Type", "application/geo+json")
		c.JSON(http.StatusOK, offersToGeoJSON(offers))
		return
	}
	out := make([]gin.H, 0, len(offers))
	for _, o := range offers {
		out = append(out, offerJSON(o))
	}
	c.JSON(http.StatusOK, gin.H{"offers": out})
}

func (h *Handler) listRequests(c *gin.Context) {
	filter := engine.RequestFilter{
		State:      models.RequestState(c.Query("state")),
		MinUrgency: queryInt(c, "min_urgency", 0),
		Limit:      queryInt(c, "limit", 100),
	}
	if t := c.Query("type"); t != "" {
		if rt, ok := models.ParseResourceType(t); ok {
			filter.Type = rt
		}
	}

	requests := h.engine.ListRequests(filter)
	if c.Query("format") == "geojson" {
		c.Header("Content-Type", "application/geo+json")
		c.JSON(http.StatusOK, requestsToGeoJSON(requests))
		return
	}
	out := make([]gin.H, 0, len(requests))
	for _, r := range requests {
		out = append(out, requestJSON(r))
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

func (h *Handler) listMatches(c *gin.Context) {
	filter := engine.MatchFilter{
		State: models.MatchState(c.Query("state")),
		Limit: queryInt(c, "limit", 100),
	}

	matches := h.engine.ListMatches(filter)
	out := make([]gin.H, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchJSON(m))
	}
	c.JSON(http.StatusOK, gin.H{"matches": out})
}

// eventHistory returns persisted events in append order, oldest first.
func (h *Handler) eventHistory(c *gin.Context) {
	stored, err := h.store.ListEvents(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event history unavailable"})
		return
	}
	out := make([]gin.H, 0, len(stored))
	for _, e := range stored {
		out = append(out, gin.H{
			"id":         e.ID,
			"kind":       e.Kind,
			"payload":    json.RawMessage(e.Payload),
			"created_at": e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return fallback
}

func reportJSON(r models.DisasterReport) gin.H {
	return gin.H{
		"id":           r.ID,
		"geohash":      r.Location,
		"severity":     r.Severity,
		"risk_score":   r.RiskScore,
		"evidence_ref": r.EvidenceRef,
		"reporter":     r.Reporter,
		"created_at":   r.CreatedAt,
	}
}

func offerJSON(o models.ResourceOffer) gin.H {
	return gin.H{
		"id":            o.ID,
		"resource_type": string(o.Type),
		"quantity":      o.Quantity,
		"remaining":     o.Remaining,
		"geohash":       o.Location,
		"provider":      o.Provider,
		"state":         string(o.State),
		"created_at":    o.CreatedAt,
	}
}

func requestJSON(r models.ResourceRequest) gin.H {
	return gin.H{
		"id":            r.ID,
		"resource_type": string(r.Type),
		"quantity":      r.Quantity,
		"geohash":       r.Location,
		"urgency":       r.Urgency,
		"requester":     r.Requester,
		"state":         string(r.State),
		"created_at":    r.CreatedAt,
	}
}

func matchJSON(m models.ResourceMatch) gin.H {
	out := gin.H{
		"id":         m.ID,
		"offer_id":   m.OfferID,
		"request_id": m.RequestID,
		"quantity":   m.Quantity,
		"score":      m.Score,
		"state":      string(m.State),
		"created_at": m.CreatedAt,
	}
	if m.DeliveryProof != "" {
		out["delivery_proof"] = m.DeliveryProof
	}
	if m.VerifiedAt != nil {
		out["verified_at"] = *m.VerifiedAt
	}
	return out
}
