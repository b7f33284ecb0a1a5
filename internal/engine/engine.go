// Package engine implements the resource coordination core: submissions,
// matching, the entity lifecycles and the global circuit breaker. All
// state lives in memory behind a single mutex, so every operation executes
// to completion atomically before the next begins. Durable storage is an
// external collaborator fed through the change sink.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openrelief/aidmatch/internal/events"
	"github.com/openrelief/aidmatch/internal/geo"
	"github.com/openrelief/aidmatch/internal/models"
	"github.com/openrelief/aidmatch/internal/queue"
)

// Config carries the matcher weights and the circuit-breaker admin
// identity. Weights are fixed at construction; see DefaultConfig for the
// documented defaults.
type Config struct {
	AdminIdentity string

	ProximityWeight   float64
	FulfillmentWeight float64
	UrgencyWeight     float64

	// QueryRadius is the proximity search radius in geohash prefix levels.
	QueryRadius int

	// AutoMatch runs a matching pass as a side effect of each offer or
	// request submission. When false, matching happens only through
	// explicit CreateMatch / MatchPending calls.
	AutoMatch bool
}

func DefaultConfig() Config {
	return Config{
		ProximityWeight:   0.5,
		FulfillmentWeight: 0.3,
		UrgencyWeight:     0.2,
		QueryRadius:       4,
	}
}

// Change is the snapshot of entities and events committed by a single
// operation, handed to the sink for write-behind persistence.
type Change struct {
	Reports  []models.DisasterReport
	Offers   []models.ResourceOffer
	Requests []models.ResourceRequest
	Matches  []models.ResourceMatch
	Events   []events.Event
}

func (c Change) empty() bool {
	return len(c.Reports) == 0 && len(c.Offers) == 0 && len(c.Requests) == 0 &&
		len(c.Matches) == 0 && len(c.Events) == 0
}

type Engine struct {
	mu     sync.Mutex
	cfg    Config
	paused bool
	seq    uint64

	reports  map[string]*models.DisasterReport
	offers   map[string]*models.ResourceOffer
	requests map[string]*models.ResourceRequest
	matches  map[string]*models.ResourceMatch

	// active (non-terminal) match per side; at most one each
	matchByOffer   map[string]string
	matchByRequest map[string]string

	reportIndex *geo.Index
	offerIndex  *geo.Index

	pendingOffers   *queue.Queue
	pendingRequests *queue.Queue

	log         []events.Event
	broadcaster *events.Broadcaster
	sink        func(Change)

	now   func() time.Time
	newID func() string
}

// New returns an engine with operations enabled. The broadcaster may be
// nil when no streaming observers exist.
func New(cfg Config, broadcaster *events.Broadcaster) *Engine {
	return &Engine{
		cfg:             cfg,
		reports:         make(map[string]*models.DisasterReport),
		offers:          make(map[string]*models.ResourceOffer),
		requests:        make(map[string]*models.ResourceRequest),
		matches:         make(map[string]*models.ResourceMatch),
		matchByOffer:    make(map[string]string),
		matchByRequest:  make(map[string]string),
		reportIndex:     geo.NewIndex(),
		offerIndex:      geo.NewIndex(),
		pendingOffers:   queue.New(),
		pendingRequests: queue.New(),
		broadcaster:     broadcaster,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// SetSink installs the write-behind persistence hook. Called once during
// wiring, before the engine starts taking traffic.
func (e *Engine) SetSink(sink func(Change)) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// commit publishes events and hands the change snapshot to the sink. Must
// be called with the mutex held, after all mutations of the operation.
func (e *Engine) commit(c Change) {
	e.log = append(e.log, c.Events...)
	if e.broadcaster != nil {
		for _, ev := range c.Events {
			e.broadcaster.Broadcast(ev)
		}
	}
	if e.sink != nil && !c.empty() {
		e.sink(c)
	}
}

// EmergencyPause halts all mutating operations. Admin only.
func (e *Engine) EmergencyPause(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller == "" || caller != e.cfg.AdminIdentity {
		return ErrUnauthorized
	}
	e.paused = true
	return nil
}

// ResumeOperations re-enables mutating operations. Admin only; not gated
// by the pause flag itself.
func (e *Engine) ResumeOperations(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller == "" || caller != e.cfg.AdminIdentity {
		return ErrUnauthorized
	}
	e.paused = false
	return nil
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// RegisterDisaster records a disaster report and emits a DisasterAlert.
// RiskScore is an opaque input from the external scoring collaborator.
func (e *Engine) RegisterDisaster(caller, location string, severity int, riskScore float64, evidenceRef string) (models.DisasterReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return models.DisasterReport{}, ErrSystemPaused
	}
	if severity < 1 || severity > 5 {
		return models.DisasterReport{}, fmt.Errorf("%w: %d", ErrInvalidSeverity, severity)
	}
	if !geo.Valid(location) {
		return models.DisasterReport{}, fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}

	e.seq++
	report := &models.DisasterReport{
		ID:          e.newID(),
		Location:    location,
		Severity:    severity,
		RiskScore:   riskScore,
		EvidenceRef: evidenceRef,
		Reporter:    caller,
		Seq:         e.seq,
		CreatedAt:   e.now(),
	}
	e.reports[report.ID] = report
	if err := e.reportIndex.Add(report.ID, location); err != nil {
		delete(e.reports, report.ID)
		return models.DisasterReport{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}

	alert := events.DisasterAlert{
		ReportID:  report.ID,
		Geohash:   report.Location,
		Severity:  report.Severity,
		RiskScore: report.RiskScore,
		Timestamp: report.CreatedAt,
	}
	e.commit(Change{
		Reports: []models.DisasterReport{*report},
		Events:  []events.Event{alert},
	})
	return *report, nil
}

// OfferResource registers a supply-side declaration and enqueues it.
func (e *Engine) OfferResource(caller string, typ models.ResourceType, quantity int64, location string) (models.ResourceOffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return models.ResourceOffer{}, ErrSystemPaused
	}
	if _, ok := models.ParseResourceType(string(typ)); !ok {
		return models.ResourceOffer{}, fmt.Errorf("%w: %q", ErrInvalidResourceType, typ)
	}
	if quantity <= 0 {
		return models.ResourceOffer{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if !geo.Valid(location) {
		return models.ResourceOffer{}, fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}

	e.seq++
	offer := &models.ResourceOffer{
		ID:        e.newID(),
		Type:      typ,
		Quantity:  quantity,
		Remaining: quantity,
		Location:  location,
		Provider:  caller,
		State:     models.OfferOpen,
		Seq:       e.seq,
		CreatedAt: e.now(),
	}
	e.offers[offer.ID] = offer
	if err := e.offerIndex.Add(offer.ID, location); err != nil {
		delete(e.offers, offer.ID)
		return models.ResourceOffer{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	e.pendingOffers.Enqueue(offer.ID, 0) // FIFO among offers

	change := Change{Offers: []models.ResourceOffer{*offer}}
	if e.cfg.AutoMatch {
		change = e.matchPendingLocked(change)
	}
	e.commit(change)
	return *offer, nil
}

// RequestResource registers a demand-side declaration and enqueues it with
// its urgency as priority.
func (e *Engine) RequestResource(caller string, typ models.ResourceType, quantity int64, location string, urgency int) (models.ResourceRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return models.ResourceRequest{}, ErrSystemPaused
	}
	if _, ok := models.ParseResourceType(string(typ)); !ok {
		return models.ResourceRequest{}, fmt.Errorf("%w: %q", ErrInvalidResourceType, typ)
	}
	if quantity <= 0 {
		return models.ResourceRequest{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if urgency < 1 || urgency > 5 {
		return models.ResourceRequest{}, fmt.Errorf("%w: %d", ErrInvalidUrgency, urgency)
	}
	if !geo.Valid(location) {
		return models.ResourceRequest{}, fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}

	e.seq++
	req := &models.ResourceRequest{
		ID:        e.newID(),
		Type:      typ,
		Quantity:  quantity,
		Location:  location,
		Urgency:   urgency,
		Requester: caller,
		State:     models.RequestOpen,
		Seq:       e.seq,
		CreatedAt: e.now(),
	}
	e.requests[req.ID] = req
	e.pendingRequests.Enqueue(req.ID, req.Urgency)

	change := Change{Requests: []models.ResourceRequest{*req}}
	if e.cfg.AutoMatch {
		change = e.matchPendingLocked(change)
	}
	e.commit(change)
	return *req, nil
}

// GetReport returns a copy of the report.
func (e *Engine) GetReport(id string) (models.DisasterReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.reports[id]
	if !ok {
		return models.DisasterReport{}, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return *r, nil
}

func (e *Engine) GetOffer(id string) (models.ResourceOffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.offers[id]
	if !ok {
		return models.ResourceOffer{}, fmt.Errorf("offer %s: %w", id, ErrNotFound)
	}
	return *o, nil
}

func (e *Engine) GetRequest(id string) (models.ResourceRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.requests[id]
	if !ok {
		return models.ResourceRequest{}, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return *r, nil
}

func (e *Engine) GetMatch(id string) (models.ResourceMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches[id]
	if !ok {
		return models.ResourceMatch{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return *m, nil
}

// Events returns the ordered event log.
func (e *Engine) Events() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Event, len(e.log))
	copy(out, e.log)
	return out
}
