package repository

import (
	"context"
	"time"

	"github.com/openrelief/aidmatch/internal/events"
	"github.com/openrelief/aidmatch/internal/models"
)

// StoredEvent is an event row read back from the append-only event log.
type StoredEvent struct {
	ID        int64
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

// Store is the durable storage collaborator. Saves are upserts keyed by
// entity ID; Loads return every row ordered for deterministic replay.
type Store interface {
	SaveReport(ctx context.Context, r models.DisasterReport) error
	SaveOffer(ctx context.Context, o models.ResourceOffer) error
	SaveRequest(ctx context.Context, r models.ResourceRequest) error
	SaveMatch(ctx context.Context, m models.ResourceMatch) error
	AppendEvent(ctx context.Context, e events.Event) error

	LoadReports(ctx context.Context) ([]models.DisasterReport, error)
	LoadOffers(ctx context.Context) ([]models.ResourceOffer, error)
	LoadRequests(ctx context.Context) ([]models.ResourceRequest, error)
	LoadMatches(ctx context.Context) ([]models.ResourceMatch, error)
	ListEvents(ctx context.Context, limit int) ([]StoredEvent, error)
}
