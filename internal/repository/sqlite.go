package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/openrelief/aidmatch/internal/events"
	"github.com/openrelief/aidmatch/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteStore{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			location TEXT NOT NULL,
			severity INTEGER NOT NULL,
			risk_score REAL NOT NULL,
			evidence_ref TEXT,
			reporter TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS offers (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			location TEXT NOT NULL,
			provider TEXT NOT NULL,
			state TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			location TEXT NOT NULL,
			urgency INTEGER NOT NULL,
			requester TEXT NOT NULL,
			state TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			offer_id TEXT NOT NULL,
			request_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			score REAL NOT NULL,
			state TEXT NOT NULL,
			delivery_proof TEXT,
			created_at DATETIME NOT NULL,
			verified_at DATETIME,
			FOREIGN KEY (offer_id) REFERENCES offers(id),
			FOREIGN KEY (request_id) REFERENCES requests(id)
		);

		CREATE TABLE IF NOT EXISTS event_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_location ON reports(location);
		CREATE INDEX IF NOT EXISTS idx_offers_state ON offers(state);
		CREATE INDEX IF NOT EXISTS idx_offers_location ON offers(location);
		CREATE INDEX IF NOT EXISTS idx_requests_state ON requests(state);
		CREATE INDEX IF NOT EXISTS idx_matches_state ON matches(state);
		CREATE INDEX IF NOT EXISTS idx_event_log_kind ON event_log(kind);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveReport(ctx context.Context, r models.DisasterReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, location, severity, risk_score, evidence_ref, reporter, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET risk_score = excluded.risk_score`,
		r.ID, r.Location, r.Severity, r.RiskScore, r.EvidenceRef, r.Reporter, r.Seq, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving report %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveOffer(ctx context.Context, o models.ResourceOffer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offers (id, type, quantity, remaining, location, provider, state, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET remaining = excluded.remaining, state = excluded.state`,
		o.ID, string(o.Type), o.Quantity, o.Remaining, o.Location, o.Provider, string(o.State), o.Seq, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving offer %s: %w", o.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveRequest(ctx context.Context, r models.ResourceRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, type, quantity, location, urgency, requester, state, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state`,
		r.ID, string(r.Type), r.Quantity, r.Location, r.Urgency, r.Requester, string(r.State), r.Seq, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving request %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveMatch(ctx context.Context, m models.ResourceMatch) error {
	var verifiedAt any
	if m.VerifiedAt != nil {
		verifiedAt = *m.VerifiedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (id, offer_id, request_id, quantity, score, state, delivery_proof, created_at, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, delivery_proof = excluded.delivery_proof, verified_at = excluded.verified_at`,
		m.ID, m.OfferID, m.RequestID, m.Quantity, m.Score, string(m.State), m.DeliveryProof, m.CreatedAt, verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving match %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("error encoding event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_log (kind, payload, created_at) VALUES (?, ?, ?)`,
		e.Kind(), payload, e.OccurredAt(),
	)
	if err != nil {
		return fmt.Errorf("error appending event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadReports(ctx context.Context) ([]models.DisasterReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location, severity, risk_score, evidence_ref, reporter, seq, created_at
		FROM reports ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("error querying reports: %w", err)
	}
	defer rows.Close()

	var out []models.DisasterReport
	for rows.Next() {
		var r models.DisasterReport
		if err := rows.Scan(&r.ID, &r.Location, &r.Severity, &r.RiskScore, &r.EvidenceRef, &r.Reporter, &r.Seq, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LoadOffers(ctx context.Context) ([]models.ResourceOffer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, quantity, remaining, location, provider, state, seq, created_at
		FROM offers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("error querying offers: %w", err)
	}
	defer rows.Close()

	var out []models.ResourceOffer
	for rows.Next() {
		var o models.ResourceOffer
		var typ, state string
		if err := rows.Scan(&o.ID, &typ, &o.Quantity, &o.Remaining, &o.Location, &o.Provider, &state, &o.Seq, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning offer: %w", err)
		}
		o.Type = models.ResourceType(typ)
		o.State = models.OfferState(state)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LoadRequests(ctx context.Context) ([]models.ResourceRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, quantity, location, urgency, requester, state, seq, created_at
		FROM requests ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("error querying requests: %w", err)
	}
	defer rows.Close()

	var out []models.ResourceRequest
	for rows.Next() {
		var r models.ResourceRequest
		var typ, state string
		if err := rows.Scan(&r.ID, &typ, &r.Quantity, &r.Location, &r.Urgency, &r.Requester, &state, &r.Seq, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning request: %w", err)
		}
		r.Type = models.ResourceType(typ)
		r.State = models.RequestState(state)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LoadMatches(ctx context.Context) ([]models.ResourceMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, offer_id, request_id, quantity, score, state, delivery_proof, created_at, verified_at
		FROM matches ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("error querying matches: %w", err)
	}
	defer rows.Close()

	var out []models.ResourceMatch
	for rows.Next() {
		var m models.ResourceMatch
		var state string
		var proof sql.NullString
		var verifiedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.OfferID, &m.RequestID, &m.Quantity, &m.Score, &state, &proof, &m.CreatedAt, &verifiedAt); err != nil {
			return nil, fmt.Errorf("error scanning match: %w", err)
		}
		m.State = models.MatchState(state)
		if proof.Valid {
			m.DeliveryProof = proof.String
		}
		if verifiedAt.Valid {
			t := verifiedAt.Time
			m.VerifiedAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, created_at FROM event_log ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
