package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "credence/pkg/domain"
	audit "credence/pkg/platform/audit"
	txcontext "credence/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the
// outbox worker; Kafka is the source of truth for downstream consumers.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event for proper deserialization by consumers.
type outboxPayload struct {
	ID            string `json:"ID"`
	Category      string `json:"Category"`
	Timestamp     string `json:"Timestamp"`
	Subject       string `json:"Subject,omitempty"`
	Action        string `json:"Action"`
	Decision      string `json:"Decision,omitempty"`
	Reason        string `json:"Reason,omitempty"`
	ActorID       string `json:"ActorID,omitempty"`
	RequestID     string `json:"RequestID,omitempty"`
	Device        string `json:"Device,omitempty"`
	CertificateID uint64 `json:"CertificateID,omitempty"`
	BadgeID       uint64 `json:"BadgeID,omitempty"`
	DisputeID     uint64 `json:"DisputeID,omitempty"`
	ScoreDelta    int64  `json:"ScoreDelta,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Category is always derived from the action; the eventCategories map
	// in the audit package is the source of truth.
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:            eventID.String(),
		Category:      string(category),
		Timestamp:     event.Timestamp.Format(time.RFC3339Nano),
		Action:        event.Action,
		Decision:      event.Decision,
		Reason:        event.Reason,
		ActorID:       event.ActorID,
		RequestID:     event.RequestID,
		Device:        event.Device,
		CertificateID: uint64(event.CertificateID),
		BadgeID:       uint64(event.BadgeID),
		DisputeID:     uint64(event.DisputeID),
		ScoreDelta:    event.ScoreDelta,
	}
	if !event.Subject.IsNil() {
		payload.Subject = event.Subject.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.Subject.IsNil() {
		aggregateType = "subject"
		aggregateID = event.Subject.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(), // outbox entry ID
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListBySubject reads materialized events for one subject, newest last.
func (s *Store) ListBySubject(ctx context.Context, subject id.SubjectID) ([]audit.Event, error) {
	query := `
		SELECT payload FROM outbox
		WHERE aggregate_type = 'subject' AND aggregate_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, subject.String())
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan outbox payload: %w", err)
		}
		var p outboxPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, p.Timestamp)
		events = append(events, audit.Event{
			Timestamp:     ts,
			Subject:       subject,
			Action:        p.Action,
			Decision:      p.Decision,
			Reason:        p.Reason,
			ActorID:       p.ActorID,
			RequestID:     p.RequestID,
			Device:        p.Device,
			CertificateID: id.CertificateID(p.CertificateID),
			BadgeID:       id.BadgeID(p.BadgeID),
			DisputeID:     id.DisputeID(p.DisputeID),
			ScoreDelta:    p.ScoreDelta,
		})
	}
	return events, rows.Err()
}
