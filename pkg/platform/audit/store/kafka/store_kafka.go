// Package kafka publishes audit events to a Kafka topic. It is a write-only
// sink: reads come from a materialized store, never from the broker.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	id "credence/pkg/domain"
	audit "credence/pkg/platform/audit"
	"credence/pkg/platform/sentinel"
)

// Store produces audit events keyed by subject so per-holder ordering is
// preserved across partitions.
type Store struct {
	client *kgo.Client
	topic  string
}

// New connects to the brokers and ensures the topic exists. Topic creation
// is idempotent; an "already exists" response is treated as success.
func New(ctx context.Context, brokers []string, topic string) (*Store, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 3, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create audit topic: %w", err)
	}
	// TOPIC_ALREADY_EXISTS is fine; any other response error means the
	// sink is unusable.
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("create audit topic %q: %w", topic, resp.Err)
	}

	return &Store{client: client, topic: topic}, nil
}

// payload mirrors the outbox JSON so stream consumers and the materialized
// store agree on field names.
type payload struct {
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

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	p := payload{
		Category:      string(audit.AuditEvent(event.Action).Category()),
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
		p.Subject = event.Subject.String()
	}
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(p.Subject),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

// ListBySubject is unsupported; Kafka is a write-only sink here.
func (s *Store) ListBySubject(ctx context.Context, subject id.SubjectID) ([]audit.Event, error) {
	return nil, sentinel.ErrUnavailable
}

func (s *Store) Close() {
	s.client.Close()
}
