package certificate

import (
	"context"
	"slices"
	"sync"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// InMemoryStore implements Store with process-local maps.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   id.CertificateID
	certs    map[id.CertificateID]Certificate
	byHolder map[id.SubjectID][]id.CertificateID
	byIssuer map[id.SubjectID][]id.CertificateID
	locked   map[id.SubjectID]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:   1,
		certs:    make(map[id.CertificateID]Certificate),
		byHolder: make(map[id.SubjectID][]id.CertificateID),
		byIssuer: make(map[id.SubjectID][]id.CertificateID),
		locked:   make(map[id.SubjectID]bool),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, cert Certificate) (id.CertificateID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert.ID = s.nextID
	s.nextID++
	s.certs[cert.ID] = cert
	s.byHolder[cert.Holder] = append(s.byHolder[cert.Holder], cert.ID)
	s.byIssuer[cert.Issuer] = append(s.byIssuer[cert.Issuer], cert.ID)
	return cert.ID, nil
}

func (s *InMemoryStore) Get(ctx context.Context, certID id.CertificateID) (Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[certID]
	if !ok {
		return Certificate{}, sentinel.ErrNotFound
	}
	return cert, nil
}

func (s *InMemoryStore) Update(ctx context.Context, cert Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.certs[cert.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if prev.Holder != cert.Holder {
		s.byHolder[prev.Holder] = removeID(s.byHolder[prev.Holder], cert.ID)
		s.byHolder[cert.Holder] = append(s.byHolder[cert.Holder], cert.ID)
	}
	s.certs[cert.ID] = cert
	return nil
}

func (s *InMemoryStore) ListByHolder(ctx context.Context, holder id.SubjectID) ([]id.CertificateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byHolder[holder]), nil
}

func (s *InMemoryStore) ListByIssuer(ctx context.Context, issuer id.SubjectID) ([]id.CertificateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byIssuer[issuer]), nil
}

func (s *InMemoryStore) SetLocked(ctx context.Context, holder id.SubjectID, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if locked {
		s.locked[holder] = true
	} else {
		delete(s.locked, holder)
	}
	return nil
}

func (s *InMemoryStore) IsLocked(ctx context.Context, holder id.SubjectID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked[holder], nil
}

func removeID(ids []id.CertificateID, target id.CertificateID) []id.CertificateID {
	for i, v := range ids {
		if v == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
