package audit

import (
	"context"
	"errors"

	id "credence/pkg/domain"
)

// TeeStore fans writes out to several stores and serves reads from the
// first. Used to pair the materialized store with the Kafka sink.
type TeeStore struct {
	stores []Store
}

func Tee(stores ...Store) *TeeStore {
	return &TeeStore{stores: stores}
}

func (t *TeeStore) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range t.stores {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *TeeStore) ListBySubject(ctx context.Context, subject id.SubjectID) ([]Event, error) {
	if len(t.stores) == 0 {
		return nil, nil
	}
	return t.stores[0].ListBySubject(ctx, subject)
}
