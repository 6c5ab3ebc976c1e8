package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
)

// InMemoryEventStore implementa sharedDomain.EventStore sobre un mapa, con
// la misma semántica CAS que los stores reales. Solo para tests unitarios.
type InMemoryEventStore struct {
	mu      sync.Mutex
	streams map[uuid.UUID][]sharedDomain.EventRecord
}

// Verificación estática de la interfaz.
var _ sharedDomain.EventStore = (*InMemoryEventStore)(nil)

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		streams: make(map[uuid.UUID][]sharedDomain.EventRecord),
	}
}

func (s *InMemoryEventStore) Append(ctx context.Context, streamID uuid.UUID, expectedVersion uint64, events []sharedDomain.DomainEvent) (uint64, error) {
	// Igual que los stores reales: batch vacío = versión sin cambios.
	if len(events) == 0 {
		return expectedVersion, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, exists := s.streams[streamID]
	var current uint64
	if exists && len(records) > 0 {
		current = records[len(records)-1].Sequence
	}

	if expectedVersion == 0 && exists {
		return 0, fmt.Errorf("%w: stream %s already exists", sharedDomain.ErrConcurrencyConflict, streamID)
	}
	if expectedVersion != 0 && current != expectedVersion {
		return 0, fmt.Errorf("%w: stream %s is not at version %d", sharedDomain.ErrConcurrencyConflict, streamID, expectedVersion)
	}

	for idx, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return 0, err
		}
		records = append(records, sharedDomain.EventRecord{
			StreamID:   streamID,
			Sequence:   expectedVersion + uint64(idx) + 1,
			Kind:       evt.Kind(),
			Payload:    payload,
			OccurredAt: evt.OccurredAt(),
		})
	}
	s.streams[streamID] = records
	return expectedVersion + uint64(len(events)), nil
}

func (s *InMemoryEventStore) Load(ctx context.Context, streamID uuid.UUID) ([]sharedDomain.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.streams[streamID]
	if !ok {
		return nil, sharedDomain.ErrStreamNotFound
	}
	out := make([]sharedDomain.EventRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *InMemoryEventStore) LoadAsOf(ctx context.Context, streamID uuid.UUID, asOf time.Time) ([]sharedDomain.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []sharedDomain.EventRecord
	for _, rec := range s.streams[streamID] {
		if !rec.OccurredAt.After(asOf) {
			out = append(out, rec)
		}
	}
	return out, nil
}
