package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
	sharedEvents "github.com/davicafu/eventlab/internal/shared/events"
	sharedBus "github.com/davicafu/eventlab/internal/shared/infra/platform/bus"

	"github.com/davicafu/eventlab/tests/mocks"
)

func pendingRecord() sharedDomain.OutboxRecord {
	return sharedDomain.OutboxRecord{
		ID:         uuid.New(),
		StreamID:   uuid.New(),
		Sequence:   1,
		Kind:       "item.initialized",
		Payload:    json.RawMessage(`{"item_id":"x"}`),
		Status:     sharedDomain.OutboxStatusPending,
		CreatedAt:  time.Now().UTC(),
		OccurredAt: time.Now().UTC(),
	}
}

func TestOutboxWorker_ProcessBatch_Success(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	rec := pendingRecord()

	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxRecord{rec}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("MarkOutboxSent", mock.Anything, rec.ID).Return(nil).Once()

	worker := NewOutboxWorker(repo, publisher, 0, 10, zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestOutboxWorker_ProcessBatch_PublisherFails(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	rec := pendingRecord()

	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxRecord{rec}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("kafka is down")).Once()

	worker := NewOutboxWorker(repo, publisher, 0, 10, zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT: sin ack del broker el record sigue PENDING, nunca se marca
	repo.AssertCalled(t, "FetchPendingOutbox", mock.Anything, 10)
	publisher.AssertCalled(t, "Publish", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkOutboxSent", mock.Anything, mock.Anything)
}

func TestOutboxWorker_ProcessBatch_MarkFails(t *testing.T) {
	// ARRANGE: publicado pero el marcado falla -> se republicará (at-least-once)
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	rec := pendingRecord()

	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxRecord{rec}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("MarkOutboxSent", mock.Anything, rec.ID).Return(errors.New("db is down")).Once()

	worker := NewOutboxWorker(repo, publisher, 0, 10, zap.NewNop())

	// ACT: no debe entrar en pánico ni abortar el batch
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestOutboxWorker_ProcessBatch_PreservesEnvelope(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	rec := pendingRecord()
	rec.Sequence = 7

	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxRecord{rec}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(event interface{}) bool {
		envelope, ok := event.(sharedEvents.IntegrationEvent)
		if !ok {
			return false
		}
		// el sobre lleva el occurred_at y la secuencia originales del record
		return envelope.StreamID == rec.StreamID &&
			envelope.Sequence == rec.Sequence &&
			envelope.Type == rec.Kind &&
			envelope.OccurredAt.Equal(rec.OccurredAt)
	})).Return(nil).Once()
	repo.On("MarkOutboxSent", mock.Anything, rec.ID).Return(nil).Once()

	worker := NewOutboxWorker(repo, publisher, 0, 10, zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

// Verificación estática de que los mocks cumplen las interfaces.
var _ sharedDomain.OutboxRepository = (*mocks.MockOutboxRepository)(nil)
var _ sharedBus.EventBus = (*mocks.MockPublisher)(nil)
