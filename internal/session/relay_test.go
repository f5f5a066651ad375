package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"session-service/internal/mocks"
	"session-service/internal/models"
	"session-service/internal/repositories"
)

func newTestRelay(t *testing.T) (*Registry, *Hub, *mocks.MessageRepositoryMock, *Relay) {
	t.Helper()
	registry, hub := newTestHub()
	repo := new(mocks.MessageRepositoryMock)
	return registry, hub, repo, NewRelay(registry, hub, repo, time.Second)
}

func joinedPair(t *testing.T, registry *Registry, hub *Hub) (*fakeSink, *fakeSink) {
	t.Helper()
	sinkA, sinkB := &fakeSink{}, &fakeSink{}
	registry.Register("ca", 1, "Ana", "paramedic", sinkA)
	registry.Register("cb", 2, "Bo", "dispatcher", sinkB)
	require.NoError(t, hub.Join("trip-1", "ca"))
	require.NoError(t, hub.Join("trip-1", "cb"))
	sinkA.reset()
	sinkB.reset()
	return sinkA, sinkB
}

func TestSendPersistsThenBroadcastsToAll(t *testing.T) {
	registry, hub, repo, relay := newTestRelay(t)
	sinkA, sinkB := joinedPair(t, registry, hub)

	stored := models.Message{ID: 11, SessionID: "trip-1", SenderID: 1, SenderName: "Ana", SenderRole: "paramedic", Body: "hello", Type: models.MessageTypeText, ReadBy: []int64{}}
	repo.On("CreateMessage", mock.Anything, repositories.NewMessage{
		SessionID: "trip-1", SenderID: 1, SenderName: "Ana", SenderRole: "paramedic",
		Body: "hello", Type: models.MessageTypeText,
	}).Return(stored, nil).Once()

	msg, err := relay.Send(context.Background(), "trip-1", "ca", "hello", "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), msg.ID)

	for _, sink := range []*fakeSink{sinkA, sinkB} {
		events := sink.byType(models.ServerNewMessage)
		require.Len(t, events, 1, "sender's own connections hear the message too")
		assert.Equal(t, int64(11), events[0].Message.ID)
		assert.Equal(t, "hello", events[0].Message.Body)
		assert.Empty(t, events[0].Message.ReadBy)
	}
	repo.AssertExpectations(t)
}

func TestSendPreservesCausalOrder(t *testing.T) {
	registry, hub, repo, relay := newTestRelay(t)
	sinkA, sinkB := joinedPair(t, registry, hub)

	first := models.Message{ID: 1, SessionID: "trip-1", SenderID: 1, Body: "first", Type: models.MessageTypeText}
	second := models.Message{ID: 2, SessionID: "trip-1", SenderID: 2, Body: "second", Type: models.MessageTypeText}
	repo.On("CreateMessage", mock.Anything, mock.Anything).Return(first, nil).Once()
	repo.On("CreateMessage", mock.Anything, mock.Anything).Return(second, nil).Once()

	_, err := relay.Send(context.Background(), "trip-1", "ca", "first", "", nil)
	require.NoError(t, err)
	_, err = relay.Send(context.Background(), "trip-1", "cb", "second", "", nil)
	require.NoError(t, err)

	for _, sink := range []*fakeSink{sinkA, sinkB} {
		events := sink.byType(models.ServerNewMessage)
		require.Len(t, events, 2)
		assert.Equal(t, int64(1), events[0].Message.ID)
		assert.Equal(t, int64(2), events[1].Message.ID)
	}
}

func TestSendRejectsEmptyTextBody(t *testing.T) {
	registry, hub, repo, relay := newTestRelay(t)
	sinkA, sinkB := joinedPair(t, registry, hub)

	_, err := relay.Send(context.Background(), "trip-1", "ca", "   ", models.MessageTypeText, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, KindValidation, Kind(err))

	assert.Empty(t, sinkA.all())
	assert.Empty(t, sinkB.all())
	repo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestSendUnregisteredConnection(t *testing.T) {
	_, _, _, relay := newTestRelay(t)

	_, err := relay.Send(context.Background(), "trip-1", "ghost", "hello", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendPersistenceFailureBroadcastsNothing(t *testing.T) {
	registry, hub, repo, relay := newTestRelay(t)
	sinkA, sinkB := joinedPair(t, registry, hub)

	repo.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{}, assert.AnError).Once()

	_, err := relay.Send(context.Background(), "trip-1", "ca", "hello", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, KindPersistence, Kind(err))

	assert.Empty(t, sinkA.all(), "no partial fan-out of an unpersisted message")
	assert.Empty(t, sinkB.all())
}

func TestSendTimeoutMapsToTimeoutError(t *testing.T) {
	registry, hub, repo, relay := newTestRelay(t)
	joinedPair(t, registry, hub)

	repo.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{}, context.DeadlineExceeded).Once()

	_, err := relay.Send(context.Background(), "trip-1", "ca", "hello", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, KindTimeout, Kind(err))
}

func TestHistoryClampsLimit(t *testing.T) {
	_, _, repo, relay := newTestRelay(t)

	repo.On("ListMessages", mock.Anything, "trip-1", defaultHistoryLimit, int64(0)).Return([]models.Message{}, nil).Once()
	_, err := relay.History(context.Background(), "trip-1", 0, 0)
	require.NoError(t, err)

	repo.On("ListMessages", mock.Anything, "trip-1", maxHistoryLimit, int64(9)).Return([]models.Message{}, nil).Once()
	_, err = relay.History(context.Background(), "trip-1", 10_000, 9)
	require.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestMarkReadBroadcastsIncrementalUpdate(t *testing.T) {
	registry, hub, repo, relay := newTestRelay(t)
	sinkA, sinkB := joinedPair(t, registry, hub)

	stored := models.Message{ID: 11, SessionID: "trip-1", SenderID: 1}
	repo.On("GetMessage", mock.Anything, int64(11)).Return(stored, nil).Twice()
	repo.On("AddReader", mock.Anything, int64(11), int64(2)).Return(true, nil).Once()
	repo.On("AddReader", mock.Anything, int64(11), int64(2)).Return(false, nil).Once()

	relay.MarkRead(context.Background(), 11, "cb")
	relay.MarkRead(context.Background(), 11, "cb") // idempotent

	for _, sink := range []*fakeSink{sinkA, sinkB} {
		events := sink.byType(models.ServerMessageRead)
		require.Len(t, events, 1, "duplicate mark_read must not re-broadcast")
		assert.Equal(t, int64(11), events[0].MessageID)
		assert.Equal(t, int64(2), events[0].UserID)
	}
	repo.AssertExpectations(t)
}

func TestMarkReadUnknownMessageIsSilent(t *testing.T) {
	registry, hub, repo, relay := newTestRelay(t)
	sinkA, sinkB := joinedPair(t, registry, hub)

	repo.On("GetMessage", mock.Anything, int64(404)).Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	relay.MarkRead(context.Background(), 404, "cb")

	assert.Empty(t, sinkA.all())
	assert.Empty(t, sinkB.all())
}

func TestMarkReadFromNonParticipantIsSilent(t *testing.T) {
	registry, hub, repo, relay := newTestRelay(t)
	sinkA, _ := joinedPair(t, registry, hub)
	registry.Register("cc", 3, "Cy", "admin", &fakeSink{})

	repo.On("GetMessage", mock.Anything, int64(11)).Return(models.Message{ID: 11, SessionID: "trip-1"}, nil).Once()

	relay.MarkRead(context.Background(), 11, "cc")

	assert.Empty(t, sinkA.byType(models.ServerMessageRead))
	repo.AssertNotCalled(t, "AddReader", mock.Anything, mock.Anything, mock.Anything)
}
