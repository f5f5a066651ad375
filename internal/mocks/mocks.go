package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"session-service/internal/models"
	"session-service/internal/presencestore"
	"session-service/internal/repositories"
	"session-service/internal/telemetry"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, nm repositories.NewMessage) (models.Message, error) {
	args := m.Called(ctx, nm)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, sessionID string, limit int, beforeID int64) ([]models.Message, error) {
	args := m.Called(ctx, sessionID, limit, beforeID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) AddReader(ctx context.Context, messageID int64, userID int64) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

type PresenceStoreMock struct {
	mock.Mock
}

func (m *PresenceStoreMock) MarkOnline(ctx context.Context, entry presencestore.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *PresenceStoreMock) MarkOffline(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *PresenceStoreMock) Online(ctx context.Context) ([]presencestore.Entry, error) {
	args := m.Called(ctx)
	var entries []presencestore.Entry
	if val := args.Get(0); val != nil {
		entries = val.([]presencestore.Entry)
	}
	return entries, args.Error(1)
}

// PublisherMock stands in for the audit publisher so emitter tests can
// capture the envelopes that would reach the bus.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ presencestore.Store = (*PresenceStoreMock)(nil)
var _ telemetry.Publisher = (*PublisherMock)(nil)
