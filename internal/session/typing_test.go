package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-service/internal/models"
)

func typingFlags(events []models.ServerEvent) []bool {
	flags := make([]bool, 0, len(events))
	for _, ev := range events {
		flags = append(flags, *ev.IsTyping)
	}
	return flags
}

func TestStartTypingBroadcastsOnceToOthers(t *testing.T) {
	registry, hub := newTestHub()
	sinkA, sinkB := &fakeSink{}, &fakeSink{}
	registry.Register("ca", 1, "Ana", "paramedic", sinkA)
	registry.Register("cb", 2, "Bo", "dispatcher", sinkB)
	require.NoError(t, hub.Join("trip-1", "ca"))
	require.NoError(t, hub.Join("trip-1", "cb"))

	require.NoError(t, hub.StartTyping("trip-1", "ca"))
	require.NoError(t, hub.StartTyping("trip-1", "ca")) // refresh, no re-broadcast

	events := sinkB.byType(models.ServerUserTyping)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].UserID)
	assert.Equal(t, "Ana", events[0].DisplayName)
	assert.Equal(t, []bool{true}, typingFlags(events))

	assert.Empty(t, sinkA.byType(models.ServerUserTyping), "typist must not hear their own typing")
	assert.Equal(t, []string{"Ana"}, hub.TypingUsersIn("trip-1"))
}

func TestStopTypingBroadcastsStop(t *testing.T) {
	registry, hub := newTestHub()
	sinkB := &fakeSink{}
	registry.Register("ca", 1, "Ana", "paramedic", &fakeSink{})
	registry.Register("cb", 2, "Bo", "dispatcher", sinkB)
	require.NoError(t, hub.Join("trip-1", "ca"))
	require.NoError(t, hub.Join("trip-1", "cb"))

	require.NoError(t, hub.StartTyping("trip-1", "ca"))
	require.NoError(t, hub.StopTyping("trip-1", "ca"))

	events := sinkB.byType(models.ServerUserTyping)
	require.Len(t, events, 2)
	assert.Equal(t, []bool{true, false}, typingFlags(events))
	assert.Empty(t, hub.TypingUsersIn("trip-1"))

	// stop without a state is a no-op
	require.NoError(t, hub.StopTyping("trip-1", "ca"))
	assert.Len(t, sinkB.byType(models.ServerUserTyping), 2)
}

func TestTypingExpiresWithoutExplicitStop(t *testing.T) {
	registry, hub := newTestHub()
	sinkB := &fakeSink{}
	registry.Register("ca", 1, "Ana", "paramedic", &fakeSink{})
	registry.Register("cb", 2, "Bo", "dispatcher", sinkB)
	require.NoError(t, hub.Join("trip-1", "ca"))
	require.NoError(t, hub.Join("trip-1", "cb"))

	base := time.Now()
	hub.now = func() time.Time { return base }
	require.NoError(t, hub.StartTyping("trip-1", "ca"))

	// the view excludes expired state even before the sweep runs
	hub.now = func() time.Time { return base.Add(hub.typingTTL + time.Millisecond) }
	assert.Empty(t, hub.TypingUsersIn("trip-1"))

	hub.sweepTyping(base.Add(hub.typingTTL + time.Millisecond))

	events := sinkB.byType(models.ServerUserTyping)
	require.Len(t, events, 2)
	assert.Equal(t, []bool{true, false}, typingFlags(events))
	assert.Empty(t, hub.TypingUsersIn("trip-1"))
}

func TestTypingRefreshPostponesExpiry(t *testing.T) {
	registry, hub := newTestHub()
	sinkB := &fakeSink{}
	registry.Register("ca", 1, "Ana", "paramedic", &fakeSink{})
	registry.Register("cb", 2, "Bo", "dispatcher", sinkB)
	require.NoError(t, hub.Join("trip-1", "ca"))
	require.NoError(t, hub.Join("trip-1", "cb"))

	base := time.Now()
	hub.now = func() time.Time { return base }
	require.NoError(t, hub.StartTyping("trip-1", "ca"))

	// refresh half a window later pushes the expiry out
	hub.now = func() time.Time { return base.Add(hub.typingTTL / 2) }
	require.NoError(t, hub.StartTyping("trip-1", "ca"))

	hub.sweepTyping(base.Add(hub.typingTTL + time.Millisecond))
	assert.Len(t, sinkB.byType(models.ServerUserTyping), 1, "refreshed state must not expire")

	hub.sweepTyping(base.Add(hub.typingTTL/2 + hub.typingTTL + time.Millisecond))
	events := sinkB.byType(models.ServerUserTyping)
	require.Len(t, events, 2)
	assert.Equal(t, []bool{true, false}, typingFlags(events))
}

func TestTypingPerUserAcrossConnections(t *testing.T) {
	registry, hub := newTestHub()
	sinkB := &fakeSink{}
	registry.Register("phone", 1, "Ana", "paramedic", &fakeSink{})
	registry.Register("laptop", 1, "Ana", "paramedic", &fakeSink{})
	registry.Register("cb", 2, "Bo", "dispatcher", sinkB)
	require.NoError(t, hub.Join("trip-1", "phone"))
	require.NoError(t, hub.Join("trip-1", "laptop"))
	require.NoError(t, hub.Join("trip-1", "cb"))

	require.NoError(t, hub.StartTyping("trip-1", "phone"))
	require.NoError(t, hub.StartTyping("trip-1", "laptop"))
	assert.Len(t, sinkB.byType(models.ServerUserTyping), 1, "one state per (session, user)")

	// any of the user's connections may clear the state
	require.NoError(t, hub.StopTyping("trip-1", "laptop"))
	events := sinkB.byType(models.ServerUserTyping)
	require.Len(t, events, 2)
	assert.Equal(t, []bool{true, false}, typingFlags(events))
}

func TestTypingClearedWhenLastConnectionLeaves(t *testing.T) {
	registry, hub := newTestHub()
	sinkB := &fakeSink{}
	registry.Register("ca", 1, "Ana", "paramedic", &fakeSink{})
	registry.Register("cb", 2, "Bo", "dispatcher", sinkB)
	require.NoError(t, hub.Join("trip-1", "ca"))
	require.NoError(t, hub.Join("trip-1", "cb"))
	require.NoError(t, hub.StartTyping("trip-1", "ca"))

	require.NoError(t, hub.Leave("trip-1", "ca"))

	events := sinkB.byType(models.ServerUserTyping)
	require.Len(t, events, 2)
	assert.Equal(t, []bool{true, false}, typingFlags(events))
	assert.Empty(t, hub.TypingUsersIn("trip-1"))
}

func TestTypingFromNonMemberIgnored(t *testing.T) {
	registry, hub := newTestHub()
	sinkB := &fakeSink{}
	registry.Register("ca", 1, "Ana", "paramedic", &fakeSink{})
	registry.Register("cb", 2, "Bo", "dispatcher", sinkB)
	require.NoError(t, hub.Join("trip-1", "cb"))

	require.NoError(t, hub.StartTyping("trip-1", "ca"))
	assert.Empty(t, sinkB.byType(models.ServerUserTyping))
}
