package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembersChangedKeepsEmptySnapshotExplicit(t *testing.T) {
	payload, err := json.Marshal(ServerEvent{
		Type:      ServerMembersChanged,
		SessionID: "trip-1",
		Members:   []Member{},
	})
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"members":[]`, "an emptied room must not lose the member list key")
}

func TestMembersChangedCarriesSnapshot(t *testing.T) {
	payload, err := json.Marshal(ServerEvent{
		Type:      ServerMembersChanged,
		SessionID: "trip-1",
		Members:   []Member{{UserID: 1, DisplayName: "Ana", Role: "paramedic"}},
	})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Contains(t, decoded, "members")

	var members []Member
	require.NoError(t, json.Unmarshal(decoded["members"], &members))
	require.Len(t, members, 1)
	assert.Equal(t, int64(1), members[0].UserID)
}
