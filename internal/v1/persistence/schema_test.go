package persistence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkroom/relay/internal/v1/domain"
)

func TestRoomToDoc_ProjectsFileDataAndEditState(t *testing.T) {
	now := time.Now()
	r := domain.NewRoom("r1", "Cell", "Alice", now)
	r.Join("sA", "uA", "Alice", "AL", "#fff", now)

	msg := r.Post("sA", domain.MessageKindFile, "", nil, &domain.FileData{
		URL: "/uploads/x.png", Name: "x.png", Size: 1024, Mimetype: "image/png",
	}, false, now)
	r.Edit("sA", msg.ID, "renamed", now)

	doc := RoomToDoc(r)
	require.Len(t, doc.Messages, 1)
	md := doc.Messages[0]
	assert.True(t, md.Edited)
	require.NotNil(t, md.EditedAt)
	require.NotNil(t, md.FileData)
	assert.Equal(t, "/uploads/x.png", md.FileData.URL)
	assert.Equal(t, "Alice", doc.CreatedBy)
}

func TestRoomDoc_JSONFieldNamesMatchWireSchema(t *testing.T) {
	doc := RoomDoc{
		ID:        "r1",
		Name:      "Cell",
		CreatedBy: "Alice",
		CreatedAt: time.Now(),
		Settings:  SettingsDoc{MaxMembers: 50},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var asMap map[string]any
	require.NoError(t, json.Unmarshal(raw, &asMap))

	for _, key := range []string{"id", "name", "createdBy", "createdAt", "settings", "messages"} {
		_, ok := asMap[key]
		assert.Truef(t, ok, "expected field %q in serialized RoomDoc", key)
	}
}

func TestRoomFromDoc_RehydratesMessagesAndSettings(t *testing.T) {
	now := time.Now()
	doc := RoomDoc{
		ID:        "r1",
		Name:      "Cell",
		CreatedBy: "Alice",
		CreatedAt: now,
		Settings:  SettingsDoc{MaxMembers: 50, AllowFileSharing: true},
		Messages: []MessageDoc{
			{ID: "r1-m-1", RoomID: "r1", SenderID: "sA", Content: "hi", Type: domain.MessageKindText, Timestamp: now,
				Reactions: map[string][]string{"👍": {"sA"}}, ReadBy: []string{"sA"}},
		},
	}

	r := RoomFromDoc(doc, now)
	assert.Equal(t, "Alice", r.CreatorIdentity)
	assert.True(t, r.Settings.AllowFileSharing)

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"sA"}, msgs[0].Reactions["👍"])
	assert.True(t, msgs[0].ReadBy.Has("sA"))
}
