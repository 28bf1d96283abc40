package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int64) *int64 { return &n }

func TestRoomJoin_CreatesMemberAndSnapshot(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())

	displaced, snap := r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())

	assert.Nil(t, displaced)
	assert.Equal(t, "Cell", snap.Name)
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "Alice", snap.Members[0].DisplayName)
}

func TestRoomJoin_DisplacesStaleMemberWithSamePersistentUserID(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("old-session", "uA", "Alice", "AL", "#fff", time.Now())

	displaced, _ := r.Join("new-session", "uA", "Alice", "AL", "#fff", time.Now())

	require.NotNil(t, displaced)
	assert.Equal(t, "old-session", displaced.SessionID)
	assert.Equal(t, 1, r.MemberCount())
	assert.True(t, r.IsMember("new-session"))
	assert.False(t, r.IsMember("old-session"))
}

func TestRoomPost_UnknownSenderIsDropped(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	msg := r.Post("ghost", MessageKindText, "hi", nil, nil, false, time.Now())
	assert.Nil(t, msg)
}

func TestRoomPost_SetsDisappearAtOnlyWhenSettingEnabled(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())

	noTTL := r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())
	require.NotNil(t, noTTL)
	assert.Nil(t, noTTL.DisappearAt)

	r.UpdateSettings(SettingsPatch{DisappearingMessages: ms(5_000)})
	withTTL := r.Post("sA", MessageKindText, "hi again", nil, nil, false, time.Now())
	require.NotNil(t, withTTL)
	require.NotNil(t, withTTL.DisappearAt)
	assert.WithinDuration(t, withTTL.Timestamp.Add(5*time.Second), *withTTL.DisappearAt, time.Millisecond)
}

func TestRoomPost_SettingChangeDoesNotRetroApply(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())

	r.UpdateSettings(SettingsPatch{DisappearingMessages: ms(5_000)})
	first := r.Post("sA", MessageKindText, "one", nil, nil, false, time.Now())
	require.NotNil(t, first.DisappearAt)

	r.UpdateSettings(SettingsPatch{DisappearingMessages: ms(0)})
	second := r.Post("sA", MessageKindText, "two", nil, nil, false, time.Now())
	assert.Nil(t, second.DisappearAt)
	// the first message's disappear_at is untouched by the later setting change.
	assert.NotNil(t, first.DisappearAt)
}

func TestRoomPost_DropsUnknownReplyTo(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())

	ghostID := "does-not-exist"
	msg := r.Post("sA", MessageKindText, "hi", &ghostID, nil, false, time.Now())
	require.NotNil(t, msg)
	assert.Nil(t, msg.ReplyTo)
}

func TestRoomPost_KeepsValidReplyTo(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())

	original := r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())
	reply := r.Post("sA", MessageKindText, "reply", &original.ID, nil, false, time.Now())

	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, original.ID, *reply.ReplyTo)
}

func TestRoomReact_TogglesAndRemovesEmptyBucket(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	msg := r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())

	reactions, found := r.React("sA", msg.ID, "👍")
	require.True(t, found)
	assert.Equal(t, []string{"sA"}, reactions["👍"])

	// Toggling again removes the session and deletes the now-empty bucket.
	reactions, found = r.React("sA", msg.ID, "👍")
	require.True(t, found)
	_, present := reactions["👍"]
	assert.False(t, present)
	assert.Empty(t, reactions)
}

func TestRoomReact_UnknownMessageIsNotFound(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	_, found := r.React("sA", "nope", "👍")
	assert.False(t, found)
}

func TestRoomEdit_OnlySenderCanEdit(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	r.Join("sB", "uB", "Bob", "BO", "#000", time.Now())
	msg := r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())

	ok, _ := r.Edit("sB", msg.ID, "hijacked", time.Now())
	assert.False(t, ok)

	ok, _ = r.Edit("sA", msg.ID, "edited", time.Now())
	assert.True(t, ok)
	assert.Equal(t, "edited", msg.Content)
	assert.True(t, msg.Edited)
	require.NotNil(t, msg.EditedAt)
}

func TestRoomEdit_IdenticalContentStillMarksEdited(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	msg := r.Post("sA", MessageKindText, "same", nil, nil, false, time.Now())

	ok, _ := r.Edit("sA", msg.ID, "same", time.Now())
	assert.True(t, ok)
	assert.True(t, msg.Edited)
}

func TestRoomEdit_DeletedMessageCannotBeEdited(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	msg := r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())
	r.Delete("sA", msg.ID)

	ok, _ := r.Edit("sA", msg.ID, "edited", time.Now())
	assert.False(t, ok)
}

func TestRoomDelete_IsIdempotentAndRedacts(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	msg := r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())

	assert.True(t, r.Delete("sA", msg.ID))
	assert.Equal(t, RedactedDeleted, msg.Content)
	assert.True(t, msg.Deleted)

	// second delete is a no-op; the tombstone state is unchanged.
	assert.False(t, r.Delete("sA", msg.ID))
	assert.Equal(t, RedactedDeleted, msg.Content)
	assert.True(t, msg.Deleted)
}

func TestRoomDelete_OnlySenderCanDelete(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	r.Join("sB", "uB", "Bob", "BO", "#000", time.Now())
	msg := r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())

	assert.False(t, r.Delete("sB", msg.ID))
	assert.False(t, msg.Deleted)
}

func TestRoomMarkRead_OnlyReportsNewlyRead(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	msg := r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())

	newlyRead := r.MarkRead("sB", []string{msg.ID})
	assert.Equal(t, []string{msg.ID}, newlyRead)

	// re-applying the same read is a no-op.
	newlyRead = r.MarkRead("sB", []string{msg.ID})
	assert.Empty(t, newlyRead)
}

func TestRoomUpdateSettings_IgnoresUnrecognizedDuration(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	settings := r.UpdateSettings(SettingsPatch{DisappearingMessages: ms(1_234)})
	assert.Nil(t, settings.DisappearingMessages)
}

func TestRoomUpdateSettings_AcceptsRecognizedDuration(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	settings := r.UpdateSettings(SettingsPatch{DisappearingMessages: ms(60_000)})
	require.NotNil(t, settings.DisappearingMessages)
	assert.Equal(t, int64(60_000), *settings.DisappearingMessages)
}

func TestRoomUpdateSettings_ZeroDisables(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.UpdateSettings(SettingsPatch{DisappearingMessages: ms(60_000)})
	settings := r.UpdateSettings(SettingsPatch{DisappearingMessages: ms(0)})
	assert.Nil(t, settings.DisappearingMessages)
}

func TestRoomEvict_OnlyCreatorIdentityMayEvict(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	r.Join("sB", "uB", "Bob", "BO", "#000", time.Now())

	ok, _ := r.Evict("Bob", "sB")
	assert.False(t, ok)
	assert.True(t, r.IsMember("sB"))

	ok, _ = r.Evict("Alice", "sB")
	assert.True(t, ok)
	assert.False(t, r.IsMember("sB"))
}

func TestRoomEvict_UnknownTargetFails(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())

	ok, _ := r.Evict("Alice", "ghost")
	assert.False(t, ok)
}

func TestRoomDisconnect_RemovesMemberOnce(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())

	assert.True(t, r.Disconnect("sA"))
	assert.False(t, r.Disconnect("sA"))
}

func TestRoomRedact_SetsDisappearedTombstone(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	msg := r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())

	assert.True(t, r.Redact(msg.ID))
	assert.Equal(t, RedactedDisappeared, msg.Content)
	assert.True(t, msg.Deleted)

	// Already-deleted messages are not redacted twice.
	assert.False(t, r.Redact(msg.ID))
}

func TestRoomSnapshot_RecentMessagesBounded(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	for i := 0; i < 5; i++ {
		r.Post("sA", MessageKindText, "hi", nil, nil, false, time.Now())
	}

	_, snap := r.Join("sB", "uB", "Bob", "BO", "#000", time.Now())
	recent := snap.RecentMessages(3)
	assert.Len(t, recent, 3)

	all := snap.RecentMessages(100)
	assert.Len(t, all, 5)
}

func TestRoomRestoreMessages_RebuildsIDSequence(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	existing := r.Post("sA", MessageKindText, "one", nil, nil, false, time.Now())

	r.RestoreMessages([]*Message{existing})
	next := r.Post("sA", MessageKindText, "two", nil, nil, false, time.Now())

	assert.NotEqual(t, existing.ID, next.ID)
}

func TestRoomPost_DropsSilentlyAfterEviction(t *testing.T) {
	r := NewRoom("r1", "Cell", "Alice", time.Now())
	r.Join("sA", "uA", "Alice", "AL", "#fff", time.Now())
	r.Join("sB", "uB", "Bob", "BO", "#000", time.Now())
	r.Evict("Alice", "sB")

	msg := r.Post("sB", MessageKindText, "too late", nil, nil, false, time.Now())
	assert.Nil(t, msg)
}
