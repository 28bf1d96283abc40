package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSender struct {
	sent [][]byte
}

func (f *fakeSender) Send(data []byte) {
	f.sent = append(f.sent, data)
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	h := &fakeSender{}
	r.Register("s1", h)

	e, ok := r.Get("s1")
	assert.True(t, ok)
	assert.Equal(t, "", e.RoomID)
	assert.Equal(t, 1, r.Count())
}

func TestSetRoomAndClearRoom(t *testing.T) {
	r := New()
	r.Register("s1", &fakeSender{})

	r.SetRoom("s1", "room-1", "Alice")
	e, _ := r.Get("s1")
	assert.Equal(t, "room-1", e.RoomID)
	assert.Equal(t, "Alice", e.Identity)

	r.ClearRoom("s1")
	e, _ = r.Get("s1")
	assert.Equal(t, "", e.RoomID)
	assert.Equal(t, "", e.Identity)
}

func TestRemove(t *testing.T) {
	r := New()
	r.Register("s1", &fakeSender{})

	e, ok := r.Remove("s1")
	assert.True(t, ok)
	assert.NotNil(t, e)

	_, ok = r.Get("s1")
	assert.False(t, ok)

	_, ok = r.Remove("s1")
	assert.False(t, ok)
}

func TestSend_UnknownSessionIsSilentDrop(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() {
		r.Send("ghost", []byte("hi"))
	})
}

func TestSend_Known(t *testing.T) {
	r := New()
	h := &fakeSender{}
	r.Register("s1", h)

	r.Send("s1", []byte("hello"))
	assert.Equal(t, [][]byte{[]byte("hello")}, h.sent)
}
