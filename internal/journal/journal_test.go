package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vekjja/espwifi-broker/internal/model"
)

type memorySink struct {
	mu     sync.Mutex
	events []model.Event
	err    error
	block  chan struct{}
}

func (m *memorySink) Record(_ context.Context, ev model.Event) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *memorySink) Events() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Event(nil), m.events...)
}

func TestMulti(t *testing.T) {
	a := &memorySink{}
	b := &memorySink{err: errors.New("boom")}

	err := Multi{a, b, Nop{}}.Record(context.Background(), model.Event{Type: model.EventDeviceConnected})
	assert.EqualError(t, err, "boom")
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestAsync_DeliversInOrder(t *testing.T) {
	sink := &memorySink{}
	a := NewAsync(sink, 8)

	for _, typ := range []model.EventType{model.EventDeviceConnected, model.EventUIAttached, model.EventUIDetached} {
		require.NoError(t, a.Record(context.Background(), model.Event{Type: typ}))
	}
	a.Close()

	events := sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, model.EventDeviceConnected, events[0].Type)
	assert.Equal(t, model.EventUIDetached, events[2].Type)
	assert.False(t, events[0].At.IsZero())
}

func TestAsync_DropsWhenFull(t *testing.T) {
	sink := &memorySink{block: make(chan struct{})}
	a := NewAsync(sink, 1)

	for i := 0; i < 5; i++ {
		_ = a.Record(context.Background(), model.Event{Type: model.EventUIAttached})
	}
	assert.Eventually(t, func() bool { return a.Dropped() >= 3 }, time.Second, 10*time.Millisecond)

	close(sink.block)
	a.Close()
	assert.NoError(t, a.Record(context.Background(), model.Event{Type: model.EventUIAttached}), "record after close is a no-op")
}

type fakePublisher struct {
	subject string
	data    []byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return nil
}

func TestNATS_Record(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATS(pub, "espwifi.broker.")

	ev := model.Event{Type: model.EventDeviceReplaced, DeviceID: "dev1", Tunnel: "ws_control", At: time.Unix(0, 0).UTC()}
	require.NoError(t, sink.Record(context.Background(), ev))

	assert.Equal(t, "espwifi.broker.device_replaced", pub.subject)
	var got model.Event
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, "dev1", got.DeviceID)
	assert.Equal(t, model.EventDeviceReplaced, got.Type)
	assert.NoError(t, sink.Close())
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "ui_attached", Subject("", model.EventUIAttached))
	assert.Equal(t, "a.b.ui_attached", Subject("a.b", model.EventUIAttached))
}
