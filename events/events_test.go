package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInOrder(t *testing.T) {
	var bus Bus
	var order []string
	bus.Subscribe(ObserverFunc(func(e Event) { order = append(order, "a:"+string(e.Kind)) }))
	bus.Subscribe(nil)
	rec := &Recorder{}
	bus.Subscribe(rec)
	bus.Subscribe(ObserverFunc(func(e Event) { order = append(order, "b:"+string(e.Kind)) }))

	assert.Equal(t, 3, bus.Len())

	bus.OnEvent(Event{Kind: LogAppended})
	bus.OnEvent(Event{Kind: SessionReset})

	assert.Equal(t, []string{"a:log_appended", "b:log_appended", "a:session_reset", "b:session_reset"}, order)
	assert.Len(t, rec.Events(), 2)
	assert.Len(t, rec.OfKind(SessionReset), 1)
}

func TestEvent_JSON(t *testing.T) {
	turn := int64(7)
	e := Event{
		Kind:    CollectionChanged,
		Session: "s-1",
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Turn:    &turn,
		Collection: &Collection{
			Category: "tiles",
			Batch:    "delta",
			Upserted: 2,
			Removed:  1,
			Size:     10,
		},
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"kind": "collection_changed",
		"session": "s-1",
		"time": "2026-01-02T03:04:05Z",
		"turn": 7,
		"collection": {"category": "tiles", "batch": "delta", "upserted": 2, "removed": 1, "size": 10}
	}`, string(data))
}
