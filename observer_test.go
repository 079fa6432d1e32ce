package loam

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverSetPublishDelivery(t *testing.T) {
	var set observerSet
	var mu sync.Mutex
	var received []WriteEvent

	unsubscribe := set.subscribe(func(ev WriteEvent) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	})
	defer unsubscribe()

	ev := WriteEvent{Kind: DocumentWrite, IsLocal: true, IsLatest: true, Document: Document{Path: "/x"}}
	set.publish(ev)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, ev, received[0])
}

func TestObserverSetUnsubscribe(t *testing.T) {
	var set observerSet
	calls := 0
	unsubscribe := set.subscribe(func(WriteEvent) { calls++ })
	unsubscribe()

	set.publish(WriteEvent{})
	assert.Equal(t, 0, calls)
}

func TestObserverSetIsolatesPanics(t *testing.T) {
	var set observerSet
	secondCalled := false

	set.subscribe(func(WriteEvent) { panic("boom") })
	set.subscribe(func(WriteEvent) { secondCalled = true })

	assert.NotPanics(t, func() {
		set.publish(WriteEvent{})
	})
	assert.True(t, secondCalled)
}
