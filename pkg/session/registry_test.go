package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeloop/pkg/llm"
)

func TestEnsureMintsAndReuses(t *testing.T) {
	r := NewRegistry(Options{})

	id := r.Ensure("")
	require.NotEmpty(t, id)

	same := r.Ensure(id)
	assert.Equal(t, id, same)
	assert.Equal(t, 1, r.Len())

	other := r.Ensure("")
	assert.NotEqual(t, id, other)
	assert.Equal(t, 2, r.Len())
}

func TestAppendAndHistoryCopy(t *testing.T) {
	r := NewRegistry(Options{})
	id := r.Ensure("")

	r.Append(id, Turn{Role: llm.RoleUser, Content: "implement App.jsx"})
	r.Append(id, Turn{Role: llm.RoleAssistant, Content: "done"})

	history := r.History(id)
	require.Len(t, history, 2)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "done", history[1].Content)

	// Mutating the returned slice must not affect the registry.
	history[0].Content = "tampered"
	assert.Equal(t, "implement App.jsx", r.History(id)[0].Content)
}

func TestHistoryMissingSession(t *testing.T) {
	r := NewRegistry(Options{})
	assert.Empty(t, r.History("no-such-session"))
}

func TestConcurrentDistinctKeys(t *testing.T) {
	r := NewRegistry(Options{})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := r.Ensure(fmt.Sprintf("session-%d", n))
			r.Append(id, Turn{Role: llm.RoleUser, Content: "req"}, Turn{Role: llm.RoleAssistant, Content: "resp"})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, r.Len())
	for i := 0; i < 32; i++ {
		assert.Len(t, r.History(fmt.Sprintf("session-%d", i)), 2)
	}
}

func TestCapacityEvictsOldestIdle(t *testing.T) {
	r := NewRegistry(Options{MaxSessions: 2})
	clock := time.Now()
	r.now = func() time.Time { return clock }

	r.Ensure("a")
	clock = clock.Add(time.Minute)
	r.Ensure("b")
	clock = clock.Add(time.Minute)
	r.Ensure("c")

	assert.Equal(t, 2, r.Len())
	assert.Empty(t, r.History("a"))
	r.Append("b", Turn{Role: llm.RoleUser, Content: "still here"})
	assert.Len(t, r.History("b"), 1)
}

func TestTTLEvictsIdleSessions(t *testing.T) {
	r := NewRegistry(Options{TTL: time.Hour})
	clock := time.Now()
	r.now = func() time.Time { return clock }

	r.Ensure("stale")
	r.Append("stale", Turn{Role: llm.RoleUser, Content: "old"})

	clock = clock.Add(2 * time.Hour)
	r.Ensure("fresh")

	assert.Empty(t, r.History("stale"))
	assert.Equal(t, 1, r.Len())
}

func TestKeyMapStablePerFilename(t *testing.T) {
	km := NewKeyMap()

	first := km.Ensure("App.jsx")
	second := km.Ensure("App.jsx")
	assert.Equal(t, first, second)

	other := km.Ensure("Header.jsx")
	assert.NotEqual(t, first, other)

	snap := km.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, first, snap["App.jsx"])
}

func TestKeyMapRestore(t *testing.T) {
	km := NewKeyMap()
	km.Restore(map[string]string{"App.jsx": "seeded", "Empty.jsx": ""})

	assert.Equal(t, "seeded", km.Ensure("App.jsx"))
	assert.NotEmpty(t, km.Ensure("Empty.jsx"))
	assert.NotEqual(t, "", km.Snapshot()["Empty.jsx"])
}
