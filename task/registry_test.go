package task

import (
	"testing"
	"time"

	"cineshorts/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := NewRegistry(time.Hour)

	created := reg.Create()
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusStarting, created.Status)
	assert.Equal(t, 0, created.Progress)

	got, ok := reg.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, created, got)

	_, ok = reg.Get("unknown-id")
	assert.False(t, ok)
}

func TestRegistry_GetReturnsSnapshots(t *testing.T) {
	reg := NewRegistry(time.Hour)
	created := reg.Create()

	snap, _ := reg.Get(created.ID)
	snap.Progress = 55

	// Mutating the snapshot never leaks back into the registry.
	got, _ := reg.Get(created.ID)
	assert.Equal(t, 0, got.Progress)
}

func TestRegistry_MutateUnknownID(t *testing.T) {
	reg := NewRegistry(time.Hour)
	assert.False(t, reg.Mutate("gone", func(t *Task) { t.Progress = 1 }))
}

func TestRegistry_ExpiredIDStaysGone(t *testing.T) {
	reg := NewRegistry(10 * time.Millisecond)
	created := reg.Create()

	reg.ScheduleExpiry(created.ID)
	assert.Eventually(t, func() bool {
		_, ok := reg.Get(created.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.False(t, reg.Mutate(created.ID, func(t *Task) { t.Progress = 1 }))
}

func TestRegistry_CreateCompleted(t *testing.T) {
	reg := NewRegistry(time.Hour)
	res := &scene.Result{Status: scene.StatusProcessed, SceneCount: 2}

	created := reg.CreateCompleted(res)
	assert.Equal(t, StatusCompleted, created.Status)
	assert.Equal(t, 100, created.Progress)

	got, ok := reg.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, res, got.Result)
}
