package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cineshorts/config"
	"cineshorts/ffmpeg"
	"cineshorts/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoFile = errors.New("file not found")

type mockAnalyzer struct {
	mu          sync.Mutex
	detectCalls int
	probeFunc   func(ctx context.Context, path string) (float64, float64, error)
	events      []ffmpeg.Event
	detectErr   error
}

func (m *mockAnalyzer) Probe(ctx context.Context, path string) (float64, float64, error) {
	if m.probeFunc != nil {
		return m.probeFunc(ctx, path)
	}
	return 10.0, 25.0, nil
}

func (m *mockAnalyzer) Detect(ctx context.Context, path string, threshold float64) (<-chan ffmpeg.Event, error) {
	m.mu.Lock()
	m.detectCalls++
	m.mu.Unlock()
	if m.detectErr != nil {
		return nil, m.detectErr
	}
	ch := make(chan ffmpeg.Event, len(m.events)+1)
	for _, ev := range m.events {
		ch <- ev
	}
	if len(m.events) == 0 || m.events[len(m.events)-1].Kind != ffmpeg.EventDone {
		ch <- ffmpeg.Event{Kind: ffmpeg.EventDone}
	}
	close(ch)
	return ch, nil
}

func (m *mockAnalyzer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectCalls
}

type fakeCache struct {
	mu   sync.Mutex
	m    map[string]*scene.Result
	puts int
}

func newFakeCache() *fakeCache {
	return &fakeCache{m: make(map[string]*scene.Result)}
}

func (c *fakeCache) Put(filename string, res *scene.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[filename] = res
	c.puts++
	return nil
}

func (c *fakeCache) Get(filename string) (*scene.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.m[filename]
	return res, ok
}

func (c *fakeCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

type fakeFiles map[string]string

func (f fakeFiles) Path(filename string) (string, error) {
	path, ok := f[filename]
	if !ok {
		return "", errNoFile
	}
	return path, nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrency:   1,
		SceneThreshold:   0.4,
		DefaultFrameRate: 25.0,
		AnalyzeTimeout:   10 * time.Second,
	}
}

func newTestManager(t *testing.T, analyzer Analyzer, cache ResultStore, retention time.Duration) *Manager {
	t.Helper()
	reg := NewRegistry(retention)
	mgr := NewManager(testConfig(), reg, analyzer, cache, fakeFiles{"clip.mp4": "/uploads/clip.mp4"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mgr.Start(ctx)
	return mgr
}

func successEvents() []ffmpeg.Event {
	return []ffmpeg.Event{
		{Kind: ffmpeg.EventFrame, Frame: 50},
		{Kind: ffmpeg.EventCut, Time: 3.2},
		{Kind: ffmpeg.EventFrame, Frame: 150},
		{Kind: ffmpeg.EventCut, Time: 6.8},
		{Kind: ffmpeg.EventFrame, Frame: 250},
		{Kind: ffmpeg.EventDone},
	}
}

func waitTerminal(t *testing.T, mgr *Manager, id string) Task {
	t.Helper()
	var snap Task
	require.Eventually(t, func() bool {
		var ok bool
		snap, ok = mgr.Get(id)
		return ok && snap.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestManager_SubmitUnknownFileFailsFast(t *testing.T) {
	mgr := newTestManager(t, &mockAnalyzer{}, newFakeCache(), time.Hour)

	_, err := mgr.Submit("missing.mp4", false)
	assert.ErrorIs(t, err, errNoFile)
}

func TestManager_SuccessfulAnalysis(t *testing.T) {
	analyzer := &mockAnalyzer{events: successEvents()}
	cache := newFakeCache()
	mgr := newTestManager(t, analyzer, cache, time.Hour)

	submitted, err := mgr.Submit("clip.mp4", false)
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, submitted.Status)
	assert.Equal(t, 0, submitted.Progress)

	snap := waitTerminal(t, mgr, submitted.ID)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	require.NotNil(t, snap.Result)

	// Two cuts in a 10s clip yield three ordered, non-overlapping scenes.
	require.Equal(t, 3, snap.Result.SceneCount)
	scenes := snap.Result.Scenes
	assert.InDelta(t, 10.0, scenes[2].End, 0.05)
	for i := 1; i < len(scenes); i++ {
		assert.LessOrEqual(t, scenes[i-1].End, scenes[i].Start)
	}
	for _, s := range scenes {
		assert.InDelta(t, s.End-s.Start, s.Duration, 0.05)
	}

	// The cached entry is the task's result, byte-identical by construction.
	cached, ok := cache.Get("clip.mp4")
	require.True(t, ok)
	assert.Equal(t, snap.Result, cached)
}

func TestManager_ProgressIsMonotonic(t *testing.T) {
	analyzer := &mockAnalyzer{events: successEvents()}
	mgr := newTestManager(t, analyzer, newFakeCache(), time.Hour)

	submitted, err := mgr.Submit("clip.mp4", false)
	require.NoError(t, err)

	last := -1
	require.Eventually(t, func() bool {
		snap, ok := mgr.Get(submitted.ID)
		if !ok {
			return false
		}
		if snap.Status != StatusError {
			assert.GreaterOrEqual(t, snap.Progress, last)
			last = snap.Progress
		}
		return snap.Status.Terminal()
	}, 2*time.Second, time.Millisecond)
}

func TestManager_FailedAnalysis(t *testing.T) {
	analyzer := &mockAnalyzer{events: []ffmpeg.Event{
		{Kind: ffmpeg.EventFrame, Frame: 10},
		{Kind: ffmpeg.EventDone, Err: errors.New("engine exploded")},
	}}
	cache := newFakeCache()
	prev := &scene.Result{Status: scene.StatusProcessed, SceneCount: 1, Scenes: []scene.Scene{scene.New(0, 5)}}
	require.NoError(t, cache.Put("clip.mp4", prev))
	puts := cache.putCount()

	mgr := newTestManager(t, analyzer, cache, time.Hour)

	submitted, err := mgr.Submit("clip.mp4", true)
	require.NoError(t, err)

	snap := waitTerminal(t, mgr, submitted.ID)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, 0, snap.Progress)
	assert.Contains(t, snap.Error, "engine exploded")
	assert.Nil(t, snap.Result)

	// The previously cached result survives a failed recomputation.
	cached, ok := cache.Get("clip.mp4")
	require.True(t, ok)
	assert.Equal(t, prev, cached)
	assert.Equal(t, puts, cache.putCount())
}

func TestManager_CacheHitShortCircuits(t *testing.T) {
	analyzer := &mockAnalyzer{events: successEvents()}
	cache := newFakeCache()
	stored := &scene.Result{Status: scene.StatusProcessed, SceneCount: 2, VideoDuration: 8}
	require.NoError(t, cache.Put("clip.mp4", stored))

	mgr := newTestManager(t, analyzer, cache, time.Hour)

	snap, err := mgr.Submit("clip.mp4", false)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, stored, snap.Result)
	assert.Equal(t, 0, analyzer.calls())

	// The terminal task stays queryable through the registry.
	got, ok := mgr.Get(snap.ID)
	require.True(t, ok)
	assert.Equal(t, stored, got.Result)
}

func TestManager_ForceAlwaysSchedules(t *testing.T) {
	analyzer := &mockAnalyzer{events: successEvents()}
	cache := newFakeCache()
	require.NoError(t, cache.Put("clip.mp4", &scene.Result{Status: scene.StatusProcessed}))

	mgr := newTestManager(t, analyzer, cache, time.Hour)

	submitted, err := mgr.Submit("clip.mp4", true)
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, submitted.Status)

	waitTerminal(t, mgr, submitted.ID)
	assert.Equal(t, 1, analyzer.calls())
}

func TestManager_TaskExpiresAfterRetention(t *testing.T) {
	analyzer := &mockAnalyzer{events: successEvents()}
	mgr := newTestManager(t, analyzer, newFakeCache(), 50*time.Millisecond)

	submitted, err := mgr.Submit("clip.mp4", false)
	require.NoError(t, err)
	waitTerminal(t, mgr, submitted.ID)

	// Still queryable right after completion, gone after the window.
	_, ok := mgr.Get(submitted.ID)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := mgr.Get(submitted.ID)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestManager_ProcessSync(t *testing.T) {
	analyzer := &mockAnalyzer{events: successEvents()}
	cache := newFakeCache()
	mgr := newTestManager(t, analyzer, cache, time.Hour)

	res, fromCache, err := mgr.ProcessSync(context.Background(), "clip.mp4", false)
	require.NoError(t, err)
	assert.False(t, fromCache)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.SceneCount)

	// Second call is served from the cache without touching the engine.
	calls := analyzer.calls()
	res2, fromCache, err := mgr.ProcessSync(context.Background(), "clip.mp4", false)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, res, res2)
	assert.Equal(t, calls, analyzer.calls())
}

func TestManager_ProbeFailureIsAdvisory(t *testing.T) {
	analyzer := &mockAnalyzer{
		events: []ffmpeg.Event{
			{Kind: ffmpeg.EventFrame, Frame: 10},
			{Kind: ffmpeg.EventCut, Time: 4.0},
			{Kind: ffmpeg.EventDone},
		},
		probeFunc: func(ctx context.Context, path string) (float64, float64, error) {
			return 0, 0, errors.New("probe blew up")
		},
	}
	mgr := newTestManager(t, analyzer, newFakeCache(), time.Hour)

	submitted, err := mgr.Submit("clip.mp4", false)
	require.NoError(t, err)

	snap := waitTerminal(t, mgr, submitted.ID)
	assert.Equal(t, StatusCompleted, snap.Status)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 0.0, snap.Result.VideoDuration)
	// The last cut closes the final scene when the duration is unknown.
	require.Equal(t, 1, snap.Result.SceneCount)
	assert.InDelta(t, 4.0, snap.Result.Scenes[0].End, 1e-9)
}
