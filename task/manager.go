package task

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cineshorts/config"
	"cineshorts/ffmpeg"
	"cineshorts/scene"
)

// Analyzer is the external analysis boundary: duration/frame-rate probe plus
// the scene detection event stream.
type Analyzer interface {
	Probe(ctx context.Context, path string) (duration, fps float64, err error)
	Detect(ctx context.Context, path string, threshold float64) (<-chan ffmpeg.Event, error)
}

// ResultStore is the durable cache of finished analyses.
type ResultStore interface {
	Put(filename string, res *scene.Result) error
	Get(filename string) (*scene.Result, bool)
}

// Files resolves an uploaded filename to a readable path.
type Files interface {
	Path(filename string) (string, error)
}

type job struct {
	taskID   string
	filename string
	path     string
}

// Manager schedules analysis jobs off the request path and drives each one
// from submission to a terminal registry state.
type Manager struct {
	cfg            *config.Config
	registry       *Registry
	analyzer       Analyzer
	cache          ResultStore
	files          Files
	jobQueue       chan job
	concurrencySem chan struct{}
}

func NewManager(cfg *config.Config, registry *Registry, analyzer Analyzer, cache ResultStore, files Files) *Manager {
	return &Manager{
		cfg:            cfg,
		registry:       registry,
		analyzer:       analyzer,
		cache:          cache,
		files:          files,
		jobQueue:       make(chan job, 100),
		concurrencySem: make(chan struct{}, cfg.MaxConcurrency),
	}
}

func (m *Manager) Start(ctx context.Context) {
	log.Println("Task manager started. Concurrency limit:", m.cfg.MaxConcurrency)
	go m.workerLoop(ctx)
}

func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("Worker loop shutting down.")
			return
		case j := <-m.jobQueue:
			m.concurrencySem <- struct{}{}
			go func(j job) {
				defer func() { <-m.concurrencySem }()
				jobCtx, cancel := context.WithTimeout(ctx, m.cfg.AnalyzeTimeout)
				defer cancel()
				m.run(jobCtx, j)
			}(j)
		}
	}
}

// Get returns a snapshot of the task, or false for unknown/expired ids.
func (m *Manager) Get(id string) (Task, bool) {
	return m.registry.Get(id)
}

// Submit starts (or reuses) an analysis for an uploaded file. Unless forced,
// an existing cache entry short-circuits into an already-completed task whose
// result is the stored one. A missing upload fails fast with
// storage's not-found error from the Files resolver.
func (m *Manager) Submit(filename string, force bool) (Task, error) {
	path, err := m.files.Path(filename)
	if err != nil {
		return Task{}, err
	}

	if !force {
		if res, ok := m.cache.Get(filename); ok {
			log.Printf("Cache hit for %s, skipping analysis", filename)
			return m.registry.CreateCompleted(res), nil
		}
	}

	t := m.registry.Create()
	m.jobQueue <- job{taskID: t.ID, filename: filename, path: path}
	log.Printf("Task %s submitted for %s (force=%v)", t.ID, filename, force)
	return t, nil
}

// ProcessSync runs the full pipeline inline for the synchronous endpoint,
// consulting and populating the cache exactly like an async job. The boolean
// reports whether the result came from the cache.
func (m *Manager) ProcessSync(ctx context.Context, filename string, force bool) (*scene.Result, bool, error) {
	path, err := m.files.Path(filename)
	if err != nil {
		return nil, false, err
	}

	if !force {
		if res, ok := m.cache.Get(filename); ok {
			return res, true, nil
		}
	}

	t := m.registry.Create()
	runCtx, cancel := context.WithTimeout(ctx, m.cfg.AnalyzeTimeout)
	defer cancel()
	m.run(runCtx, job{taskID: t.ID, filename: filename, path: path})

	snap, _ := m.registry.Get(t.ID)
	if snap.Status == StatusError {
		return nil, false, errors.New(snap.Error)
	}
	return snap.Result, false, nil
}

// run drives one analysis to a terminal state, mutating the registry entry as
// it goes. Regardless of outcome the entry is scheduled for expiry.
func (m *Manager) run(ctx context.Context, j job) {
	// Duration probe is advisory: proceed with zero on failure.
	m.setProgress(j.taskID, 2, "probing media")
	duration, fps, err := m.analyzer.Probe(ctx, j.path)
	if err != nil {
		log.Printf("Task %s: probe failed, continuing without duration: %v", j.taskID, err)
		duration, fps = 0, 0
	}
	m.setProgress(j.taskID, 5, "probed media")

	m.registry.Mutate(j.taskID, func(t *Task) {
		t.Status = StatusAnalyzing
	})
	m.setProgress(j.taskID, 12, "detecting scenes")

	events, err := m.analyzer.Detect(ctx, j.path, m.cfg.SceneThreshold)
	if err != nil {
		m.fail(j.taskID, err)
		return
	}

	var cuts []float64
	var detectErr error
	for ev := range events {
		switch ev.Kind {
		case ffmpeg.EventFrame:
			est := m.estimateProgress(ev.Frame, fps, duration)
			m.setProgress(j.taskID, est, "detecting scenes")
		case ffmpeg.EventCut:
			cuts = append(cuts, ev.Time)
		case ffmpeg.EventDone:
			detectErr = ev.Err
		}
	}
	if detectErr != nil {
		m.fail(j.taskID, detectErr)
		return
	}

	m.setProgress(j.taskID, 92, "formatting scenes")
	pairs := scene.Pairs(cuts, duration)
	scenes := make([]scene.Scene, 0, len(pairs))
	for i, p := range pairs {
		scenes = append(scenes, scene.New(p[0], p[1]))
		m.setProgress(j.taskID, 92+(7*(i+1))/len(pairs), "formatting scenes")
	}

	result := &scene.Result{
		Status:        scene.StatusProcessed,
		VideoDuration: duration,
		Scenes:        scenes,
		SceneCount:    len(scenes),
		Method:        fmt.Sprintf("ffmpeg:scene=%g", m.cfg.SceneThreshold),
	}

	if err := m.cache.Put(j.filename, result); err != nil {
		m.fail(j.taskID, fmt.Errorf("failed to persist result: %w", err))
		return
	}

	m.registry.Mutate(j.taskID, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = 100
		t.Message = "done"
		t.Result = result
	})
	m.registry.ScheduleExpiry(j.taskID)
	log.Printf("Task %s completed: %d scenes in %s", j.taskID, len(scenes), j.filename)
}

// fail records a terminal error. Progress resets to zero and any previously
// cached result for the input is left untouched.
func (m *Manager) fail(id string, err error) {
	log.Printf("Task %s failed: %v", id, err)
	m.registry.Mutate(id, func(t *Task) {
		t.Status = StatusError
		t.Progress = 0
		t.Message = "analysis failed"
		t.Error = err.Error()
	})
	m.registry.ScheduleExpiry(id)
}

// setProgress advances a task's progress, never backwards.
func (m *Manager) setProgress(id string, progress int, message string) {
	m.registry.Mutate(id, func(t *Task) {
		if progress > t.Progress {
			t.Progress = progress
		}
		t.Message = message
	})
}

// estimateProgress extrapolates analysis progress from the engine's frame
// index. Best-effort: with no usable frame budget it holds at the analysis
// floor, and it clamps at 90 so formatting still shows forward motion.
func (m *Manager) estimateProgress(frame int64, fps, duration float64) int {
	if fps <= 0 {
		fps = m.cfg.DefaultFrameRate
	}
	totalFrames := fps * duration
	if totalFrames <= 0 {
		return 15
	}
	est := 15 + int(70*float64(frame)/totalFrames)
	if est > 90 {
		est = 90
	}
	return est
}
