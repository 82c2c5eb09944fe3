// Package scene holds the analysis result model shared by the task pipeline,
// the result cache and the API payloads.
package scene

import (
	"fmt"
	"math"
)

const (
	StatusProcessed = "processed"
	StatusError     = "error"
)

// Scene is one detected shot. Start/End are offsets into the source media in
// seconds; the labels are display-only and derived from the seconds fields.
type Scene struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Duration   float64 `json:"duration"`
	StartLabel string  `json:"start_label"`
	EndLabel   string  `json:"end_label"`
}

// Result is the persisted artifact for one input. The same JSON is written to
// the result cache, returned by the sync endpoint and sent as the terminal
// WebSocket payload, so a client cannot tell a cache hit from a fresh run.
type Result struct {
	Status        string  `json:"status"`
	VideoDuration float64 `json:"video_duration"`
	Scenes        []Scene `json:"scenes"`
	SceneCount    int     `json:"scene_count"`
	Method        string  `json:"method"`
}

// Label renders seconds as MM:SS. Minutes are unbounded, seconds are
// zero-padded to two digits.
func Label(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// New builds a Scene from a boundary pair. Duration is always derived.
func New(start, end float64) Scene {
	start = round1(start)
	end = round1(end)
	return Scene{
		Start:      start,
		End:        end,
		Duration:   round1(end - start),
		StartLabel: Label(start),
		EndLabel:   Label(end),
	}
}

// Pairs partitions [0, duration] at the detected cut times and returns the
// resulting (start, end) boundary pairs. Cuts are assumed ascending (ffmpeg
// emits them in decode order); duplicates, regressions and cuts at or past the
// end of the media are ignored. When the duration is unknown (0) the last cut
// closes the final pair instead.
func Pairs(cuts []float64, duration float64) [][2]float64 {
	end := duration
	if end <= 0 && len(cuts) > 0 {
		end = cuts[len(cuts)-1]
		cuts = cuts[:len(cuts)-1]
	}

	pairs := make([][2]float64, 0, len(cuts)+1)
	prev := 0.0
	for _, cut := range cuts {
		if cut <= prev {
			continue
		}
		if end > 0 && cut >= end {
			break
		}
		pairs = append(pairs, [2]float64{prev, cut})
		prev = cut
	}
	if end > prev {
		pairs = append(pairs, [2]float64{prev, end})
	}
	return pairs
}

// FromBoundaries maps the boundary pairs for the given cuts into Scenes.
func FromBoundaries(cuts []float64, duration float64) []Scene {
	pairs := Pairs(cuts, duration)
	scenes := make([]Scene, 0, len(pairs))
	for _, p := range pairs {
		scenes = append(scenes, New(p[0], p[1]))
	}
	return scenes
}
