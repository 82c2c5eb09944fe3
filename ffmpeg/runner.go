package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"

	"cineshorts/config"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// EventKind discriminates the entries of the Detect event stream.
type EventKind int

const (
	// EventFrame reports the engine's current frame index.
	EventFrame EventKind = iota
	// EventCut reports one detected scene boundary, in seconds.
	EventCut
	// EventDone is the final event; Err carries the terminal error if any.
	EventDone
)

type Event struct {
	Kind  EventKind
	Frame int64
	Time  float64
	Err   error
}

type Runner struct {
	cfg       *config.Config
	extraArgs []string
}

func NewRunner(cfg *config.Config) (*Runner, error) {
	if _, err := exec.LookPath(cfg.FFBin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found or not in PATH: %s", cfg.FFBin)
	}
	if _, err := exec.LookPath(cfg.FFprobeBin); err != nil {
		return nil, fmt.Errorf("ffprobe binary not found or not in PATH: %s", cfg.FFprobeBin)
	}

	extraArgs, err := SplitArgs(cfg.FFExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid FF_EXTRA_ARGS: %w", err)
	}
	if err := SanitizeArgs(extraArgs); err != nil {
		return nil, fmt.Errorf("invalid FF_EXTRA_ARGS: %w", err)
	}

	return &Runner{cfg: cfg, extraArgs: extraArgs}, nil
}

// Probe returns the media duration and video frame rate in one ffprobe call.
// A failed probe is advisory: callers fall back to zero duration and a default
// frame rate, so the error is for logging only.
func (r *Runner) Probe(ctx context.Context, path string) (duration, fps float64, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.FFprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate:format=duration",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	duration, fps = parseProbeOutput(string(out))
	return duration, fps, nil
}

// Detect runs the ffmpeg scene filter over the file and returns a lazy event
// stream: frame-index progress events, one cut event per detected boundary,
// and a final done event. The channel is closed after the done event, and the
// stream is safe to consume from a worker goroutine.
func (r *Runner) Detect(ctx context.Context, path string, threshold float64) (<-chan Event, error) {
	if err := r.checkResources(); err != nil {
		return nil, fmt.Errorf("insufficient system resources: %w", err)
	}

	args := append([]string(nil), r.extraArgs...)
	args = append(args,
		"-hide_banner", "-nostats",
		"-progress", "pipe:1",
		"-i", path,
		"-vf", fmt.Sprintf("select='gt(scene,%g)',showinfo", threshold),
		"-an",
		"-f", "null", "-",
	)
	cmd := exec.CommandContext(ctx, r.cfg.FFBin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	log.Printf("Detecting scenes in %s (threshold %g)", path, threshold)

	events := make(chan Event, 64)
	var wg sync.WaitGroup
	wg.Add(2)

	// -progress output: one "frame=N" line per update interval.
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			if frame, ok := parseProgressFrame(sc.Text()); ok {
				events <- Event{Kind: EventFrame, Frame: frame}
			}
		}
	}()

	// showinfo logs each frame the select filter passed, i.e. each cut.
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			if ts, ok := parseShowinfoTime(sc.Text()); ok {
				events <- Event{Kind: EventCut, Time: ts}
			}
		}
	}()

	go func() {
		wg.Wait()
		err := cmd.Wait()
		if err != nil {
			err = fmt.Errorf("ffmpeg scene detection failed: %w", err)
		}
		events <- Event{Kind: EventDone, Err: err}
		close(events)
	}()

	return events, nil
}

// ExtractFrame writes a single still image taken at the given seek offset.
// Unlike Probe, a failure here is a hard failure for the request.
func (r *Runner) ExtractFrame(ctx context.Context, input string, seek float64, output, scale string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ThumbTimeout)
	defer cancel()

	args := append([]string(nil), r.extraArgs...)
	args = append(args,
		"-hide_banner",
		"-ss", fmt.Sprintf("%.3f", seek),
		"-i", input,
		"-frames:v", "1",
		"-vf", "scale="+scale,
		"-q:v", "2",
		"-y", output,
	)
	cmd := exec.CommandContext(ctx, r.cfg.FFBin, args...)

	var outputBuf bytes.Buffer
	cmd.Stdout = &outputBuf
	cmd.Stderr = &outputBuf

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("frame extraction failed: %w: %s", err, lastLine(outputBuf.String()))
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// checkResources verifies that the system has enough free resources to start
// a new analysis. Thresholds set to zero disable the corresponding check.
func (r *Runner) checkResources() error {
	if r.cfg.ThrottleCPU > 0 {
		p, err := cpu.Percent(time.Second, false)
		if err != nil {
			log.Printf("Warning: could not get CPU usage: %v", err)
		} else if len(p) > 0 && p[0] > (100.0-r.cfg.ThrottleCPU) {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], r.cfg.ThrottleCPU)
		}
	}

	if r.cfg.ThrottleFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			log.Printf("Warning: could not get memory usage: %v", err)
		} else if vm.Available < uint64(r.cfg.ThrottleFreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, r.cfg.ThrottleFreeMem)
		}
	}

	if r.cfg.ThrottleFreeDisk > 0 {
		d, err := disk.Usage(r.cfg.UploadDir)
		if err != nil {
			log.Printf("Warning: could not get disk usage for %s: %v", r.cfg.UploadDir, err)
		} else if d.Free < uint64(r.cfg.ThrottleFreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, r.cfg.ThrottleFreeDisk)
		}
	}
	return nil
}
