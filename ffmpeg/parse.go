package ffmpeg

import (
	"strconv"
	"strings"
)

// parseProgressFrame extracts N from a "-progress pipe:1" line of the form
// "frame=N".
func parseProgressFrame(line string) (int64, bool) {
	val, ok := strings.CutPrefix(strings.TrimSpace(line), "frame=")
	if !ok {
		return 0, false
	}
	frame, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return 0, false
	}
	return frame, true
}

// parseShowinfoTime extracts the pts_time value from a showinfo stderr line.
func parseShowinfoTime(line string) (float64, bool) {
	idx := strings.Index(line, "pts_time:")
	if idx < 0 {
		return 0, false
	}
	rest := line[idx+len("pts_time:"):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	ts, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || ts < 0 {
		return 0, false
	}
	return ts, true
}

// parseFraction evaluates an ffprobe rational like "30000/1001". Returns 0
// when the fraction is malformed or degenerate ("0/0").
func parseFraction(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	if !found {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// parseProbeOutput reads "key=value" lines from ffprobe's default writer.
func parseProbeOutput(out string) (duration, fps float64) {
	for _, line := range strings.Split(out, "\n") {
		key, val, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		switch key {
		case "duration":
			if v, err := strconv.ParseFloat(val, 64); err == nil && v > 0 {
				duration = v
			}
		case "r_frame_rate":
			fps = parseFraction(val)
		}
	}
	return duration, fps
}
