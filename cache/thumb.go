package cache

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"
)

// seekOffset is added to the requested timestamp so the still lands past the
// cut instead of on a transition frame.
const seekOffset = 0.1

type FrameExtractor interface {
	ExtractFrame(ctx context.Context, input string, seek float64, output, scale string) error
}

// ThumbCache memoizes extracted stills on disk, keyed by the input identity
// and the requested timestamp rounded to one decimal.
type ThumbCache struct {
	dir       string
	extractor FrameExtractor
	scale     string
	group     singleflight.Group
}

func NewThumbCache(dir string, extractor FrameExtractor) (*ThumbCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create thumbnail directory %s: %w", dir, err)
	}
	return &ThumbCache{dir: dir, extractor: extractor, scale: "320:-1"}, nil
}

func (c *ThumbCache) path(filename string, ts float64) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%.1f.jpg", Key(filename), ts))
}

// GetOrCreate returns the cached still for (filename, ts), extracting it
// first on a miss. Concurrent misses for the same key are collapsed into a
// single extraction; extraction is deterministic, so an overwrite by a
// straggler is harmless.
func (c *ThumbCache) GetOrCreate(ctx context.Context, inputPath, filename string, ts float64) ([]byte, error) {
	ts = math.Round(ts*10) / 10
	path := c.path(filename, ts)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}

	_, err, _ := c.group.Do(path, func() (interface{}, error) {
		return nil, c.extractor.ExtractFrame(ctx, inputPath, ts+seekOffset, path, c.scale)
	})
	if err != nil {
		return nil, err
	}

	return os.ReadFile(path)
}
