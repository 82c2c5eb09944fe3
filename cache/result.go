// Package cache provides the durable scene-result store and the memoized
// thumbnail store, both keyed by a sanitized form of the upload's filename.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"cineshorts/scene"
)

var keyReplacer = strings.NewReplacer("/", "_", "\\", "_", ".", "_")

// Key derives a flat, safe storage key from a raw filename.
func Key(filename string) string {
	return keyReplacer.Replace(filename)
}

type ResultCache struct {
	dir string
}

func NewResultCache(dir string) (*ResultCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create cache directory %s: %w", dir, err)
	}
	return &ResultCache{dir: dir}, nil
}

func (c *ResultCache) path(filename string) string {
	return filepath.Join(c.dir, Key(filename)+".json")
}

// Put overwrites the stored result for the given input. The write is atomic
// (tmp + rename) so concurrent recomputations resolve to last-writer-wins.
func (c *ResultCache) Put(filename string, res *scene.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("could not encode result for %s: %w", filename, err)
	}

	tmp, err := os.CreateTemp(c.dir, "result_*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(filename))
}

// Get returns the stored result, or false when there is none. An unreadable
// or corrupt record counts as a miss so the caller recomputes instead of
// surfacing a parse failure.
func (c *ResultCache) Get(filename string) (*scene.Result, bool) {
	data, err := os.ReadFile(c.path(filename))
	if err != nil {
		return nil, false
	}

	var res scene.Result
	if err := json.Unmarshal(data, &res); err != nil {
		log.Printf("Discarding corrupt cache entry for %s: %v", filename, err)
		return nil, false
	}
	return &res, true
}

// Remove drops the cache entry, if any. Removing an absent entry is a no-op.
func (c *ResultCache) Remove(filename string) {
	os.Remove(c.path(filename))
}
