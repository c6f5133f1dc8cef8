package model

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"trustbridge/backend/internal/features"
)

// ErrNotAvailable signals that the artifact for a kind is absent or
// unreadable. Callers treat it as a temporary service degradation.
var ErrNotAvailable = errors.New("model artifact not available")

type cacheEntry struct {
	predictor Predictor
	err       error
}

// Cache lazily loads one predictor per kind and pins the outcome, success or
// failure, for the process lifetime. Concurrent first loads for the same
// kind coalesce into a single read.
type Cache struct {
	paths  map[features.Kind]string
	loader func(string) (Predictor, error)
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[features.Kind]cacheEntry
}

// NewCache constructs a cache over the configured artifact paths.
func NewCache(paths map[features.Kind]string) *Cache {
	copied := make(map[features.Kind]string, len(paths))
	for kind, path := range paths {
		copied[kind] = path
	}
	return &Cache{
		paths:   copied,
		loader:  LoadArtifact,
		entries: make(map[features.Kind]cacheEntry),
	}
}

// Load returns the cached predictor for a kind, reading the artifact on
// first use. A failed load is not retried within the same process run.
func (c *Cache) Load(kind features.Kind) (Predictor, error) {
	c.mu.RLock()
	entry, ok := c.entries[kind]
	c.mu.RUnlock()
	if ok {
		return entry.predictor, entry.err
	}

	value, _, _ := c.group.Do(string(kind), func() (any, error) {
		c.mu.RLock()
		entry, ok := c.entries[kind]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}

		entry = c.fill(kind)
		c.mu.Lock()
		c.entries[kind] = entry
		c.mu.Unlock()
		return entry, nil
	})

	entry = value.(cacheEntry)
	return entry.predictor, entry.err
}

func (c *Cache) fill(kind features.Kind) cacheEntry {
	path := c.paths[kind]
	if path == "" {
		logrus.WithField("kind", kind).Warn("no artifact path configured")
		return cacheEntry{err: ErrNotAvailable}
	}
	predictor, err := c.loader(path)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"kind": kind,
			"path": path,
		}).Warn("model artifact load failed")
		return cacheEntry{err: ErrNotAvailable}
	}
	logrus.WithFields(logrus.Fields{
		"kind":       kind,
		"path":       path,
		"input_size": predictor.InputSize(),
	}).Info("model artifact loaded")
	return cacheEntry{predictor: predictor}
}
