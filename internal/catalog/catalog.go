// Package catalog tracks the checkpoints a process has loaded so that
// callers (and the serve API) can enumerate and release them by ID.
package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ModelInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Architecture string    `json:"architecture"`
	Source       string    `json:"source"`
	ShardPaths   []string  `json:"shard_paths"`
	TensorCount  int       `json:"tensor_count"`
	ByteSize     int64     `json:"byte_size"`
	LoadedAt     time.Time `json:"loaded_at"`
}

type entry struct {
	info  ModelInfo
	close func() error
}

type Catalog struct {
	mu     sync.Mutex
	models map[string]*entry
}

func New() *Catalog {
	return &Catalog{
		models: make(map[string]*entry),
	}
}

// Add registers a loaded model and returns its assigned ID. closeFn releases
// the model's resources when the entry is removed; nil is allowed.
func (c *Catalog) Add(info ModelInfo, closeFn func() error) string {
	info.ID = "model-" + uuid.NewString()
	if info.LoadedAt.IsZero() {
		info.LoadedAt = time.Now()
	}
	c.mu.Lock()
	c.models[info.ID] = &entry{info: info, close: closeFn}
	c.mu.Unlock()
	return info.ID
}

func (c *Catalog) Get(id string) (ModelInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.models[id]
	if !ok {
		return ModelInfo{}, false
	}
	return e.info, true
}

// List returns all registered models ordered by load time, newest last.
func (c *Catalog) List() []ModelInfo {
	c.mu.Lock()
	out := make([]ModelInfo, 0, len(c.models))
	for _, e := range c.models {
		out = append(out, e.info)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].LoadedAt.Equal(out[j].LoadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LoadedAt.Before(out[j].LoadedAt)
	})
	return out
}

// Remove drops the entry and closes the model it tracks. It reports whether
// the ID was present; the close error, if any, is returned alongside.
func (c *Catalog) Remove(id string) (bool, error) {
	c.mu.Lock()
	e, ok := c.models[id]
	if ok {
		delete(c.models, id)
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if e.close != nil {
		return true, e.close()
	}
	return true, nil
}

func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}
