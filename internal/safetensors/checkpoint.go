package safetensors

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
)

const (
	// DefaultFile is the conventional single-file checkpoint name.
	DefaultFile = "model.safetensors"
	// IndexFile is the conventional shard index manifest name.
	IndexFile = "model.safetensors.index.json"
)

// Checkpoint is a parsed checkpoint: one or more shards and the merged
// manifest over all of them.
type Checkpoint struct {
	Manifest Manifest
	Paths    []string

	shards []*Shard
}

// Open opens a checkpoint. path may be a directory (resolved through
// IndexFile, falling back to DefaultFile), an index manifest, or a single
// container file.
func Open(path string) (*Checkpoint, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		if idx := filepath.Join(path, IndexFile); fileExists(idx) {
			return OpenIndex(idx)
		}
		single := filepath.Join(path, DefaultFile)
		if !fileExists(single) {
			return nil, fmt.Errorf("%s: no %s or %s found", path, IndexFile, DefaultFile)
		}
		return OpenFile(single)
	}
	if filepath.Ext(path) == ".json" {
		return OpenIndex(path)
	}
	return OpenFile(path)
}

// OpenFile opens a single-shard checkpoint.
func OpenFile(path string) (*Checkpoint, error) {
	shard, entries, err := parseShard(path)
	if err != nil {
		return nil, err
	}
	manifest := make(Manifest, len(entries))
	for _, e := range entries {
		manifest[e.Name] = e
	}
	return &Checkpoint{
		Manifest: manifest,
		Paths:    []string{path},
		shards:   []*Shard{shard},
	}, nil
}

type indexManifest struct {
	Metadata  map[string]json.RawMessage `json:"metadata"`
	WeightMap map[string]string          `json:"weight_map"`
}

// OpenIndex opens a sharded checkpoint through its index manifest. Every
// referenced shard's header is parsed eagerly; shard data stays unmapped
// until a tensor is materialized, so peak open-handle count tracks the
// tensors actually read.
func OpenIndex(indexPath string) (*Checkpoint, error) {
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, err
	}
	var idx indexManifest
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedContainer, indexPath, err)
	}
	if len(idx.WeightMap) == 0 {
		return nil, fmt.Errorf("%w: %s: empty weight_map", ErrMalformedContainer, indexPath)
	}

	dir := filepath.Dir(indexPath)
	shardFiles := make([]string, 0)
	seen := make(map[string]bool)
	for _, file := range idx.WeightMap {
		if !seen[file] {
			seen[file] = true
			shardFiles = append(shardFiles, file)
		}
	}
	sort.Strings(shardFiles)

	cp := &Checkpoint{
		Manifest: make(Manifest),
		Paths:    []string{indexPath},
	}
	shardOf := make(map[string]string) // tensor name -> shard file
	for _, file := range shardFiles {
		shardPath := filepath.Join(dir, file)
		shard, entries, err := parseShard(shardPath)
		if err != nil {
			cp.Close()
			if os.IsNotExist(err) {
				return nil, &MissingShardError{Shard: file, Err: err}
			}
			return nil, err
		}
		cp.shards = append(cp.shards, shard)
		cp.Paths = append(cp.Paths, shardPath)
		for _, e := range entries {
			if prev, ok := shardOf[e.Name]; ok {
				cp.Close()
				return nil, &DuplicateTensorError{Name: e.Name, Shards: []string{prev, file}}
			}
			shardOf[e.Name] = file
			cp.Manifest[e.Name] = e
		}
	}
	return cp, nil
}

// Tensor looks up a tensor in the merged manifest.
func (c *Checkpoint) Tensor(name string) (Entry, bool) {
	e, ok := c.Manifest[name]
	return e, ok
}

// TensorBytes returns the raw little-endian bytes of a tensor, mapping its
// shard on first use. The returned slice borrows the mapping and is only
// valid until Close.
func (c *Checkpoint) TensorBytes(name string) ([]byte, Entry, error) {
	e, ok := c.Manifest[name]
	if !ok {
		return nil, Entry{}, fmt.Errorf("tensor not found: %s", name)
	}
	b, err := e.Shard.Bytes(e.Begin, e.End)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	return b, e, nil
}

// Close unmaps all shards. Borrowed tensor views become invalid.
func (c *Checkpoint) Close() error {
	var first error
	for _, s := range c.shards {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
