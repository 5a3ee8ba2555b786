// Package loader ties the pipeline together: it reads a checkpoint
// directory's config.json, resolves the architecture's expected parameter
// tree, opens the weight containers and assembles a validated record.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samcharles93/ember/internal/catalog"
	"github.com/samcharles93/ember/internal/dtype"
	"github.com/samcharles93/ember/internal/logger"
	"github.com/samcharles93/ember/internal/record"
	"github.com/samcharles93/ember/internal/safetensors"
	"github.com/samcharles93/ember/internal/schema"
)

// ConfigFile is the hyperparameter manifest expected next to the weights.
const ConfigFile = "config.json"

type Options struct {
	// Target is the dtype weights are materialized as. Zero value means F32.
	Target dtype.DType
	// Strict treats tensors absent from the schema as fatal.
	Strict bool
	// CopyTensors detaches every tensor from the mapping so the model
	// outlives its files.
	CopyTensors bool
	// Workers bounds concurrent tensor materialization. <=1 is serial.
	Workers int
	// Catalog, when set, receives the loaded model.
	Catalog *catalog.Catalog
	// Name labels the model in the catalog. Defaults to the directory name.
	Name string
}

// Model is a fully loaded, validated checkpoint. The weight record borrows
// from the checkpoint's mappings unless CopyTensors was set, so the model
// must be closed when done.
type Model struct {
	Arch        string
	Params      *schema.Params
	Weights     *record.Record
	Diagnostics []record.Diagnostic
	Paths       []string
	CatalogID   string

	cp        *safetensors.Checkpoint
	closeOnce sync.Once
	closeErr  error
}

// Tensor returns the materialized tensor at a record path like
// "layers.0.self_attn.q_proj".
func (m *Model) Tensor(path string) (*record.Tensor, bool) {
	return m.Weights.Lookup(path)
}

// Close releases the checkpoint mappings. Borrowed tensors are invalid
// afterwards; detached or copied ones stay usable.
func (m *Model) Close() error {
	m.closeOnce.Do(func() {
		if m.cp != nil {
			m.closeErr = m.cp.Close()
		}
	})
	return m.closeErr
}

// Detach copies every still-borrowed tensor out of the mappings and closes
// them.
func (m *Model) Detach() error {
	m.Weights.Detach()
	return m.Close()
}

// Load loads the checkpoint at dir. dir may also point directly at a
// container file or index manifest; config.json is looked up next to it.
func Load(ctx context.Context, dir string, opts Options) (*Model, error) {
	log := logger.FromContext(ctx)

	configDir := dir
	if st, err := os.Stat(dir); err == nil && !st.IsDir() {
		configDir = filepath.Dir(dir)
	}
	raw, err := os.ReadFile(filepath.Join(configDir, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}
	params, err := schema.ParseParams(raw)
	if err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}
	tree, err := schema.Resolve(params)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cp, err := safetensors.Open(dir)
	if err != nil {
		return nil, err
	}
	log.Debug("checkpoint opened",
		"arch", tree.Arch,
		"shards", len(cp.Paths),
		"tensors", len(cp.Manifest),
		"expected", len(tree.Leaves))

	leaves := make([]record.SchemaLeaf, len(tree.Leaves))
	for i, l := range tree.Leaves {
		leaves[i] = record.SchemaLeaf{
			Path:    l.Path,
			Aliases: l.Aliases,
			Shape:   l.Shape,
			Accepts: l.Accepts,
		}
	}
	weights, diags, err := record.Assemble(cp, leaves, record.Options{
		Target:      opts.Target,
		Strict:      opts.Strict,
		CopyTensors: opts.CopyTensors,
		Workers:     opts.Workers,
	})
	if err != nil {
		_ = cp.Close()
		return nil, err
	}
	for _, d := range diags {
		log.Warn("checkpoint diagnostic", "kind", d.Kind, "tensor", d.Name, "detail", d.Detail)
	}

	m := &Model{
		Arch:        tree.Arch,
		Params:      params,
		Weights:     weights,
		Diagnostics: diags,
		Paths:       cp.Paths,
		cp:          cp,
	}
	if opts.CopyTensors {
		// Nothing borrows from the mappings anymore.
		if err := m.Close(); err != nil {
			return nil, err
		}
	}

	if opts.Catalog != nil {
		name := opts.Name
		if name == "" {
			name = filepath.Base(configDir)
		}
		var byteSize int64
		for _, e := range cp.Manifest {
			byteSize += e.ByteLen()
		}
		m.CatalogID = opts.Catalog.Add(catalog.ModelInfo{
			Name:         name,
			Architecture: m.Arch,
			Source:       dir,
			ShardPaths:   m.Paths,
			TensorCount:  len(cp.Manifest),
			ByteSize:     byteSize,
		}, m.Close)
	}

	log.Info("model loaded", "arch", m.Arch, "layers", params.NumHiddenLayers, "diagnostics", len(diags))
	return m, nil
}
