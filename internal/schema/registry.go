package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samcharles93/ember/internal/dtype"
)

// layerToken marks where the layer index substitutes into an alias template.
const layerToken = "{layer}"

// SlotDef declares one expected parameter slot as data: alias templates in
// priority order, a shape expression over the hyperparameters, and the dtype
// set the slot accepts on disk. Checkpoint naming drift is handled by adding
// aliases here, never by pattern matching over the manifest.
type SlotDef struct {
	Path     string // record path, e.g. "self_attn.q_proj"
	PerLayer bool
	Aliases  []string
	Shape    func(p *Params) []int
	Accepts  []dtype.DType
}

// Arch is the expected-parameter declaration for one architecture.
type Arch struct {
	Name  string
	Slots []SlotDef
}

// Leaf is a slot with all expressions resolved against concrete
// hyperparameters.
type Leaf struct {
	Path    string // hierarchical record path, e.g. "layers.3.self_attn.q_proj"
	Aliases []string
	Shape   []int
	Accepts []dtype.DType
}

// Tree is the resolved expected-parameter set for one model instance.
type Tree struct {
	Arch   string
	Leaves []Leaf
}

// Leaf returns the resolved leaf at the given record path.
func (t *Tree) Leaf(path string) (Leaf, bool) {
	for _, l := range t.Leaves {
		if l.Path == path {
			return l, true
		}
	}
	return Leaf{}, false
}

// floatWeights is the dtype set weight matrices are stored in.
var floatWeights = []dtype.DType{dtype.F32, dtype.F16, dtype.BF16}

// Resolve produces the concrete slot tree for the params' architecture. Pure
// function of (architecture, hyperparameters); no I/O.
func Resolve(p *Params) (*Tree, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	arch, ok := Lookup(p.ModelType)
	if !ok {
		return nil, fmt.Errorf("unsupported architecture %q", p.ModelType)
	}

	tree := &Tree{Arch: arch.Name}
	for _, slot := range arch.Slots {
		shape := slot.Shape(p)
		accepts := slot.Accepts
		if accepts == nil {
			accepts = floatWeights
		}
		if !slot.PerLayer {
			tree.Leaves = append(tree.Leaves, Leaf{
				Path:    slot.Path,
				Aliases: slot.Aliases,
				Shape:   shape,
				Accepts: accepts,
			})
			continue
		}
		for layer := 0; layer < p.NumHiddenLayers; layer++ {
			aliases := make([]string, len(slot.Aliases))
			for i, a := range slot.Aliases {
				aliases[i] = strings.ReplaceAll(a, layerToken, strconv.Itoa(layer))
			}
			tree.Leaves = append(tree.Leaves, Leaf{
				Path:    "layers." + strconv.Itoa(layer) + "." + slot.Path,
				Aliases: aliases,
				Shape:   shape,
				Accepts: accepts,
			})
		}
	}
	return tree, nil
}

// Lookup finds the architecture declaration for a model_type string.
func Lookup(modelType string) (*Arch, bool) {
	a, ok := registry[strings.ToLower(strings.TrimSpace(modelType))]
	return a, ok
}

// Supported lists the registered architecture names.
func Supported() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

var registry = map[string]*Arch{
	"gemma": gemmaArch,
	"llama": llamaArch,
}

// decoderSlots is the shared slot table for pre-norm decoder stacks with
// grouped-query attention and a gated MLP. Gemma and Llama both use the
// HF "model.layers.N" naming; architecture-specific aliases extend it.
func decoderSlots(lmHeadAliases []string) []SlotDef {
	return []SlotDef{
		{
			Path:    "embed_tokens",
			Aliases: []string{"model.embed_tokens.weight"},
			Shape:   func(p *Params) []int { return []int{p.VocabSize, p.HiddenSize} },
		},
		{
			Path:     "self_attn.q_proj",
			PerLayer: true,
			Aliases:  []string{"model.layers." + layerToken + ".self_attn.q_proj.weight"},
			Shape:    func(p *Params) []int { return []int{p.NumAttentionHeads * p.HeadDim, p.HiddenSize} },
		},
		{
			Path:     "self_attn.k_proj",
			PerLayer: true,
			Aliases:  []string{"model.layers." + layerToken + ".self_attn.k_proj.weight"},
			Shape:    func(p *Params) []int { return []int{p.NumKeyValueHeads * p.HeadDim, p.HiddenSize} },
		},
		{
			Path:     "self_attn.v_proj",
			PerLayer: true,
			Aliases:  []string{"model.layers." + layerToken + ".self_attn.v_proj.weight"},
			Shape:    func(p *Params) []int { return []int{p.NumKeyValueHeads * p.HeadDim, p.HiddenSize} },
		},
		{
			Path:     "self_attn.o_proj",
			PerLayer: true,
			Aliases:  []string{"model.layers." + layerToken + ".self_attn.o_proj.weight"},
			Shape:    func(p *Params) []int { return []int{p.HiddenSize, p.NumAttentionHeads * p.HeadDim} },
		},
		{
			Path:     "mlp.gate_proj",
			PerLayer: true,
			Aliases:  []string{"model.layers." + layerToken + ".mlp.gate_proj.weight"},
			Shape:    func(p *Params) []int { return []int{p.IntermediateSize, p.HiddenSize} },
		},
		{
			Path:     "mlp.up_proj",
			PerLayer: true,
			Aliases:  []string{"model.layers." + layerToken + ".mlp.up_proj.weight"},
			Shape:    func(p *Params) []int { return []int{p.IntermediateSize, p.HiddenSize} },
		},
		{
			Path:     "mlp.down_proj",
			PerLayer: true,
			Aliases:  []string{"model.layers." + layerToken + ".mlp.down_proj.weight"},
			Shape:    func(p *Params) []int { return []int{p.HiddenSize, p.IntermediateSize} },
		},
		{
			Path:     "input_layernorm",
			PerLayer: true,
			Aliases:  []string{"model.layers." + layerToken + ".input_layernorm.weight"},
			Shape:    func(p *Params) []int { return []int{p.HiddenSize} },
		},
		{
			Path:     "post_attention_layernorm",
			PerLayer: true,
			Aliases:  []string{"model.layers." + layerToken + ".post_attention_layernorm.weight"},
			Shape:    func(p *Params) []int { return []int{p.HiddenSize} },
		},
		{
			Path:    "norm",
			Aliases: []string{"model.norm.weight"},
			Shape:   func(p *Params) []int { return []int{p.HiddenSize} },
		},
		{
			Path:    "lm_head",
			Aliases: lmHeadAliases,
			Shape:   func(p *Params) []int { return []int{p.VocabSize, p.HiddenSize} },
		},
	}
}

// Gemma ties the output projection to the embedding, so the embedding weight
// is a valid fallback alias for lm_head.
var gemmaArch = &Arch{
	Name:  "gemma",
	Slots: decoderSlots([]string{"lm_head.weight", "model.embed_tokens.weight"}),
}

var llamaArch = &Arch{
	Name:  "llama",
	Slots: decoderSlots([]string{"lm_head.weight", "output.weight", "model.embed_tokens.weight"}),
}
