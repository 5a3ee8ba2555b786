package schema

import (
	"reflect"
	"strings"
	"testing"

	"github.com/samcharles93/ember/internal/dtype"
)

func testParams() *Params {
	return &Params{
		ModelType:         "gemma",
		VocabSize:         1000,
		HiddenSize:        64,
		IntermediateSize:  128,
		NumHiddenLayers:   2,
		NumAttentionHeads: 4,
		NumKeyValueHeads:  2,
		MaxPosition:       512,
		HeadDim:           16,
		RMSNormEps:        1e-6,
	}
}

func TestParseParamsDefaults(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"model_type": "llama",
		"vocab_size": 32000,
		"hidden_size": 4096,
		"intermediate_size": 11008,
		"num_hidden_layers": 32,
		"num_attention_heads": 32,
		"max_position_embeddings": 4096,
		"rms_norm_eps": 1e-5
	}`)
	p, err := ParseParams(raw)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if p.NumKeyValueHeads != 32 {
		t.Errorf("num_key_value_heads default = %d, want 32", p.NumKeyValueHeads)
	}
	if p.HeadDim != 128 {
		t.Errorf("head_dim default = %d, want 128", p.HeadDim)
	}
	if p.RopeTheta != 10000 {
		t.Errorf("rope_theta default = %g, want 10000", p.RopeTheta)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseParamsExtraFieldsIgnored(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"model_type":"gemma","vocab_size":10,"transformers_version":"4.38.0","_name_or_path":"x"}`)
	p, err := ParseParams(raw)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if p.ModelType != "gemma" || p.VocabSize != 10 {
		t.Errorf("unexpected params: %+v", p)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	t.Parallel()
	p := testParams()
	p.VocabSize = 0
	p.HiddenSize = 0
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "vocab_size") || !strings.Contains(msg, "hidden_size") {
		t.Fatalf("expected both problems in one error, got %q", msg)
	}
}

func TestValidateGQADivisibility(t *testing.T) {
	t.Parallel()
	p := testParams()
	p.NumAttentionHeads = 5
	p.NumKeyValueHeads = 2
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for heads not divisible by kv heads")
	}
}

func TestResolveGemma(t *testing.T) {
	t.Parallel()
	tree, err := Resolve(testParams())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tree.Arch != "gemma" {
		t.Fatalf("arch = %q", tree.Arch)
	}
	// 3 global slots + 8 per-layer slots over 2 layers.
	if want := 3 + 8*2; len(tree.Leaves) != want {
		t.Fatalf("leaf count = %d, want %d", len(tree.Leaves), want)
	}

	q, ok := tree.Leaf("layers.1.self_attn.q_proj")
	if !ok {
		t.Fatal("missing q_proj leaf for layer 1")
	}
	if !reflect.DeepEqual(q.Shape, []int{64, 64}) {
		t.Errorf("q_proj shape = %v, want [64 64]", q.Shape)
	}
	if len(q.Aliases) != 1 || q.Aliases[0] != "model.layers.1.self_attn.q_proj.weight" {
		t.Errorf("q_proj aliases = %v", q.Aliases)
	}

	k, _ := tree.Leaf("layers.0.self_attn.k_proj")
	if !reflect.DeepEqual(k.Shape, []int{32, 64}) {
		t.Errorf("k_proj shape = %v, want [32 64] (kv heads * head_dim)", k.Shape)
	}

	head, ok := tree.Leaf("lm_head")
	if !ok {
		t.Fatal("missing lm_head leaf")
	}
	if len(head.Aliases) != 2 || head.Aliases[1] != "model.embed_tokens.weight" {
		t.Errorf("lm_head aliases = %v, want tied-embedding fallback", head.Aliases)
	}

	for _, l := range tree.Leaves {
		if len(l.Accepts) == 0 {
			t.Fatalf("leaf %s has no accepted dtypes", l.Path)
		}
		for _, d := range l.Accepts {
			if d != dtype.F32 && d != dtype.F16 && d != dtype.BF16 {
				t.Fatalf("leaf %s accepts unexpected dtype %s", l.Path, d)
			}
		}
	}
}

func TestResolveUnsupportedArch(t *testing.T) {
	t.Parallel()
	p := testParams()
	p.ModelType = "mamba"
	if _, err := Resolve(p); err == nil {
		t.Fatal("expected error for unsupported architecture")
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	t.Parallel()
	if _, ok := Lookup(" Gemma "); !ok {
		t.Error("expected lookup to normalize case and whitespace")
	}
	if _, ok := Lookup("phi"); ok {
		t.Error("phi is not registered")
	}
}
