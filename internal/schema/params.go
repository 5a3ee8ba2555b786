// Package schema declares, per supported architecture, the parameter slots a
// checkpoint must provide: concrete tensor names (with legacy aliases), shapes
// resolved from the model's hyperparameters, and accepted dtypes.
package schema

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Params are the model hyperparameters, in the config.json vocabulary.
type Params struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`

	VocabSize         int     `json:"vocab_size"`
	HiddenSize        int     `json:"hidden_size"`
	IntermediateSize  int     `json:"intermediate_size"`
	NumHiddenLayers   int     `json:"num_hidden_layers"`
	NumAttentionHeads int     `json:"num_attention_heads"`
	NumKeyValueHeads  int     `json:"num_key_value_heads"`
	MaxPosition       int     `json:"max_position_embeddings"`
	HeadDim           int     `json:"head_dim"`
	RMSNormEps        float64 `json:"rms_norm_eps"`
	RopeTheta         float64 `json:"rope_theta"`

	TorchDType        string `json:"torch_dtype"`
	UseCache          *bool  `json:"use_cache"`
	TieWordEmbeddings *bool  `json:"tie_word_embeddings"`
	BOSTokenID        *int   `json:"bos_token_id"`
	EOSTokenID        *int   `json:"eos_token_id"`
	PadTokenID        *int   `json:"pad_token_id"`
}

// ParseParams decodes config.json bytes and fills derivable defaults.
func ParseParams(raw []byte) (*Params, error) {
	var p Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if p.NumKeyValueHeads == 0 {
		p.NumKeyValueHeads = p.NumAttentionHeads
	}
	if p.HeadDim == 0 && p.NumAttentionHeads > 0 && p.HiddenSize%p.NumAttentionHeads == 0 {
		p.HeadDim = p.HiddenSize / p.NumAttentionHeads
	}
	if p.RopeTheta == 0 {
		p.RopeTheta = 10000
	}
	return &p, nil
}

// Validate checks the hyperparameters for completeness and architectural
// consistency. Every problem is reported, not just the first.
func (p *Params) Validate() error {
	var problems []error
	require := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	require(strings.TrimSpace(p.ModelType) != "", "model_type must be set")
	require(p.VocabSize > 0, "vocab_size must be positive")
	require(p.HiddenSize > 0, "hidden_size must be positive")
	require(p.IntermediateSize > 0, "intermediate_size must be positive")
	require(p.NumHiddenLayers > 0, "num_hidden_layers must be positive")
	require(p.NumAttentionHeads > 0, "num_attention_heads must be positive")
	require(p.NumKeyValueHeads > 0, "num_key_value_heads must be positive")
	require(p.MaxPosition > 0, "max_position_embeddings must be positive")
	require(p.HeadDim > 0, "head_dim must be positive")
	require(p.RMSNormEps > 0, "rms_norm_eps must be positive")

	if p.NumAttentionHeads > 0 && p.NumKeyValueHeads > 0 {
		require(p.NumAttentionHeads%p.NumKeyValueHeads == 0,
			"num_attention_heads (%d) must be a multiple of num_key_value_heads (%d)",
			p.NumAttentionHeads, p.NumKeyValueHeads)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid model config: %w", errors.Join(problems...))
	}
	return nil
}
