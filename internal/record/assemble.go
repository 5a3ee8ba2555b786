package record

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/ember/internal/dtype"
	"github.com/samcharles93/ember/internal/safetensors"
)

// Options control a record assembly.
type Options struct {
	// Target is the dtype every slot is materialized to. Zero value means F32.
	Target dtype.DType
	// Strict escalates unexpected tensors from diagnostics to a fatal error.
	Strict bool
	// CopyTensors detaches every tensor so the record keeps no borrowed views
	// into the checkpoint's mappings.
	CopyTensors bool
	// Workers > 1 materializes leaves concurrently with that many workers.
	Workers int
}

// Record is the hierarchical module record: internal nodes mirror the schema
// tree's structure, leaves hold materialized tensors.
type Record struct {
	children map[string]*Record
	tensor   *Tensor
}

// Child returns the named child node, or nil.
func (r *Record) Child(name string) *Record {
	if r == nil {
		return nil
	}
	return r.children[name]
}

// Tensor returns the leaf tensor, or nil for internal nodes.
func (r *Record) Tensor() *Tensor { return r.tensor }

// Lookup resolves a dotted slot path (e.g. "layers.3.self_attn.q_proj") to
// its tensor.
func (r *Record) Lookup(path string) (*Tensor, bool) {
	node := r
	for _, seg := range strings.Split(path, ".") {
		node = node.Child(seg)
		if node == nil {
			return nil, false
		}
	}
	if node.tensor == nil {
		return nil, false
	}
	return node.tensor, true
}

// Walk visits every leaf tensor in sorted path order.
func (r *Record) Walk(fn func(path string, t *Tensor)) {
	r.walk("", fn)
}

func (r *Record) walk(prefix string, fn func(string, *Tensor)) {
	if r == nil {
		return
	}
	if r.tensor != nil {
		fn(prefix, r.tensor)
		return
	}
	names := make([]string, 0, len(r.children))
	for n := range r.children {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		path := n
		if prefix != "" {
			path = prefix + "." + n
		}
		r.children[n].walk(path, fn)
	}
}

// Detach copies every borrowed tensor into owned memory; afterwards the
// record has no ties to the checkpoint's mappings.
func (r *Record) Detach() {
	r.Walk(func(_ string, t *Tensor) { t.Detach() })
}

func (r *Record) insert(path string, t *Tensor) {
	node := r
	segs := strings.Split(path, ".")
	for _, seg := range segs {
		if node.children == nil {
			node.children = make(map[string]*Record)
		}
		child, ok := node.children[seg]
		if !ok {
			child = &Record{}
			node.children[seg] = child
		}
		node = child
	}
	node.tensor = t
}

// SchemaLeaf is the subset of a resolved schema leaf the assembler needs;
// declared here so the record package does not import the schema package.
type SchemaLeaf struct {
	Path    string
	Aliases []string
	Shape   []int
	Accepts []dtype.DType
}

// resolution pairs a schema leaf with the manifest entry that satisfies it.
type resolution struct {
	leaf  SchemaLeaf
	entry safetensors.Entry
}

// Assemble validates the checkpoint against the resolved schema leaves and
// materializes every slot. Validation is eager: all missing/mismatched slots
// are collected and returned as one aggregated error. On success the record
// is returned together with non-fatal diagnostics (unexpected tensors,
// silent dtype conversions).
func Assemble(cp *safetensors.Checkpoint, leaves []SchemaLeaf, opts Options) (*Record, []Diagnostic, error) {
	target := opts.Target
	if target == dtype.Invalid {
		target = dtype.F32
	}

	var problems []error
	resolutions := make([]resolution, 0, len(leaves))
	consumed := make(map[string]bool, len(leaves))

	for _, leaf := range leaves {
		entry, ok := findEntry(cp, leaf.Aliases)
		if !ok {
			problems = append(problems, &MissingTensorError{Path: leaf.Path, Aliases: leaf.Aliases})
			continue
		}
		consumed[entry.Name] = true
		if dim, equal := compareShapes(leaf.Shape, entry.Shape); !equal {
			problems = append(problems, &ShapeMismatchError{
				Path: leaf.Path,
				Name: entry.Name,
				Want: leaf.Shape,
				Got:  entry.Shape,
				Dim:  dim,
			})
			continue
		}
		if !accepts(leaf.Accepts, entry.DType) {
			problems = append(problems, &DtypeError{
				Path:    leaf.Path,
				Name:    entry.Name,
				Found:   entry.DType,
				Accepts: leaf.Accepts,
			})
			continue
		}
		resolutions = append(resolutions, resolution{leaf: leaf, entry: entry})
	}

	var diags []Diagnostic
	for _, name := range cp.Manifest.Names() {
		if consumed[name] {
			continue
		}
		e := cp.Manifest[name]
		d := Diagnostic{
			Kind:   DiagUnexpectedTensor,
			Name:   name,
			Detail: fmt.Sprintf("shape %v %s not consumed by any schema slot", e.Shape, e.DType),
		}
		if opts.Strict {
			problems = append(problems, fmt.Errorf("unexpected tensor %s: %s", name, d.Detail))
			continue
		}
		diags = append(diags, d)
	}

	if len(problems) > 0 {
		return nil, nil, &ValidationError{Problems: problems}
	}

	tensors := make([]*Tensor, len(resolutions))
	converted := make([]bool, len(resolutions))
	if opts.Workers > 1 {
		var g errgroup.Group
		g.SetLimit(opts.Workers)
		for i, res := range resolutions {
			g.Go(func() error {
				t, conv, err := Materialize(res.entry, target)
				if err != nil {
					return err
				}
				tensors[i] = t
				converted[i] = conv
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	} else {
		for i, res := range resolutions {
			t, conv, err := Materialize(res.entry, target)
			if err != nil {
				return nil, nil, err
			}
			tensors[i] = t
			converted[i] = conv
		}
	}

	root := &Record{}
	for i, res := range resolutions {
		t := tensors[i]
		if opts.CopyTensors {
			t.Detach()
		}
		root.insert(res.leaf.Path, t)
		if converted[i] {
			diags = append(diags, Diagnostic{
				Kind:   DiagConvertedDType,
				Name:   t.Name,
				Detail: fmt.Sprintf("converted %s to %s", res.entry.DType, target),
			})
		}
	}
	return root, diags, nil
}

// findEntry tries the alias candidates in declared priority order.
func findEntry(cp *safetensors.Checkpoint, aliases []string) (safetensors.Entry, bool) {
	for _, name := range aliases {
		if e, ok := cp.Tensor(name); ok {
			return e, true
		}
	}
	return safetensors.Entry{}, false
}

// compareShapes reports the first differing dimension, or -1 for a rank
// mismatch.
func compareShapes(want, got []int) (int, bool) {
	if len(want) != len(got) {
		return -1, false
	}
	for i := range want {
		if want[i] != got[i] {
			return i, false
		}
	}
	return 0, true
}

func accepts(set []dtype.DType, d dtype.DType) bool {
	for _, a := range set {
		if a == d {
			return true
		}
	}
	return false
}
