package safetensors

import (
	"errors"
	"fmt"

	"github.com/samcharles93/ember/internal/dtype"
)

// ErrMalformedContainer marks structural damage to a container file: a
// truncated or oversized header, invalid JSON, a non-UTF8 tensor name, or an
// unrecognized dtype string. Wrapped errors carry the detail.
var ErrMalformedContainer = errors.New("malformed container")

// SizeMismatchError reports a tensor whose declared byte range disagrees with
// its shape and dtype.
type SizeMismatchError struct {
	Name     string
	DType    dtype.DType
	Shape    []int
	Declared int64
	Expected int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("tensor %s: declared %d bytes, but shape %v of %s requires %d",
		e.Name, e.Declared, e.Shape, e.DType, e.Expected)
}

// OutOfBoundsError reports a tensor byte range that exceeds the data block.
type OutOfBoundsError struct {
	Name     string
	Begin    int64
	End      int64
	DataSize int64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("tensor %s: range [%d, %d) exceeds data block of %d bytes",
		e.Name, e.Begin, e.End, e.DataSize)
}

// OverlapError reports two tensors whose byte ranges intersect.
type OverlapError struct {
	Name  string
	Other string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("tensor %s overlaps byte range of %s", e.Name, e.Other)
}

// DuplicateTensorError reports a tensor name declared by more than one shard.
type DuplicateTensorError struct {
	Name   string
	Shards []string
}

func (e *DuplicateTensorError) Error() string {
	return fmt.Sprintf("tensor %s declared by multiple shards %v", e.Name, e.Shards)
}

// MissingShardError reports a shard file referenced by the index that could
// not be opened.
type MissingShardError struct {
	Shard string
	Err   error
}

func (e *MissingShardError) Error() string {
	return fmt.Sprintf("shard %s: %v", e.Shard, e.Err)
}

func (e *MissingShardError) Unwrap() error { return e.Err }
