// Package safetensors reads checkpoint weight containers in the safetensors
// layout: an 8-byte little-endian header length, a JSON header mapping tensor
// names to dtype/shape/byte ranges, then the raw data block. Checkpoints may
// be a single container file or several shards tied together by an index
// manifest. Shard files are memory-mapped lazily so tensor reads are
// zero-copy where the caller's dtype allows it.
package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/ember/internal/dtype"
)

// Header sizes beyond this are treated as corruption rather than attempted.
const maxHeaderSize = 256 << 20

// Entry locates one tensor inside its owning shard.
type Entry struct {
	Name  string
	DType dtype.DType
	Shape []int
	Begin int64 // offsets into the shard's data block
	End   int64
	Shard *Shard
}

// ByteLen returns the length of the tensor's byte range.
func (e Entry) ByteLen() int64 { return e.End - e.Begin }

// Manifest is the merged tensor table of a checkpoint.
type Manifest map[string]Entry

// Names returns the tensor names in sorted order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// parseShard reads and validates one container file's header. The data block
// is not touched; mapping happens on first tensor access.
func parseShard(path string) (*Shard, []Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := st.Size()
	if size < 8 {
		return nil, nil, fmt.Errorf("%w: %s: file too small for header length", ErrMalformedContainer, path)
	}

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedContainer, path, err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	if headerLen > maxHeaderSize || int64(headerLen) > size-8 {
		return nil, nil, fmt.Errorf("%w: %s: header length %d exceeds file size %d", ErrMalformedContainer, path, headerLen, size)
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: truncated header: %v", ErrMalformedContainer, path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedContainer, path, err)
	}
	delete(raw, "__metadata__")

	shard := &Shard{
		Path:      path,
		Size:      size,
		DataStart: 8 + int64(headerLen),
	}
	dataSize := size - shard.DataStart

	entries := make([]Entry, 0, len(raw))
	for name, msg := range raw {
		if !utf8.ValidString(name) {
			return nil, nil, fmt.Errorf("%w: %s: tensor name is not valid UTF-8", ErrMalformedContainer, path)
		}
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: tensor %s: %v", ErrMalformedContainer, path, name, err)
		}
		dt, ok := dtype.Parse(th.DType)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s: tensor %s: unrecognized dtype %q", ErrMalformedContainer, path, name, th.DType)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[0] < 0 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, nil, fmt.Errorf("%w: %s: tensor %s: invalid data_offsets", ErrMalformedContainer, path, name)
		}
		begin, end := th.DataOffsets[0], th.DataOffsets[1]
		if end > dataSize {
			return nil, nil, &OutOfBoundsError{Name: name, Begin: begin, End: end, DataSize: dataSize}
		}
		want, err := dtype.ByteSize(dt, th.Shape)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: tensor %s: %v", ErrMalformedContainer, path, name, err)
		}
		if int64(want) != end-begin {
			return nil, nil, &SizeMismatchError{
				Name:     name,
				DType:    dt,
				Shape:    th.Shape,
				Declared: end - begin,
				Expected: int64(want),
			}
		}
		entries = append(entries, Entry{
			Name:  name,
			DType: dt,
			Shape: th.Shape,
			Begin: begin,
			End:   end,
			Shard: shard,
		})
	}

	if err := checkOverlap(entries); err != nil {
		return nil, nil, err
	}
	return shard, entries, nil
}

// checkOverlap rejects any pair of tensors whose byte ranges intersect.
func checkOverlap(entries []Entry) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Begin != sorted[j].Begin {
			return sorted[i].Begin < sorted[j].Begin
		}
		return sorted[i].Name < sorted[j].Name
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Begin < sorted[i-1].End {
			return &OverlapError{Name: sorted[i].Name, Other: sorted[i-1].Name}
		}
	}
	return nil
}
