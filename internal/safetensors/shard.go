package safetensors

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shard is one checkpoint container file. The file is memory-mapped read-only
// the first time tensor bytes are requested and stays mapped until Close, so
// borrowed tensor views remain valid for the shard's lifetime.
type Shard struct {
	Path      string
	Size      int64
	DataStart int64 // offset of the data block: 8 + header length

	mu     sync.Mutex
	data   []byte
	mapped bool
}

// Bytes returns a read-only view of [begin, end) within the shard's data
// block, mapping the file on first use.
func (s *Shard) Bytes(begin, end int64) ([]byte, error) {
	if begin < 0 || end < begin {
		return nil, fmt.Errorf("shard %s: invalid range [%d, %d)", s.Path, begin, end)
	}
	off := s.DataStart + begin
	if s.DataStart+end > s.Size {
		return nil, &OutOfBoundsError{Begin: begin, End: end, DataSize: s.Size - s.DataStart}
	}
	data, err := s.ensureMapped()
	if err != nil {
		return nil, err
	}
	return data[off : s.DataStart+end], nil
}

func (s *Shard) ensureMapped() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil {
		return s.data, nil
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if s.Size > 0 {
		b, err := unix.Mmap(int(f.Fd()), 0, int(s.Size), unix.PROT_READ, unix.MAP_SHARED)
		if err == nil {
			s.data = b
			s.mapped = true
			return s.data, nil
		}
	}

	// mmap unavailable; fall back to reading the file into memory.
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	s.data = b
	return s.data, nil
}

// Contains reports whether b points into this shard's mapped bytes. Used to
// tell borrowed views from owned buffers.
func (s *Shard) Contains(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(b) == 0 || len(s.data) == 0 {
		return false
	}
	lo := uintptr(unsafe.Pointer(&s.data[0]))
	hi := lo + uintptr(len(s.data))
	p := uintptr(unsafe.Pointer(&b[0]))
	return p >= lo && p+uintptr(len(b)) <= hi
}

// Close releases the mapping. Borrowed views into this shard must not be used
// afterwards.
func (s *Shard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.mapped {
		err = unix.Munmap(s.data)
	}
	s.data = nil
	s.mapped = false
	return err
}
