package emitter

import (
	"errors"
	"fmt"
)

// ErrBufferFull is reported once an emit does not fit in the code buffer.
var ErrBufferFull = errors.New("code buffer full")

// DefaultCodeBufferSize is the code buffer size used when none is configured.
const DefaultCodeBufferSize = 8 * 1024 * 1024

// CodeBuffer is the memory region generated code is written to.
type CodeBuffer struct {
	mem  []byte
	used int
}

// NewCodeBuffer maps a code buffer of size bytes.
func NewCodeBuffer(size int) (*CodeBuffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid code buffer size %d", size)
	}

	mem, err := mapCode(size)
	if err != nil {
		return nil, fmt.Errorf("failed to map code buffer: %w", err)
	}

	return &CodeBuffer{mem: mem}, nil
}

// Bytes returns the code written so far.
func (b *CodeBuffer) Bytes() []byte {
	return b.mem[:b.used]
}

// Used returns the number of bytes written.
func (b *CodeBuffer) Used() int {
	return b.used
}

// Capacity returns the total size of the buffer.
func (b *CodeBuffer) Capacity() int {
	return len(b.mem)
}

// Remaining returns the number of bytes still free.
func (b *CodeBuffer) Remaining() int {
	return len(b.mem) - b.used
}

// Reset discards all code, allowing the memory to be reused.
func (b *CodeBuffer) Reset() {
	b.used = 0
}

// Free releases the buffer. The buffer must not be used afterwards.
func (b *CodeBuffer) Free() error {
	if b.mem == nil {
		return nil
	}
	err := unmapCode(b.mem)
	b.mem = nil
	b.used = 0
	return err
}
