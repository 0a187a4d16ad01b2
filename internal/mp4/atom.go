// Package mp4 walks the box (atom) tree of an ISO-style media container.
// It knows nothing about GPS payloads; callers match atom types and read
// the payloads they care about.
package mp4

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
)

const (
	headerLen    = 8
	extHeaderLen = 16
)

// containerTypes are the atom types whose payload is itself a sequence of
// atoms. Unknown types are yielded opaquely and skipped by offset.
var containerTypes = map[string]bool{
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"stbl": true,
	"udta": true,
}

// Atom is one node of the box tree. It references its byte range in the
// underlying reader; payload bytes are not copied.
type Atom struct {
	Type   string
	Offset int64 // of the atom header
	Size   int64 // total size including header
	header int64 // 8, or 16 for 64-bit sizes
}

func (a Atom) PayloadOffset() int64 { return a.Offset + a.header }
func (a Atom) PayloadSize() int64   { return a.Size - a.header }
func (a Atom) End() int64           { return a.Offset + a.Size }

func (a Atom) IsContainer() bool { return containerTypes[a.Type] }

// Reader walks atoms inside a fixed-size byte range, typically an open file.
type Reader struct {
	r    io.ReaderAt
	size int64
}

func NewReader(r io.ReaderAt, size int64) *Reader {
	return &Reader{r: r, size: size}
}

// TopLevel returns a cursor over the file's top-level atoms.
func (r *Reader) TopLevel() *Cursor {
	return &Cursor{r: r, pos: 0, end: r.size}
}

// Children returns a cursor over the child atoms of a container-type atom.
func (r *Reader) Children(a Atom) *Cursor {
	return &Cursor{r: r, pos: a.PayloadOffset(), end: a.End()}
}

// Payload reads and returns the payload bytes of an atom.
func (r *Reader) Payload(a Atom) ([]byte, error) {
	buf := make([]byte, a.PayloadSize())
	if _, err := r.r.ReadAt(buf, a.PayloadOffset()); err != nil {
		return nil, fmt.Errorf("read atom %q payload at %#x: %w", a.Type, a.PayloadOffset(), err)
	}
	return buf, nil
}

// ReadRange reads an arbitrary byte range of the container, bounds-checked
// against the container size.
func (r *Reader) ReadRange(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > r.size {
		return nil, fmt.Errorf("%w: range [%#x,%#x) outside container of %d bytes",
			entity.ErrMalformedContainer, off, off+n, r.size)
	}
	buf := make([]byte, n)
	if _, err := r.r.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("read range at %#x: %w", off, err)
	}
	return buf, nil
}

// Cursor lazily yields the atoms of one nesting level. After Next returns
// false, Err reports whether iteration stopped on malformed data.
type Cursor struct {
	r   *Reader
	pos int64
	end int64
	err error
}

// Next yields the next atom of this level. A declared size of zero means
// the atom extends to the end of the enclosing range; a declared size of 1
// means a 64-bit size follows the type tag.
func (c *Cursor) Next() (Atom, bool) {
	if c.err != nil || c.pos >= c.end {
		return Atom{}, false
	}
	if c.end-c.pos < headerLen {
		c.err = fmt.Errorf("%w: %d trailing bytes at %#x, too short for an atom header",
			entity.ErrMalformedContainer, c.end-c.pos, c.pos)
		return Atom{}, false
	}

	var hdr [headerLen]byte
	if _, err := c.r.r.ReadAt(hdr[:], c.pos); err != nil {
		c.err = fmt.Errorf("read atom header at %#x: %w", c.pos, err)
		return Atom{}, false
	}

	a := Atom{
		Type:   string(hdr[4:8]),
		Offset: c.pos,
		Size:   int64(binary.BigEndian.Uint32(hdr[:4])),
		header: headerLen,
	}

	switch a.Size {
	case 0:
		// Extends to the end of the enclosing range.
		a.Size = c.end - c.pos
	case 1:
		if c.end-c.pos < extHeaderLen {
			c.err = fmt.Errorf("%w: truncated 64-bit atom header at %#x",
				entity.ErrMalformedContainer, c.pos)
			return Atom{}, false
		}
		var ext [8]byte
		if _, err := c.r.r.ReadAt(ext[:], c.pos+headerLen); err != nil {
			c.err = fmt.Errorf("read 64-bit atom size at %#x: %w", c.pos, err)
			return Atom{}, false
		}
		a.Size = int64(binary.BigEndian.Uint64(ext[:]))
		a.header = extHeaderLen
	}

	if a.Size < a.header {
		c.err = fmt.Errorf("%w: atom %q at %#x declares size %d, smaller than its header",
			entity.ErrMalformedContainer, a.Type, a.Offset, a.Size)
		return Atom{}, false
	}
	if a.End() > c.end {
		c.err = fmt.Errorf("%w: atom %q at %#x declares %d bytes, only %d remain in parent",
			entity.ErrMalformedContainer, a.Type, a.Offset, a.Size, c.end-a.Offset)
		return Atom{}, false
	}

	c.pos = a.End()
	return a, true
}

func (c *Cursor) Err() error {
	return c.err
}
