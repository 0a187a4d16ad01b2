package mp4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func atom(typ string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(8+len(payload)))
	copy(buf[4:8], typ)
	copy(buf[8:], payload)
	return buf
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestTopLevelPartitionsFile(t *testing.T) {
	data := concat(
		atom("ftyp", []byte("isom")),
		atom("mdat", make([]byte, 32)),
		atom("moov", nil),
	)
	r := NewReader(bytes.NewReader(data), int64(len(data)))

	var atoms []Atom
	cur := r.TopLevel()
	for {
		a, ok := cur.Next()
		if !ok {
			break
		}
		atoms = append(atoms, a)
	}
	require.NoError(t, cur.Err())
	require.Len(t, atoms, 3)

	assert.Equal(t, "ftyp", atoms[0].Type)
	assert.Equal(t, "mdat", atoms[1].Type)
	assert.Equal(t, "moov", atoms[2].Type)

	// Atoms partition the file with no gaps.
	assert.Equal(t, int64(0), atoms[0].Offset)
	for i := 1; i < len(atoms); i++ {
		assert.Equal(t, atoms[i-1].End(), atoms[i].Offset)
	}
	assert.Equal(t, int64(len(data)), atoms[2].End())
}

func TestChildrenOfContainer(t *testing.T) {
	moov := atom("moov", concat(
		atom("mvhd", make([]byte, 16)),
		atom("trak", nil),
	))
	data := concat(atom("ftyp", nil), moov)
	r := NewReader(bytes.NewReader(data), int64(len(data)))

	cur := r.TopLevel()
	_, ok := cur.Next() // ftyp
	require.True(t, ok)
	parent, ok := cur.Next()
	require.True(t, ok)
	require.Equal(t, "moov", parent.Type)
	require.True(t, parent.IsContainer())

	kids := r.Children(parent)
	first, ok := kids.Next()
	require.True(t, ok)
	assert.Equal(t, "mvhd", first.Type)
	second, ok := kids.Next()
	require.True(t, ok)
	assert.Equal(t, "trak", second.Type)
	_, ok = kids.Next()
	assert.False(t, ok)
	assert.NoError(t, kids.Err())
}

func TestZeroSizeExtendsToEnd(t *testing.T) {
	last := make([]byte, 8+24)
	binary.BigEndian.PutUint32(last, 0)
	copy(last[4:8], "mdat")
	data := concat(atom("ftyp", nil), last)

	r := NewReader(bytes.NewReader(data), int64(len(data)))
	cur := r.TopLevel()
	_, ok := cur.Next()
	require.True(t, ok)
	a, ok := cur.Next()
	require.True(t, ok)
	assert.Equal(t, "mdat", a.Type)
	assert.Equal(t, int64(len(data)), a.End())
	assert.Equal(t, int64(24), a.PayloadSize())

	_, ok = cur.Next()
	assert.False(t, ok)
	assert.NoError(t, cur.Err())
}

func TestExtendedSize(t *testing.T) {
	payload := make([]byte, 40)
	ext := make([]byte, 16+len(payload))
	binary.BigEndian.PutUint32(ext, 1)
	copy(ext[4:8], "mdat")
	binary.BigEndian.PutUint64(ext[8:16], uint64(len(ext)))
	copy(ext[16:], payload)

	data := concat(atom("ftyp", nil), ext)
	r := NewReader(bytes.NewReader(data), int64(len(data)))
	cur := r.TopLevel()
	_, ok := cur.Next()
	require.True(t, ok)
	a, ok := cur.Next()
	require.True(t, ok)
	assert.Equal(t, int64(len(ext)), a.Size)
	assert.Equal(t, int64(len(payload)), a.PayloadSize())
	assert.Equal(t, a.Offset+16, a.PayloadOffset())
}

func TestTruncatedExtendedHeader(t *testing.T) {
	bad := make([]byte, 10)
	binary.BigEndian.PutUint32(bad, 1)
	copy(bad[4:8], "mdat")
	data := concat(atom("ftyp", nil), bad)

	r := NewReader(bytes.NewReader(data), int64(len(data)))
	cur := r.TopLevel()
	_, ok := cur.Next()
	require.True(t, ok)
	_, ok = cur.Next()
	require.False(t, ok)
	assert.ErrorIs(t, cur.Err(), entity.ErrMalformedContainer)
}

func TestChildExceedsParent(t *testing.T) {
	// Child declares more bytes than remain in the moov payload.
	child := make([]byte, 16)
	binary.BigEndian.PutUint32(child, 1000)
	copy(child[4:8], "mvhd")
	data := atom("moov", child)

	r := NewReader(bytes.NewReader(data), int64(len(data)))
	cur := r.TopLevel()
	parent, ok := cur.Next()
	require.True(t, ok)

	kids := r.Children(parent)
	_, ok = kids.Next()
	require.False(t, ok)
	assert.ErrorIs(t, kids.Err(), entity.ErrMalformedContainer)
}

func TestSizeSmallerThanHeader(t *testing.T) {
	bad := make([]byte, 8)
	binary.BigEndian.PutUint32(bad, 5)
	copy(bad[4:8], "mdat")

	r := NewReader(bytes.NewReader(bad), int64(len(bad)))
	cur := r.TopLevel()
	_, ok := cur.Next()
	require.False(t, ok)
	assert.ErrorIs(t, cur.Err(), entity.ErrMalformedContainer)
}

func TestTrailingGarbage(t *testing.T) {
	data := concat(atom("ftyp", nil), []byte{1, 2, 3})

	r := NewReader(bytes.NewReader(data), int64(len(data)))
	cur := r.TopLevel()
	_, ok := cur.Next()
	require.True(t, ok)
	_, ok = cur.Next()
	require.False(t, ok)
	assert.ErrorIs(t, cur.Err(), entity.ErrMalformedContainer)
}

func TestReadRangeBounds(t *testing.T) {
	data := atom("ftyp", []byte("isom"))
	r := NewReader(bytes.NewReader(data), int64(len(data)))

	got, err := r.ReadRange(8, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("isom"), got)

	_, err = r.ReadRange(8, 100)
	assert.ErrorIs(t, err, entity.ErrMalformedContainer)

	_, err = r.ReadRange(-1, 4)
	assert.ErrorIs(t, err, entity.ErrMalformedContainer)
}
