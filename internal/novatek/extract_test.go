package novatek

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGpsMP4 assembles a minimal container the way the firmware does:
// an ftyp atom, a moov holding the gps chunk descriptor, then one free
// carrier atom per record payload.
func buildGpsMP4(payloads [][]byte) []byte {
	ftypLen := 8
	gpsDirLen := 8 + gpsDirHeaderLen + gpsDirEntryLen*len(payloads)
	moovLen := 8 + gpsDirLen

	carrierOff := ftypLen + moovLen
	offsets := make([]uint32, len(payloads))
	sizes := make([]uint32, len(payloads))
	pos := carrierOff
	for i, p := range payloads {
		offsets[i] = uint32(pos)
		sizes[i] = uint32(12 + len(p))
		pos += 12 + len(p)
	}

	var buf bytes.Buffer

	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr, uint32(ftypLen))
	copy(hdr[4:], "ftyp")
	buf.Write(hdr)

	binary.BigEndian.PutUint32(hdr, uint32(moovLen))
	copy(hdr[4:], "moov")
	buf.Write(hdr)

	binary.BigEndian.PutUint32(hdr, uint32(gpsDirLen))
	copy(hdr[4:], gpsDirType)
	buf.Write(hdr)
	buf.Write(make([]byte, gpsDirHeaderLen))
	entry := make([]byte, gpsDirEntryLen)
	for i := range payloads {
		binary.BigEndian.PutUint32(entry, offsets[i])
		binary.BigEndian.PutUint32(entry[4:], sizes[i])
		buf.Write(entry)
	}

	for i, p := range payloads {
		binary.BigEndian.PutUint32(hdr, sizes[i])
		copy(hdr[4:], carrierType)
		buf.Write(hdr)
		buf.WriteString(carrierMagic)
		buf.Write(p)
	}

	return buf.Bytes()
}

func recordPayloads(start time.Time, n int) [][]byte {
	payloads := make([][]byte, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Second)
		rec := v1Record(ts, 'N', 'E', 4807.038+float32(i)*0.01, 1131.000, 10, 90)
		payloads[i] = v1Payload(rec)
	}
	return payloads
}

func TestExtractTrack(t *testing.T) {
	start := time.Date(2017, 8, 12, 10, 20, 31, 0, time.UTC)
	data := buildGpsMP4(recordPayloads(start, 5))

	track, report, err := ExtractTrack(bytes.NewReader(data), int64(len(data)), "front_F.mp4", Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, report.CarrierAtoms)
	assert.Equal(t, 5, report.Decoded)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Leading)
	assert.Empty(t, report.Warnings)

	require.Len(t, track.Fixes, 5)
	assert.Equal(t, "front_F.mp4", track.File)
	// First record at start minus the one second clock correction.
	assert.Equal(t, start.Add(-time.Second), track.VideoStart)
	assert.Equal(t, start.Add(-time.Second), track.Start())
	for i := 1; i < len(track.Fixes); i++ {
		assert.Equal(t, time.Second, track.Fixes[i].Time.Sub(track.Fixes[i-1].Time))
	}
}

func TestExtractTrackLeadingUndecodable(t *testing.T) {
	start := time.Date(2017, 8, 12, 10, 20, 31, 0, time.UTC)
	payloads := recordPayloads(start, 3)
	// The camera rolled for two records before GPS lock.
	noLock := make([]byte, 64)
	payloads = append([][]byte{noLock, noLock}, payloads...)

	data := buildGpsMP4(payloads)
	track, report, err := ExtractTrack(bytes.NewReader(data), int64(len(data)), "a.mp4", Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Leading)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 3, report.Decoded)
	require.Len(t, track.Fixes, 3)

	// Video start shifts back one record interval per leading record.
	firstFix := start.Add(-time.Second)
	assert.Equal(t, firstFix.Add(-2*time.Second), track.VideoStart)
}

func TestExtractTrackBadCarrierAmongGood(t *testing.T) {
	start := time.Date(2017, 8, 12, 10, 20, 31, 0, time.UTC)
	payloads := recordPayloads(start, 3)
	data := buildGpsMP4(payloads)

	// Corrupt the second carrier's magic in place.
	secondOff := len(data) - 3*(12+64) + (12 + 64)
	copy(data[secondOff+8:secondOff+12], "XXXX")

	track, report, err := ExtractTrack(bytes.NewReader(data), int64(len(data)), "a.mp4", Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Decoded)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, track.Fixes, 2)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "magic")
}

func TestExtractTrackMidFileUndecodableRecord(t *testing.T) {
	start := time.Date(2017, 8, 12, 10, 20, 31, 0, time.UTC)
	good := recordPayloads(start, 3)
	// A garbage body behind an intact carrier header, surrounded by
	// decodable records.
	payloads := [][]byte{good[0], good[1], make([]byte, 64), good[2]}
	data := buildGpsMP4(payloads)

	track, report, err := ExtractTrack(bytes.NewReader(data), int64(len(data)), "a.mp4", Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Decoded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Leading)
	assert.Len(t, track.Fixes, 3)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "undecodable")
}

func TestExtractTrackNoGpsAtom(t *testing.T) {
	var buf bytes.Buffer
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr, 8)
	copy(hdr[4:], "ftyp")
	buf.Write(hdr)
	binary.BigEndian.PutUint32(hdr, 16)
	copy(hdr[4:], "moov")
	buf.Write(hdr)
	binary.BigEndian.PutUint32(hdr, 8)
	copy(hdr[4:], "mvhd")
	buf.Write(hdr)

	data := buf.Bytes()
	track, report, err := ExtractTrack(bytes.NewReader(data), int64(len(data)), "a.mp4", Options{})
	require.NoError(t, err)
	assert.True(t, track.Empty())
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "no GPS data")
}

func TestExtractTrackNoMoov(t *testing.T) {
	var buf bytes.Buffer
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr, 8)
	copy(hdr[4:], "ftyp")
	buf.Write(hdr)

	data := buf.Bytes()
	_, _, err := ExtractTrack(bytes.NewReader(data), int64(len(data)), "a.mp4", Options{})
	assert.ErrorIs(t, err, entity.ErrMalformedContainer)
}

func TestExtractTrackEmptyDirEntry(t *testing.T) {
	start := time.Date(2017, 8, 12, 10, 20, 31, 0, time.UTC)
	payloads := recordPayloads(start, 2)
	data := buildGpsMP4(payloads)

	// Zero out the first directory entry; firmware writes these for
	// seconds without a record.
	entryOff := 8 + 8 + 8 + gpsDirHeaderLen
	for i := 0; i < gpsDirEntryLen; i++ {
		data[entryOff+i] = 0
	}

	track, report, err := ExtractTrack(bytes.NewReader(data), int64(len(data)), "a.mp4", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.CarrierAtoms)
	assert.Equal(t, 1, report.Decoded)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, track.Fixes, 1)
}
