package novatek

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
)

const (
	tsPacketLen = 188
	tsSyncByte  = 'G'

	// When firmware splits a record across packets it replays the last
	// bytes of the truncated frame at a stated offset in the next one.
	tsFragmentTail = 14
)

// pesPrivateStream2 opens a PES frame on private stream 2, where the
// firmware parks its navigational data.
var pesPrivateStream2 = []byte{0x00, 0x00, 0x01, 0xBF}

// isTransportStream reports whether the file is an MPEG transport stream:
// a sync byte at the start of three consecutive 188-byte packets.
func isTransportStream(r io.ReaderAt, size int64) bool {
	if size < 3*tsPacketLen {
		return false
	}
	var b [1]byte
	for _, off := range []int64{0, tsPacketLen, 2 * tsPacketLen} {
		if _, err := r.ReadAt(b[:], off); err != nil || b[0] != tsSyncByte {
			return false
		}
	}
	return true
}

// gpsPid matches the transport packet header bytes of the navigational
// PID: 0x43 with the payload unit start flag set, 0x03 for continuation
// packets of the same stream.
func gpsPid(b1, b2 byte) bool {
	return (b1 == 0x43 || b1 == 0x03) && b2 == 0x00
}

// extractTSTrack pulls GPS records out of the private data stream of a
// raw MPEG-TS recording (B4K cameras write these instead of MP4). Each
// record normally fits one PES frame; obfuscating firmware truncates the
// frame and finishes the record in the following GPS packet, so a failed
// frame decode is held as a fragment and reassembled with the next
// continuation before it counts as skipped.
func extractTSTrack(r io.ReaderAt, size int64, path string, opts Options) (entity.Track, Report, error) {
	var report Report

	dec := Decoder{Deobfuscate: opts.Deobfuscate}
	builder := NewTrackBuilder(path)
	var firstRecordTime time.Time
	var partial []byte

	add := func(fix entity.GpsFix) {
		report.Decoded++
		if firstRecordTime.IsZero() {
			firstRecordTime = fix.Time
		}
		builder.Add(fix)
	}
	skip := func(off int64, err error) {
		report.Skipped++
		if firstRecordTime.IsZero() {
			// Records before the first good one are the camera rolling
			// without GPS lock, not corruption.
			report.Leading++
		} else {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("gps record at %#x undecodable: %v", off, err))
		}
	}

	pkt := make([]byte, tsPacketLen)
	for off := int64(0); off+tsPacketLen <= size; off += tsPacketLen {
		if _, err := r.ReadAt(pkt, off); err != nil {
			return entity.Track{File: path}, report, fmt.Errorf("%s: %w", path, err)
		}
		if pkt[0] != tsSyncByte {
			return entity.Track{File: path}, report, fmt.Errorf(
				"%s: %w: lost ts sync at %#x", path, entity.ErrMalformedContainer, off)
		}
		if !gpsPid(pkt[1], pkt[2]) {
			continue
		}
		frame := pkt[4:]

		if bytes.HasPrefix(frame, pesPrivateStream2) {
			report.CarrierAtoms++
			fix, _, err := dec.Decode(frame)
			if err != nil {
				partial = append(partial[:0], frame[len(frame)-tsFragmentTail:]...)
				continue
			}
			partial = nil
			add(fix)
			continue
		}

		if partial == nil {
			continue
		}
		jump := int(frame[0]) + 1
		record := append(partial, frame[jump:]...)
		partial = nil
		fix, _, err := dec.Decode(record)
		if err != nil {
			skip(off, err)
			continue
		}
		add(fix)
	}

	if partial != nil {
		skip(size, fmt.Errorf("%w: record fragment never completed", entity.ErrUnsupportedRecordFormat))
	}

	if report.Decoded == 0 && report.CarrierAtoms > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%v: %d carrier frames, none decodable", entity.ErrUnsupportedRecordFormat, report.CarrierAtoms))
	}
	if report.CarrierAtoms == 0 {
		report.Warnings = append(report.Warnings, "no gps packets in transport stream, file has no GPS data")
	}

	return finishTrack(builder, &report, firstRecordTime, opts), report, nil
}
