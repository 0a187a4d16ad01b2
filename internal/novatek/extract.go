package novatek

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
	"github.com/edc22osm/viofo2jpg/internal/mp4"
)

const (
	gpsDirType   = "gps " // chunk descriptor atom inside moov
	carrierType  = "free" // atom type carrying each GPS record
	carrierMagic = "GPS " // first four payload bytes of a carrier atom

	// The chunk descriptor payload starts with an 8-byte header before
	// its {offset,size} entry table.
	gpsDirHeaderLen = 8
	gpsDirEntryLen  = 8

	// Firmware writes one GPS record per second of video.
	recordInterval = time.Second
)

// Options controls track extraction.
type Options struct {
	Deobfuscate     bool
	RemoveOutliers  bool
	MergeDuplicates bool
}

// Report summarizes what extraction found in one file. Warnings carry
// per-record problems that did not abort the file.
type Report struct {
	// CarrierAtoms counts GPS record carriers found, either free atoms
	// referenced by the chunk directory or TS private stream frames.
	CarrierAtoms int
	Decoded      int
	Skipped      int
	// Leading counts undecodable records before the first decodable one:
	// the camera was rolling before GPS lock, which shifts the inferred
	// video start time back by one record interval each.
	Leading          int
	OutliersRemoved  int
	DuplicatesMerged int
	Warnings         []string
}

// ExtractTrack decodes the GPS records embedded in one recording into a
// track. MP4/MOV files are walked through their box tree to the vendor
// GPS chunk directory; files carrying the MPEG-TS sync pattern go through
// the transport stream scan instead. A file without GPS data yields an
// empty track and a warning, not an error; an unparseable container fails
// with entity.ErrMalformedContainer.
func ExtractTrack(r io.ReaderAt, size int64, path string, opts Options) (entity.Track, Report, error) {
	if isTransportStream(r, size) {
		return extractTSTrack(r, size, path, opts)
	}
	return extractMoovTrack(r, size, path, opts)
}

func extractMoovTrack(r io.ReaderAt, size int64, path string, opts Options) (entity.Track, Report, error) {
	var report Report

	rd := mp4.NewReader(r, size)
	dir, found, err := findGpsDir(rd)
	if err != nil {
		return entity.Track{File: path}, report, fmt.Errorf("%s: %w", path, err)
	}
	if !found {
		report.Warnings = append(report.Warnings, "no gps chunk descriptor atom, file has no GPS data")
		return entity.Track{File: path}, report, nil
	}

	table, err := rd.Payload(dir)
	if err != nil {
		return entity.Track{File: path}, report, fmt.Errorf("%s: %w", path, err)
	}

	dec := Decoder{Deobfuscate: opts.Deobfuscate}
	builder := NewTrackBuilder(path)
	var firstRecordTime time.Time

	for off := gpsDirHeaderLen; off+gpsDirEntryLen <= len(table); off += gpsDirEntryLen {
		pos := binary.BigEndian.Uint32(table[off:])
		sz := binary.BigEndian.Uint32(table[off+4:])
		if pos == 0 || sz == 0 {
			report.Skipped++
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("empty gps directory entry at table offset %d", off))
			continue
		}
		report.CarrierAtoms++

		data, err := rd.ReadRange(int64(pos), int64(sz))
		if err != nil {
			report.Skipped++
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("gps carrier atom at %#x unreadable: %v", pos, err))
			continue
		}
		if reason, ok := checkCarrier(data, sz); !ok {
			report.Skipped++
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("gps carrier atom at %#x: %s", pos, reason))
			continue
		}

		fix, _, err := dec.Decode(data[12:])
		if err != nil {
			report.Skipped++
			if firstRecordTime.IsZero() {
				// Undecodable records before the first good one are the
				// camera rolling without GPS lock, not corruption.
				report.Leading++
			} else {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("gps record at %#x undecodable: %v", pos, err))
			}
			continue
		}
		report.Decoded++
		if firstRecordTime.IsZero() {
			firstRecordTime = fix.Time
		}
		builder.Add(fix)
	}

	if report.Decoded == 0 && report.CarrierAtoms > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%v: %d carrier atoms, none decodable", entity.ErrUnsupportedRecordFormat, report.CarrierAtoms))
	}

	return finishTrack(builder, &report, firstRecordTime, opts), report, nil
}

// finishTrack derives the video start time from the first decoded record
// and the leading no-lock records, then builds the track and applies the
// optional cleanup passes.
func finishTrack(builder *TrackBuilder, report *Report, firstRecordTime time.Time, opts Options) entity.Track {
	var videoStart time.Time
	if !firstRecordTime.IsZero() {
		videoStart = firstRecordTime.Add(-time.Duration(report.Leading) * recordInterval)
	}

	track := builder.Build(videoStart)
	if opts.RemoveOutliers {
		track, report.OutliersRemoved = RemoveOutliers(track)
	}
	if opts.MergeDuplicates {
		track, report.DuplicatesMerged = MergeDuplicates(track)
	}
	return track
}

// findGpsDir locates the gps chunk descriptor atom inside moov. A file
// without any moov atom is not an MP4/MOV container at all.
func findGpsDir(rd *mp4.Reader) (mp4.Atom, bool, error) {
	top := rd.TopLevel()
	sawMoov := false
	for {
		atom, ok := top.Next()
		if !ok {
			break
		}
		if atom.Type != "moov" {
			continue
		}
		sawMoov = true
		children := rd.Children(atom)
		for {
			child, ok := children.Next()
			if !ok {
				break
			}
			if child.Type == gpsDirType {
				return child, true, nil
			}
		}
		if err := children.Err(); err != nil {
			return mp4.Atom{}, false, err
		}
	}
	if err := top.Err(); err != nil {
		return mp4.Atom{}, false, err
	}
	if !sawMoov {
		return mp4.Atom{}, false, fmt.Errorf("%w: no moov atom", entity.ErrMalformedContainer)
	}
	return mp4.Atom{}, false, nil
}

// checkCarrier sanity-checks a carrier atom's own header against the
// directory entry that referenced it.
func checkCarrier(data []byte, declaredSize uint32) (string, bool) {
	if len(data) < 12 {
		return "too short for a carrier header", false
	}
	ownSize := binary.BigEndian.Uint32(data[:4])
	if ownSize != declaredSize {
		return fmt.Sprintf("directory size %d disagrees with atom size %d", declaredSize, ownSize), false
	}
	if string(data[4:8]) != carrierType {
		return fmt.Sprintf("unexpected atom type %q", data[4:8]), false
	}
	if string(data[8:12]) != carrierMagic {
		return fmt.Sprintf("missing %q magic", carrierMagic), false
	}
	return "", true
}
