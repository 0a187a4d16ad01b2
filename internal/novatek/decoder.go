// Package novatek decodes the GPS telemetry Novatek-based dashcam firmware
// embeds in its MP4 files, and assembles the decoded records into tracks.
package novatek

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
)

// Layout identifies a known firmware record layout.
type Layout int

const (
	LayoutUnknown Layout = iota
	// LayoutV1 is the common Novatek layout: six little-endian uint32
	// time fields, an 'A' active marker with hemisphere bytes, then four
	// little-endian float32s (lat, lon, speed in knots, bearing).
	LayoutV1
	// LayoutV2 is the AZDome variant: the payload is XORed with 0xAA and
	// carries ASCII fields at fixed offsets.
	LayoutV2
)

func (l Layout) String() string {
	switch l {
	case LayoutV1:
		return "novatek"
	case LayoutV2:
		return "azdome"
	default:
		return "unknown"
	}
}

const (
	knotsToMetersPerSecond = 0.514444

	// The record body spans 44 bytes; its active/hemisphere marker sits
	// 24 bytes in, after the six time fields.
	v1RecordLen    = 44
	v1MarkerOffset = 24

	// The marker scan starts this many bytes before the payload end,
	// allowing for trailing data after the record.
	markerTailSlack = 20

	v2MinPayload = 71
)

// DetectLayout inspects a GPS carrier payload and returns the recognized
// layout together with the byte offset of the record inside the payload.
func DetectLayout(payload []byte) (Layout, int) {
	if len(payload) > 0 && (payload[0] == 0x05 || payload[0] == 0xF0) {
		return LayoutV2, 0
	}

	// Novatek records are located by scanning backwards for the
	// 'A'{N,S}{E,W} marker rather than assuming a fixed position.
	for ptr := len(payload) - markerTailSlack; ptr > 0; ptr-- {
		if ptr+2 >= len(payload) || ptr < v1MarkerOffset {
			continue
		}
		if payload[ptr] != 'A' {
			continue
		}
		if payload[ptr+1] != 'N' && payload[ptr+1] != 'S' {
			continue
		}
		if payload[ptr+2] != 'E' && payload[ptr+2] != 'W' {
			continue
		}
		return LayoutV1, ptr - v1MarkerOffset
	}
	return LayoutUnknown, -1
}

// Decoder turns raw GPS carrier payloads into fixes.
type Decoder struct {
	// Deobfuscate undoes the coordinate obfuscation some firmware applies
	// for its bundled player (JMSPlayer files).
	Deobfuscate bool
}

// Decode decodes one carrier payload into a fix. Records the firmware
// marked inactive decode with Valid=false. Payloads matching no known
// layout fail with entity.ErrUnsupportedRecordFormat.
func (d Decoder) Decode(payload []byte) (entity.GpsFix, Layout, error) {
	layout, off := DetectLayout(payload)
	switch layout {
	case LayoutV1:
		fix, err := d.decodeV1(payload, off)
		return fix, layout, err
	case LayoutV2:
		fix, err := decodeV2(payload)
		return fix, layout, err
	default:
		return entity.GpsFix{}, layout, fmt.Errorf(
			"%w: no record marker in %d byte payload", entity.ErrUnsupportedRecordFormat, len(payload))
	}
}

func (d Decoder) decodeV1(payload []byte, off int) (entity.GpsFix, error) {
	if off < 0 || off+v1RecordLen > len(payload) {
		return entity.GpsFix{}, fmt.Errorf(
			"%w: truncated novatek record at offset %d", entity.ErrUnsupportedRecordFormat, off)
	}

	le := binary.LittleEndian
	hour := int(le.Uint32(payload[off:]))
	minute := int(le.Uint32(payload[off+4:]))
	second := int(le.Uint32(payload[off+8:]))
	year := int(le.Uint32(payload[off+12:]))
	month := int(le.Uint32(payload[off+16:]))
	day := int(le.Uint32(payload[off+20:]))

	active := payload[off+24]
	latHemi := payload[off+25]
	lonHemi := payload[off+26]
	// one unused byte at off+27

	rawLat := float64(math.Float32frombits(le.Uint32(payload[off+28:])))
	rawLon := float64(math.Float32frombits(le.Uint32(payload[off+32:])))
	speed := float64(math.Float32frombits(le.Uint32(payload[off+36:])))
	bearing := float64(math.Float32frombits(le.Uint32(payload[off+40:])))

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return entity.GpsFix{}, fmt.Errorf(
			"%w: implausible record time %04d-%02d-%02d %02d:%02d:%02d",
			entity.ErrUnsupportedRecordFormat, 2000+year, month, day, hour, minute, second)
	}

	if d.Deobfuscate {
		rawLat = (rawLat - 187.98217) / 3
		rawLon = (rawLon - 2199.19876) * 0.5
	}

	fix := entity.GpsFix{
		// The device clock runs one second ahead of its GPS data.
		Time:      time.Date(2000+year, time.Month(month), day, hour, minute, second, 0, time.UTC).Add(-time.Second),
		Latitude:  fixCoordinate(latHemi, rawLat, d.Deobfuscate),
		Longitude: fixCoordinate(lonHemi, rawLon, d.Deobfuscate),
		Speed:     speed * knotsToMetersPerSecond,
		Bearing:   bearing,
		Valid:     active == 'A',
	}
	if fix.Valid && !fix.InBounds() {
		fix.Valid = false
	}
	return fix, nil
}

// fixCoordinate converts a firmware coordinate to signed decimal degrees.
// Unobfuscated values are stored as degrees*100 plus decimal minutes
// (DDDmm.mmmm); deobfuscated values are already decimal degrees.
func fixCoordinate(hemi byte, raw float64, alreadyDegrees bool) float64 {
	coord := raw
	if !alreadyDegrees {
		minutes := math.Mod(raw, 100)
		degrees := raw - minutes
		coord = degrees/100 + minutes/60
	}
	if hemi == 'S' || hemi == 'W' {
		return -coord
	}
	return coord
}

func decodeV2(payload []byte) (entity.GpsFix, error) {
	if len(payload) < v2MinPayload {
		return entity.GpsFix{}, fmt.Errorf(
			"%w: azdome payload of %d bytes too short", entity.ErrUnsupportedRecordFormat, len(payload))
	}

	buf := make([]byte, len(payload))
	for i, b := range payload {
		buf[i] = b ^ 0xAA
	}

	year, err1 := strconv.Atoi(string(buf[14:18]))
	month, err2 := strconv.Atoi(string(buf[18:20]))
	day, err3 := strconv.Atoi(string(buf[20:22]))
	hour, err4 := strconv.Atoi(string(buf[22:24]))
	minute, err5 := strconv.Atoi(string(buf[24:26]))
	second, err6 := strconv.Atoi(string(buf[26:28]))

	latHemi := buf[44]
	rawLat, err7 := strconv.ParseFloat(string(buf[45:53]), 64)
	lonHemi := buf[53]
	rawLon, err8 := strconv.ParseFloat(string(buf[54:62]), 64)
	speedKmh, err9 := strconv.ParseFloat(string(buf[69:71]), 64)

	for _, err := range []error{err1, err2, err3, err4, err5, err6, err7, err8, err9} {
		if err != nil {
			return entity.GpsFix{}, fmt.Errorf("%w: bad azdome field: %v", entity.ErrUnsupportedRecordFormat, err)
		}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return entity.GpsFix{}, fmt.Errorf(
			"%w: implausible azdome date %04d-%02d-%02d", entity.ErrUnsupportedRecordFormat, 2000+year, month, day)
	}

	fix := entity.GpsFix{
		Time:      time.Date(2000+year, time.Month(month), day, hour, minute, second, 0, time.UTC),
		Latitude:  fixCoordinate(latHemi, rawLat/10000, false),
		Longitude: fixCoordinate(lonHemi, rawLon/1000, false),
		// Speed resolution on this firmware is whole km/h.
		Speed: speedKmh / 3.6,
		Valid: true,
	}
	if !fix.InBounds() {
		fix.Valid = false
	}
	return fix, nil
}
