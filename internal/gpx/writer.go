// Package gpx writes GPX 1.0 track files, the sidecar format the original
// dashcam tooling produced alongside its images.
package gpx

import (
	"fmt"
	"io"
	"strings"

	"github.com/edc22osm/viofo2jpg/internal/domain/entity"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Write renders a track as a single-segment GPX document.
func Write(w io.Writer, name string, track entity.Track) error {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<gpx version="1.0"` + "\n")
	b.WriteString("\tcreator=\"viofo2jpg\"\n")
	b.WriteString(`
	xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
	xmlns="http://www.topografix.com/GPX/1/0"
	xsi:schemaLocation="http://www.topografix.com/GPX/1/0 http://www.topografix.com/GPX/1/0/gpx.xsd">
`)
	fmt.Fprintf(&b, "\t<name>%s</name>\n", xmlEscape(name))
	fmt.Fprintf(&b, "\t<trk><name>%s</name><trkseg>\n", xmlEscape(name))

	for _, f := range track.Fixes {
		fmt.Fprintf(&b,
			"\t\t<trkpt lat=\"%f\" lon=\"%f\"><time>%s</time><speed>%f</speed><course>%f</course></trkpt>\n",
			f.Latitude, f.Longitude, f.Time.UTC().Format(timeLayout), f.Speed, f.Bearing)
	}

	b.WriteString("\t</trkseg></trk>\n</gpx>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}
