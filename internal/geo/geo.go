// Package geo holds the small amount of spherical geometry the pipeline
// needs: great-circle distances, destination points and bearing arithmetic.
package geo

import "math"

const earthRadius = 6371e3 // meters

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// Haversine returns the great-circle distance in meters between two
// WGS84 coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1R := toRad(lat1)
	lat2R := toRad(lat2)
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1R)*math.Cos(lat2R)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadius * 2 * math.Asin(math.Sqrt(a))
}

// Destination returns the point reached by travelling dist meters from
// (lat,lon) along the given initial bearing in degrees.
func Destination(lat, lon, bearing, dist float64) (float64, float64) {
	latR := toRad(lat)
	lonR := toRad(lon)
	brgR := toRad(bearing)
	dR := dist / earthRadius

	lat2 := math.Asin(math.Sin(latR)*math.Cos(dR) +
		math.Cos(latR)*math.Sin(dR)*math.Cos(brgR))
	lon2 := lonR + math.Atan2(
		math.Sin(brgR)*math.Sin(dR)*math.Cos(latR),
		math.Cos(dR)-math.Sin(latR)*math.Sin(lat2),
	)
	return toDeg(lat2), toDeg(lon2)
}

// NormalizeBearing wraps a bearing into [0,360).
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// DisplaceBehind moves a point one meter against its bearing of travel
// and then one meter along the corrected bearing. With a 180 degree
// correction this lands two meters behind the original point, which keeps
// front and rear camera images from the same position apart on Mapillary.
func DisplaceBehind(lat, lon, bearing, correction float64) (float64, float64) {
	if correction == 0 {
		return lat, lon
	}
	lat2, lon2 := Destination(lat, lon, NormalizeBearing(bearing+180), 1)
	return Destination(lat2, lon2, NormalizeBearing(bearing+correction), 1)
}

// Centroid returns the spherical center of a set of coordinates.
func Centroid(lats, lons []float64) (float64, float64) {
	if len(lats) == 0 {
		return 0, 0
	}
	var x, y, z float64
	for i := range lats {
		latR := toRad(lats[i])
		lonR := toRad(lons[i])
		x += math.Cos(latR) * math.Cos(lonR)
		y += math.Cos(latR) * math.Sin(lonR)
		z += math.Sin(latR)
	}
	n := float64(len(lats))
	x /= n
	y /= n
	z /= n

	lon := math.Atan2(y, x)
	lat := math.Atan2(z, math.Sqrt(x*x+y*y))
	return toDeg(lat), toDeg(lon)
}
