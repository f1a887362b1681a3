package scoring

import (
	"math"

	"github.com/twpayne/go-geom"
)

const earthRadiusMiles = 3958.8

// haversineMiles returns the great-circle distance in miles between two
// lng/lat coordinates (geom.Coord is X=longitude, Y=latitude).
func haversineMiles(a, b geom.Coord) float64 {
	const deg = math.Pi / 180
	lat1, lng1 := a.Y()*deg, a.X()*deg
	lat2, lng2 := b.Y()*deg, b.X()*deg

	dLat := lat2 - lat1
	dLng := lng2 - lng1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}
