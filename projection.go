package cluster

import "math"

// MercatorProjection maps longitude/latitude to spherical mercator in [0..1] range.
// x grows eastwards, y grows southwards.
func MercatorProjection(c Coordinate) (float64, float64) {
	x := c.Longitude/360.0 + 0.5
	sin := math.Sin(c.Latitude * math.Pi / 180.0)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	if y < 0 {
		y = 0
	}
	if y > 1 {
		y = 1
	}
	return x, y
}

// ReverseMercatorProjection is the inverse of MercatorProjection
func ReverseMercatorProjection(x, y float64) Coordinate {
	y2 := (180 - y*360) * math.Pi / 180.0
	return Coordinate{
		Longitude: (x - 0.5) * 360,
		Latitude:  360*math.Atan(math.Exp(y2))/math.Pi - 90,
	}
}
