package atlas

// boundingBox returns [minX, minY, maxX, maxY].
func boundingBox(poly [][2]float64) [4]float64 {
	b := [4]float64{poly[0][0], poly[0][1], poly[0][0], poly[0][1]}
	for _, v := range poly[1:] {
		b[0] = min(b[0], v[0])
		b[1] = min(b[1], v[1])
		b[2] = max(b[2], v[0])
		b[3] = max(b[3], v[1])
	}
	return b
}

// pointInPolygon casts a horizontal ray from (x, y) and counts edge
// crossings. The polygon may be open or closed.
func pointInPolygon(poly [][2]float64, x, y float64) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := poly[i][0], poly[i][1]
		xj, yj := poly[j][0], poly[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// squaredDistance is the planar squared distance in degrees², which is all
// inverse-distance weighting over a small area needs.
func squaredDistance(a, b Coordinate) float64 {
	dx, dy := a.Lng-b.Lng, a.Lat-b.Lat
	return dx*dx + dy*dy
}
