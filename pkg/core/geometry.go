// pkg/core/geometry.go
package core

// Rect is an axis-aligned rectangle anchored at its bottom-left corner.
type Rect struct {
	X      float32 `json:"x" msgpack:"x"`
	Y      float32 `json:"y" msgpack:"y"`
	Width  float32 `json:"width" msgpack:"width"`
	Height float32 `json:"height" msgpack:"height"`
}

// Contains reports whether the point lies inside r, edges included.
func (r Rect) Contains(x, y float32) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// GridPoint is an integer cell coordinate on a level map.
type GridPoint struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}
