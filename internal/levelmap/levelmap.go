// Package levelmap holds the collision mask of a level and the spawn points
// discovered in it.
package levelmap

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/dumfing/skirmish/pkg/core"
)

// Marker and cell ids, as returned by PosID.
const (
	RedMarker  int32 = -65536 // 0xFF0000
	BlueMarker int32 = 255    // 0x0000FF
	SolidCell  int32 = 1      // 0x000001
)

// Map is a level collision mask. The mask and spawns never change after New;
// only the presentation frames advance.
type Map struct {
	name   string
	width  int
	height int
	ids    []int32 // row-major, image rows (row 0 = top)

	redSpawn  core.GridPoint
	blueSpawn core.GridPoint
	checksum  uint64

	frames *Frames
}

// New samples img into a collision mask and locates both spawns.
func New(name string, img image.Image) *Map {
	b := img.Bounds()
	m := &Map{
		name:   name,
		width:  b.Dx(),
		height: b.Dy(),
		frames: NewFrames(),
	}
	m.ids = make([]int32, m.width*m.height)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			rgba := uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
			m.ids[y*m.width+x] = int32(rgba) >> 8
		}
	}

	buf := make([]byte, 4*len(m.ids))
	for i, id := range m.ids {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(id))
	}
	m.checksum = xxh3.Hash(buf)

	m.redSpawn = m.FindMarker(RedMarker)
	m.blueSpawn = m.FindMarker(BlueMarker)
	return m
}

// Load decodes a PNG collision mask from disk. The level is named after the
// file.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open level %s: %w", path, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode level %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return New(name, img), nil
}

// pixel reads an image-space cell. Reads outside the image return 0.
func (m *Map) pixel(x, row int) int32 {
	if x < 0 || x >= m.width || row < 0 || row >= m.height {
		return 0
	}
	return m.ids[row*m.width+x]
}

// PosID returns the alpha-stripped colour at world cell (x, y). World y
// grows upwards, so the row read is height-y.
func (m *Map) PosID(x, y int) int32 {
	return m.pixel(x, m.height-y)
}

// Occupancy returns 1 for a solid cell and 0 otherwise.
func (m *Map) Occupancy(x, y int) int {
	if m.PosID(x, y) == SolidCell {
		return 1
	}
	return 0
}

// Solid reports whether world cell (x, y) blocks movement.
func (m *Map) Solid(x, y int) bool {
	return m.Occupancy(x, y) == 1
}

// FindMarker returns the first cell holding id, scanning x then y. Both
// loops are bounded by the map width, so on a map taller than it is wide the
// top rows are never visited. Returns (0,0) when nothing matches.
func (m *Map) FindMarker(id int32) core.GridPoint {
	for x := 0; x < m.width; x++ {
		for y := 0; y < m.width; y++ {
			if m.PosID(x, y) == id {
				return core.GridPoint{X: x, Y: y}
			}
		}
	}
	return core.GridPoint{}
}

func (m *Map) Name() string     { return m.name }
func (m *Map) Width() int       { return m.width }
func (m *Map) Height() int      { return m.height }
func (m *Map) Checksum() uint64 { return m.checksum }
func (m *Map) Frames() *Frames  { return m.frames }

func (m *Map) RedSpawn() core.GridPoint  { return m.redSpawn }
func (m *Map) BlueSpawn() core.GridPoint { return m.blueSpawn }

// Spawn returns the spawn point of team.
func (m *Map) Spawn(team core.Team) core.GridPoint {
	if team == core.TeamBlue {
		return m.blueSpawn
	}
	return m.redSpawn
}

// Describe returns the storage descriptor of the level.
func (m *Map) Describe() core.Level {
	return core.Level{
		Name:      m.name,
		Width:     m.width,
		Height:    m.height,
		Checksum:  m.checksum,
		RedSpawn:  m.redSpawn,
		BlueSpawn: m.blueSpawn,
	}
}
