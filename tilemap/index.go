// Package tilemap implements the in-memory grid representation of one
// image plane as fixed-size tiles (or strips): grid addressing, the
// per-tile lifecycle state machine, and incremental completion (spec.md
// §4.4). Grounded on the teacher's tiler.go/stripper.go pyramid-geometry
// computation, generalized from "pyramid of output tile grids" to "one
// grid, addressable and incrementally filled".
package tilemap

import "fmt"

// Grid describes the tile/strip addressing geometry for one IFD: image
// dimensions, tile (storage-unit) dimensions, and plane count (spec.md
// §3.1's "for strips: tx = image_width, ty = rows_per_strip").
type Grid struct {
	ImageWidth, ImageHeight int
	TileWidth, TileHeight   int
	Planes                  int // 1 for chunky, samples-per-pixel for planar-separated
}

// NX/NY are the tile grid's column/row counts: ceil(W/tx), ceil(H/ty).
func (g Grid) NX() int { return ceilDiv(g.ImageWidth, g.TileWidth) }
func (g Grid) NY() int { return ceilDiv(g.ImageHeight, g.TileHeight) }

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Count is the total number of tiles across all planes.
func (g Grid) Count() int { return g.NX() * g.NY() * g.Planes }

// Index computes the linear tile index for tile (x, y) of plane p, per
// spec.md §3.1's formula: index = p*nx*ny + y*nx + x.
func (g Grid) Index(x, y, p int) (int, error) {
	nx, ny := g.NX(), g.NY()
	if x < 0 || x >= nx || y < 0 || y >= ny || p < 0 || p >= g.Planes {
		return 0, fmt.Errorf("tilemap: tile (%d,%d,plane %d) out of range for %dx%d grid, %d planes", x, y, p, nx, ny, g.Planes)
	}
	return p*nx*ny + y*nx + x, nil
}

// Coords is the inverse of Index.
func (g Grid) Coords(index int) (x, y, p int, err error) {
	nx, ny := g.NX(), g.NY()
	if nx == 0 || ny == 0 {
		return 0, 0, 0, fmt.Errorf("tilemap: empty grid")
	}
	perPlane := nx * ny
	if index < 0 || index >= perPlane*g.Planes {
		return 0, 0, 0, fmt.Errorf("tilemap: index %d out of range", index)
	}
	p = index / perPlane
	rem := index % perPlane
	y = rem / nx
	x = rem % nx
	return x, y, p, nil
}

// Bounds returns the pixel-space rectangle tile (x, y) covers, cropped to
// the image's actual dimensions at the right/bottom edge (spec.md §4.4:
// boundary tiles are cropped, not padded, when addressed by pixel
// rectangle -- padding only happens at encode time via complete_writing's
// byte-filler).
func (g Grid) Bounds(x, y int) (left, top, width, height int) {
	left = x * g.TileWidth
	top = y * g.TileHeight
	width = g.TileWidth
	if left+width > g.ImageWidth {
		width = g.ImageWidth - left
	}
	height = g.TileHeight
	if top+height > g.ImageHeight {
		height = g.ImageHeight - top
	}
	return
}

// TilesIntersecting returns the (x, y) tile coordinates whose bounds
// intersect the pixel rectangle [ox,ox+w) x [oy,oy+h).
func (g Grid) TilesIntersecting(ox, oy, w, h int) [][2]int {
	if w <= 0 || h <= 0 {
		return nil
	}
	x0 := ox / g.TileWidth
	y0 := oy / g.TileHeight
	x1 := ceilDiv(ox+w, g.TileWidth)
	y1 := ceilDiv(oy+h, g.TileHeight)
	if x1 > g.NX() {
		x1 = g.NX()
	}
	if y1 > g.NY() {
		y1 = g.NY()
	}
	var out [][2]int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			out = append(out, [2]int{x, y})
		}
	}
	return out
}
