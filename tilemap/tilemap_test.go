package tilemap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallGrid() Grid {
	return Grid{ImageWidth: 20, ImageHeight: 20, TileWidth: 8, TileHeight: 8, Planes: 1}
}

func TestGridIndexCoordsRoundTrip(t *testing.T) {
	g := Grid{ImageWidth: 100, ImageHeight: 50, TileWidth: 16, TileHeight: 16, Planes: 3}
	for p := 0; p < g.Planes; p++ {
		for y := 0; y < g.NY(); y++ {
			for x := 0; x < g.NX(); x++ {
				idx, err := g.Index(x, y, p)
				require.NoError(t, err)
				gx, gy, gp, err := g.Coords(idx)
				require.NoError(t, err)
				assert.Equal(t, x, gx)
				assert.Equal(t, y, gy)
				assert.Equal(t, p, gp)
			}
		}
	}
}

func TestGridIndexOutOfRange(t *testing.T) {
	g := smallGrid()
	_, err := g.Index(g.NX(), 0, 0)
	assert.Error(t, err)
	_, err = g.Index(0, -1, 0)
	assert.Error(t, err)
}

func TestGridBoundsCropsAtEdge(t *testing.T) {
	g := Grid{ImageWidth: 20, ImageHeight: 20, TileWidth: 8, TileHeight: 8, Planes: 1}
	left, top, w, h := g.Bounds(2, 2)
	assert.Equal(t, 16, left)
	assert.Equal(t, 16, top)
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
}

func TestStateLegalTransitions(t *testing.T) {
	tile := NewTile(0, 4)
	require.NoError(t, tile.MarkPartial())
	assert.Equal(t, Partial, tile.State)
	require.NoError(t, tile.MarkPartial())
	require.NoError(t, tile.MarkComplete())
	assert.Equal(t, Complete, tile.State)
	require.NoError(t, tile.MarkEncoded([]byte{1, 2}))
	assert.Equal(t, Encoded, tile.State)
	require.NoError(t, tile.MarkFlushed(128))
	assert.Equal(t, Flushed, tile.State)
	assert.Equal(t, uint64(128), tile.Offset)
	assert.Equal(t, uint64(2), tile.Length)
}

func TestStateIllegalTransitionsRejected(t *testing.T) {
	tile := NewTile(0, 4)
	err := tile.MarkEncoded([]byte{1})
	assert.Error(t, err)

	tile2 := NewTile(1, 4)
	require.NoError(t, tile2.MarkComplete())
	require.NoError(t, tile2.MarkEncoded([]byte{1}))
	err = tile2.MarkComplete()
	assert.Error(t, err)
	err = tile2.MarkPartial()
	assert.Error(t, err)
}

func TestUpdateChannelsFullyCoversTileMarksComplete(t *testing.T) {
	g := smallGrid()
	m := NewFixedMap(g, 1, 0)
	buf := make([]byte, 8*8)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, m.UpdateChannels([][]byte{buf}, 0, 0, 8, 8))
	tile, err := m.Get(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Complete, tile.State)
	assert.Equal(t, buf, tile.Px)
}

func TestUpdateChannelsPartialCoverageMarksPartial(t *testing.T) {
	g := smallGrid()
	m := NewFixedMap(g, 1, 0)
	buf := make([]byte, 4*4)
	for i := range buf {
		buf[i] = 0xFF
	}
	require.NoError(t, m.UpdateChannels([][]byte{buf}, 0, 0, 4, 4))
	tile, err := m.Get(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Partial, tile.State)
	assert.Equal(t, byte(0xFF), tile.Px[0])
	assert.Equal(t, byte(0), tile.Px[4])
}

func TestUpdateChannelsPreservesPriorContentOnSecondPartialWrite(t *testing.T) {
	g := smallGrid()
	m := NewFixedMap(g, 1, 0)
	first := make([]byte, 4*4)
	for i := range first {
		first[i] = 1
	}
	require.NoError(t, m.UpdateChannels([][]byte{first}, 0, 0, 4, 4))

	second := make([]byte, 4*4)
	for i := range second {
		second[i] = 2
	}
	require.NoError(t, m.UpdateChannels([][]byte{second}, 4, 0, 4, 4))

	tile, err := m.Get(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), tile.Px[0])
	assert.Equal(t, byte(2), tile.Px[4])
	assert.Equal(t, Partial, tile.State)
}

func TestWriteCompletedEncodesAndAppendsInOrder(t *testing.T) {
	g := smallGrid()
	m := NewFixedMap(g, 1, 0)
	buf := make([]byte, 8*8)
	require.NoError(t, m.UpdateChannels([][]byte{buf}, 0, 0, 8, 8))
	require.NoError(t, m.UpdateChannels([][]byte{buf}, 8, 0, 8, 8))

	tiles := m.CompletedTiles()
	require.Len(t, tiles, 2)

	var appendOrder []int
	var nextOffset uint64
	encode := func(tile *Tile) ([]byte, error) { return tile.Px, nil }
	appendBytes := func(enc []byte) (uint64, error) {
		off := nextOffset
		nextOffset += uint64(len(enc))
		appendOrder = append(appendOrder, int(off))
		return off, nil
	}
	require.NoError(t, m.WriteCompleted(context.Background(), tiles, encode, appendBytes))
	for _, tile := range tiles {
		assert.Equal(t, Flushed, tile.State)
	}
	assert.Len(t, appendOrder, 2)
	for i, tile := range tiles {
		assert.Equal(t, uint64(i*64), tile.Offset)
	}
}

func TestCompleteWritingPadsPartialAndEmptyTiles(t *testing.T) {
	g := smallGrid()
	m := NewFixedMap(g, 1, 0x7F)
	buf := make([]byte, 4*4)
	require.NoError(t, m.UpdateChannels([][]byte{buf}, 0, 0, 4, 4))

	tiles := m.CompleteWriting()
	assert.NotEmpty(t, tiles)
	for _, tile := range tiles {
		assert.Equal(t, Complete, tile.State)
		assert.Equal(t, byte(0x7F), tile.Px[len(tile.Px)-1])
	}
}

func TestPreloadTilesFillsUncoveredNeighborPixels(t *testing.T) {
	g := smallGrid()
	m := NewFixedMap(g, 1, 0)
	called := make(map[int]bool)
	preload := func(idx int) ([]byte, error) {
		called[idx] = true
		return make([]byte, 8*8), nil
	}
	require.NoError(t, m.PreloadTiles(0, 0, 4, 4, preload))
	assert.True(t, called[0])
}

func TestResizableMapGrowsImageHeight(t *testing.T) {
	g := Grid{ImageWidth: 16, ImageHeight: 8, TileWidth: 8, TileHeight: 8, Planes: 1}
	m := NewResizableMap(g, 1, 0)
	buf := make([]byte, 16*8)
	require.NoError(t, m.UpdateChannels([][]byte{buf}, 0, 8, 16, 8))
	assert.Equal(t, 16, m.ImageHeight)
}
