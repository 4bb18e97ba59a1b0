package pyramid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAperioDescriptor(t *testing.T) {
	desc := "Aperio Image Library v11.2.1\r\n46920x33014 [0,0,46000x32914] (256x256) JPEG/RGB Q=30|AppMag = 20|MPP = 0.4988"
	d := Parse(desc)

	assert.Equal(t, "Aperio Image Library v11.2.1", d.Label)
	assert.True(t, d.HasBaseDimensions)
	assert.Equal(t, 46920, d.BaseWidth)
	assert.Equal(t, 33014, d.BaseHeight)
	assert.True(t, d.HasRegion)
	assert.Equal(t, 0, d.RegionX)
	assert.Equal(t, 0, d.RegionY)
	assert.Equal(t, 46000, d.RegionWidth)
	assert.Equal(t, 32914, d.RegionHeight)
	assert.True(t, d.HasTileGeometry)
	assert.Equal(t, 256, d.TileWidth)
	assert.Equal(t, 256, d.TileHeight)
	assert.True(t, d.HasAppMag)
	assert.Equal(t, 20.0, d.AppMag)
	assert.True(t, d.HasMPP)
	assert.Equal(t, 0.4988, d.MPP)
	assert.Equal(t, "30", d.Fields["Q"])
}

func TestParseUnrecognizedVendorFallsBackToLabelAndFields(t *testing.T) {
	desc := "SomeScanner v9\nfoo=bar|baz=qux"
	d := Parse(desc)
	assert.Equal(t, "SomeScanner v9", d.Label)
	assert.False(t, d.HasBaseDimensions)
	assert.False(t, d.HasAppMag)
	assert.Equal(t, "bar", d.Fields["foo"])
	assert.Equal(t, "qux", d.Fields["baz"])
}

func TestParseEmptyString(t *testing.T) {
	d := Parse("")
	assert.Equal(t, "", d.Label)
	assert.Empty(t, d.Fields)
}

func TestParseLabelOnly(t *testing.T) {
	d := Parse("Just a plain label, no structured fields at all")
	assert.Equal(t, "Just a plain label, no structured fields at all", d.Label)
	assert.False(t, d.HasAppMag)
}

func TestDescriptorStringRoundTripsStructuredFields(t *testing.T) {
	d := &Descriptor{
		Label:             "Aperio Image Library v11.2.1",
		BaseWidth:         46920,
		BaseHeight:        33014,
		HasBaseDimensions: true,
		RegionWidth:       46000,
		RegionHeight:      32914,
		HasRegion:         true,
		TileWidth:         256,
		TileHeight:        256,
		HasTileGeometry:   true,
		AppMag:            20,
		HasAppMag:         true,
		MPP:               0.4988,
		HasMPP:            true,
		Fields:            map[string]string{},
	}
	reparsed := Parse(d.String())
	assert.Equal(t, d.Label, reparsed.Label)
	assert.Equal(t, d.BaseWidth, reparsed.BaseWidth)
	assert.Equal(t, d.AppMag, reparsed.AppMag)
	assert.Equal(t, d.MPP, reparsed.MPP)
}
