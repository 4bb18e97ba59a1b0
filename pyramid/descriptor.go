// Package pyramid parses the vendor ImageDescription strings emitted by
// whole-slide-image scanners into structured fields, without failing on
// unrecognized vendors (spec.md §3.3).
package pyramid

import (
	"regexp"
	"strconv"
	"strings"
)

// Descriptor is a parsed vendor ImageDescription tag value: a free-text
// label plus whatever structured fields could be recognized, and an opaque
// key->value map for everything else (spec.md §3.3).
type Descriptor struct {
	Label string

	BaseWidth, BaseHeight   int
	HasBaseDimensions       bool
	RegionX, RegionY        int
	RegionWidth, RegionHeight int
	HasRegion               bool
	TileWidth, TileHeight   int
	HasTileGeometry         bool

	AppMag   float64
	HasAppMag bool
	MPP      float64
	HasMPP   bool

	Fields map[string]string
}

var (
	// "46920x33014" style base-dimension token.
	reDimensions = regexp.MustCompile(`^(\d+)x(\d+)$`)
	// "[0,0,46000x32914]" style region token.
	reRegion = regexp.MustCompile(`^\[(\d+),(\d+),(\d+)x(\d+)\]$`)
	// "(256x256)" style tile-geometry token.
	reTile = regexp.MustCompile(`^\((\d+)x(\d+)\)$`)
	// a whole segment that is just "key = value", e.g. "AppMag = 20" --
	// anchored so a segment that merely contains an embedded "Q=30" amid
	// positional tokens (e.g. "... JPEG/RGB Q=30") isn't mistaken for one.
	reKeyValueSegment = regexp.MustCompile(`^(\w+)\s*=\s*(.*)$`)
)

// Parse extracts scanner label, base dimensions, tile/region geometry,
// AppMag, and MPP out of a whole-slide-image ImageDescription string,
// per spec.md §3.3. Tokens this parser doesn't recognize are kept verbatim
// in Fields rather than causing a parse error -- unrecognized vendors still
// yield a usable Descriptor with just a Label and raw Fields.
func Parse(desc string) *Descriptor {
	d := &Descriptor{Fields: make(map[string]string)}

	lines := strings.FieldsFunc(desc, func(r rune) bool {
		return r == '\r' || r == '\n'
	})
	if len(lines) == 0 {
		return d
	}
	d.Label = strings.TrimSpace(lines[0])

	rest := strings.Join(lines[1:], " ")
	for _, segment := range strings.Split(rest, "|") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if m := reKeyValueSegment.FindStringSubmatch(segment); m != nil {
			d.setKeyValue(m[1], strings.TrimSpace(m[2]))
			continue
		}
		d.parsePositionalTokens(segment)
	}
	return d
}

func (d *Descriptor) setKeyValue(key, val string) {
	switch strings.ToLower(key) {
	case "appmag":
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			d.AppMag = f
			d.HasAppMag = true
			return
		}
	case "mpp":
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			d.MPP = f
			d.HasMPP = true
			return
		}
	}
	d.Fields[key] = val
}

// parsePositionalTokens handles the label line's space-separated geometry
// tokens ("46920x33014 [0,0,46000x32914] (256x256) JPEG/RGB Q=30") that
// aren't themselves key=value pairs.
func (d *Descriptor) parsePositionalTokens(segment string) {
	for _, tok := range strings.Fields(segment) {
		switch {
		case reDimensions.MatchString(tok):
			m := reDimensions.FindStringSubmatch(tok)
			d.BaseWidth, _ = strconv.Atoi(m[1])
			d.BaseHeight, _ = strconv.Atoi(m[2])
			d.HasBaseDimensions = true
		case reRegion.MatchString(tok):
			m := reRegion.FindStringSubmatch(tok)
			d.RegionX, _ = strconv.Atoi(m[1])
			d.RegionY, _ = strconv.Atoi(m[2])
			d.RegionWidth, _ = strconv.Atoi(m[3])
			d.RegionHeight, _ = strconv.Atoi(m[4])
			d.HasRegion = true
		case reTile.MatchString(tok):
			m := reTile.FindStringSubmatch(tok)
			d.TileWidth, _ = strconv.Atoi(m[1])
			d.TileHeight, _ = strconv.Atoi(m[2])
			d.HasTileGeometry = true
		default:
			if key, val, ok := strings.Cut(tok, "="); ok {
				d.setKeyValue(key, val)
			} else if tok != "" {
				d.Fields[tok] = ""
			}
		}
	}
}

// String reconstructs a (not necessarily byte-identical) ImageDescription
// value from the descriptor, exercised by descriptor_test.go.
func (d *Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.Label)
	if d.HasBaseDimensions {
		b.WriteString("\r\n")
		b.WriteString(strconv.Itoa(d.BaseWidth))
		b.WriteByte('x')
		b.WriteString(strconv.Itoa(d.BaseHeight))
	}
	if d.HasRegion {
		b.WriteString(" [")
		b.WriteString(strconv.Itoa(d.RegionX))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(d.RegionY))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(d.RegionWidth))
		b.WriteByte('x')
		b.WriteString(strconv.Itoa(d.RegionHeight))
		b.WriteByte(']')
	}
	if d.HasTileGeometry {
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(d.TileWidth))
		b.WriteByte('x')
		b.WriteString(strconv.Itoa(d.TileHeight))
		b.WriteByte(')')
	}
	if d.HasAppMag {
		b.WriteString("|AppMag = ")
		b.WriteString(strconv.FormatFloat(d.AppMag, 'g', -1, 64))
	}
	if d.HasMPP {
		b.WriteString("|MPP = ")
		b.WriteString(strconv.FormatFloat(d.MPP, 'g', -1, 64))
	}
	return b.String()
}
