package ifd

import (
	"fmt"
	"strings"
)

// StringMode selects how String renders an IFD (spec.md §4.3: "brief,
// normal, and JSON" dump modes, used by the info CLI subcommand).
type StringMode int

const (
	// Brief prints only dimensions, compression, and tiling/striping.
	Brief StringMode = iota
	// Normal prints every tag with its decoded value, one per line.
	Normal
	// JSON prints a JSON object of tag name -> value.
	JSON
)

// String renders d in Normal mode; use Dump for the other modes.
func (d *IFD) String() string { return d.Dump(Normal) }

// Dump renders d per mode.
func (d *IFD) Dump(mode StringMode) string {
	switch mode {
	case Brief:
		return d.dumpBrief()
	case JSON:
		return d.dumpJSON()
	default:
		return d.dumpNormal()
	}
}

func (d *IFD) dumpBrief() string {
	var b strings.Builder
	w, h, err := d.Dimensions()
	if err != nil {
		fmt.Fprintf(&b, "IFD: <invalid: %v>", err)
		return b.String()
	}
	kind := "striped"
	if d.IsTiled() {
		kind = "tiled"
	}
	tw, th, _ := d.TileGeometry()
	c := d.Compression()
	fmt.Fprintf(&b, "%dx%d %s (%dx%d units), compression=%d", w, h, kind, tw, th, c.Code)
	return b.String()
}

func (d *IFD) dumpNormal() string {
	var b strings.Builder
	for _, e := range d.entries {
		fmt.Fprintf(&b, "%s (%s, count=%d): %s\n", e.Tag.Name(), e.Type, e.Count, entryValueString(e))
	}
	return b.String()
}

func (d *IFD) dumpJSON() string {
	var b strings.Builder
	b.WriteString("{")
	for i, e := range d.entries {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%q:%q", e.Tag.Name(), entryValueString(e))
	}
	b.WriteString("}")
	return b.String()
}

func entryValueString(e *Entry) string {
	if e.Type == TAscii {
		s, _ := e.ASCII()
		return s
	}
	if u, err := e.Uints(); err == nil {
		return fmt.Sprint(u)
	}
	if f, err := e.Floats(); err == nil {
		return fmt.Sprint(f)
	}
	return fmt.Sprintf("%v", e.Data)
}
