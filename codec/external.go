package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// External compression codes used by this module's own RegisterExternal
// calls below, demonstrating the pluggable-codec mechanism spec.md §4.2
// requires beyond the baseline TIFF catalog. These codes are not part of
// any TIFF registry; they exist so a caller can opt a private pipeline into
// gzip or xz-compressed tiles via the same Options/registry path as the
// built-ins.
const (
	CompressionCodeGZIPExternal = 50001
	CompressionCodeXZExternal   = 50002
)

func init() {
	RegisterExternal(CompressionCodeGZIPExternal, gzipCodec{})
	RegisterExternal(CompressionCodeXZExternal, xzCodec{})
}

// gzipCodec wraps github.com/klauspost/compress/gzip, matching the
// klauspost/compress family already used for the Deflate built-in.
type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip-external" }

func (gzipCodec) Encode(raw []byte, _ Options) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decode(compressed []byte, rawLen int, _ Options) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]byte, 0, rawLen)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// xzCodec wraps github.com/ulikunitz/xz, grounded on brawer-wikidata-
// qrank's use of that library for its own archival compression.
type xzCodec struct{}

func (xzCodec) Name() string { return "xz-external" }

func (xzCodec) Encode(raw []byte, _ Options) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (xzCodec) Decode(compressed []byte, rawLen int, _ Options) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, rawLen)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
