package ifd

// Type is the on-disk 16-bit IFD entry type code (spec.md §3.1, §6.1).
type Type uint16

const (
	TByte      Type = 1
	TAscii     Type = 2
	TShort     Type = 3
	TLong      Type = 4
	TRational  Type = 5
	TSByte     Type = 6
	TUndefined Type = 7
	TSShort    Type = 8
	TSLong     Type = 9
	TSRational Type = 10
	TFloat     Type = 11
	TDouble    Type = 12
	TIFD       Type = 13
	TLong8     Type = 16
	TSLong8    Type = 17
	TIFD8      Type = 18
)

// Size returns the on-disk byte width of one value of type t, per spec.md
// §6.1's type-size table. Zero means "not a recognized type".
func (t Type) Size() int {
	switch t {
	case TByte, TAscii, TSByte, TUndefined:
		return 1
	case TShort, TSShort:
		return 2
	case TLong, TSLong, TFloat, TIFD:
		return 4
	case TRational, TSRational, TDouble, TLong8, TSLong8, TIFD8:
		return 8
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case TByte:
		return "BYTE"
	case TAscii:
		return "ASCII"
	case TShort:
		return "SHORT"
	case TLong:
		return "LONG"
	case TRational:
		return "RATIONAL"
	case TSByte:
		return "SBYTE"
	case TUndefined:
		return "UNDEFINED"
	case TSShort:
		return "SSHORT"
	case TSLong:
		return "SLONG"
	case TSRational:
		return "SRATIONAL"
	case TFloat:
		return "FLOAT"
	case TDouble:
		return "DOUBLE"
	case TIFD:
		return "IFD"
	case TLong8:
		return "LONG8"
	case TSLong8:
		return "SLONG8"
	case TIFD8:
		return "IFD8"
	default:
		return "UNKNOWN"
	}
}

// Rational is a TIFF RATIONAL/SRATIONAL value: two 32-bit components stored
// back to back on disk (spec.md §3.1).
type Rational struct{ Num, Den uint32 }

// SRational is the signed counterpart of Rational.
type SRational struct{ Num, Den int32 }

func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r SRational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Compression is the decoded value of tag 259, paired with its raw code so
// an unrecognized vendor compression is never silently lost (spec.md §4.3:
// "never losing the code when the enum is unknown").
type Compression struct {
	Code uint16
	Enum CompressionEnum
}

type CompressionEnum int

const (
	CompressionUnknown CompressionEnum = iota
	CompressionNone
	CompressionCCITTRLE
	CompressionCCITTFax3
	CompressionCCITTFax4
	CompressionLZW
	CompressionOldJPEG
	CompressionJPEG
	CompressionDeflateAdobe
	CompressionPackBits
	CompressionDeflate
	CompressionJPEG2000
	CompressionLosslessJPEG
)

var compressionCodes = map[uint16]CompressionEnum{
	1:     CompressionNone,
	2:     CompressionCCITTRLE,
	3:     CompressionCCITTFax3,
	4:     CompressionCCITTFax4,
	5:     CompressionLZW,
	6:     CompressionOldJPEG,
	7:     CompressionJPEG,
	8:     CompressionDeflateAdobe,
	32773: CompressionPackBits,
	32946: CompressionDeflate,
	34712: CompressionJPEG2000,
	34676: CompressionLosslessJPEG,
}

// DecodeCompression maps a raw tag-259 value to its enum, preserving the raw
// code regardless of whether it is recognized.
func DecodeCompression(code uint16) Compression {
	return Compression{Code: code, Enum: compressionCodes[code]}
}

// Photometric interpretation values (tag 262), mirrored from the teacher's
// cog.go PhotometricInterpretation* constants.
type Photometric uint16

const (
	PhotometricMinIsWhite Photometric = 0
	PhotometricMinIsBlack Photometric = 1
	PhotometricRGB        Photometric = 2
	PhotometricPalette    Photometric = 3
	PhotometricMask       Photometric = 4
	PhotometricSeparated  Photometric = 5
	PhotometricYCbCr      Photometric = 6
	PhotometricCIELab     Photometric = 8
	PhotometricICCLab     Photometric = 9
	PhotometricITULab     Photometric = 10
	PhotometricLOGL       Photometric = 32844
	PhotometricLOGLUV     Photometric = 32845
)

// PlanarConfiguration values (tag 284).
type PlanarConfiguration uint16

const (
	PlanarChunky   PlanarConfiguration = 1
	PlanarSeparate PlanarConfiguration = 2
)

// Predictor values (tag 317).
type Predictor uint16

const (
	PredictorNone       Predictor = 1
	PredictorHorizontal Predictor = 2
	PredictorFloat      Predictor = 3
)

// SampleFormat values (tag 339).
type SampleFormat uint16

const (
	SampleFormatUInt   SampleFormat = 1
	SampleFormatInt    SampleFormat = 2
	SampleFormatFloat  SampleFormat = 3
	SampleFormatVoid   SampleFormat = 4
	SampleFormatCplxInt SampleFormat = 5
	SampleFormatCplxFlt SampleFormat = 6
)

// FillOrder values (tag 266).
type FillOrder uint16

const (
	FillOrderMSB2LSB FillOrder = 1
	FillOrderLSB2MSB FillOrder = 2
)

// SampleType is the derived per-sample storage type spec.md §3.1 defines,
// combining BitsPerSample and SampleFormat (plus the 1-bit special case).
type SampleType int

const (
	SampleTypeUnknown SampleType = iota
	SampleTypeBit
	SampleTypeInt8
	SampleTypeUint8
	SampleTypeInt16
	SampleTypeUint16
	SampleTypeInt24
	SampleTypeUint24
	SampleTypeInt32
	SampleTypeUint32
	SampleTypeFloat16
	SampleTypeFloat32
	SampleTypeFloat64
)

// ByteWidth returns the storage width in bytes for whole-byte sample types,
// including 3 for SampleTypeInt24/Uint24, or 0 for SampleTypeBit (sub-byte,
// sized with BitWidth instead).
func (s SampleType) ByteWidth() int {
	switch s {
	case SampleTypeInt8, SampleTypeUint8:
		return 1
	case SampleTypeInt16, SampleTypeUint16, SampleTypeFloat16:
		return 2
	case SampleTypeInt24, SampleTypeUint24:
		return 3
	case SampleTypeInt32, SampleTypeUint32, SampleTypeFloat32:
		return 4
	case SampleTypeFloat64:
		return 8
	default:
		return 0
	}
}

// BitWidth returns the number of bits a single sample of type s occupies.
func (s SampleType) BitWidth() int {
	if s == SampleTypeBit {
		return 1
	}
	return s.ByteWidth() * 8
}
