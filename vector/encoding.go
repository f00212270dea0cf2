package vector

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedGeometry indicates that a serialized path or element could
// not be decoded. The blob is unreadable; the caller decides whether that
// fails the whole load or skips the record.
var ErrMalformedGeometry = errors.New("malformed geometry")

// PathFormatVersion tags every encoded path so old documents remain
// loadable after the encoding evolves. Decoders reject versions they do
// not know.
const PathFormatVersion = 1

// EncodePath encodes a path into a BLOB suitable for storage: a one-byte
// format version, a little-endian uint32 segment count, then the control
// points as little-endian IEEE 754 float32 pairs (start point first, then
// three points per segment).
func EncodePath(p Path) []byte {
	b := make([]byte, 0, 5+8+24*len(p.Segments))
	b = append(b, PathFormatVersion)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(p.Segments)))
	b = appendPoint(b, p.Start)
	for _, seg := range p.Segments {
		b = appendPoint(b, seg.CP1)
		b = appendPoint(b, seg.CP2)
		b = appendPoint(b, seg.End)
	}
	return b
}

// DecodePath decodes a BLOB produced by EncodePath. It fails with
// ErrMalformedGeometry on an unknown version or a length that does not
// match the declared segment count.
func DecodePath(b []byte) (Path, error) {
	if len(b) < 5 {
		return Path{}, fmt.Errorf("vector: path blob too short (%d bytes): %w", len(b), ErrMalformedGeometry)
	}
	if b[0] != PathFormatVersion {
		return Path{}, fmt.Errorf("vector: unknown path format version %d: %w", b[0], ErrMalformedGeometry)
	}
	nsegs := binary.LittleEndian.Uint32(b[1:5])
	want := 5 + 8 + 24*int(nsegs)
	if len(b) != want {
		return Path{}, fmt.Errorf("vector: path blob length %d, want %d for %d segments: %w", len(b), want, nsegs, ErrMalformedGeometry)
	}
	rest := b[5:]
	var p Path
	p.Start, rest = readPoint(rest)
	p.Segments = make([]Segment, nsegs)
	for i := range p.Segments {
		p.Segments[i].CP1, rest = readPoint(rest)
		p.Segments[i].CP2, rest = readPoint(rest)
		p.Segments[i].End, rest = readPoint(rest)
	}
	return p, nil
}

func appendPoint(b []byte, p Point) []byte {
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(p.X))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(p.Y))
	return b
}

func readPoint(b []byte) (Point, []byte) {
	x := math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
	return Point{X: x, Y: y}, b[8:]
}

// elementEnvelope is the serialized form of an Element. The path rides
// along as a base64 BLOB in its own binary format so the two encodings
// version independently.
type elementEnvelope struct {
	Version int               `json:"v"`
	ID      ElementID         `json:"id"`
	Path    string            `json:"path"`
	Props   map[string]string `json:"props,omitempty"`
}

// ElementFormatVersion tags serialized elements.
const ElementFormatVersion = 1

// EncodeElement serializes an element. The inverse is DecodeElement and
// the pair round-trips exactly.
func EncodeElement(e Element) ([]byte, error) {
	env := elementEnvelope{
		Version: ElementFormatVersion,
		ID:      e.ID,
		Path:    base64.StdEncoding.EncodeToString(EncodePath(e.Path)),
		Props:   e.Properties,
	}
	return json.Marshal(env)
}

// DecodeElement deserializes an element produced by EncodeElement,
// failing with ErrMalformedGeometry on any structural problem.
func DecodeElement(b []byte) (Element, error) {
	var env elementEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Element{}, fmt.Errorf("vector: decode element: %v: %w", err, ErrMalformedGeometry)
	}
	if env.Version != ElementFormatVersion {
		return Element{}, fmt.Errorf("vector: unknown element format version %d: %w", env.Version, ErrMalformedGeometry)
	}
	raw, err := base64.StdEncoding.DecodeString(env.Path)
	if err != nil {
		return Element{}, fmt.Errorf("vector: decode element path: %v: %w", err, ErrMalformedGeometry)
	}
	path, err := DecodePath(raw)
	if err != nil {
		return Element{}, err
	}
	props := env.Props
	if props == nil {
		props = map[string]string{}
	}
	return Element{ID: env.ID, Path: path, Properties: props}, nil
}
