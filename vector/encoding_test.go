package vector

import (
	"errors"
	"testing"
)

func TestEncodeDecodePath_RoundTrip(t *testing.T) {
	p := NewPath(Point{X: 1.5, Y: -2.25},
		Segment{CP1: Point{X: 3, Y: 4}, CP2: Point{X: 5, Y: 6}, End: Point{X: 7, Y: 8}},
		Segment{CP1: Point{X: 9, Y: 10}, CP2: Point{X: 11, Y: 12}, End: Point{X: 13, Y: 14}},
	)

	decoded, err := DecodePath(EncodePath(p))
	if err != nil {
		t.Fatalf("DecodePath failed: %v", err)
	}
	if !decoded.Equal(p) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, p)
	}
}

func TestEncodeDecodePath_EmptySegments(t *testing.T) {
	p := NewPath(Point{X: 2, Y: 3})

	decoded, err := DecodePath(EncodePath(p))
	if err != nil {
		t.Fatalf("DecodePath failed: %v", err)
	}
	if !decoded.Equal(p) {
		t.Fatalf("round trip mismatch for segmentless path")
	}
}

func TestDecodePath_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":           nil,
		"too short":       {PathFormatVersion, 0, 0},
		"bad version":     append([]byte{99}, EncodePath(Path{})[1:]...),
		"truncated body":  EncodePath(line(Point{}, Point{X: 1, Y: 1}))[:12],
		"length mismatch": append(EncodePath(Path{}), 0xAB),
	}
	for name, blob := range cases {
		if _, err := DecodePath(blob); !errors.Is(err, ErrMalformedGeometry) {
			t.Errorf("%s: DecodePath error = %v, want ErrMalformedGeometry", name, err)
		}
	}
}

func TestEncodeDecodeElement_RoundTrip(t *testing.T) {
	e := NewElement(42, line(Point{X: 0, Y: 0}, Point{X: 10, Y: 20}))
	e.Properties["brush"] = "ink"
	e.Properties["color"] = "#102030"

	blob, err := EncodeElement(e)
	if err != nil {
		t.Fatalf("EncodeElement failed: %v", err)
	}
	decoded, err := DecodeElement(blob)
	if err != nil {
		t.Fatalf("DecodeElement failed: %v", err)
	}
	if !decoded.Equal(e) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, e)
	}
}

func TestDecodeElement_Malformed(t *testing.T) {
	for name, blob := range map[string][]byte{
		"not json":    []byte("{"),
		"bad version": []byte(`{"v":99,"id":1,"path":""}`),
		"bad base64":  []byte(`{"v":1,"id":1,"path":"!!!"}`),
		"bad path":    []byte(`{"v":1,"id":1,"path":"AAAA"}`),
	} {
		if _, err := DecodeElement(blob); !errors.Is(err, ErrMalformedGeometry) {
			t.Errorf("%s: DecodeElement error = %v, want ErrMalformedGeometry", name, err)
		}
	}
}
