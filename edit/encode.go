package edit

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/happydpc/flowbetween/vector"
)

// ErrMalformedEdit indicates that a serialized operation could not be
// decoded.
var ErrMalformedEdit = errors.New("malformed edit")

// FormatVersion tags every serialized operation.
const FormatVersion = 1

// maxCompoundDepth bounds compound nesting on decode, so a corrupt log
// row cannot recurse without bound. Generated compounds nest one level.
const maxCompoundDepth = 32

// envelope wraps every serialized operation with its version and kind.
type envelope struct {
	Version int             `json:"v"`
	Kind    Kind            `json:"kind"`
	Op      json.RawMessage `json:"op"`
}

// addElementWire is the on-wire shape of AddElement; the element rides
// along in its own versioned encoding.
type addElementWire struct {
	Layer   LayerID         `json:"layer"`
	At      Time            `json:"at"`
	Element json.RawMessage `json:"element"`
}

// compoundWire is the on-wire shape of Compound; each member is a full
// Encode envelope of its own.
type compoundWire struct {
	Ops []json.RawMessage `json:"ops"`
}

// Encode serializes an operation. The inverse is Decode and the pair
// round-trips exactly.
func Encode(op Op) ([]byte, error) {
	var body []byte
	var err error
	switch o := op.(type) {
	case AddElement:
		var elem []byte
		elem, err = vector.EncodeElement(o.Element)
		if err != nil {
			return nil, err
		}
		body, err = json.Marshal(addElementWire{Layer: o.Layer, At: o.At, Element: elem})
	case Compound:
		wire := compoundWire{Ops: make([]json.RawMessage, 0, len(o.Ops))}
		for _, sub := range o.Ops {
			blob, err := Encode(sub)
			if err != nil {
				return nil, err
			}
			wire.Ops = append(wire.Ops, blob)
		}
		body, err = json.Marshal(wire)
	default:
		body, err = json.Marshal(op)
	}
	if err != nil {
		return nil, fmt.Errorf("edit: encode %s: %w", op.Kind(), err)
	}
	return json.Marshal(envelope{Version: FormatVersion, Kind: op.Kind(), Op: body})
}

// Decode deserializes an operation produced by Encode. Unknown kinds,
// versions and over-deep compound nesting fail with ErrMalformedEdit.
func Decode(b []byte) (Op, error) {
	return decode(b, 0)
}

func decode(b []byte, depth int) (Op, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("edit: decode envelope: %v: %w", err, ErrMalformedEdit)
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("edit: unknown format version %d: %w", env.Version, ErrMalformedEdit)
	}

	switch env.Kind {
	case KindAddLayer:
		return decodeOp[AddLayer](env)
	case KindRemoveLayer:
		return decodeOp[RemoveLayer](env)
	case KindSetLayerName:
		return decodeOp[SetLayerName](env)
	case KindSetCanvasSize:
		return decodeOp[SetCanvasSize](env)
	case KindAddKeyframe:
		return decodeOp[AddKeyframe](env)
	case KindRemoveKeyframe:
		return decodeOp[RemoveKeyframe](env)
	case KindAddElement:
		var wire addElementWire
		if err := json.Unmarshal(env.Op, &wire); err != nil {
			return nil, fmt.Errorf("edit: decode add_element: %v: %w", err, ErrMalformedEdit)
		}
		elem, err := vector.DecodeElement(wire.Element)
		if err != nil {
			return nil, fmt.Errorf("edit: decode add_element payload: %w", err)
		}
		return AddElement{Layer: wire.Layer, At: wire.At, Element: elem}, nil
	case KindRemoveElement:
		return decodeOp[RemoveElement](env)
	case KindMoveElement:
		return decodeOp[MoveElement](env)
	case KindSetElementProperty:
		return decodeOp[SetElementProperty](env)
	case KindCompound:
		if depth >= maxCompoundDepth {
			return nil, fmt.Errorf("edit: compound nested deeper than %d: %w", maxCompoundDepth, ErrMalformedEdit)
		}
		var wire compoundWire
		if err := json.Unmarshal(env.Op, &wire); err != nil {
			return nil, fmt.Errorf("edit: decode compound: %v: %w", err, ErrMalformedEdit)
		}
		out := Compound{Ops: make([]Op, 0, len(wire.Ops))}
		for _, blob := range wire.Ops {
			sub, err := decode(blob, depth+1)
			if err != nil {
				return nil, err
			}
			out.Ops = append(out.Ops, sub)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("edit: unknown kind %q: %w", env.Kind, ErrMalformedEdit)
	}
}

func decodeOp[T Op](env envelope) (Op, error) {
	var o T
	if err := json.Unmarshal(env.Op, &o); err != nil {
		return nil, fmt.Errorf("edit: decode %s: %v: %w", env.Kind, err, ErrMalformedEdit)
	}
	return o, nil
}
