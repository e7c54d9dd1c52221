package protocol

import (
	"errors"
	"fmt"

	"linkmesh/pkg/protocol/codec"
)

// Format is a compact on-wire indicator of body encoding.
// It is carried as the first byte of every link frame.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return ContentJSON
	case FormatCBOR:
		return ContentCBOR
	default:
		return ContentUnknown
	}
}

// ParseFormat maps a config name (json, cbor) to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown format %q", s)
	}
}

// ErrEmptyFrame is returned when decoding a zero-length body.
var ErrEmptyFrame = errors.New("protocol: empty frame")

// CodecFor returns a codec instance for a given format.
func CodecFor(r *codec.Registry, f Format) (codec.Codec, error) {
	if c := r.Get(f.String()); c != nil {
		return c, nil
	}
	switch f {
	case FormatJSON:
		return codec.JSON(), nil
	case FormatCBOR:
		return codec.CBOR()
	default:
		return nil, fmt.Errorf("unknown format: %d", f)
	}
}

// EncodeBody serializes v using the codec for f and prefixes the result
// with a single format byte.
func EncodeBody(r *codec.Registry, f Format, v any) ([]byte, error) {
	c, err := CodecFor(r, f)
	if err != nil {
		return nil, err
	}
	b, err := c.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(b))
	out[0] = byte(f)
	copy(out[1:], b)
	return out, nil
}

// DecodeBody decodes a body produced by EncodeBody into v.
func DecodeBody(r *codec.Registry, body []byte, v any) (Format, error) {
	if len(body) == 0 {
		return FormatUnknown, ErrEmptyFrame
	}
	f := Format(body[0])
	c, err := CodecFor(r, f)
	if err != nil {
		return f, err
	}
	if err := c.Unmarshal(body[1:], v); err != nil {
		return f, err
	}
	return f, nil
}
