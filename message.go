package multilang

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// PayloadKey is the envelope key carrying the CBOR encoded application payload.
const PayloadKey = "tuple"

// Envelope is one protocol message. It is either a mapping (commands and
// incoming tuples) or, when List is non-nil, a flat list (the task ids a
// prior emit went to).
type Envelope struct {
	Map  map[string]any
	List []any
}

// NewMapEnvelope returns a mapping envelope over m.
func NewMapEnvelope(m map[string]any) Envelope {
	return Envelope{Map: m}
}

// NewListEnvelope returns a list envelope holding items.
func NewListEnvelope(items ...any) Envelope {
	if items == nil {
		items = []any{}
	}
	return Envelope{List: items}
}

// IsList reports whether e is a list envelope.
func (e Envelope) IsList() bool {
	return e.List != nil
}

// Get returns the value under key in a mapping envelope.
func (e Envelope) Get(key string) (any, bool) {
	if e.IsList() {
		return nil, false
	}
	v, ok := e.Map[key]
	return v, ok
}

// Payload returns the decoded application payload, if the envelope carries one.
func (e Envelope) Payload() (any, bool) {
	return e.Get(PayloadKey)
}

// LogValue implements slog.LogValuer.
func (e Envelope) LogValue() slog.Value {
	if e.IsList() {
		return slog.AnyValue(e.List)
	}
	return slog.AnyValue(e.Map)
}

// Codec turns envelopes into single-line text and back.
// Encoded text must not contain a newline.
type Codec interface {
	// Decode parses the text of one framed envelope.
	Decode(text []byte) (Envelope, error)
	// Encode renders an envelope as one line of text, without terminator.
	Encode(Envelope) ([]byte, error)
}

// JSONCBORCodec is the default Codec. Envelopes are JSON so the host can
// read them; the payload under PayloadKey is CBOR, carried as a base64
// JSON string, so the host never needs to parse it.
//
// Neither method mutates the caller's map: the payload is substituted in
// a copy.
type JSONCBORCodec struct{}

// Encode implements Codec.
func (JSONCBORCodec) Encode(env Envelope) ([]byte, error) {
	var v any
	if env.IsList() {
		items, err := normalizeOutgoing(env.List)
		if err != nil {
			return nil, err
		}
		v = items
	} else {
		m := make(map[string]any, len(env.Map))
		for key, val := range env.Map {
			if !utf8.ValidString(key) {
				return nil, errors.Wrapf(ErrInvalidUTF8, "key %q", key)
			}
			if key == PayloadKey {
				payload, err := EncodePayload(val)
				if err != nil {
					return nil, errors.Wrap(err, "encode payload")
				}
				// encoding/json renders []byte as standard base64.
				m[key] = payload
				continue
			}
			nv, err := normalizeOutgoing(val)
			if err != nil {
				return nil, errors.WithMessagef(err, "key %q", key)
			}
			m[key] = nv
		}
		v = m
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.WithStack(err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode implements Codec.
func (JSONCBORCodec) Decode(text []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Envelope{}, errors.Wrap(err, "parse envelope")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Envelope{}, errors.New("parse envelope: trailing data after value")
	}

	switch v := normalizeIncoming(raw).(type) {
	case []any:
		return Envelope{List: v}, nil
	case map[string]any:
		if p, ok := v[PayloadKey]; ok {
			payload, err := decodeWirePayload(p)
			if err != nil {
				return Envelope{}, err
			}
			v[PayloadKey] = payload
		}
		return Envelope{Map: v}, nil
	}
	return Envelope{}, errors.WithStack(ErrNotContainer)
}

func decodeWirePayload(p any) (any, error) {
	s, ok := p.(string)
	if !ok {
		return nil, errors.Errorf("%s value is %T, want string", PayloadKey, p)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decode payload base64")
	}
	payload, err := DecodePayload(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	return payload, nil
}

// maxNestingDepth bounds how deep normalizeOutgoing follows nested values.
const maxNestingDepth = 10000

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// normalizeOutgoing copies v into values encoding/json renders the way the
// host reads them back. Byte slices become strings, floats with an integral
// value keep a fractional part, and text that is not valid UTF-8 is rejected
// wherever it appears. Slices, arrays and maps are rebuilt as []any and
// map[string]any; structs and marshalers are only checked.
func normalizeOutgoing(v any) (any, error) {
	return normalizeValue(reflect.ValueOf(v), 0)
}

func normalizeValue(rv reflect.Value, depth int) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}
	if depth > maxNestingDepth {
		return nil, errors.Errorf("value nested deeper than %d", maxNestingDepth)
	}
	if isMarshaler(rv.Type()) {
		return rv.Interface(), nil
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return normalizeValue(rv.Elem(), depth+1)
	case reflect.String:
		if !utf8.ValidString(rv.String()) {
			return nil, errors.Wrapf(ErrInvalidUTF8, "string %q", rv.String())
		}
		return rv.Interface(), nil
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv), nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := rv.Bytes()
			if !utf8.Valid(b) {
				return nil, errors.Wrapf(ErrInvalidUTF8, "bytes %q", b)
			}
			return string(b), nil
		}
		return normalizeList(rv, depth)
	case reflect.Array:
		return normalizeList(rv, depth)
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			if err := checkText(rv, depth); err != nil {
				return nil, err
			}
			return rv.Interface(), nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			if !utf8.ValidString(key) {
				return nil, errors.Wrapf(ErrInvalidUTF8, "key %q", key)
			}
			nv, err := normalizeValue(iter.Value(), depth+1)
			if err != nil {
				return nil, err
			}
			m[key] = nv
		}
		return m, nil
	case reflect.Struct:
		if err := checkText(rv, depth); err != nil {
			return nil, err
		}
		return rv.Interface(), nil
	}
	return rv.Interface(), nil
}

func normalizeList(rv reflect.Value, depth int) (any, error) {
	s := make([]any, rv.Len())
	for i := range s {
		nv, err := normalizeValue(rv.Index(i), depth+1)
		if err != nil {
			return nil, err
		}
		s[i] = nv
	}
	return s, nil
}

// normalizeFloat renders an integral float as a JSON number with a
// fractional part, so that it does not read back as an integer.
func normalizeFloat(rv reflect.Value) any {
	f := rv.Float()
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) >= 1e21 {
		return rv.Interface()
	}
	bits := 64
	if rv.Kind() == reflect.Float32 {
		bits = 32
	}
	return json.Number(strconv.FormatFloat(f, 'f', -1, bits) + ".0")
}

// checkText rejects invalid UTF-8 in the strings, byte slices and map keys
// reachable from rv, following only what encoding/json would render.
func checkText(rv reflect.Value, depth int) error {
	if !rv.IsValid() {
		return nil
	}
	if depth > maxNestingDepth {
		return errors.Errorf("value nested deeper than %d", maxNestingDepth)
	}
	if isMarshaler(rv.Type()) {
		return nil
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return checkText(rv.Elem(), depth+1)
	case reflect.String:
		if !utf8.ValidString(rv.String()) {
			return errors.Wrapf(ErrInvalidUTF8, "string %q", rv.String())
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			if b := rv.Bytes(); !utf8.Valid(b) {
				return errors.Wrapf(ErrInvalidUTF8, "bytes %q", b)
			}
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := checkText(rv.Index(i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if err := checkText(iter.Key(), depth+1); err != nil {
				return err
			}
			if err := checkText(iter.Value(), depth+1); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() && !field.Anonymous {
				continue
			}
			if field.Tag.Get("json") == "-" {
				continue
			}
			if err := checkText(rv.Field(i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func isMarshaler(t reflect.Type) bool {
	return t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType)
}

// normalizeIncoming replaces json.Number in place: numbers written with a
// fraction or exponent become float64, integers become int64, or *big.Int
// when they do not fit.
func normalizeIncoming(v any) any {
	switch t := v.(type) {
	case json.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			f, _ := t.Float64()
			return f
		}
		if i, err := t.Int64(); err == nil {
			return i
		}
		if bi, ok := new(big.Int).SetString(t.String(), 10); ok {
			return bi
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for key, val := range t {
			t[key] = normalizeIncoming(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeIncoming(val)
		}
		return t
	}
	return v
}
