package multilang

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// payloadEncMode uses Core Deterministic Encoding so the same payload
// always produces the same bytes on the wire.
var payloadEncMode cbor.EncMode

var payloadDecMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	payloadEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("multilang: CBOR encoder initialization failed: " + err.Error())
	}

	payloadDecMode, err = cbor.DecOptions{
		// Payloads decode into plain JSON-shaped values: map[string]any
		// rather than map[any]any, int64 for integers that fit and
		// *big.Int for the rest.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSignedOrBigInt,
		BigIntDec:      cbor.BigIntDecodePointer,
	}.DecMode()
	if err != nil {
		panic("multilang: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodePayload encodes an application payload to CBOR.
//
// Structs encode as CBOR maps keyed by field name and arrays/slices as
// CBOR arrays; there is no distinguished tuple type on the wire.
func EncodePayload(v any) ([]byte, error) {
	return payloadEncMode.Marshal(v)
}

// DecodePayload decodes a CBOR payload into native values: map[string]any,
// []any, string, int64, *big.Int, float64, bool, []byte or nil.
func DecodePayload(data []byte) (any, error) {
	var v any
	if err := payloadDecMode.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
