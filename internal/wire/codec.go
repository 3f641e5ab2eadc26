package wire

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding: sorted map keys and the
// smallest integer encoding, so identical payloads produce identical bytes.
var encMode cbor.EncMode

// decMode decodes untyped maps as map[string]any. Peers only ever use
// string keys.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// unmarshalMap decodes a payload that must be a string-keyed map.
func unmarshalMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Reason: "empty payload"}
	}
	var m map[string]any
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, &ValidationError{Reason: "payload is not a CBOR map: " + err.Error()}
	}
	if m == nil {
		return nil, &ValidationError{Reason: "payload is null"}
	}
	return m, nil
}
