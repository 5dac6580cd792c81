package querycache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		IntDec: cbor.IntDecConvertSignedOrFail,
		UTF8:   cbor.UTF8DecodeInvalid,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes an entry for persistent backends.
func Marshal(e *Entry) ([]byte, error) {
	b, err := encMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("querycache: encode: %w", err)
	}
	return b, nil
}

// Unmarshal decodes an entry written by Marshal. Integers come back as
// int64, byte strings as []byte and timestamps as time.Time.
func Unmarshal(b []byte) (*Entry, error) {
	var e Entry
	if err := decMode.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("querycache: decode: %w", err)
	}
	return &e, nil
}
