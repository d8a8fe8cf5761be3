package protocol

import "encoding/json"

// Validatable is implemented by every record type so Decode can run
// Validate() before a reader acts on a decoded record.
type Validatable interface {
	Validate() error
}

// Encode marshals a record to its canonical JSON form.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, invalid("codec", "encoding-failed: "+err.Error())
	}
	return b, nil
}

// Decode unmarshals and validates a record in one step. A record that
// fails to parse is a codec-level error; one that parses but fails its
// Validate() contract surfaces the validation reason.
func Decode[T Validatable](b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, invalid("codec", "decoding-failed: "+err.Error())
	}
	if err := v.Validate(); err != nil {
		return v, err
	}
	return v, nil
}
