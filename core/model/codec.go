package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeErrorKind classifies payload decoding failures.
type DecodeErrorKind int

const (
	// NotJSON means the bytes are not a JSON object.
	NotJSON DecodeErrorKind = iota
	// WrongType means a field is present with an incompatible JSON type.
	WrongType
)

func (k DecodeErrorKind) String() string {
	switch k {
	case NotJSON:
		return "not_json"
	case WrongType:
		return "wrong_type"
	default:
		return "unknown"
	}
}

// DecodeError is returned by Decode when a message cannot be turned into a
// Payload.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode payload: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("decode payload: %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes the payload as a JSON object. Every field is emitted.
func Encode(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses a JSON object into a Payload. Missing fields keep the values
// of Defaults; unknown fields are ignored.
func Decode(data []byte) (Payload, error) {
	p := Defaults()
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Payload{}, &DecodeError{Kind: NotJSON, Err: errors.New("expected a JSON object")}
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Payload{}, &DecodeError{Kind: WrongType, Field: typeErr.Field, Err: err}
		}
		return Payload{}, &DecodeError{Kind: NotJSON, Err: err}
	}
	return p, nil
}

// UnmarshalJSON accepts integral numbers such as 1 or 1.0.
func (u *TemperatureUnit) UnmarshalJSON(data []byte) error {
	n, ok, err := decodeIntegral(data, reflect.TypeOf(*u))
	if ok {
		*u = TemperatureUnit(n)
	}
	return err
}

// UnmarshalJSON accepts integral numbers such as 2 or 2.0.
func (v *VehicleType) UnmarshalJSON(data []byte) error {
	n, ok, err := decodeIntegral(data, reflect.TypeOf(*v))
	if ok {
		*v = VehicleType(n)
	}
	return err
}

// decodeIntegral reads a JSON number with no fractional part. ok is false for
// null, which leaves the target untouched.
func decodeIntegral(data []byte, t reflect.Type) (int, bool, error) {
	if string(bytes.TrimSpace(data)) == "null" {
		return 0, false, nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false, &json.UnmarshalTypeError{Value: string(data), Type: t}
	}
	return int(f), true, nil
}

// LoadFile reads a payload from a JSON or YAML file. Fields missing from the
// file keep the values of Defaults.
func LoadFile(path string) (Payload, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		p, err := Decode(b)
		if err != nil {
			return Payload{}, fmt.Errorf("%s: %w", path, err)
		}
		return p, nil
	case ".yaml", ".yml":
		p := Defaults()
		if err := yaml.Unmarshal(b, &p); err != nil {
			return Payload{}, fmt.Errorf("%s: %w", path, err)
		}
		return p, nil
	default:
		return Payload{}, fmt.Errorf("unsupported payload format: %s", ext)
	}
}
