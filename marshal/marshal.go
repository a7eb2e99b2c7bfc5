// Package marshal converts frame payloads to and from Go values.
package marshal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Kind names a Marshaller.
type Kind string

const (
	KindJSON   Kind = "json"
	KindYAML   Kind = "yaml"
	KindString Kind = "string"
	KindBytes  Kind = "bytes"
)

// ErrUnsupported is returned when a value or target type cannot be handled by a marshaller.
var ErrUnsupported = errors.New("unsupported type")

// Marshaller encodes handler results and decodes frame payloads.
type Marshaller interface {
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes data into v, which must be a non-nil pointer.
	Unmarshal(data []byte, v any) error
}

// For returns the marshaller registered under kind.
func For(kind Kind) (Marshaller, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindJSON, "":
		return JSON{}, nil
	case KindYAML:
		return YAML{}, nil
	case KindString:
		return String{}, nil
	case KindBytes:
		return Bytes{}, nil
	default:
		return nil, errors.Errorf("unknown marshal kind: %q", kind)
	}
}

// JSON uses encoding/json.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSON) String() string { return string(KindJSON) }

// YAML uses gopkg.in/yaml.v3. Since YAML is a superset of JSON it also
// accepts relaxed JSON payloads such as {'i': 10}.
type YAML struct{}

func (YAML) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (YAML) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

func (YAML) String() string { return string(KindYAML) }

// String passes payloads through as text.
//
// Marshal accepts strings, byte slices, fmt.Stringer and anything else
// fmt.Sprint can print. Unmarshal targets *string and *[]byte.
type String struct{}

func (String) Marshal(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case fmt.Stringer:
		return []byte(t.String()), nil
	default:
		return []byte(fmt.Sprint(v)), nil
	}
}

func (String) Unmarshal(data []byte, v any) error {
	switch t := v.(type) {
	case *string:
		*t = string(data)
	case *[]byte:
		*t = append([]byte(nil), data...)
	default:
		return errors.Wrapf(ErrUnsupported, "string marshaller cannot decode into %T", v)
	}
	return nil
}

func (String) String() string { return string(KindString) }

// Bytes passes raw payloads through unchanged.
type Bytes struct{}

func (Bytes) Marshal(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "bytes marshaller cannot encode %T", v)
	}
}

func (Bytes) Unmarshal(data []byte, v any) error {
	t, ok := v.(*[]byte)
	if !ok {
		return errors.Wrapf(ErrUnsupported, "bytes marshaller cannot decode into %T", v)
	}
	*t = append([]byte(nil), data...)
	return nil
}

func (Bytes) String() string { return string(KindBytes) }
