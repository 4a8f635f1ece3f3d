// Package kvstore provides a durable, registry-like key-value store. Values
// live under a path (a key, in registry terms) and a name, and carry a type
// tag so readers can reject values written with an unexpected type.
//
// On Windows the store is the system registry. Elsewhere it is emulated with
// an embedded database (badger or bolt) kept in the agent root directory.
// Paths and names are case-insensitive, as in the registry. Machine-wide and
// per-install scopes are expressed through the path.
package kvstore

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotExist is returned by Get when the path or the name does not exist.
var ErrNotExist = errors.New("value does not exist")

// ValueType is the type tag stored with a value.
type ValueType uint8

const (
	// TypeOther is any type this package does not interpret.
	TypeOther ValueType = iota
	// TypeString is a string value (REG_SZ).
	TypeString
	// TypeBinary is an opaque byte value (REG_BINARY).
	TypeBinary
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	default:
		return "other"
	}
}

// Value is a typed value held by a Store.
type Value struct {
	Type ValueType
	Data []byte
}

// StringValue returns a TypeString value holding s.
func StringValue(s string) Value {
	return Value{Type: TypeString, Data: []byte(s)}
}

// BinaryValue returns a TypeBinary value holding b.
func BinaryValue(b []byte) Value {
	return Value{Type: TypeBinary, Data: b}
}

// Store is the registry-like durable store.
type Store interface {
	// Get returns the value stored at path/name, or ErrNotExist.
	Get(path, name string) (Value, error)
	// Set durably stores v at path/name, creating the path if needed.
	Set(path, name string, v Value) error
}

// GetString returns the string stored at path/name. A value of any other
// type is reported as an error.
func GetString(s Store, path, name string) (string, error) {
	v, err := s.Get(path, name)
	if err != nil {
		return "", err
	}
	if v.Type != TypeString {
		return "", fmt.Errorf("%s\\%s: unexpected value type %s", path, name, v.Type)
	}
	return string(v.Data), nil
}

// key builds the flat key used by the embedded database backends.
func key(path, name string) []byte {
	return []byte(strings.ToLower(strings.Trim(path, `\`)) + "\x00" + strings.ToLower(name))
}

// encode serializes a value for the embedded database backends: one byte of
// type tag followed by the data.
func encode(v Value) []byte {
	b := make([]byte, 0, len(v.Data)+1)
	b = append(b, byte(v.Type))
	return append(b, v.Data...)
}

func decode(b []byte) (Value, error) {
	if len(b) == 0 {
		return Value{}, errors.New("empty stored value")
	}
	data := make([]byte, len(b)-1)
	copy(data, b[1:])
	return Value{Type: ValueType(b[0]), Data: data}, nil
}
