//go:build windows

package kvstore

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// Registry is a Store backed by the Windows registry. Paths are relative to
// the root key, HKEY_LOCAL_MACHINE by default.
type Registry struct {
	root registry.Key
}

// NewRegistry returns a Store rooted at HKEY_LOCAL_MACHINE.
func NewRegistry() *Registry {
	return &Registry{root: registry.LOCAL_MACHINE}
}

func (r *Registry) Get(path, name string) (Value, error) {
	k, err := registry.OpenKey(r.root, path, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return Value{}, ErrNotExist
		}
		return Value{}, fmt.Errorf(`couldn't open registry key '%v': %w`, path, err)
	}
	defer k.Close()

	_, valType, err := k.GetValue(name, nil)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return Value{}, ErrNotExist
		}
		return Value{}, fmt.Errorf(`couldn't get registry value '%v\%v': %w`, path, name, err)
	}

	switch valType {
	case registry.SZ, registry.EXPAND_SZ:
		s, _, err := k.GetStringValue(name)
		if err != nil {
			return Value{}, fmt.Errorf(`couldn't get registry string value '%v\%v': %w`, path, name, err)
		}
		return StringValue(s), nil
	case registry.BINARY:
		b, _, err := k.GetBinaryValue(name)
		if err != nil {
			return Value{}, fmt.Errorf(`couldn't get registry binary value '%v\%v': %w`, path, name, err)
		}
		return BinaryValue(b), nil
	default:
		return Value{Type: TypeOther}, nil
	}
}

func (r *Registry) Set(path, name string, v Value) error {
	k, _, err := registry.CreateKey(r.root, path, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf(`couldn't create registry key '%v': %w`, path, err)
	}
	defer k.Close()

	switch v.Type {
	case TypeString:
		err = k.SetStringValue(name, string(v.Data))
	case TypeBinary:
		err = k.SetBinaryValue(name, v.Data)
	default:
		return fmt.Errorf(`unsupported value type %s for '%v\%v'`, v.Type, path, name)
	}
	if err != nil {
		return fmt.Errorf(`couldn't set registry value '%v\%v': %w`, path, name, err)
	}
	return nil
}
