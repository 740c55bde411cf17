// Package confloader provides configuration loading mechanism.
package confloader

import (
	"errors"
	"reflect"
	"strings"
)

// ErrReadBytesNotSupported is returned when ReadBytes is called on a map provider.
var ErrReadBytesNotSupported = errors.New("confloader: ReadBytes not supported by map provider, use Read() instead")

// mapProvider is a koanf provider over a map; koanf uses Read.
type mapProvider map[string]any

// ReadBytes returns an error as map provider doesn't support byte serialization.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

// Read returns the configuration map.
func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

// structMap walks a struct by its koanf tags and returns its values as a
// nested map. Untagged fields are skipped.
func structMap(v any) (map[string]any, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, errors.New("confloader: nil struct")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.New("confloader: defaults must be a struct")
	}
	return structInto(rv), nil
}

func structInto(rv reflect.Value) map[string]any {
	out := make(map[string]any)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Struct && fv.Type().PkgPath() != "time" {
			out[tag] = structInto(fv)
			continue
		}
		out[tag] = fv.Interface()
	}
	return out
}
