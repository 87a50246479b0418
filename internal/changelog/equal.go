package changelog

import (
	"bytes"
	"database/sql/driver"
	"reflect"
	"time"
)

// valuesEqual compares two column values by value. Integers and floats of
// different Go widths compare equal when they hold the same number, so a
// value hydrated as int64 matches the same number later set as int.
func valuesEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []byte:
		switch bv := b.(type) {
		case []byte:
			return bytes.Equal(av, bv)
		case string:
			return string(av) == bv
		}
		return false
	case string:
		if bv, ok := b.([]byte); ok {
			return av == string(bv)
		}
	}

	return reflect.DeepEqual(a, b)
}

func normalize(v any) any {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}

	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return v
		}
		return dv
	}

	switch rv.Kind() {
	case reflect.Pointer:
		return normalize(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u <= 1<<63-1 {
			return int64(u)
		}
		return u
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}

	return v
}
