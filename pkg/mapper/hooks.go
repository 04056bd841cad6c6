package mapper

import (
	"reflect"
	"time"
)

// timestampHook decodes push timestamps into time.Time. Servers are not
// consistent here: some emit RFC3339 strings, some epoch milliseconds.
func timestampHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return data, err
		}
		return ts, nil
	case float64:
		return time.UnixMilli(int64(v)), nil
	case int64:
		return time.UnixMilli(v), nil
	default:
		return data, nil
	}
}
