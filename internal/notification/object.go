package notification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// object is a decoded JSON object. Numbers stay json.Number so integer
// checks can tell 100 from 100.5.
type object map[string]any

func decodeObject(raw []byte) (object, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if m == nil {
		return nil, errors.New("decode payload: not an object")
	}
	return object(m), nil
}

func (o object) has(key string) bool {
	if o == nil {
		return false
	}
	v, ok := o[key]
	return ok && v != nil
}

func (o object) str(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

func (o object) boolean(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// flag accepts the 1/0 and true/false spellings used for caps switches.
func (o object) flag(key string) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case json.Number:
		i, err := v.Int64()
		return err == nil && i == 1
	}
	return false
}

func (o object) integer(key string, def int) int {
	if v, ok := o[key].(json.Number); ok {
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	}
	return def
}

func (o object) int64(key string, def int64) int64 {
	if v, ok := o[key].(json.Number); ok {
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	}
	return def
}

func (o object) float(key string, def float64) float64 {
	if v, ok := o[key].(json.Number); ok {
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

func (o object) obj(key string) object {
	if v, ok := o[key].(map[string]any); ok {
		return object(v)
	}
	return nil
}

func (o object) arr(key string) []any {
	if v, ok := o[key].([]any); ok {
		return v
	}
	return nil
}

func (o object) stringMap(key string) map[string]string {
	m := o.obj(key)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case nil:
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}

// isInt reports whether key holds an integral JSON number.
func (o object) isInt(key string) bool {
	v, ok := o[key].(json.Number)
	if !ok {
		return false
	}
	_, err := v.Int64()
	return err == nil
}

func (o object) isBool(key string) bool {
	_, ok := o[key].(bool)
	return ok
}

func (o object) isString(key string) bool {
	_, ok := o[key].(string)
	return ok
}
