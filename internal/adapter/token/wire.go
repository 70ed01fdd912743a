package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
)

// errUnsupportedParam marks a value whose Go type cannot be restored exactly.
var errUnsupportedParam = errors.New("unsupported parameter type")

// Value tags. The tag names the Go type the value is restored to.
const (
	tagNull    = "null"
	tagBool    = "bool"
	tagString  = "string"
	tagBytes   = "bytes"
	tagTime    = "time"
	tagInt     = "int"
	tagInt8    = "int8"
	tagInt16   = "int16"
	tagInt32   = "int32"
	tagInt64   = "int64"
	tagUint    = "uint"
	tagUint8   = "uint8"
	tagUint16  = "uint16"
	tagUint32  = "uint32"
	tagUint64  = "uint64"
	tagFloat32 = "float32"
	tagFloat64 = "float64"
	tagList    = "list"
	tagMap     = "map"
)

// wireValue is one parameter as carried in a token. Numbers travel as
// strings so no precision is lost to JSON's float64.
type wireValue struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v,omitempty"`
}

type wireParams struct {
	Positional []wireValue          `json:"pos,omitempty"`
	Named      map[string]wireValue `json:"named,omitempty"`
}

func encodeParams(p domain.Params) (wireParams, error) {
	var out wireParams
	if p.Positional != nil {
		out.Positional = make([]wireValue, len(p.Positional))
		for i, v := range p.Positional {
			w, err := encodeValue(v)
			if err != nil {
				return wireParams{}, fmt.Errorf("param %d: %w", i+1, err)
			}
			out.Positional[i] = w
		}
	}
	if p.Named != nil {
		out.Named = make(map[string]wireValue, len(p.Named))
		for k, v := range p.Named {
			w, err := encodeValue(v)
			if err != nil {
				return wireParams{}, fmt.Errorf("param %q: %w", k, err)
			}
			out.Named[k] = w
		}
	}
	return out, nil
}

func decodeParams(w wireParams) (domain.Params, error) {
	var out domain.Params
	if w.Positional != nil {
		out.Positional = make([]any, len(w.Positional))
		for i, v := range w.Positional {
			d, err := decodeValue(v)
			if err != nil {
				return domain.Params{}, fmt.Errorf("param %d: %w", i+1, err)
			}
			out.Positional[i] = d
		}
	}
	if w.Named != nil {
		out.Named = make(map[string]any, len(w.Named))
		for k, v := range w.Named {
			d, err := decodeValue(v)
			if err != nil {
				return domain.Params{}, fmt.Errorf("param %q: %w", k, err)
			}
			out.Named[k] = d
		}
	}
	return out, nil
}

func encodeValue(v any) (wireValue, error) {
	switch x := v.(type) {
	case nil:
		return wireValue{Type: tagNull}, nil
	case bool:
		return raw(tagBool, x)
	case string:
		return raw(tagString, x)
	case []byte:
		if x == nil {
			return wireValue{Type: tagBytes}, nil
		}
		return raw(tagBytes, base64.StdEncoding.EncodeToString(x))
	case time.Time:
		// Only UTC survives exactly; a named zone would come back as a fixed offset.
		if x.Location() != time.UTC {
			return wireValue{}, fmt.Errorf("%w: time.Time in %s", errUnsupportedParam, x.Location())
		}
		return raw(tagTime, x.Format(time.RFC3339Nano))
	case int:
		return raw(tagInt, strconv.FormatInt(int64(x), 10))
	case int8:
		return raw(tagInt8, strconv.FormatInt(int64(x), 10))
	case int16:
		return raw(tagInt16, strconv.FormatInt(int64(x), 10))
	case int32:
		return raw(tagInt32, strconv.FormatInt(int64(x), 10))
	case int64:
		return raw(tagInt64, strconv.FormatInt(x, 10))
	case uint:
		return raw(tagUint, strconv.FormatUint(uint64(x), 10))
	case uint8:
		return raw(tagUint8, strconv.FormatUint(uint64(x), 10))
	case uint16:
		return raw(tagUint16, strconv.FormatUint(uint64(x), 10))
	case uint32:
		return raw(tagUint32, strconv.FormatUint(uint64(x), 10))
	case uint64:
		return raw(tagUint64, strconv.FormatUint(x, 10))
	case float32:
		return raw(tagFloat32, strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		return raw(tagFloat64, strconv.FormatFloat(x, 'g', -1, 64))
	case []any:
		items := make([]wireValue, len(x))
		for i, item := range x {
			w, err := encodeValue(item)
			if err != nil {
				return wireValue{}, err
			}
			items[i] = w
		}
		return raw(tagList, items)
	case map[string]any:
		entries := make(map[string]wireValue, len(x))
		for k, item := range x {
			w, err := encodeValue(item)
			if err != nil {
				return wireValue{}, err
			}
			entries[k] = w
		}
		return raw(tagMap, entries)
	default:
		return wireValue{}, fmt.Errorf("%w: %T", errUnsupportedParam, v)
	}
}

func raw(tag string, v any) (wireValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return wireValue{}, err
	}
	return wireValue{Type: tag, Value: b}, nil
}

func decodeValue(w wireValue) (any, error) {
	switch w.Type {
	case tagNull:
		return nil, nil
	case tagBool:
		var b bool
		err := json.Unmarshal(w.Value, &b)
		return b, err
	case tagString:
		var s string
		err := json.Unmarshal(w.Value, &s)
		return s, err
	case tagBytes:
		if w.Value == nil {
			return []byte(nil), nil
		}
		s, err := unquote(w)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	case tagTime:
		s, err := unquote(w)
		if err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, s)
	case tagInt, tagInt8, tagInt16, tagInt32, tagInt64:
		return decodeInt(w)
	case tagUint, tagUint8, tagUint16, tagUint32, tagUint64:
		return decodeUint(w)
	case tagFloat32:
		s, err := unquote(w)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), err
	case tagFloat64:
		s, err := unquote(w)
		if err != nil {
			return nil, err
		}
		return strconv.ParseFloat(s, 64)
	case tagList:
		var items []wireValue
		if err := json.Unmarshal(w.Value, &items); err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			d, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	case tagMap:
		var entries map[string]wireValue
		if err := json.Unmarshal(w.Value, &entries); err != nil {
			return nil, err
		}
		out := make(map[string]any, len(entries))
		for k, item := range entries {
			d, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value tag %q", w.Type)
	}
}

func unquote(w wireValue) (string, error) {
	var s string
	if err := json.Unmarshal(w.Value, &s); err != nil {
		return "", fmt.Errorf("%s value: %w", w.Type, err)
	}
	return s, nil
}

func decodeInt(w wireValue) (any, error) {
	s, err := unquote(w)
	if err != nil {
		return nil, err
	}
	bits := map[string]int{tagInt: strconv.IntSize, tagInt8: 8, tagInt16: 16, tagInt32: 32, tagInt64: 64}[w.Type]
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return nil, err
	}
	switch w.Type {
	case tagInt:
		return int(n), nil
	case tagInt8:
		return int8(n), nil
	case tagInt16:
		return int16(n), nil
	case tagInt32:
		return int32(n), nil
	default:
		return n, nil
	}
}

func decodeUint(w wireValue) (any, error) {
	s, err := unquote(w)
	if err != nil {
		return nil, err
	}
	bits := map[string]int{tagUint: strconv.IntSize, tagUint8: 8, tagUint16: 16, tagUint32: 32, tagUint64: 64}[w.Type]
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return nil, err
	}
	switch w.Type {
	case tagUint:
		return uint(n), nil
	case tagUint8:
		return uint8(n), nil
	case tagUint16:
		return uint16(n), nil
	case tagUint32:
		return uint32(n), nil
	default:
		return n, nil
	}
}
