package keys

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

// EncodeQuery produces a deterministic query string.
//
// Keys are sorted at every level. Slices are encoded as repeated
// "key[]=v" pairs in slice order, nested maps as "key[sub]=v", nil values
// are skipped. Names and values are URL escaped.
func EncodeQuery(query map[string]any) string {
	if len(query) == 0 {
		return ""
	}
	var pairs []string
	encodeMap(&pairs, "", query)
	return strings.Join(pairs, "&")
}

func encodeMap(pairs *[]string, prefix string, m map[string]any) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		name := k
		if prefix != "" {
			name = prefix + "[" + k + "]"
		}
		encodeValue(pairs, name, m[k])
	}
}

func encodeValue(pairs *[]string, name string, v any) {
	if v == nil {
		return
	}
	switch val := v.(type) {
	case map[string]any:
		encodeMap(pairs, name, val)
		return
	case []any:
		for _, item := range val {
			encodeValue(pairs, name+"[]", item)
		}
		return
	case string:
		*pairs = append(*pairs, url.QueryEscape(name)+"="+url.QueryEscape(val))
		return
	case fmt.Stringer:
		*pairs = append(*pairs, url.QueryEscape(name)+"="+url.QueryEscape(val.String()))
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return
		}
		encodeValue(pairs, name, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			encodeValue(pairs, name+"[]", rv.Index(i).Interface())
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			*pairs = append(*pairs, url.QueryEscape(name)+"="+url.QueryEscape(scalar(v)))
			return
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		encodeMap(pairs, name, m)
	default:
		*pairs = append(*pairs, url.QueryEscape(name)+"="+url.QueryEscape(scalar(v)))
	}
}

// scalar renders a leaf value. Structs fall back to canonical JSON so
// equal values always produce equal text.
func scalar(v any) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}
