// ABOUTME: Conversions between Starlark values and JSON-ready Go values.
// ABOUTME: Also builds the ctx struct every script callback receives.

package scriptgrid

import (
	"fmt"
	"sort"

	"github.com/2389/tabulator/internal/grid"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// toGo converts a Starlark value to a Go value encoding/json can marshal.
func toGo(v starlark.Value) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return v.String(), nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case *starlark.List:
		return toSlice(v)
	case starlark.Tuple:
		return toSlice(v)
	case *starlark.Dict:
		m := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				key = item[0].String()
			}
			val, err := toGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict value %q: %w", key, err)
			}
			m[key] = val
		}
		return m, nil
	case *starlarkstruct.Struct:
		m := make(map[string]any)
		for _, name := range v.AttrNames() {
			attr, err := v.Attr(name)
			if err != nil {
				return nil, err
			}
			val, err := toGo(attr)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			m[name] = val
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported Starlark type %s", v.Type())
	}
}

func toSlice(seq starlark.Indexable) ([]any, error) {
	out := make([]any, 0, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		elem, err := toGo(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, elem)
	}
	return out, nil
}

// toRows converts the result of a rows callback: a list of dicts.
func toRows(v starlark.Value) ([]grid.Row, error) {
	if v == starlark.None {
		return nil, nil
	}
	seq, ok := v.(starlark.Indexable)
	if !ok {
		return nil, fmt.Errorf("rows must return a list of dicts, got %s", v.Type())
	}
	rows := make([]grid.Row, 0, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		val, err := toGo(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		row, ok := val.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("row %d: got %s, want dict", i, seq.Index(i).Type())
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// requestValue builds the ctx struct passed to script callbacks.
func requestValue(req *grid.Request) starlark.Value {
	user, roles := "", starlark.NewList(nil)
	if req.User != nil {
		user = req.User.Name
		for _, r := range req.User.Roles {
			roles.Append(starlark.String(r))
		}
	}

	var language starlark.Value = starlark.None
	if req.Language != nil {
		language = starlark.String(req.Language.Name)
	}

	params := starlark.NewDict(len(req.Params))
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.SetKey(starlark.String(k), starlark.String(req.Params.Get(k)))
	}

	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"name":      starlark.String(req.Name),
		"user":      starlark.String(user),
		"roles":     roles,
		"language":  language,
		"locale":    starlark.String(req.Locale),
		"load_rows": starlark.Bool(req.LoadRows),
		"params":    params,
	})
}
