package observ

import (
	"reflect"
	"sort"
	"strconv"
)

// Values are stored copy-on-write: a write clones every container on the
// way from the root to the written location and leaves the rest shared.
// Containers created by the engine are map[string]any and []any; reads also
// walk other string-keyed maps, slices, arrays and exported struct fields.

// Lookup returns the value at p below v. It walks values the same way node
// reads do, without tracking.
func Lookup(v any, p Path) (any, bool) {
	return lookup(v, p)
}

// Equal reports whether two values are equal the way change detection
// sees them.
func Equal(a, b any) bool {
	return valuesEqual(a, b)
}

// lookup returns the value at p below v.
func lookup(v any, p Path) (any, bool) {
	cur := v
	for _, t := range p {
		next, ok := step(cur, t)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// step descends one token.
func step(v any, t Token) (any, bool) {
	switch c := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		x, ok := c[t.String()]
		return x, ok
	case []any:
		i, ok := t.asIndex()
		if !ok || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		x := rv.MapIndex(reflect.ValueOf(t.String()).Convert(rv.Type().Key()))
		if !x.IsValid() {
			return nil, false
		}
		return x.Interface(), true
	case reflect.Slice, reflect.Array:
		i, ok := t.asIndex()
		if !ok || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Struct:
		f := rv.FieldByName(t.String())
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	}
	return nil, false
}

// asContainer converts v to an engine container when it is map- or
// slice-shaped. The conversion is shallow.
func asContainer(v any) (any, bool) {
	switch c := v.(type) {
	case map[string]any, []any:
		return c, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return m, true
	case reflect.Slice, reflect.Array:
		s := make([]any, rv.Len())
		for i := range s {
			s[i] = rv.Index(i).Interface()
		}
		return s, true
	}
	return nil, false
}

// modifyIn rebuilds the containers along p and replaces the value at p with
// the result of fn. Missing intermediate containers are created as maps.
func modifyIn(root any, p Path, fn func(old any, exists bool) (any, error)) (any, error) {
	if len(p) == 0 {
		return fn(root, root != nil)
	}

	t := p[0]
	var container any
	if root == nil {
		container = map[string]any{}
	} else {
		c, ok := asContainer(root)
		if !ok {
			return nil, errNotContainer(p)
		}
		container = c
	}

	child, exists := step(container, t)
	newChild, err := modifyIn(child, p[1:], func(old any, ok bool) (any, error) {
		return fn(old, ok && exists)
	})
	if err != nil {
		return nil, err
	}

	switch c := container.(type) {
	case map[string]any:
		m := make(map[string]any, len(c)+1)
		for k, v := range c {
			m[k] = v
		}
		m[t.String()] = newChild
		return m, nil
	case []any:
		i, ok := t.asIndex()
		if !ok || i < 0 || i > len(c) {
			return nil, errIndexRange(p[:1], i, len(c))
		}
		s := make([]any, len(c), len(c)+1)
		copy(s, c)
		if i == len(c) {
			return append(s, newChild), nil
		}
		s[i] = newChild
		return s, nil
	}
	return nil, errNotContainer(p)
}

// setIn returns root with the value at p replaced by v.
func setIn(root any, p Path, v any) (any, error) {
	return modifyIn(root, p, func(any, bool) (any, error) {
		return v, nil
	})
}

// deleteIn returns root with the map key or slice element at p removed.
func deleteIn(root any, p Path) (any, error) {
	last, ok := p.Last()
	if !ok {
		return nil, nil
	}
	return modifyIn(root, p.Parent(), func(old any, exists bool) (any, error) {
		if !exists {
			return old, nil
		}
		c, ok := asContainer(old)
		if !ok {
			return nil, errNotContainer(p)
		}
		switch m := c.(type) {
		case map[string]any:
			out := make(map[string]any, len(m))
			for k, v := range m {
				if k != last.String() {
					out[k] = v
				}
			}
			return out, nil
		case []any:
			i, ok := last.asIndex()
			if !ok || i < 0 || i >= len(m) {
				return nil, errIndexRange(p, i, len(m))
			}
			return removeAt(m, i), nil
		}
		return nil, errNotContainer(p)
	})
}

// insertIn returns root with v inserted into the slice at p before index i.
func insertIn(root any, p Path, i int, v any) (any, error) {
	return modifyIn(root, p, func(old any, exists bool) (any, error) {
		var s []any
		if exists && old != nil {
			c, ok := asContainer(old)
			sl, isSlice := c.([]any)
			if !ok || !isSlice {
				return nil, errNotContainer(p)
			}
			s = sl
		}
		if i < 0 || i > len(s) {
			return nil, errIndexRange(p, i, len(s))
		}
		out := make([]any, 0, len(s)+1)
		out = append(out, s[:i]...)
		out = append(out, v)
		return append(out, s[i:]...), nil
	})
}

// removeIn returns root with element i of the slice at p removed.
func removeIn(root any, p Path, i int) (any, error) {
	return modifyIn(root, p, func(old any, exists bool) (any, error) {
		c, ok := asContainer(old)
		s, isSlice := c.([]any)
		if !exists || !ok || !isSlice {
			return nil, errNotContainer(p)
		}
		if i < 0 || i >= len(s) {
			return nil, errIndexRange(p, i, len(s))
		}
		return removeAt(s, i), nil
	})
}

func removeAt(s []any, i int) []any {
	out := make([]any, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// valuesEqual reports deep equality, short-circuiting on shared containers
// so untouched copy-on-write subtrees compare in constant time.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			return false
		}
		if reflect.ValueOf(av).UnsafePointer() == reflect.ValueOf(bv).UnsafePointer() {
			return true
		}
		if len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !valuesEqual(x, y) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		if len(av) > 0 && &av[0] == &bv[0] {
			return true
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Comparable() && rb.Comparable() {
		return ra.Equal(rb)
	}
	return reflect.DeepEqual(a, b)
}

// shapeEqual reports whether two values expose the same keys: same key set
// for maps, same length for slices, equal values for scalars.
func shapeEqual(a, b any) bool {
	ka, aok := shapeOf(a)
	kb, bok := shapeOf(b)
	if aok != bok {
		return false
	}
	if !aok {
		return valuesEqual(a, b)
	}
	if len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

// shapeOf lists the child keys of a container in a stable order.
func shapeOf(v any) ([]string, bool) {
	c, ok := asContainer(v)
	if !ok {
		if s, isStruct := structFields(v); isStruct {
			return s, true
		}
		return nil, false
	}
	switch m := c.(type) {
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, true
	case []any:
		keys := make([]string, len(m))
		for i := range m {
			keys[i] = strconv.Itoa(i)
		}
		return keys, true
	}
	return nil, false
}

func structFields(v any) ([]string, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	var names []string
	for i := 0; i < rv.NumField(); i++ {
		if rv.Type().Field(i).IsExported() {
			names = append(names, rv.Type().Field(i).Name)
		}
	}
	return names, true
}

// Length returns the number of children of a container value, or 0.
func Length(v any) int {
	keys, _ := shapeOf(v)
	return len(keys)
}
