// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package interp

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// lookupMethod returns the native method name of obj, bound to obj.
func lookupMethod(obj Value, name string) (BuiltinFunc, bool) {
	switch x := obj.(type) {
	case Str:
		return strMethod(x, name)
	case *List:
		return listMethod(x, name)
	case *Dict:
		return dictMethod(x, name)
	case *Tuple:
		return tupleMethod(x, name)
	case Float:
		if name == "is_integer" {
			return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
				return Bool(float64(x) == math.Trunc(float64(x)) && !math.IsInf(float64(x), 0)), nil
			}, true
		}
	case Int:
		if name == "bit_length" {
			return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
				n := absInt(int64(x))
				l := 0
				for n > 0 {
					l++
					n >>= 1
				}
				return Int(l), nil
			}, true
		}
	}
	return nil, false
}

// =============================================================================
// str
// =============================================================================

func strMethod(s Str, name string) (BuiltinFunc, bool) {
	str := string(s)
	simple := func(f func(string) string) BuiltinFunc {
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 0); err != nil {
				return nil, err
			}
			return Str(f(str)), nil
		}
	}
	predicate := func(f func(rune) bool) BuiltinFunc {
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if str == "" {
				return Bool(false), nil
			}
			for _, r := range str {
				if !f(r) {
					return Bool(false), nil
				}
			}
			return Bool(true), nil
		}
	}
	trim := func(f func(string, string) string, def func(string) string) BuiltinFunc {
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs(name, args, kwargs, "chars?")
			if err != nil {
				return nil, err
			}
			if !spec.has(0) {
				return Str(def(str)), nil
			}
			chars, err := spec.str(0, "")
			if err != nil {
				return nil, err
			}
			return Str(f(str, chars)), nil
		}
	}

	switch name {
	case "upper":
		return simple(strings.ToUpper), true
	case "lower":
		return simple(strings.ToLower), true
	case "title":
		return simple(titleCase), true
	case "capitalize":
		return simple(func(s string) string {
			if s == "" {
				return s
			}
			r := []rune(strings.ToLower(s))
			r[0] = unicode.ToUpper(r[0])
			return string(r)
		}), true
	case "swapcase":
		return simple(func(s string) string {
			return strings.Map(func(r rune) rune {
				if unicode.IsUpper(r) {
					return unicode.ToLower(r)
				}
				return unicode.ToUpper(r)
			}, s)
		}), true
	case "strip":
		return trim(strings.Trim, strings.TrimSpace), true
	case "lstrip":
		return trim(strings.TrimLeft, func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }), true
	case "rstrip":
		return trim(strings.TrimRight, func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }), true
	case "isdigit", "isnumeric", "isdecimal":
		return predicate(unicode.IsDigit), true
	case "isalpha":
		return predicate(unicode.IsLetter), true
	case "isalnum":
		return predicate(func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }), true
	case "isspace":
		return predicate(unicode.IsSpace), true
	case "isupper":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return Bool(strings.ToUpper(str) == str && strings.ToLower(str) != str), nil
		}, true
	case "islower":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return Bool(strings.ToLower(str) == str && strings.ToUpper(str) != str), nil
		}, true
	case "split", "rsplit":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs(name, args, kwargs, "sep?", "maxsplit?")
			if err != nil {
				return nil, err
			}
			max, err := spec.int(1, -1)
			if err != nil {
				return nil, err
			}
			var parts []string
			if !spec.has(0) {
				parts = splitWhitespace(str, int(max))
			} else {
				sep, err := spec.str(0, "")
				if err != nil {
					return nil, err
				}
				if sep == "" {
					return nil, newError(excValueError, "empty separator")
				}
				n := -1
				if max >= 0 {
					n = int(max) + 1
				}
				if name == "rsplit" && n > 0 {
					parts = rsplitN(str, sep, n)
				} else {
					parts = strings.SplitN(str, sep, n)
				}
			}
			return strList(parts), nil
		}, true
	case "splitlines":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			lines := strings.Split(strings.ReplaceAll(str, "\r\n", "\n"), "\n")
			if len(lines) > 0 && lines[len(lines)-1] == "" {
				lines = lines[:len(lines)-1]
			}
			return strList(lines), nil
		}, true
	case "join":
		return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			elems, err := in.collect(args[0])
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(elems))
			for i, e := range elems {
				es, ok := e.(Str)
				if !ok {
					return nil, newError(excTypeError, "sequence item %d: expected str instance, %s found", i, e.TypeName())
				}
				parts[i] = string(es)
			}
			return Str(strings.Join(parts, str)), nil
		}, true
	case "replace":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs(name, args, kwargs, "old", "new", "count?")
			if err != nil {
				return nil, err
			}
			old, err := spec.str(0, "")
			if err != nil {
				return nil, err
			}
			repl, err := spec.str(1, "")
			if err != nil {
				return nil, err
			}
			count, err := spec.int(2, -1)
			if err != nil {
				return nil, err
			}
			return Str(strings.Replace(str, old, repl, int(count))), nil
		}, true
	case "startswith", "endswith":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			var cands []Value
			if t, ok := args[0].(*Tuple); ok {
				cands = t.Elems
			} else {
				cands = []Value{args[0]}
			}
			for _, c := range cands {
				cs, ok := c.(Str)
				if !ok {
					return nil, newError(excTypeError, "%s first arg must be str or a tuple of str, not %s", name, c.TypeName())
				}
				if (name == "startswith" && strings.HasPrefix(str, string(cs))) ||
					(name == "endswith" && strings.HasSuffix(str, string(cs))) {
					return Bool(true), nil
				}
			}
			return Bool(false), nil
		}, true
	case "find", "index", "rfind", "count":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			sub, ok := args[0].(Str)
			if !ok {
				return nil, newError(excTypeError, "must be str, not %s", args[0].TypeName())
			}
			switch name {
			case "count":
				return Int(strings.Count(str, string(sub))), nil
			case "rfind":
				return Int(runeIndex(str, strings.LastIndex(str, string(sub)))), nil
			}
			i := strings.Index(str, string(sub))
			if i < 0 && name == "index" {
				return nil, newError(excValueError, "substring not found")
			}
			return Int(runeIndex(str, i)), nil
		}, true
	case "format":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			out, err := formatString(str, args, kwargs)
			if err != nil {
				return nil, err
			}
			return Str(out), nil
		}, true
	case "zfill":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs(name, args, kwargs, "width")
			if err != nil {
				return nil, err
			}
			w, err := spec.int(0, 0)
			if err != nil {
				return nil, err
			}
			sign, body := "", str
			if strings.HasPrefix(body, "-") || strings.HasPrefix(body, "+") {
				sign, body = body[:1], body[1:]
			}
			out := str
			if n := int(w) - len([]rune(str)); n > 0 {
				out = sign + strings.Repeat("0", n) + body
			}
			return Str(out), nil
		}, true
	case "center", "ljust", "rjust":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs(name, args, kwargs, "width", "fillchar?")
			if err != nil {
				return nil, err
			}
			w, err := spec.int(0, 0)
			if err != nil {
				return nil, err
			}
			fill, err := spec.str(1, " ")
			if err != nil {
				return nil, err
			}
			align := map[string]string{"center": "^", "ljust": "<", "rjust": ">"}[name]
			out, err := formatValue(Str(str), fill+align+strconv.Itoa(int(w)))
			if err != nil {
				return nil, err
			}
			return Str(out), nil
		}, true
	}
	return nil, false
}

func titleCase(s string) string {
	var b strings.Builder
	prev := ' '
	for _, r := range s {
		if unicode.IsLetter(prev) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		prev = r
	}
	return b.String()
}

// splitWhitespace splits on runs of whitespace, at most max times when max
// is non-negative.
func splitWhitespace(s string, max int) []string {
	var out []string
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	for s != "" {
		if max >= 0 && len(out) == max {
			out = append(out, s)
			break
		}
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:end])
		s = strings.TrimLeftFunc(s[end:], unicode.IsSpace)
	}
	return out
}

func rsplitN(s, sep string, n int) []string {
	var out []string
	for len(out) < n-1 {
		i := strings.LastIndex(s, sep)
		if i < 0 {
			break
		}
		out = append([]string{s[i+len(sep):]}, out...)
		s = s[:i]
	}
	return append([]string{s}, out...)
}

func runeIndex(s string, byteIdx int) int {
	if byteIdx < 0 {
		return -1
	}
	return len([]rune(s[:byteIdx]))
}

func strList(parts []string) *List {
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = Str(p)
	}
	return &List{Elems: out}
}

// =============================================================================
// list
// =============================================================================

func listMethod(l *List, name string) (BuiltinFunc, bool) {
	switch name {
	case "append":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			l.Elems = append(l.Elems, args[0])
			return None, nil
		}, true
	case "extend":
		return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			elems, err := in.collect(args[0])
			if err != nil {
				return nil, err
			}
			l.Elems = append(l.Elems, elems...)
			return None, nil
		}, true
	case "insert":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 2); err != nil {
				return nil, err
			}
			i, ok := asInt(args[0])
			if !ok {
				return nil, newError(excTypeError, "'%s' object cannot be interpreted as an integer", args[0].TypeName())
			}
			pos := clampIndex(int(i), len(l.Elems))
			l.Elems = append(l.Elems, nil)
			copy(l.Elems[pos+1:], l.Elems[pos:])
			l.Elems[pos] = args[1]
			return None, nil
		}, true
	case "pop":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(l.Elems) == 0 {
				return nil, newError(excIndexError, "pop from empty list")
			}
			idx := Value(Int(len(l.Elems) - 1))
			if len(args) > 0 {
				idx = args[0]
			}
			i, err := normIndex(idx, len(l.Elems), "pop")
			if err != nil {
				return nil, err
			}
			v := l.Elems[i]
			l.Elems = append(l.Elems[:i], l.Elems[i+1:]...)
			return v, nil
		}, true
	case "remove":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			for i, e := range l.Elems {
				if Equal(e, args[0]) {
					l.Elems = append(l.Elems[:i], l.Elems[i+1:]...)
					return None, nil
				}
			}
			return nil, newError(excValueError, "list.remove(x): x not in list")
		}, true
	case "index":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			for i, e := range l.Elems {
				if Equal(e, args[0]) {
					return Int(i), nil
				}
			}
			return nil, newError(excValueError, "%s is not in list", Repr(args[0]))
		}, true
	case "count":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if err := exactArgs(name, args, 1); err != nil {
				return nil, err
			}
			n := 0
			for _, e := range l.Elems {
				if Equal(e, args[0]) {
					n++
				}
			}
			return Int(n), nil
		}, true
	case "reverse":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			for i, j := 0, len(l.Elems)-1; i < j; i, j = i+1, j-1 {
				l.Elems[i], l.Elems[j] = l.Elems[j], l.Elems[i]
			}
			return None, nil
		}, true
	case "sort":
		return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			spec, err := parseArgs(name, args, kwargs, "key?", "reverse?")
			if err != nil {
				return nil, err
			}
			sorted, err := in.sortValues(l.Elems, spec.get(0), spec.get(1))
			if err != nil {
				return nil, err
			}
			l.Elems = sorted
			return None, nil
		}, true
	case "copy":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return &List{Elems: append([]Value(nil), l.Elems...)}, nil
		}, true
	case "clear":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			l.Elems = nil
			return None, nil
		}, true
	}
	return nil, false
}

// sortValues returns a stably sorted copy of elems, honoring key and
// reverse the way sorted() does.
func (in *Interpreter) sortValues(elems []Value, key, reverse Value) ([]Value, error) {
	out := append([]Value(nil), elems...)
	keys := out
	if key != nil {
		if _, none := key.(NoneType); !none {
			keys = make([]Value, len(out))
			for i, e := range out {
				k, err := in.Call(key, []Value{e}, nil)
				if err != nil {
					return nil, err
				}
				keys[i] = k
			}
		}
	}
	rev := false
	if reverse != nil {
		r, err := Truthy(reverse)
		if err != nil {
			return nil, err
		}
		rev = r
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	sort.SliceStable(idx, func(a, b int) bool {
		if sortErr != nil {
			return false
		}
		ka, kb := keys[idx[a]], keys[idx[b]]
		if rev {
			ka, kb = kb, ka
		}
		c, err := order("<", ka, kb)
		if err != nil {
			sortErr = err
			return false
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	sorted := make([]Value, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted, nil
}

// =============================================================================
// tuple
// =============================================================================

func tupleMethod(t *Tuple, name string) (BuiltinFunc, bool) {
	switch name {
	case "index", "count":
		fn, _ := listMethod(&List{Elems: t.Elems}, name)
		return fn, true
	}
	return nil, false
}

// =============================================================================
// dict
// =============================================================================

func dictMethod(d *Dict, name string) (BuiltinFunc, bool) {
	switch name {
	case "keys":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return &List{Elems: d.Keys()}, nil
		}, true
	case "values":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			return &List{Elems: d.Values()}, nil
		}, true
	case "items":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			entries := d.Entries()
			out := make([]Value, len(entries))
			for i, e := range entries {
				out[i] = &Tuple{Elems: []Value{e.Key, e.Value}}
			}
			return &List{Elems: out}, nil
		}, true
	case "get":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, newError(excTypeError, "get expected 1 or 2 arguments, got %d", len(args))
			}
			v, found, err := d.Get(args[0])
			if err != nil {
				return nil, err
			}
			if found {
				return v, nil
			}
			if len(args) == 2 {
				return args[1], nil
			}
			return None, nil
		}, true
	case "pop":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, newError(excTypeError, "pop expected 1 or 2 arguments, got %d", len(args))
			}
			v, found, err := d.Get(args[0])
			if err != nil {
				return nil, err
			}
			if !found {
				if len(args) == 2 {
					return args[1], nil
				}
				return nil, &Exception{Class: excKeyError, Msg: Repr(args[0]), Args: []Value{args[0]}}
			}
			if _, err := d.Delete(args[0]); err != nil {
				return nil, err
			}
			return v, nil
		}, true
	case "setdefault":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, newError(excTypeError, "setdefault expected 1 or 2 arguments, got %d", len(args))
			}
			v, found, err := d.Get(args[0])
			if err != nil {
				return nil, err
			}
			if found {
				return v, nil
			}
			var def Value = None
			if len(args) == 2 {
				def = args[1]
			}
			return def, d.Set(args[0], def)
		}, true
	case "update":
		return func(in *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			if len(args) > 0 {
				if err := in.mergeInto(d, args[0]); err != nil {
					return nil, err
				}
			}
			for _, kw := range kwargs {
				if err := d.Set(Str(kw.Name), kw.Value); err != nil {
					return nil, err
				}
			}
			return None, nil
		}, true
	case "copy":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			out := NewDict()
			for _, e := range d.Entries() {
				_ = out.Set(e.Key, e.Value)
			}
			return out, nil
		}, true
	case "clear":
		return func(_ *Interpreter, args []Value, kwargs []Kwarg) (Value, error) {
			d.Clear()
			return None, nil
		}, true
	}
	return nil, false
}

// mergeInto copies a mapping or an iterable of pairs into d.
func (in *Interpreter) mergeInto(d *Dict, src Value) error {
	if m, ok := src.(*Dict); ok {
		for _, e := range m.Entries() {
			if err := d.Set(e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	}
	items, err := in.collect(src)
	if err != nil {
		return err
	}
	for i, item := range items {
		pair, err := in.collect(item)
		if err != nil || len(pair) != 2 {
			return newError(excValueError, "dictionary update sequence element #%d has wrong length", i)
		}
		if err := d.Set(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}
