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
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/steptrace/services/steptrace/ast"
)

// =============================================================================
// String literals
// =============================================================================

// evalString evaluates a string or concatenated_string node. F-string
// interpolations are found as child nodes and spliced in by byte range so
// both old and new grammar layouts work.
func (in *Interpreter) evalString(fr *Frame, n *sitter.Node) (Value, error) {
	if n.Type() == "concatenated_string" {
		var b strings.Builder
		for _, part := range ast.NamedChildren(n) {
			v, err := in.evalString(fr, part)
			if err != nil {
				return nil, err
			}
			b.WriteString(string(v.(Str)))
		}
		return Str(b.String()), nil
	}

	src := fr.Unit.Source()
	start, end := int(n.StartByte()), int(n.EndByte())
	text := string(src[start:end])
	prefixLen := strings.IndexAny(text, `'"`)
	if prefixLen < 0 {
		return nil, newError(excInternalError, "malformed string literal")
	}
	prefix := strings.ToLower(text[:prefixLen])
	raw := strings.Contains(prefix, "r")
	fstring := strings.Contains(prefix, "f")

	quote := text[prefixLen : prefixLen+1]
	if strings.HasPrefix(text[prefixLen:], strings.Repeat(quote, 3)) && len(text)-prefixLen >= 6 {
		quote = strings.Repeat(quote, 3)
	}
	bodyStart := start + prefixLen + len(quote)
	bodyEnd := end - len(quote)
	if bodyEnd < bodyStart {
		bodyEnd = bodyStart
	}

	var b strings.Builder
	pos := bodyStart
	literal := func(to int) {
		seg := string(src[pos:to])
		if fstring {
			seg = strings.ReplaceAll(strings.ReplaceAll(seg, "{{", "{"), "}}", "}")
		}
		if !raw {
			seg = unescape(seg)
		}
		b.WriteString(seg)
	}
	if fstring {
		for _, c := range ast.Children(n) {
			if c.Type() != "interpolation" {
				continue
			}
			cs := int(c.StartByte())
			if cs < pos || cs >= bodyEnd {
				continue
			}
			literal(cs)
			s, err := in.interpolate(fr, c)
			if err != nil {
				return nil, err
			}
			b.WriteString(s)
			pos = int(c.EndByte())
		}
	}
	if pos < bodyEnd {
		literal(bodyEnd)
	}
	return Str(b.String()), nil
}

// interpolate evaluates one {expr!conv:spec} field of an f-string.
func (in *Interpreter) interpolate(fr *Frame, n *sitter.Node) (string, error) {
	exprNode := n.ChildByFieldName("expression")
	var conv, spec string
	selfDoc := false
	for _, c := range ast.Children(n) {
		switch c.Type() {
		case "type_conversion":
			conv = strings.TrimPrefix(fr.Unit.text(c), "!")
		case "format_specifier":
			spec = strings.TrimPrefix(fr.Unit.text(c), ":")
		case "=":
			selfDoc = true
		}
		if exprNode == nil && c.IsNamed() && c.Type() != "type_conversion" && c.Type() != "format_specifier" {
			exprNode = c
		}
	}
	if exprNode == nil {
		return "", newError(excInternalError, "empty f-string field")
	}
	v, err := in.eval(fr, exprNode)
	if err != nil {
		return "", err
	}
	prefix := ""
	if selfDoc {
		prefix = fr.Unit.text(exprNode) + "="
		if conv == "" && spec == "" {
			conv = "r"
		}
	}
	switch conv {
	case "r", "a":
		v = Str(Repr(v))
	case "s":
		v = Str(StrOf(v))
	}
	s, err := formatValue(v, spec)
	if err != nil {
		return "", err
	}
	return prefix + s, nil
}

// unescape processes backslash escapes of a non-raw literal.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '\\', '\'', '"':
			b.WriteByte(s[i])
		case '\n':
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[s[i]]
			if i+1+width <= len(s) {
				if r, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32); err == nil {
					b.WriteRune(rune(r))
					i += width
					continue
				}
			}
			b.WriteByte('\\')
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// =============================================================================
// Format specs
// =============================================================================

// formatSpec is a parsed [[fill]align][sign][0][width][,][.precision][type].
type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	zero      bool
	width     int
	comma     bool
	precision int
	typ       byte
}

func parseFormatSpec(spec string) (formatSpec, error) {
	fs := formatSpec{fill: ' ', precision: -1}
	s := spec
	if r, size := utf8.DecodeRuneInString(s); size > 0 && len(s) > size && strings.ContainsRune("<>^=", rune(s[size])) {
		fs.fill, fs.align = r, s[size]
		s = s[size+1:]
	} else if len(s) > 0 && strings.ContainsRune("<>^=", rune(s[0])) {
		fs.align = s[0]
		s = s[1:]
	}
	if len(s) > 0 && strings.ContainsRune("+- ", rune(s[0])) {
		fs.sign = s[0]
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '0' {
		fs.zero = true
		s = s[1:]
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 {
		fs.width, _ = strconv.Atoi(s[:i])
		s = s[i:]
	}
	if len(s) > 0 && (s[0] == ',' || s[0] == '_') {
		fs.comma = true
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '.' {
		j := 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		fs.precision, _ = strconv.Atoi(s[1:j])
		s = s[j:]
	}
	if len(s) > 1 {
		return fs, newError(excValueError, "Invalid format specifier '%s'", spec)
	}
	if len(s) == 1 {
		fs.typ = s[0]
	}
	return fs, nil
}

// formatValue implements format(v, spec).
func formatValue(v Value, spec string) (string, error) {
	if spec == "" {
		return StrOf(v), nil
	}
	fs, err := parseFormatSpec(spec)
	if err != nil {
		return "", err
	}

	var body string
	numeric := false
	switch fs.typ {
	case 'f', 'F', 'e', 'E', 'g', 'G', '%':
		f, ok := asFloat(v)
		if !ok {
			return "", newError(excValueError, "Unknown format code '%c' for object of type '%s'", fs.typ, v.TypeName())
		}
		numeric = true
		body = formatFloatSpec(f, fs)
	case 'd', 'x', 'X', 'o', 'b':
		n, ok := asInt(v)
		if !ok {
			return "", newError(excValueError, "Unknown format code '%c' for object of type '%s'", fs.typ, v.TypeName())
		}
		numeric = true
		base := map[byte]int{'d': 10, 'x': 16, 'X': 16, 'o': 8, 'b': 2}[fs.typ]
		body = strconv.FormatInt(n, base)
		if fs.typ == 'X' {
			body = strings.ToUpper(body)
		}
		if fs.comma && fs.typ == 'd' {
			body = groupThousands(body)
		}
	case 0:
		switch x := v.(type) {
		case Float:
			numeric = true
			if fs.precision >= 0 {
				fs.typ = 'g'
				body = formatFloatSpec(float64(x), fs)
			} else {
				body = FormatFloat(float64(x))
				if fs.comma {
					body = groupThousands(body)
				}
			}
		case Int, Bool:
			n, _ := asInt(x)
			if _, isBool := x.(Bool); isBool {
				body = StrOf(x)
			} else {
				numeric = true
				body = strconv.FormatInt(n, 10)
				if fs.comma {
					body = groupThousands(body)
				}
			}
		default:
			body = StrOf(v)
			if fs.precision >= 0 && len([]rune(body)) > fs.precision {
				body = string([]rune(body)[:fs.precision])
			}
		}
	case 's':
		body = StrOf(v)
		if fs.precision >= 0 && len([]rune(body)) > fs.precision {
			body = string([]rune(body)[:fs.precision])
		}
	default:
		return "", newError(excValueError, "Unknown format code '%c' for object of type '%s'", fs.typ, v.TypeName())
	}

	if numeric && fs.sign == '+' && !strings.HasPrefix(body, "-") {
		body = "+" + body
	} else if numeric && fs.sign == ' ' && !strings.HasPrefix(body, "-") {
		body = " " + body
	}
	return pad(body, fs, numeric), nil
}

func formatFloatSpec(f float64, fs formatSpec) string {
	prec := fs.precision
	if prec < 0 {
		prec = 6
	}
	var s string
	switch fs.typ {
	case 'f', 'F':
		s = strconv.FormatFloat(f, 'f', prec, 64)
	case 'e', 'E':
		s = strconv.FormatFloat(f, 'e', prec, 64)
	case 'g', 'G':
		if prec == 0 {
			prec = 1
		}
		s = strconv.FormatFloat(f, 'g', prec, 64)
	case '%':
		s = strconv.FormatFloat(f*100, 'f', prec, 64) + "%"
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		s = strings.ToLower(FormatFloat(f))
	}
	if fs.typ == 'E' || fs.typ == 'G' || fs.typ == 'F' {
		s = strings.ToUpper(s)
	}
	if fs.comma {
		intPart, frac, hasFrac := strings.Cut(s, ".")
		s = groupThousands(intPart)
		if hasFrac {
			s += "." + frac
		}
	}
	return s
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, rest, hasRest := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String()
	if hasRest {
		out += "." + rest
	}
	return out
}

func pad(body string, fs formatSpec, numeric bool) string {
	n := utf8.RuneCountInString(body)
	if n >= fs.width {
		return body
	}
	gap := fs.width - n
	align := fs.align
	fill := string(fs.fill)
	if fs.zero && align == 0 && numeric {
		sign := ""
		if strings.HasPrefix(body, "-") || strings.HasPrefix(body, "+") {
			sign, body = body[:1], body[1:]
		}
		return sign + strings.Repeat("0", gap) + body
	}
	if align == 0 {
		if numeric {
			align = '>'
		} else {
			align = '<'
		}
	}
	switch align {
	case '>':
		return strings.Repeat(fill, gap) + body
	case '^':
		left := gap / 2
		return strings.Repeat(fill, left) + body + strings.Repeat(fill, gap-left)
	case '=':
		sign := ""
		if strings.HasPrefix(body, "-") || strings.HasPrefix(body, "+") {
			sign, body = body[:1], body[1:]
		}
		return sign + strings.Repeat(fill, gap) + body
	}
	return body + strings.Repeat(fill, gap)
}

// formatString implements str.format with positional, numbered and named
// fields.
func formatString(tmpl string, args []Value, kwargs []Kwarg) (string, error) {
	var b strings.Builder
	auto := 0
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c == '}' {
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
			}
			b.WriteByte('}')
			continue
		}
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			b.WriteByte('{')
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			return "", newError(excValueError, "Single '{' encountered in format string")
		}
		field := tmpl[i+1 : i+end]
		i += end
		name, spec, _ := strings.Cut(field, ":")
		conv := ""
		if k := strings.IndexByte(name, '!'); k >= 0 {
			name, conv = name[:k], name[k+1:]
		}
		var v Value
		switch {
		case name == "":
			if auto >= len(args) {
				return "", newError(excIndexError, "Replacement index %d out of range for positional args tuple", auto)
			}
			v = args[auto]
			auto++
		case name[0] >= '0' && name[0] <= '9':
			idx, err := strconv.Atoi(name)
			if err != nil || idx >= len(args) {
				return "", newError(excIndexError, "Replacement index %s out of range for positional args tuple", name)
			}
			v = args[idx]
		default:
			for _, kw := range kwargs {
				if kw.Name == name {
					v = kw.Value
				}
			}
			if v == nil {
				return "", newError(excKeyError, "%s", quoteStr(name))
			}
		}
		if conv == "r" {
			v = Str(Repr(v))
		}
		s, err := formatValue(v, spec)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// percentFormat implements the printf-style str % args operator.
func percentFormat(tmpl string, arg Value) (string, error) {
	var args []Value
	if t, ok := arg.(*Tuple); ok {
		args = t.Elems
	} else {
		args = []Value{arg}
	}
	var b strings.Builder
	next := 0
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' {
			b.WriteByte(tmpl[i])
			continue
		}
		j := i + 1
		for j < len(tmpl) && strings.IndexByte("0123456789.-+ #", tmpl[j]) >= 0 {
			j++
		}
		if j >= len(tmpl) {
			return "", newError(excValueError, "incomplete format")
		}
		verb := tmpl[j]
		flags := tmpl[i+1 : j]
		i = j
		if verb == '%' {
			b.WriteByte('%')
			continue
		}
		if next >= len(args) {
			return "", newError(excTypeError, "not enough arguments for format string")
		}
		v := args[next]
		next++
		spec := flags
		if strings.HasPrefix(spec, "-") {
			spec = "<" + spec[1:]
		}
		switch verb {
		case 's':
			v = Str(StrOf(v))
			verb = 0
		case 'r':
			v = Str(Repr(v))
			verb = 0
		case 'i', 'u':
			verb = 'd'
		}
		if verb == 'd' {
			if f, ok := v.(Float); ok {
				v = Int(int64(f))
			}
		}
		if verb != 0 {
			spec += string(verb)
		}
		s, err := formatValue(v, spec)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	if next < len(args) {
		return "", newError(excTypeError, "not all arguments converted during string formatting")
	}
	return b.String(), nil
}
