package observ

import (
	"fmt"
	"strconv"
	"strings"
)

// Token is one step of a Path: a map key or a slice index.
type Token struct {
	key     string
	index   int
	isIndex bool
}

// Key returns a token addressing a map key or struct field.
func Key(k string) Token {
	return Token{key: k}
}

// Index returns a token addressing a slice element.
func Index(i int) Token {
	return Token{index: i, isIndex: true}
}

// IsIndex reports whether the token was built as a slice index.
func (t Token) IsIndex() bool {
	return t.isIndex
}

// String returns the token as it appears in a dotted path.
func (t Token) String() string {
	if t.isIndex {
		return strconv.Itoa(t.index)
	}
	return t.key
}

// asIndex returns the token as a slice index. Keys made only of digits
// convert, so "items.2" and P("items", 2) address the same element.
func (t Token) asIndex() (int, bool) {
	if t.isIndex {
		return t.index, true
	}
	i, err := strconv.Atoi(t.key)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Path is an ordered sequence of tokens addressing a location inside a
// node's value. The empty Path addresses the root.
type Path []Token

// ParsePath parses a dotted path. Segments made only of digits become
// indices. The empty string is the root path.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if i, err := strconv.Atoi(part); err == nil && i >= 0 && isDigits(part) {
			p = append(p, Index(i))
			continue
		}
		p = append(p, Key(part))
	}
	return p
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// P builds a path from parts. Strings are parsed as dotted paths, ints
// become indices, and Tokens and Paths are appended as they are.
//
//	P("todos", 3, "title") // todos.3.title
//	P("a.b")               // a.b
func P(parts ...any) Path {
	var p Path
	for _, part := range parts {
		switch v := part.(type) {
		case string:
			p = append(p, ParsePath(v)...)
		case int:
			p = append(p, Index(v))
		case Token:
			p = append(p, v)
		case Path:
			p = append(p, v...)
		case []Token:
			p = append(p, v...)
		case fmt.Stringer:
			p = append(p, Key(v.String()))
		default:
			panic(fmt.Sprintf("observ: unsupported path part %T", part))
		}
	}
	return p
}

// String returns the dotted form of the path.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, t := range p {
		parts[i] = t.String()
	}
	return strings.Join(parts, ".")
}

// Key returns the canonical registry key of the path. Two paths addressing
// the same location have the same key regardless of how their tokens were
// built.
func (p Path) Key() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range p {
		b.WriteByte('/')
		b.WriteString(escapeToken(t.String()))
	}
	return b.String()
}

func escapeToken(s string) string {
	if !strings.ContainsAny(s, "~/") {
		return s
	}
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

// Equal reports structural equality.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i].String() != q[i].String() {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is a prefix of p (p equals q or lies below it).
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	return p[:len(q)].Equal(q)
}

// Related reports whether one path contains the other.
func (p Path) Related(q Path) bool {
	return p.HasPrefix(q) || q.HasPrefix(p)
}

// Join returns a new path with q appended.
func (p Path) Join(q Path) Path {
	out := make(Path, 0, len(p)+len(q))
	out = append(out, p...)
	return append(out, q...)
}

// Child returns a new path with the tokens appended.
func (p Path) Child(tokens ...Token) Path {
	return p.Join(Path(tokens))
}

// Parent returns the path one level up. The root's parent is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1 : len(p)-1]
}

// Last returns the final token. ok is false for the root.
func (p Path) Last() (Token, bool) {
	if len(p) == 0 {
		return Token{}, false
	}
	return p[len(p)-1], true
}
