package observ

import "testing"

func TestParsePath(t *testing.T) {
	p := ParsePath("todos.3.title")
	if len(p) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(p))
	}
	if p[0].IsIndex() || !p[1].IsIndex() || p[2].IsIndex() {
		t.Errorf("unexpected token kinds: %#v", p)
	}
	if p.String() != "todos.3.title" {
		t.Errorf("expected round trip, got %q", p.String())
	}
	if ParsePath("") != nil {
		t.Error("empty string should parse to the root path")
	}
}

func TestPathKeyIgnoresTokenKind(t *testing.T) {
	a := P("items", 2, "name")
	b := P(Key("items"), Key("2"), Key("name"))
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if !a.Equal(b) {
		t.Error("paths should be equal")
	}
}

func TestPathKeyEscapes(t *testing.T) {
	a := P(Key("a/b"))
	b := P("a", "b")
	if a.Key() == b.Key() {
		t.Errorf("escaped key collides: %q", a.Key())
	}
}

func TestPathPrefix(t *testing.T) {
	tests := []struct {
		p, q    Path
		prefix  bool
		related bool
	}{
		{P("a.b.c"), P("a.b"), true, true},
		{P("a.b"), P("a.b"), true, true},
		{P("a"), P("a.b"), false, true},
		{P("a.c"), P("a.b"), false, false},
		{P("a"), nil, true, true},
	}
	for _, tt := range tests {
		if got := tt.p.HasPrefix(tt.q); got != tt.prefix {
			t.Errorf("%q.HasPrefix(%q) = %v, want %v", tt.p, tt.q, got, tt.prefix)
		}
		if got := tt.p.Related(tt.q); got != tt.related {
			t.Errorf("%q.Related(%q) = %v, want %v", tt.p, tt.q, got, tt.related)
		}
	}
}

func TestPathJoinDoesNotAlias(t *testing.T) {
	base := make(Path, 1, 4)
	base[0] = Key("a")
	x := base.Join(P("x"))
	y := base.Join(P("y"))
	if x.String() != "a.x" || y.String() != "a.y" {
		t.Errorf("joined paths share storage: %q %q", x, y)
	}
}

func TestPathParentAndLast(t *testing.T) {
	p := P("a", 1)
	if p.Parent().String() != "a" {
		t.Errorf("parent = %q", p.Parent())
	}
	last, ok := p.Last()
	if !ok || !last.IsIndex() || last.String() != "1" {
		t.Errorf("last = %v %v", last, ok)
	}
	if _, ok := Path(nil).Last(); ok {
		t.Error("root has no last token")
	}
}

func TestPUnsupportedPartPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for float path part")
		}
	}()
	P(1.5)
}
