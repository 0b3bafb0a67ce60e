package rules

import "testing"

func TestSetMatch(t *testing.T) {
	set := MustCompileSet("*.hdr", "ui/**", `re:_normal\.(png|jpg)$`)

	tests := []struct {
		path string
		want bool
	}{
		{"sky.hdr", true},
		{"env/sky.hdr", true},
		{"ui/icons/close.png", true},
		{"rock_normal.png", true},
		{`textures\rock_normal.jpg`, true},
		{"rock.png", false},
		{"models/ui.png", false},
	}

	for _, tt := range tests {
		if got := set.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestEmptySet(t *testing.T) {
	var set Set
	if set.Match("anything.png") {
		t.Error("empty set should match nothing")
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := Compile("re:("); err == nil {
		t.Error("expected error for invalid regexp")
	}
}

func TestFunc(t *testing.T) {
	set := Set{Func(func(p string) bool { return p == "a/b.png" })}
	if !set.Match(`a\b.png`) {
		t.Error("Func rule should see normalized path")
	}
}
