package path

import "testing"

func TestValidate(t *testing.T) {
	valid := []string{"/", "/foo", "/foo/bar", "/a.b-c_d/e"}
	for _, p := range valid {
		if err := Validate(p); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", p, err)
		}
	}
	invalid := []string{"", "foo", "/..", "/foo/..", "/foo/./bar", "/foo/", "/foo//bar", "/foo bar", " /foo", "/foo ", "/fo$o"}
	for _, p := range invalid {
		if err := Validate(p); err == nil {
			t.Errorf("Validate(%q) = nil, want error", p)
		}
	}
}

func TestValidatePattern(t *testing.T) {
	valid := []string{"/a", "/a/*", "/a/**", "/*", "/**"}
	for _, p := range valid {
		if err := ValidatePattern(p); err != nil {
			t.Errorf("ValidatePattern(%q) = %v, want nil", p, err)
		}
	}
	invalid := []string{"/a/*/b", "/a/**/b", "/a/b*"}
	for _, p := range invalid {
		if err := ValidatePattern(p); err == nil {
			t.Errorf("ValidatePattern(%q) = nil, want error", p)
		}
	}
}

func TestIsUnder(t *testing.T) {
	cases := []struct {
		prefix, path string
		want         bool
	}{
		{"/", "/anything", true},
		{"/foo", "/foo", true},
		{"/foo", "/foo/bar", true},
		{"/foo", "/foobar", false},
		{"/foo/bar", "/foo/bart", false},
	}
	for _, c := range cases {
		if got := IsUnder(c.prefix, c.path); got != c.want {
			t.Errorf("IsUnder(%q, %q) = %v, want %v", c.prefix, c.path, got, c.want)
		}
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"/a/x", "/a/x", true},
		{"/a/x", "/a/y", false},
		{"/a/*", "/a/x", true},
		{"/a/*", "/a/x/y", false},
		{"/a/**", "/a/x", true},
		{"/a/**", "/a/x/y", true},
		{"/a/**", "/b/x", false},
	}
	for _, c := range cases {
		if got := Matches(c.pattern, c.path); got != c.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}
