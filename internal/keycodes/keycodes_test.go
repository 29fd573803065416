package keycodes

import "testing"

func TestKeyNameUS(t *testing.T) {
	if got := KeyName(30, US); got != "a" {
		t.Fatalf("KeyName(30, us) = %q, want a", got)
	}
	if got := KeyName(57, US); got != "SPACE" {
		t.Fatalf("KeyName(57, us) = %q, want SPACE", got)
	}
}

func TestKeyNameDE(t *testing.T) {
	if got := KeyName(39, DE); got != "ö" {
		t.Fatalf("KeyName(39, de) = %q, want ö", got)
	}
	if got := KeyName(12, DE); got != "ß" {
		t.Fatalf("KeyName(12, de) = %q, want ß", got)
	}
}

func TestKeyNameUnknownFallsBackToUS(t *testing.T) {
	if got := KeyName(30, Layout("fr")); got != "a" {
		t.Fatalf("KeyName(30, fr) = %q, want fallback to us 'a'", got)
	}
}

func TestKeyNameUnknownKeycode(t *testing.T) {
	if got := KeyName(9999, US); got != "KEY_9999" {
		t.Fatalf("KeyName(9999, us) = %q, want KEY_9999", got)
	}
}

func TestIsLetterKey(t *testing.T) {
	cases := map[string]bool{
		"a":         true,
		"z":         true,
		"ä":         true,
		"ö":         true,
		"ü":         true,
		"ß":         true,
		"SPACE":     false,
		"BACKSPACE": false,
		"1":         false,
		"":          false,
	}
	for name, want := range cases {
		if got := IsLetterKey(name); got != want {
			t.Errorf("IsLetterKey(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsSupportedAndResolve(t *testing.T) {
	if !IsSupported(US) || !IsSupported(DE) {
		t.Fatal("expected us and de to be supported")
	}
	if IsSupported(Layout("fr")) {
		t.Fatal("fr should not be supported")
	}
	if Resolve(Layout("fr")) != US {
		t.Fatal("unsupported layout should resolve to us")
	}
	if Resolve(DE) != DE {
		t.Fatal("supported layout should resolve to itself")
	}
}
