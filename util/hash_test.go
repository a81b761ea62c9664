package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestHashWriter(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	const goal = "fef15edd82b33633582c723562d192fec2d2003df12d4aeac89df17c279a1658"
	var w = new(bytes.Buffer)
	hw := NewHashWriter(w)
	hw.Write([]byte(input))
	h, ok := hw.CheckSHA256(goal)
	if !ok {
		t.Fatalf("Received %v, expected %v", h, goal)
	}
	if w.String() != input {
		t.Errorf("Received %q, expected %q", w.String(), input)
	}
	if hw.Size() != int64(len(input)) {
		t.Errorf("Received %d, expected %d", hw.Size(), len(input))
	}
	// case is ignored
	_, ok = hw.CheckSHA256(strings.ToUpper(goal))
	if !ok {
		t.Errorf("Received mismatch for uppercase digest")
	}
	if SHA256Hex([]byte(input)) != goal {
		t.Errorf("Received %v, expected %v", SHA256Hex([]byte(input)), goal)
	}
}

func TestSHA256Hex(t *testing.T) {
	var table = []struct {
		input  string
		output string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"hello", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
	}
	for _, tab := range table {
		result := SHA256Hex([]byte(tab.input))
		if result != tab.output {
			t.Errorf("Received %v, expected %v", result, tab.output)
		}
	}
}

func TestEqualHex(t *testing.T) {
	var table = []struct {
		a, b   string
		output bool
	}{
		{"abc", "ABC", true},
		{" abc", "abc ", true},
		{"abc", "abd", false},
		{"", "", false},
		{"abc", "", false},
	}
	for _, tab := range table {
		if EqualHex(tab.a, tab.b) != tab.output {
			t.Errorf("EqualHex(%q, %q) received %v, expected %v", tab.a, tab.b, !tab.output, tab.output)
		}
	}
}

func TestVerifyStreamHash(t *testing.T) {
	ok, err := VerifyStreamHash(strings.NewReader("hello"), "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824")
	if err != nil || !ok {
		t.Errorf("Received %v, %v, expected true, nil", ok, err)
	}
	ok, _ = VerifyStreamHash(strings.NewReader("hellp"), "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	if ok {
		t.Errorf("Received match for altered content")
	}
}
