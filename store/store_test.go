package store

import (
	"testing"
)

func TestValidKey(t *testing.T) {
	var table = []struct {
		key string
		err error
	}{
		{"alice/run.gpx", nil},
		{"alice/my photo.jpg", nil},
		{"alice/fotografia-ação.jpg", nil},
		{"", ErrKeyEmpty},
		{"alice/", ErrKeyEmpty},
		{"/alice/x", ErrKeyEmpty},
		{"alice//x", ErrKeyEmpty},
		{"alice/../bob/x", ErrKeyInvalidSegment},
		{"alice/./x", ErrKeyInvalidSegment},
		{".scratch/x", ErrKeyInvalidSegment},
		{`alice\x`, ErrKeyInvalidSegment},
		{"alice/x\ty", ErrKeyContainsControlChar},
		{"alice/\xff", ErrKeyContainsNonUnicode},
	}
	for _, tab := range table {
		err := ValidKey(tab.key)
		if err != tab.err {
			t.Errorf("ValidKey(%q) Received %v, expected %v", tab.key, err, tab.err)
		}
	}
}

func TestMemoryReadersSeeWholeValues(t *testing.T) {
	m := NewMemory()
	add(t, m, "a/b", "old")
	w, _ := m.Create("a/b")
	w.Write([]byte("new value"))
	// not yet closed, so readers see the old value
	b, _ := ReadAll(m, "a/b")
	if string(b) != "old" {
		t.Errorf("Received %q, expected %q", b, "old")
	}
	w.Close()
	b, _ = ReadAll(m, "a/b")
	if string(b) != "new value" {
		t.Errorf("Received %q, expected %q", b, "new value")
	}
}
