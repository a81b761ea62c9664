package fixity

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/manifest"
	"github.com/ndlib/archivum/util"
)

func makebundle(t *testing.T, files ...string) *bundle.Reader {
	var buf bytes.Buffer
	w := bundle.NewWriter(&buf, time.Time{})
	for i := 0; i+1 < len(files); i += 2 {
		w.Add(files[i], []byte(files[i+1]))
	}
	w.Close()
	r, err := bundle.OpenBytes(buf.Bytes(), bundle.DefaultLimits)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func sha(s string) manifest.Checksum {
	return manifest.Checksum{Algorithm: manifest.SHA256, Value: util.SHA256Hex([]byte(s))}
}

func TestVerifyAllValid(t *testing.T) {
	r := makebundle(t,
		"data/a.txt", "aaa",
		"b.txt", "bbb",
		"metadata/a.txt.json", "{}",
	)
	mdsum := sha("{}")
	m := &manifest.Manifest{Files: []manifest.FileEntry{
		{FilePath: "data/a.txt", Checksum: sha("aaa"), MetadataPath: "metadata/a.txt.json", MetadataChecksum: &mdsum},
		{FilePath: "data/b.txt", Checksum: manifest.Checksum{Value: strings.ToUpper(util.SHA256Hex([]byte("bbb")))}},
	}}
	result := Verify(context.Background(), r, m, 4)
	if !result.OK() {
		t.Fatalf("Received problems %v", result.Problems)
	}
	if len(result.Valid) != 2 {
		t.Fatalf("Received %d valid, expected 2", len(result.Valid))
	}
	if result.Valid[1].Name != "b.txt" || result.Valid[1].Size != 3 {
		t.Errorf("Received %+v", result.Valid[1])
	}
	if result.Valid[0].MetadataName != "metadata/a.txt.json" {
		t.Errorf("Received %+v", result.Valid[0])
	}
}

func TestVerifyEveryProblem(t *testing.T) {
	r := makebundle(t,
		"data/good.txt", "good",
		"data/bad.txt", "bad",
		"data/nomd.txt", "nomd",
		"data/badmd.txt", "badmd",
		"metadata/badmd.txt.json", "{}",
		"data/md5.txt", "md5",
	)
	wrong := sha("something else")
	m := &manifest.Manifest{Files: []manifest.FileEntry{
		{FilePath: "data/good.txt", Checksum: sha("good")},
		{FilePath: "data/missing.txt", Checksum: sha("x")},
		{FilePath: "data/bad.txt", Checksum: sha("not bad")},
		{FilePath: "data/nomd.txt", Checksum: sha("nomd"), MetadataPath: "metadata/nomd.txt.json"},
		{FilePath: "data/badmd.txt", Checksum: sha("badmd"), MetadataPath: "metadata/badmd.txt.json", MetadataChecksum: &wrong},
		{FilePath: "data/md5.txt", Checksum: manifest.Checksum{Algorithm: "MD5", Value: "abc"}},
		{FilePath: "data/good.txt"},
	}}
	result := Verify(context.Background(), r, m, 2)
	var expected = []struct {
		file   string
		status Status
	}{
		{"data/missing.txt", Missing},
		{"data/bad.txt", Invalid},
		{"data/nomd.txt", MetadataMissing},
		{"data/badmd.txt", MetadataInvalid},
		{"data/md5.txt", Invalid},
		{"data/good.txt", Invalid},
	}
	if len(result.Problems) != len(expected) {
		t.Fatalf("Received %v, expected %d problems", result.Problems, len(expected))
	}
	for i, e := range expected {
		p := result.Problems[i]
		if p.File != e.file || p.Status != e.status {
			t.Errorf("Received %v, expected %s %s", p, e.file, e.status)
		}
	}
	bad := result.Problems[1]
	if bad.Expected != sha("not bad").Value || bad.Computed != sha("bad").Value {
		t.Errorf("Received %+v", bad)
	}
	if !strings.HasPrefix(bad.Reason, "Checksum mismatch. Expected: ") {
		t.Errorf("Received reason %q", bad.Reason)
	}
	if len(result.Valid) != 1 || result.Valid[0].File != "data/good.txt" {
		t.Errorf("Received valid %v", result.Valid)
	}
}

func TestVerifySingleAltered(t *testing.T) {
	var files []string
	var entries []manifest.FileEntry
	for _, name := range []string{"one", "two", "three", "four"} {
		files = append(files, "data/"+name, name+" content")
		entries = append(entries, manifest.FileEntry{FilePath: "data/" + name, Checksum: sha(name + " content")})
	}
	entries[2].Checksum.Value = sha("tampered").Value
	result := Verify(context.Background(), makebundle(t, files...), &manifest.Manifest{Files: entries}, 3)
	if len(result.Problems) != 1 || result.Problems[0].Status != Invalid || result.Problems[0].File != "data/three" {
		t.Errorf("Received %v, expected one invalid entry", result.Problems)
	}
}

func TestVerifyCanceled(t *testing.T) {
	r := makebundle(t, "a", "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &manifest.Manifest{Files: []manifest.FileEntry{{FilePath: "a", Checksum: sha("a")}}}
	result := Verify(ctx, r, m, 1)
	if result.OK() || result.Problems[0].Status != Error {
		t.Errorf("Received %v, expected an error problem", result.Problems)
	}
}
