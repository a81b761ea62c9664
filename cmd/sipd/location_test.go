package main

import (
	"path/filepath"
	"testing"

	"github.com/ndlib/archivum/store"
)

const (
	typeMemory = iota
	typeFileSystem
	typeS3
	typeError
)

func TestSplitBucketPrefix(t *testing.T) {
	var table = []struct {
		location string
		addition string
		bucket   string
		prefix   string
	}{
		{"", "", "", ""},
		{"rel/path", "", "rel", "path/"},
		{"/abs/path/", "", "abs", "path/"},
		{"/bucket", "", "bucket", ""},
		{"/bucket", "more", "bucket", "more/"},
		{"/bucket/prefix/", "", "bucket", "prefix/"},
		{"/bucket/prefix", "", "bucket", "prefix/"},
		{"/bucket/prefix", "more", "bucket", "prefix/more/"},
		{"/bucket/prefix/", "more", "bucket", "prefix/more/"},
	}

	for _, row := range table {
		bucket, prefix := splitBucketPrefix(row.location, row.addition)
		if bucket != row.bucket {
			t.Error(row.location, "expected bucket", row.bucket, "received", bucket)
		}
		if prefix != row.prefix {
			t.Error(row.location, "expected prefix", row.prefix, "received", prefix)
		}
	}
}

func TestParseLocation(t *testing.T) {
	dir := t.TempDir()
	var table = []struct {
		location string
		addition string
		typ      int
		bucket   string
		prefix   string
	}{
		{"", "", typeMemory, "", ""},
		{filepath.Join(dir, "plain"), "", typeFileSystem, "", ""},
		{"file:" + filepath.Join(dir, "url"), "", typeFileSystem, "", ""},
		{"file:" + filepath.Join(dir, "url"), "more", typeFileSystem, "", ""},
		{"s3:/bucket", "", typeS3, "bucket", ""},
		{"s3:/bucket", "more", typeS3, "bucket", "more/"},
		{"s3://localhost:9000/bucket/prefix/", "", typeS3, "bucket", "prefix/"},
		{"s3://localhost:9000/bucket/prefix/", "more", typeS3, "bucket", "prefix/more/"},
		{"s3://localhost:9000/", "", typeError, "", ""},
		{"ftp://example.com/x", "", typeError, "", ""},
	}

	for _, row := range table {
		result, err := parselocation(row.location, row.addition)
		if row.typ == typeError {
			if err == nil {
				t.Errorf("%s: expected an error, received %#v", row.location, result)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: received %s", row.location, err)
			continue
		}
		switch x := result.(type) {
		case *store.Memory:
			if row.typ != typeMemory {
				t.Errorf("%s: unexpected received %#v", row.location, result)
			}
		case *store.FileSystem:
			if row.typ != typeFileSystem {
				t.Errorf("%s: unexpected received %#v", row.location, result)
			}
		case *store.S3:
			if row.typ != typeS3 {
				t.Errorf("%s: unexpected received %#v", row.location, result)
			}
			if x.Bucket != row.bucket {
				t.Error("expected bucket", row.bucket, "received", x.Bucket)
			}
			if x.Prefix != row.prefix {
				t.Error("expected prefix", row.prefix, "received", x.Prefix)
			}
		default:
			t.Errorf("%s: unexpected received %#v", row.location, result)
		}
	}
}
