// Package store provides a simple, goroutine safe key-value interface. Instead
// of values being an opaque array of bytes, though, they are a stream. This
// approach allows large files to be stored easily.
//
// Keys are relative slash separated paths, such as "alice/run.gpx". The first
// segment is usually a namespace, and Namespace gives a view of a store
// confined to one namespace.
//
// Probably the most important implementation is the FileSystem. S3 is used
// for cloud deployments and Memory is useful for testing.
package store

import (
	"errors"
	"io"
	"io/ioutil"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store defines the basic stream based key-value store.
// Creating a key which already exists replaces its contents once the
// returned writer is closed. Readers never see a partially written value.
//
// Open() returns a ReadAtCloser instead of a ReadCloser to make it easier to
// hand the contents to a zip reader.
type Store interface {
	ROStore
	Create(key string) (io.WriteCloser, error)
	Delete(key string) error
}

// ROStore is the read-only pieces of a Store. It allows one to list contents,
// and to retrieve data.
type ROStore interface {
	List() <-chan string
	ListPrefix(prefix string) ([]string, error)
	Open(key string) (ReadAtCloser, int64, error)
}

var (
	// ErrNotFound is returned by Open when the key is not in the store.
	ErrNotFound = errors.New("Key not found")

	// ErrKeyEmpty means the key, or one of its segments, is empty
	ErrKeyEmpty = errors.New("Key is empty or has an empty segment")

	// ErrKeyContainsNonUnicode means the key provided contains a Non Unicode Rune
	ErrKeyContainsNonUnicode = errors.New("Key contains Non-Unicode character")

	// ErrKeyContainsControlChar means the key provided contains Control Characters
	ErrKeyContainsControlChar = errors.New("Key contains Control Characters")

	// ErrKeyInvalidSegment means a segment is "." or "..", starts with a
	// dot, or contains a backslash
	ErrKeyInvalidSegment = errors.New("Key contains an invalid path segment")
)

// ValidKey checks that key is safe to use as a storage path on every
// backend. It returns nil if the key is usable.
func ValidKey(key string) error {
	if !utf8.ValidString(key) {
		return ErrKeyContainsNonUnicode
	}
	if key == "" {
		return ErrKeyEmpty
	}
	for _, segment := range strings.Split(key, "/") {
		if err := ValidSegment(segment); err != nil {
			return err
		}
	}
	return nil
}

// ValidSegment checks a single component of a key. Namespaces and file
// names are each a single segment.
func ValidSegment(segment string) error {
	if segment == "" {
		return ErrKeyEmpty
	}
	if !utf8.ValidString(segment) {
		return ErrKeyContainsNonUnicode
	}
	if segment[0] == '.' || strings.ContainsAny(segment, `/\`) {
		return ErrKeyInvalidSegment
	}
	for _, r := range segment {
		if unicode.IsControl(r) {
			return ErrKeyContainsControlChar
		}
	}
	return nil
}

// ReadAll returns the entire contents of key.
func ReadAll(s ROStore, key string) ([]byte, error) {
	r, size, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ioutil.ReadAll(io.NewSectionReader(r, 0, size))
}

// WriteAll saves data under key, replacing any previous value. If either the
// write or the close fails the key is left unchanged.
func WriteAll(s Store, key string, data []byte) error {
	w, err := s.Create(key)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	if err != nil {
		if a, ok := w.(aborter); ok {
			a.Abort()
		}
		w.Close()
		return err
	}
	return w.Close()
}

// aborter is implemented by writers which can discard what has been written
// instead of committing it on Close.
type aborter interface {
	Abort()
}

// NewReader converts a ReaderAt into a io.Reader. It is here as a utility to
// help work with the ReadAtCloser returned by Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// reading less than a full buffer is not an error for
		// an io.Reader
		err = nil
	}
	return
}
