package util

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"strings"
)

// SHA256Hex returns the lowercase hex encoding of the SHA-256 digest of b.
// This is the one digest used everywhere content is fingerprinted.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// EqualHex compares two hex digests ignoring case and surrounding space.
// An empty digest never matches.
func EqualHex(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// A HashWriter wraps an io.Writer and also calculates the SHA-256 hash and
// the length of the bytes written.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	sha256    hash.Hash
	size      int64
}

// NewHashWriter returns a HashWriter wrapping w.
func NewHashWriter(w io.Writer) *HashWriter {
	hw := &HashWriter{sha256: sha256.New()}
	hw.Writer = io.MultiWriter(w, hw.sha256)
	return hw
}

// NewHashWriterPlain returns a HashWriter that does not wrap an output stream.
// It will just compute the checksum of the data written to it.
func NewHashWriterPlain() *HashWriter {
	hw := &HashWriter{sha256: sha256.New()}
	hw.Writer = hw.sha256
	return hw
}

func (hw *HashWriter) Write(p []byte) (int, error) {
	n, err := hw.Writer.Write(p)
	hw.size += int64(n)
	return n, err
}

// Size returns the number of bytes written so far.
func (hw *HashWriter) Size() int64 {
	return hw.size
}

// Sum returns the lowercase hex SHA-256 of everything written so far.
func (hw *HashWriter) Sum() string {
	return hex.EncodeToString(hw.sha256.Sum(nil))
}

// CheckSHA256 returns the hex SHA-256 for this writer, and compares it with
// the goal passed in, ignoring case. An empty goal is treated as matching.
func (hw *HashWriter) CheckSHA256(goal string) (string, bool) {
	computed := hw.Sum()
	ok := strings.TrimSpace(goal) == "" || EqualHex(goal, computed)
	return computed, ok
}

// VerifyStreamHash checksums the given io.Reader and compares the checksum
// against the provided hex SHA-256. The reader is not closed when finished.
func VerifyStreamHash(r io.Reader, goal string) (bool, error) {
	hw := NewHashWriterPlain()
	_, err := io.Copy(hw, r)
	_, ok := hw.CheckSHA256(goal)
	return ok, err
}
