// Package bundle reads and writes the zip containers used for submission
// and dissemination packages.
//
// A Reader gives named access to the entries of a container and implements
// the path resolution policy used to match manifest paths against entries.
// Producers do not agree on whether payload paths carry a "data/" or
// "metadata/" prefix, so a declared path is tried verbatim, then with such a
// prefix removed, then with one added, and finally by base name alone. The
// first match wins.
//
// A Writer builds a new container and records the SHA-256 digest and size of
// everything added to it.
package bundle

import (
	"archive/zip"
	"bytes"
	"io"
	"io/ioutil"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Limits bounds the resources a container can consume while being read.
// A zero field means no limit on that dimension.
type Limits struct {
	MaxEntries     int   // maximum number of file entries
	MaxEntrySize   int64 // maximum uncompressed size of one entry
	MaxArchiveSize int64 // maximum size of the container itself
}

// DefaultLimits are used by servers which are not configured otherwise.
var DefaultLimits = Limits{
	MaxEntries:     10000,
	MaxEntrySize:   1 << 30, // 1 GiB
	MaxArchiveSize: 4 << 30, // 4 GiB
}

var (
	// ErrCorrupt means the container could not be read as a zip file, or
	// it exceeds the configured limits.
	ErrCorrupt = errors.New("corrupt archive")

	// ErrEntryNotFound means no entry has the requested name.
	ErrEntryNotFound = errors.New("entry not found")
)

// prefixes which producers add or leave off inconsistently
var resolvePrefixes = []string{"data/", "metadata/"}

// Reader provides access to the entries of a zip container.
type Reader struct {
	z      *zip.Reader
	limits Limits
	names  []string             // file entries in archive order
	files  map[string]*zip.File // first entry having each name
}

// Open reads the directory of the zip container in r, which is size bytes
// long. Errors wrap ErrCorrupt. No entry contents are read.
func Open(r io.ReaderAt, size int64, limits Limits) (*Reader, error) {
	if limits.MaxArchiveSize > 0 && size > limits.MaxArchiveSize {
		return nil, errors.Wrapf(ErrCorrupt, "archive is %d bytes, limit is %d", size, limits.MaxArchiveSize)
	}
	z, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	result := &Reader{
		z:      z,
		limits: limits,
		files:  make(map[string]*zip.File),
	}
	for _, f := range z.File {
		if strings.HasSuffix(f.Name, "/") {
			continue // directory
		}
		if limits.MaxEntrySize > 0 && f.UncompressedSize64 > uint64(limits.MaxEntrySize) {
			return nil, errors.Wrapf(ErrCorrupt, "entry %s is %d bytes, limit is %d", f.Name, f.UncompressedSize64, limits.MaxEntrySize)
		}
		if _, ok := result.files[f.Name]; ok {
			continue
		}
		result.files[f.Name] = f
		result.names = append(result.names, f.Name)
	}
	if limits.MaxEntries > 0 && len(result.names) > limits.MaxEntries {
		return nil, errors.Wrapf(ErrCorrupt, "archive has %d entries, limit is %d", len(result.names), limits.MaxEntries)
	}
	return result, nil
}

// OpenBytes is a convenience wrapper around Open for an in-memory container.
func OpenBytes(b []byte, limits Limits) (*Reader, error) {
	return Open(bytes.NewReader(b), int64(len(b)), limits)
}

// Entries returns the names of the file entries in archive order. Directory
// entries are not included.
func (r *Reader) Entries() []string {
	result := make([]string, len(r.names))
	copy(result, r.names)
	return result
}

// Read returns the uncompressed contents of the named entry. The name must
// match exactly; use Resolve to apply the path policy first. A failure to
// decompress wraps ErrCorrupt.
func (r *Reader) Read(name string) ([]byte, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, errors.Wrap(ErrEntryNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "%s: %s", name, err.Error())
	}
	defer rc.Close()
	var in io.Reader = rc
	if r.limits.MaxEntrySize > 0 {
		// the header may understate the real size
		in = io.LimitReader(rc, r.limits.MaxEntrySize+1)
	}
	data, err := ioutil.ReadAll(in)
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "%s: %s", name, err.Error())
	}
	if r.limits.MaxEntrySize > 0 && int64(len(data)) > r.limits.MaxEntrySize {
		return nil, errors.Wrapf(ErrCorrupt, "entry %s exceeds limit of %d bytes", name, r.limits.MaxEntrySize)
	}
	return data, nil
}

// Resolve maps a path declared in a manifest to the name of an entry in the
// container. It returns false if no entry matches.
func (r *Reader) Resolve(declared string) (string, bool) {
	if declared == "" {
		return "", false
	}
	if _, ok := r.files[declared]; ok {
		return declared, true
	}
	for _, p := range resolvePrefixes {
		if strings.HasPrefix(declared, p) {
			stripped := strings.TrimPrefix(declared, p)
			if _, ok := r.files[stripped]; ok {
				return stripped, true
			}
		}
	}
	for _, p := range resolvePrefixes {
		if !strings.HasPrefix(declared, p) {
			if _, ok := r.files[p+declared]; ok {
				return p + declared, true
			}
		}
	}
	base := path.Base(declared)
	for _, name := range r.names {
		if path.Base(name) == base {
			return name, true
		}
	}
	return "", false
}

// ReadResolved applies Resolve and then Read.
func (r *Reader) ReadResolved(declared string) (string, []byte, error) {
	name, ok := r.Resolve(declared)
	if !ok {
		return "", nil, errors.Wrap(ErrEntryNotFound, declared)
	}
	data, err := r.Read(name)
	return name, data, err
}
