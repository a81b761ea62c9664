package bundle

import (
	"archive/zip"
	"io"
	"time"

	"github.com/ndlib/archivum/util"
)

// Entry describes one file written into a container.
type Entry struct {
	Name   string
	Digest string // hex SHA-256 of the uncompressed bytes
	Size   int64
}

// Writer allows for writing a new container. Every entry is given the same
// modification time, so the same inputs produce the same bytes.
type Writer struct {
	z        *zip.Writer
	modified time.Time
	entries  []Entry
}

// NewWriter creates a container writer which will serialize itself to w.
// Closing the Writer does not close w.
func NewWriter(w io.Writer, modified time.Time) *Writer {
	return &Writer{
		z:        zip.NewWriter(w),
		modified: modified,
	}
}

// Add writes data as a deflated entry with the given name.
func (w *Writer) Add(name string, data []byte) (Entry, error) {
	return w.add(name, data, zip.Deflate)
}

// AddStored writes data without compression. It is used for nested
// containers, which are already compressed.
func (w *Writer) AddStored(name string, data []byte) (Entry, error) {
	return w.add(name, data, zip.Store)
}

func (w *Writer) add(name string, data []byte, method uint16) (Entry, error) {
	header := &zip.FileHeader{
		Name:   name,
		Method: method,
	}
	header.Modified = w.modified
	out, err := w.z.CreateHeader(header)
	if err != nil {
		return Entry{}, err
	}
	hw := util.NewHashWriter(out)
	if _, err := hw.Write(data); err != nil {
		return Entry{}, err
	}
	e := Entry{Name: name, Digest: hw.Sum(), Size: hw.Size()}
	w.entries = append(w.entries, e)
	return e, nil
}

// Entries lists what has been written so far, in order.
func (w *Writer) Entries() []Entry {
	result := make([]Entry, len(w.entries))
	copy(result, w.entries)
	return result
}

// Close writes the zip directory. It does not close the original io.Writer
// provided to NewWriter().
func (w *Writer) Close() error {
	return w.z.Close()
}
