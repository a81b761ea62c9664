package store

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	raven "github.com/getsentry/raven-go"
	log "github.com/sirupsen/logrus"
)

// FileSystem implements the simple file system based store. A key such as
// "alice/run.gpx" is saved as the file <root>/alice/run.gpx, so every
// namespace is one directory under the root.
type FileSystem struct {
	root string
}

const (
	// the subdir to store files while they are being written to. Keys can
	// never name it since segments may not begin with a dot.
	scratchdir = ".scratch"
)

var (
	// make sure it implements the Store interface
	_ Store = &FileSystem{}
)

// NewFileSystem creates a new FileSystem store based at the given root path.
func NewFileSystem(root string) *FileSystem {
	return &FileSystem{root}
}

// List returns a channel listing all the keys in this store.
func (s *FileSystem) List() <-chan string {
	c := make(chan string)
	go func() {
		keys, err := s.ListPrefix("")
		if err != nil {
			// we have no other way of passing this error back
			log.Println(err)
			raven.CaptureError(err, nil)
		}
		for _, k := range keys {
			c <- k
		}
		close(c)
	}()
	return c
}

// ListPrefix returns a sorted list of all the keys beginning with the given
// prefix.
func (s *FileSystem) ListPrefix(prefix string) ([]string, error) {
	var result []string
	err := filepath.Walk(s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == s.root {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			if info.Name() == scratchdir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			result = append(result, key)
		}
		return nil
	})
	sort.Strings(result)
	return result, err
}

// Open returns a reader for the given object along with its size.
func (s *FileSystem) Open(key string) (ReadAtCloser, int64, error) {
	if err := ValidKey(key); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(s.keypath(key))
	if os.IsNotExist(err) {
		return nil, 0, ErrNotFound
	} else if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Create returns a writer to save data into key. Data is written to a
// scratch file which replaces any existing file when the writer is closed.
func (s *FileSystem) Create(key string) (io.WriteCloser, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	// first set up the eventual home dir of this file
	target := s.keypath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0775); err != nil {
		return nil, err
	}
	// now set up the scratch location we will temporarily save the file to
	dir := filepath.Join(s.root, scratchdir)
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, err
	}
	w, err := ioutil.TempFile(dir, "upload-")
	if err != nil {
		return nil, err
	}
	return &moveCloser{File: w, target: target}, nil
}

func (s *FileSystem) keypath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// track the file so when it is closed, we can move it into the correct place
type moveCloser struct {
	*os.File
	target string
	abort  bool
}

func (w *moveCloser) Abort() { w.abort = true }

func (w *moveCloser) Close() error {
	source := w.File.Name()
	err := w.File.Close()
	if err != nil || w.abort {
		os.Remove(source)
		return err
	}
	// rename replaces any existing target
	err = os.Rename(source, w.target)
	if err != nil {
		os.Remove(source)
	}
	return err
}

// Delete the given key from the store. It is not an error if the key doesn't
// exist. The namespace directory is removed once it is empty.
func (s *FileSystem) Delete(key string) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	fname := s.keypath(key)
	err := os.Remove(fname)
	// don't report a missing file as an error
	if err != nil && os.IsNotExist(err) {
		err = nil
	}
	// remove now empty parent directories, stopping at the root.
	// os.Remove fails on non-empty directories, which ends the loop.
	for dir := filepath.Dir(fname); err == nil && dir != filepath.Clean(s.root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return err
}
