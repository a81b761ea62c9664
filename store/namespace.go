package store

import (
	"io"
	"strings"
)

// Namespace returns a view of s holding only the keys under ns/. Keys given
// to the view are single segments, so a caller handed a namespace cannot
// reach any other one. ns must itself be a valid segment.
func Namespace(s Store, ns string) (Store, error) {
	if err := ValidSegment(ns); err != nil {
		return nil, err
	}
	return namespace{parent: s, dir: ns + "/"}, nil
}

type namespace struct {
	parent Store
	dir    string // ns followed by a slash
}

func (n namespace) key(k string) (string, error) {
	if err := ValidSegment(k); err != nil {
		return "", err
	}
	return n.dir + k, nil
}

func (n namespace) List() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		keys, _ := n.ListPrefix("")
		for _, k := range keys {
			out <- k
		}
	}()
	return out
}

func (n namespace) ListPrefix(prefix string) ([]string, error) {
	keys, err := n.parent.ListPrefix(n.dir + prefix)
	var result []string
	for _, k := range keys {
		k = strings.TrimPrefix(k, n.dir)
		// skip anything in a nested directory
		if !strings.Contains(k, "/") {
			result = append(result, k)
		}
	}
	return result, err
}

func (n namespace) Open(k string) (ReadAtCloser, int64, error) {
	full, err := n.key(k)
	if err != nil {
		return nil, 0, err
	}
	return n.parent.Open(full)
}

func (n namespace) Create(k string) (io.WriteCloser, error) {
	full, err := n.key(k)
	if err != nil {
		return nil, err
	}
	return n.parent.Create(full)
}

func (n namespace) Delete(k string) error {
	full, err := n.key(k)
	if err != nil {
		return err
	}
	return n.parent.Delete(full)
}
