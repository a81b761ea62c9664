package pipeline

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/facebookgo/clock"
	"github.com/gabriel-vasile/mimetype"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/archivum/records"
	"github.com/ndlib/archivum/store"
	"github.com/ndlib/archivum/util"
)

// PackageStore writes payload files into the blob store, one namespace per
// submitter, and records a FileDescriptor for each.
type PackageStore struct {
	Blobs store.Store
	DB    records.DB
	Clock clock.Clock   // nil uses the system time
	NewID func() string // nil uses random UUIDs
}

// Key gives the blob store key for filename in namespace.
func Key(namespace, filename string) string {
	return namespace + "/" + filename
}

// Store saves data as namespace/filename, replacing anything already
// there, and returns the new descriptor. An empty mimeType is detected from
// the content. Any failure wraps ErrStorageWrite and leaves no descriptor.
func (ps *PackageStore) Store(ctx context.Context, namespace, filename string, data []byte, mimeType string) (*records.FileDescriptor, error) {
	dir, err := store.Namespace(ps.Blobs, namespace)
	if err != nil {
		return nil, errors.Wrapf(ErrStorageWrite, "namespace %q: %s", namespace, err)
	}
	if err = store.ValidSegment(filename); err != nil {
		return nil, errors.Wrapf(ErrStorageWrite, "filename %q: %s", filename, err)
	}
	if err = ctx.Err(); err != nil {
		return nil, errors.Wrap(ErrStorageWrite, err.Error())
	}
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	key := Key(namespace, filename)
	err = store.WriteAll(dir, filename, data)
	if err != nil {
		log.WithFields(log.Fields{"key": key}).Errorln("PackageStore:", err)
		raven.CaptureError(err, map[string]string{"key": key})
		return nil, errors.Wrapf(ErrStorageWrite, "%s: %s", key, err)
	}
	fd := &records.FileDescriptor{
		ID:       newID(ps.NewID),
		Filename: filename,
		Path:     key,
		Digest:   util.SHA256Hex(data),
		MimeType: mimeType,
		Size:     int64(len(data)),
		Created:  now(ps.Clock),
	}
	err = ps.DB.SaveFile(ctx, fd)
	if err != nil {
		log.WithFields(log.Fields{"key": key}).Errorln("PackageStore: saving descriptor:", err)
		raven.CaptureError(err, map[string]string{"key": key})
		_ = dir.Delete(filename)
		return nil, errors.Wrapf(ErrStorageWrite, "%s: %s", key, err)
	}
	log.WithFields(log.Fields{"key": key, "id": fd.ID}).Println("stored", humanize.Bytes(uint64(fd.Size)))
	return fd, nil
}

// Remove undoes Store. It is only used to roll back a failed ingestion,
// before any record references fd.
func (ps *PackageStore) Remove(ctx context.Context, fd *records.FileDescriptor) error {
	err := ps.DB.DeleteFile(ctx, fd.ID)
	if err != nil {
		return err
	}
	return ps.Blobs.Delete(fd.Path)
}
