// Package records keeps the persistent state of the archive: a descriptor
// for every stored file and a metadata record for every ingested package.
//
// Two backends are provided. NewQlDB uses the embedded QL database, which
// can also run entirely in memory, and is intended for development and
// small installs. NewMysqlDB uses a MySQL server and migrates its schema
// on open.
package records

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/ndlib/archivum/manifest"
)

var (
	// ErrNotFound means there is no file or record with the given id.
	ErrNotFound = errors.New("not found")

	// ErrReferenced means a file cannot be deleted since a record lists it.
	ErrReferenced = errors.New("file is referenced by a record")
)

// FileDescriptor describes one stored payload file. Descriptors are never
// changed after they are created.
type FileDescriptor struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	Path     string    `json:"path"` // key in the blob store
	Digest   string    `json:"digest"`
	MimeType string    `json:"mimeType"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
}

// MetadataRecord is the indexed form of one ingested package. Only comments,
// visibility and LastModified change after it is saved.
type MetadataRecord struct {
	ID             string
	Owner          string
	CreationDate   time.Time
	LastModified   time.Time
	OccurrenceDate time.Time
	Title          string
	Description    string
	Visibility     manifest.Visibility
	ResourceType   manifest.ResourceType
	Details        manifest.Details
	Files          []string // file descriptor ids, in manifest order
	Comments       []manifest.Comment
}

// MarshalJSON writes the record with its resource type details as top
// level fields.
func (rec *MetadataRecord) MarshalJSON() ([]byte, error) {
	out := manifest.DetailFields(rec.Details)
	out["id"] = rec.ID
	out["user"] = rec.Owner
	out["title"] = rec.Title
	out["description"] = rec.Description
	out["visibility"] = rec.Visibility
	out["resourceType"] = rec.ResourceType
	out["creationDate"] = rec.CreationDate
	out["lastModified"] = rec.LastModified
	if !rec.OccurrenceDate.IsZero() {
		out["occurrenceDate"] = rec.OccurrenceDate
	}
	files := rec.Files
	if files == nil {
		files = []string{}
	}
	out["files"] = files
	comments := rec.Comments
	if comments == nil {
		comments = []manifest.Comment{}
	}
	out["comments"] = comments
	return json.Marshal(out)
}

// Query selects records for ListRecords. The zero Query matches everything.
type Query struct {
	Owner      string // only records of this owner, if not empty
	PublicOnly bool   // only public records
}

// DB is the metadata store. Implementations are safe for concurrent use.
type DB interface {
	SaveFile(ctx context.Context, fd *FileDescriptor) error
	GetFile(ctx context.Context, id string) (*FileDescriptor, error)
	// DeleteFile removes a descriptor which no record references.
	DeleteFile(ctx context.Context, id string) error

	// SaveRecord inserts rec, its file list and comments atomically.
	SaveRecord(ctx context.Context, rec *MetadataRecord) error
	GetRecord(ctx context.Context, id string) (*MetadataRecord, error)
	// ListRecords returns matching records, newest first.
	ListRecords(ctx context.Context, q Query) ([]*MetadataRecord, error)
	AddComment(ctx context.Context, id string, c manifest.Comment) error
	SetVisibility(ctx context.Context, id string, v manifest.Visibility, when time.Time) error

	Close() error
}
