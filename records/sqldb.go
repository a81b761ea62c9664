package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	// no _ in import mysql since we need mysql.NullTime
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/archivum/manifest"
)

// dialect holds the statements for one SQL backend. The QL and MySQL
// statements differ only in placeholders and comparison operators.
type dialect struct {
	insertFile       string
	getFile          string
	countFileRefs    string
	deleteFile       string
	insertRecord     string
	insertRecordFile string
	insertComment    string
	getRecord        string
	getRecordFiles   string
	getComments      string
	countComments    string
	countRecord      string
	touchRecord      string
	setVisibility    string
	listAll          string
	listPublic       string
	listOwner        string
	listOwnerPublic  string
}

type sqlDB struct {
	db *sql.DB
	q  *dialect
}

var _ DB = &sqlDB{}

const recordColumns = `id, owner, creation_date, last_modified, occurrence_date, title, description, visibility, resource_type, details`

func (s *sqlDB) Close() error {
	return s.db.Close()
}

// inTx runs f inside a transaction, committing if it returns nil.
func (s *sqlDB) inTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	err = f(tx)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *sqlDB) SaveFile(ctx context.Context, fd *FileDescriptor) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q.insertFile,
			fd.ID,
			fd.Filename,
			fd.Path,
			fd.Digest,
			fd.MimeType,
			fd.Size,
			dbTime(fd.Created))
		return err
	})
}

func (s *sqlDB) GetFile(ctx context.Context, id string) (*FileDescriptor, error) {
	var fd FileDescriptor
	var created mysql.NullTime
	err := s.db.QueryRowContext(ctx, s.q.getFile, id).Scan(
		&fd.ID,
		&fd.Filename,
		&fd.Path,
		&fd.Digest,
		&fd.MimeType,
		&fd.Size,
		&created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	if created.Valid {
		fd.Created = created.Time
	}
	return &fd, nil
}

func (s *sqlDB) DeleteFile(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var n int64
		err := tx.QueryRowContext(ctx, s.q.countFileRefs, id).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrReferenced
		}
		_, err = tx.ExecContext(ctx, s.q.deleteFile, id)
		return err
	})
}

func (s *sqlDB) SaveRecord(ctx context.Context, rec *MetadataRecord) error {
	var details []byte
	if rec.Details != nil {
		var err error
		details, err = json.Marshal(rec.Details)
		if err != nil {
			return errors.Wrap(err, "encoding details")
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q.insertRecord,
			rec.ID,
			rec.Owner,
			dbTime(rec.CreationDate),
			dbTime(rec.LastModified),
			dbTime(rec.OccurrenceDate),
			rec.Title,
			rec.Description,
			string(rec.Visibility),
			string(rec.ResourceType),
			string(details))
		if err != nil {
			return err
		}
		for i, fid := range rec.Files {
			_, err = tx.ExecContext(ctx, s.q.insertRecordFile, rec.ID, int64(i), fid)
			if err != nil {
				return err
			}
		}
		for i, c := range rec.Comments {
			_, err = tx.ExecContext(ctx, s.q.insertComment, rec.ID, int64(i), c.Username, c.Text, dbTime(c.Date))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// rowScanner is either a *sql.Row or *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*MetadataRecord, error) {
	var rec MetadataRecord
	var created, modified, occurred mysql.NullTime
	var visibility, rtype, details string
	err := row.Scan(
		&rec.ID,
		&rec.Owner,
		&created,
		&modified,
		&occurred,
		&rec.Title,
		&rec.Description,
		&visibility,
		&rtype,
		&details)
	if err != nil {
		return nil, err
	}
	rec.CreationDate = created.Time
	rec.LastModified = modified.Time
	rec.OccurrenceDate = occurred.Time
	rec.Visibility = manifest.Visibility(visibility)
	rec.ResourceType = manifest.ResourceType(rtype)
	rec.Details, err = manifest.DecodeDetails(rec.ResourceType, []byte(details))
	if err != nil {
		return nil, errors.Wrapf(err, "record %s", rec.ID)
	}
	return &rec, nil
}

func (s *sqlDB) GetRecord(ctx context.Context, id string) (*MetadataRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.q.getRecord, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	err = s.fill(ctx, rec)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// fill loads the file list and comments of rec.
func (s *sqlDB) fill(ctx context.Context, rec *MetadataRecord) error {
	rows, err := s.db.QueryContext(ctx, s.q.getRecordFiles, rec.ID)
	if err != nil {
		return err
	}
	// seq is selected only so the result can be ordered by it
	var seq int64
	rec.Files = nil
	for rows.Next() {
		var fid string
		if err = rows.Scan(&seq, &fid); err != nil {
			rows.Close()
			return err
		}
		rec.Files = append(rec.Files, fid)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, s.q.getComments, rec.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	rec.Comments = nil
	for rows.Next() {
		var c manifest.Comment
		var when mysql.NullTime
		if err = rows.Scan(&seq, &c.Username, &c.Text, &when); err != nil {
			return err
		}
		c.Date = when.Time
		rec.Comments = append(rec.Comments, c)
	}
	return rows.Err()
}

func (s *sqlDB) ListRecords(ctx context.Context, q Query) ([]*MetadataRecord, error) {
	var rows *sql.Rows
	var err error
	switch {
	case q.Owner != "" && q.PublicOnly:
		rows, err = s.db.QueryContext(ctx, s.q.listOwnerPublic, q.Owner, string(manifest.Public))
	case q.Owner != "":
		rows, err = s.db.QueryContext(ctx, s.q.listOwner, q.Owner)
	case q.PublicOnly:
		rows, err = s.db.QueryContext(ctx, s.q.listPublic, string(manifest.Public))
	default:
		rows, err = s.db.QueryContext(ctx, s.q.listAll)
	}
	if err != nil {
		return nil, err
	}
	var result []*MetadataRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			// skip records which cannot be decoded rather than hide the others
			log.WithError(err).Errorln("ListRecords")
			continue
		}
		result = append(result, rec)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}
	// the detail queries cannot run while rows is open on some drivers
	for _, rec := range result {
		if err = s.fill(ctx, rec); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *sqlDB) AddComment(ctx context.Context, id string, c manifest.Comment) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, id, c.Date); err != nil {
			return err
		}
		var n int64
		err := tx.QueryRowContext(ctx, s.q.countComments, id).Scan(&n)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q.insertComment, id, n, c.Username, c.Text, dbTime(c.Date))
		return err
	})
}

func (s *sqlDB) SetVisibility(ctx context.Context, id string, v manifest.Visibility, when time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, id, when); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.q.setVisibility, string(v), id)
		return err
	})
}

// touch updates the modified time of record id, and returns ErrNotFound
// if there is no such record.
func (s *sqlDB) touch(ctx context.Context, tx *sql.Tx, id string, when time.Time) error {
	var n int64
	err := tx.QueryRowContext(ctx, s.q.countRecord, id).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	_, err = tx.ExecContext(ctx, s.q.touchRecord, dbTime(when), id)
	return err
}

// dbTime stores zero times as NULL.
func dbTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
