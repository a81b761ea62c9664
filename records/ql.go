package records

import (
	"database/sql"

	_ "github.com/cznic/ql/driver"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// The QL backend. The schema is created on open if it is missing.

const qlSchema = `
	CREATE TABLE IF NOT EXISTS files (
		id string,
		filename string,
		path string,
		digest string,
		mimetype string,
		size int64,
		created time
	);
	CREATE INDEX IF NOT EXISTS filesid ON files (id);

	CREATE TABLE IF NOT EXISTS records (
		id string,
		owner string,
		creation_date time,
		last_modified time,
		occurrence_date time,
		title string,
		description string,
		visibility string,
		resource_type string,
		details string
	);
	CREATE INDEX IF NOT EXISTS recordsid ON records (id);
	CREATE INDEX IF NOT EXISTS recordsowner ON records (owner);
	CREATE INDEX IF NOT EXISTS recordsvisibility ON records (visibility);

	CREATE TABLE IF NOT EXISTS record_files (
		record_id string,
		seq int64,
		file_id string
	);
	CREATE INDEX IF NOT EXISTS recordfilesrecord ON record_files (record_id);
	CREATE INDEX IF NOT EXISTS recordfilesfile ON record_files (file_id);

	CREATE TABLE IF NOT EXISTS comments (
		record_id string,
		seq int64,
		username string,
		body string,
		created time
	);
	CREATE INDEX IF NOT EXISTS commentsrecord ON comments (record_id);
`

const qlListRecords = `SELECT ` + recordColumns + ` FROM records `
const qlListOrder = ` ORDER BY creation_date, id DESC`

var qlDialect = &dialect{
	insertFile:       `INSERT INTO files VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)`,
	getFile:          `SELECT id, filename, path, digest, mimetype, size, created FROM files WHERE id == ?1 LIMIT 1`,
	countFileRefs:    `SELECT count(*) FROM record_files WHERE file_id == ?1`,
	deleteFile:       `DELETE FROM files WHERE id == ?1`,
	insertRecord:     `INSERT INTO records (` + recordColumns + `) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10)`,
	insertRecordFile: `INSERT INTO record_files VALUES (?1, ?2, ?3)`,
	insertComment:    `INSERT INTO comments VALUES (?1, ?2, ?3, ?4, ?5)`,
	getRecord:        qlListRecords + `WHERE id == ?1 LIMIT 1`,
	getRecordFiles:   `SELECT seq, file_id FROM record_files WHERE record_id == ?1 ORDER BY seq`,
	getComments:      `SELECT seq, username, body, created FROM comments WHERE record_id == ?1 ORDER BY seq`,
	countComments:    `SELECT count(*) FROM comments WHERE record_id == ?1`,
	countRecord:      `SELECT count(*) FROM records WHERE id == ?1`,
	touchRecord:      `UPDATE records SET last_modified = ?1 WHERE id == ?2`,
	setVisibility:    `UPDATE records SET visibility = ?1 WHERE id == ?2`,
	listAll:          qlListRecords + qlListOrder,
	listPublic:       qlListRecords + `WHERE visibility == ?1` + qlListOrder,
	listOwner:        qlListRecords + `WHERE owner == ?1` + qlListOrder,
	listOwnerPublic:  qlListRecords + `WHERE owner == ?1 && visibility == ?2` + qlListOrder,
}

// NewQlDB opens the QL database in filename, creating it if needed. The
// filename "memory" keeps everything in memory; each such database is
// separate from every other.
func NewQlDB(filename string) (DB, error) {
	var db *sql.DB
	var err error
	if filename == "memory" {
		db, err = sql.Open("ql-mem", uuid.New().String()+".db")
	} else {
		db, err = sql.Open("ql", filename)
	}
	if err == nil {
		_, err = performExec(db, qlSchema)
	}
	if err != nil {
		log.WithError(err).Errorln("Open QL")
		return nil, err
	}
	return &sqlDB{db: db, q: qlDialect}, nil
}

// performExec runs query in its own transaction. QL requires every
// statement that makes changes to be inside one.
func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	result, err := tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return result, tx.Commit()
}
