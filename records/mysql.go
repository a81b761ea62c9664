package records

import (
	"github.com/BurntSushi/migration"
	log "github.com/sirupsen/logrus"
)

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
}

var mysqlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	CreateSQL: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

const mysqlListRecords = `SELECT ` + recordColumns + ` FROM records `
const mysqlListOrder = ` ORDER BY creation_date DESC, id`

var mysqlDialect = &dialect{
	insertFile:       `INSERT INTO files (id, filename, path, digest, mimetype, size, created) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	getFile:          `SELECT id, filename, path, digest, mimetype, size, created FROM files WHERE id = ? LIMIT 1`,
	countFileRefs:    `SELECT count(*) FROM record_files WHERE file_id = ?`,
	deleteFile:       `DELETE FROM files WHERE id = ?`,
	insertRecord:     `INSERT INTO records (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	insertRecordFile: `INSERT INTO record_files (record_id, seq, file_id) VALUES (?, ?, ?)`,
	insertComment:    `INSERT INTO comments (record_id, seq, username, body, created) VALUES (?, ?, ?, ?, ?)`,
	getRecord:        mysqlListRecords + `WHERE id = ? LIMIT 1`,
	getRecordFiles:   `SELECT seq, file_id FROM record_files WHERE record_id = ? ORDER BY seq`,
	getComments:      `SELECT seq, username, body, created FROM comments WHERE record_id = ? ORDER BY seq`,
	countComments:    `SELECT count(*) FROM comments WHERE record_id = ?`,
	countRecord:      `SELECT count(*) FROM records WHERE id = ?`,
	touchRecord:      `UPDATE records SET last_modified = ? WHERE id = ?`,
	setVisibility:    `UPDATE records SET visibility = ? WHERE id = ?`,
	listAll:          mysqlListRecords + mysqlListOrder,
	listPublic:       mysqlListRecords + `WHERE visibility = ?` + mysqlListOrder,
	listOwner:        mysqlListRecords + `WHERE owner = ?` + mysqlListOrder,
	listOwnerPublic:  mysqlListRecords + `WHERE owner = ? AND visibility = ?` + mysqlListOrder,
}

// NewMysqlDB connects to the MySQL server given by dial and brings its
// schema up to date. The dial string should include parseTime=true.
func NewMysqlDB(dial string) (DB, error) {
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.Get,
		mysqlVersioning.Set)
	if err != nil {
		log.WithError(err).Errorln("Open Mysql")
		return nil, err
	}
	return &sqlDB{db: db, q: mysqlDialect}, nil
}

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS files (
			id varchar(64) PRIMARY KEY,
			filename varchar(1024),
			path varchar(2048),
			digest char(64),
			mimetype varchar(255),
			size bigint,
			created datetime(6) NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id varchar(64) PRIMARY KEY,
			owner varchar(255),
			creation_date datetime(6) NULL,
			last_modified datetime(6) NULL,
			occurrence_date datetime(6) NULL,
			title text,
			description text,
			visibility varchar(16),
			resource_type varchar(32),
			details text,
			INDEX records_owner (owner),
			INDEX records_visibility (visibility),
			INDEX records_created (creation_date)
		)`,
		`CREATE TABLE IF NOT EXISTS record_files (
			record_id varchar(64),
			seq int,
			file_id varchar(64),
			INDEX record_files_record (record_id),
			INDEX record_files_file (file_id)
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			record_id varchar(64),
			seq int,
			username varchar(255),
			body text,
			created datetime(6) NULL,
			INDEX comments_record (record_id)
		)`,
	}
	return execlist(tx, s)
}
