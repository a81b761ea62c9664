package records

import (
	"github.com/BurntSushi/migration"
	log "github.com/sirupsen/logrus"
)

// The migration package keeps its version in a table whose SQL does not
// suit MySQL. dbVersion supplies the statements per dialect.

type dbVersion struct {
	// returns one row with one column, the current version
	GetSQL string
	// records a new version, given as the only parameter
	SetSQL string
	// creates the version table
	CreateSQL string
}

func (d dbVersion) Get(tx migration.LimitedTx) (int, error) {
	var version int
	err := tx.QueryRow(d.GetSQL).Scan(&version)
	if err != nil {
		// a missing table means nothing has been applied yet
		log.WithError(err).Debugln("reading schema version")
		return 0, nil
	}
	return version, nil
}

func (d dbVersion) Set(tx migration.LimitedTx, version int) error {
	if _, err := tx.Exec(d.SetSQL, version); err == nil {
		return nil
	}
	if _, err := tx.Exec(d.CreateSQL); err != nil {
		return err
	}
	_, err := tx.Exec(d.SetSQL, version)
	return err
}

// execlist runs each statement in turn, stopping at the first error.
func execlist(tx migration.LimitedTx, stms []string) error {
	for _, s := range stms {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
