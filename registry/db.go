package registry

import (
	"github.com/BurntSushi/migration"
	"github.com/sirupsen/logrus"
)

// migration keeps its version table in a Postgres specific way, so each
// database gets its own version SQL.

type dbVersion struct {
	// GetSQL returns one row and one column holding the current version
	GetSQL string
	// SetSQL records a new version, given as its only parameter
	SetSQL string
	// CreateSQL makes the version table
	CreateSQL string
}

func (d dbVersion) Get(tx migration.LimitedTx) (int, error) {
	var version int
	err := tx.QueryRow(d.GetSQL).Scan(&version)
	if err != nil {
		// no version table yet
		logrus.WithError(err).Debug("registry: reading schema version")
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

// execlist runs each statement in turn, stopping at the first error. The
// mysql driver does not accept several statements in one Exec.
func execlist(tx migration.LimitedTx, stmts []string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
