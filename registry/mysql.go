package registry

import (
	"database/sql"
	"time"

	"github.com/BurntSushi/migration"
	// not _ since we need mysql.NullTime
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// Mysql is a registry kept in MySQL, for several indexers sharing one
// record of what has been indexed.
type Mysql struct {
	db *sql.DB
}

var _ Registry = &Mysql{}

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

// NewMysql connects to the database named by dial, in go-sql-driver form,
// and brings its schema up to date.
func NewMysql(dial string) (*Mysql, error) {
	db, err := migration.OpenWith("mysql", dial, mysqlMigrations,
		mysqlVersioning.Get, mysqlVersioning.Set)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql registry")
	}
	return &Mysql{db: db}, nil
}

func (m *Mysql) Lookup(id string) (Record, bool, error) {
	const query = `SELECT content_hash, outcome, indexed FROM bags WHERE bag = ? LIMIT 1`

	rec := Record{ID: id}
	var when mysql.NullTime
	err := m.db.QueryRow(query, id).Scan(&rec.ContentHash, &rec.Outcome, &when)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	} else if err != nil {
		return Record{}, false, err
	}
	if when.Valid {
		rec.IndexedAt = when.Time
	}
	return rec, true, nil
}

func (m *Mysql) Save(r Record) error {
	const stmt = `INSERT INTO bags (bag, content_hash, outcome, indexed) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE content_hash = VALUES(content_hash), outcome = VALUES(outcome), indexed = VALUES(indexed)`

	when := r.IndexedAt.UTC().Truncate(time.Second)
	_, err := m.db.Exec(stmt, r.ID, r.ContentHash, r.Outcome, when)
	return err
}

func (m *Mysql) Close() error {
	return m.db.Close()
}

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS bags (
		id int PRIMARY KEY AUTO_INCREMENT,
		bag varchar(255),
		content_hash varchar(128),
		outcome varchar(16),
		indexed datetime,
		UNIQUE INDEX bags_bag (bag))`,
	}
	return execlist(tx, s)
}
