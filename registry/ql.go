package registry

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/migration"
	_ "github.com/cznic/ql/driver"
	"github.com/pkg/errors"
)

// Ql is a registry in the QL embedded database. It suits a single indexer
// process.
type Ql struct {
	db *sql.DB
}

var _ Registry = &Ql{}

var qlMigrations = []migration.Migrator{
	qlschema1,
}

var qlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version (version, applied) VALUES (?1, now())`,
	CreateSQL: `CREATE TABLE migration_version (version int, applied time)`,
}

// in-memory QL databases are shared by name inside the driver
var memdbs int64

// NewQl opens the QL database in filename, creating it if needed. The
// filename "memory" gives a fresh database kept in memory.
func NewQl(filename string) (*Ql, error) {
	driver, name := "ql", filename
	if filename == "memory" {
		driver = "ql-mem"
		name = fmt.Sprintf("registry%d.db", atomic.AddInt64(&memdbs, 1))
	}
	db, err := migration.OpenWith(driver, name, qlMigrations,
		qlVersioning.Get, qlVersioning.Set)
	if err != nil {
		return nil, errors.Wrap(err, "open ql registry")
	}
	return &Ql{db: db}, nil
}

func (q *Ql) Lookup(id string) (Record, bool, error) {
	const query = `SELECT content_hash, outcome, indexed FROM bags WHERE id == ?1 LIMIT 1`

	rec := Record{ID: id}
	err := q.db.QueryRow(query, id).Scan(&rec.ContentHash, &rec.Outcome, &rec.IndexedAt)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	} else if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (q *Ql) Save(r Record) error {
	const update = `UPDATE bags SET content_hash = ?2, outcome = ?3, indexed = ?4 WHERE id == ?1`
	const insert = `INSERT INTO bags VALUES (?1, ?2, ?3, ?4)`

	when := r.IndexedAt.UTC().Truncate(time.Second)
	result, err := performExec(q.db, update, r.ID, r.ContentHash, r.Outcome, when)
	if err != nil {
		return err
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if nrows == 0 {
		_, err = performExec(q.db, insert, r.ID, r.ContentHash, r.Outcome, when)
	}
	return err
}

func (q *Ql) Close() error {
	return q.db.Close()
}

// performExec runs query in its own transaction. QL refuses writes outside
// a transaction.
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

func qlschema1(tx migration.LimitedTx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS bags (
			id string,
			content_hash string,
			outcome string,
			indexed time
		);
		CREATE INDEX IF NOT EXISTS bagsid ON bags (id);
	`)
	return err
}
