package catalog

import (
	"database/sql"

	_ "github.com/lib/pq" // postgres driver
)

// OpenDB opens the catalog database and verifies connectivity.
func OpenDB(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(10)
	return db, nil
}
