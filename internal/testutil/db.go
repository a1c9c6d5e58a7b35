package testutil

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"

	"etfmon.io/etfmon/internal/sql"
)

func DBType(t *testing.T) sql.Type {
	var dbType sql.Type
	switch os.Getenv("DB_TYPE") {
	case "":
		fallthrough
	case "sqlite3":
		dbType = sql.Sqlite3
	case "postgres":
		dbType = sql.Postgres
	default:
		t.Fatalf("unknown db type")
	}

	return dbType
}

// CreateDB creates a new empty test database. For sqlite the database file
// lives inside dir, for postgres a new database is created using the
// PG_CONNSTRING template.
func CreateDB(t *testing.T, log zerolog.Logger, ctx context.Context, dir string) (*sql.DB, string) {
	dbType := DBType(t)

	pgConnString := os.Getenv("PG_CONNSTRING")

	var err error
	var sdb *sql.DB
	var connString string

	switch dbType {
	case sql.Sqlite3:
		dbName := "testdb" + strconv.FormatUint(uint64(rand.Uint32()), 10)
		connString = filepath.Join(dir, dbName)

		sdb, err = sql.NewDB(sql.Sqlite3, connString)
		assert.NilError(t, err)

	case sql.Postgres:
		dbName := "testdb" + strconv.FormatUint(uint64(rand.Uint32()), 10)
		connString = fmt.Sprintf(pgConnString, dbName)

		pgdb, err := stdsql.Open("postgres", fmt.Sprintf(pgConnString, "postgres"))
		assert.NilError(t, err)

		_, err = pgdb.Exec(fmt.Sprintf("drop database if exists %s", dbName))
		assert.NilError(t, err)

		_, err = pgdb.Exec(fmt.Sprintf("create database %s", dbName))
		assert.NilError(t, err)

		sdb, err = sql.NewDB(sql.Postgres, connString)
		assert.NilError(t, err)

	default:
		t.Fatalf("unknown db type")
	}

	t.Cleanup(func() { sdb.Close() })

	return sdb, connString
}
