package repository

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// The repository's queries are written against Postgres (NOW(), RETURNING,
// gen_random_uuid()). Rather than fork a sqlite-dialect copy of that SQL just
// for testability, this registers a sqlite3 driver that understands the two
// Postgres functions the schema actually needs, so the production queries
// run unmodified against an in-memory database.
var registerSQLiteTestDriver sync.Once

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	registerSQLiteTestDriver.Do(func() {
		sql.Register("sqlite3_repo_test", &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("now", func() string {
					return time.Now().UTC().Format("2006-01-02 15:04:05.999999999-07:00")
				}, false); err != nil {
					return err
				}
				return conn.RegisterFunc("gen_random_uuid", func() string {
					return uuid.New().String()
				}, false)
			},
		})
	})

	db, err := sqlx.Connect("sqlite3_repo_test", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// sqlite's :memory: database is per-connection; the atomic-UPDATE races
	// these tests exercise need every caller to see the same data, so the
	// pool is pinned to one connection rather than switched to shared-cache
	// mode.
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT UNIQUE,
	chat_id       INTEGER UNIQUE,
	referral_code TEXT NOT NULL UNIQUE,
	referred_by   INTEGER,
	role          TEXT NOT NULL DEFAULT 'USER',
	created_at    TIMESTAMP NOT NULL DEFAULT (now()),
	updated_at    TIMESTAMP NOT NULL DEFAULT (now())
);

CREATE TABLE chains (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	slug             TEXT NOT NULL UNIQUE,
	type             TEXT NOT NULL,
	chain_id         INTEGER NOT NULL,
	rpc_url          TEXT NOT NULL,
	explorer_url     TEXT NOT NULL DEFAULT '',
	signing_key_blob TEXT NOT NULL,
	active           INTEGER NOT NULL DEFAULT 1,
	min_amount_idr   NUMERIC NOT NULL DEFAULT 100000,
	created_at       TIMESTAMP NOT NULL DEFAULT (now())
);

CREATE TABLE vouchers (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	code        TEXT NOT NULL UNIQUE,
	owner_id    INTEGER,
	value_idr   NUMERIC NOT NULL,
	min_amount  NUMERIC NOT NULL DEFAULT 0,
	max_usage   INTEGER NOT NULL DEFAULT 1,
	usage_count INTEGER NOT NULL DEFAULT 0,
	active      INTEGER NOT NULL DEFAULT 1,
	expires_at  TIMESTAMP,
	created_at  TIMESTAMP NOT NULL DEFAULT (now())
);

CREATE TABLE orders (
	id             TEXT PRIMARY KEY DEFAULT (gen_random_uuid()),
	user_id        INTEGER NOT NULL,
	chain_id       INTEGER NOT NULL,
	symbol         TEXT NOT NULL,
	amount_idr     NUMERIC NOT NULL,
	amount_token   NUMERIC NOT NULL,
	markup_percent NUMERIC NOT NULL DEFAULT 0,
	wallet_address TEXT NOT NULL,
	voucher_id     INTEGER,
	status         TEXT NOT NULL DEFAULT 'PENDING',
	payment_method TEXT,
	fee_idr        NUMERIC NOT NULL DEFAULT 0,
	total_pay      NUMERIC NOT NULL DEFAULT 0,
	tx_hash        TEXT,
	midtrans_id    TEXT UNIQUE,
	payment_url    TEXT,
	created_at     TIMESTAMP NOT NULL DEFAULT (now()),
	updated_at     TIMESTAMP NOT NULL DEFAULT (now()),
	paid_at        TIMESTAMP,
	completed_at   TIMESTAMP
);
`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create test schema: %v", err)
	}
	return db
}

func seedUserAndChain(t *testing.T, db *sqlx.DB) (userID, chainID int64) {
	t.Helper()
	res, err := db.Exec(`INSERT INTO users (referral_code) VALUES ('REF1')`)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	userID, _ = res.LastInsertId()

	res, err = db.Exec(`
		INSERT INTO chains (slug, type, chain_id, rpc_url, signing_key_blob)
		VALUES ('ethereum', 'EVM', 1, 'https://rpc.example', 'blob')`)
	if err != nil {
		t.Fatalf("seed chain: %v", err)
	}
	chainID, _ = res.LastInsertId()
	return userID, chainID
}
