// Package store persists install records and account credentials in an
// embedded SQLite database. The store is the sole writer of lifecycle
// state; everything handed out is a copy.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Common errors.
var (
	ErrNotFound      = errors.New("store: record not found")
	ErrDuplicateName = errors.New("store: installation name already exists")
)

// State is the lifecycle state of an installation.
type State string

const (
	// StateInstalling is written before any artifact bytes are fetched.
	StateInstalling State = "installing"
	// StateReady is written only after all download phases succeed.
	StateReady State = "ready"
	// StateUnknown marks corrupt or legacy rows on read. It is never a
	// valid target of a write.
	StateUnknown State = "unknown"
)

func parseState(s string) State {
	switch State(s) {
	case StateInstalling, StateReady:
		return State(s)
	default:
		return StateUnknown
	}
}

// Installation is one persisted install record.
type Installation struct {
	ID         string
	Name       string
	VersionID  string
	State      State
	Type       string
	Folder     string
	JavaMajor  int
	BinaryPath string
	MainClass  string
	AssetIndex string
	JVMArgs    []string
	GameArgs   []string
	ClassPath  []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Account is the persisted credential row consumed by launch.
type Account struct {
	ID          string
	PlayerName  string
	PlayerUUID  string
	AccessToken string
	UserType    string
	UpdatedAt   time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS installations (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE,
			version_id  TEXT NOT NULL,
			state       TEXT NOT NULL,
			type        TEXT NOT NULL DEFAULT '',
			folder      TEXT NOT NULL,
			java_major  INTEGER NOT NULL DEFAULT 8,
			binary_path TEXT NOT NULL DEFAULT '',
			main_class  TEXT NOT NULL DEFAULT '',
			asset_index TEXT NOT NULL DEFAULT '',
			jvm_args    TEXT NOT NULL DEFAULT '[]',
			game_args   TEXT NOT NULL DEFAULT '[]',
			class_path  TEXT NOT NULL DEFAULT '[]',
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS accounts (
			id           TEXT PRIMARY KEY,
			player_name  TEXT NOT NULL,
			player_uuid  TEXT NOT NULL,
			access_token TEXT NOT NULL DEFAULT '',
			user_type    TEXT NOT NULL DEFAULT 'offline',
			updated_at   INTEGER NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateInstalling inserts a new record in the installing state. The
// record exists durably before the first artifact byte is fetched, so a
// crash mid-download leaves an inspectable row rather than silent loss.
func (s *Store) CreateInstalling(rec *Installation) error {
	if rec.ID == "" || rec.Name == "" {
		return fmt.Errorf("store: id and name are required")
	}

	jvm, game, cp, err := encodeLists(rec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO installations
			(id, name, version_id, state, type, folder, java_major,
			 binary_path, main_class, asset_index, jvm_args, game_args,
			 class_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.VersionID, string(StateInstalling), rec.Type,
		rec.Folder, rec.JavaMajor, rec.BinaryPath, rec.MainClass,
		rec.AssetIndex, jvm, game, cp, now.Unix(), now.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, rec.Name)
		}
		return fmt.Errorf("inserting installation: %w", err)
	}

	rec.State = StateInstalling
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// MarkReady transitions a record to ready. It is the only state write
// after creation; the unknown sentinel is never written.
func (s *Store) MarkReady(id string) error {
	res, err := s.db.Exec(
		`UPDATE installations SET state = ?, updated_at = ? WHERE id = ?`,
		string(StateReady), time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("updating installation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (*Installation, error) {
	return s.queryOne(`WHERE id = ?`, id)
}

// GetByName returns the record with the given display name.
func (s *Store) GetByName(name string) (*Installation, error) {
	return s.queryOne(`WHERE name = ?`, name)
}

// List returns all records ordered by creation time.
func (s *Store) List() ([]*Installation, error) {
	rows, err := s.db.Query(selectColumns + ` FROM installations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}
	defer rows.Close()

	var out []*Installation
	for rows.Next() {
		rec, err := scanInstallation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a record.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM installations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting installation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// SetAccount upserts the credential row.
func (s *Store) SetAccount(acc *Account) error {
	if acc.ID == "" || acc.PlayerName == "" {
		return fmt.Errorf("store: account id and player name are required")
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, player_name, player_uuid, access_token, user_type, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			player_name = excluded.player_name,
			player_uuid = excluded.player_uuid,
			access_token = excluded.access_token,
			user_type = excluded.user_type,
			updated_at = excluded.updated_at`,
		acc.ID, acc.PlayerName, acc.PlayerUUID, acc.AccessToken, acc.UserType, now.Unix())
	if err != nil {
		return fmt.Errorf("saving account: %w", err)
	}
	acc.UpdatedAt = now
	return nil
}

// Account returns the most recently updated credential row.
func (s *Store) Account() (*Account, error) {
	row := s.db.QueryRow(`
		SELECT id, player_name, player_uuid, access_token, user_type, updated_at
		FROM accounts ORDER BY updated_at DESC LIMIT 1`)

	var acc Account
	var updated int64
	err := row.Scan(&acc.ID, &acc.PlayerName, &acc.PlayerUUID, &acc.AccessToken, &acc.UserType, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading account: %w", err)
	}
	acc.UpdatedAt = time.Unix(updated, 0).UTC()
	return &acc, nil
}

const selectColumns = `
	SELECT id, name, version_id, state, type, folder, java_major,
	       binary_path, main_class, asset_index, jvm_args, game_args,
	       class_path, created_at, updated_at`

func (s *Store) queryOne(where string, arg any) (*Installation, error) {
	rows, err := s.db.Query(selectColumns+` FROM installations `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("querying installation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanInstallation(rows)
}

func scanInstallation(rows *sql.Rows) (*Installation, error) {
	var rec Installation
	var state, jvm, game, cp string
	var created, updated int64

	err := rows.Scan(&rec.ID, &rec.Name, &rec.VersionID, &state, &rec.Type,
		&rec.Folder, &rec.JavaMajor, &rec.BinaryPath, &rec.MainClass,
		&rec.AssetIndex, &jvm, &game, &cp, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("scanning installation: %w", err)
	}

	rec.State = parseState(state)
	rec.CreatedAt = time.Unix(created, 0).UTC()
	rec.UpdatedAt = time.Unix(updated, 0).UTC()

	if err := json.Unmarshal([]byte(jvm), &rec.JVMArgs); err != nil {
		return nil, fmt.Errorf("decoding jvm args: %w", err)
	}
	if err := json.Unmarshal([]byte(game), &rec.GameArgs); err != nil {
		return nil, fmt.Errorf("decoding game args: %w", err)
	}
	if err := json.Unmarshal([]byte(cp), &rec.ClassPath); err != nil {
		return nil, fmt.Errorf("decoding class path: %w", err)
	}
	return &rec, nil
}

func encodeLists(rec *Installation) (jvm, game, cp string, err error) {
	enc := func(list []string) (string, error) {
		if list == nil {
			list = []string{}
		}
		b, err := json.Marshal(list)
		return string(b), err
	}
	if jvm, err = enc(rec.JVMArgs); err != nil {
		return
	}
	if game, err = enc(rec.GameArgs); err != nil {
		return
	}
	cp, err = enc(rec.ClassPath)
	return
}

func isUniqueViolation(err error) bool {
	// modernc surfaces SQLITE_CONSTRAINT_* in the error text; matching it
	// here avoids importing driver internals.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
