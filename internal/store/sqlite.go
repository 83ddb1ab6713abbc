package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"smartclip/internal/clip"
	"smartclip/internal/security"
)

// Supported database/sql driver names.
const (
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

const (
	// DefaultBusyTimeout is how long a writer waits on a locked database.
	DefaultBusyTimeout = 5 * time.Second

	// DefaultListLimit is the page size used when List gets a non-positive limit.
	DefaultListLimit = 50
)

const clipColumns = `id, kind, text, image, created_at, pinned, is_otp, fingerprint`

type options struct {
	driver      string
	busyTimeout time.Duration
	now         func() time.Time
}

// Option customises Open and New.
type Option func(*options)

// WithDriver selects the SQLite driver, DriverCGO or DriverPure.
func WithDriver(name string) Option { return func(o *options) { o.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout.
func WithBusyTimeout(d time.Duration) Option { return func(o *options) { o.busyTimeout = d } }

// WithClock replaces time.Now for created_at stamps and expiry cutoffs.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func buildOptions(opts []Option) options {
	o := options{
		driver:      DriverCGO,
		busyTimeout: DefaultBusyTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store is the durable clip history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	if o.driver != DriverCGO && o.driver != DriverPure {
		return nil, fmt.Errorf("unsupported sqlite driver %q", o.driver)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), security.PermPrivateDir); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		if err := security.CreatePrivate(path); err != nil {
			return nil, fmt.Errorf("create database: %w", err)
		}
	}

	db, err := sql.Open(o.driver, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas are per connection and SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db, o); err != nil {
		db.Close()
		return nil, err
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, now: o.now}, nil
}

// New wraps an already migrated database handle.
func New(db *sql.DB, opts ...Option) *Store {
	o := buildOptions(opts)
	return &Store{db: db, now: o.now}
}

func applyPragmas(db *sql.DB, o options) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// InsertOrBump stores c unless a clip with the same fingerprint exists, in
// which case only that clip's created_at is refreshed. It returns the id of
// the stored clip and whether a new row was created. A zero fingerprint on c
// is computed from its content.
func (s *Store) InsertOrBump(ctx context.Context, c *clip.Clip) (int64, bool, error) {
	if err := clip.Validate(c.Content); err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrInvalidClip, err)
	}
	fp := c.Fingerprint
	if fp.IsZero() {
		fp = clip.FingerprintOf(c.Content)
	}
	now := s.now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, storageErr("begin insert", err)
	}
	defer tx.Rollback()

	var id int64
	created := false
	err = tx.QueryRowContext(ctx, `SELECT id FROM clips WHERE fingerprint = ?`, fp.String()).Scan(&id)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `UPDATE clips SET created_at = ? WHERE id = ?`, now, id); err != nil {
			return 0, false, storageErr("bump clip", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		text, image := payloadColumns(c.Content)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO clips (kind, text, image, created_at, pinned, is_otp, fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Content.Kind().String(), text, image, now, c.Pinned, c.IsOTP, fp.String(),
		)
		if err != nil {
			return 0, false, storageErr("insert clip", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, storageErr("get last insert id", err)
		}
		created = true
	default:
		return 0, false, storageErr("lookup fingerprint", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, storageErr("commit insert", err)
	}
	return id, created, nil
}

func payloadColumns(c clip.Content) (text, image any) {
	switch v := c.(type) {
	case clip.Text:
		return string(v), nil
	case clip.Image:
		return nil, []byte(v)
	}
	return nil, nil
}

// List returns a page of clips, pinned first, then most recently captured
// first. Ties are broken by id, newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]clip.Clip, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clipColumns+`
		FROM clips
		ORDER BY pinned DESC, created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, storageErr("list clips", err)
	}
	defer rows.Close()

	var clips []clip.Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list clips", err)
	}
	return clips, nil
}

// Get returns the clip with the given id or an error wrapping ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*clip.Clip, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = ?`, id)
	c, err := scanClip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, err
	}
	return &c, nil
}

// Delete removes the clip regardless of its pin state. It reports whether a
// row existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clips WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete clip", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete clip", err)
	}
	return n > 0, nil
}

// ClearUnpinned removes every clip that is not pinned and returns how many
// were removed.
func (s *Store) ClearUnpinned(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clips WHERE pinned = 0`)
	if err != nil {
		return 0, storageErr("clear unpinned", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("clear unpinned", err)
	}
	return n, nil
}

// TogglePin flips the pin flag and returns the new value. created_at is left
// alone.
func (s *Store) TogglePin(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("begin toggle pin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE clips SET pinned = CASE pinned WHEN 0 THEN 1 ELSE 0 END WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("toggle pin", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("toggle pin", err)
	}
	if n == 0 {
		return false, notFound(id)
	}

	var pinned bool
	if err := tx.QueryRowContext(ctx, `SELECT pinned FROM clips WHERE id = ?`, id).Scan(&pinned); err != nil {
		return false, storageErr("read pin", err)
	}
	if err := tx.Commit(); err != nil {
		return false, storageErr("commit toggle pin", err)
	}
	return pinned, nil
}

// ExpireOTPs removes every OTP clip older than maxAge, pinned or not, and
// returns how many were removed.
func (s *Store) ExpireOTPs(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM clips WHERE is_otp = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, storageErr("expire otps", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("expire otps", err)
	}
	return n, nil
}

// Count returns the number of stored clips.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clips`).Scan(&n); err != nil {
		return 0, storageErr("count clips", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClip(r rowScanner) (clip.Clip, error) {
	var (
		c         clip.Clip
		kindName  string
		text      sql.NullString
		image     []byte
		createdNs int64
		fp        string
	)
	err := r.Scan(&c.ID, &kindName, &text, &image, &createdNs, &c.Pinned, &c.IsOTP, &fp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, storageErr("scan clip", err)
	}

	kind, err := clip.ParseKind(kindName)
	if err != nil {
		return c, storageErr("decode clip", err)
	}
	var textPtr *string
	if text.Valid {
		textPtr = &text.String
	}
	content, err := clip.FromColumns(textPtr, image)
	if err != nil {
		return c, storageErr("decode clip", err)
	}
	if content.Kind() != kind {
		return c, storageErr("decode clip", fmt.Errorf("clip %d is %s but holds %s", c.ID, kind, content.Kind()))
	}
	c.Content = content
	c.CreatedAt = time.Unix(0, createdNs)
	if c.Fingerprint, err = clip.ParseFingerprint(fp); err != nil {
		return c, storageErr("decode clip", err)
	}
	return c, nil
}
