package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/khanasif1/twooter/internal/model"
)

// Store persists one session token per identity in a local SQLite file.
// Every mutation is committed before the call returns, so a crash after Put
// never silently loses a token.
type Store struct{ sql *sql.DB }

func Open(path string) (*Store, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	s := &Store{sql: d}
	if err := s.migrate(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.sql.Close() }

func (s *Store) migrate() error {
	_, err := s.sql.Exec(`
	CREATE TABLE IF NOT EXISTS tokens (
	  identity TEXT PRIMARY KEY,
	  token TEXT NOT NULL,
	  kind TEXT NOT NULL,
	  issued_at INTEGER NOT NULL,
	  expires_at INTEGER,
	  last_used INTEGER
	);
	`)
	return err
}

// Get returns the cached token for identity, or ok=false when none is
// stored or the stored one has an expiry in the past.
func (s *Store) Get(ctx context.Context, identity string) (model.Token, bool, error) {
	row := s.sql.QueryRowContext(ctx,
		`SELECT token, kind, issued_at, COALESCE(expires_at, 0), COALESCE(last_used, 0) FROM tokens WHERE identity=?`, identity)
	var tok model.Token
	var issued, expires, used int64
	if err := row.Scan(&tok.Value, (*string)(&tok.Kind), &issued, &expires, &used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Token{}, false, nil
		}
		return model.Token{}, false, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	tok.Identity = identity
	tok.IssuedAt = time.Unix(issued, 0).UTC()
	if expires > 0 {
		tok.ExpiresAt = time.Unix(expires, 0).UTC()
	}
	if used > 0 {
		tok.LastUsed = time.Unix(used, 0).UTC()
	}
	if tok.Expired(time.Now().UTC()) {
		return model.Token{}, false, nil
	}
	return tok, true, nil
}

// Put atomically replaces any existing token for the identity.
func (s *Store) Put(ctx context.Context, tok model.Token) error {
	var expires any
	if !tok.ExpiresAt.IsZero() {
		expires = tok.ExpiresAt.Unix()
	}
	var used any
	if !tok.LastUsed.IsZero() {
		used = tok.LastUsed.Unix()
	}
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO tokens(identity, token, kind, issued_at, expires_at, last_used)
	VALUES(?,?,?,?,?,?)
	ON CONFLICT(identity) DO UPDATE SET
	  token=excluded.token, kind=excluded.kind, issued_at=excluded.issued_at,
	  expires_at=excluded.expires_at, last_used=excluded.last_used`,
		tok.Identity, tok.Value, string(tok.Kind), tok.IssuedAt.Unix(), expires, used)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}

// Remove deletes the cached token for identity. Missing rows are not an error.
func (s *Store) Remove(ctx context.Context, identity string) error {
	if _, err := s.sql.ExecContext(ctx, `DELETE FROM tokens WHERE identity=?`, identity); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}

// Touch records when the token was last presented to the platform.
func (s *Store) Touch(ctx context.Context, identity string, at time.Time) error {
	if _, err := s.sql.ExecContext(ctx, `UPDATE tokens SET last_used=? WHERE identity=?`, at.Unix(), identity); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}

// SweepExpired removes tokens whose expiry is in the past and returns the
// count removed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.sql.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at IS NOT NULL AND expires_at > 0 AND expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
