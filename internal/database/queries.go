package database

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	profileColumns = "account_id, rotating_id, last_rotated, friends, auto_rotate"
	echoColumns    = "id, content, mood, rotating_id, created_at, background_color, is_private, owner_account_id"
	vibeColumns    = "id, content, mood, created_at, is_shared, owner_account_id, rotating_id"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.AccountId,
		&p.RotatingId,
		&p.LastRotated,
		pq.Array(&p.Friends),
		&p.AutoRotate,
	)
	if p.Friends == nil {
		p.Friends = []string{}
	}

	return p, err
}

func scanEcho(row rowScanner) (Echo, error) {
	var e Echo
	err := row.Scan(
		&e.Id,
		&e.Content,
		&e.Mood,
		&e.RotatingId,
		&e.Timestamp,
		&e.BackgroundColor,
		&e.IsPrivate,
		&e.OwnerAccountId,
	)

	return e, err
}

func scanVibe(row rowScanner) (Vibe, error) {
	var v Vibe
	err := row.Scan(
		&v.Id,
		&v.Content,
		&v.Mood,
		&v.Timestamp,
		&v.IsShared,
		&v.OwnerAccountId,
		&v.RotatingId,
	)

	return v, err
}

func (db *PgEchoesRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO accounts (id, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, email, password_hash, created_at, updated_at",
		uuid.NewString(),
		strings.ToLower(params.EmailAddress),
		params.PasswordHash,
		now,
		now,
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, pgError(err)
}

func (db *PgEchoesRepository) getAccount(ctx context.Context, where string, arg any) (Account, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE "+where+" = $1 LIMIT 1",
		arg,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, pgError(err)
}

func (db *PgEchoesRepository) GetAccountById(ctx context.Context, id string) (Account, error) {
	return db.getAccount(ctx, "id", id)
}

func (db *PgEchoesRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return db.getAccount(ctx, "email", strings.ToLower(email))
}

func (db *PgEchoesRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (Account, error) {
	res := db.conn.QueryRowContext(ctx,
		"UPDATE accounts SET password_hash = $2, updated_at = $3 "+
			"WHERE id = $1 RETURNING id, email, password_hash, created_at, updated_at",
		id,
		passwordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, pgError(err)
}

func (db *PgEchoesRepository) GetProfile(ctx context.Context, accountId string) (Profile, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM users WHERE account_id = $1",
		accountId,
	)

	p, err := scanProfile(row)
	return p, pgError(err)
}

func (db *PgEchoesRepository) UpsertRotatingId(ctx context.Context, accountId, rotatingId string, rotatedAt time.Time) (Profile, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (account_id, rotating_id, last_rotated) VALUES ($1, $2, $3) "+
			"ON CONFLICT (account_id) DO UPDATE SET rotating_id = EXCLUDED.rotating_id, last_rotated = EXCLUDED.last_rotated "+
			"RETURNING "+profileColumns,
		accountId,
		rotatingId,
		rotatedAt.UTC(),
	)

	p, err := scanProfile(row)
	return p, pgError(err)
}

func (db *PgEchoesRepository) SetAutoRotate(ctx context.Context, accountId string, enabled bool) (Profile, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE users SET auto_rotate = $2 WHERE account_id = $1 RETURNING "+profileColumns,
		accountId,
		enabled,
	)

	p, err := scanProfile(row)
	return p, pgError(err)
}

// FindProfileByRotatingId returns the first profile carrying rotatingId.
// Identifiers are not unique; no ordering is imposed on collisions.
func (db *PgEchoesRepository) FindProfileByRotatingId(ctx context.Context, rotatingId string) (Profile, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM users WHERE rotating_id = $1 LIMIT 1",
		rotatingId,
	)

	p, err := scanProfile(row)
	return p, pgError(err)
}

func (db *PgEchoesRepository) queryProfiles(ctx context.Context, query string, args ...any) ([]Profile, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, pgError(err)
		}
		profiles = append(profiles, p)
	}

	return profiles, pgError(rows.Err())
}

func (db *PgEchoesRepository) GetProfilesByIds(ctx context.Context, ids []string) ([]Profile, error) {
	if len(ids) == 0 {
		return []Profile{}, nil
	}

	return db.queryProfiles(ctx,
		"SELECT "+profileColumns+" FROM users WHERE account_id = ANY($1)",
		pq.Array(ids),
	)
}

func (db *PgEchoesRepository) ListProfilesDueForRotation(ctx context.Context, rotatedBefore time.Time) ([]Profile, error) {
	return db.queryProfiles(ctx,
		"SELECT "+profileColumns+" FROM users WHERE auto_rotate AND last_rotated < $1",
		rotatedBefore.UTC(),
	)
}

// AddFriend appends friendId to the owner's list unless already present.
func (db *PgEchoesRepository) AddFriend(ctx context.Context, ownerId, friendId string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE users SET friends = array_append(friends, $2) "+
			"WHERE account_id = $1 AND NOT ($2 = ANY(friends))",
		ownerId,
		friendId,
	)

	return pgError(err)
}

func (db *PgEchoesRepository) RemoveFriend(ctx context.Context, ownerId, friendId string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE users SET friends = array_remove(friends, $2) WHERE account_id = $1",
		ownerId,
		friendId,
	)

	return pgError(err)
}

func (db *PgEchoesRepository) CreateEcho(ctx context.Context, echo Echo) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO echoes ("+echoColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		echo.Id,
		echo.Content,
		echo.Mood,
		echo.RotatingId,
		echo.Timestamp.UTC(),
		echo.BackgroundColor,
		echo.IsPrivate,
		echo.OwnerAccountId,
	)

	return pgError(err)
}

func (db *PgEchoesRepository) ListEchoesSince(ctx context.Context, since time.Time) ([]Echo, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+echoColumns+" FROM echoes WHERE created_at >= $1 ORDER BY created_at DESC",
		since.UTC(),
	)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	echoes := make([]Echo, 0)
	for rows.Next() {
		e, err := scanEcho(rows)
		if err != nil {
			return nil, pgError(err)
		}
		echoes = append(echoes, e)
	}

	return echoes, pgError(rows.Err())
}

func (db *PgEchoesRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, pgError(err)
}

func (db *PgEchoesRepository) CountEchoesByOwner(ctx context.Context, ownerId string) (int, error) {
	return db.count(ctx, "SELECT COUNT(*) FROM echoes WHERE owner_account_id = $1", ownerId)
}

// ListEchoMoodsByOwner returns the owner's echo moods, oldest first.
func (db *PgEchoesRepository) ListEchoMoodsByOwner(ctx context.Context, ownerId string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT mood FROM echoes WHERE owner_account_id = $1 ORDER BY created_at ASC",
		ownerId,
	)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	moods := make([]string, 0)
	for rows.Next() {
		var mood string
		if err := rows.Scan(&mood); err != nil {
			return nil, pgError(err)
		}
		moods = append(moods, mood)
	}

	return moods, pgError(rows.Err())
}

func (db *PgEchoesRepository) CreateVibe(ctx context.Context, vibe Vibe) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO private_vibes ("+vibeColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		vibe.Id,
		vibe.Content,
		vibe.Mood,
		vibe.Timestamp.UTC(),
		vibe.IsShared,
		vibe.OwnerAccountId,
		vibe.RotatingId,
	)

	return pgError(err)
}

func (db *PgEchoesRepository) ListVibesByOwner(ctx context.Context, ownerId string) ([]Vibe, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+vibeColumns+" FROM private_vibes WHERE owner_account_id = $1 ORDER BY created_at DESC",
		ownerId,
	)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	vibes := make([]Vibe, 0)
	for rows.Next() {
		v, err := scanVibe(rows)
		if err != nil {
			return nil, pgError(err)
		}
		vibes = append(vibes, v)
	}

	return vibes, pgError(rows.Err())
}

func (db *PgEchoesRepository) DeleteVibe(ctx context.Context, ownerId, vibeId string) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM private_vibes WHERE id = $1 AND owner_account_id = $2",
		vibeId,
		ownerId,
	)
	if err != nil {
		return pgError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return pgError(err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgEchoesRepository) CountPrivateVibesByOwner(ctx context.Context, ownerId string) (int, error) {
	return db.count(ctx, "SELECT COUNT(*) FROM private_vibes WHERE owner_account_id = $1 AND NOT is_shared", ownerId)
}

var _ EchoesRepository = (*PgEchoesRepository)(nil)
