package database

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Collection names shared by both backends.
const (
	accountsCollection = "accounts"
	profilesCollection = "users"
	echoesCollection   = "echoes"
	vibesCollection    = "privateVibes"
)

type EchoesRepository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error)
	GetAccountById(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) (Account, error)

	GetProfile(ctx context.Context, accountId string) (Profile, error)
	UpsertRotatingId(ctx context.Context, accountId, rotatingId string, rotatedAt time.Time) (Profile, error)
	SetAutoRotate(ctx context.Context, accountId string, enabled bool) (Profile, error)
	FindProfileByRotatingId(ctx context.Context, rotatingId string) (Profile, error)
	GetProfilesByIds(ctx context.Context, ids []string) ([]Profile, error)
	ListProfilesDueForRotation(ctx context.Context, rotatedBefore time.Time) ([]Profile, error)
	AddFriend(ctx context.Context, ownerId, friendId string) error
	RemoveFriend(ctx context.Context, ownerId, friendId string) error

	CreateEcho(ctx context.Context, echo Echo) error
	ListEchoesSince(ctx context.Context, since time.Time) ([]Echo, error)
	CountEchoesByOwner(ctx context.Context, ownerId string) (int, error)
	ListEchoMoodsByOwner(ctx context.Context, ownerId string) ([]string, error)

	CreateVibe(ctx context.Context, vibe Vibe) error
	ListVibesByOwner(ctx context.Context, ownerId string) ([]Vibe, error)
	DeleteVibe(ctx context.Context, ownerId, vibeId string) error
	CountPrivateVibesByOwner(ctx context.Context, ownerId string) (int, error)
}
