package database

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryEchoesRepository keeps every collection in process memory. It
// follows the same ordering and sentinel errors as the postgres store and
// is meant for local runs and tests; nothing survives a restart.
type MemoryEchoesRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	profiles map[string]Profile
	echoes   map[string]Echo
	vibes    map[string]Vibe
	now      func() time.Time
}

func NewMemoryEchoesRepository() *MemoryEchoesRepository {
	return &MemoryEchoesRepository{
		accounts: make(map[string]Account),
		profiles: make(map[string]Profile),
		echoes:   make(map[string]Echo),
		vibes:    make(map[string]Vibe),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (db *MemoryEchoesRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (db *MemoryEchoesRepository) Close() error {
	return nil
}

func (db *MemoryEchoesRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	email := strings.ToLower(params.EmailAddress)
	for _, a := range db.accounts {
		if a.EmailAddress == email {
			return Account{}, fmt.Errorf("%w: accounts_email_key", ErrDuplicate)
		}
	}

	now := db.now()
	a := Account{
		Id:           uuid.NewString(),
		EmailAddress: email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	db.accounts[a.Id] = a

	return a, nil
}

func (db *MemoryEchoesRepository) GetAccountById(ctx context.Context, id string) (Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	a, ok := db.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}

	return a, nil
}

func (db *MemoryEchoesRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	email = strings.ToLower(email)
	for _, a := range db.accounts {
		if a.EmailAddress == email {
			return a, nil
		}
	}

	return Account{}, ErrNotFound
}

func (db *MemoryEchoesRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	a, ok := db.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = db.now()
	db.accounts[id] = a

	return a, nil
}

// copyProfile detaches the friends slice from the stored record.
func copyProfile(p Profile) Profile {
	p.Friends = append([]string{}, p.Friends...)
	return p
}

func (db *MemoryEchoesRepository) GetProfile(ctx context.Context, accountId string) (Profile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	p, ok := db.profiles[accountId]
	if !ok {
		return Profile{}, ErrNotFound
	}

	return copyProfile(p), nil
}

func (db *MemoryEchoesRepository) UpsertRotatingId(ctx context.Context, accountId, rotatingId string, rotatedAt time.Time) (Profile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.profiles[accountId]
	if !ok {
		p = Profile{AccountId: accountId, Friends: []string{}}
	}
	p.RotatingId = rotatingId
	p.LastRotated = rotatedAt.UTC()
	db.profiles[accountId] = p

	return copyProfile(p), nil
}

func (db *MemoryEchoesRepository) SetAutoRotate(ctx context.Context, accountId string, enabled bool) (Profile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.profiles[accountId]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.AutoRotate = enabled
	db.profiles[accountId] = p

	return copyProfile(p), nil
}

func (db *MemoryEchoesRepository) FindProfileByRotatingId(ctx context.Context, rotatingId string) (Profile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, p := range db.profiles {
		if p.RotatingId == rotatingId {
			return copyProfile(p), nil
		}
	}

	return Profile{}, ErrNotFound
}

func (db *MemoryEchoesRepository) GetProfilesByIds(ctx context.Context, ids []string) ([]Profile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	profiles := make([]Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := db.profiles[id]; ok {
			profiles = append(profiles, copyProfile(p))
		}
	}

	return profiles, nil
}

func (db *MemoryEchoesRepository) ListProfilesDueForRotation(ctx context.Context, rotatedBefore time.Time) ([]Profile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	profiles := make([]Profile, 0)
	for _, p := range db.profiles {
		if p.AutoRotate && p.LastRotated.Before(rotatedBefore) {
			profiles = append(profiles, copyProfile(p))
		}
	}

	return profiles, nil
}

func (db *MemoryEchoesRepository) AddFriend(ctx context.Context, ownerId, friendId string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.profiles[ownerId]
	if !ok || slices.Contains(p.Friends, friendId) {
		return nil
	}
	p.Friends = append(slices.Clone(p.Friends), friendId)
	db.profiles[ownerId] = p

	return nil
}

func (db *MemoryEchoesRepository) RemoveFriend(ctx context.Context, ownerId, friendId string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.profiles[ownerId]
	if !ok {
		return nil
	}
	p.Friends = slices.DeleteFunc(slices.Clone(p.Friends), func(id string) bool { return id == friendId })
	db.profiles[ownerId] = p

	return nil
}

func (db *MemoryEchoesRepository) CreateEcho(ctx context.Context, echo Echo) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.echoes[echo.Id]; ok {
		return fmt.Errorf("%w: echoes_pkey", ErrDuplicate)
	}
	echo.Timestamp = echo.Timestamp.UTC()
	db.echoes[echo.Id] = echo

	return nil
}

func newestEchoFirst(a, b Echo) int {
	return cmp.Or(b.Timestamp.Compare(a.Timestamp), strings.Compare(a.Id, b.Id))
}

// ListEchoesSince returns echoes stamped at or after since, newest first.
func (db *MemoryEchoesRepository) ListEchoesSince(ctx context.Context, since time.Time) ([]Echo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	echoes := make([]Echo, 0)
	for _, e := range db.echoes {
		if !e.Timestamp.Before(since) {
			echoes = append(echoes, e)
		}
	}
	slices.SortFunc(echoes, newestEchoFirst)

	return echoes, nil
}

func (db *MemoryEchoesRepository) CountEchoesByOwner(ctx context.Context, ownerId string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	n := 0
	for _, e := range db.echoes {
		if e.OwnerAccountId == ownerId {
			n++
		}
	}

	return n, nil
}

// ListEchoMoodsByOwner returns the owner's echo moods, oldest first.
func (db *MemoryEchoesRepository) ListEchoMoodsByOwner(ctx context.Context, ownerId string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	owned := make([]Echo, 0)
	for _, e := range db.echoes {
		if e.OwnerAccountId == ownerId {
			owned = append(owned, e)
		}
	}
	slices.SortFunc(owned, func(a, b Echo) int { return a.Timestamp.Compare(b.Timestamp) })

	moods := make([]string, 0, len(owned))
	for _, e := range owned {
		moods = append(moods, e.Mood)
	}

	return moods, nil
}

func (db *MemoryEchoesRepository) CreateVibe(ctx context.Context, vibe Vibe) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.vibes[vibe.Id]; ok {
		return fmt.Errorf("%w: private_vibes_pkey", ErrDuplicate)
	}
	vibe.Timestamp = vibe.Timestamp.UTC()
	db.vibes[vibe.Id] = vibe

	return nil
}

func (db *MemoryEchoesRepository) ListVibesByOwner(ctx context.Context, ownerId string) ([]Vibe, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	vibes := make([]Vibe, 0)
	for _, v := range db.vibes {
		if v.OwnerAccountId == ownerId {
			vibes = append(vibes, v)
		}
	}
	slices.SortFunc(vibes, func(a, b Vibe) int {
		return cmp.Or(b.Timestamp.Compare(a.Timestamp), strings.Compare(a.Id, b.Id))
	})

	return vibes, nil
}

func (db *MemoryEchoesRepository) DeleteVibe(ctx context.Context, ownerId, vibeId string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	v, ok := db.vibes[vibeId]
	if !ok || v.OwnerAccountId != ownerId {
		return ErrNotFound
	}
	delete(db.vibes, vibeId)

	return nil
}

func (db *MemoryEchoesRepository) CountPrivateVibesByOwner(ctx context.Context, ownerId string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	n := 0
	for _, v := range db.vibes {
		if v.OwnerAccountId == ownerId && !v.IsShared {
			n++
		}
	}

	return n, nil
}

var _ EchoesRepository = (*MemoryEchoesRepository)(nil)
