package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockEchoesRepository struct {
	mock.Mock
}

func (m *MockEchoesRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockEchoesRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockEchoesRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockEchoesRepository) GetAccountById(ctx context.Context, id string) (Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockEchoesRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockEchoesRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (Account, error) {
	args := m.Called(ctx, id, passwordHash)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockEchoesRepository) GetProfile(ctx context.Context, accountId string) (Profile, error) {
	args := m.Called(ctx, accountId)
	return args.Get(0).(Profile), args.Error(1)
}
func (m *MockEchoesRepository) UpsertRotatingId(ctx context.Context, accountId, rotatingId string, rotatedAt time.Time) (Profile, error) {
	args := m.Called(ctx, accountId, rotatingId, rotatedAt)
	return args.Get(0).(Profile), args.Error(1)
}
func (m *MockEchoesRepository) SetAutoRotate(ctx context.Context, accountId string, enabled bool) (Profile, error) {
	args := m.Called(ctx, accountId, enabled)
	return args.Get(0).(Profile), args.Error(1)
}
func (m *MockEchoesRepository) FindProfileByRotatingId(ctx context.Context, rotatingId string) (Profile, error) {
	args := m.Called(ctx, rotatingId)
	return args.Get(0).(Profile), args.Error(1)
}
func (m *MockEchoesRepository) GetProfilesByIds(ctx context.Context, ids []string) ([]Profile, error) {
	args := m.Called(ctx, ids)
	if profiles, ok := args.Get(0).([]Profile); ok {
		return profiles, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockEchoesRepository) ListProfilesDueForRotation(ctx context.Context, rotatedBefore time.Time) ([]Profile, error) {
	args := m.Called(ctx, rotatedBefore)
	if profiles, ok := args.Get(0).([]Profile); ok {
		return profiles, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockEchoesRepository) AddFriend(ctx context.Context, ownerId, friendId string) error {
	args := m.Called(ctx, ownerId, friendId)
	return args.Error(0)
}
func (m *MockEchoesRepository) RemoveFriend(ctx context.Context, ownerId, friendId string) error {
	args := m.Called(ctx, ownerId, friendId)
	return args.Error(0)
}
func (m *MockEchoesRepository) CreateEcho(ctx context.Context, echo Echo) error {
	args := m.Called(ctx, echo)
	return args.Error(0)
}
func (m *MockEchoesRepository) ListEchoesSince(ctx context.Context, since time.Time) ([]Echo, error) {
	args := m.Called(ctx, since)
	if echoes, ok := args.Get(0).([]Echo); ok {
		return echoes, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockEchoesRepository) CountEchoesByOwner(ctx context.Context, ownerId string) (int, error) {
	args := m.Called(ctx, ownerId)
	return args.Int(0), args.Error(1)
}
func (m *MockEchoesRepository) ListEchoMoodsByOwner(ctx context.Context, ownerId string) ([]string, error) {
	args := m.Called(ctx, ownerId)
	if moods, ok := args.Get(0).([]string); ok {
		return moods, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockEchoesRepository) CreateVibe(ctx context.Context, vibe Vibe) error {
	args := m.Called(ctx, vibe)
	return args.Error(0)
}
func (m *MockEchoesRepository) ListVibesByOwner(ctx context.Context, ownerId string) ([]Vibe, error) {
	args := m.Called(ctx, ownerId)
	if vibes, ok := args.Get(0).([]Vibe); ok {
		return vibes, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockEchoesRepository) DeleteVibe(ctx context.Context, ownerId, vibeId string) error {
	args := m.Called(ctx, ownerId, vibeId)
	return args.Error(0)
}
func (m *MockEchoesRepository) CountPrivateVibesByOwner(ctx context.Context, ownerId string) (int, error) {
	args := m.Called(ctx, ownerId)
	return args.Int(0), args.Error(1)
}

var _ EchoesRepository = (*MockEchoesRepository)(nil)
