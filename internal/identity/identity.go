// Package identity manages the rotating pseudonymous identifier shown in
// place of an account's email.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/live"
	"github.com/npezzotti/go-echoes/internal/types"
	"go.uber.org/zap"
)

const (
	idPrefix = "Echo"
	idRange  = 10000
)

// Generate returns "Echo" followed by a uniform integer in [0, 10000).
// Identifiers are not checked for collisions.
func Generate() string {
	return fmt.Sprintf("%s%d", idPrefix, rand.IntN(idRange))
}

type Manager struct {
	db       database.EchoesRepository
	broker   live.Broker
	log      *zap.SugaredLogger
	now      func() time.Time
	generate func() string
}

func NewManager(db database.EchoesRepository, broker live.Broker, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		db:       db,
		broker:   broker,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
		generate: Generate,
	}
}

func ToProfile(p database.Profile) types.Profile {
	friends := p.Friends
	if friends == nil {
		friends = []string{}
	}

	return types.Profile{
		AccountId:   p.AccountId,
		RotatingId:  p.RotatingId,
		LastRotated: p.LastRotated,
		Friends:     friends,
		AutoRotate:  p.AutoRotate,
	}
}

// Rotate stores a freshly generated identifier, creating the profile
// record if needed.
func (m *Manager) Rotate(ctx context.Context, accountId string) (types.Profile, error) {
	rotatingId := m.generate()

	p, err := m.db.UpsertRotatingId(ctx, accountId, rotatingId, m.now())
	if err != nil {
		return types.Profile{}, apperr.Transport(fmt.Errorf("rotate identifier: %w", err))
	}

	m.log.Debugw("rotated identifier", "account_id", accountId, "rotating_id", rotatingId)
	m.notify(ctx, accountId)

	return ToProfile(p), nil
}

// Ensure returns the profile, rotating once if no record exists yet.
func (m *Manager) Ensure(ctx context.Context, accountId string) (types.Profile, error) {
	p, err := m.db.GetProfile(ctx, accountId)
	if err == nil {
		return ToProfile(p), nil
	}

	if !errors.Is(err, database.ErrNotFound) {
		return types.Profile{}, apperr.Transport(fmt.Errorf("get profile: %w", err))
	}

	return m.Rotate(ctx, accountId)
}

func (m *Manager) SetAutoRotate(ctx context.Context, accountId string, enabled bool) (types.Profile, error) {
	if _, err := m.Ensure(ctx, accountId); err != nil {
		return types.Profile{}, err
	}

	p, err := m.db.SetAutoRotate(ctx, accountId, enabled)
	if err != nil {
		return types.Profile{}, apperr.Transport(fmt.Errorf("set auto rotate: %w", err))
	}

	m.notify(ctx, accountId)

	return ToProfile(p), nil
}

func (m *Manager) notify(ctx context.Context, accountId string) {
	if err := m.broker.Publish(ctx, live.ProfileTopic(accountId)); err != nil {
		m.log.Warnw("publish profile change", "account_id", accountId, "error", err)
	}
}
