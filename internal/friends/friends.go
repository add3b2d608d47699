// Package friends keeps each account's one-way list of followed accounts.
package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/identity"
	"github.com/npezzotti/go-echoes/internal/live"
	"github.com/npezzotti/go-echoes/internal/types"
	"go.uber.org/zap"
)

type Store struct {
	db     database.EchoesRepository
	ids    *identity.Manager
	broker live.Broker
	log    *zap.SugaredLogger
}

func NewStore(db database.EchoesRepository, ids *identity.Manager, broker live.Broker, logger *zap.SugaredLogger) *Store {
	return &Store{
		db:     db,
		ids:    ids,
		broker: broker,
		log:    logger,
	}
}

// AddFriend follows the first account currently carrying rotatingId.
// Adding an account that is already a friend is a no-op.
func (s *Store) AddFriend(ctx context.Context, ownerId, rotatingId string) (types.Friend, error) {
	if strings.TrimSpace(rotatingId) == "" {
		return types.Friend{}, apperr.Validation(apperr.CodeInvalidInput, "please enter an invite code")
	}

	owner, err := s.ids.Ensure(ctx, ownerId)
	if err != nil {
		return types.Friend{}, err
	}
	if owner.RotatingId == rotatingId {
		return types.Friend{}, apperr.ErrSelfReference
	}

	target, err := s.db.FindProfileByRotatingId(ctx, rotatingId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Friend{}, apperr.NotFound(apperr.CodeFriendNotFound, "no user found with that invite code")
		}
		return types.Friend{}, apperr.Transport(fmt.Errorf("find profile: %w", err))
	}

	if target.AccountId == ownerId {
		return types.Friend{}, apperr.ErrSelfReference
	}

	if err := s.db.AddFriend(ctx, ownerId, target.AccountId); err != nil {
		return types.Friend{}, apperr.Transport(fmt.Errorf("add friend: %w", err))
	}

	s.notify(ctx, ownerId)

	return types.Friend{Id: target.AccountId, RotatingId: target.RotatingId}, nil
}

// RemoveFriend drops friendId from the owner's list. Removing an id that
// is not in the list is a no-op.
func (s *Store) RemoveFriend(ctx context.Context, ownerId, friendId string) error {
	if err := s.db.RemoveFriend(ctx, ownerId, friendId); err != nil {
		return apperr.Transport(fmt.Errorf("remove friend: %w", err))
	}

	s.notify(ctx, ownerId)
	return nil
}

// ListFriends reads the owner's stored list, then resolves it.
func (s *Store) ListFriends(ctx context.Context, ownerId string) ([]types.Friend, error) {
	owner, err := s.db.GetProfile(ctx, ownerId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return []types.Friend{}, nil
		}
		return nil, apperr.Transport(fmt.Errorf("get profile: %w", err))
	}

	return s.Resolve(ctx, owner.Friends)
}

// Resolve fetches the profiles for ids in one query. The result follows
// the order of ids, skips ids without a profile and lists each id once.
func (s *Store) Resolve(ctx context.Context, ids []string) ([]types.Friend, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	friends := make([]types.Friend, 0, len(unique))
	if len(unique) == 0 {
		return friends, nil
	}

	profiles, err := s.db.GetProfilesByIds(ctx, unique)
	if err != nil {
		return nil, apperr.Transport(fmt.Errorf("get profiles: %w", err))
	}

	byId := make(map[string]database.Profile, len(profiles))
	for _, p := range profiles {
		byId[p.AccountId] = p
	}

	for _, id := range unique {
		if p, ok := byId[id]; ok {
			friends = append(friends, types.Friend{Id: p.AccountId, RotatingId: p.RotatingId})
		}
	}

	return friends, nil
}

// Subscribe streams the resolved friend list, re-evaluated whenever the
// owner's profile record changes. Only ProfileTopic(ownerId) is watched:
// a friend rotating their identifier is not pushed until the owner's
// record changes or the stream is reopened.
func (s *Store) Subscribe(ctx context.Context, ownerId string) *live.Stream[[]types.Friend] {
	return live.Watch(ctx, s.broker, func(ctx context.Context) ([]types.Friend, error) {
		return s.ListFriends(ctx, ownerId)
	}, live.ProfileTopic(ownerId))
}

func (s *Store) notify(ctx context.Context, ownerId string) {
	if err := s.broker.Publish(ctx, live.ProfileTopic(ownerId)); err != nil {
		s.log.Warnw("publish friends change", "account_id", ownerId, "error", err)
	}
}
