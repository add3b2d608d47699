// Package journal stores each account's private vibes. A vibe can be
// mirrored into the public feed when it is saved.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/feed"
	"github.com/npezzotti/go-echoes/internal/identity"
	"github.com/npezzotti/go-echoes/internal/live"
	"github.com/npezzotti/go-echoes/internal/types"
	"github.com/npezzotti/go-echoes/internal/validate"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
)

type SaveParams struct {
	Content     string `json:"content" validate:"notblank"`
	Mood        string `json:"mood" validate:"mood"`
	ShareToFeed bool   `json:"share_to_feed"`
}

type Journal struct {
	db        database.EchoesRepository
	ids       *identity.Manager
	feed      *feed.Feed
	broker    live.Broker
	validator *validate.Validator
	log       *zap.SugaredLogger
	now       func() time.Time
	newId     func() (string, error)
}

func NewJournal(
	db database.EchoesRepository,
	ids *identity.Manager,
	f *feed.Feed,
	broker live.Broker,
	logger *zap.SugaredLogger,
) *Journal {
	return &Journal{
		db:        db,
		ids:       ids,
		feed:      f,
		broker:    broker,
		validator: validate.New(),
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
		newId:     shortid.Generate,
	}
}

func toVibe(v database.Vibe) types.Vibe {
	return types.Vibe{
		Id:             v.Id,
		Content:        v.Content,
		Mood:           v.Mood,
		Timestamp:      v.Timestamp,
		IsShared:       v.IsShared,
		OwnerAccountId: v.OwnerAccountId,
		RotatingId:     v.RotatingId,
	}
}

// Save stores a vibe and, when ShareToFeed is set, posts an independent
// public echo with the same content. The writes are not atomic: if the
// echo cannot be stored the vibe is kept and the error is returned with it.
func (j *Journal) Save(ctx context.Context, accountId string, params SaveParams) (types.Vibe, *types.Echo, error) {
	if err := j.validator.Struct(params); err != nil {
		return types.Vibe{}, nil, err
	}

	if params.Mood == "" {
		params.Mood = types.DefaultMood
	}

	profile, err := j.ids.Ensure(ctx, accountId)
	if err != nil {
		return types.Vibe{}, nil, err
	}

	id, err := j.newId()
	if err != nil {
		return types.Vibe{}, nil, apperr.Transport(fmt.Errorf("generate vibe id: %w", err))
	}

	vibe := database.Vibe{
		Id:             id,
		Content:        params.Content,
		Mood:           params.Mood,
		Timestamp:      j.now(),
		IsShared:       params.ShareToFeed,
		OwnerAccountId: accountId,
		RotatingId:     profile.RotatingId,
	}

	if err := j.db.CreateVibe(ctx, vibe); err != nil {
		return types.Vibe{}, nil, apperr.Transport(fmt.Errorf("create vibe: %w", err))
	}
	j.notify(ctx, accountId)

	if !params.ShareToFeed {
		return toVibe(vibe), nil, nil
	}

	echo, err := j.feed.Post(ctx, accountId, feed.PostParams{
		Content:         params.Content,
		Mood:            params.Mood,
		BackgroundColor: types.DefaultBackgroundColor,
		IsPrivate:       false,
	})
	if err != nil {
		j.log.Warnw("mirror vibe to feed", "vibe_id", vibe.Id, "error", err)
		return toVibe(vibe), nil, err
	}

	return toVibe(vibe), &echo, nil
}

// List returns the owner's vibes, newest first. Vibes never expire.
func (j *Journal) List(ctx context.Context, ownerId string) ([]types.Vibe, error) {
	records, err := j.db.ListVibesByOwner(ctx, ownerId)
	if err != nil {
		return nil, apperr.Transport(fmt.Errorf("list vibes: %w", err))
	}

	vibes := make([]types.Vibe, 0, len(records))
	for _, v := range records {
		vibes = append(vibes, toVibe(v))
	}

	return vibes, nil
}

func (j *Journal) Subscribe(ctx context.Context, ownerId string) *live.Stream[[]types.Vibe] {
	return live.Watch(ctx, j.broker, func(ctx context.Context) ([]types.Vibe, error) {
		return j.List(ctx, ownerId)
	}, live.JournalTopic(ownerId))
}

// Delete removes one of the owner's vibes. A mirrored echo is left in the
// feed.
func (j *Journal) Delete(ctx context.Context, ownerId, vibeId string) error {
	if err := j.db.DeleteVibe(ctx, ownerId, vibeId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperr.NotFound(apperr.CodeVibeNotFound, "vibe not found")
		}
		return apperr.Transport(fmt.Errorf("delete vibe: %w", err))
	}

	j.notify(ctx, ownerId)
	return nil
}

func (j *Journal) notify(ctx context.Context, ownerId string) {
	if err := j.broker.Publish(ctx, live.JournalTopic(ownerId)); err != nil {
		j.log.Warnw("publish journal change", "account_id", ownerId, "error", err)
	}
}
