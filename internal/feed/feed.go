// Package feed is the public stream of echoes posted in the last 24 hours.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/identity"
	"github.com/npezzotti/go-echoes/internal/live"
	"github.com/npezzotti/go-echoes/internal/types"
	"github.com/npezzotti/go-echoes/internal/validate"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
)

const WindowLength = 24 * time.Hour

type PostParams struct {
	Content         string `json:"content" validate:"notblank"`
	Mood            string `json:"mood" validate:"mood"`
	BackgroundColor string `json:"background_color" validate:"bgcolor"`
	IsPrivate       bool   `json:"is_private"`
}

type Feed struct {
	db        database.EchoesRepository
	ids       *identity.Manager
	broker    live.Broker
	validator *validate.Validator
	log       *zap.SugaredLogger
	now       func() time.Time
	newId     func() (string, error)
}

func NewFeed(db database.EchoesRepository, ids *identity.Manager, broker live.Broker, logger *zap.SugaredLogger) *Feed {
	return &Feed{
		db:        db,
		ids:       ids,
		broker:    broker,
		validator: validate.New(),
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
		newId:     shortid.Generate,
	}
}

func ToEcho(e database.Echo) types.Echo {
	return types.Echo{
		Id:              e.Id,
		Content:         e.Content,
		Mood:            e.Mood,
		RotatingId:      e.RotatingId,
		Timestamp:       e.Timestamp,
		BackgroundColor: e.BackgroundColor,
		IsPrivate:       e.IsPrivate,
		OwnerAccountId:  e.OwnerAccountId,
	}
}

// WindowStart returns the oldest timestamp visible at now.
func WindowStart(now time.Time) time.Time {
	return now.Add(-WindowLength)
}

// Post stores an echo under the caller's current identifier. Empty mood
// and background colour fall back to the defaults.
func (f *Feed) Post(ctx context.Context, accountId string, params PostParams) (types.Echo, error) {
	if err := f.validator.Struct(params); err != nil {
		return types.Echo{}, err
	}

	if params.Mood == "" {
		params.Mood = types.DefaultMood
	}
	if params.BackgroundColor == "" {
		params.BackgroundColor = types.DefaultBackgroundColor
	}

	profile, err := f.ids.Ensure(ctx, accountId)
	if err != nil {
		return types.Echo{}, err
	}

	id, err := f.newId()
	if err != nil {
		return types.Echo{}, apperr.Transport(fmt.Errorf("generate echo id: %w", err))
	}

	echo := database.Echo{
		Id:              id,
		Content:         params.Content,
		Mood:            params.Mood,
		RotatingId:      profile.RotatingId,
		Timestamp:       f.now(),
		BackgroundColor: params.BackgroundColor,
		IsPrivate:       params.IsPrivate,
		OwnerAccountId:  accountId,
	}

	if err := f.db.CreateEcho(ctx, echo); err != nil {
		return types.Echo{}, apperr.Transport(fmt.Errorf("create echo: %w", err))
	}

	if err := f.broker.Publish(ctx, live.TopicEchoes); err != nil {
		f.log.Warnw("publish feed change", "echo_id", echo.Id, "error", err)
	}

	return ToEcho(echo), nil
}

// Window returns every echo posted at or after windowStart, newest first.
// The privacy flag does not filter.
func (f *Feed) Window(ctx context.Context, windowStart time.Time) ([]types.Echo, error) {
	records, err := f.db.ListEchoesSince(ctx, windowStart)
	if err != nil {
		return nil, apperr.Transport(fmt.Errorf("list echoes: %w", err))
	}

	echoes := make([]types.Echo, 0, len(records))
	for _, e := range records {
		echoes = append(echoes, ToEcho(e))
	}

	return echoes, nil
}

// Subscribe streams Window(windowStart). The window start stays fixed for
// the life of the stream.
func (f *Feed) Subscribe(ctx context.Context, windowStart time.Time) *live.Stream[[]types.Echo] {
	return live.Watch(ctx, f.broker, func(ctx context.Context) ([]types.Echo, error) {
		return f.Window(ctx, windowStart)
	}, live.TopicEchoes)
}
