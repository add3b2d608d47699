// Package profile computes on-demand statistics for an account.
package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/types"
	"go.uber.org/zap"
)

type Aggregator struct {
	db  database.EchoesRepository
	log *zap.SugaredLogger
}

func NewAggregator(db database.EchoesRepository, logger *zap.SugaredLogger) *Aggregator {
	return &Aggregator{db: db, log: logger}
}

// MostUsedMood returns the most frequent mood in moods. Ties go to the mood
// that was seen first; an empty list yields the default mood.
func MostUsedMood(moods []string) string {
	counts := make(map[string]int, len(moods))
	var order []string
	for _, m := range moods {
		if counts[m] == 0 {
			order = append(order, m)
		}
		counts[m]++
	}

	best, bestCount := types.DefaultMood, 0
	for _, m := range order {
		if counts[m] > bestCount {
			best, bestCount = m, counts[m]
		}
	}

	return best
}

// ComputeStats counts the owner's echoes, friends and unshared vibes and
// finds the mood used most across all of the owner's echoes.
func (a *Aggregator) ComputeStats(ctx context.Context, ownerId string) (types.ProfileStats, error) {
	totalEchoes, err := a.db.CountEchoesByOwner(ctx, ownerId)
	if err != nil {
		return types.ProfileStats{}, apperr.Transport(fmt.Errorf("count echoes: %w", err))
	}

	var totalFriends int
	p, err := a.db.GetProfile(ctx, ownerId)
	switch {
	case err == nil:
		totalFriends = len(p.Friends)
	case errors.Is(err, database.ErrNotFound):
	default:
		return types.ProfileStats{}, apperr.Transport(fmt.Errorf("get profile: %w", err))
	}

	privateVibes, err := a.db.CountPrivateVibesByOwner(ctx, ownerId)
	if err != nil {
		return types.ProfileStats{}, apperr.Transport(fmt.Errorf("count vibes: %w", err))
	}

	moods, err := a.db.ListEchoMoodsByOwner(ctx, ownerId)
	if err != nil {
		return types.ProfileStats{}, apperr.Transport(fmt.Errorf("list moods: %w", err))
	}

	mood := MostUsedMood(moods)
	a.log.Debugw("computed profile stats", "account_id", ownerId, "echoes", totalEchoes)

	return types.ProfileStats{
		TotalEchoes:  totalEchoes,
		TotalFriends: totalFriends,
		PrivateVibes: privateVibes,
		MostUsedMood: mood,
		MoodName:     types.MoodName(mood),
	}, nil
}
