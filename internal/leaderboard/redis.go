package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tradequest/game-engine/internal/model"
)

const (
	rankingKey = "leaderboard:assets" // ZSET: playerID → final assets
)

// RedisBoard implements Board on a Redis sorted set. The score is the
// final asset value; per-player entry payloads live in plain keys so the
// listing can be rebuilt with full detail.
type RedisBoard struct {
	rdb *redis.Client
}

// NewRedisBoard creates a board backed by the given Redis client.
func NewRedisBoard(rdb *redis.Client) *RedisBoard {
	return &RedisBoard{rdb: rdb}
}

func (b *RedisBoard) Submit(ctx context.Context, entry model.RankEntry) error {
	games, err := b.rdb.Incr(ctx, playedKey(entry.PlayerID)).Result()
	if err != nil {
		return fmt.Errorf("leaderboard: increment games played: %w", err)
	}
	entry.GamesPlayed = int(games)

	// ZADD GT keeps the player's best score in place.
	score, _ := entry.TotalAssets.Float64()
	if err := b.rdb.ZAddGT(ctx, rankingKey, redis.Z{
		Score:  score,
		Member: entry.PlayerID,
	}).Err(); err != nil {
		return fmt.Errorf("leaderboard: update ranking: %w", err)
	}

	// Store the payload only when this run is the player's best so far.
	best, err := b.rdb.ZScore(ctx, rankingKey, entry.PlayerID).Result()
	if err != nil {
		return fmt.Errorf("leaderboard: read score: %w", err)
	}
	if score >= best {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("leaderboard: marshal entry: %w", err)
		}
		if err := b.rdb.Set(ctx, entryKey(entry.PlayerID), data, 0).Err(); err != nil {
			return fmt.Errorf("leaderboard: store entry: %w", err)
		}
	}
	return nil
}

func (b *RedisBoard) Top(ctx context.Context, n int) ([]model.RankEntry, error) {
	if n <= 0 {
		n = 10
	}
	ids, err := b.rdb.ZRevRange(ctx, rankingKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: read ranking: %w", err)
	}

	entries := make([]model.RankEntry, 0, len(ids))
	for i, id := range ids {
		data, err := b.rdb.Get(ctx, entryKey(id)).Bytes()
		if err != nil {
			continue // entry payload expired or missing; skip the row
		}
		var e model.RankEntry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		e.Rank = i + 1
		entries = append(entries, e)
	}
	return entries, nil
}

func entryKey(playerID string) string  { return fmt.Sprintf("leaderboard:entry:%s", playerID) }
func playedKey(playerID string) string { return fmt.Sprintf("leaderboard:played:%s", playerID) }
