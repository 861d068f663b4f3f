package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"adherence-service/internal/domain"
)

// ScoreCache stores daily score records in one hash per user and seed assessment:
// HSETNX scores:{userID}:{assessmentID} {YYYY-MM-DD} {json}
// Fields are written once and never overwritten.
type ScoreCache struct {
	client *redis.Client
}

func NewScoreCache(client *redis.Client) *ScoreCache {
	return &ScoreCache{client: client}
}

func (c *ScoreCache) GetScore(ctx context.Context, key domain.ChainKey, date time.Time) (domain.DailyScoreRecord, bool, error) {
	data, err := c.client.HGet(ctx, c.key(key), domain.DateKey(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DailyScoreRecord{}, false, nil
	}
	if err != nil {
		return domain.DailyScoreRecord{}, false, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return domain.DailyScoreRecord{}, false, err
	}
	return rec, true, nil
}

func (c *ScoreCache) GetScores(ctx context.Context, key domain.ChainKey, from, to time.Time) ([]domain.DailyScoreRecord, error) {
	dates := domain.DateRange(from, to)
	if len(dates) == 0 {
		return nil, nil
	}
	fields := make([]string, len(dates))
	for i, d := range dates {
		fields[i] = domain.DateKey(d)
	}

	values, err := c.client.HMGet(ctx, c.key(key), fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.DailyScoreRecord, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpsertScores sets each field only if absent. Fields that already exist are
// read back and compared; a differing value is a domain.ErrScoreConflict.
func (c *ScoreCache) UpsertScores(ctx context.Context, chain domain.ChainKey, records []domain.DailyScoreRecord) error {
	if len(records) == 0 {
		return nil
	}
	key := c.key(chain)

	inserts := make([]*redis.BoolCmd, len(records))
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, rec := range records {
			data, err := json.Marshal(storedRecord(rec))
			if err != nil {
				return err
			}
			inserts[i] = pipe.HSetNX(ctx, key, domain.DateKey(rec.Date), data)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var conflicts []string
	for i, cmd := range inserts {
		if cmd.Val() {
			continue
		}
		existing, ok, err := c.GetScore(ctx, chain, records[i].Date)
		if err != nil {
			return err
		}
		if ok && !existing.SameValue(storedRecord(records[i])) {
			conflicts = append(conflicts, domain.DateKey(records[i].Date))
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: user %s assessment %s dates %v",
			domain.ErrScoreConflict, chain.UserID, chain.AssessmentID, conflicts)
	}
	return nil
}

func (c *ScoreCache) key(chain domain.ChainKey) string {
	return "scores:" + chain.UserID + ":" + chain.AssessmentID
}

func storedRecord(rec domain.DailyScoreRecord) domain.DailyScoreRecord {
	rec.Date = domain.DateOf(rec.Date)
	rec.Initial = false
	return rec
}

func decodeRecord(data []byte) (domain.DailyScoreRecord, error) {
	var rec domain.DailyScoreRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.DailyScoreRecord{}, fmt.Errorf("decode cached score: %w", err)
	}
	rec.Date = domain.DateOf(rec.Date)
	return rec, nil
}
