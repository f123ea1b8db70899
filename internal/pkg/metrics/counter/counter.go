package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/MetaTask/internal/pkg/cache"
	"github.com/ManuelReschke/MetaTask/internal/pkg/database"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const apiCallsKey = "license:counters:api_calls"

// AddAPICall increments the pending API call counter for a license in Redis.
func AddAPICall(ctx context.Context, licenseID uint) error {
	field := strconv.FormatUint(uint64(licenseID), 10)
	return cache.GetClient().HIncrBy(ctx, apiCallsKey, field, 1).Err()
}

// FlushAPICalls drains the pending counters into licenses.current_api_calls_today.
// It returns the number of licenses touched.
func FlushAPICalls(ctx context.Context, now time.Time) (int, error) {
	return flushAPICalls(ctx, cache.GetClient(), database.GetDB(), now)
}

type pair struct {
	id  uint64
	inc int64
}

// flushAPICalls moves the hash to a temporary key with RENAME so increments
// arriving during the flush land in a fresh hash and are not lost.
func flushAPICalls(ctx context.Context, rdb *redis.Client, db *gorm.DB, now time.Time) (int, error) {
	tmpKey := fmt.Sprintf("%s:tmp:%d", apiCallsKey, now.UnixNano())
	if err := rdb.Rename(ctx, apiCallsKey, tmpKey).Err(); err != nil {
		if isMissingKey(err) {
			return 0, nil
		}
		return 0, err
	}
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return 0, err
	}
	pairs := parsePairs(data)
	if len(pairs) == 0 {
		return 0, nil
	}

	sql, args := buildAPICallUpdate(pairs, now)
	if err := db.WithContext(ctx).Exec(sql, args...).Error; err != nil {
		return 0, err
	}
	return len(pairs), nil
}

func isMissingKey(err error) bool {
	if errors.Is(err, redis.Nil) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such key")
}

func parsePairs(data map[string]string) []pair {
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: id, inc: inc})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })
	return pairs
}

// buildAPICallUpdate composes one batched UPDATE. Counters whose reset date
// lies before today restart from zero; MySQL applies SET clauses left to
// right, so the reset date is moved only after the counter has read it.
func buildAPICallUpdate(pairs []pair, now time.Time) (string, []interface{}) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Format("2006-01-02")

	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3+2)
	builder.WriteString("UPDATE licenses SET current_api_calls_today = ")
	builder.WriteString("(CASE WHEN api_calls_reset_date IS NULL OR api_calls_reset_date < ? THEN 0 ELSE current_api_calls_today END)")
	args = append(args, today)
	builder.WriteString(" + CASE id")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" END, api_calls_reset_date = ? WHERE id IN (")
	args = append(args, today)
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")
	return builder.String(), args
}
