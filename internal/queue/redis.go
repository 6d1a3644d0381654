package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reeflabs/reef/internal/urlpolicy"
	"github.com/reeflabs/reef/pkg/models"
)

// Key layout uses the crawler:queue / crawler:visited / crawler:queue_counter
// naming scheme.
const (
	keyQueue       = "crawler:queue"
	keyVisitedPfx  = "crawler:visited:"
	keyCounter     = "crawler:queue_counter"
	keyMetrics     = "crawler:metrics"
	keyWorkerPfx   = "crawler:worker:"
	keyHistory     = "queue:history"
)

// RedisStore is the production Queue Store backend: a Redis list for the
// FIFO, a key-per-dedup-key with TTL for the visited set, INCR/DECR for the
// counter, a hash for metrics, lists for per-worker timings, and a sorted
// set (scored by Unix timestamp) for queue-length history.
type RedisStore struct {
	rdb        *redis.Client
	visitedTTL time.Duration
}

// NewRedisStore connects to addr. The caller is responsible for closing the
// underlying client via Close when the process shuts down.
func NewRedisStore(addr string, visitedTTL time.Duration) *RedisStore {
	if visitedTTL <= 0 {
		visitedTTL = 24 * time.Hour
	}
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}),
		visitedTTL: visitedTTL,
	}
}

func (r *RedisStore) Close() error { return r.rdb.Close() }

func (r *RedisStore) visitedKey(dedupKey string) string { return keyVisitedPfx + dedupKey }

func (r *RedisStore) Enqueue(ctx context.Context, rawURL string) (bool, error) {
	key, err := urlpolicy.Normalize(rawURL)
	if err != nil {
		return false, err
	}

	// SETNX against a per-URL "pending" marker plus a visited check makes
	// the accept decision atomic without a full Lua script: a concurrent
	// enqueuer that loses the SETNX race is told it's a duplicate.
	pendingKey := keyQueue + ":pending:" + key

	exists, err := r.rdb.Exists(ctx, r.visitedKey(key)).Result()
	if err != nil {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}

	ok, err := r.rdb.SetNX(ctx, pendingKey, "1", r.visitedTTL).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, keyQueue, rawURL)
	pipe.Incr(ctx, keyCounter)
	if _, err := pipe.Exec(ctx); err != nil {
		r.rdb.Del(ctx, pendingKey)
		return false, err
	}

	return true, nil
}

func (r *RedisStore) Dequeue(ctx context.Context) (string, bool, error) {
	rawURL, err := r.rdb.RPop(ctx, keyQueue).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	r.rdb.Decr(ctx, keyCounter)

	key, nerr := urlpolicy.Normalize(rawURL)
	if nerr != nil {
		// Malformed URL: still yield it to the worker at-least-once;
		// there's no dedup key to mark visited.
		return rawURL, true, nil
	}

	// The URL must reach the worker even if this write fails; the error is
	// reported but not fatal to the dequeue.
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.visitedKey(key), "1", r.visitedTTL)
	pipe.Del(ctx, keyQueue+":pending:"+key)
	if _, perr := pipe.Exec(ctx); perr != nil {
		return rawURL, true, perr
	}

	return rawURL, true, nil
}

func (r *RedisStore) ApproxLength(ctx context.Context) (int64, error) {
	n, err := r.rdb.Get(ctx, keyCounter).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (r *RedisStore) ResetLength(ctx context.Context) (int64, error) {
	n, err := r.rdb.LLen(ctx, keyQueue).Result()
	if err != nil {
		return 0, err
	}
	if err := r.rdb.Set(ctx, keyCounter, n, 0).Err(); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *RedisStore) MetricsIncr(ctx context.Context, field string, delta int64) error {
	return r.rdb.HIncrBy(ctx, keyMetrics, field, delta).Err()
}

func (r *RedisStore) MetricsSet(ctx context.Context, field string, value string) error {
	return r.rdb.HSet(ctx, keyMetrics, field, value).Err()
}

func (r *RedisStore) MetricsGetAll(ctx context.Context) (map[string]string, error) {
	return r.rdb.HGetAll(ctx, keyMetrics).Result()
}

func (r *RedisStore) timingKey(workerID string) string {
	return fmt.Sprintf("%s%s:step_times", keyWorkerPfx, workerID)
}

func (r *RedisStore) TimingPush(ctx context.Context, workerID string, rec models.StepTiming) error {
	payload := encodeTiming(rec)
	return r.rdb.LPush(ctx, r.timingKey(workerID), payload).Err()
}

func (r *RedisStore) TimingTrim(ctx context.Context, workerID string, maxLen int) error {
	if maxLen <= 0 {
		return nil
	}
	return r.rdb.LTrim(ctx, r.timingKey(workerID), 0, int64(maxLen-1)).Err()
}

func (r *RedisStore) TimingRange(ctx context.Context, workerID string, n int) ([]models.StepTiming, error) {
	stop := int64(n - 1)
	if n <= 0 {
		stop = -1
	}
	raw, err := r.rdb.LRange(ctx, r.timingKey(workerID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.StepTiming, 0, len(raw))
	for _, s := range raw {
		if t, ok := decodeTiming(s); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *RedisStore) HistoryRecord(ctx context.Context, ts time.Time, queueLen int64) error {
	member := fmt.Sprintf("%d:%d", ts.Unix(), queueLen)
	return r.rdb.ZAdd(ctx, keyHistory, redis.Z{Score: float64(ts.Unix()), Member: member}).Err()
}

func (r *RedisStore) HistoryRange(ctx context.Context, from, to time.Time) ([]models.HistoryPoint, error) {
	members, err := r.rdb.ZRangeByScore(ctx, keyHistory, &redis.ZRangeBy{
		Min: strconv.FormatInt(from.Unix(), 10),
		Max: strconv.FormatInt(to.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.HistoryPoint, 0, len(members))
	for _, m := range members {
		if p, ok := decodeHistoryMember(m); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *RedisStore) HistoryEvictOlderThan(ctx context.Context, ts time.Time) error {
	return r.rdb.ZRemRangeByScore(ctx, keyHistory, "-inf", strconv.FormatInt(ts.Unix()-1, 10)).Err()
}

func (r *RedisStore) Peek(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	// The queue is RPOP-consumed from the tail, so the "head" is the end of
	// the list closest to the next Dequeue.
	return r.rdb.LRange(ctx, keyQueue, -int64(limit), -1).Result()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, keyQueue)
	pipe.Set(ctx, keyCounter, 0, 0)
	iter := r.rdb.Scan(ctx, 0, keyVisitedPfx+"*", 1000).Iterator()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	pending := r.rdb.Scan(ctx, 0, keyQueue+":pending:*", 1000).Iterator()
	for pending.Next(ctx) {
		pipe.Del(ctx, pending.Val())
	}
	if err := pending.Err(); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return err
}

const timingFieldSep = "\x1f" // unit separator; URLs never contain it

func encodeTiming(t models.StepTiming) string {
	fields := []string{
		t.URL,
		strconv.FormatInt(t.Timestamp.UnixNano(), 10),
		strconv.FormatInt(int64(t.Fetch), 10),
		strconv.FormatInt(int64(t.Parse), 10),
		strconv.FormatInt(int64(t.Save), 10),
		strconv.FormatInt(int64(t.AddLinks), 10),
		strconv.FormatInt(int64(t.Total), 10),
		t.Error,
	}
	return strings.Join(fields, timingFieldSep)
}

func decodeTiming(s string) (models.StepTiming, bool) {
	fields := strings.Split(s, timingFieldSep)
	if len(fields) != 8 {
		return models.StepTiming{}, false
	}
	tsNano, err1 := strconv.ParseInt(fields[1], 10, 64)
	fetchNs, err2 := strconv.ParseInt(fields[2], 10, 64)
	parseNs, err3 := strconv.ParseInt(fields[3], 10, 64)
	saveNs, err4 := strconv.ParseInt(fields[4], 10, 64)
	addLinksNs, err5 := strconv.ParseInt(fields[5], 10, 64)
	totalNs, err6 := strconv.ParseInt(fields[6], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return models.StepTiming{}, false
	}
	return models.StepTiming{
		URL:       fields[0],
		Timestamp: time.Unix(0, tsNano),
		Fetch:     time.Duration(fetchNs),
		Parse:     time.Duration(parseNs),
		Save:      time.Duration(saveNs),
		AddLinks:  time.Duration(addLinksNs),
		Total:     time.Duration(totalNs),
		Error:     fields[7],
	}, true
}

func decodeHistoryMember(m string) (models.HistoryPoint, bool) {
	idx := strings.LastIndexByte(m, ':')
	if idx < 0 {
		return models.HistoryPoint{}, false
	}
	ts, err1 := strconv.ParseInt(m[:idx], 10, 64)
	qlen, err2 := strconv.ParseInt(m[idx+1:], 10, 64)
	if err1 != nil || err2 != nil {
		return models.HistoryPoint{}, false
	}
	return models.HistoryPoint{Timestamp: time.Unix(ts, 0), QueueLen: qlen}, true
}
