// Package redisq implements the queue/cache port on Redis: the FIFO job
// queue, image blobs, the dedup cache, retry counters, and the dead-letter
// list. All state here is ephemeral; the database remains the source of
// truth for job status.
package redisq

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

const (
	queueKey = "queue:inference"
	dlqKey   = "dlq:failed_jobs"

	imagePrefix = "image:"
	cachePrefix = "cache:sha256:"
	retryPrefix = "retry:"

	// Blobs and dedup entries share a TTL. A QUEUED job older than the TTL
	// has lost its blob and is handled by stuck-job recovery.
	imageTTL = 10 * time.Minute
	cacheTTL = 10 * time.Minute
	retryTTL = time.Hour

	// dlqMax bounds the dead-letter list; older entries are trimmed.
	dlqMax = 1000
)

type Store struct {
	rdb *redis.Client
}

// New connects to Redis at the given URL (redis://host:port/db).
func New(redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return &Store{rdb: redis.NewClient(opt)}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) Enqueue(ctx domain.Context, jobID int64) error {
	if err := s.rdb.LPush(ctx, queueKey, jobID).Err(); err != nil {
		return fmt.Errorf("op=queue.enqueue: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// CollectBatch blocks up to firstWait for one id, then drains the queue
// without blocking until window elapses or the batch reaches maxSize. FIFO
// order is preserved: LPUSH feeds the left, this pops from the right.
func (s *Store) CollectBatch(ctx domain.Context, firstWait, window time.Duration, maxSize int) ([]int64, error) {
	res, err := s.rdb.BRPop(ctx, firstWait, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("op=queue.collect: %w: %w", domain.ErrUnavailable, err)
	}
	first, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("op=queue.collect: bad id %q: %w", res[1], err)
	}
	batch := []int64{first}
	deadline := time.Now().Add(window)
	for len(batch) < maxSize && time.Now().Before(deadline) {
		v, err := s.rdb.RPop(ctx, queueKey).Result()
		if errors.Is(err, redis.Nil) {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			// Return what we have; the ids are already popped.
			return batch, nil
		}
		id, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		batch = append(batch, id)
	}
	return batch, nil
}

func (s *Store) StoreImage(ctx domain.Context, sha string, data []byte) error {
	if err := s.rdb.Set(ctx, imagePrefix+sha, data, imageTTL).Err(); err != nil {
		return fmt.Errorf("op=queue.store_image: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) FetchImage(ctx domain.Context, sha string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, imagePrefix+sha).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("op=queue.fetch_image: sha=%s: %w", sha, domain.ErrBlobMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("op=queue.fetch_image: %w: %w", domain.ErrUnavailable, err)
	}
	return data, nil
}

func (s *Store) CachedJob(ctx domain.Context, sha string) (int64, bool, error) {
	v, err := s.rdb.Get(ctx, cachePrefix+sha).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("op=queue.cached_job: %w: %w", domain.ErrUnavailable, err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

func (s *Store) SetCachedJob(ctx domain.Context, sha string, jobID int64) error {
	if err := s.rdb.Set(ctx, cachePrefix+sha, jobID, cacheTTL).Err(); err != nil {
		return fmt.Errorf("op=queue.set_cached_job: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// IncrRetry bumps the per-job attempt counter and refreshes its expiry so an
// abandoned counter cannot linger past an hour. Both commands run in one
// pipeline; a counter without its expiry never exists.
func (s *Store) IncrRetry(ctx domain.Context, jobID int64) (int, error) {
	key := retryPrefix + strconv.FormatInt(jobID, 10)
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, retryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("op=queue.incr_retry: %w: %w", domain.ErrUnavailable, err)
	}
	return int(incr.Val()), nil
}

func (s *Store) ClearRetry(ctx domain.Context, jobID int64) error {
	key := retryPrefix + strconv.FormatInt(jobID, 10)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("op=queue.clear_retry: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) PushDLQ(ctx domain.Context, jobID int64) error {
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, dlqKey, jobID)
	pipe.LTrim(ctx, dlqKey, 0, dlqMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=queue.push_dlq: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// ListDLQ returns dead-lettered job ids, most recent first.
func (s *Store) ListDLQ(ctx domain.Context) ([]int64, error) {
	vals, err := s.rdb.LRange(ctx, dlqKey, 0, dlqMax-1).Result()
	if err != nil {
		return nil, fmt.Errorf("op=queue.list_dlq: %w: %w", domain.ErrUnavailable, err)
	}
	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) Ping(ctx domain.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("op=queue.ping: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.rdb.Close() }
