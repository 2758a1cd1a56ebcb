package service

import (
	"context"
	"skilllab_backend/internal/model"
	"skilllab_backend/internal/util"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	uploadProgressKeyPrefix = "upload_progress:"
	uploadChunksKeyPrefix   = "upload_chunks:"
	uploadProgressTTL       = 24 * time.Hour
)

// SessionTracker 记录分块上传进度，文件本身仍以磁盘为准
type SessionTracker interface {
	MarkReceived(ctx context.Context, sessionKey string, index, total int, size int64) (*model.UploadProgress, error)
	Get(ctx context.Context, sessionKey string) (*model.UploadProgress, error)
	Clear(ctx context.Context, sessionKey string) error
}

// RedisSessionTracker 进度存 Redis，多实例共享
type RedisSessionTracker struct {
	Redis *redis.Client
}

func NewRedisSessionTracker(rdb *redis.Client) *RedisSessionTracker {
	return &RedisSessionTracker{Redis: rdb}
}

func (t *RedisSessionTracker) MarkReceived(ctx context.Context, sessionKey string, index, total int, size int64) (*model.UploadProgress, error) {
	progressKey := uploadProgressKeyPrefix + sessionKey
	chunksKey := uploadChunksKeyPrefix + sessionKey

	// 同一分块重复上传只计一次大小
	_, err := t.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, progressKey, "created_at", time.Now().Unix())
		if total > 0 {
			pipe.HSet(ctx, progressKey, "total", total)
		}
		pipe.HSet(ctx, progressKey, "size_"+strconv.Itoa(index), size)
		pipe.SAdd(ctx, chunksKey, index)
		pipe.Expire(ctx, progressKey, uploadProgressTTL)
		pipe.Expire(ctx, chunksKey, uploadProgressTTL)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t.Get(ctx, sessionKey)
}

func (t *RedisSessionTracker) Get(ctx context.Context, sessionKey string) (*model.UploadProgress, error) {
	fields, err := t.Redis.HGetAll(ctx, uploadProgressKeyPrefix+sessionKey).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, util.ErrUploadProgressNotFound
	}
	members, err := t.Redis.SMembers(ctx, uploadChunksKeyPrefix+sessionKey).Result()
	if err != nil {
		return nil, err
	}

	progress := &model.UploadProgress{
		SessionKey: sessionKey,
		Chunks:     make(map[int]bool, len(members)),
	}
	progress.TotalChunks, _ = strconv.Atoi(fields["total"])
	if ts, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		progress.CreatedAt = time.Unix(ts, 0)
	}
	for _, m := range members {
		idx, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		progress.Chunks[idx] = true
		size, _ := strconv.ParseInt(fields["size_"+m], 10, 64)
		progress.FileSize += size
	}
	progress.UploadedChunks = len(progress.Chunks)
	return progress, nil
}

func (t *RedisSessionTracker) Clear(ctx context.Context, sessionKey string) error {
	return t.Redis.Del(ctx, uploadProgressKeyPrefix+sessionKey, uploadChunksKeyPrefix+sessionKey).Err()
}

// MemorySessionTracker 未启用 Redis 时的单实例实现
type MemorySessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
}

type memorySession struct {
	total     int
	sizes     map[int]int64
	createdAt time.Time
}

func NewMemorySessionTracker() *MemorySessionTracker {
	return &MemorySessionTracker{sessions: make(map[string]*memorySession)}
}

func (t *MemorySessionTracker) MarkReceived(ctx context.Context, sessionKey string, index, total int, size int64) (*model.UploadProgress, error) {
	t.mu.Lock()
	s, ok := t.sessions[sessionKey]
	if !ok {
		s = &memorySession{sizes: make(map[int]int64), createdAt: time.Now()}
		t.sessions[sessionKey] = s
	}
	if total > 0 {
		s.total = total
	}
	s.sizes[index] = size
	t.mu.Unlock()
	return t.Get(ctx, sessionKey)
}

func (t *MemorySessionTracker) Get(ctx context.Context, sessionKey string) (*model.UploadProgress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionKey]
	if !ok {
		return nil, util.ErrUploadProgressNotFound
	}
	progress := &model.UploadProgress{
		SessionKey:  sessionKey,
		TotalChunks: s.total,
		Chunks:      make(map[int]bool, len(s.sizes)),
		CreatedAt:   s.createdAt,
	}
	for idx, size := range s.sizes {
		progress.Chunks[idx] = true
		progress.FileSize += size
	}
	progress.UploadedChunks = len(progress.Chunks)
	return progress, nil
}

func (t *MemorySessionTracker) Clear(ctx context.Context, sessionKey string) error {
	t.mu.Lock()
	delete(t.sessions, sessionKey)
	t.mu.Unlock()
	return nil
}
