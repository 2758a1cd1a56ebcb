package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"skilllab_backend/internal/model"
	"skilllab_backend/internal/util"
	"skilllab_backend/pkg/logger"
	"skilllab_backend/pkg/monitoring"
	"time"

	"go.uber.org/zap"
)

// ChunkService 分块上传：分块写入临时目录，提交时按序合并
type ChunkService struct {
	ScratchDir string
	Tracker    SessionTracker
}

func NewChunkService(scratchDir string, tracker SessionTracker) *ChunkService {
	if tracker == nil {
		tracker = NewMemorySessionTracker()
	}
	return &ChunkService{ScratchDir: scratchDir, Tracker: tracker}
}

// SessionKey 临时文件命名空间：学生ID，客户端带 uploadId 时再按会话区分
func SessionKey(learnerID, uploadID string) string {
	key := util.SafeToken(learnerID)
	if token := util.SafeToken(uploadID); token != "" {
		key += "_" + token
	}
	return key
}

func (s *ChunkService) chunkPath(sessionKey string, index int) string {
	return filepath.Join(s.ScratchDir, fmt.Sprintf("%s_%d", sessionKey, index))
}

// ReceiveChunk 保存一个分块。空分块返回 ErrNoChunkProvided
func (s *ChunkService) ReceiveChunk(ctx context.Context, sessionKey string, index, total int, r io.Reader) (*model.UploadProgress, error) {
	if r == nil {
		return nil, util.ErrNoChunkProvided
	}
	if index < 0 || (total > 0 && index >= total) {
		return nil, fmt.Errorf("%w: %d", util.ErrInvalidChunkIndex, index)
	}
	if err := os.MkdirAll(s.ScratchDir, 0755); err != nil {
		return nil, err
	}

	dstPath := s.chunkPath(sessionKey, index)
	// 先写 .part 再改名，合并时不会读到写了一半的分块
	partPath := dstPath + ".part"
	dst, err := os.Create(partPath)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(partPath)
		return nil, err
	}
	if n == 0 {
		os.Remove(partPath)
		return nil, util.ErrNoChunkProvided
	}
	if err := os.Rename(partPath, dstPath); err != nil {
		os.Remove(partPath)
		return nil, err
	}
	monitoring.ChunksReceived.Inc()

	progress, err := s.Tracker.MarkReceived(ctx, sessionKey, index, total, n)
	if err != nil {
		logger.Log.Warn("更新上传进度失败",
			zap.String("session", sessionKey),
			zap.Int("chunkIndex", index),
			zap.Error(err))
		return &model.UploadProgress{SessionKey: sessionKey, TotalChunks: total}, nil
	}
	return progress, nil
}

// Assemble 按 0..total-1 顺序合并分块，每个分块追加成功后立即删除。
// 缺少分块时删除已写出的部分文件并返回 *util.ChunkMissingError。
func (s *ChunkService) Assemble(ctx context.Context, sessionKey string, total int, targetFilename string) (string, error) {
	if total <= 0 {
		return "", fmt.Errorf("%w: totalChunks must be positive", util.ErrInvalidChunkIndex)
	}
	if err := os.MkdirAll(s.ScratchDir, 0755); err != nil {
		return "", err
	}

	outPath := filepath.Join(s.ScratchDir, fmt.Sprintf("%s_%d_%s",
		sessionKey, time.Now().UnixNano(), util.SanitizeFilename(targetFilename)))
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}

	fail := func(err error) (string, error) {
		out.Close()
		if rmErr := os.Remove(outPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Log.Warn("删除未完成的合并文件失败", zap.String("path", outPath), zap.Error(rmErr))
		}
		return "", err
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := s.appendChunk(out, sessionKey, i); err != nil {
			return fail(err)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return "", err
	}

	if err := s.Tracker.Clear(ctx, sessionKey); err != nil {
		logger.Log.Warn("清理上传进度失败", zap.String("session", sessionKey), zap.Error(err))
	}
	return outPath, nil
}

func (s *ChunkService) appendChunk(out *os.File, sessionKey string, index int) error {
	path := s.chunkPath(sessionKey, index)
	in, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &util.ChunkMissingError{Index: index}
	}
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	in.Close()
	if err != nil {
		return fmt.Errorf("append chunk %d: %w", index, err)
	}

	if err := os.Remove(path); err != nil {
		logger.Log.Warn("删除分块失败", zap.String("path", path), zap.Error(err))
	}
	return nil
}

// Discard 删除会话残留的分块（提交在合并前失败时调用），不返回错误
func (s *ChunkService) Discard(ctx context.Context, sessionKey string, total int) {
	for i := 0; i < total; i++ {
		path := s.chunkPath(sessionKey, i)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Log.Warn("删除分块失败", zap.String("path", path), zap.Error(err))
		}
	}
	if err := s.Tracker.Clear(ctx, sessionKey); err != nil {
		logger.Log.Warn("清理上传进度失败", zap.String("session", sessionKey), zap.Error(err))
	}
}

func (s *ChunkService) Progress(ctx context.Context, sessionKey string) (*model.UploadProgress, error) {
	return s.Tracker.Get(ctx, sessionKey)
}
