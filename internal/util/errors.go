package util

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrPermissionDenied         = errors.New("permission denied")
	ErrNoChunkProvided          = errors.New("no chunk provided")
	ErrInvalidChunkIndex        = errors.New("invalid chunk index")
	ErrChunkMissing             = errors.New("chunk missing")
	ErrUploadProgressNotFound   = errors.New("upload progress not found")
	ErrUnsupportedMediaType     = errors.New("unsupported media type")
	ErrTranscodeFailed          = errors.New("transcode failed")
	ErrStorageUploadFailed      = errors.New("storage upload failed")
	ErrTranscriptionFailed      = errors.New("transcription failed")
	ErrGradingFailed            = errors.New("grading failed")
	ErrGradingResponseMalformed = errors.New("grading response malformed")
	ErrLabNotFound              = errors.New("lab not found")
	ErrInvalidLearnerReference  = errors.New("invalid learner reference")
)

// ChunkMissingError 合并时缺少某个分块
type ChunkMissingError struct {
	Index int
}

func (e *ChunkMissingError) Error() string {
	return fmt.Sprintf("chunk missing: index %d", e.Index)
}

func (e *ChunkMissingError) Is(target error) bool {
	return target == ErrChunkMissing
}

// TranscriptionError StatusCode 为 0 表示本地或网络错误
type TranscriptionError struct {
	StatusCode int
	Message    string
}

func (e *TranscriptionError) Error() string {
	if e.StatusCode == 0 {
		return "transcription request failed: " + e.Message
	}
	return fmt.Sprintf("transcription provider error (status %d): %s", e.StatusCode, e.Message)
}

func (e *TranscriptionError) Is(target error) bool {
	return target == ErrTranscriptionFailed
}

// IsInputError 客户端输入错误，返回 4xx 且不重试
func IsInputError(err error) bool {
	return errors.Is(err, ErrNoChunkProvided) ||
		errors.Is(err, ErrInvalidChunkIndex) ||
		errors.Is(err, ErrChunkMissing) ||
		errors.Is(err, ErrUnsupportedMediaType) ||
		errors.Is(err, ErrInvalidLearnerReference)
}
