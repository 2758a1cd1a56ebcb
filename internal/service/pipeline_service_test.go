package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"skilllab_backend/internal/config"
	"skilllab_backend/internal/model"
	"skilllab_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeMedia struct {
	*MediaService
}

func (f *fakeMedia) Duration(path string) (float64, error) {
	return 12.5, nil
}

type fakeUploader struct {
	mu          sync.Mutex
	keys        []string
	paths       []string
	contentType string
	err         error
	block       bool
}

func (f *fakeUploader) UploadFile(ctx context.Context, key, localPath, contentType string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.paths = append(f.paths, localPath)
	f.contentType = contentType
	if f.err != nil {
		return "", f.err
	}
	return "https://skilllab.cdn.example.com/" + key, nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	paths []string
	fn    func(call int) (string, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.paths = append(f.paths, audioPath)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(call)
	}
	return "good morning mama, let me show you how to position the baby", nil
}

type MockGrader struct {
	mock.Mock
}

func (m *MockGrader) Grade(ctx context.Context, req GradeRequest) (*GradeResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GradeResult), args.Error(1)
}

type pipelineFixture struct {
	pipeline    *PipelineService
	chunks      *ChunkService
	uploader    *fakeUploader
	transcriber *fakeTranscriber
	grader      *MockGrader
	ffmpegArgs  [][]string
	db          *gorm.DB
	scratch     string
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	ledger, db := setupLedger(t)
	f := &pipelineFixture{
		uploader:    &fakeUploader{},
		transcriber: &fakeTranscriber{},
		grader:      new(MockGrader),
		db:          db,
		scratch:     t.TempDir(),
	}
	f.chunks = NewChunkService(f.scratch, nil)

	media := NewMediaService(config.MediaConfig{})
	media.Run = func(ctx context.Context, args []string) error {
		f.ffmpegArgs = append(f.ffmpegArgs, args)
		return os.WriteFile(outputArg(args), []byte("audio-track"), 0644)
	}

	f.pipeline = NewPipelineService(f.chunks, &fakeMedia{media}, f.uploader, f.transcriber, f.grader, ledger,
		config.PipelineConfig{MaxAttempts: 1})
	return f
}

func (f *pipelineFixture) upload(t *testing.T, learnerID string, chunks ...string) {
	t.Helper()
	key := SessionKey(learnerID, "")
	for i, c := range chunks {
		_, err := f.chunks.ReceiveChunk(context.Background(), key, i, len(chunks), strings.NewReader(c))
		require.NoError(t, err)
	}
}

func (f *pipelineFixture) scratchFiles(t *testing.T) []string {
	return scratchEntries(t, f.scratch)
}

func (f *pipelineFixture) attemptCount(t *testing.T) int64 {
	var count int64
	require.NoError(t, f.db.Model(&model.SubmissionAttempt{}).Count(&count).Error)
	return count
}

func submission(fileName string, totalChunks int) SubmissionRequest {
	return SubmissionRequest{
		LearnerID:   testLearnerID,
		FileName:    fileName,
		TotalChunks: totalChunks,
		LabNumber:   1,
		Subject:     "maternalandchild",
	}
}

func requireStage(t *testing.T, err error, stage Stage) *StageError {
	t.Helper()
	var se *StageError
	require.True(t, errors.As(err, &se), "expected *StageError, got %v", err)
	assert.Equal(t, stage, se.Stage)
	return se
}

func TestPipelineAudioSubmission(t *testing.T) {
	f := newPipelineFixture(t)
	f.grader.On("Grade", mock.MatchedBy(func(req GradeRequest) bool {
		return strings.Contains(req.RubricText, "Greets the mother") &&
			strings.HasPrefix(req.Transcript, "good morning mama")
	})).Return(&GradeResult{TotalScore: 72, Pros: "clear greeting", Recommendations: "check attachment"}, nil)

	f.upload(t, testLearnerID, "ID3", "-audio-", "bytes")

	attempt, err := f.pipeline.Run(context.Background(), submission("answer.mp3", 3))
	require.NoError(t, err)

	assert.Equal(t, 1, attempt.Attempt)
	assert.Equal(t, 72.0, attempt.Score)
	assert.True(t, attempt.IsPass)
	assert.Equal(t, model.MediaAudio, attempt.FileType)
	assert.Equal(t, "clear greeting", attempt.Pros)
	assert.Equal(t, "check attachment", attempt.Recommendations)
	assert.Equal(t, 12.5, attempt.DurationSeconds)
	assert.Equal(t, 1, attempt.RubricVersion)
	assert.True(t, strings.HasPrefix(attempt.Transcript, "good morning mama"))

	// 音频不需要转码，上传与转写使用同一个合并文件
	assert.Empty(t, f.ffmpegArgs)
	require.Len(t, f.uploader.keys, 1)
	assert.Regexp(t, regexp.MustCompile(`^`+testLearnerID+`/maternal-lab1/\d{14}_answer\.mp3$`), f.uploader.keys[0])
	assert.Equal(t, "audio/mpeg", f.uploader.contentType)
	assert.Equal(t, "https://skilllab.cdn.example.com/"+f.uploader.keys[0], attempt.FileURL)
	assert.Equal(t, f.uploader.paths, f.transcriber.paths)

	assert.Empty(t, f.scratchFiles(t))
	f.grader.AssertExpectations(t)
}

func TestPipelineAttemptsIncrease(t *testing.T) {
	f := newPipelineFixture(t)
	f.grader.On("Grade", mock.Anything).Return(&GradeResult{TotalScore: 40, Pros: "p", Recommendations: "r"}, nil).Once()
	f.grader.On("Grade", mock.Anything).Return(&GradeResult{TotalScore: 90, Pros: "p", Recommendations: "r"}, nil).Once()

	f.upload(t, testLearnerID, "first")
	first, err := f.pipeline.Run(context.Background(), submission("a.wav", 1))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempt)
	assert.False(t, first.IsPass)

	f.upload(t, testLearnerID, "second")
	second, err := f.pipeline.Run(context.Background(), submission("a.wav", 1))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt)
	assert.True(t, second.IsPass)
}

func TestPipelineVideoSubmission(t *testing.T) {
	f := newPipelineFixture(t)
	f.grader.On("Grade", mock.Anything).Return(&GradeResult{TotalScore: 55, Pros: "p", Recommendations: "r"}, nil)

	f.upload(t, testLearnerID, "video-", "bytes")

	attempt, err := f.pipeline.Run(context.Background(), submission("demo.webm;codecs=vp8,opus", 2))
	require.NoError(t, err)
	assert.Equal(t, model.MediaVideo, attempt.FileType)
	assert.False(t, attempt.IsPass)

	// 上传原视频，转写提取出的音轨
	require.Len(t, f.ffmpegArgs, 1)
	require.Len(t, f.uploader.paths, 1)
	require.Len(t, f.transcriber.paths, 1)
	assert.True(t, strings.HasSuffix(f.uploader.paths[0], "_demo.webm"))
	assert.True(t, strings.HasSuffix(f.transcriber.paths[0], "_demo_audio.mp3"))
	assert.Equal(t, "video/webm", f.uploader.contentType)

	assert.Empty(t, f.scratchFiles(t))
}

func TestPipelineMalformedGradingRecordsNothing(t *testing.T) {
	f := newPipelineFixture(t)
	f.grader.On("Grade", mock.Anything).Return(nil, fmt.Errorf("%w: not json", util.ErrGradingResponseMalformed))

	f.upload(t, testLearnerID, "audio")

	attempt, err := f.pipeline.Run(context.Background(), submission("answer.m4a", 1))
	assert.Nil(t, attempt)
	requireStage(t, err, StageGrading)
	assert.ErrorIs(t, err, util.ErrGradingResponseMalformed)

	assert.Zero(t, f.attemptCount(t))
	// 已上传的对象保留
	assert.Len(t, f.uploader.keys, 1)
	assert.Empty(t, f.scratchFiles(t))
}

func TestPipelineUnsupportedMediaType(t *testing.T) {
	f := newPipelineFixture(t)
	f.upload(t, testLearnerID, "text")

	_, err := f.pipeline.Run(context.Background(), submission("notes.txt", 1))
	requireStage(t, err, StageClassifying)
	assert.ErrorIs(t, err, util.ErrUnsupportedMediaType)
	assert.True(t, util.IsInputError(err))

	assert.Empty(t, f.uploader.keys)
	assert.Zero(t, f.transcriber.calls)
	assert.Empty(t, f.scratchFiles(t))
	f.grader.AssertNotCalled(t, "Grade", mock.Anything)
}

func TestPipelineMissingChunk(t *testing.T) {
	f := newPipelineFixture(t)
	key := SessionKey(testLearnerID, "")
	_, err := f.chunks.ReceiveChunk(context.Background(), key, 0, 3, strings.NewReader("A"))
	require.NoError(t, err)
	_, err = f.chunks.ReceiveChunk(context.Background(), key, 2, 3, strings.NewReader("C"))
	require.NoError(t, err)

	_, err = f.pipeline.Run(context.Background(), submission("answer.mp3", 3))
	se := requireStage(t, err, StageAssembling)
	var missing *util.ChunkMissingError
	require.True(t, errors.As(se, &missing))
	assert.Equal(t, 1, missing.Index)

	assert.Empty(t, f.scratchFiles(t))
	assert.Zero(t, f.attemptCount(t))
}

func TestPipelineLabNotFound(t *testing.T) {
	f := newPipelineFixture(t)
	f.upload(t, testLearnerID, "audio")

	req := submission("answer.mp3", 1)
	req.LabNumber = 99
	_, err := f.pipeline.Run(context.Background(), req)
	requireStage(t, err, StageResolving)
	assert.ErrorIs(t, err, util.ErrLabNotFound)

	assert.Empty(t, f.scratchFiles(t))
	assert.Zero(t, f.transcriber.calls)
}

func TestPipelineTranscriptionFailureCancelsUpload(t *testing.T) {
	f := newPipelineFixture(t)
	f.uploader.block = true
	f.transcriber.fn = func(int) (string, error) {
		return "", &util.TranscriptionError{StatusCode: 500, Message: "provider down"}
	}
	f.upload(t, testLearnerID, "audio")

	done := make(chan error, 1)
	go func() {
		_, err := f.pipeline.Run(context.Background(), submission("answer.mp3", 1))
		done <- err
	}()

	select {
	case err := <-done:
		requireStage(t, err, StageTranscribing)
		assert.ErrorIs(t, err, util.ErrTranscriptionFailed)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after transcription failure")
	}

	assert.Empty(t, f.scratchFiles(t))
	assert.Zero(t, f.attemptCount(t))
}

func TestPipelineUploadFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.uploader.err = errors.New("bucket unavailable")
	f.upload(t, testLearnerID, "audio")

	_, err := f.pipeline.Run(context.Background(), submission("answer.mp3", 1))
	requireStage(t, err, StageUploading)
	assert.Empty(t, f.scratchFiles(t))
	f.grader.AssertNotCalled(t, "Grade", mock.Anything)
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.UpdateSettings(config.PipelineConfig{MaxAttempts: 3, RetryBackoff: time.Millisecond})
	f.transcriber.fn = func(call int) (string, error) {
		if call == 1 {
			return "", &util.TranscriptionError{StatusCode: 503, Message: "busy"}
		}
		return "second try transcript", nil
	}
	f.grader.On("Grade", mock.Anything).Return(&GradeResult{TotalScore: 61, Pros: "p", Recommendations: "r"}, nil)
	f.upload(t, testLearnerID, "audio")

	attempt, err := f.pipeline.Run(context.Background(), submission("answer.mp3", 1))
	require.NoError(t, err)
	assert.Equal(t, 2, f.transcriber.calls)
	assert.Equal(t, "second try transcript", attempt.Transcript)
}

func TestPipelineRejectsInvalidChunkCount(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.Run(context.Background(), submission("answer.mp3", 0))
	requireStage(t, err, StageAssembling)
	assert.ErrorIs(t, err, util.ErrInvalidChunkIndex)
}
