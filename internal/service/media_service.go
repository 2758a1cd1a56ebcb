package service

import (
	"context"
	"fmt"
	"os"
	"skilllab_backend/internal/config"
	"skilllab_backend/internal/model"
	"skilllab_backend/internal/util"
	"strings"
)

// FFmpegRunner 执行一次 ffmpeg 调用，测试中可替换
type FFmpegRunner func(ctx context.Context, args []string) error

// MediaService 判断媒体类型、从视频中提取音轨
type MediaService struct {
	Config config.MediaConfig
	Run    FFmpegRunner
}

func NewMediaService(cfg config.MediaConfig) *MediaService {
	if cfg.AudioCodec == "" {
		cfg.AudioCodec = "libmp3lame"
	}
	if cfg.AudioBitrate == "" {
		cfg.AudioBitrate = "64k"
	}
	return &MediaService{Config: cfg, Run: util.RunFFmpeg}
}

// Classify 根据扩展名判断音频/视频，大小写不敏感，兼容 ";codecs=..." 后缀
func (s *MediaService) Classify(filename string) (model.MediaKind, error) {
	ext := util.MediaExt(filename)
	for _, e := range util.VideoExtensions {
		if ext == e {
			return model.MediaVideo, nil
		}
	}
	for _, e := range util.AudioExtensions {
		if ext == e {
			return model.MediaAudio, nil
		}
	}
	return "", fmt.Errorf("%w: %q", util.ErrUnsupportedMediaType, ext)
}

// ExtractAudio 从视频中提取压缩音轨，输出到同目录的 .mp3 文件
func (s *MediaService) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	audioPath := strings.TrimSuffix(videoPath, util.MediaExt(videoPath)) + "_audio.mp3"

	if s.Config.TranscodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.TranscodeTimeout)
		defer cancel()
	}

	args := util.ExtractAudioArgs(videoPath, audioPath, s.Config.AudioCodec, s.Config.AudioBitrate)
	if err := s.Run(ctx, args); err != nil {
		os.Remove(audioPath)
		return "", fmt.Errorf("%w: %v", util.ErrTranscodeFailed, err)
	}
	return audioPath, nil
}

// Duration 尽力获取时长，失败返回 0
func (s *MediaService) Duration(path string) (float64, error) {
	info, err := util.GetMediaInfo(path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// ContentType 上传对象存储使用
func ContentType(filename string) string {
	if ct, ok := util.ContentTypes[util.MediaExt(filename)]; ok {
		return ct
	}
	return "application/octet-stream"
}
