package util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MediaInfo 媒体文件信息
type MediaInfo struct {
	Duration float64 `json:"duration"` // 时长（秒）
	HasVideo bool    `json:"hasVideo"`
	HasAudio bool    `json:"hasAudio"`
	Format   string  `json:"format"`
	Size     int64   `json:"size"`
}

// GetMediaInfo 使用ffmpeg-go的Probe获取媒体元数据
func GetMediaInfo(mediaPath string) (*MediaInfo, error) {
	fileInfo, err := os.Stat(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("媒体文件不存在: %v", err)
	}

	jsonOutput, err := ffmpeg.Probe(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("获取媒体信息失败: %v", err)
	}

	var result struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
			Size     string `json:"size"`
			Format   string `json:"format_name"`
		} `json:"format"`
	}

	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("解析媒体信息失败: %v", err)
	}

	info := &MediaInfo{Format: "unknown"}
	for _, stream := range result.Streams {
		switch stream.CodecType {
		case "video":
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}

	if d, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	size, err := strconv.ParseInt(result.Format.Size, 10, 64)
	if err != nil {
		size = fileInfo.Size()
	}
	info.Size = size

	if parts := strings.Split(result.Format.Format, ","); len(parts) > 0 && parts[0] != "" {
		info.Format = parts[0]
	}

	return info, nil
}

// ExtractAudioArgs 构建 "去掉视频流 + 压缩音频" 的 ffmpeg 参数
func ExtractAudioArgs(videoPath, audioPath, codec, bitrate string) []string {
	return ffmpeg.Input(videoPath).
		Output(audioPath, ffmpeg.KwArgs{
			"vn":     "",      // 丢弃视频流
			"acodec": codec,   // 例如 libmp3lame
			"ab":     bitrate, // 例如 64k
		}).
		OverWriteOutput().
		GetArgs()
}

// RunFFmpeg 执行ffmpeg，context 取消或超时时终止进程
// 失败时把 ffmpeg 的 stderr 带回调用方
func RunFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var errOut bytes.Buffer
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg: %w", ctx.Err())
		}
		msg := strings.TrimSpace(errOut.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("ffmpeg: %v: %s", err, msg)
	}
	return nil
}

// GetFFmpegVersion 获取FFmpeg版本信息，用于健康检查
func GetFFmpegVersion() (string, error) {
	cmd := exec.Command("ffmpeg", "-version", "-hide_banner")
	var out bytes.Buffer
	var errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("获取FFmpeg版本失败，请确保FFmpeg已正确安装: %v, %s", err, errOut.String())
	}

	line, _, _ := strings.Cut(out.String(), "\n")
	return line, nil
}
