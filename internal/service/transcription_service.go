package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"skilllab_backend/internal/config"
	"skilllab_backend/internal/util"
	"strings"
)

// TranscriptionService 调用 Whisper 兼容的语音转写接口
type TranscriptionService struct {
	config config.TranscriptionConfig
	client *http.Client
}

func NewTranscriptionService(cfg config.TranscriptionConfig) *TranscriptionService {
	return &TranscriptionService{config: cfg, client: &http.Client{}}
}

type transcriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcribe 上传音频文件，返回整段文本。分段结果按原顺序以单个空格拼接
func (s *TranscriptionService) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return "", &util.TranscriptionError{Message: err.Error()}
	}
	defer file.Close()

	// 边读文件边写 multipart，大文件不整体进内存
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeTranscriptionForm(form, file, filepath.Base(audioPath), s.config))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.config.BaseURL, "/")+"/audio/transcriptions", pr)
	if err != nil {
		pr.Close()
		return "", &util.TranscriptionError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &util.TranscriptionError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &util.TranscriptionError{Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &util.TranscriptionError{StatusCode: resp.StatusCode, Message: providerErrorMessage(body)}
	}

	text, err := normalizeTranscript(body)
	if err != nil {
		return "", &util.TranscriptionError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	return text, nil
}

func writeTranscriptionForm(form *multipart.Writer, file io.Reader, filename string, cfg config.TranscriptionConfig) error {
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	fields := map[string]string{
		"model":           cfg.Model,
		"language":        cfg.Language,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := form.WriteField(k, v); err != nil {
			return err
		}
	}
	return form.Close()
}

// normalizeTranscript 兼容四种返回：JSON 字符串、{"text"}、{"segments"}、分段数组
func normalizeTranscript(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty transcription response")
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", fmt.Errorf("decode transcription: %w", err)
		}
		return text, nil
	case '[':
		var segments []transcriptSegment
		if err := json.Unmarshal(trimmed, &segments); err != nil {
			return "", fmt.Errorf("decode transcription segments: %w", err)
		}
		return joinSegments(segments), nil
	case '{':
		var result struct {
			Text     *string             `json:"text"`
			Segments []transcriptSegment `json:"segments"`
		}
		if err := json.Unmarshal(trimmed, &result); err != nil {
			return "", fmt.Errorf("decode transcription: %w", err)
		}
		if len(result.Segments) > 0 {
			return joinSegments(result.Segments), nil
		}
		if result.Text != nil {
			return *result.Text, nil
		}
		return "", fmt.Errorf("transcription response has neither text nor segments")
	default:
		// response_format=text
		return string(trimmed), nil
	}
}

func joinSegments(segments []transcriptSegment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func providerErrorMessage(body []byte) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if json.Unmarshal(payload.Error, &plain) == nil && plain != "" {
			return plain
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}
