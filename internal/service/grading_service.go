package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"skilllab_backend/internal/config"
	"skilllab_backend/internal/util"
	"strings"
)

// 评分结果由外部模型给出，同一份转写多次评分可能有差异
const gradingSystemPrompt = `You are an examiner grading a recorded clinical skills demonstration.
You receive the student's transcript and a rubric that lists itemized points.
Rules:
1. For every rubric item award full, partial or zero credit based on whether the transcript covers it in meaning. Do not require the exact wording of the rubric.
2. Do not penalize grammar, filler words or transcription errors.
3. totalScore is the sum of the awarded item points, between 0 and 100.
4. pros explains what the student did well.
5. recommendations explains what was missing or should be improved.
Reply with exactly one JSON object and nothing else:
{"totalScore": <number>, "pros": "<string>", "recommendations": "<string>"}`

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []AIChatMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GradeRequest 一次评分的输入
type GradeRequest struct {
	Transcript   string
	RubricText   string
	Instructions string
}

// GradeResult 模型返回的评分
type GradeResult struct {
	TotalScore      float64 `json:"totalScore"`
	Pros            string  `json:"pros"`
	Recommendations string  `json:"recommendations"`
}

// GradingService 调用 OpenAI 兼容的 chat/completions 接口按评分标准打分
type GradingService struct {
	config config.AIConfig
	client *http.Client
}

func NewGradingService(cfg config.AIConfig) *GradingService {
	return &GradingService{config: cfg, client: &http.Client{}}
}

func buildGradingMessages(req GradeRequest) []AIChatMessage {
	system := gradingSystemPrompt
	if strings.TrimSpace(req.Instructions) != "" {
		system += "\n\nAdditional instructions for this lab:\n" + req.Instructions
	}

	var user strings.Builder
	user.WriteString("Rubric:\n")
	user.WriteString(req.RubricText)
	user.WriteString("\n\nStudent transcript:\n")
	user.WriteString(req.Transcript)

	return []AIChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}
}

// Grade 返回的分数不做任何兜底，解析失败返回 ErrGradingResponseMalformed
func (s *GradingService) Grade(ctx context.Context, req GradeRequest) (*GradeResult, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	jsonData, err := json.Marshal(ChatCompletionRequest{
		Model:          s.config.Model,
		Messages:       buildGradingMessages(req),
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.config.BaseURL, "/")+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrGradingFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrGradingFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: AI API error (status %d): %s", util.ErrGradingFailed, resp.StatusCode, providerErrorMessage(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: decode completion: %v", util.ErrGradingResponseMalformed, err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %s", util.ErrGradingFailed, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%w: AI returned no choices", util.ErrGradingResponseMalformed)
	}

	return ParseGradeResult(result.Choices[0].Message.Content)
}

// ParseGradeResult 解析模型回复。允许外层包裹 ```json 代码块，其余必须是约定的 JSON 对象
func ParseGradeResult(content string) (*GradeResult, error) {
	content = stripCodeFence(content)

	var raw struct {
		TotalScore      *float64 `json:"totalScore"`
		Pros            *string  `json:"pros"`
		Recommendations *string  `json:"recommendations"`
	}
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrGradingResponseMalformed, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing content after JSON object", util.ErrGradingResponseMalformed)
	}
	if raw.TotalScore == nil || raw.Pros == nil || raw.Recommendations == nil {
		return nil, fmt.Errorf("%w: totalScore, pros and recommendations are required", util.ErrGradingResponseMalformed)
	}
	if *raw.TotalScore < 0 || *raw.TotalScore > 100 {
		return nil, fmt.Errorf("%w: totalScore %.2f out of range", util.ErrGradingResponseMalformed, *raw.TotalScore)
	}

	return &GradeResult{
		TotalScore:      *raw.TotalScore,
		Pros:            *raw.Pros,
		Recommendations: *raw.Recommendations,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
