package util

import (
	"strings"
	"testing"
	"time"

	"skilllab_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaExt(t *testing.T) {
	assert.Equal(t, ".mp4", MediaExt("Demo.MP4"))
	assert.Equal(t, ".webm", MediaExt("rec.webm;codecs=vp8,opus"))
	assert.Equal(t, ".mp3", MediaExt(" answer.mp3 "))
	assert.Equal(t, "", MediaExt("noext"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"answer.mp3":               "answer.mp3",
		"My Recording (1).mp4":     "My-Recording-1.mp4",
		"../../etc/passwd":         "passwd",
		`C:\Users\me\lab 2.webm`:   "lab-2.webm",
		"rec.webm;codecs=vp8,opus": "rec.webm",
		"...":                      "upload",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestSafeToken(t *testing.T) {
	assert.Equal(t, "abc-123", SafeToken("abc-123"))
	assert.Equal(t, "etcpasswd", SafeToken("../etc/passwd"))
	assert.Len(t, SafeToken(strings.Repeat("a", 80)), 64)
}

func TestIsInputError(t *testing.T) {
	assert.True(t, IsInputError(&ChunkMissingError{Index: 2}))
	assert.True(t, IsInputError(ErrUnsupportedMediaType))
	assert.False(t, IsInputError(ErrGradingFailed))
	assert.False(t, IsInputError(&TranscriptionError{StatusCode: 500}))
}

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{Role: model.Professor, Email: "prof@example.com"}
	user.ID = "0b7e8c52-4f1a-4d3e-9a61-2c5d7e9f1a20"

	tok, err := GenerateJWT(user, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.Professor, claims.Role)

	_, err = ParseJWT(tok, "other-secret")
	assert.Error(t, err)

	expired, err := GenerateJWT(user, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.Error(t, err)
}
