package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"skilllab_backend/internal/config"
	"skilllab_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageUpload(t *testing.T) {
	root := t.TempDir()
	svc, err := NewStorageService(&config.Config{Storage: config.StorageConfig{Type: util.StorageLocal, LocalPath: root}})
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "answer.mp3")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0644))

	key := testLearnerID + "/maternal-lab1/20240115120000_answer.mp3"
	url, err := svc.UploadFile(context.Background(), key, src, "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/"+key, url)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))
}

func TestLocalStorageUploadMissingSource(t *testing.T) {
	svc, err := NewStorageService(&config.Config{Storage: config.StorageConfig{LocalPath: t.TempDir()}})
	require.NoError(t, err)

	_, err = svc.UploadFile(context.Background(), "k/a.mp3", filepath.Join(t.TempDir(), "missing.mp3"), "audio/mpeg")
	assert.ErrorIs(t, err, util.ErrStorageUploadFailed)
}

func TestMinioPublicURL(t *testing.T) {
	p, err := NewMinioStorageProvider(&config.StorageConfig{
		MinioEndpoint: "nyc3.digitaloceanspaces.com",
		MinioAccessID: "id",
		MinioSecret:   "secret",
		MinioBucket:   "skilllab",
		MinioSecure:   true,
		CDNHost:       "nyc3.cdn.digitaloceanspaces.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://skilllab.nyc3.cdn.digitaloceanspaces.com/a/b.mp4", p.GetURL("a/b.mp4"))

	p, err = NewMinioStorageProvider(&config.StorageConfig{
		MinioEndpoint: "localhost:9000",
		MinioAccessID: "id",
		MinioSecret:   "secret",
		MinioBucket:   "skilllab",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/skilllab/a/b.mp4", p.GetURL("a/b.mp4"))
}
