package model

import "time"

// UploadProgress 分块上传会话进度，保存在 Redis
type UploadProgress struct {
	SessionKey     string       `json:"sessionKey"`
	TotalChunks    int          `json:"totalChunks"`
	UploadedChunks int          `json:"uploadedChunks"`
	FileSize       int64        `json:"fileSize"`
	Chunks         map[int]bool `json:"chunks"`
	CreatedAt      time.Time    `json:"createdAt"`
}
