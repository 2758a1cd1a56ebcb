package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
	// 对象存储 key 中的时间戳
	KeyTimeFormat = "20060102150405"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

var (
	VideoExtensions = []string{".mp4", ".avi", ".mov", ".webm"}
	AudioExtensions = []string{".mp3", ".m4a", ".wav"}
)

// 按扩展名推断上传对象的 Content-Type
var ContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
}
