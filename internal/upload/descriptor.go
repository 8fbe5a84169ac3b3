package upload

import (
	"encoding/json"
	"strings"
	"time"
)

// GatewayHeaders 上传入口记录的请求头
type GatewayHeaders struct {
	Authorization string `json:"Authorization,omitempty"`
	APIKey        string `json:"X-Api-Key,omitempty"`
	UserAgent     string `json:"User-Agent,omitempty"`
}

// Descriptor 与日志一起写入的描述文件
type Descriptor struct {
	GatewayHeaders GatewayHeaders  `json:"gateway_headers"`
	ShortID        string          `json:"shortid"`
	SourceIP       string          `json:"source_ip"`
	UploadMetadata json.RawMessage `json:"upload_metadata"`
}

// Attempt 一次失败的处理尝试
type Attempt struct {
	Reason    string `json:"reason"`
	LogKey    string `json:"log_key,omitempty"`
	FailureTS string `json:"failure_ts"`
}

// FailureTime 解析失败时间
func (a Attempt) FailureTime() (time.Time, error) {
	return time.Parse(time.RFC3339, a.FailureTS)
}

// ErrorHistory 失败区的 .error.json
type ErrorHistory struct {
	Attempts []Attempt `json:"attempts"`
}

// AuthToken 解析 "Token <key>" 格式的 Authorization 头
func (h GatewayHeaders) AuthToken() (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(h.Authorization), " ")
	if !found || !strings.EqualFold(scheme, "Token") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
