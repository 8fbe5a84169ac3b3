package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/myysophia/replay-ingest/internal/upload"
)

// ErrMalformedRecord 流记录无法解析
var ErrMalformedRecord = errors.New("流记录格式错误")

// Record 处理流上的一条消息，指向一个原始上传
type Record struct {
	Bucket              string `json:"bucket"`
	LogKey              string `json:"log_key"`
	AttemptReprocessing bool   `json:"attempt_reprocessing"`
}

// NewRecord 为原始上传生成流记录
func NewRecord(raw *upload.RawUpload, attemptReprocessing bool) Record {
	return Record{
		Bucket:              raw.Bucket,
		LogKey:              raw.LogKey(),
		AttemptReprocessing: attemptReprocessing,
	}
}

// Encode 编码为 UTF-8 JSON
func (r Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRecord 解析流记录
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if r.Bucket == "" || r.LogKey == "" {
		return Record{}, fmt.Errorf("%w: 缺少 bucket 或 log_key", ErrMalformedRecord)
	}
	return r, nil
}
