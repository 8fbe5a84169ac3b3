package ingest

import "errors"

var (
	// ErrAuthResolution Authorization 或 X-Api-Key 无法解析
	ErrAuthResolution = errors.New("上传鉴权失败")
	// ErrSchemaValidation 上传元数据不符合格式
	ErrSchemaValidation = errors.New("上传元数据校验失败")
)

// 回放处理函数返回的错误分类
var (
	ErrParsing           = errors.New("回放解析失败")
	ErrUnsupportedReplay = errors.New("不支持的回放")
	ErrValidation        = errors.New("回放校验失败")
)

// ProcessingError 下游处理失败，携带调用栈
type ProcessingError struct {
	Err       error
	Traceback string
}

func (e *ProcessingError) Error() string {
	return e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
