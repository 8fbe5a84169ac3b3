package upload

import "errors"

var (
	// ErrMalformedKey 对象键不符合任何已知区域的格式
	ErrMalformedKey = errors.New("对象键格式错误")
	// ErrMisclassifiedUpload 新上传区的通知到达时对象已经被移到失败区，可以忽略
	ErrMisclassifiedUpload = errors.New("上传已被移入失败区")
	// ErrDescriptorUnavailable 描述文件缺失或无法解析
	ErrDescriptorUnavailable = errors.New("描述文件不可用")
	// ErrUnsupportedState 当前区域不支持该操作
	ErrUnsupportedState = errors.New("当前状态不支持该操作")
)
