package utils

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/upload"
	"go.uber.org/zap"
)

// 全局验证器
var (
	validate     *validator.Validate
	trans        ut.Translator
	validateOnce sync.Once
)

// InitValidator 初始化验证器，可以重复调用
func InitValidator() {
	validateOnce.Do(initValidator)
}

func initValidator() {
	validate = validator.New()

	// 错误信息使用 json/uri 字段名
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "uri", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	zhTrans := zh.New()
	uni := ut.New(zhTrans, zhTrans)
	trans, _ = uni.GetTranslator("zh")

	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		logger.Error("注册验证器翻译失败", zap.Error(err))
		return
	}

	registerCustomValidators()
}

// registerCustomValidators 注册自定义验证器
func registerCustomValidators() {
	_ = validate.RegisterValidation("shortid", func(fl validator.FieldLevel) bool {
		return upload.ValidShortID(fl.Field().String())
	})
	_ = validate.RegisterTranslation("shortid", trans, func(ut ut.Translator) error {
		return ut.Add("shortid", "{0}必须是22位shortid", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("shortid", fe.Field())
		return t
	})
}

// BindAndValidate 绑定并验证请求数据
func BindAndValidate(c *gin.Context, obj interface{}) error {
	InitValidator()

	var err error
	switch {
	case len(c.Params) > 0 && c.Request.Method == "GET":
		err = c.ShouldBindUri(obj)
		if err == nil {
			err = c.ShouldBindQuery(obj)
		}
	case c.Request.Method == "GET":
		err = c.ShouldBindQuery(obj)
	default:
		err = c.ShouldBindJSON(obj)
	}
	if err != nil {
		logger.Warn("请求数据绑定失败",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		return err
	}

	if err := validate.Struct(obj); err != nil {
		logger.Warn("数据验证失败",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))

		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errMsgs := make([]string, 0, len(validationErrors))
			for _, e := range validationErrors {
				errMsgs = append(errMsgs, e.Translate(trans))
			}
			return errors.New(strings.Join(errMsgs, "; "))
		}
		return err
	}
	return nil
}
