package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// ErrInvalidMetadata 元数据不符合格式
var ErrInvalidMetadata = errors.New("上传元数据无效")

// PlayerMetadata 客户端上报的玩家信息
type PlayerMetadata struct {
	Rank       *int     `json:"rank,omitempty" validate:"omitempty,min=0,max=25"`
	LegendRank *int     `json:"legend_rank,omitempty" validate:"omitempty,min=1"`
	Stars      *int     `json:"stars,omitempty"`
	Wins       *int     `json:"wins,omitempty"`
	Losses     *int     `json:"losses,omitempty"`
	Deck       []string `json:"deck,omitempty" validate:"omitempty,dive,required"`
	DeckID     *int64   `json:"deck_id,omitempty" validate:"omitempty,min=0"`
	Cardback   *int     `json:"cardback,omitempty" validate:"omitempty,min=1"`
}

// UploadMetadata 客户端随上传请求提交的对局元数据
type UploadMetadata struct {
	TestData          bool       `json:"test_data"`
	GameType          int        `json:"game_type" validate:"min=0"`
	Format            *int       `json:"format,omitempty"`
	Build             int        `json:"build" validate:"required,min=1"`
	MatchStart        *time.Time `json:"match_start" validate:"required"`
	FriendlyPlayer    int        `json:"friendly_player,omitempty" validate:"omitempty,min=1,max=2"`
	QueueTime         int        `json:"queue_time,omitempty" validate:"omitempty,min=1"`
	SpectatorMode     bool       `json:"spectator_mode"`
	Reconnecting      bool       `json:"reconnecting"`
	Resumable         *bool      `json:"resumable,omitempty"`
	ServerIP          string     `json:"server_ip,omitempty" validate:"omitempty,ip"`
	ServerPort        int        `json:"server_port,omitempty" validate:"omitempty,min=1,max=65535"`
	ServerVersion     int        `json:"server_version,omitempty" validate:"omitempty,min=1"`
	ClientHandle      *int64     `json:"client_handle,omitempty" validate:"omitempty,min=0"`
	GameHandle        int64      `json:"game_handle,omitempty" validate:"omitempty,min=1"`
	AuroraPassword    string     `json:"aurora_password,omitempty"`
	SpectatorPassword string     `json:"spectator_password,omitempty"`
	ScenarioID        *int       `json:"scenario_id,omitempty" validate:"omitempty,min=0"`

	Player1 *PlayerMetadata `json:"player1,omitempty"`
	Player2 *PlayerMetadata `json:"player2,omitempty"`
}

// MetadataValidator 校验上传元数据，错误信息翻译为中文
type MetadataValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// NewMetadataValidator 创建元数据校验器
func NewMetadataValidator() (*MetadataValidator, error) {
	validate := validator.New()

	// 错误信息使用 json 字段名
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})

	zhTrans := zh.New()
	uni := ut.New(zhTrans, zhTrans)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, fmt.Errorf("注册验证器翻译失败: %w", err)
	}

	return &MetadataValidator{validate: validate, trans: trans}, nil
}

// Parse 解析并校验元数据
func (v *MetadataValidator) Parse(raw json.RawMessage) (*UploadMetadata, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: 缺少 upload_metadata", ErrInvalidMetadata)
	}

	var meta UploadMetadata
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	if err := v.validate.Struct(&meta); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			msgs := make([]string, 0, len(validationErrors))
			for _, e := range validationErrors {
				msgs = append(msgs, e.Translate(v.trans))
			}
			return nil, fmt.Errorf("%w: %s", ErrInvalidMetadata, strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return &meta, nil
}

// Validate 校验元数据并返回客户端上报的对局开始时间
func (v *MetadataValidator) Validate(raw json.RawMessage) (time.Time, error) {
	meta, err := v.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return *meta.MatchStart, nil
}
