package upload

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// State 原始上传所处的区域，只由对象键的形状决定
type State string

const (
	StateNew     State = "NEW"
	StateFailed  State = "FAILED"
	StateDurable State = "HAS_EVENT"
)

// Kind 同一次上传下的不同对象
type Kind string

const (
	KindLog          Kind = "power.log"
	KindDescriptor   Kind = "descriptor.json"
	KindErrorHistory Kind = "error.json"
)

const (
	NewPrefix     = "raw/"
	FailedPrefix  = "failed/"
	DurablePrefix = "uploads/"

	// ShortIDLength shortid 固定为 22 个字符
	ShortIDLength = 22

	minuteLayout = "2006/01/02/15/04"
	failedLayout = "2006-01-02-15-04"
)

var (
	newKeyRe     = regexp.MustCompile(`^raw/(\d{4}/\d{2}/\d{2}/\d{2}/\d{2})/(\w{22})\.(power\.log|descriptor\.json)$`)
	failedKeyRe  = regexp.MustCompile(`^failed/(\w{22})/(\d{4}-\d{2}-\d{2}-\d{2}-\d{2})\.(power\.log|descriptor\.json|error\.json)$`)
	durableKeyRe = regexp.MustCompile(`^uploads/(\d{4}/\d{2}/\d{2}/\d{2}/\d{2})/(\w{22})\.(power\.log|descriptor\.json)$`)
	shortIDRe    = regexp.MustCompile(`^\w{22}$`)
)

// Location 对象键解析结果
type Location struct {
	State     State
	ShortID   string
	Timestamp time.Time
	Kind      Kind
}

// Key 重新生成对象键
func (l Location) Key() string {
	return GenerateKey(l.State, l.Timestamp, l.ShortID, l.Kind)
}

// Sibling 同一上传同一区域下的另一个对象
func (l Location) Sibling(kind Kind) string {
	return GenerateKey(l.State, l.Timestamp, l.ShortID, kind)
}

// ParseKey 解析对象键，键的形状不属于任何区域时返回 ErrMalformedKey
func ParseKey(key string) (Location, error) {
	var (
		state        State
		ts, id, kind string
		layout       string
	)

	switch {
	case strings.HasPrefix(key, NewPrefix):
		m := newKeyRe.FindStringSubmatch(key)
		if m == nil {
			return Location{}, fmt.Errorf("%w: %s", ErrMalformedKey, key)
		}
		state, ts, id, kind, layout = StateNew, m[1], m[2], m[3], minuteLayout
	case strings.HasPrefix(key, FailedPrefix):
		m := failedKeyRe.FindStringSubmatch(key)
		if m == nil {
			return Location{}, fmt.Errorf("%w: %s", ErrMalformedKey, key)
		}
		state, id, ts, kind, layout = StateFailed, m[1], m[2], m[3], failedLayout
	case strings.HasPrefix(key, DurablePrefix):
		m := durableKeyRe.FindStringSubmatch(key)
		if m == nil {
			return Location{}, fmt.Errorf("%w: %s", ErrMalformedKey, key)
		}
		state, ts, id, kind, layout = StateDurable, m[1], m[2], m[3], minuteLayout
	default:
		return Location{}, fmt.Errorf("%w: %s", ErrMalformedKey, key)
	}

	t, err := time.Parse(layout, ts)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", ErrMalformedKey, key, err)
	}

	return Location{State: state, ShortID: id, Timestamp: t, Kind: Kind(kind)}, nil
}

// GenerateKey 根据区域、时间和 shortid 生成对象键，与 ParseKey 互逆
func GenerateKey(state State, ts time.Time, shortID string, kind Kind) string {
	ts = ts.UTC()
	switch state {
	case StateFailed:
		return fmt.Sprintf("%s%s/%s.%s", FailedPrefix, shortID, ts.Format(failedLayout), kind)
	case StateDurable:
		return fmt.Sprintf("%s%s/%s.%s", DurablePrefix, ts.Format(minuteLayout), shortID, kind)
	default:
		return fmt.Sprintf("%s%s/%s.%s", NewPrefix, ts.Format(minuteLayout), shortID, kind)
	}
}

// DurableKeys 事件创建时间和 shortid 决定的持久区日志与描述文件键
func DurableKeys(createdAt time.Time, shortID string) (logKey, descriptorKey string) {
	return GenerateKey(StateDurable, createdAt, shortID, KindLog),
		GenerateKey(StateDurable, createdAt, shortID, KindDescriptor)
}

// NewDayPrefix 新上传区某一天的前缀
func NewDayPrefix(day time.Time) string {
	return NewPrefix + day.UTC().Format("2006/01/02") + "/"
}

// FailedPrefixFor 某个 shortid 的失败区前缀
func FailedPrefixFor(shortID string) string {
	return FailedPrefix + shortID + "/"
}

// ValidShortID 校验 shortid 格式
func ValidShortID(id string) bool {
	return shortIDRe.MatchString(id)
}
