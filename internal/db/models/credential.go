package models

// AuthToken 客户端上传令牌，Authorization: Token <key>
type AuthToken struct {
	Model
	Key      string `gorm:"size:36;uniqueIndex;not null" json:"key"`
	Owner    string `gorm:"size:100" json:"owner"`
	TestData bool   `gorm:"not null;default:false" json:"test_data"`
	Enabled  bool   `gorm:"not null;default:true" json:"enabled"`
}

// TableName 指定表名
func (AuthToken) TableName() string {
	return "auth_tokens"
}

// APIKey 客户端程序的 X-Api-Key
type APIKey struct {
	Model
	Key      string `gorm:"size:36;uniqueIndex;not null" json:"key"`
	FullName string `gorm:"size:255;not null" json:"full_name"`
	Email    string `gorm:"size:255" json:"email"`
	Website  string `gorm:"size:255" json:"website"`
	Enabled  bool   `gorm:"not null;default:true" json:"enabled"`
}

// TableName 指定表名
func (APIKey) TableName() string {
	return "api_keys"
}
