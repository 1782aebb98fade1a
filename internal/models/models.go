package models

import (
	"time"

	"gorm.io/gorm"
)

// Live scopes a query to rows whose soft-delete timestamp is unset or still
// in the future. For api keys delete_at doubles as the expiry time, so the
// same predicate covers both "deleted" and "expired".
func Live(db *gorm.DB) *gorm.DB {
	return db.Where("delete_at IS NULL OR delete_at > ?", time.Now())
}

type User struct {
	UID          uint64     `gorm:"column:uid;primaryKey;autoIncrement" json:"uid"`
	UserName     string     `gorm:"column:user_name;type:varchar(255);uniqueIndex;not null" json:"user_name"`
	PasswordHash string     `gorm:"column:password;type:varchar(255);not null" json:"-"`
	IsAdmin      bool       `gorm:"column:is_admin;not null;default:false" json:"is_admin"`
	AkNum        int        `gorm:"column:ak_num;not null;default:0" json:"ak_num"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"-"`
	CreateAt     time.Time  `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt     time.Time  `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
	DeleteAt     *time.Time `gorm:"column:delete_at" json:"-"`
}

func (User) TableName() string { return "users" }

type ApiKey struct {
	AkID     uint64     `gorm:"column:ak_id;primaryKey;autoIncrement" json:"api_key_id"`
	UID      uint64     `gorm:"column:uid;index;not null" json:"-"`
	Secret   string     `gorm:"column:api_key_secret;type:varchar(64);uniqueIndex;not null" json:"api_key_secret"`
	CreateAt time.Time  `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	DeleteAt *time.Time `gorm:"column:delete_at" json:"expire_at"`
}

func (ApiKey) TableName() string { return "api_keys" }

// LLMType selects the chat-completion client implementation. The set is
// closed; adding a provider requires extending the switch in internal/llm.
type LLMType string

const (
	LLMTypeOpenAI LLMType = "openai"
)

// RequestType selects how the prompt is assembled for a model: a native
// chat-message list or a flat named-placeholder template.
type RequestType string

const (
	RequestTypeMessage RequestType = "message"
	RequestTypeString  RequestType = "string"
)

type LLMConfig struct {
	LLMID       uint64      `gorm:"column:llm_id;primaryKey;autoIncrement" json:"llm_id"`
	LLMName     string      `gorm:"column:llm_name;type:varchar(255);index;not null" json:"llm_name"`
	LLMType     LLMType     `gorm:"column:llm_type;type:varchar(32);not null" json:"llm_type"`
	RequestType RequestType `gorm:"column:request_type;type:varchar(32);not null" json:"request_type"`
	BaseURL     string      `gorm:"column:base_url;type:varchar(255);not null" json:"base_url"`
	APIKey      string      `gorm:"column:api_key;type:varchar(255);not null;default:''" json:"-"`
	SysName     string      `gorm:"column:sys_name;type:varchar(255);not null;default:'system'" json:"sys_name"`
	SysPrompt   string      `gorm:"column:sys_prompt;type:text;not null" json:"sys_prompt"`
	UserName    string      `gorm:"column:user_name;type:varchar(255);not null;default:'user'" json:"user_name"`
	AIName      string      `gorm:"column:ai_name;type:varchar(255);not null;default:'assistant'" json:"ai_name"`
	MaxTokens   int         `gorm:"column:max_tokens;not null;default:2048" json:"max_tokens"`
	UploaderID  uint64      `gorm:"column:uploader_id;not null" json:"-"`
	CreateAt    time.Time   `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt    time.Time   `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
	DeleteAt    *time.Time  `gorm:"column:delete_at" json:"-"`
}

func (LLMConfig) TableName() string { return "llms" }

// EmbeddingType mirrors LLMType for embedding providers.
type EmbeddingType string

const (
	EmbeddingTypeOpenAI EmbeddingType = "openai"
)

type EmbeddingConfig struct {
	EmbeddingID   uint64        `gorm:"column:embedding_id;primaryKey;autoIncrement" json:"embedding_id"`
	EmbeddingName string        `gorm:"column:embedding_name;type:varchar(255);index;not null" json:"embedding_name"`
	EmbeddingType EmbeddingType `gorm:"column:embedding_type;type:varchar(32);not null" json:"embedding_type"`
	BaseURL       string        `gorm:"column:base_url;type:varchar(255);not null" json:"base_url"`
	APIKey        string        `gorm:"column:api_key;type:varchar(255);not null;default:''" json:"-"`
	ChunkSize     int           `gorm:"column:chunk_size;not null" json:"chunk_size"`
	EmbedDim      int           `gorm:"column:embed_dim;not null" json:"embed_dim"`
	UploaderID    uint64        `gorm:"column:uploader_id;not null" json:"-"`
	CreateAt      time.Time     `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt      time.Time     `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
	DeleteAt      *time.Time    `gorm:"column:delete_at" json:"-"`
}

func (EmbeddingConfig) TableName() string { return "embeddings" }
