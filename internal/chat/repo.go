package chat

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aris-project/aris/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CountLiveSessions(ctx context.Context, uid uint64) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&Session{}).
		Scopes(models.Live).
		Where("uid = ?", uid).
		Count(&cnt).Error
	return cnt, err
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetLiveSession resolves a live session owned by uid.
func (r *Repo) GetLiveSession(ctx context.Context, uid, sessionID uint64) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Scopes(models.Live).
		Where("session_id = ? AND uid = ?", sessionID, uid).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// BoundLLMName returns the name of the session's bound model, or "" when
// the session has no binding yet.
func (r *Repo) BoundLLMName(ctx context.Context, s *Session) (string, error) {
	if s.LLMID == nil {
		return "", nil
	}
	var cfg models.LLMConfig
	if err := r.db.WithContext(ctx).
		Where("llm_id = ?", *s.LLMID).
		First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.LLMName, nil
}

func (r *Repo) GetLLMByName(ctx context.Context, name string) (*models.LLMConfig, error) {
	var cfg models.LLMConfig
	if err := r.db.WithContext(ctx).
		Scopes(models.Live).
		Where("llm_name = ?", name).
		First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BindLLM pins the model to the session. The binding is sticky: it is only
// written once, on the session's first successful chat turn.
func (r *Repo) BindLLM(ctx context.Context, sessionID, llmID uint64) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("llm_id", llmID).Error
}

type SessionSummary struct {
	SessionID uint64    `json:"session_id"`
	CreateAt  time.Time `json:"create_at"`
	UpdateAt  time.Time `json:"last_chat_at"`
}

func (r *Repo) ListSessions(ctx context.Context, uid uint64, offset, limit int) ([]SessionSummary, error) {
	var out []SessionSummary
	err := r.db.WithContext(ctx).Model(&Session{}).
		Scopes(models.Live).
		Where("uid = ?", uid).
		Order("session_id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SessionOwner resolves who a live session belongs to.
func (r *Repo) SessionOwner(ctx context.Context, sessionID uint64) (uint64, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Scopes(models.Live).
		Select("uid").
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return 0, err
	}
	return s.UID, nil
}

func (r *Repo) SoftDeleteSession(ctx context.Context, uid, sessionID uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Scopes(models.Live).
		Where("session_id = ? AND uid = ?", sessionID, uid).
		Update("delete_at", time.Now())
	return res.RowsAffected > 0, res.Error
}

// ListMessages returns the whole conversation in chronological order.
func (r *Repo) ListMessages(ctx context.Context, sessionID uint64) ([]Message, error) {
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

// AppendTurn persists the completed exchange: the user message first, then
// the assistant message, in one transaction.
func (r *Repo) AppendTurn(ctx context.Context, sessionID uint64, userPayload, assistantPayload string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&Message{SessionID: sessionID, Payload: userPayload}).Error; err != nil {
			return err
		}
		if err := tx.Create(&Message{SessionID: sessionID, Payload: assistantPayload}).Error; err != nil {
			return err
		}
		return tx.Model(&Session{}).
			Where("session_id = ?", sessionID).
			Update("update_at", time.Now()).Error
	})
}
