package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aris-project/aris/internal/llm"
	"github.com/aris-project/aris/internal/models"
)

// MaxLiveSessions caps live sessions per user. The cap also bounds the
// cached session list, so callers may cache it whole.
const MaxLiveSessions = 40

// TurnLocker serializes chat turns per user. Acquire returning false means
// another turn is in flight and the request must be rejected immediately.
type TurnLocker interface {
	Acquire(ctx context.Context, uid uint64) (bool, error)
	Release(ctx context.Context, uid uint64) error
}

// SessionCache invalidates derived copies of session state after mutation.
type SessionCache interface {
	Invalidate(ctx context.Context, uid, sessionID uint64) error
}

// Retriever yields context passages for a query against one vector database.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}

// RetrieverResolver validates a vector-database reference (existence,
// ownership, non-empty index, live embedding config) and returns a ready
// retriever. Resolution errors pass through to the caller unchanged.
type RetrieverResolver interface {
	Resolve(ctx context.Context, uid, vectorDBID uint64) (Retriever, error)
}

// ClientFactory builds a provider client from a model configuration.
type ClientFactory func(cfg models.LLMConfig, temperature float64) (llm.Client, error)

type Service struct {
	repo              *Repo
	lock              TurnLocker
	cache             SessionCache
	retrievers        RetrieverResolver
	clients           ClientFactory
	log               *zap.Logger
	contextWindowSize int
	retrieveTopK      int
}

func NewService(repo *Repo, lock TurnLocker, cache SessionCache, retrievers RetrieverResolver, clients ClientFactory, log *zap.Logger, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	if clients == nil {
		clients = llm.New
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:              repo,
		lock:              lock,
		cache:             cache,
		retrievers:        retrievers,
		clients:           clients,
		log:               log,
		contextWindowSize: contextWindowSize,
		retrieveTopK:      4,
	}
}

func (s *Service) CreateSession(ctx context.Context, uid uint64) (*Session, error) {
	cnt, err := s.repo.CountLiveSessions(ctx, uid)
	if err != nil {
		return nil, err
	}
	if cnt >= MaxLiveSessions {
		return nil, ErrSessionListFull
	}

	sess := &Session{UID: uid}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, uid, sess.SessionID); err != nil {
		s.log.Warn("invalidate session cache", zap.Uint64("uid", uid), zap.Error(err))
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, uid uint64, pageID, perPageNum int) ([]SessionSummary, error) {
	if perPageNum <= 0 || perPageNum > 100 {
		perPageNum = 20
	}
	if pageID < 0 {
		pageID = 0
	}
	return s.repo.ListSessions(ctx, uid, pageID*perPageNum, perPageNum)
}

type MessageView struct {
	MessageID uint64    `json:"message_id"`
	ChatAt    time.Time `json:"chat_at"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
}

type SessionDetail struct {
	SessionID uint64        `json:"session_id"`
	CreateAt  time.Time     `json:"create_at"`
	UpdateAt  time.Time     `json:"update_at"`
	BindLLM   *string       `json:"bind_llm"`
	Messages  []MessageView `json:"messages"`
}

// GetSessionDetail replays the persisted conversation in chronological
// order, reconstituting role/content pairs from their serialized form.
func (s *Service) GetSessionDetail(ctx context.Context, uid, sessionID uint64) (*SessionDetail, error) {
	sess, err := s.repo.GetLiveSession(ctx, uid, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	detail := &SessionDetail{
		SessionID: sess.SessionID,
		CreateAt:  sess.CreateAt,
		UpdateAt:  sess.UpdateAt,
		Messages:  []MessageView{},
	}
	if name, err := s.repo.BoundLLMName(ctx, sess); err == nil && name != "" {
		detail.BindLLM = &name
	}

	msgs, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		decoded, err := decodeMessage(m.Payload)
		if err != nil {
			s.log.Warn("skip undecodable message",
				zap.Uint64("session_id", sessionID), zap.Uint64("message_id", m.ID), zap.Error(err))
			continue
		}
		detail.Messages = append(detail.Messages, MessageView{
			MessageID: m.ID,
			ChatAt:    m.ChatAt,
			Role:      string(decoded.Role),
			Content:   decoded.Content,
		})
	}
	return detail, nil
}

// GetSessionDetailByID resolves the owner first and returns it with the
// detail, so callers caching under a uid-independent key can tell a missing
// session from one that belongs to someone else.
func (s *Service) GetSessionDetailByID(ctx context.Context, sessionID uint64) (uint64, *SessionDetail, error) {
	owner, err := s.repo.SessionOwner(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil, ErrSessionNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	detail, err := s.GetSessionDetail(ctx, owner, sessionID)
	if err != nil {
		return 0, nil, err
	}
	return owner, detail, nil
}

func (s *Service) DeleteSession(ctx context.Context, uid uint64, isAdmin bool, sessionID uint64) error {
	owner := uid
	if isAdmin {
		o, err := s.repo.SessionOwner(ctx, sessionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		owner = o
	}
	deleted, err := s.repo.SoftDeleteSession(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}
	if err := s.cache.Invalidate(ctx, owner, sessionID); err != nil {
		s.log.Warn("invalidate session cache", zap.Uint64("uid", owner), zap.Error(err))
	}
	return nil
}

type TurnRequest struct {
	UID         uint64
	SessionID   uint64
	LLMName     string
	Temperature float64
	Message     string
	VectorDBID  uint64
}

// Chat runs one turn of the session state machine:
// locked → llm-resolved → (optional) retrieval-resolved → streaming →
// persisted → unlocked. Precondition failures are returned synchronously
// with the lock already released; once the event channel is handed out, the
// streaming goroutine owns the lock and releases it on every exit path.
func (s *Service) Chat(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	acquired, err := s.lock.Acquire(ctx, req.UID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrBusy
	}
	release := func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), req.UID); err != nil {
			s.log.Warn("release chat lock", zap.Uint64("uid", req.UID), zap.Error(err))
		}
	}

	sess, err := s.repo.GetLiveSession(ctx, req.UID, req.SessionID)
	if err != nil {
		release()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	// The bound model is authoritative: it overrides whatever the caller
	// asked for.
	llmName := req.LLMName
	boundName, err := s.repo.BoundLLMName(ctx, sess)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		release()
		return nil, err
	}
	if boundName != "" {
		llmName = boundName
		s.log.Debug("use bound llm", zap.Uint64("session_id", sess.SessionID), zap.String("llm", llmName))
	}

	cfg, err := s.repo.GetLLMByName(ctx, llmName)
	if err != nil {
		release()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLLMNotFound
		}
		return nil, err
	}

	if boundName == "" {
		if err := s.repo.BindLLM(ctx, sess.SessionID, cfg.LLMID); err != nil {
			release()
			return nil, err
		}
		s.log.Debug("bind llm to session",
			zap.Uint64("session_id", sess.SessionID), zap.String("llm", cfg.LLMName))
	}

	var retriever Retriever
	if req.VectorDBID != 0 {
		retriever, err = s.retrievers.Resolve(ctx, req.UID, req.VectorDBID)
		if err != nil {
			release()
			return nil, err
		}
	}

	history, err := s.loadHistory(ctx, sess.SessionID)
	if err != nil {
		s.log.Error("load history failed", zap.Uint64("session_id", sess.SessionID), zap.Error(err))
		release()
		return nil, ErrInitFailed
	}

	client, err := s.clients(*cfg, req.Temperature)
	if err != nil {
		s.log.Error("init llm client failed", zap.String("llm", cfg.LLMName), zap.Error(err))
		release()
		return nil, ErrInitFailed
	}

	if err := s.cache.Invalidate(ctx, req.UID, sess.SessionID); err != nil {
		s.log.Warn("invalidate session cache", zap.Uint64("uid", req.UID), zap.Error(err))
	}

	events := make(chan Event, 16)
	go s.streamTurn(ctx, events, release, client, *cfg, history, retriever, req)
	return events, nil
}

// loadHistory replays the persisted conversation, keeping the most recent
// window of decoded messages.
func (s *Service) loadHistory(ctx context.Context, sessionID uint64) ([]llm.Message, error) {
	msgs, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		decoded, err := decodeMessage(m.Payload)
		if err != nil {
			return nil, err
		}
		history = append(history, decoded)
	}
	if len(history) > s.contextWindowSize {
		history = history[len(history)-s.contextWindowSize:]
	}
	return history, nil
}

// emit delivers ev to the consumer, falling through once ctx is gone so an
// abandoned stream never blocks the turn.
func emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// streamTurn owns the lock from here on. Faults mid-stream become a
// terminal error event so the client's open connection still receives a
// well-formed close signal. Event delivery stops when the request context
// is canceled, but persistence and the lock release still run.
func (s *Service) streamTurn(
	ctx context.Context,
	events chan<- Event,
	release func(),
	client llm.Client,
	cfg models.LLMConfig,
	history []llm.Message,
	retriever Retriever,
	req TurnRequest,
) {
	defer close(events)
	defer release()

	emit(ctx, events, phaseEvent(StatusChainStart))

	userPrompt := req.Message
	if retriever != nil {
		contexts, err := retriever.Retrieve(ctx, req.Message, s.retrieveTopK)
		if err != nil {
			s.log.Error("retrieval failed",
				zap.Uint64("vector_db_id", req.VectorDBID), zap.Error(err))
			emit(ctx, events, errorEvent("Retrieval failed"))
			return
		}
		userPrompt = llm.StuffContext(contexts, req.Message)
	}

	prompt, err := llm.BuildPrompt(cfg, history, userPrompt)
	if err != nil {
		s.log.Error("build prompt failed", zap.String("llm", cfg.LLMName), zap.Error(err))
		emit(ctx, events, errorEvent("Chat init failed"))
		return
	}

	emit(ctx, events, phaseEvent(StatusLLMStart))

	chunks, errs := client.StreamChat(ctx, prompt)
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
		emit(ctx, events, tokenEvent(c))
	}
	select {
	case err := <-errs:
		if err != nil {
			s.log.Error("stream failed", zap.Uint64("session_id", req.SessionID), zap.Error(err))
			emit(ctx, events, errorEvent(err.Error()))
			return
		}
	default:
	}

	emit(ctx, events, phaseEvent(StatusLLMEnd))

	// Persist the original user message, not the context-stuffed prompt.
	userPayload, err := encodeMessage(llm.RoleUser, req.Message)
	if err == nil {
		var assistantPayload string
		assistantPayload, err = encodeMessage(llm.RoleAssistant, b.String())
		if err == nil {
			err = s.repo.AppendTurn(context.WithoutCancel(ctx), req.SessionID, userPayload, assistantPayload)
		}
	}
	if err != nil {
		s.log.Error("persist turn failed", zap.Uint64("session_id", req.SessionID), zap.Error(err))
		emit(ctx, events, errorEvent("Persist turn failed"))
		return
	}

	if err := s.cache.Invalidate(context.WithoutCancel(ctx), req.UID, req.SessionID); err != nil {
		s.log.Warn("invalidate session cache", zap.Uint64("uid", req.UID), zap.Error(err))
	}

	emit(ctx, events, phaseEvent(StatusChainEnd))
}
