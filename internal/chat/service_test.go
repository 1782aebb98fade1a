package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aris-project/aris/internal/llm"
	"github.com/aris-project/aris/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A pooled second connection would see a different empty :memory: db.
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(&models.LLMConfig{}, &Session{}, &Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

type fakeLock struct {
	busy     bool
	acquires int
	releases int
}

func (l *fakeLock) Acquire(ctx context.Context, uid uint64) (bool, error) {
	if l.busy {
		return false, nil
	}
	l.busy = true
	l.acquires++
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context, uid uint64) error {
	l.busy = false
	l.releases++
	return nil
}

// signalLock closes released so tests can wait on the release from
// another goroutine.
type signalLock struct {
	released chan struct{}
}

func (l *signalLock) Acquire(ctx context.Context, uid uint64) (bool, error) { return true, nil }

func (l *signalLock) Release(ctx context.Context, uid uint64) error {
	close(l.released)
	return nil
}

type fakeCache struct{}

func (fakeCache) Invalidate(ctx context.Context, uid, sessionID uint64) error { return nil }

type fakeResolver struct {
	retriever Retriever
	err       error
}

func (r fakeResolver) Resolve(ctx context.Context, uid, vectorDBID uint64) (Retriever, error) {
	return r.retriever, r.err
}

// scriptedClient streams a fixed set of chunks.
type scriptedClient struct {
	chunks []string
	err    error
	// last prompt handed to StreamChat
	got []llm.Message
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	out := ""
	for _, ch := range c.chunks {
		out += ch
	}
	return out, c.err
}

func (c *scriptedClient) StreamChat(ctx context.Context, messages []llm.Message) (<-chan string, <-chan error) {
	c.got = messages
	chunks := make(chan string, len(c.chunks))
	errs := make(chan error, 1)
	for _, ch := range c.chunks {
		chunks <- ch
	}
	if c.err != nil {
		errs <- c.err
	}
	close(chunks)
	close(errs)
	return chunks, errs
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func seedLLM(t *testing.T, gdb *gorm.DB, name string) *models.LLMConfig {
	t.Helper()
	cfg := &models.LLMConfig{
		LLMName:     name,
		LLMType:     models.LLMTypeOpenAI,
		RequestType: models.RequestTypeMessage,
		BaseURL:     "http://127.0.0.1:1",
		SysName:     "system",
		SysPrompt:   "You are helpful.",
		UserName:    "user",
		AIName:      "assistant",
		MaxTokens:   128,
	}
	if err := gdb.Create(cfg).Error; err != nil {
		t.Fatalf("seed llm: %v", err)
	}
	return cfg
}

func newTestService(t *testing.T, gdb *gorm.DB, lock *fakeLock, client llm.Client) *Service {
	t.Helper()
	factory := func(cfg models.LLMConfig, temperature float64) (llm.Client, error) {
		return client, nil
	}
	return NewService(NewRepo(gdb), lock, fakeCache{}, fakeResolver{}, factory, nil, 20)
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestChatTurnStreamsAndPersists(t *testing.T) {
	gdb := openTestDB(t)
	seedLLM(t, gdb, "gpt-test")
	lock := &fakeLock{}
	client := &scriptedClient{chunks: []string{"Hel", "lo"}}
	svc := newTestService(t, gdb, lock, client)

	sess, err := svc.CreateSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	events, err := svc.Chat(context.Background(), TurnRequest{
		UID: 1, SessionID: sess.SessionID, LLMName: "gpt-test", Message: "hi",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	got := drain(t, events)

	wantStatuses := []string{StatusChainStart, StatusLLMStart, StatusNewToken, StatusNewToken, StatusLLMEnd, StatusChainEnd}
	if len(got) != len(wantStatuses) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(wantStatuses), got)
	}
	for i, ev := range got {
		if ev.Status != wantStatuses[i] {
			t.Fatalf("event %d status = %q, want %q", i, ev.Status, wantStatuses[i])
		}
	}
	if got[2].Delta != "Hel" || got[3].Delta != "lo" {
		t.Fatalf("token deltas = %q %q", got[2].Delta, got[3].Delta)
	}

	detail, err := svc.GetSessionDetail(context.Background(), 1, sess.SessionID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(detail.Messages))
	}
	if detail.Messages[0].Role != "user" || detail.Messages[0].Content != "hi" {
		t.Fatalf("first message = %+v", detail.Messages[0])
	}
	if detail.Messages[1].Role != "assistant" || detail.Messages[1].Content != "Hello" {
		t.Fatalf("second message = %+v", detail.Messages[1])
	}
	if lock.releases != lock.acquires {
		t.Fatalf("lock releases = %d, acquires = %d", lock.releases, lock.acquires)
	}
}

func TestChatStickyLLMBinding(t *testing.T) {
	gdb := openTestDB(t)
	first := seedLLM(t, gdb, "model-a")
	seedLLM(t, gdb, "model-b")
	lock := &fakeLock{}
	client := &scriptedClient{chunks: []string{"ok"}}
	svc := newTestService(t, gdb, lock, client)

	sess, err := svc.CreateSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	events, err := svc.Chat(context.Background(), TurnRequest{UID: 1, SessionID: sess.SessionID, LLMName: "model-a", Message: "one"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	drain(t, events)

	// Second turn asks for model-b; the session stays bound to model-a.
	events, err = svc.Chat(context.Background(), TurnRequest{UID: 1, SessionID: sess.SessionID, LLMName: "model-b", Message: "two"})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	drain(t, events)

	var got Session
	if err := gdb.First(&got, "session_id = ?", sess.SessionID).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if got.LLMID == nil || *got.LLMID != first.LLMID {
		t.Fatalf("session bound to %v, want %d", got.LLMID, first.LLMID)
	}

	detail, err := svc.GetSessionDetail(context.Background(), 1, sess.SessionID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.BindLLM == nil || *detail.BindLLM != "model-a" {
		t.Fatalf("bind_llm = %v, want model-a", detail.BindLLM)
	}
}

func TestChatAbandonedStreamStillPersistsAndUnlocks(t *testing.T) {
	gdb := openTestDB(t)
	seedLLM(t, gdb, "gpt-test")
	chunks := make([]string, 64)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("tok-%d ", i)
	}
	client := &scriptedClient{chunks: chunks}
	lock := &signalLock{released: make(chan struct{})}
	factory := func(cfg models.LLMConfig, temperature float64) (llm.Client, error) {
		return client, nil
	}
	svc := NewService(NewRepo(gdb), lock, fakeCache{}, fakeResolver{}, factory, nil, 20)

	sess, err := svc.CreateSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := svc.Chat(ctx, TurnRequest{UID: 1, SessionID: sess.SessionID, LLMName: "gpt-test", Message: "hi"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	// Read two events, then go away without draining the rest.
	<-events
	<-events
	cancel()

	select {
	case <-lock.released:
	case <-time.After(2 * time.Second):
		t.Fatalf("lock never released after the consumer went away")
	}

	detail, err := svc.GetSessionDetail(context.Background(), 1, sess.SessionID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(detail.Messages))
	}
	if detail.Messages[1].Role != "assistant" || detail.Messages[1].Content == "" {
		t.Fatalf("assistant reply not persisted: %+v", detail.Messages[1])
	}
}

func TestChatBusyRejection(t *testing.T) {
	gdb := openTestDB(t)
	seedLLM(t, gdb, "gpt-test")
	lock := &fakeLock{busy: true}
	svc := newTestService(t, gdb, lock, &scriptedClient{})

	_, err := svc.Chat(context.Background(), TurnRequest{UID: 1, SessionID: 1, LLMName: "gpt-test", Message: "hi"})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func TestChatReleasesLockOnPreconditionFailure(t *testing.T) {
	gdb := openTestDB(t)
	lock := &fakeLock{}
	svc := newTestService(t, gdb, lock, &scriptedClient{})

	sess, err := svc.CreateSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, err = svc.Chat(context.Background(), TurnRequest{UID: 1, SessionID: sess.SessionID, LLMName: "no-such-model", Message: "hi"})
	if !errors.Is(err, ErrLLMNotFound) {
		t.Fatalf("err = %v, want ErrLLMNotFound", err)
	}
	if lock.busy {
		t.Fatal("lock still held after precondition failure")
	}

	// Missing session releases too.
	_, err = svc.Chat(context.Background(), TurnRequest{UID: 1, SessionID: 9999, LLMName: "x", Message: "hi"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if lock.busy {
		t.Fatal("lock still held after missing session")
	}
}

func TestChatStreamErrorEmitsTerminalFrame(t *testing.T) {
	gdb := openTestDB(t)
	seedLLM(t, gdb, "gpt-test")
	lock := &fakeLock{}
	client := &scriptedClient{chunks: []string{"par"}, err: errors.New("upstream reset")}
	svc := newTestService(t, gdb, lock, client)

	sess, err := svc.CreateSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	events, err := svc.Chat(context.Background(), TurnRequest{UID: 1, SessionID: sess.SessionID, LLMName: "gpt-test", Message: "hi"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	got := drain(t, events)

	last := got[len(got)-1]
	if last.Status != StatusError {
		t.Fatalf("last status = %q, want error", last.Status)
	}
	if lock.busy {
		t.Fatal("lock still held after stream failure")
	}

	// Nothing persisted for the failed turn.
	detail, err := svc.GetSessionDetail(context.Background(), 1, sess.SessionID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Messages) != 0 {
		t.Fatalf("persisted %d messages after failure, want 0", len(detail.Messages))
	}
}

func TestCreateSessionCap(t *testing.T) {
	gdb := openTestDB(t)
	svc := newTestService(t, gdb, &fakeLock{}, &scriptedClient{})

	for i := 0; i < MaxLiveSessions; i++ {
		if _, err := svc.CreateSession(context.Background(), 7); err != nil {
			t.Fatalf("create session %d: %v", i, err)
		}
	}
	_, err := svc.CreateSession(context.Background(), 7)
	if !errors.Is(err, ErrSessionListFull) {
		t.Fatalf("err = %v, want ErrSessionListFull", err)
	}

	// Deleting one frees a slot.
	sessions, err := svc.ListSessions(context.Background(), 7, 0, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := svc.DeleteSession(context.Background(), 7, false, sessions[0].SessionID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.CreateSession(context.Background(), 7); err != nil {
		t.Fatalf("create after delete: %v", err)
	}
}

func TestChatHistoryWindow(t *testing.T) {
	gdb := openTestDB(t)
	seedLLM(t, gdb, "gpt-test")
	lock := &fakeLock{}
	client := &scriptedClient{chunks: []string{"ok"}}
	factory := func(cfg models.LLMConfig, temperature float64) (llm.Client, error) { return client, nil }
	svc := NewService(NewRepo(gdb), lock, fakeCache{}, fakeResolver{}, factory, nil, 4)

	sess, err := svc.CreateSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	for i := 0; i < 5; i++ {
		events, err := svc.Chat(context.Background(), TurnRequest{
			UID: 1, SessionID: sess.SessionID, LLMName: "gpt-test",
			Message: fmt.Sprintf("turn-%d", i),
		})
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
		drain(t, events)
	}

	// Window of 4 plus the system prompt plus the new user message.
	if len(client.got) != 6 {
		t.Fatalf("prompt has %d messages, want 6", len(client.got))
	}
	if client.got[0].Role != llm.RoleSystem {
		t.Fatalf("first prompt message role = %q", client.got[0].Role)
	}
	if client.got[len(client.got)-1].Content != "turn-4" {
		t.Fatalf("last prompt message = %+v", client.got[len(client.got)-1])
	}
	// The oldest retained history entry is the assistant reply to turn-2.
	if client.got[1].Role != llm.RoleUser || client.got[1].Content != "turn-2" {
		t.Fatalf("window start = %+v, want user turn-2", client.got[1])
	}
}

func TestSessionOwnershipIsolation(t *testing.T) {
	gdb := openTestDB(t)
	svc := newTestService(t, gdb, &fakeLock{}, &scriptedClient{})

	sess, err := svc.CreateSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.GetSessionDetail(context.Background(), 2, sess.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign get err = %v, want ErrSessionNotFound", err)
	}
	if err := svc.DeleteSession(context.Background(), 2, false, sess.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign delete err = %v, want ErrSessionNotFound", err)
	}
	// Admins may delete on behalf of the owner.
	if err := svc.DeleteSession(context.Background(), 2, true, sess.SessionID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := svc.GetSessionDetail(context.Background(), 1, sess.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("get after admin delete err = %v, want ErrSessionNotFound", err)
	}
}

// A session that exists but belongs to someone else must stay
// distinguishable from one that does not exist, or shared cache entries
// get poisoned by strangers.
func TestGetSessionDetailByIDResolvesOwner(t *testing.T) {
	gdb := openTestDB(t)
	svc := newTestService(t, gdb, &fakeLock{}, &scriptedClient{})

	sess, err := svc.CreateSession(context.Background(), 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	owner, detail, err := svc.GetSessionDetailByID(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if owner != 1 {
		t.Fatalf("owner = %d, want 1", owner)
	}
	if detail == nil || detail.SessionID != sess.SessionID {
		t.Fatalf("detail = %+v", detail)
	}

	if _, _, err := svc.GetSessionDetailByID(context.Background(), sess.SessionID+999); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session err = %v, want ErrSessionNotFound", err)
	}
}
