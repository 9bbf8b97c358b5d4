package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/codeconnect/collab/internal/cache"
	"github.com/codeconnect/collab/internal/debounce"
	"github.com/codeconnect/collab/internal/protocol"
)

const (
	defaultJoinDelay  = 500 * time.Millisecond
	defaultTypingIdle = 1000 * time.Millisecond
	defaultLanguage   = "javascript"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrRoomEnded     = errors.New("room has ended")
	ErrNoRoom        = errors.New("no room joined")
	ErrEmptyMessage  = errors.New("empty message")
	ErrNoUploader    = errors.New("no upload endpoint configured")
)

// Channel is the bidirectional event channel the session speaks over. It is
// injected so sessions can run concurrently and be tested deterministically.
type Channel interface {
	Emit(event string, payload any) error
	Connected() bool
	Close() error
}

// API covers the two request kinds that live outside the channel. Both may
// resolve after channel events have already moved state; the last writer
// wins.
type API interface {
	FetchRoomState(ctx context.Context, roomID string) (*protocol.RoomState, error)
	UploadFile(ctx context.Context, name string, r io.Reader) (string, error)
}

// Kind names a slice of session state that changed
type Kind string

const (
	KindConnection Kind = "connection"
	KindLoading    Kind = "loading"
	KindDocument   Kind = "document"
	KindMessages   Kind = "messages"
	KindRoster     Kind = "roster"
	KindTyping     Kind = "typing"
	KindCursors    Kind = "cursors"
	KindEnded      Kind = "ended"
)

type Options struct {
	// Self is the full connection identity; generated when empty
	Self protocol.ParticipantID

	Cache *cache.Store
	API   API

	// JoinDelay is how long a join waits for the channel to connect
	JoinDelay time.Duration

	// TypingIdle is the typing-indicator inactivity window
	TypingIdle time.Duration

	Logger *slog.Logger
}

// Session is the client-side synchronization core for one room at a time.
// It is the only writer of the document, roster, message log and cursor map.
type Session struct {
	self      protocol.ParticipantID
	store     *cache.Store
	api       API
	log       *slog.Logger
	joinDelay time.Duration

	typingStop *debounce.Debouncer

	mu           sync.Mutex
	ch           Channel
	roomID       string
	connected    bool
	loading      bool
	ended        bool
	closed       bool
	rev          uint64
	doc          protocol.DocumentState
	messages     []protocol.ChatMessage
	participants map[protocol.ParticipantID]struct{}
	userCount    int
	cursors      map[protocol.ParticipantID]protocol.CursorPosition
	typing       map[protocol.ParticipantID]struct{}
	joinTimer    *debounce.Deferred
	subscribers  []func(Kind)
}

func New(opts Options) *Session {
	if opts.Self == "" {
		opts.Self = protocol.NewParticipantID()
	}
	if opts.JoinDelay <= 0 {
		opts.JoinDelay = defaultJoinDelay
	}
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = defaultTypingIdle
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		self:         opts.Self,
		store:        opts.Cache,
		api:          opts.API,
		log:          opts.Logger,
		joinDelay:    opts.JoinDelay,
		doc:          protocol.DocumentState{Language: defaultLanguage},
		participants: make(map[protocol.ParticipantID]struct{}),
		cursors:      make(map[protocol.ParticipantID]protocol.CursorPosition),
		typing:       make(map[protocol.ParticipantID]struct{}),
		userCount:    1,
	}
	s.typingStop = debounce.New(opts.TypingIdle, func() {
		s.emitTyping(false)
	})
	return s
}

// Bind attaches the channel client the session emits over
func (s *Session) Bind(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = ch
	s.connected = ch != nil && ch.Connected()
}

// Subscribe registers a listener invoked after each state change. Listeners
// read current state through the accessor methods.
func (s *Session) Subscribe(fn func(Kind)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Session) notify(kinds ...Kind) {
	s.mu.Lock()
	subs := make([]func(Kind), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, kind := range kinds {
		for _, fn := range subs {
			fn(kind)
		}
	}
}

// HandleConnState is wired into the channel's connection observer
func (s *Session) HandleConnState(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	s.notify(KindConnection)
}

// HandleEvent dispatches one decoded server event. Events are processed to
// completion in arrival order; the transport calls this from its single
// reader goroutine.
func (s *Session) HandleEvent(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventRoomJoined:
		var p protocol.RoomJoinedPayload
		if decode(env, &p, s.log) {
			s.handleRoomJoined(p)
		}
	case protocol.EventUserJoined:
		var userID string
		if decode(env, &userID, s.log) {
			s.handleUserJoined(protocol.ParticipantID(userID))
		}
	case protocol.EventUserLeft:
		var userID string
		if decode(env, &userID, s.log) {
			s.handleUserLeft(protocol.ParticipantID(userID))
		}
	case protocol.EventUserCount:
		var count int
		if decode(env, &count, s.log) {
			s.handleUserCount(count)
		}
	case protocol.EventCodeUpdate:
		var p protocol.CodeUpdatePayload
		if decode(env, &p, s.log) {
			s.handleCodeUpdate(p)
		}
	case protocol.EventNewMessage:
		var msg protocol.ChatMessage
		if decode(env, &msg, s.log) {
			s.handleNewMessage(msg)
		}
	case protocol.EventUserTyping:
		var p protocol.TypingPayload
		if decode(env, &p, s.log) {
			s.handleUserTyping(p)
		}
	case protocol.EventCursorUpdate:
		var p protocol.CursorUpdatePayload
		if decode(env, &p, s.log) {
			s.handleCursorUpdate(p)
		}
	case protocol.EventCursorLeave:
		var userID string
		if decode(env, &userID, s.log) {
			s.handleCursorLeave(protocol.ParticipantID(userID))
		}
	case protocol.EventRoomEnded:
		s.handleRoomEnded()
	default:
		s.log.Debug("ignoring unknown event", "event", env.Event)
	}
}

func decode(env protocol.Envelope, dst any, log *slog.Logger) bool {
	if err := unmarshalData(env, dst); err != nil {
		log.Debug("skipping malformed payload", "event", env.Event, "err", err)
		return false
	}
	return true
}

// Close tears the session down: both timers are canceled so no stale
// callback mutates a torn-down session, and late REST results are dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	joinTimer := s.joinTimer
	ch := s.ch
	s.mu.Unlock()

	if joinTimer != nil {
		joinTimer.Stop()
	}
	s.typingStop.Stop()

	if ch != nil {
		return ch.Close()
	}
	return nil
}

// persistLocked snapshots the document and message log for the room. Cache
// failures degrade silently; the cache is best-effort.
func (s *Session) persistLocked() {
	if s.store == nil || s.roomID == "" {
		return
	}
	if err := s.store.SaveCode(s.roomID, s.doc.Code); err != nil {
		s.log.Warn("cache write failed", "room", s.roomID, "err", err)
	}
	if err := s.store.SaveMessages(s.roomID, s.messages); err != nil {
		s.log.Warn("cache write failed", "room", s.roomID, "err", err)
	}
}

// Accessors. Each returns a copy; the session remains the only writer.

func (s *Session) Self() protocol.ParticipantID { return s.self }

func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Session) Document() protocol.DocumentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *Session) Messages() []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := make([]protocol.ChatMessage, len(s.messages))
	copy(messages, s.messages)
	return messages
}

func (s *Session) Participants() []protocol.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]protocol.ParticipantID, 0, len(s.participants))
	for id := range s.participants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Session) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userCount
}

func (s *Session) Cursors() map[protocol.ParticipantID]protocol.CursorPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursors := make(map[protocol.ParticipantID]protocol.CursorPosition, len(s.cursors))
	for id, pos := range s.cursors {
		cursors[id] = pos
	}
	return cursors
}

func (s *Session) TypingUsers() []protocol.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]protocol.ParticipantID, 0, len(s.typing))
	for id := range s.typing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
