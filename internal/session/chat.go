package session

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/codeconnect/collab/internal/media"
	"github.com/codeconnect/collab/internal/protocol"
)

// SendMessage appends a chat message optimistically, broadcasts it, and
// immediately signals typing stopped.
func (s *Session) SendMessage(text string) (protocol.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return protocol.ChatMessage{}, ErrEmptyMessage
	}

	msg := protocol.ChatMessage{
		ID:        protocol.NewMessageID(),
		UserID:    s.self.String(),
		Content:   text,
		Type:      protocol.MessageText,
		Timestamp: time.Now().UnixMilli(),
	}

	if err := s.appendAndBroadcast(msg); err != nil {
		return protocol.ChatMessage{}, err
	}

	// Sending counts as the end of the typing burst
	s.typingStop.Flush()

	return msg, nil
}

// SendVoice announces a locally captured voice blob through the same chat
// broadcast path. The blob reference is local-only; nothing is uploaded.
func (s *Session) SendVoice(blob media.Blob) (protocol.ChatMessage, error) {
	msg := protocol.ChatMessage{
		ID:        protocol.NewMessageID(),
		UserID:    s.self.String(),
		Type:      protocol.MessageVoice,
		FileURL:   blob.Ref,
		Duration:  blob.Duration,
		Timestamp: time.Now().UnixMilli(),
	}

	if err := s.appendAndBroadcast(msg); err != nil {
		return protocol.ChatMessage{}, err
	}
	return msg, nil
}

// SendFile uploads the file to the server, then announces a file message
// referencing the returned URL. An upload failure leaves the log unchanged.
func (s *Session) SendFile(ctx context.Context, name string, r io.Reader) (protocol.ChatMessage, error) {
	if s.api == nil {
		return protocol.ChatMessage{}, ErrNoUploader
	}

	fileURL, err := s.api.UploadFile(ctx, name, r)
	if err != nil {
		s.log.Warn("file upload failed", "name", name, "err", err)
		return protocol.ChatMessage{}, err
	}

	msg := protocol.ChatMessage{
		ID:        protocol.NewMessageID(),
		UserID:    s.self.String(),
		Content:   name,
		Type:      protocol.MessageFile,
		FileURL:   fileURL,
		Timestamp: time.Now().UnixMilli(),
	}

	if err := s.appendAndBroadcast(msg); err != nil {
		return protocol.ChatMessage{}, err
	}
	return msg, nil
}

func (s *Session) appendAndBroadcast(msg protocol.ChatMessage) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.ended {
		s.mu.Unlock()
		return ErrRoomEnded
	}
	if s.roomID == "" {
		s.mu.Unlock()
		return ErrNoRoom
	}
	s.messages = append(s.messages, msg)
	roomID := s.roomID
	s.persistLocked()
	ch := s.ch
	s.mu.Unlock()

	s.notify(KindMessages)

	if ch != nil {
		err := ch.Emit(protocol.EventSendMessage, protocol.SendMessagePayload{
			RoomID:      roomID,
			ChatMessage: msg,
		})
		if err != nil {
			s.log.Warn("message broadcast failed", "room", roomID, "err", err)
		}
	}
	return nil
}

// handleNewMessage appends a broadcast message unless we authored it.
// Authorship is compared on the full participant id — a truncated alias
// would suppress messages from any participant sharing the prefix.
func (s *Session) handleNewMessage(msg protocol.ChatMessage) {
	if msg.UserID == s.self.String() {
		return
	}

	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	s.persistLocked()
	s.mu.Unlock()

	s.notify(KindMessages)
}

// Typing records one composer keystroke. The first keystroke of a burst
// emits typing:true; the debouncer emits the single typing:false after the
// inactivity window. Keystrokes inside the window emit nothing.
func (s *Session) Typing() {
	s.mu.Lock()
	blocked := s.closed || s.ended || s.roomID == ""
	s.mu.Unlock()
	if blocked {
		return
	}

	if s.typingStop.Touch() {
		s.emitTyping(true)
	}
}

func (s *Session) emitTyping(isTyping bool) {
	s.mu.Lock()
	if s.closed || s.ended || s.roomID == "" {
		s.mu.Unlock()
		return
	}
	roomID := s.roomID
	ch := s.ch
	s.mu.Unlock()

	if ch == nil {
		return
	}
	err := ch.Emit(protocol.EventTyping, protocol.TypingPayload{
		RoomID:   roomID,
		UserID:   s.self.String(),
		IsTyping: isTyping,
	})
	if err != nil {
		s.log.Warn("typing emit failed", "room", roomID, "err", err)
	}
}

func (s *Session) handleUserTyping(p protocol.TypingPayload) {
	if p.UserID == s.self.String() {
		return
	}

	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	if p.IsTyping {
		s.typing[protocol.ParticipantID(p.UserID)] = struct{}{}
	} else {
		delete(s.typing, protocol.ParticipantID(p.UserID))
	}
	s.mu.Unlock()

	s.notify(KindTyping)
}

// React increments a per-message emoji counter. Reactions are local-only
// and never broadcast; other participants' reaction views stay unsynced.
func (s *Session) React(messageID, emoji string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.ended {
		s.mu.Unlock()
		return ErrRoomEnded
	}
	for i := range s.messages {
		if s.messages[i].ID != messageID {
			continue
		}
		if s.messages[i].Reactions == nil {
			s.messages[i].Reactions = make(map[string]int)
		}
		s.messages[i].Reactions[emoji]++
		s.persistLocked()
		s.mu.Unlock()

		s.notify(KindMessages)
		return nil
	}
	s.mu.Unlock()
	return nil
}
