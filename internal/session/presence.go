package session

import "github.com/codeconnect/collab/internal/protocol"

// MoveCursor publishes the local cursor position. The local cursor is never
// stored in the mapping; only remote participants are tracked.
func (s *Session) MoveCursor(line, column int) {
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
	err := ch.Emit(protocol.EventCursorUpdate, protocol.CursorUpdatePayload{
		RoomID: roomID,
		UserID: s.self.String(),
		Line:   line,
		Column: column,
	})
	if err != nil {
		s.log.Warn("cursor emit failed", "room", roomID, "err", err)
	}
}

// Blur publishes a cursor-leave for self, removing our entry on every
// remote participant.
func (s *Session) Blur() {
	s.mu.Lock()
	if s.closed || s.ended || s.roomID == "" {
		s.mu.Unlock()
		return
	}
	ch := s.ch
	s.mu.Unlock()

	if ch == nil {
		return
	}
	if err := ch.Emit(protocol.EventCursorLeave, s.self.String()); err != nil {
		s.log.Warn("cursor leave emit failed", "err", err)
	}
}

func (s *Session) handleCursorUpdate(p protocol.CursorUpdatePayload) {
	if p.UserID == s.self.String() {
		return
	}

	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	s.cursors[protocol.ParticipantID(p.UserID)] = protocol.CursorPosition{
		Line:   p.Line,
		Column: p.Column,
	}
	s.mu.Unlock()

	s.notify(KindCursors)
}

// handleCursorLeave removes exactly the sender's entry. There is no
// staleness timeout: a dropped leave notice keeps a cursor displayed until
// a later leave or removal event arrives.
func (s *Session) handleCursorLeave(userID protocol.ParticipantID) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.cursors, userID)
	s.mu.Unlock()

	s.notify(KindCursors)
}
