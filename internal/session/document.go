package session

import "github.com/codeconnect/collab/internal/protocol"

// Edit applies a local change optimistically and broadcasts the full
// document state — no diffing, no debouncing, a total replacement on every
// change. The broadcast carries the per-room revision so receivers can
// detect staleness.
func (s *Session) Edit(code, language string) error {
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
	s.rev++
	rev := s.rev
	s.doc = protocol.DocumentState{Code: code, Language: language}
	roomID := s.roomID
	s.persistLocked()
	ch := s.ch
	s.mu.Unlock()

	s.notify(KindDocument)

	if ch != nil {
		err := ch.Emit(protocol.EventCodeChange, protocol.CodeChangePayload{
			RoomID:   roomID,
			Code:     code,
			Language: language,
			Rev:      rev,
		})
		if err != nil {
			s.log.Warn("code broadcast failed", "room", roomID, "err", err)
		}
	}
	return nil
}

// handleCodeUpdate overwrites the local buffer with the remote state —
// last write wins. An update whose revision is behind the applied one is
// stale (out-of-order delivery) and dropped. The server never echoes a
// sender's own update back, so no echo suppression happens here.
func (s *Session) handleCodeUpdate(p protocol.CodeUpdatePayload) {
	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	if p.Rev != 0 && p.Rev < s.rev {
		s.log.Debug("dropping stale code update",
			"room", s.roomID, "rev", p.Rev, "applied", s.rev)
		s.mu.Unlock()
		return
	}
	if p.Rev > s.rev {
		s.rev = p.Rev
	}
	s.doc = protocol.DocumentState{Code: p.Code, Language: p.Language}
	s.persistLocked()
	s.mu.Unlock()

	s.notify(KindDocument)
}
