package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codeconnect/collab/internal/cache"
	"github.com/codeconnect/collab/internal/config"
	"github.com/codeconnect/collab/internal/protocol"
	"github.com/codeconnect/collab/internal/session"
	"github.com/codeconnect/collab/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Logging.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	roomID := protocol.NewRoomID()
	if len(os.Args) > 1 {
		roomID = strings.ToUpper(strings.TrimSpace(os.Args[1]))
	}

	store, err := cache.New(cfg.CachePath)
	if err != nil {
		log.Fatalf("Failed to open local cache: %v", err)
	}
	defer store.Close()

	self := protocol.NewParticipantID()
	s := session.New(session.Options{
		Self:  self,
		Cache: store,
		API:   transport.NewClient(cfg.ServerURL),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := transport.Dial(ctx, cfg.WebSocketURL(), s.HandleEvent, s.HandleConnState)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.WebSocketURL(), err)
	}
	s.Bind(conn)
	defer s.Close()

	s.Subscribe(func(kind session.Kind) {
		switch kind {
		case session.KindDocument:
			doc := s.Document()
			fmt.Printf("-- document (%s, %d bytes)\n", doc.Language, len(doc.Code))
		case session.KindMessages:
			messages := s.Messages()
			if len(messages) == 0 {
				return
			}
			last := messages[len(messages)-1]
			fmt.Printf("[%s] %s\n", protocol.ParticipantID(last.UserID).Alias(), last.Content)
		case session.KindRoster:
			fmt.Printf("-- users in room: %d\n", s.UserCount())
		case session.KindEnded:
			fmt.Println("-- room ended")
		case session.KindConnection:
			fmt.Printf("-- connected: %v\n", s.Connected())
		}
	})

	if err := s.Join(ctx, roomID); err != nil {
		log.Fatalf("Failed to join room: %v", err)
	}

	slog.Info("joined collaboration room",
		"room", roomID, "self", self.Alias(), "server", cfg.ServerURL)
	fmt.Printf("Room %s — type to chat, /end to end the room, /quit to leave\n", roomID)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutting down")
		s.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "/quit":
			return
		case "/end":
			if err := s.End(); err != nil {
				slog.Warn("end failed", "err", err)
			}
		default:
			s.Typing()
			if _, err := s.SendMessage(line); err != nil && err != session.ErrEmptyMessage {
				slog.Warn("send failed", "err", err)
			}
		}
	}
}
