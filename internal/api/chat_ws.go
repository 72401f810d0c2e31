package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/challenge-bot/internal/chat"
)

const historySize = 50

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatAttachment is an inline file sent by a websocket client
type ChatAttachment struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatMessage is one websocket frame in either direction.
//
// Client frames: "message" (content, attachments), "react" and "unreact"
// (message_id, emoji). Server frames: "connected", "history" (messages),
// "event" (event) and "error" (data).
type ChatMessage struct {
	Type        string           `json:"type"`
	Data        string           `json:"data,omitempty"`
	Content     string           `json:"content,omitempty"`
	Attachments []ChatAttachment `json:"attachments,omitempty"`
	MessageID   string           `json:"message_id,omitempty"`
	Emoji       string           `json:"emoji,omitempty"`
	Event       *chat.Event      `json:"event,omitempty"`
	Messages    []*chat.Message  `json:"messages,omitempty"`
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	user := chat.User{ID: r.URL.Query().Get("user"), Tag: r.URL.Query().Get("tag")}
	if channel == "" || user.ID == "" {
		http.Error(w, "channel and user are required", http.StatusBadRequest)
		return
	}
	if user.ID == s.deps.Hub.Bot().ID {
		http.Error(w, "cannot connect as the bot", http.StatusForbidden)
		return
	}
	if user.Tag == "" {
		user.Tag = user.ID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	log := slog.With("channel", channel, "user", user.ID, "client", callerName(r.Context()))
	log.Info("chat websocket connected")

	events, unsubscribe := s.deps.Hub.Subscribe(256)
	defer unsubscribe()

	// gorilla connections allow one concurrent writer
	var writeMu sync.Mutex
	send := func(msg ChatMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return s.sendChatMessage(conn, msg)
	}

	send(ChatMessage{Type: "connected", Data: "Connected to channel " + channel})
	send(ChatMessage{Type: "history", Messages: s.deps.Hub.History(channel, historySize)})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup

	// Hub -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Channel != channel {
					continue
				}
				if err := send(ChatMessage{Type: "event", Event: &ev}); err != nil {
					return
				}
			}
		}
	}()

	// WebSocket -> Hub
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("websocket read error", "error", err)
				}
				return
			}

			var msg ChatMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				log.Debug("invalid message format", "error", err)
				send(ChatMessage{Type: "error", Data: "invalid message format"})
				continue
			}

			if err := s.applyChatMessage(channel, user, msg); err != nil {
				send(ChatMessage{Type: "error", Data: err.Error()})
			}
		}
	}()

	<-ctx.Done()
	// Unblock the reader.
	conn.Close()
	wg.Wait()
	log.Info("chat websocket disconnected")
}

func (s *Server) applyChatMessage(channel string, user chat.User, msg ChatMessage) error {
	switch msg.Type {
	case "message":
		attachments := make([]chat.Attachment, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			att := chat.Attachment{Name: a.Name, URL: a.URL}
			if a.Content != "" {
				att.Content = []byte(a.Content)
			}
			attachments = append(attachments, att)
		}
		s.deps.Hub.PostAs(channel, user, msg.Content, attachments...)
		return nil
	case "react":
		return s.deps.Hub.ReactAs(channel, msg.MessageID, user, msg.Emoji)
	case "unreact":
		return s.deps.Hub.UnreactAs(channel, msg.MessageID, user, msg.Emoji)
	default:
		return fmt.Errorf("unknown message type: %q", msg.Type)
	}
}

func (s *Server) sendChatMessage(conn *websocket.Conn, msg ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal chat message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send chat message", "error", err)
		return err
	}
	return nil
}
