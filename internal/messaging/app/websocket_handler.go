package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"nova_messaging_service/internal/messaging/domain"
	"nova_messaging_service/internal/messaging/repository"
	logger "nova_messaging_service/pkg/logger"
	"nova_messaging_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// sendBufferSize per-session outbound event buffer. A full buffer fails the
// send instead of blocking the caller.
const sendBufferSize = 64

// wsSession domain.Session over one fiber websocket connection. All writes
// funnel through a single pump goroutine because the connection is not safe
// for concurrent writers.
type wsSession struct {
	userID string
	conn   *websocket.Conn
	sendCh chan domain.WSResponse
	done   chan struct{}
	once   sync.Once
}

func newWSSession(userID string, conn *websocket.Conn) *wsSession {
	return &wsSession{
		userID: userID,
		conn:   conn,
		sendCh: make(chan domain.WSResponse, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// UserID owner of the session
func (s *wsSession) UserID() string { return s.userID }

// Send enqueue one event for the write pump, failing fast when the session
// is gone or the buffer is full
func (s *wsSession) Send(resp domain.WSResponse) error {
	select {
	case <-s.done:
		return errors.New("session closed")
	default:
	}

	select {
	case s.sendCh <- resp:
		return nil
	default:
		return errors.New("session send buffer full")
	}
}

// Close stop the write pump; the read loop notices through the closed conn
func (s *wsSession) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// writePump drain sendCh onto the connection until the session closes
func (s *wsSession) writePump() {
	for {
		select {
		case resp := <-s.sendCh:
			b, err := json.Marshal(resp)
			if err != nil {
				logger.Log.Errorf("marshal event error:", err)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Log.Errorf("write message error:", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// MessagingWebsocketHandler websocket entry point of the messaging service
type MessagingWebsocketHandler struct {
	convUC    *ConversationUseCase
	messageUC *MessageUseCase
	offlineUC *OfflineUseCase
	registry  PresenceRegistry
	pubsub    repository.PubSub
}

// NewMessagingWebsocketHandler create MessagingWebsocketHandler
func NewMessagingWebsocketHandler(
	convUC *ConversationUseCase,
	messageUC *MessageUseCase,
	offlineUC *OfflineUseCase,
	registry PresenceRegistry,
	pubsub repository.PubSub,
) *MessagingWebsocketHandler {
	return &MessagingWebsocketHandler{
		convUC:    convUC,
		messageUC: messageUC,
		offlineUC: offlineUC,
		registry:  registry,
		pubsub:    pubsub,
	}
}

// HandleConnection websocket connection lifecycle: register presence, drain
// the offline queue, then serve actions until the client disconnects
func (h *MessagingWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID, ok := conn.Locals(middlewares.TokenUserID).(string)
	if !ok || userID == "" {
		logger.Log.Error("websocket connection without user id")
		conn.Close()
		return
	}
	logger.Log.Info("websocket connect", zap.String("user_id", userID))

	session := newWSSession(userID, conn)
	go session.writePump()

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		cancel()

		// announce offline to the rooms the session was in, then drop it.
		// A session replaced by a newer connection stays quiet so the new
		// one is not reported offline.
		current, _ := h.registry.SessionOf(userID)
		rooms := h.registry.RoomsOf(userID)
		h.registry.Unregister(userID, session)
		if current == domain.Session(session) {
			h.broadcastStatus(userID, rooms, false)
		}

		session.Close()
		logger.Log.Info("websocket close", zap.String("user_id", userID))
	}()

	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("websocket closed:", conn.RemoteAddr())
		return nil
	})
	conn.SetPongHandler(func(appData string) error {
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	// last-connect-wins: an older session for the same user gets closed
	h.registry.Register(userID, session)

	// events addressed to this user from any process arrive on their channel
	if err := h.pubsub.Subscribe(ctxClose, UserChannel(userID), func(resp domain.WSResponse) {
		if err := session.Send(resp); err != nil {
			logger.Log.Warn("user channel drop",
				zap.String("user_id", userID), zap.Error(err))
		}
	}); err != nil {
		logger.Log.Errorf("user channel subscribe error:", err)
	}

	// everything queued while the user was away goes out first
	if _, err := h.offlineUC.Drain(ctx, userID); err != nil {
		logger.Log.Errorf("offline drain error:", err)
	}

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(
					websocket.PingMessage,
					[]byte("ping"),
					time.Now().Add(5*time.Second),
				); err != nil {
					logger.Log.Errorf("ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			h.sendError(session, "unknown message type")
			continue
		}
		h.textMessageAction(ctx, session, message)
	}
}

// textMessageAction decode one request envelope and dispatch its action
func (h *MessagingWebsocketHandler) textMessageAction(ctx context.Context, session *wsSession, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		h.sendError(session, "malformed request")
		return
	}

	userID := session.UserID()
	resp := domain.WSResponse{Action: string(req.Action), Success: false}

	switch req.Action {
	case domain.JoinRoom:
		var p domain.JoinRoomPayload
		if err := req.DecodePayload(&p); err != nil {
			resp.Error = err.Error()
			break
		}
		// only participants may subscribe to a room
		if _, err := h.convUC.Get(ctx, p.ConversationID, userID); err != nil {
			resp.Error = err.Error()
			break
		}
		h.registry.JoinRoom(userID, p.ConversationID)
		h.broadcastStatus(userID, []string{p.ConversationID}, true)
		unread, err := h.messageUC.UnreadCount(ctx, p.ConversationID, userID)
		if err != nil {
			logger.Log.Warn("unread count failed",
				zap.String("conversation_id", p.ConversationID), zap.Error(err))
		}
		resp.Success = true
		resp.Payload = map[string]interface{}{
			"conversationId": p.ConversationID,
			"unreadCount":    unread,
		}

	case domain.LeaveRoom:
		var p domain.JoinRoomPayload
		if err := req.DecodePayload(&p); err != nil {
			resp.Error = err.Error()
			break
		}
		h.registry.LeaveRoom(userID, p.ConversationID)
		h.broadcastStatus(userID, []string{p.ConversationID}, false)
		resp.Success = true
		resp.Payload = map[string]interface{}{"conversationId": p.ConversationID}

	case domain.SendMessage:
		var p domain.SendMessagePayload
		if err := req.DecodePayload(&p); err != nil {
			resp.Error = err.Error()
			break
		}
		sent, err := h.messageUC.Send(ctx, userID, p)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Success = true
		resp.Payload = domain.NewMessageEvent{Message: sent}

	case domain.SendEncrypted:
		var p domain.SendEncryptedPayload
		if err := req.DecodePayload(&p); err != nil {
			resp.Error = err.Error()
			break
		}
		sent, err := h.messageUC.SendEncrypted(ctx, userID, p)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Success = true
		resp.Payload = domain.NewMessageEvent{Message: sent}

	case domain.TypingStart, domain.TypingStop:
		var p domain.TypingPayload
		if err := req.DecodePayload(&p); err != nil {
			resp.Error = err.Error()
			break
		}
		if err := h.messageUC.Typing(ctx, p.ConversationID, userID, req.Action == domain.TypingStart); err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Success = true

	case domain.MarkRead:
		var p domain.MarkReadPayload
		if err := req.DecodePayload(&p); err != nil {
			resp.Error = err.Error()
			break
		}
		var failed []string
		for _, id := range p.MessageIDs {
			if err := h.messageUC.MarkMessageRead(ctx, id, userID); err != nil {
				failed = append(failed, id)
			}
		}
		if len(failed) > 0 {
			resp.Error = "some messages could not be marked read"
			resp.Payload = map[string]interface{}{"failedIds": failed}
			break
		}
		resp.Success = true

	case domain.SyncQueue:
		delivered, err := h.offlineUC.Drain(ctx, userID)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Success = true
		resp.Payload = map[string]interface{}{"deliveredCount": len(delivered)}

	default:
		resp.Error = "unknown action"
	}

	if resp.Error != "" {
		logger.Log.Error("websocket action error",
			zap.String("user_id", userID),
			zap.String("action", string(req.Action)),
			zap.String("err", resp.Error))
	}
	if err := session.Send(resp); err != nil {
		logger.Log.Errorf("send response error:", err)
	}
}

// broadcastStatus announce online/offline to a set of rooms
func (h *MessagingWebsocketHandler) broadcastStatus(userID string, conversationIDs []string, online bool) {
	for _, convID := range conversationIDs {
		h.messageUC.broadcaster.Broadcast(convID, domain.WSResponse{
			Action:  string(domain.EventUserStatusChange),
			Success: true,
			Payload: domain.UserStatusEvent{UserID: userID, Online: online},
		}, userID)
	}
}

func (h *MessagingWebsocketHandler) sendError(session *wsSession, errorMsg string) {
	resp := domain.WSResponse{
		Action:  "error",
		Success: false,
		Error:   errorMsg,
	}
	if err := session.Send(resp); err != nil {
		logger.Log.Errorf("send error response error:", err)
	}
}
