package app

import (
	"errors"
	"net/http"

	"nova_messaging_service/internal/messaging/domain"
	"nova_messaging_service/internal/messaging/repository"
	logger "nova_messaging_service/pkg/logger"
	"nova_messaging_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
)

// MessagingHTTPHandler REST surface of the messaging service
type MessagingHTTPHandler struct {
	convUC    *ConversationUseCase
	messageUC *MessageUseCase
	offlineUC *OfflineUseCase
	mediaRepo repository.MediaRepository
}

// NewMessagingHTTPHandler create MessagingHTTPHandler
func NewMessagingHTTPHandler(
	convUC *ConversationUseCase,
	messageUC *MessageUseCase,
	offlineUC *OfflineUseCase,
	mediaRepo repository.MediaRepository,
) *MessagingHTTPHandler {
	return &MessagingHTTPHandler{
		convUC:    convUC,
		messageUC: messageUC,
		offlineUC: offlineUC,
		mediaRepo: mediaRepo,
	}
}

// userID caller identity set by the JWT middleware
func userID(c *fiber.Ctx) string {
	id, _ := c.Locals(middlewares.TokenUserID).(string)
	return id
}

// statusOf map a domain error to its HTTP status
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, domain.ErrNotSender):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDirectParticipants),
		errors.Is(err, domain.ErrEmptyParticipants),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrEncryptedPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEncryptedImmutable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Log.Errorf("request failed", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// createConversationReq request body of CreateConversation
type createConversationReq struct {
	ParticipantIDs []string `json:"participantIds"`
	IsGroup        bool     `json:"isGroup"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	GroupImage     string   `json:"groupImage"`
}

// CreateConversation godoc
// @Summary Create a conversation
// @Description Creates a group conversation, or returns the existing two-party conversation for the same pair
// @Tags Conversations
// @Accept json
// @Produce json
// @Param body body createConversationReq true "Conversation settings"
// @Success 201 {object} domain.Conversation
// @Failure 400 {object} string "Bad Request"
// @Router /conversations [post]
func (h *MessagingHTTPHandler) CreateConversation(c *fiber.Ctx) error {
	var req createConversationReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}

	conv, err := h.convUC.Create(c.UserContext(), userID(c),
		req.ParticipantIDs, req.IsGroup, req.Name, req.Description, req.GroupImage)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(conv)
}

// ListConversations godoc
// @Summary List the caller's conversations
// @Description Conversations sorted by recent activity, annotated with last message, unread count, caller settings and participant profiles
// @Tags Conversations
// @Produce json
// @Success 200 {object} fiber.Map
// @Router /conversations [get]
func (h *MessagingHTTPHandler) ListConversations(c *fiber.Ctx) error {
	ctx := c.UserContext()
	uid := userID(c)

	summaries, err := h.convUC.List(ctx, uid)
	if err != nil {
		return fail(c, err)
	}

	// one profile lookup per distinct participant across the page
	var ids []string
	for _, s := range summaries {
		ids = append(ids, s.ParticipantIDs...)
	}
	profiles := h.convUC.Profiles(ctx, ids)

	return c.JSON(fiber.Map{
		"conversations": summaries,
		"profiles":      profiles,
	})
}

// UpdateSettings godoc
// @Summary Update the caller's conversation settings
// @Description Archive or mute state, visible only to the caller
// @Tags Conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param body body domain.ConversationSettings true "Settings"
// @Success 200 {object} fiber.Map
// @Failure 403 {object} string "Forbidden"
// @Router /conversations/{id}/settings [patch]
func (h *MessagingHTTPHandler) UpdateSettings(c *fiber.Ctx) error {
	var settings domain.ConversationSettings
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}

	if err := h.convUC.UpdateSettings(c.UserContext(), c.Params("id"), userID(c), settings); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// sendMessageReq request body of SendMessage; a non-empty ciphertext selects
// the encrypted variant
type sendMessageReq struct {
	Text          string             `json:"text"`
	MessageType   domain.MessageType `json:"messageType"`
	MediaRef      string             `json:"mediaRef"`
	FileName      string             `json:"fileName"`
	FileSize      int64              `json:"fileSize"`
	ReplyTo       string             `json:"replyTo"`
	ForwardedFrom string             `json:"forwardedFrom"`
	Ciphertext    []byte             `json:"ciphertext"`
	Nonce         []byte             `json:"nonce"`
}

// SendMessage godoc
// @Summary Send a message
// @Description Persists the message, broadcasts it to the room and queues it for offline participants
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param body body sendMessageReq true "Message content"
// @Success 201 {object} domain.Message
// @Failure 403 {object} string "Forbidden"
// @Router /conversations/{id}/messages [post]
func (h *MessagingHTTPHandler) SendMessage(c *fiber.Ctx) error {
	var req sendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}

	convID := c.Params("id")
	uid := userID(c)

	var (
		msg *domain.Message
		err error
	)
	if len(req.Ciphertext) > 0 {
		msg, err = h.messageUC.SendEncrypted(c.UserContext(), uid, domain.SendEncryptedPayload{
			ConversationID: convID,
			Ciphertext:     req.Ciphertext,
			Nonce:          req.Nonce,
		})
	} else {
		msg, err = h.messageUC.Send(c.UserContext(), uid, domain.SendMessagePayload{
			ConversationID: convID,
			Text:           req.Text,
			MessageType:    req.MessageType,
			MediaRef:       req.MediaRef,
			FileName:       req.FileName,
			FileSize:       req.FileSize,
			ReplyTo:        req.ReplyTo,
			ForwardedFrom:  req.ForwardedFrom,
		})
	}
	if err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(msg)
}

// ListMessages godoc
// @Summary Conversation history
// @Description Chronological page; before pages backwards from a message seq, limit caps the page size
// @Tags Messages
// @Produce json
// @Param id path string true "Conversation ID"
// @Param before query int false "Page before this seq"
// @Param limit query int false "Page size"
// @Success 200 {array} domain.Message
// @Failure 403 {object} string "Forbidden"
// @Router /conversations/{id}/messages [get]
func (h *MessagingHTTPHandler) ListMessages(c *fiber.Ctx) error {
	before := int64(c.QueryInt("before", 0))
	limit := int64(c.QueryInt("limit", 50))

	msgs, err := h.messageUC.History(c.UserContext(), c.Params("id"), userID(c), before, limit)
	if err != nil {
		return fail(c, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return c.JSON(msgs)
}

// MarkMessageRead godoc
// @Summary Mark one message read
// @Description Adds the caller's read receipt; repeating is a no-op
// @Tags Messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} fiber.Map
// @Failure 404 {object} string "Not Found"
// @Router /messages/{id}/read [post]
func (h *MessagingHTTPHandler) MarkMessageRead(c *fiber.Ctx) error {
	if err := h.messageUC.MarkMessageRead(c.UserContext(), c.Params("id"), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// MarkAllRead godoc
// @Summary Mark a whole conversation read
// @Description Adds the caller's read receipt to every unread message
// @Tags Messages
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} fiber.Map
// @Failure 403 {object} string "Forbidden"
// @Router /conversations/{id}/read-all [post]
func (h *MessagingHTTPHandler) MarkAllRead(c *fiber.Ctx) error {
	ids, err := h.messageUC.MarkAllRead(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "messageIds": ids})
}

// typingReq request body of Typing
type typingReq struct {
	IsTyping bool `json:"isTyping"`
}

// Typing godoc
// @Summary Relay a typing indicator
// @Description Ephemeral broadcast to the room, nothing is stored
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param body body typingReq true "Typing state"
// @Success 200 {object} fiber.Map
// @Router /conversations/{id}/typing [post]
func (h *MessagingHTTPHandler) Typing(c *fiber.Ctx) error {
	var req typingReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}

	if err := h.messageUC.Typing(c.UserContext(), c.Params("id"), userID(c), req.IsTyping); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Sync godoc
// @Summary Drain the caller's offline queue
// @Description Returns every queued message in FIFO order and marks the entries sent
// @Tags Sync
// @Produce json
// @Success 200 {object} fiber.Map
// @Router /sync [post]
func (h *MessagingHTTPHandler) Sync(c *fiber.Ctx) error {
	delivered, err := h.offlineUC.Drain(c.UserContext(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	if delivered == nil {
		delivered = []domain.Message{}
	}
	return c.JSON(fiber.Map{"messages": delivered})
}

// SyncStatus godoc
// @Summary Undeliverable message report
// @Description Queue entries that exhausted their delivery retries; by default the caller's own messages, scope=recipient lists entries that were addressed to the caller
// @Tags Sync
// @Produce json
// @Param scope query string false "sender (default) or recipient"
// @Success 200 {object} fiber.Map
// @Router /sync/status [get]
func (h *MessagingHTTPHandler) SyncStatus(c *fiber.Ctx) error {
	var (
		failed []domain.OfflineQueueEntry
		err    error
	)
	if c.Query("scope") == "recipient" {
		failed, err = h.offlineUC.FailedFor(c.UserContext(), userID(c))
	} else {
		failed, err = h.offlineUC.FailedBySender(c.UserContext(), userID(c))
	}
	if err != nil {
		return fail(c, err)
	}
	if failed == nil {
		failed = []domain.OfflineQueueEntry{}
	}
	return c.JSON(fiber.Map{"failed": failed})
}

// UploadMedia godoc
// @Summary Upload a media attachment
// @Description Stores the raw body in object storage and returns a media reference plus a presigned download URL
// @Tags Media
// @Accept octet-stream
// @Produce json
// @Success 201 {object} fiber.Map
// @Failure 400 {object} string "Bad Request"
// @Router /media [post]
func (h *MessagingHTTPHandler) UploadMedia(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "empty body"})
	}

	contentType := c.Get(fiber.HeaderContentType, "application/octet-stream")
	ref, err := h.mediaRepo.Upload(c.UserContext(), body, contentType)
	if err != nil {
		return fail(c, err)
	}

	url, err := h.mediaRepo.PresignURL(c.UserContext(), ref)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"mediaRef": ref, "url": url})
}

// editMessageReq request body of EditMessage
type editMessageReq struct {
	Text string `json:"text"`
}

// EditMessage godoc
// @Summary Edit a message
// @Description Replaces the text of one of the caller's own messages
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param body body editMessageReq true "New text"
// @Success 200 {object} domain.Message
// @Failure 403 {object} string "Forbidden"
// @Router /messages/{id} [put]
func (h *MessagingHTTPHandler) EditMessage(c *fiber.Ctx) error {
	var req editMessageReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}

	msg, err := h.messageUC.Edit(c.UserContext(), c.Params("id"), userID(c), req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msg)
}
