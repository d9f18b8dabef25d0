package router

import (
	"context"

	"nova_messaging_service/internal/messaging/app"
	"nova_messaging_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes wire the messaging REST surface and the websocket endpoint
func RegisterRoutes(r *fiber.App, ws *app.MessagingWebsocketHandler, h *app.MessagingHTTPHandler) {
	r.Get("/swagger/*", swagger.HandlerDefault)

	r.Use(middlewares.JWTMiddleware())

	r.Post("/conversations", h.CreateConversation)
	r.Get("/conversations", h.ListConversations)
	r.Patch("/conversations/:id/settings", h.UpdateSettings)
	r.Post("/conversations/:id/messages", h.SendMessage)
	r.Get("/conversations/:id/messages", h.ListMessages)
	r.Post("/conversations/:id/read-all", h.MarkAllRead)
	r.Post("/conversations/:id/typing", h.Typing)

	r.Post("/messages/:id/read", h.MarkMessageRead)
	r.Put("/messages/:id", h.EditMessage)

	r.Post("/sync", h.Sync)
	r.Get("/sync/status", h.SyncStatus)

	r.Post("/media", h.UploadMedia)

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		ws.HandleConnection(context.Background(), c)
	}))
}
