package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"nova_messaging_service/internal/messaging/domain"
	"nova_messaging_service/internal/messaging/repository"
	"nova_messaging_service/pkg/database"
	logger "nova_messaging_service/pkg/logger"
	"nova_messaging_service/pkg/middlewares"
	testtool "nova_messaging_service/pkg/test_tool"
	"nova_messaging_service/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	messagingApp *fiber.App
	convUCIT     *ConversationUseCase
	messageUCIT  *MessageUseCase
	convRepoIT   repository.ConversationRepository
	msgRepoIT    repository.MessageRepository
	queueRepoIT  repository.OfflineQueueRepository
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	logger.SetNewNop()

	mongoContainer, mongoHost, mongoPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:latest",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		log.Fatalf("Failed to start MongoDB container: %v", err)
	}

	redisContainer, redisHost, redisPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:latest",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		log.Fatalf("Failed to start Redis container: %v", err)
	}

	mongo, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s", mongoHost, mongoPort),
		RetryCount:    5,
		RetryInterval: 5,
	}, "test_messaging_db")
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort),
		DB:   0,
	})

	convRepoIT = repository.NewMongoConversationRepository(mongo.Database)
	msgRepoIT = repository.NewMongoMessageRepository(mongo.Database)
	queueRepoIT = repository.NewMongoOfflineQueueRepository(mongo.Database)
	pubsub := repository.NewRedisPubSub(redisClient)

	registry := NewPresenceRegistry()
	broadcaster := NewRoomBroadcaster(registry, pubsub)

	convUCIT = NewConversationUseCase(convRepoIT, msgRepoIT, new(MockProfileProvider))
	messageUCIT = NewMessageUseCase(convRepoIT, msgRepoIT, queueRepoIT, registry, broadcaster, NewLoggingNotifier())
	offlineUC := NewOfflineUseCase(queueRepoIT, msgRepoIT, registry)

	wsHandler := NewMessagingWebsocketHandler(convUCIT, messageUCIT, offlineUC, registry, pubsub)

	messagingApp = fiber.New()
	messagingApp.Use(middlewares.JWTMiddleware())
	messagingApp.Get("/ws", websocket.New(func(c *websocket.Conn) {
		wsHandler.HandleConnection(context.Background(), c)
	}))

	go func() {
		if err := messagingApp.Listen(":8089"); err != nil {
			log.Fatalf("Failed to start WebSocket server: %v", err)
		}
	}()
	time.Sleep(3 * time.Second)

	code := m.Run()

	_ = messagingApp.Shutdown()
	mongo.Close(ctx)
	_ = mongoContainer.Terminate(ctx)
	_ = redisContainer.Terminate(ctx)

	os.Exit(code)
}

// dialWS open an authenticated websocket as userID
func dialWS(t *testing.T, userID string) *gws.Conn {
	t.Helper()
	jwt, err := token.GenerateJWT(userID, string(token.RoleUser), "messaging_service")
	assert.NoError(t, err)

	conn, _, err := gws.DefaultDialer.Dial("ws://127.0.0.1:8089/ws?auth="+jwt, nil)
	assert.NoError(t, err, "websocket dial failed")
	return conn
}

// readUntil read frames until one carries the wanted action
func readUntil(t *testing.T, conn *gws.Conn, action string) domain.WSResponse {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed waiting for %q: %v", action, err)
		}
		var resp domain.WSResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if resp.Action == action {
			return resp
		}
	}
	t.Fatalf("never received %q", action)
	return domain.WSResponse{}
}

func sendWS(t *testing.T, conn *gws.Conn, action domain.Action, payload interface{}) {
	t.Helper()
	b, err := json.Marshal(payload)
	assert.NoError(t, err)
	req, err := json.Marshal(domain.WSRequest{Action: action, Payload: b})
	assert.NoError(t, err)
	assert.NoError(t, conn.WriteMessage(gws.TextMessage, req))
}

func TestIntegration_RoomBroadcast(t *testing.T) {
	ctx := context.Background()
	alice := "it-alice-" + fmt.Sprint(time.Now().UnixNano())
	bob := "it-bob-" + fmt.Sprint(time.Now().UnixNano())

	conv, err := convUCIT.Create(ctx, alice, []string{bob}, false, "", "", "")
	assert.NoError(t, err)

	aliceConn := dialWS(t, alice)
	defer aliceConn.Close()
	bobConn := dialWS(t, bob)
	defer bobConn.Close()

	sendWS(t, aliceConn, domain.JoinRoom, domain.JoinRoomPayload{ConversationID: conv.ID})
	readUntil(t, aliceConn, string(domain.JoinRoom))
	sendWS(t, bobConn, domain.JoinRoom, domain.JoinRoomPayload{ConversationID: conv.ID})
	readUntil(t, bobConn, string(domain.JoinRoom))

	sendWS(t, aliceConn, domain.SendMessage, domain.SendMessagePayload{
		ConversationID: conv.ID,
		Text:           "hello bob",
	})

	// bob sees the broadcast, alice sees her ack
	event := readUntil(t, bobConn, string(domain.EventNewMessage))
	raw, _ := json.Marshal(event.Payload)
	var got domain.NewMessageEvent
	assert.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "hello bob", got.Message.Text)
	assert.Equal(t, alice, got.Message.SenderID)
	assert.Equal(t, int64(1), got.Message.Seq)

	ack := readUntil(t, aliceConn, string(domain.SendMessage))
	assert.True(t, ack.Success)
}

// a message sent while the recipient is away is queued and redelivered on
// reconnect
func TestIntegration_OfflineQueueRedelivery(t *testing.T) {
	ctx := context.Background()
	alice := "it-alice-off-" + fmt.Sprint(time.Now().UnixNano())
	bob := "it-bob-off-" + fmt.Sprint(time.Now().UnixNano())

	conv, err := convUCIT.Create(ctx, alice, []string{bob}, false, "", "", "")
	assert.NoError(t, err)

	// bob is offline, alice sends
	msg, err := messageUCIT.Send(ctx, alice, domain.SendMessagePayload{
		ConversationID: conv.ID,
		Text:           "catch up later",
	})
	assert.NoError(t, err)

	pending, err := queueRepoIT.FindPending(ctx, bob)
	assert.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, msg.ID, pending[0].Message.ID)

	// bob reconnects, the connect drain pushes the queued message
	bobConn := dialWS(t, bob)
	defer bobConn.Close()

	event := readUntil(t, bobConn, string(domain.EventQueuedMessage))
	raw, _ := json.Marshal(event.Payload)
	var got domain.NewMessageEvent
	assert.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "catch up later", got.Message.Text)

	// drained entries do not come back
	time.Sleep(500 * time.Millisecond)
	pending, err = queueRepoIT.FindPending(ctx, bob)
	assert.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIntegration_ReadReceiptBroadcast(t *testing.T) {
	ctx := context.Background()
	alice := "it-alice-read-" + fmt.Sprint(time.Now().UnixNano())
	bob := "it-bob-read-" + fmt.Sprint(time.Now().UnixNano())

	conv, err := convUCIT.Create(ctx, alice, []string{bob}, false, "", "", "")
	assert.NoError(t, err)

	aliceConn := dialWS(t, alice)
	defer aliceConn.Close()
	bobConn := dialWS(t, bob)
	defer bobConn.Close()

	sendWS(t, aliceConn, domain.JoinRoom, domain.JoinRoomPayload{ConversationID: conv.ID})
	readUntil(t, aliceConn, string(domain.JoinRoom))
	sendWS(t, bobConn, domain.JoinRoom, domain.JoinRoomPayload{ConversationID: conv.ID})
	readUntil(t, bobConn, string(domain.JoinRoom))

	msg, err := messageUCIT.Send(ctx, alice, domain.SendMessagePayload{
		ConversationID: conv.ID,
		Text:           "seen yet?",
	})
	assert.NoError(t, err)
	readUntil(t, bobConn, string(domain.EventNewMessage))

	sendWS(t, bobConn, domain.MarkRead, domain.MarkReadPayload{
		ConversationID: conv.ID,
		MessageIDs:     []string{msg.ID},
	})

	event := readUntil(t, aliceConn, string(domain.EventMessageRead))
	raw, _ := json.Marshal(event.Payload)
	var got domain.MessageReadEvent
	assert.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, msg.ID, got.MessageID)
	assert.Equal(t, bob, got.UserID)
}

func TestIntegration_RejectsMissingToken(t *testing.T) {
	_, _, err := gws.DefaultDialer.Dial("ws://127.0.0.1:8089/ws", nil)
	assert.Error(t, err, "unauthenticated websocket must be refused")
}

func countReceipts(readBy []domain.ReadReceipt, userID string) int {
	n := 0
	for _, r := range readBy {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

// repeated MarkRead for the same user must leave a single receipt
func TestIntegration_ReadReceiptIdempotent(t *testing.T) {
	ctx := context.Background()
	alice := "it-alice-rr-" + fmt.Sprint(time.Now().UnixNano())
	bob := "it-bob-rr-" + fmt.Sprint(time.Now().UnixNano())

	conv, err := convUCIT.Create(ctx, alice, []string{bob}, false, "", "", "")
	assert.NoError(t, err)

	msg, err := messageUCIT.Send(ctx, alice, domain.SendMessagePayload{
		ConversationID: conv.ID,
		Text:           "read me once",
	})
	assert.NoError(t, err)

	assert.NoError(t, msgRepoIT.MarkRead(ctx, msg.ID, bob, time.Now().Unix()))
	assert.NoError(t, msgRepoIT.MarkRead(ctx, msg.ID, bob, time.Now().Unix()))

	got, err := msgRepoIT.FindByID(ctx, msg.ID)
	assert.NoError(t, err)
	// sender receipt seeded on insert plus exactly one for bob
	assert.Len(t, got.ReadBy, 2)
	assert.Equal(t, 1, countReceipts(got.ReadBy, bob))
}

// receipts landing in parallel from different users must all persist,
// one entry each
func TestIntegration_ConcurrentReadReceipts(t *testing.T) {
	ctx := context.Background()
	alice := "it-alice-crr-" + fmt.Sprint(time.Now().UnixNano())
	bob := "it-bob-crr-" + fmt.Sprint(time.Now().UnixNano())
	carol := "it-carol-crr-" + fmt.Sprint(time.Now().UnixNano())

	conv, err := convUCIT.Create(ctx, alice, []string{bob, carol}, true, "trio", "", "")
	assert.NoError(t, err)

	msg, err := messageUCIT.Send(ctx, alice, domain.SendMessagePayload{
		ConversationID: conv.ID,
		Text:           "all hands",
	})
	assert.NoError(t, err)

	var wg sync.WaitGroup
	for _, reader := range []string{bob, carol} {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			assert.NoError(t, msgRepoIT.MarkRead(ctx, msg.ID, userID, time.Now().Unix()))
		}(reader)
	}
	wg.Wait()

	got, err := msgRepoIT.FindByID(ctx, msg.ID)
	assert.NoError(t, err)
	assert.Len(t, got.ReadBy, 3)
	for _, reader := range []string{alice, bob, carol} {
		assert.Equal(t, 1, countReceipts(got.ReadBy, reader), "one receipt for %s", reader)
	}
}

func TestIntegration_MarkAllReadIdempotent(t *testing.T) {
	ctx := context.Background()
	alice := "it-alice-mar-" + fmt.Sprint(time.Now().UnixNano())
	bob := "it-bob-mar-" + fmt.Sprint(time.Now().UnixNano())

	conv, err := convUCIT.Create(ctx, alice, []string{bob}, false, "", "", "")
	assert.NoError(t, err)

	for _, text := range []string{"first", "second"} {
		_, err := messageUCIT.Send(ctx, alice, domain.SendMessagePayload{
			ConversationID: conv.ID,
			Text:           text,
		})
		assert.NoError(t, err)
	}

	ids, err := msgRepoIT.MarkAllRead(ctx, conv.ID, bob, time.Now().Unix())
	assert.NoError(t, err)
	assert.Len(t, ids, 2)

	ids, err = msgRepoIT.MarkAllRead(ctx, conv.ID, bob, time.Now().Unix())
	assert.NoError(t, err)
	assert.Empty(t, ids, "second pass has nothing left to receipt")
}

// the unique direct_key index lets only one insert through for a pair
func TestIntegration_DirectPairSingleInsert(t *testing.T) {
	ctx := context.Background()
	alice := "it-alice-dk-" + fmt.Sprint(time.Now().UnixNano())
	bob := "it-bob-dk-" + fmt.Sprint(time.Now().UnixNano())
	now := time.Now().Unix()

	first := &domain.Conversation{
		ID:             uuid.New().String(),
		ParticipantIDs: []string{alice, bob},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	assert.NoError(t, convRepoIT.Create(ctx, first))

	second := &domain.Conversation{
		ID:             uuid.New().String(),
		ParticipantIDs: []string{bob, alice},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := convRepoIT.Create(ctx, second)
	assert.ErrorIs(t, err, domain.ErrConversationExists)

	winner, err := convRepoIT.FindOneDirect(ctx, alice, bob)
	assert.NoError(t, err)
	assert.Equal(t, first.ID, winner.ID)
}
