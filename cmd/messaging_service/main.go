package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"nova_messaging_service/internal/messaging/app"
	"nova_messaging_service/internal/messaging/domain"
	"nova_messaging_service/internal/messaging/repository"
	"nova_messaging_service/internal/messaging/router"
	"nova_messaging_service/pkg/config"
	"nova_messaging_service/pkg/database"
	logger "nova_messaging_service/pkg/logger"
	testtool "nova_messaging_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.MessagingService, config.EnvConfig.MessagingServiceLogPath)
	cfg := config.LoadConfig[config.Messaging](config.EnvConfig.MessagingService, config.EnvConfig.MessagingServiceYAMLPath)

	testtool.StartPprof()

	ctx := context.Background()

	// 1. mongo holds conversations, messages and the offline queue
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", uri)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// 2. redis carries event channels and the profile cache
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	// 3. minio holds media attachments
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.MinIO.Endpoint,
		User:          cfg.MinIO.User,
		Password:      cfg.MinIO.Password,
		BucketName:    cfg.MinIO.Bucket,
		UseSSL:        cfg.MinIO.UseSSL,
		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect minio err : %v", err))
	}

	// 4. repositories
	convRepo := repository.NewMongoConversationRepository(mongo.Database)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	queueRepo := repository.NewMongoOfflineQueueRepository(mongo.Database)
	mediaRepo := repository.NewMinIOMediaRepository(minioClient)
	pubsub := repository.NewRedisPubSub(redisClient)

	memberBase := fmt.Sprintf("http://%s:%s", cfg.MemberService.Name, cfg.MemberService.Port)
	profiles := repository.NewCachedProfileProvider(
		database.NewRedisRepository[domain.UserProfile](redisClient),
		repository.NewMemberProfileClient(memberBase),
	)

	// 5. usecases
	registry := app.NewPresenceRegistry()
	broadcaster := app.NewRoomBroadcaster(registry, pubsub)
	notifier := app.NewLoggingNotifier()

	convUC := app.NewConversationUseCase(convRepo, msgRepo, profiles)
	messageUC := app.NewMessageUseCase(convRepo, msgRepo, queueRepo, registry, broadcaster, notifier)
	offlineUC := app.NewOfflineUseCase(queueRepo, msgRepo, registry)

	// 6. fiber
	r := fiber.New()
	if config.IsLocal() {
		// local runs log requests straight to stdout
		r.Use(fiber_log.New())
	} else {
		file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.MessagingServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer file.Close()

		r.Use(fiber_log.New(fiber_log.Config{
			Output: file,
		}))
	}

	router.RegisterRoutes(r,
		app.NewMessagingWebsocketHandler(convUC, messageUC, offlineUC, registry, pubsub),
		app.NewMessagingHTTPHandler(convUC, messageUC, offlineUC, mediaRepo),
	)

	port := ":" + cfg.Port
	log.Printf("Messaging Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
