package app

import (
	"context"

	"nova_messaging_service/internal/messaging/domain"
	logger "nova_messaging_service/pkg/logger"

	"go.uber.org/zap"
)

// loggingNotifier default OfflinePushNotifier that only logs. A real push
// gateway (APNS/FCM) plugs in behind the same interface.
type loggingNotifier struct{}

// NewLoggingNotifier create the log-only push notifier
func NewLoggingNotifier() domain.OfflinePushNotifier {
	return &loggingNotifier{}
}

// NotifyOffline log the would-be push and report success
func (n *loggingNotifier) NotifyOffline(_ context.Context, userID, summary string) error {
	logger.Log.Info("offline push",
		zap.String("user_id", userID),
		zap.String("summary", summary))
	return nil
}
