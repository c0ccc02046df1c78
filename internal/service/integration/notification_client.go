package integration

import (
	"context"
	"fmt"

	"github.com/RubachokBoss/thesis-service/internal/config"
	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/rs/zerolog"
)

type NotificationClient interface {
	Send(ctx context.Context, n *models.Notification) error
}

type notificationClient struct {
	http   *retryingClient
	logger zerolog.Logger
}

func NewNotificationClient(cfg config.ServiceConfig, logger zerolog.Logger) NotificationClient {
	return &notificationClient{
		http:   newRetryingClient(cfg, logger),
		logger: logger,
	}
}

func (c *notificationClient) Send(ctx context.Context, n *models.Notification) error {
	if err := c.http.postJSON(ctx, n, nil); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	c.logger.Info().
		Str("recipient_id", n.RecipientID).
		Str("template", n.Template).
		Msg("Notification sent")

	return nil
}
