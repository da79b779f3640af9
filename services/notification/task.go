package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"casa-arrears/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var TaskModule = fx.Module("task.notification",
	fx.Provide(NewTask),
)

// Task delivers queued notifications to the platform dispatch endpoint.
// Failures are returned to asynq so the queue's retry policy applies.
type Task struct {
	endpoint string
	client   *http.Client
}

type TaskParams struct {
	fx.In
	Config *config.Config
}

func NewTask(p TaskParams) *Task {
	return &Task{
		endpoint: p.Config.Notification.DispatchURL,
		client: &http.Client{
			Timeout: p.Config.Notification.Timeout,
		},
	}
}

func (s *Task) HandleDispatchTask(ctx context.Context, t *asynq.Task) error {
	var payload Notification
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("user_id", payload.UserID),
		zap.String("notification_type", payload.Type),
	)

	if s.endpoint == "" {
		zapLog.Warn("notification dispatch endpoint not configured, dropping notification")
		return nil
	}

	start := time.Now()
	if err := s.post(ctx, payload); err != nil {
		zapLog.Error("failed to deliver notification", zap.Error(err))
		return err
	}

	zapLog.Info("notification delivered", zap.Duration("duration", time.Since(start)))
	return nil
}

func (s *Task) post(ctx context.Context, payload Notification) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("dispatch endpoint returned %d", resp.StatusCode)
	}

	return nil
}
