package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/storagelabels/backend/internal/queue"
	"github.com/storagelabels/backend/internal/service"
)

type RotationWorker struct {
	keys *service.KeyService
}

func NewRotationWorker(keys *service.KeyService) *RotationWorker {
	return &RotationWorker{keys: keys}
}

func (w *RotationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.KeyRotationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	rotationID, err := uuid.Parse(payload.RotationID)
	if err != nil {
		return fmt.Errorf("parse rotation ID: %w", err)
	}

	slog.Info("running key rotation", "rotation_id", rotationID)
	if err := w.keys.RunRotation(ctx, rotationID); err != nil {
		return fmt.Errorf("run rotation %s: %w", rotationID, err)
	}
	slog.Info("key rotation finished", "rotation_id", rotationID)
	return nil
}
