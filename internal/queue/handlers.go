package queue

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// HandlersRegistry maps task types like TypeKeyRotation onto their
// workers and logs each registration so the worker's task surface shows
// up at startup.
type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
	slog.Info("registered task handler", "type", taskType)
}

// RegisterFunc registers a plain ProcessTask-shaped function.
func (r *HandlersRegistry) RegisterFunc(taskType string, fn func(context.Context, *asynq.Task) error) {
	r.Register(taskType, asynq.HandlerFunc(fn))
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}
