package integration

import (
	"context"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// OnCreateHook is invoked after a recommendation is admitted and persisted.
// Hook failures are logged, never propagated: a slow or broken hook must
// not affect the admission loop (spec §4.7 "expose hooks").
type OnCreateHook func(ctx context.Context, rec *model.Recommendation) error

// RegisterOnCreate adds a hook to the registry. Hooks run concurrently,
// each in its own goroutine, grounded on the teacher's EventBus.Publish
// (internal/events/bus.go) firing every subscriber without blocking the
// publisher.
func (s *Service) RegisterOnCreate(hook OnCreateHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCreateHooks = append(s.onCreateHooks, hook)
}

func (s *Service) fireOnCreate(rec *model.Recommendation) {
	s.mu.Lock()
	hooks := append([]OnCreateHook(nil), s.onCreateHooks...)
	s.mu.Unlock()

	for _, hook := range hooks {
		go func(h OnCreateHook) {
			ctx := context.Background()
			if err := h(ctx, rec); err != nil {
				s.log.Warn().Err(err).Str("recommendation_id", rec.ID).Msg("onCreate hook failed")
			}
		}(hook)
	}
}
