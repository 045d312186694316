package service

import (
	"context"
	"log"

	"github.com/reviewhub/review-engine/internal/archive"
	"github.com/reviewhub/review-engine/internal/audit"
	"github.com/reviewhub/review-engine/internal/store"
)

const auditActor = "service:review-engine"

type Service struct {
	store     store.Store
	publisher audit.Publisher
	archiver  archive.Archiver
}

// New wires the review service. publisher and archiver may be nil; audit
// events are then dropped and result archiving is unavailable.
func New(st store.Store, publisher audit.Publisher, archiver archive.Archiver) *Service {
	if publisher == nil {
		publisher = audit.NopPublisher{}
	}
	return &Service{
		store:     st,
		publisher: publisher,
		archiver:  archiver,
	}
}

// emit publishes best-effort: audit stream trouble never fails the operation.
func (s *Service) emit(ctx context.Context, ev audit.Event) {
	ev.Actor = auditActor
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("[audit] publish %s: %v", ev.Type, err)
	}
}
