package service

import (
	"fmt"

	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/tracking"
)

// Compile-time check: *TrackingService must satisfy domain.TrackingService.
var _ domain.TrackingService = (*TrackingService)(nil)

// TrackingService exposes the resolved tracking configuration to tooling.
type TrackingService struct {
	registry *tracking.Registry
}

// NewTrackingService creates a TrackingService over registry.
func NewTrackingService(registry *tracking.Registry) *TrackingService {
	return &TrackingService{registry: registry}
}

// TrackedTypes returns the names of every registered type, sorted.
func (s *TrackingService) TrackedTypes() []string {
	return s.registry.Types()
}

// Prepared returns the read-only view of a type's tracking spec.
func (s *TrackingService) Prepared(typeName string) (tracking.Prepared, error) {
	spec, ok := s.registry.Spec(typeName)
	if !ok {
		return tracking.Prepared{}, fmt.Errorf("tracking spec %s: %w", typeName, models.ErrNotFound)
	}

	return spec.Prepared(), nil
}
