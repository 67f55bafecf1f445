package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/pkg/validation"
)

// AreaService creates and deletes user-defined areas.
type AreaService struct {
	areas    ports.AreasAPI
	notifier ports.Notifier
}

// NewAreaService creates a new AreaService.
func NewAreaService(areas ports.AreasAPI, notifier ports.Notifier) *AreaService {
	return &AreaService{areas: areas, notifier: notifier}
}

// Create validates the draft and creates the area.
func (s *AreaService) Create(ctx context.Context, draft domain.AreaDraft) (*domain.Area, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	if err := validation.Struct(&draft); err != nil {
		return nil, err
	}
	a, err := s.areas.CreateArea(ctx, draft)
	if err != nil {
		s.notify(domain.NoticeError, "Failed to create area")
		return nil, fmt.Errorf("create area: %w", err)
	}
	s.notify(domain.NoticeSuccess, fmt.Sprintf("Area %q created", a.Name))
	return a, nil
}

// Delete removes an area.
func (s *AreaService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.Invalid("id", "must be greater than 0")
	}
	if err := s.areas.DeleteArea(ctx, id); err != nil {
		s.notify(domain.NoticeError, "Failed to delete area")
		return fmt.Errorf("delete area %d: %w", id, err)
	}
	s.notify(domain.NoticeSuccess, "Area deleted")
	return nil
}

func (s *AreaService) notify(level domain.NoticeLevel, msg string) {
	if s.notifier != nil {
		s.notifier.Notify(level, msg)
	}
}
