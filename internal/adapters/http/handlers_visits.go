package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/usecases"
)

// ListVisitsHandler lists the loaded visits, optionally filtered by status.
func ListVisitsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		status := domain.VisitStatus(c.Query("status"))
		if status != "" && !status.Valid() {
			return errBadRequest(c, "status must be suggested, confirmed or declined")
		}
		return c.JSON(v.Visits.Visits(status))
	}
}

// GetVisitHandler returns one loaded visit.
func GetVisitHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		id, err := int64Param(c, "vid")
		if err != nil {
			return errFromDomain(c, err)
		}
		visit, ok := v.Visits.Get(id)
		if !ok {
			return errNotFound(c, "visit not found")
		}
		return c.JSON(visit)
	}
}

// CreateVisitHandler creates a user-defined visit.
func CreateVisitHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var draft domain.VisitDraft
		if err := c.BodyParser(&draft); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		visit, err := v.Visits.Create(c.UserContext(), draft)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(visit)
	}
}

// VisitTransitionHandler confirms or declines a suggested visit.
func VisitTransitionHandler(deps *Dependencies, to domain.VisitStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		id, err := int64Param(c, "vid")
		if err != nil {
			return errFromDomain(c, err)
		}

		var visit *domain.Visit
		if to == domain.VisitConfirmed {
			visit, err = v.Visits.Confirm(c.UserContext(), id)
		} else {
			visit, err = v.Visits.Decline(c.UserContext(), id)
		}
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(visit)
	}
}

type updateVisitRequest struct {
	Name    *string `json:"name"`
	PlaceID *int64  `json:"place_id"`
}

// UpdateVisitHandler renames a visit and/or assigns it to a place.
func UpdateVisitHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		id, err := int64Param(c, "vid")
		if err != nil {
			return errFromDomain(c, err)
		}
		var req updateVisitRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Name == nil && req.PlaceID == nil {
			return errBadRequest(c, "name or place_id is required")
		}

		var visit *domain.Visit
		if req.Name != nil {
			if visit, err = v.Visits.Rename(c.UserContext(), id, *req.Name); err != nil {
				return errFromDomain(c, err)
			}
		}
		if req.PlaceID != nil {
			if visit, err = v.Visits.AssignPlace(c.UserContext(), id, *req.PlaceID); err != nil {
				return errFromDomain(c, err)
			}
		}
		return c.JSON(visit)
	}
}

// DeleteVisitHandler deletes a visit.
func DeleteVisitHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		id, err := int64Param(c, "vid")
		if err != nil {
			return errFromDomain(c, err)
		}
		if err := v.Visits.Delete(c.UserContext(), id); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// SuggestPlacesHandler lists places near a visit.
func SuggestPlacesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		id, err := int64Param(c, "vid")
		if err != nil {
			return errFromDomain(c, err)
		}
		places, err := v.Visits.SuggestPlaces(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(places)
	}
}

type visitSelectionRequest struct {
	IDs []int64 `json:"ids"`
}

// GetVisitSelectionHandler returns the selected visit ids.
func GetVisitSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"ids": v.Visits.Selected()})
	}
}

// SetVisitSelectionHandler replaces the visit selection. Unknown ids fail the whole request
// and leave the selection empty.
func SetVisitSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req visitSelectionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		v.Visits.ClearSelection()
		for _, id := range req.IDs {
			if err := v.Visits.Select(id); err != nil {
				v.Visits.ClearSelection()
				return errFromDomain(c, err)
			}
		}
		return c.JSON(fiber.Map{"ids": v.Visits.Selected()})
	}
}

// ClearVisitSelectionHandler empties the visit selection.
func ClearVisitSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		v.Visits.ClearSelection()
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// MergeVisitsHandler merges the selected visits into one.
func MergeVisitsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		merged, err := v.Visits.Merge(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(merged)
	}
}

// BulkStatusResponse reports a bulk confirm or decline.
type BulkStatusResponse struct {
	UpdatedCount int     `json:"updated_count"`
	Requested    int     `json:"requested"`
	Partial      bool    `json:"partial"`
	Message      string  `json:"message,omitempty"`
	Selected     []int64 `json:"selected"`
}

// BulkStatusHandler confirms or declines every selected visit. A partial update answers
// 207 with the ids that stayed selected.
func BulkStatusHandler(deps *Dependencies, to domain.VisitStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		requested := len(v.Visits.Selected())

		var res *domain.BulkUpdateResult
		if to == domain.VisitConfirmed {
			res, err = v.Visits.BulkConfirm(c.UserContext())
		} else {
			res, err = v.Visits.BulkDecline(c.UserContext())
		}
		if err != nil && !usecases.IsPartial(err) {
			return errFromDomain(c, err)
		}

		out := BulkStatusResponse{Requested: requested, Selected: v.Visits.Selected()}
		if res != nil {
			out.UpdatedCount = res.UpdatedCount
		}
		var pf *domain.PartialFailure
		if errors.As(err, &pf) {
			out.Partial = true
			out.Message = pf.Error()
			return c.Status(fiber.StatusMultiStatus).JSON(out)
		}
		return c.JSON(out)
	}
}
