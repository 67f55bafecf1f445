package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/usecases"
)

// SelectionResponse is the current selection state.
type SelectionResponse struct {
	Active   bool                      `json:"active"`
	ID       string                    `json:"id,omitempty"`
	Bounds   *domain.Bounds            `json:"bounds,omitempty"`
	Controls *domain.SelectionControls `json:"controls"`
}

func selectionResponse(sel *domain.Selection, controls *domain.SelectionControls) SelectionResponse {
	res := SelectionResponse{Controls: controls}
	if sel != nil {
		b := sel.Bounds
		res.Active, res.ID, res.Bounds = true, sel.ID, &b
	}
	return res
}

// BeginSelectionHandler enters selection mode.
func BeginSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		if err := v.Select.Begin(); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type completeSelectionRequest struct {
	Rect     *domain.ScreenRect `json:"rect"`
	Viewport *domain.Viewport   `json:"viewport"`
	Bounds   *domain.Bounds     `json:"bounds"`
}

// CompleteSelectionHandler resolves a dragged rectangle, or explicit bounds, to the points
// and visits inside it. An empty match answers 200 with no active selection.
func CompleteSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req completeSelectionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		var controls *domain.SelectionControls
		switch {
		case req.Bounds != nil:
			if req.Bounds.IsEmpty() {
				return errBadRequest(c, "bounds must cover an area")
			}
			start, end := v.Range()
			controls, err = v.Select.SelectBounds(c.UserContext(), *req.Bounds, start, end)
		case req.Rect != nil:
			vp := v.Viewport()
			if req.Viewport != nil {
				vp = *req.Viewport
			}
			if err := validateViewport(vp); err != nil {
				return errFromDomain(c, err)
			}
			controls, err = v.Select.Complete(c.UserContext(), *req.Rect, vp)
		default:
			return errBadRequest(c, "rect or bounds is required")
		}
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(selectionResponse(v.Select.Selection(), controls))
	}
}

// GetSelectionHandler returns the current selection.
func GetSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(selectionResponse(v.Select.Selection(), v.Select.Controls()))
	}
}

// CancelSelectionHandler leaves selection mode.
func CancelSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		v.Select.Cancel()
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DeleteConfirmationHandler returns the statement the user must accept before deleting.
func DeleteConfirmationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		msg, err := v.Select.DeleteConfirmation()
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(fiber.Map{"message": msg, "count": len(v.Select.SelectedPointIDs())})
	}
}

// DeleteSelectedPointsHandler deletes the selected points once the confirmation matches.
func DeleteSelectedPointsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var conf domain.Confirmation
		if err := c.BodyParser(&conf); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		res, err := v.Select.DeleteSelectedPoints(c.UserContext(), conf)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(res)
	}
}

type fogRequest struct {
	Enabled  bool             `json:"enabled"`
	Radius   *float64         `json:"radius"`
	Viewport *domain.Viewport `json:"viewport"`
}

// FogHandler returns the fog state and its clear holes.
func FogHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(fiber.Map{"enabled": v.Fog.Enabled(), "holes": v.Fog.Holes()})
	}
}

// SetFogHandler enables or disables the fog overlay.
func SetFogHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req fogRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Radius != nil {
			if err := v.Fog.SetRadius(*req.Radius); err != nil {
				return errFromDomain(c, err)
			}
		}
		if !req.Enabled {
			v.Fog.Disable()
			return c.JSON(fiber.Map{"enabled": false, "holes": []domain.FogHole{}})
		}

		vp := v.Viewport()
		if req.Viewport != nil {
			vp = *req.Viewport
		}
		if err := validateViewport(vp); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"enabled": true, "holes": v.Fog.Enable(vp)})
	}
}

type hexRequest struct {
	Bounds    *domain.Bounds `json:"bounds"`
	HexSize   float64        `json:"hex_size"`
	StartDate *time.Time     `json:"start_date"`
	EndDate   *time.Time     `json:"end_date"`
}

// LoadHexagonsHandler loads and styles hexagons. Missing fields fall back to the viewport,
// the view's hexagon size and its loaded range.
func LoadHexagonsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req hexRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}

		start, end := v.Range()
		q := domain.HexQuery{HexSize: req.HexSize, StartDate: start, EndDate: end}
		if q.HexSize <= 0 {
			q.HexSize = v.Settings().HexSizeM
		}
		if req.StartDate != nil {
			q.StartDate = *req.StartDate
		}
		if req.EndDate != nil {
			q.EndDate = *req.EndDate
		}
		if req.Bounds != nil {
			q.Bounds = *req.Bounds
		} else {
			vp := v.Viewport()
			if err := validateViewport(vp); err != nil {
				return errBadRequest(c, "bounds are required until a viewport is set")
			}
			q.Bounds = usecases.ViewportBounds(vp)
		}

		styled, err := v.Hexes.Load(c.UserContext(), q)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(domain.HexFeatureCollection(styled), geoJSONContentType)
	}
}

// HexagonsHandler returns the currently styled hexagons.
func HexagonsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(domain.HexFeatureCollection(v.Hexes.Hexagons()), geoJSONContentType)
	}
}

// SharingResponse is the location-sharing state with the time left.
type SharingResponse struct {
	domain.SharingState
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// SharingHandler returns the location-sharing state.
func SharingHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(SharingResponse{
			SharingState:     v.Sharing.State(),
			RemainingSeconds: int64(v.Sharing.Remaining().Seconds()),
		})
	}
}

type sharingRequest struct {
	Enabled  bool   `json:"enabled"`
	Duration string `json:"duration"`
}

// ToggleSharingHandler enables or disables family location sharing.
func ToggleSharingHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req sharingRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if _, err := v.Sharing.Toggle(c.UserContext(), req.Enabled, req.Duration); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(SharingResponse{
			SharingState:     v.Sharing.State(),
			RemainingSeconds: int64(v.Sharing.Remaining().Seconds()),
		})
	}
}

// CreateAreaHandler creates an area.
func CreateAreaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var draft domain.AreaDraft
		if err := c.BodyParser(&draft); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		area, err := v.Areas.Create(c.UserContext(), draft)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(area)
	}
}

// DeleteAreaHandler deletes an area.
func DeleteAreaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		id, err := int64Param(c, "aid")
		if err != nil {
			return errFromDomain(c, err)
		}
		if err := v.Areas.Delete(c.UserContext(), id); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
