package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/open-teleop/airscan/services"
)

// MissionHandler holds dependencies for mission API endpoints.
type MissionHandler struct {
	missionService services.MissionService
	logger         customlog.Logger
}

// NewMissionHandler creates a new handler for mission endpoints.
func NewMissionHandler(missionService services.MissionService, logger customlog.Logger) *MissionHandler {
	if missionService == nil {
		panic("MissionService cannot be nil in NewMissionHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewMissionHandler")
	}
	return &MissionHandler{
		missionService: missionService,
		logger:         logger,
	}
}

// RegisterMissionRoutes registers the mission API endpoints with the Fiber app.
func RegisterMissionRoutes(app *fiber.App, missionService services.MissionService, logger customlog.Logger) {
	h := NewMissionHandler(missionService, logger)

	apiGroup := app.Group("/api/v1")
	apiGroup.Get("/mission", h.handleGetMission)
	apiGroup.Put("/mission", h.handleUpdateMission)

	logger.Infof("Registered mission API endpoints under /api/v1/mission")
}

// handleGetMission returns the current mission as YAML.
func (h *MissionHandler) handleGetMission(c *fiber.Ctx) error {
	yamlData, err := h.missionService.GetCurrentMissionYAML()
	if err != nil {
		h.logger.Errorf("Failed to get current mission YAML: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to retrieve mission: %v", err),
		})
	}
	if len(yamlData) == 0 {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": "Mission not found or not yet set.",
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}

// handleUpdateMission replaces the mission with the YAML request body.
func (h *MissionHandler) handleUpdateMission(c *fiber.Ctx) error {
	switch ct := c.Get(fiber.HeaderContentType); ct {
	case "application/x-yaml", "application/yaml", "text/yaml":
	default:
		h.logger.Warnf("Mission PUT with Content-Type %q, parsing as YAML anyway", ct)
	}

	body := c.Body()
	if len(body) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body cannot be empty.",
		})
	}

	if err := h.missionService.UpdateMission(body); err != nil {
		if errors.Is(err, services.ErrInvalidMission) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Mission update failed: %v", err),
			})
		}
		h.logger.Errorf("Failed to update mission: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Internal server error during mission update: %v", err),
		})
	}

	m := h.missionService.GetCurrentMission()
	return c.JSON(fiber.Map{
		"message":   "Mission updated successfully.",
		"name":      m.Name,
		"waypoints": len(m.Waypoints),
	})
}
