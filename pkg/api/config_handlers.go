package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/services"
)

// ConfigHandler holds dependencies for configuration API endpoints.
type ConfigHandler struct {
	configService services.InputConfigService
	logger        customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(configService services.InputConfigService, logger customlog.Logger) *ConfigHandler {
	if configService == nil {
		panic("ConfigService cannot be nil in NewConfigHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		configService: configService,
		logger:        logger,
	}
}

// RegisterConfigRoutes registers the configuration API endpoints with the Fiber app.
func RegisterConfigRoutes(router fiber.Router, configService services.InputConfigService, logger customlog.Logger) {
	h := NewConfigHandler(configService, logger)

	apiGroup := router.Group("/api/v1/config")
	apiGroup.Get("/input", h.handleGetInputConfig)
	apiGroup.Put("/input", h.handleUpdateInputConfig)
	apiGroup.Get("/input/settings", h.handleGetInputSettings)

	logger.Infof("Registered input configuration API endpoints under /api/v1/config")
}

// handleGetInputConfig returns the input config as YAML.
func (h *ConfigHandler) handleGetInputConfig(c *fiber.Ctx) error {
	yamlData, err := h.configService.GetCurrentConfigYAML()
	if err != nil {
		h.logger.Errorf("Failed to get current input config YAML: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to retrieve configuration: %v", err),
		})
	}
	if len(yamlData) == 0 {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": "Input configuration not found or not yet set.",
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}

// handleGetInputSettings returns the effective settings after defaults.
func (h *ConfigHandler) handleGetInputSettings(c *fiber.Ctx) error {
	settings, err := h.configService.CurrentSettings()
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(settings)
}

// handleUpdateInputConfig validates, persists and applies a new input config.
func (h *ConfigHandler) handleUpdateInputConfig(c *fiber.Ctx) error {
	switch ct := c.Get(fiber.HeaderContentType); ct {
	case "application/x-yaml", "application/yaml", "text/yaml", "":
	default:
		h.logger.Warnf("Received PUT request with unexpected Content-Type: %s", ct)
	}

	newConfigYAML := c.Body()
	if len(newConfigYAML) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body cannot be empty.",
		})
	}

	if err := h.configService.UpdateConfig(newConfigYAML); err != nil {
		h.logger.Errorf("Failed to update input configuration: %v", err)
		var vErr interface{ IsValidationError() bool }
		if errors.As(err, &vErr) && vErr.IsValidationError() {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Configuration update failed: %v", err),
			})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Internal server error during configuration update: %v", err),
		})
	}

	h.logger.Infof("Input configuration updated")
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Input configuration updated and applied.",
	})
}
