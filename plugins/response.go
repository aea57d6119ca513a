package plugins

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/linht/ismtx-manager/ismtx"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SendSuccess sends a successful response
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error response
func SendError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// SendErrorMessage sends an error response with a custom message
func SendErrorMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// SendDriverError reports a transmitter error. Rejected parameters are the
// caller's fault (400), anything else failed on the bus (500).
func SendDriverError(c *fiber.Ctx, err error) error {
	if errors.Is(err, ismtx.ErrParameter) {
		return SendError(c, 400, err)
	}
	slog.Error("ISM-TX operation failed", "path", c.Path(), "error", err)
	return SendError(c, 500, err)
}
