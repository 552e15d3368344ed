package utils

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// MessageResponse is the body of every error response and of plain acknowledgements.
type MessageResponse struct {
	Message string `json:"message"`
}

// SendJSON writes data as the bare response body.
func SendJSON(c *fiber.Ctx, status int, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(data)
}

// SendMessage acknowledges a request with a human readable message.
func SendMessage(c *fiber.Ctx, status int, message string) error {
	return SendJSON(c, status, MessageResponse{Message: message})
}

// SendError sends {"message": ...} with the given status code. An empty message falls back
// to the status text.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(MessageResponse{Message: message})
}
