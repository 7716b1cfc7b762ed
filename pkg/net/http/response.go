package http

import "github.com/gofiber/fiber/v2"

func OK(c *fiber.Ctx, s any) error {
	return JSONResponse(c, fiber.StatusOK, s)
}

// JSONResponse sends s as JSON with the given status.
func JSONResponse(c *fiber.Ctx, status int, s any) error {
	return c.Status(status).JSON(s)
}
