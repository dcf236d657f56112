package api

import (
	"errors"

	"saleschat/internal/api/handlers"
	"saleschat/pkg/auth"
	"saleschat/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// NewRouter assembles the HTTP surface: a health probe plus the
// authenticated chat and sales-data API.
func NewRouter(
	chatHandler *handlers.ChatHandler,
	salesHandler *handlers.SalesHandler,
	jwtManager *auth.JWTManager,
	logger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "saleschat",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "internal server error"

			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
				message = fiberErr.Message
			} else {
				logger.Error("Unhandled request error",
					zap.String("path", c.Path()),
					zap.Error(err),
				)
			}

			return c.Status(code).JSON(fiber.Map{"error": message})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1", middleware.AuthMiddleware(jwtManager, logger))

	chats := api.Group("/chats")
	chats.Post("/", chatHandler.CreateChat)
	chats.Get("/", chatHandler.ListChats)
	chats.Delete("/:id", chatHandler.DeleteChat)
	chats.Get("/:id/messages", chatHandler.GetMessages)
	chats.Post("/:id/messages", chatHandler.SendMessage)
	chats.Patch("/:id/votes", chatHandler.Vote)

	api.Post("/sales/upload", salesHandler.Upload)

	return app
}
