package v1

import (
	"github.com/andreyxaxa/Notify-Router/internal/usecase"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func NewNotificationRoutes(apiV1Group fiber.Router, n usecase.NotificationUseCase, l logger.Interface) {
	r := &V1{n: n, logger: l}

	{
		// Events
		apiV1Group.Post("/events", r.publishEvent)
		apiV1Group.Get("/events/:id", r.getEvent)
		apiV1Group.Get("/events/:id/deliveries", r.listDeliveries)

		// Deliveries; static route first so "stats" is never parsed as an id
		apiV1Group.Get("/deliveries/stats", r.stats)
		apiV1Group.Get("/deliveries/:id", r.getDelivery)
		apiV1Group.Post("/deliveries/:id/retry", r.retryDelivery)
		apiV1Group.Post("/deliveries/:id/cancel", r.cancelDelivery)
	}
}
