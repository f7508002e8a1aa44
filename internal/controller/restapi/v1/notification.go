package v1

import (
	"net/http"

	"github.com/andreyxaxa/Notify-Router/internal/controller/restapi/v1/request"
	"github.com/andreyxaxa/Notify-Router/internal/controller/restapi/v1/response"
	"github.com/andreyxaxa/Notify-Router/internal/controller/restapi/v1/validate"
	"github.com/gofiber/fiber/v2"
)

// @Summary 	Publish event
// @Description Resolves routing policies, fans out deliveries and stages dispatch messages in one transaction
// @Tags 		events
// @Accept 		json
// @Produce 	json
// @Param 		request body request.PublishEvent true "Event"
// @Success 	201 {object} response.PublishEvent
// @Failure 	400 {object} response.Error "Invalid request"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/events [post]
func (r *V1) publishEvent(ctx *fiber.Ctx) error {
	var body request.PublishEvent

	if err := ctx.BodyParser(&body); err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "invalid request body")
	}

	if err := validate.PublishEvent(body); err != nil {
		return errorResponse(ctx, http.StatusBadRequest, err.Error())
	}

	res, err := r.n.PublishEvent(ctx.UserContext(), body.ToDTO())
	if err != nil {
		return r.useCaseError(ctx, err, "publishEvent", "event not found")
	}

	return ctx.Status(http.StatusCreated).JSON(response.NewPublishEvent(res))
}

// @Summary 	Get event
// @Tags 		events
// @Produce 	json
// @Param 		id path string true "Event ID(uuid)"
// @Success 	200 {object} response.Event
// @Failure 	400 {object} response.Error "Invalid ID"
// @Failure 	404 {object} response.Error "Event not found"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/events/{id} [get]
func (r *V1) getEvent(ctx *fiber.Ctx) error {
	id, ok := parseID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	event, err := r.n.GetEvent(ctx.UserContext(), id)
	if err != nil {
		return r.useCaseError(ctx, err, "getEvent", "event not found")
	}

	return ctx.Status(http.StatusOK).JSON(response.NewEvent(event))
}

// @Summary 	List deliveries of an event
// @Tags 		events
// @Produce 	json
// @Param 		id path string true "Event ID(uuid)"
// @Success 	200 {object} response.Deliveries
// @Failure 	400 {object} response.Error "Invalid ID"
// @Failure 	404 {object} response.Error "Event not found"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/events/{id}/deliveries [get]
func (r *V1) listDeliveries(ctx *fiber.Ctx) error {
	id, ok := parseID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	deliveries, err := r.n.ListDeliveries(ctx.UserContext(), id)
	if err != nil {
		return r.useCaseError(ctx, err, "listDeliveries", "event not found")
	}

	return ctx.Status(http.StatusOK).JSON(response.NewDeliveries(deliveries))
}

// @Summary 	Get delivery
// @Tags 		deliveries
// @Produce 	json
// @Param 		id path string true "Delivery ID(uuid)"
// @Success 	200 {object} response.Delivery
// @Failure 	400 {object} response.Error "Invalid ID"
// @Failure 	404 {object} response.Error "Delivery not found"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/deliveries/{id} [get]
func (r *V1) getDelivery(ctx *fiber.Ctx) error {
	id, ok := parseID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	d, err := r.n.GetDelivery(ctx.UserContext(), id)
	if err != nil {
		return r.useCaseError(ctx, err, "getDelivery", "delivery not found")
	}

	return ctx.Status(http.StatusOK).JSON(response.NewDelivery(d))
}

// @Summary 	Delivery counts per status
// @Tags 		deliveries
// @Produce 	json
// @Success 	200 {object} response.Stats
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/deliveries/stats [get]
func (r *V1) stats(ctx *fiber.Ctx) error {
	s, err := r.n.Stats(ctx.UserContext())
	if err != nil {
		return r.useCaseError(ctx, err, "stats", "")
	}

	return ctx.Status(http.StatusOK).JSON(response.NewStats(s))
}

// @Summary 	Retry failed delivery
// @Description Moves a failed delivery back to pending and stages a new dispatch message
// @Tags 		deliveries
// @Produce 	json
// @Param 		id path string true "Delivery ID(uuid)"
// @Success 	202 {object} response.Delivery
// @Failure 	400 {object} response.Error "Invalid ID"
// @Failure 	404 {object} response.Error "Delivery not found"
// @Failure 	409 {object} response.Error "Delivery is not failed"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/deliveries/{id}/retry [post]
func (r *V1) retryDelivery(ctx *fiber.Ctx) error {
	id, ok := parseID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	d, err := r.n.RetryDelivery(ctx.UserContext(), id)
	if err != nil {
		return r.useCaseError(ctx, err, "retryDelivery", "delivery not found")
	}

	return ctx.Status(http.StatusAccepted).JSON(response.NewDelivery(d))
}

// @Summary 	Cancel delivery
// @Description Cancels a pending or failed delivery
// @Tags 		deliveries
// @Produce 	json
// @Param 		id path string true "Delivery ID(uuid)"
// @Success 	200 {object} response.Delivery
// @Failure 	400 {object} response.Error "Invalid ID"
// @Failure 	404 {object} response.Error "Delivery not found"
// @Failure 	409 {object} response.Error "Delivery cannot be cancelled"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/deliveries/{id}/cancel [post]
func (r *V1) cancelDelivery(ctx *fiber.Ctx) error {
	id, ok := parseID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	d, err := r.n.CancelDelivery(ctx.UserContext(), id)
	if err != nil {
		return r.useCaseError(ctx, err, "cancelDelivery", "delivery not found")
	}

	return ctx.Status(http.StatusOK).JSON(response.NewDelivery(d))
}
