package v1

import (
	"errors"
	"net/http"

	"github.com/andreyxaxa/Notify-Router/internal/controller/restapi/v1/response"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func errorResponse(ctx *fiber.Ctx, code int, msg string) error {
	return ctx.Status(code).JSON(response.Error{Error: msg})
}

// useCaseError maps use-case sentinels to statuses; anything else is logged as internal.
func (r *V1) useCaseError(ctx *fiber.Ctx, err error, op, notFound string) error {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return errorResponse(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrRecordNotFound):
		return errorResponse(ctx, http.StatusNotFound, notFound)
	case errors.Is(err, errs.ErrInvalidTransition):
		return errorResponse(ctx, http.StatusConflict, "delivery is not in a state that allows this transition")
	}

	r.logger.Error(err, "restapi - v1 - "+op)

	return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
}

func parseID(ctx *fiber.Ctx) (uuid.UUID, bool) {
	idStr := ctx.Params("id")
	if idStr == "" {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false
	}

	return id, true
}
