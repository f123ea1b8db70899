package controllers

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MetaTask/internal/pkg/cflows"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
)

const dateLayout = "2006-01-02"

// errForbidden is returned by loaders when the record belongs to an
// organization the actor cannot act in.
var errForbidden = errors.New("no access to organization")

var errInvalidParam = errors.New("invalid parameter")

// paramID parses a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s", errInvalidParam, name)
	}
	return uint(id), nil
}

// queryDate parses a YYYY-MM-DD query value, falling back to def when absent.
func queryDate(c *fiber.Ctx, key string, def time.Time) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return time.ParseInLocation(dateLayout, raw, def.Location())
}

// parseBody decodes an optional JSON body. An empty body leaves out untouched.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(out)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": message})
}

// rejected reports a business-rule refusal.
func rejected(c *fiber.Ctx, reason string) error {
	return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "rejected", "message": reason})
}

// respondError maps service errors onto HTTP responses.
func respondError(c *fiber.Ctx, err error) error {
	var verr *scheduling.ValidationError
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.Is(err, errInvalidParam):
		return badRequest(c, err.Error())
	case errors.Is(err, errForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": err.Error()})
	case errors.As(err, &verr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": verr.Reason})
	case errors.As(err, &fieldErrs):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": fieldErrs.Error()})
	case isWorkflowInputError(err):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound(c, err.Error())
	default:
		log.Errorf("%s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Request failed"})
	}
}

func isWorkflowInputError(err error) bool {
	for _, target := range []error{
		cflows.ErrTeamBookingTitle,
		cflows.ErrTeamBookingWindow,
		cflows.ErrTeamBookingNoMembers,
		cflows.ErrUnknownWorkflowAction,
		cflows.ErrTargetStepRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func errInvalidQuery(key string) error {
	return fmt.Errorf("%w: %s", errInvalidParam, key)
}
