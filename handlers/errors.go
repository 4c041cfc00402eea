package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/services"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func badRequest(msg string) error {
	return &services.Error{Kind: services.KindInvalidInput, Code: "VALIDATION_ERROR", Message: msg}
}

// validationError flattens validator output into one client message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badRequest(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must be an RFC3339 timestamp", fe.Field()))
		case "uuid":
			msgs = append(msgs, fmt.Sprintf("%s must be a uuid", fe.Field()))
		case "gt", "gte", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s", fe.Field(), opWords[fe.Tag()], fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return badRequest(strings.Join(msgs, "; "))
}

var opWords = map[string]string{
	"gt":  "greater than",
	"gte": "at least",
	"max": "at most",
}

// ErrorHandler renders every error returned by a handler. Service errors map
// by kind, fiber errors keep their status, and anything else is a 500 whose
// cause is logged but never sent.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var svcErr *services.Error
		if errors.As(err, &svcErr) && svcErr.Kind != services.KindInternal {
			return c.Status(statusFor(svcErr.Kind)).JSON(ErrorResponse{Error: svcErr.Message, Code: svcErr.Code})
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code := strings.ToUpper(strings.ReplaceAll(utils.StatusMessage(fe.Code), " ", "_"))
			return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message, Code: code})
		}

		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", utils.CopyString(c.Path())),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal server error", Code: "INTERNAL"})
	}
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindInvalidInput:
		return fiber.StatusBadRequest
	case services.KindUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
