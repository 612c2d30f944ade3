package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/uhyunpark/tradesim/pkg/costmodel"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names so messages match what the client sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldError is a boundary validation failure naming the offending field.
type fieldError struct {
	Field   string
	Message string
}

func (e *fieldError) Error() string { return e.Message }

// validationError converts the first validator failure into a fieldError
// with a readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]

	// Namespace is e.g. "SimulationRequest.parameters.orderSize"
	path := fe.Namespace()
	if i := strings.Index(path, "."); i >= 0 {
		path = path[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", path)
	case "gt":
		msg = fmt.Sprintf("%s must be greater than %s", path, fe.Param())
	case "gte":
		msg = fmt.Sprintf("%s must be at least %s", path, fe.Param())
	case "lte":
		msg = fmt.Sprintf("%s must be at most %s", path, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of [%s], got %q", path, fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		msg = fmt.Sprintf("%s must contain at least %s entry", path, fe.Param())
	default:
		msg = fmt.Sprintf("%s failed %s validation", path, fe.Tag())
	}
	return &fieldError{Field: fe.Field(), Message: msg}
}

// toParams converts a validated wire request into model parameters.
func toParams(p SimulationParameters) (costmodel.Params, error) {
	tier, err := costmodel.ParseFeeTier(p.FeeTier)
	if err != nil {
		return costmodel.Params{}, err
	}
	side, err := costmodel.ParseSide(p.Side)
	if err != nil {
		return costmodel.Params{}, err
	}
	var size, vol float64
	if p.OrderSize != nil {
		size = *p.OrderSize
	}
	if p.Volatility != nil {
		vol = *p.Volatility
	}
	return costmodel.Params{OrderSize: size, Volatility: vol, FeeTier: tier, Side: side}, nil
}
