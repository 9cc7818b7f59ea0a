package common

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

var (
	sharedValidator     *validator.Validate
	sharedValidatorOnce sync.Once
)

// Validator returns the process wide validator used for configuration and requests
func Validator() *validator.Validate {
	sharedValidatorOnce.Do(func() {
		sharedValidator = validator.New()
	})
	return sharedValidator
}

// ValidateStruct checks validate tags on s
func ValidateStruct(s any) error {
	return Validator().Struct(s)
}

type GenericEchoValidator struct {
	Validator *validator.Validate
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if gv.Validator == nil {
		gv.Validator = Validator()
	}
	if err := gv.Validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %v", err))
	}
	return nil
}
