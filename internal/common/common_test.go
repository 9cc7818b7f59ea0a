package common

import (
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestGetBoolParam(t *testing.T) {
	params := map[string]any{"a": true, "b": "off", "c": "maybe", "d": 1}
	if !GetBoolParam(params, "a", false) {
		t.Error("bool true not read")
	}
	if GetBoolParam(params, "b", true) {
		t.Error("string off not read")
	}
	if !GetBoolParam(params, "c", true) {
		t.Error("unparseable string should return default")
	}
	if GetBoolParam(params, "d", false) {
		t.Error("unsupported type should return default")
	}
}

func TestGetIntAndFloatParam(t *testing.T) {
	params := map[string]any{"i": 3, "f": 2.5, "s": "7"}
	if got := GetIntParam(params, "i", 0); got != 3 {
		t.Errorf("GetIntParam(i) = %d", got)
	}
	if got := GetIntParam(params, "f", 0); got != 2 {
		t.Errorf("GetIntParam(f) = %d, want truncation to 2", got)
	}
	if got := GetIntParam(params, "s", 9); got != 9 {
		t.Errorf("GetIntParam(s) = %d, want default", got)
	}
	if got := GetFloatParam(params, "i", 0); got != 3 {
		t.Errorf("GetFloatParam(i) = %v", got)
	}
}

func TestValidateRequiredParams(t *testing.T) {
	if err := ValidateRequiredParams(map[string]any{"a": 1}, []string{"a"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRequiredParams(map[string]any{}, []string{"a"}); err == nil {
		t.Error("expected error for missing parameter")
	}
}

type languageRequest struct {
	Language string `json:"language" validate:"required"`
}

func TestGenericEchoValidator(t *testing.T) {
	v := &GenericEchoValidator{}

	if err := v.Validate(&languageRequest{Language: "tamil"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := v.Validate(&languageRequest{})
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}
