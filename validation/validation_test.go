package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Name string `mapstructure:"name" validate:"required"`
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=fast slow"`
	Sub  nested `mapstructure:"sub"`
}

type nested struct {
	Endpoint string `mapstructure:"endpoint" validate:"required"`
}

func TestValidateOK(t *testing.T) {
	s := sample{Name: "a", Mode: "fast", Sub: nested{Endpoint: "x"}}
	if err := Validate(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCollectsAllFields(t *testing.T) {
	err := Validate(sample{Mode: "warp"})
	if err == nil {
		t.Fatal("expected error")
	}

	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(verr.Fields), verr)
	}

	msg := err.Error()
	for _, want := range []string{"name is required", "mode must be one of: fast slow", "sub.endpoint is required"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestFieldPath(t *testing.T) {
	if got := fieldPath("Settings.Database.dsn"); got != "database.dsn" {
		t.Errorf("expected database.dsn, got %q", got)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Name":       "name",
		"MaxRetries": "max_retries",
		"dsn":        "dsn",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
