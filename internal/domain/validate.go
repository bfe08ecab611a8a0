package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fathima-sithara/relay-service/internal/errs"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(messageStructLevel, Message{})
	return v
}

func messageStructLevel(sl validator.StructLevel) {
	m := sl.Current().Interface().(Message)
	if strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0 {
		sl.ReportError(m.Content, "Content", "content", "required_without_attachments", "")
	}
}

// ValidateStruct checks struct tags on inbound payloads and wraps failures with
// errs.ErrValidation, listing the offending fields.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if ve, ok := err.(validator.ValidationErrors); ok {
		fields := make([]string, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", errs.ErrValidation, err)
}
