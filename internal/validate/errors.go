package validate

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError — ошибка одного поля. Path — JSON Pointer ("/role"),
// пустой для ошибок уровня всей записи.
type FieldError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ValidationError — запись не соответствует форме.
type ValidationError struct {
	Shape  string
	Mode   Mode
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Path == "" {
			parts = append(parts, f.Reason)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Path, f.Reason))
	}
	return fmt.Sprintf("ошибка валидации %s (%s): %s", e.Shape, e.Mode, strings.Join(parts, "; "))
}

// HasField проверяет, есть ли ошибка для поля с указанным путём.
func (e *ValidationError) HasField(path string) bool {
	for _, f := range e.Fields {
		if f.Path == path {
			return true
		}
	}
	return false
}

// AsValidationError извлекает *ValidationError из цепочки ошибок.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
