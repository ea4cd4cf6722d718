package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kevinmaint/maint-api/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	register("issue_status", func(fl validator.FieldLevel) bool {
		return models.IssueStatus(fl.Field().String()).Valid()
	})
	register("priority", func(fl validator.FieldLevel) bool {
		return models.Priority(fl.Field().String()).Valid()
	})
	register("message_type", func(fl validator.FieldLevel) bool {
		return models.MessageType(fl.Field().String()).Valid()
	})
	register("detection_method", func(fl validator.FieldLevel) bool {
		return models.DetectionMethod(fl.Field().String()).Valid()
	})
	register("bug_report_status", func(fl validator.FieldLevel) bool {
		return ValidateBugReportStatus(fl.Field().String()) == nil
	})
}

func register(tag string, fn validator.Func) {
	if err := Validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register %s validator: %v", tag, err))
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateIssueStatus validates an IssueStatus string value
func ValidateIssueStatus(value string) error {
	if !models.IssueStatus(value).Valid() {
		return fmt.Errorf("invalid status: %s (must be one of reported, in_progress, scheduled, waiting_parts, completed, closed)", value)
	}
	return nil
}

// ValidatePriority validates a Priority string value
func ValidatePriority(value string) error {
	if !models.Priority(value).Valid() {
		return fmt.Errorf("invalid priority: %s (must be one of low, medium, high, critical)", value)
	}
	return nil
}

// ValidateBugReportStatus validates a BugReportStatus string value
func ValidateBugReportStatus(value string) error {
	switch models.BugReportStatus(value) {
	case models.BugReportOpen, models.BugReportResolved:
		return nil
	default:
		return fmt.Errorf("invalid bug report status: %s (must be 'open' or 'resolved')", value)
	}
}

// FieldErrors flattens validator errors into "field: rule" messages
func FieldErrors(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
