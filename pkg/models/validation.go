package models

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	alphanumericRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	numericRe      = regexp.MustCompile(`^\d+$`)
	phoneRe        = regexp.MustCompile(`^\d{10,15}$`)
	emailRe        = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

var dateLayouts = []string{
	"2006-01-02",
	"2 January 2006",
	"02 January 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"2006/01/02",
	time.RFC3339,
}

// ValidationError maps field keys to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid customer data: " + strings.Join(parts, "; ")
}

// Validate checks the submit-time format rules. It returns nil or a *ValidationError.
func Validate(c CustomerData) error {
	errs := make(map[string]string)

	if !alphanumericRe.MatchString(c.PolicyNumber) {
		errs[FieldPolicyNumber] = "Policy must be alphanumeric"
	}
	if !numericRe.MatchString(c.Premium) {
		errs[FieldPremium] = "Premium must be numeric"
	}
	if !validDate(c.PaymentDate) {
		errs[FieldPaymentDate] = "Invalid date"
	}
	if !phoneRe.MatchString(c.PhoneNumber) {
		errs[FieldPhoneNumber] = "Phone must be 10-15 digits"
	}
	if !emailRe.MatchString(c.Email) {
		errs[FieldEmail] = "Invalid email"
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

func validDate(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
