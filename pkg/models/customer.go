package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CustomerData holds the editable customer profile. Known fields are typed; anything else the
// operator or the external assistant attaches lives in Extra.
type CustomerData struct {
	FullName     string
	Name         string
	PolicyNumber string
	Premium      string
	PaymentDate  string
	PaymentMode  string
	PhoneNumber  string
	Email        string
	Extra        map[string]string
}

// Field keys as they appear on the wire
const (
	FieldFullName     = "fullName"
	FieldName         = "name"
	FieldPolicyNumber = "policyNumber"
	FieldPremium      = "premium"
	FieldPaymentDate  = "paymentDate"
	FieldPaymentMode  = "paymentMode"
	FieldPhoneNumber  = "phoneNumber"
	FieldEmail        = "email"
)

// DefaultCustomer returns the demo profile the session starts with.
func DefaultCustomer() CustomerData {
	return CustomerData{
		FullName:     "Ajay",
		PolicyNumber: "1234567890",
		Premium:      "₹5,000",
		PaymentDate:  "31 July 2025",
		PaymentMode:  "Online",
		PhoneNumber:  "9876543210",
		Email:        "ajay@example.com",
	}
}

func (c *CustomerData) fields() map[string]*string {
	return map[string]*string{
		FieldFullName:     &c.FullName,
		FieldName:         &c.Name,
		FieldPolicyNumber: &c.PolicyNumber,
		FieldPremium:      &c.Premium,
		FieldPaymentDate:  &c.PaymentDate,
		FieldPaymentMode:  &c.PaymentMode,
		FieldPhoneNumber:  &c.PhoneNumber,
		FieldEmail:        &c.Email,
	}
}

// DisplayName returns the name used for prompt substitution.
func (c CustomerData) DisplayName(fallback string) string {
	if n := strings.TrimSpace(c.FullName); n != "" {
		return n
	}
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return fallback
}

// Get returns the value of a named or extra field.
func (c CustomerData) Get(field string) string {
	if p, ok := c.fields()[field]; ok {
		return *p
	}
	return c.Extra[field]
}

// Set assigns one field; unknown keys go to Extra.
func (c *CustomerData) Set(field, value string) {
	if p, ok := c.fields()[field]; ok {
		*p = value
		return
	}
	if c.Extra == nil {
		c.Extra = make(map[string]string)
	}
	c.Extra[field] = value
}

// Clone returns a deep copy.
func (c CustomerData) Clone() CustomerData {
	out := c
	if c.Extra != nil {
		out.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Merge overwrites fields with every non-empty value of patch.
func (c *CustomerData) Merge(patch CustomerData) {
	for k, v := range patch.toMap() {
		if v != "" {
			c.Set(k, v)
		}
	}
}

// FillMissing copies values from other only into fields that are currently empty.
func (c *CustomerData) FillMissing(other CustomerData) {
	for k, v := range other.toMap() {
		if v != "" && c.Get(k) == "" {
			c.Set(k, v)
		}
	}
}

func (c CustomerData) toMap() map[string]string {
	m := make(map[string]string, 8+len(c.Extra))
	for k, v := range c.Extra {
		m[k] = v
	}
	for k, p := range c.fields() {
		if *p != "" {
			m[k] = *p
		}
	}
	return m
}

// MarshalJSON encodes the record flat: extras sit next to the named fields.
func (c CustomerData) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.toMap())
}

func (c *CustomerData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CustomerData{}
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			// null or non-string values from the assistant
			if string(v) == "null" {
				continue
			}
			s = string(v)
		}
		if _, known := c.fields()[k]; !known && s == "" {
			continue
		}
		c.Set(k, s)
	}
	return nil
}

// BuildQuery renders the filled profile fields as a spoken-style statement.
func BuildQuery(c CustomerData) string {
	var parts []string
	add := func(format, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf(format, value))
		}
	}
	add("My name is %s", c.FullName)
	add("My policy number is %s", c.PolicyNumber)
	add("Premium is %s", c.Premium)
	add("Due date is %s", c.PaymentDate)
	add("Payment mode is %s", c.PaymentMode)
	add("Phone number is %s", c.PhoneNumber)
	add("Email is %s", c.Email)
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}

// ExtraKeys returns the extension keys in stable order.
func (c CustomerData) ExtraKeys() []string {
	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
