package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Upstream payloads are untyped: numeric fields arrive as JSON numbers,
// numeric strings, or null depending on the endpoint. The Flex types absorb
// that variance at the unmarshal boundary so the loose shapes never propagate
// past normalization.

// FlexFloat holds a numeric field that may arrive as a number, a numeric
// string, or null. Invalid or non-finite input becomes absent, never NaN/Inf.
type FlexFloat struct {
	value *float64
}

// Float returns the parsed value, or nil when the field was absent or invalid
func (f FlexFloat) Float() *float64 {
	return f.value
}

// NewFlexFloat wraps a known value, rejecting NaN and infinities
func NewFlexFloat(v float64) FlexFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return FlexFloat{}
	}
	return FlexFloat{value: &v}
}

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	f.value = nil

	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		return nil
	}

	// Numeric strings are as common as numbers in the positions payload
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return nil
		}
	}

	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil
	}

	f.value = &parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if f.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.value)
}

// FlexString holds a string field that may arrive as a string, a number, or
// null. Absent or invalid input becomes the empty string.
type FlexString struct {
	value string
}

// String returns the coerced value
func (f FlexString) String() string {
	return f.value
}

// NewFlexString wraps a known value
func NewFlexString(s string) FlexString {
	return FlexString{value: s}
}

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	f.value = ""

	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}

	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		f.value = str
		return nil
	}

	// Numbers and booleans are kept in their literal form
	if s != "" && s != "{" && !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		f.value = s
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (f FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.value)
}

// FlexBool holds a boolean field that may arrive as a bool, a string
// ("true"/"false"/"closed"-style markers are handled by the caller), a
// number, or null. Absent or unrecognized input is false.
type FlexBool struct {
	value bool
}

// Bool returns the coerced value
func (f FlexBool) Bool() bool {
	return f.value
}

// NewFlexBool wraps a known value
func NewFlexBool(b bool) FlexBool {
	return FlexBool{value: b}
}

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexBool) UnmarshalJSON(data []byte) error {
	f.value = false

	s := strings.TrimSpace(string(data))
	switch s {
	case "true", `"true"`, "1", `"1"`:
		f.value = true
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (f FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.value)
}
