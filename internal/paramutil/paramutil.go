// Package paramutil provides validation helpers for flow factory parameters
// decoded from scenario YAML.
package paramutil

import (
	"fmt"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
)

// GetRequiredString retrieves a required string parameter from the params
// map, returning a ValidationError if it is missing or not a string.
func GetRequiredString(params map[string]interface{}, key string) (string, error) {
	value, exists := params[key]
	if !exists {
		return "", gateerrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", gateerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a string, got %T", key, value), nil)
	}
	return strValue, nil
}

// GetOptionalString retrieves an optional string parameter. The second return
// reports presence; a present value of the wrong type is an error.
func GetOptionalString(params map[string]interface{}, key string) (string, bool, error) {
	value, exists := params[key]
	if !exists {
		return "", false, nil
	}
	strValue, ok := value.(string)
	if !ok {
		return "", false, gateerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a string, got %T", key, value), nil)
	}
	return strValue, true, nil
}

// GetOptionalStringSlice retrieves an optional parameter that should be a
// slice of strings, converting from []interface{} as decoded from YAML.
func GetOptionalStringSlice(params map[string]interface{}, key string) ([]string, bool, error) {
	value, exists := params[key]
	if !exists {
		return nil, false, nil
	}

	if stringSlice, isStringSlice := value.([]string); isStringSlice {
		return stringSlice, true, nil
	}

	sliceValue, ok := value.([]interface{})
	if !ok {
		return nil, false, gateerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a list/slice, got %T", key, value), nil)
	}

	result := make([]string, 0, len(sliceValue))
	for i, item := range sliceValue {
		strItem, ok := item.(string)
		if !ok {
			return nil, false, gateerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a list/slice of strings, found non-string element at index %d (%T)", key, i, item), nil)
		}
		result = append(result, strItem)
	}
	return result, true, nil
}

// GetOptionalInt retrieves an optional integer parameter, coercing from
// compatible numeric types. YAML decodes small numbers as int and large ones
// as int64 or float64, so all of those are accepted when whole.
func GetOptionalInt(params map[string]interface{}, key string) (int, bool, error) {
	value, exists := params[key]
	if !exists {
		return 0, false, nil
	}

	switch v := value.(type) {
	case int:
		return v, true, nil
	case int8:
		return int(v), true, nil
	case int16:
		return int(v), true, nil
	case int32:
		return int(v), true, nil
	case int64:
		intValue := int(v)
		if int64(intValue) != v {
			return 0, false, gateerrors.NewValidationError(fmt.Sprintf("parameter '%s' value %v overflows standard int type", key, v), nil)
		}
		return intValue, true, nil
	case float32:
		if v == float32(int(v)) {
			return int(v), true, nil
		}
		return 0, false, gateerrors.NewValidationError(fmt.Sprintf("parameter '%s' is a non-integer float (%v), cannot convert to int", key, v), nil)
	case float64:
		if v == float64(int(v)) {
			return int(v), true, nil
		}
		return 0, false, gateerrors.NewValidationError(fmt.Sprintf("parameter '%s' is a non-integer float (%v), cannot convert to int", key, v), nil)
	default:
		return 0, false, gateerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be an integer or whole number, got %T", key, value), nil)
	}
}

// GetOptionalBool retrieves an optional boolean parameter.
func GetOptionalBool(params map[string]interface{}, key string) (bool, bool, error) {
	value, exists := params[key]
	if !exists {
		return false, false, nil
	}
	boolValue, ok := value.(bool)
	if !ok {
		return false, false, gateerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a boolean, got %T", key, value), nil)
	}
	return boolValue, true, nil
}

// CheckRequired validates that all keys in the required list exist in params.
func CheckRequired(params map[string]interface{}, required []string) error {
	for _, key := range required {
		if _, exists := params[key]; !exists {
			return gateerrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
		}
	}
	return nil
}

// CheckAllowed validates that only keys from the allowed list exist in
// params. An empty allowed list disables the check.
func CheckAllowed(params map[string]interface{}, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}

	allowedSet := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		allowedSet[key] = struct{}{}
	}

	for key := range params {
		if _, isAllowed := allowedSet[key]; !isAllowed {
			return gateerrors.NewValidationError(fmt.Sprintf("unknown parameter '%s' provided", key), nil)
		}
	}
	return nil
}
