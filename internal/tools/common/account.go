package common

import (
	"fmt"
	"math"
)

// GetAccountFromArgs returns the "account" argument, or fallback when it is
// absent or empty.
func GetAccountFromArgs(args map[string]interface{}, fallback string) string {
	if accountVal, ok := args["account"].(string); ok && accountVal != "" {
		return accountVal
	}
	return fallback
}

// GetStringArg returns the string argument key, or fallback.
func GetStringArg(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// GetBoolArg returns the boolean argument key, or fallback.
func GetBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

// GetIntArg returns the integer argument key, or fallback when absent.
// JSON numbers arrive as float64; fractional values are rejected.
func GetIntArg(args map[string]interface{}, key string, fallback int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("'%s' must be a whole number, got %v", key, v)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("'%s' must be a number", key)
	}
}
