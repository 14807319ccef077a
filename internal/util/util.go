// Package util provides argument helpers for the host command protocol.
package util

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArgs trims quotes and unescapes every argument in place.
func CleanArgs(args []string) []string {
	for i, v := range args {
		args[i] = FixEscapeQuotes(TrimQuotes(strings.TrimSpace(v)))
	}
	return args
}

// Contains reports whether s is in slice.
func Contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// Arg returns args[i], or an error naming the missing position.
func Arg(args []string, i int) (string, error) {
	if i < 0 || i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	return args[i], nil
}

// ArgInt parses args[i] leniently ("3", "3.0", " 3 ").
func ArgInt(args []string, i int) (int, error) {
	s, err := Arg(args, i)
	if err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)
	if n, err := cast.ToIntE(s); err == nil {
		return n, nil
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, fmt.Errorf("argument %d: %q is not a number", i, s)
	}
	return int(f), nil
}

// ArgBool parses args[i] as a boolean ("true", "1", "false", "0").
func ArgBool(args []string, i int) (bool, error) {
	s, err := Arg(args, i)
	if err != nil {
		return false, err
	}
	b, err := cast.ToBoolE(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("argument %d: %q is not a boolean", i, s)
	}
	return b, nil
}

// OptionalBool returns args[i] as a boolean, or def when absent.
func OptionalBool(args []string, i int, def bool) (bool, error) {
	if i >= len(args) || strings.TrimSpace(args[i]) == "" {
		return def, nil
	}
	return ArgBool(args, i)
}

// ArgFloat parses args[i] as a float.
func ArgFloat(args []string, i int) (float64, error) {
	s, err := Arg(args, i)
	if err != nil {
		return 0, err
	}
	f, err := cast.ToFloat64E(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("argument %d: %q is not a number", i, s)
	}
	return f, nil
}
