package utils

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var controlCharPattern = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// ParsePositiveInt parses a path or query value that must be an integer >= 1.
// Problems are appended to fieldErrors under key.
func ParsePositiveInt(value, key string, fieldErrors map[string][]string) (int, map[string][]string) {
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}

	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		fieldErrors[key] = append(fieldErrors[key], fmt.Sprintf("Invalid field value for field %q.", key))
		return 0, fieldErrors
	}
	if n < 1 {
		fieldErrors[key] = append(fieldErrors[key], fmt.Sprintf("Field %q must be a positive integer.", key))
	}
	return n, fieldErrors
}

// ValidatePageSize checks rows against the configured maximum.
func ValidatePageSize(rows, maxPageSize int, fieldErrors map[string][]string) map[string][]string {
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}
	if maxPageSize > 0 && rows > maxPageSize {
		fieldErrors["rows"] = append(fieldErrors["rows"], fmt.Sprintf("Field \"rows\" must not exceed %d.", maxPageSize))
	}
	return fieldErrors
}

// SanitizeFilename reduces a client supplied upload filename to its base
// name without control characters. Both / and \ count as separators.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = controlCharPattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(path.Base(name))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}
