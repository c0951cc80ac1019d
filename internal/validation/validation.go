package validation

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const DefaultMaxSubjectLength = 200

var validate = newValidator()

// newValidator reports fields by their json name so error codes match the wire format.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct validates request bodies using `validate` struct tags.
func Struct(v interface{}) error {
	return validate.Struct(v)
}

// FirstFieldError returns the json name of the first failing field, or "".
func FirstFieldError(err error) string {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return strings.ToLower(errs[0].Field())
	}
	return ""
}

func MaxMessageLength() int {
	maxStr := os.Getenv("MAX_MESSAGE_LENGTH")
	if maxStr == "" {
		return 4000
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil || max < 1 {
		return 4000
	}
	return max
}

// TrimAndLimit trims surrounding whitespace and caps the result at max runes.
func TrimAndLimit(s string, max int) string {
	return Truncate(strings.TrimSpace(s), max)
}

// Truncate caps s at max runes without splitting a multi-byte character.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
