package service

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/sakif/estudogame/internal/apperror"
)

// Input limits. The validate tags on the input structs repeat these numbers;
// keep both in sync.
const (
	MaxNameLength        = 255
	MaxSubjectLength     = 255
	MaxChallengeSubject  = 100
	MaxDescriptionLength = 1000
	MaxNotesLength       = 1000
	MinPasswordLength    = 6

	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// validate is shared by every service; validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name so messages match what clients send.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// checkStruct runs the struct's validate tags and converts failures into one
// validation AppError carrying a message per field.
func checkStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("service: validating input: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}
	return apperror.InvalidFields(fields)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	isString := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "url", "http_url":
		return field + " must be a valid URL"
	case "min", "gte":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

// strict removes every HTML element. Free text is stored as plain text.
var strict = bluemonday.StrictPolicy()

// maxCleanRounds bounds the unescape/sanitize loop for nested encodings.
const maxCleanRounds = 8

var blanks = regexp.MustCompile(`[ \t]+`)

// cleanText trims s and strips markup, including markup hidden behind
// entity encoding. Each round unescapes what the sanitizer escaped; the text
// is only accepted once a round leaves it unchanged, so the stored value
// holds no tags. Input still changing after maxCleanRounds is kept in its
// escaped form. Runs of spaces left where tags were removed are collapsed.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	stable := false
	for i := 0; i < maxCleanRounds; i++ {
		next := html.UnescapeString(strict.Sanitize(s))
		if next == s {
			stable = true
			break
		}
		s = next
	}
	if !stable {
		s = strict.Sanitize(s)
	}
	return strings.TrimSpace(blanks.ReplaceAllString(s, " "))
}

// normalizeEmail trims and lowercases so lookups are case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}
