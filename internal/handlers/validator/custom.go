package validator

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/thoas/go-funk"
)

// Presets are the transformation styles the generation backend accepts.
var Presets = []string{"portrait", "anime", "oil_painting", "vintage"}

const uploadPrefix = "uploads/"

func presetValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return funk.ContainsString(Presets, val)
}

// sourceKeyValidator accepts keys pointing into the upload area of the media
// bucket. Traversal segments, doubled separators and whitespace are rejected
// before the key reaches the object store.
func sourceKeyValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	if !strings.HasPrefix(val, uploadPrefix) || len(val) == len(uploadPrefix) {
		return false
	}
	if strings.Contains(val, "..") || strings.Contains(val, "//") {
		return false
	}
	for _, r := range val {
		if unicode.IsSpace(r) {
			return false
		}
	}

	return true
}
