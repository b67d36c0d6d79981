package service

import (
	"fmt"
	"unicode/utf8"

	"docregistry/internal/model"
)

const (
	maxTitleLen       = 64
	maxDescriptionLen = 128
	maxTagLen         = 32
	maxTags           = 10
	maxFileSize       = 1_000_000_000
)

// validateText fails when value is empty or longer than max runes.
func validateText(value string, max int) bool {
	n := utf8.RuneCountInString(value)
	return n > 0 && n <= max
}

func validateTag(tag string) error {
	if !validateText(tag, maxTagLen) {
		return fmt.Errorf("%w: tag %q must be 1-%d characters", ErrTagValidationFailed, tag, maxTagLen)
	}
	return nil
}

func validateTags(tags []string) error {
	if len(tags) == 0 || len(tags) > maxTags {
		return fmt.Errorf("%w: %d tags, want 1-%d", ErrTagValidationFailed, len(tags), maxTags)
	}
	for _, tag := range tags {
		if err := validateTag(tag); err != nil {
			return err
		}
	}
	return nil
}

func validateFileSize(size int64) error {
	if size <= 0 || size >= maxFileSize {
		return fmt.Errorf("%w: %d not in (0, %d)", ErrInvalidVolume, size, maxFileSize)
	}
	return nil
}

// validateInput checks every field of a register or update request.
// Description bounds are reported as ErrInvalidTitle.
func validateInput(in model.DocumentInput) error {
	if !validateText(in.Title, maxTitleLen) {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidTitle, maxTitleLen)
	}
	if err := validateFileSize(in.FileSize); err != nil {
		return err
	}
	if !validateText(in.Description, maxDescriptionLen) {
		return fmt.Errorf("%w: description must be 1-%d characters", ErrInvalidTitle, maxDescriptionLen)
	}
	return validateTags(in.Tags)
}
