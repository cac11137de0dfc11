package catalog

import (
	"strconv"
	"strings"
	"time"
)

const (
	// MinYear is the earliest accepted release year.
	MinYear = 1888
	// MaxYearsAhead bounds release years relative to the current year.
	MaxYearsAhead = 5
	// MaxDuration is the longest accepted running time in minutes.
	MaxDuration = 1000
	// MaxTitleLen caps titles in runes.
	MaxTitleLen = 255
)

// ParseTitle trims text and rejects blank or oversized titles.
func ParseTitle(text string) (string, error) {
	title := strings.TrimSpace(text)
	if title == "" {
		return "", invalid(FieldTitle, "Title cannot be empty.")
	}
	if len([]rune(title)) > MaxTitleLen {
		return "", invalid(FieldTitle, "Title is too long (max %d characters).", MaxTitleLen)
	}
	return title, nil
}

// ParseYear accepts an integer within [MinYear, now.Year()+MaxYearsAhead].
func ParseYear(text string, now time.Time) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, invalid(FieldYear, "Please enter the year as a number.")
	}
	if err := CheckYear(year, now); err != nil {
		return 0, err
	}
	return year, nil
}

// CheckYear validates an already numeric year.
func CheckYear(year int, now time.Time) error {
	if hi := now.Year() + MaxYearsAhead; year < MinYear || year > hi {
		return invalid(FieldYear, "Year must be between %d and %d.", MinYear, hi)
	}
	return nil
}

// ParseDuration accepts an integer number of minutes within (0, MaxDuration].
func ParseDuration(text string) (int, error) {
	minutes, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, invalid(FieldDuration, "Please enter the duration in minutes as a number.")
	}
	if err := CheckDuration(minutes); err != nil {
		return 0, err
	}
	return minutes, nil
}

// CheckDuration validates an already numeric duration.
func CheckDuration(minutes int) error {
	if minutes <= 0 || minutes > MaxDuration {
		return invalid(FieldDuration, "Duration must be between 1 and %d minutes.", MaxDuration)
	}
	return nil
}

// ParseDescription trims text; blank input clears the description.
func ParseDescription(text string) *string {
	d := strings.TrimSpace(text)
	if d == "" {
		return nil
	}
	return &d
}

// ParseFilmID accepts a positive integer identifier.
func ParseFilmID(text string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Field: "id", Reason: "Please enter a numeric film ID."}
	}
	return id, nil
}

// ParseValue converts user text into the typed value f stores, applying the field rules.
func (f Field) ParseValue(text string, now time.Time) (any, error) {
	switch f {
	case FieldTitle:
		return ParseTitle(text)
	case FieldYear:
		return ParseYear(text, now)
	case FieldDuration:
		return ParseDuration(text)
	case FieldDescription:
		return ParseDescription(text), nil
	}
	return nil, ErrUnknownField
}

// Validate checks every field of a film before insertion.
func (nf NewFilm) Validate(now time.Time) error {
	if _, err := ParseTitle(nf.Title); err != nil {
		return err
	}
	if err := CheckYear(nf.Year, now); err != nil {
		return err
	}
	return CheckDuration(nf.Duration)
}
