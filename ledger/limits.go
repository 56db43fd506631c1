package ledger

import (
	"fmt"
	"unicode/utf8"
)

// Limits bounds the resources an account may consume and the size of
// registry strings.
type Limits struct {
	MaxActivitiesPerAccount uint64
	MaxCategoryLength       int
	MaxUnitLength           int
	MaxDescriptionLength    int
	TicksPerDay             uint64
}

// DefaultLimits returns the limits used when configuration is silent.
// A day is 144 ticks, one tick per ten minutes.
func DefaultLimits() Limits {
	return Limits{
		MaxActivitiesPerAccount: 10000,
		MaxCategoryLength:       64,
		MaxUnitLength:           32,
		MaxDescriptionLength:    256,
		TicksPerDay:             144,
	}
}

// Validate rejects limits that would make every write fail or divide by zero.
func (l Limits) Validate() error {
	switch {
	case l.MaxActivitiesPerAccount == 0:
		return fmt.Errorf("max activities per account must be positive")
	case l.MaxCategoryLength <= 0:
		return fmt.Errorf("max category length must be positive")
	case l.MaxUnitLength < 0 || l.MaxDescriptionLength < 0:
		return fmt.Errorf("string limits must not be negative")
	case l.TicksPerDay == 0:
		return fmt.Errorf("ticks per day must be positive")
	}
	return nil
}

func (l Limits) checkCategory(category string) error {
	if category == "" {
		return &ArgumentError{Field: "category", Reason: "must not be empty"}
	}
	return checkLength("category", category, l.MaxCategoryLength)
}

func checkLength(field, value string, max int) error {
	if n := utf8.RuneCountInString(value); n > max {
		return &ArgumentError{Field: field, Reason: fmt.Sprintf("length %d exceeds %d", n, max)}
	}
	return nil
}

func checkIdentity(field string, id Identity) error {
	if id == "" {
		return &ArgumentError{Field: field, Reason: "must not be empty"}
	}
	return nil
}
