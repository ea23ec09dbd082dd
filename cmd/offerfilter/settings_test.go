package main

import (
	"errors"
	"testing"

	"offer-filter/internal/settings"
)

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments([]string{"minRating=4.8", "autoPagination = true", "maxPages=5"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if values[settings.KeyMinRating] != 4.8 || values[settings.KeyAutoPagination] != true || values[settings.KeyMaxPages] != 5 {
		t.Errorf("Unexpected values %v", values)
	}

	if _, err := parseAssignments([]string{"minRating"}); err == nil {
		t.Error("Expected an error for a missing value")
	}
	if _, err := parseAssignments([]string{"colour=red"}); !errors.Is(err, settings.ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey, got %v", err)
	}
	if _, err := parseAssignments([]string{"maxPages=many"}); err == nil {
		t.Error("Expected an error for a non-numeric value")
	}
}
