package valueobjects

import (
	"strings"
	"unicode/utf8"

	apperrors "depositwatch/internal/shared_kernel/errors"
)

const maxUserIDLength = 128

// NormalizeUserID validates the identifier without rewriting it. The
// derivation index is a hash of the exact string, so an id with surrounding
// whitespace is rejected rather than silently mapped onto another user.
func NormalizeUserID(raw string) (string, *apperrors.AppError) {
	if strings.TrimSpace(raw) == "" {
		return "", apperrors.NewValidation(
			"invalid_request",
			"user_id is required",
			map[string]any{"field": "user_id"},
		)
	}
	if strings.TrimSpace(raw) != raw {
		return "", apperrors.NewValidation(
			"invalid_request",
			"user_id must not have leading or trailing whitespace",
			map[string]any{"field": "user_id"},
		)
	}
	if utf8.RuneCountInString(raw) > maxUserIDLength {
		return "", apperrors.NewValidation(
			"invalid_request",
			"user_id is too long",
			map[string]any{"field": "user_id", "max_length": maxUserIDLength},
		)
	}

	return raw, nil
}
