package core

import (
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgInt4 converts an int to pgtype.Int4.
// Returns invalid if the value is not positive; an unanswered rating
// arrives as zero.
func ToPgInt4(i int) pgtype.Int4 {
	if i <= 0 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

// trimmedText normalizes a stored text column the same way ToPgText does.
func trimmedText(t pgtype.Text) pgtype.Text {
	if !t.Valid {
		return pgtype.Text{}
	}
	return ToPgText(t.String)
}

// boostedRating scales a 1-5 star rating to 0-100.
func boostedRating(rating pgtype.Int4) pgtype.Int4 {
	if !rating.Valid {
		return pgtype.Int4{}
	}
	v := rating.Int32 * 20
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return pgtype.Int4{Int32: v, Valid: true}
}
