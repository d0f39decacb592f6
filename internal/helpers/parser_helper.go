package helpers

import (
	"strconv"

	"github.com/google/uuid"
)

// ParseEventID parses a numeric event id from a path parameter.
func ParseEventID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// ParsePurchaseID parses a purchase id path parameter.
func ParsePurchaseID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
