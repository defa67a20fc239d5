package utils

import "github.com/google/uuid"

// GenerateID returns a random id such as "listing_3f0c...".
func GenerateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
