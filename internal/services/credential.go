package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// credentialBytes gives 256 bits of entropy; credentials never expire.
const credentialBytes = 32

// NewCredential mints an unguessable pickup credential.
func NewCredential() (string, error) {
	buf := make([]byte, credentialBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// credentialsEqual compares in constant time. An empty stored credential
// never matches.
func credentialsEqual(stored, presented string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
