package storage

import (
	"fmt"
	"strings"
)

// SendableContentTypes are the media types the WhatsApp gateway accepts
// as step attachments.
var SendableContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// IsSendable reports whether contentType can be attached to a step message.
func IsSendable(contentType string) bool {
	normalized := strings.Split(contentType, ";")[0]
	normalized = strings.TrimSpace(strings.ToLower(normalized))
	return SendableContentTypes[normalized]
}

// ValidateObjectKey rejects empty, absolute and traversing keys.
func ValidateObjectKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("object key is empty")
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("object key %q must be relative", key)
	case strings.Contains(key, ".."):
		return fmt.Errorf("object key %q must not contain '..'", key)
	}
	return nil
}
