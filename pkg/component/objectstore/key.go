package objectstore

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sanitize strips every character outside [A-Za-z0-9.\-_].
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BuildKey returns users/{ownerID}/{uuid}-{sanitized name}.
func BuildKey(ownerID, fileName string) string {
	name := Sanitize(fileName)
	if name == "" {
		name = "file"
	}
	return fmt.Sprintf("users/%s/%s-%s", ownerID, uuid.New(), name)
}
