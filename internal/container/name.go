package container

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

const (
	maxNameLength = 63
	maxSlugLength = 32
)

// ContainerName derives a stable engine-safe name from the prefix and scope
// key: a readable slug plus a short hash so distinct keys never collide after
// slugging. An empty scope key maps to the shared container.
func ContainerName(prefix, scopeKey string) string {
	slug := "shared"
	if scopeKey != "" {
		sum := sha1.Sum([]byte(scopeKey))
		slug = slugify(scopeKey) + "-" + hex.EncodeToString(sum[:4])
	}

	name := prefix + slug
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-.")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-.")
	}
	if slug == "" {
		slug = "scope"
	}
	return slug
}
