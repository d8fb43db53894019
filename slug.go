package account

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
)

// Slugify lowercases the local part of an email and strips everything that
// is not a letter, digit, or hyphen.
func Slugify(email string) string {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}

	local = strings.ToLower(strings.TrimSpace(local))

	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '+':
			b.WriteRune('-')
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "workspace"
	}
	return slug
}

// TenantSlug derives a workspace slug from the signup email plus a
// millisecond timestamp disambiguator, so two signups from the same address
// never collide.
func TenantSlug(email string, now time.Time) string {
	return Slugify(email) + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// IdempotencyKey derives a stable key for the tenant write from email and
// slug. Replaying the same provisioning attempt reuses the key, so the
// resource store can dedupe instead of minting a second workspace.
func IdempotencyKey(email, slug string) string {
	if id, err := hashid.NewUUID(email + ":" + slug); err == nil {
		return id.String()
	}
	return Slugify(email) + "-" + slug
}
