package account

import (
	"strings"
	"time"

	"github.com/vuraweg/prepgate/pkg/identity"
	"github.com/vuraweg/prepgate/pkg/profile"
)

// AvatarResolver maps a stored avatar key to a serving URL. A nil
// resolver leaves AvatarURL empty.
type AvatarResolver func(key string) string

// Reconcile merges one session's identity record with the optional
// portal profile into a canonical Profile. Pure and total: any subset of
// sources may be absent and the fixed per-field precedence still yields
// a complete profile.
//
// Precedence per field: portal profile value, else provider metadata,
// else the literal default. A nil stored profile (absent or lookup
// failed) falls through silently.
func Reconcile(rec identity.Record, channel Channel, stored *profile.StoredProfile, admins AdminChecker, avatars AvatarResolver) Profile {
	p := Profile{
		ID:         rec.ID,
		Email:      rec.Email,
		Channel:    channel,
		ResolvedAt: time.Now(),
	}

	p.DisplayName = firstNonEmpty(
		storedField(stored, func(s *profile.StoredProfile) string { return s.DisplayName }),
		rec.DisplayName,
		DefaultDisplayName,
	)
	p.AvatarKey = firstNonEmpty(
		storedField(stored, func(s *profile.StoredProfile) string { return s.AvatarKey }),
		rec.AvatarKey,
	)
	if avatars != nil && p.AvatarKey != "" {
		p.AvatarURL = avatars(p.AvatarKey)
	}

	if admins != nil {
		p.IsAdmin = admins.IsAdmin(strings.ToLower(rec.Email))
	}
	return p
}

func storedField(stored *profile.StoredProfile, get func(*profile.StoredProfile) string) string {
	if stored == nil {
		return ""
	}
	return get(stored)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
