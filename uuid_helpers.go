package passwordless

import (
	"strings"

	"github.com/google/uuid"
)

// HasMainEmail reports whether User.MainEmail will return an address.
func HasMainEmail(user *User) bool {
	return user.MainEmail() != nil
}

// parseTokenID parses the literal temp token value transmitted to users.
func parseTokenID(raw string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(raw))
}
