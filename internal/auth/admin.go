package auth

import "strings"

// AdminList is the static set of administrator emails.
type AdminList map[string]struct{}

// NewAdminList builds the allow-list; entries are trimmed and lowercased.
func NewAdminList(emails []string) AdminList {
	l := make(AdminList, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			l[e] = struct{}{}
		}
	}
	return l
}

// IsAdmin reports whether email is allow-listed, ignoring case.
func (l AdminList) IsAdmin(email string) bool {
	_, ok := l[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Email  string
	Admin  bool
}

// CanAccess reports whether p may read or write a resource owned by ownerID.
func (p Principal) CanAccess(ownerID string) bool {
	return p.Admin || (p.UserID != "" && p.UserID == ownerID)
}
