// Package identity resolves the calling principal of a request. The rest of
// the application trusts the resolved principal as-is; account management and
// token issuance belong to the auth service in front of this one.
package identity

import (
	"fmt"
	"slices"
)

// Principal is the authenticated caller of a guarded operation.
type Principal struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

type UnauthenticatedError struct {
	Reason string
}

func (err UnauthenticatedError) Error() string {
	return fmt.Sprintf("unauthenticated: %s", err.Reason)
}
