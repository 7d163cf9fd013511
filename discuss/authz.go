package discuss

import (
	"fmt"

	"github.com/nasermirzaei89/backtalk/identity"
)

const RoleAdmin = "admin"

// CanMutate reports whether the principal may edit or delete the post:
// the post's author always may, anyone with the admin role always may,
// nobody else ever may. Every mutating entry point goes through this one
// function instead of re-deriving the rule inline.
func CanMutate(post *Post, principal identity.Principal) bool {
	if principal.HasRole(RoleAdmin) {
		return true
	}

	return post.AuthorID == principal.ID
}

type ForbiddenError struct {
	PrincipalID string
	PostID      string
}

func (err ForbiddenError) Error() string {
	return fmt.Sprintf("principal %q is not allowed to mutate post %q", err.PrincipalID, err.PostID)
}
