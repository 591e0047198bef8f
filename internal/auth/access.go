package auth

import (
	"context"
	"errors"
)

var (
	// ErrForbidden indicates the caller cannot see the site.
	ErrForbidden = errors.New("auth: site not visible")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("auth: resource not found")
)

// SiteAccessChecker answers whether a user may see a site.
type SiteAccessChecker interface {
	HasSiteAccess(ctx context.Context, userID, siteID string) (bool, error)
}

// EnsureSiteAccess verifies the caller in ctx may see siteID. Admins see every
// site; a nil checker allows everything.
func EnsureSiteAccess(ctx context.Context, checker SiteAccessChecker, siteID string) error {
	if checker == nil || siteID == "" {
		return nil
	}
	if RoleFromContext(ctx) == RoleAdmin {
		return nil
	}
	subject := SubjectFromContext(ctx)
	if subject == "" {
		return ErrForbidden
	}
	ok, err := checker.HasSiteAccess(ctx, subject, siteID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
