// Package organization stores organizations and their memberships. An
// organization is always created together with its owner membership.
package organization

import (
	"github.com/gosimple/slug"

	id "onboarding/pkg/domain"
)

// makeSlug derives a URL-safe slug from the organization name. The id suffix
// keeps slugs unique when two signups choose the same name.
func makeSlug(name string, orgID id.OrganizationID) string {
	suffix := orgID.String()[:8]
	base := slug.Make(name)
	if base == "" {
		return "org-" + suffix
	}
	return base + "-" + suffix
}
