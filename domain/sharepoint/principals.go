package sharepoint

import "time"

// Principal represents a resolved person: a user discovered either
// directly on a role assignment or through group expansion.
type Principal struct {
	ID        int64  // Site-local principal ID; 0 for directory-only principals
	LoginName string // Stable login identifier; empty for principals known only to the directory
	Title     string // Display name
	Email     string
}

// GroupKind distinguishes the two group systems the scanner resolves:
// site-local SharePoint groups (no nesting) and the tenant directory's
// group system (nested, with two differently-shaped subtypes).
type GroupKind string

const (
	GroupKindSiteGroup     GroupKind = "site_group"
	GroupKindSecurityGroup GroupKind = "directory_security_group"
	GroupKindUnifiedGroup  GroupKind = "directory_unified_group"
)

// IsDirectory returns true for group kinds resolved through the
// directory service (and therefore eligible for caching).
func (k GroupKind) IsDirectory() bool {
	return k == GroupKindSecurityGroup || k == GroupKindUnifiedGroup
}

// GroupIdentity is a tagged group reference. The Kind selects the
// resolution strategy in the group resolver.
type GroupIdentity struct {
	Kind  GroupKind
	ID    string // Site group integer ID as string, or directory group GUID
	Title string
}

// SiteGroup is a site-local group with its classification and the
// permission levels granted to it at web scope.
type SiteGroup struct {
	ID               int64
	Title            string
	OwnerTitle       string
	Role             SiteGroupRole
	PermissionLevels []string
}

// SiteGroupRole classifies a site group by its relationship to the web.
type SiteGroupRole string

const (
	SiteGroupRoleOwners   SiteGroupRole = "SiteOwners"
	SiteGroupRoleMembers  SiteGroupRole = "SiteMembers"
	SiteGroupRoleVisitors SiteGroupRole = "SiteVisitors"
	SiteGroupRoleCustom   SiteGroupRole = "Custom"
)

// ResolvedMember is one fully-expanded membership path: a principal,
// the hop count from the site-level grant, the top-level group the
// grant came through, and the group the principal was found in.
type ResolvedMember struct {
	Principal    Principal
	NestingLevel int            // 0 = direct grant, strictly +1 per hop below that
	ViaGroup     *GroupIdentity // Top-level site group the grant flows through; nil for direct grants
	ParentGroup  *GroupIdentity // Immediate containing group; nil at level <= 1
}

// AssignmentKind describes how a permission grant was established.
type AssignmentKind string

const (
	AssignmentDirect      AssignmentKind = "direct"
	AssignmentGroup       AssignmentKind = "group"
	AssignmentSharingLink AssignmentKind = "sharing_link"
)

// PermissionGrant is one role assignment on a scanned object, after
// "Limited Access" filtering.
type PermissionGrant struct {
	Member           Principal      // For group grants, the group's principal record
	MemberGroup      *GroupIdentity // Non-nil when the member is a group
	PermissionLevels []string
	Kind             AssignmentKind
	SharedAt         *time.Time // Sharing-link grants only
	SharedBy         *Principal // Sharing-link grants only
}

// LimitedAccessRole is the permission level SharePoint fabricates on
// parent containers when an item below them is shared. It is never a
// real grant and is dropped at the source.
const LimitedAccessRole = "Limited Access"

// FilterLimitedAccess returns the permission level names with the
// Limited Access artifact removed.
func FilterLimitedAccess(levels []string) []string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		if l == LimitedAccessRole {
			continue
		}
		out = append(out, l)
	}
	return out
}
