package sharepoint

import "strings"

// Common SharePoint principal types
const (
	PrincipalTypeUser            = 1
	PrincipalTypeDistribution    = 2
	PrincipalTypeSecurity        = 4
	PrincipalTypeSharePointGroup = 8
)

// SharePoint encodes directory group identities into claim-formatted
// login names. The prefix selects the directory subtype:
//
//	c:0t.c|tenant|<guid>                               security group
//	c:0o.c|federateddirectoryclaimprovider|<guid>      unified group members
//	c:0o.c|federateddirectoryclaimprovider|<guid>_o    unified group owners
const (
	securityGroupClaimPrefix = "c:0t.c|tenant|"
	unifiedGroupClaimPrefix  = "c:0o.c|federateddirectoryclaimprovider|"
)

// ParseDirectoryGroupClaim decodes a claim-formatted login name into a
// directory GroupIdentity. Returns ok=false for anything that is not a
// directory group claim (regular users, site groups, system claims).
func ParseDirectoryGroupClaim(loginName, title string) (GroupIdentity, bool) {
	switch {
	case strings.HasPrefix(loginName, securityGroupClaimPrefix):
		return GroupIdentity{
			Kind:  GroupKindSecurityGroup,
			ID:    strings.TrimPrefix(loginName, securityGroupClaimPrefix),
			Title: title,
		}, true
	case strings.HasPrefix(loginName, unifiedGroupClaimPrefix):
		id := strings.TrimPrefix(loginName, unifiedGroupClaimPrefix)
		// Owner claims carry an "_o" suffix on the group GUID.
		id = strings.TrimSuffix(id, "_o")
		return GroupIdentity{
			Kind:  GroupKindUnifiedGroup,
			ID:    id,
			Title: title,
		}, true
	default:
		return GroupIdentity{}, false
	}
}

// IsDirectoryGroupMember reports whether a site group member, given
// its principal type and login name, is a nested directory group
// rather than a person.
func IsDirectoryGroupMember(principalType int, loginName string) bool {
	if principalType != PrincipalTypeSecurity && principalType != PrincipalTypeDistribution {
		return false
	}
	_, ok := ParseDirectoryGroupClaim(loginName, "")
	return ok
}
