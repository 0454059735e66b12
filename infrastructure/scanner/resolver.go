package scanner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"spscan/domain/scan"
	"spscan/domain/sharepoint"
	"spscan/infrastructure/directory"
	"spscan/infrastructure/spclient"
	"spscan/logging"
)

// GroupResolver expands a group grant into the people behind it,
// walking site group membership and nested directory groups.
//
// Site groups cannot nest and are always enumerated fresh; their
// directory-group members recurse one level deeper. Directory groups
// resolve through the persistent cache: on a miss, security groups
// fetch their transitive membership in one call (the directory
// flattens nesting for us), unified groups fetch direct members only
// since the platform does not nest them. Either way the flattened
// result is cached before returning, so a member set is fetched at
// most once per cache lifetime regardless of how many grants share it.
type GroupResolver struct {
	site     spclient.SiteClient
	dir      directory.DirectoryClient
	cache    directory.GroupCache
	throttle *ThrottleController
	maxDepth int
	stats    *scan.Stats
	logger   *logging.Logger
}

// NewGroupResolver creates a resolver bounded at maxDepth nesting
// levels. Cache hit/miss counts are accumulated into stats.
func NewGroupResolver(
	site spclient.SiteClient,
	dir directory.DirectoryClient,
	cache directory.GroupCache,
	throttle *ThrottleController,
	maxDepth int,
	stats *scan.Stats,
) *GroupResolver {
	return &GroupResolver{
		site:     site,
		dir:      dir,
		cache:    cache,
		throttle: throttle,
		maxDepth: maxDepth,
		stats:    stats,
		logger:   logging.Default().WithComponent("group_resolver"),
	}
}

// Resolve expands identity into resolved members. level is the
// nesting level its members are emitted at (1 for members of a
// site-level grant). via is the top-level group the grant flows
// through; nil makes identity itself the via group.
func (r *GroupResolver) Resolve(ctx context.Context, identity sharepoint.GroupIdentity, level int, via *sharepoint.GroupIdentity) ([]sharepoint.ResolvedMember, error) {
	if level > r.maxDepth {
		r.logger.Warn("Nesting depth bound reached, group not expanded",
			"group_id", identity.ID, "group_title", identity.Title, "level", level)
		return nil, nil
	}

	if via == nil {
		via = &identity
	}

	switch {
	case identity.Kind == sharepoint.GroupKindSiteGroup:
		return r.resolveSiteGroup(ctx, identity, level, via)
	case identity.Kind.IsDirectory():
		return r.resolveDirectoryGroup(ctx, identity, level, via)
	default:
		return nil, fmt.Errorf("unknown group kind %q for group %s", identity.Kind, identity.ID)
	}
}

// resolveSiteGroup enumerates one site group's members: users are
// emitted at the current level, nested directory groups recurse one
// level deeper with via pinned to the original site-level group.
func (r *GroupResolver) resolveSiteGroup(ctx context.Context, identity sharepoint.GroupIdentity, level int, via *sharepoint.GroupIdentity) ([]sharepoint.ResolvedMember, error) {
	groupID, err := strconv.ParseInt(identity.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("site group id %q is not numeric: %w", identity.ID, err)
	}

	var members []spclient.GroupMember
	err = r.throttle.Do(ctx, "get_site_group_members", func() error {
		var fetchErr error
		members, fetchErr = r.site.GetSiteGroupMembers(ctx, groupID)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	parent := r.parentFor(identity, level)
	var resolved []sharepoint.ResolvedMember

	for _, m := range members {
		if sharepoint.IsDirectoryGroupMember(m.PrincipalType, m.LoginName) {
			nested, _ := sharepoint.ParseDirectoryGroupClaim(m.LoginName, m.Title)
			nestedMembers, nestedErr := r.Resolve(ctx, nested, level+1, via)
			if nestedErr != nil {
				return nil, nestedErr
			}
			resolved = append(resolved, nestedMembers...)
			continue
		}

		if m.PrincipalType != sharepoint.PrincipalTypeUser {
			continue
		}

		resolved = append(resolved, sharepoint.ResolvedMember{
			Principal: sharepoint.Principal{
				ID:        m.ID,
				LoginName: m.LoginName,
				Title:     m.Title,
				Email:     m.Email,
			},
			NestingLevel: level,
			ViaGroup:     via,
			ParentGroup:  parent,
		})
	}

	return resolved, nil
}

// resolveDirectoryGroup resolves a directory group, cache first. The
// flattened membership is emitted at the current level: the transitive
// fetch collapses any nesting below this group into one hop.
func (r *GroupResolver) resolveDirectoryGroup(ctx context.Context, identity sharepoint.GroupIdentity, level int, via *sharepoint.GroupIdentity) ([]sharepoint.ResolvedMember, error) {
	entry, ok, err := r.cache.Get(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	var members []sharepoint.Principal
	if ok {
		r.stats.CacheHits++
		members = entry.Members
	} else {
		r.stats.CacheMisses++

		err = r.throttle.Do(ctx, "get_directory_members", func() error {
			var fetchErr error
			switch identity.Kind {
			case sharepoint.GroupKindSecurityGroup:
				members, fetchErr = r.dir.GetTransitiveMembers(ctx, identity.ID)
			default:
				members, fetchErr = r.dir.GetDirectMembers(ctx, identity.ID)
			}
			return fetchErr
		})
		if err != nil {
			return nil, err
		}

		putErr := r.cache.Put(ctx, &directory.CacheEntry{
			GroupID:    identity.ID,
			Title:      identity.Title,
			Kind:       identity.Kind,
			Members:    members,
			ResolvedAt: time.Now().UTC(),
		})
		if putErr != nil {
			// A failed cache write costs a refetch next time, nothing more.
			r.logger.Warn("Failed to cache group membership",
				"group_id", identity.ID, "error", putErr.Error())
		}
	}

	parent := r.parentFor(identity, level)
	resolved := make([]sharepoint.ResolvedMember, 0, len(members))
	for _, p := range members {
		resolved = append(resolved, sharepoint.ResolvedMember{
			Principal:    p,
			NestingLevel: level,
			ViaGroup:     via,
			ParentGroup:  parent,
		})
	}
	return resolved, nil
}

// parentFor returns the immediate containing group reference, which is
// only reported below the top level where it differs from the via
// group.
func (r *GroupResolver) parentFor(identity sharepoint.GroupIdentity, level int) *sharepoint.GroupIdentity {
	if level <= 1 {
		return nil
	}
	parent := identity
	return &parent
}
