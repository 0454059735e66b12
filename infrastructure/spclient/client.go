package spclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"spscan/domain/scan"
	"spscan/domain/sharepoint"
	"spscan/logging"

	"github.com/koltyakov/gosip"
	"github.com/koltyakov/gosip/api"
)

// GroupMember is one raw member of a site group as returned by the
// site API, before claims classification.
type GroupMember struct {
	ID            int64
	LoginName     string
	Title         string
	Email         string
	PrincipalType int
}

// RoleAssignment is one raw role assignment on a web, list or item.
// Role names are unfiltered; grant parsing downstream drops the
// Limited Access artifact.
type RoleAssignment struct {
	Member    GroupMember
	RoleNames []string
}

// SharingLinkInfo describes one sharing link on an item, with the
// metadata needed for shared-access report rows.
type SharingLinkInfo struct {
	ShareID   string
	URL       string
	CreatedAt string // RFC3339 as returned by the API, empty when absent
	CreatedBy *sharepoint.Principal
	Members   []sharepoint.Principal
}

// ItemSharing is the sharing metadata for one item.
type ItemSharing struct {
	ItemGUID string
	Links    []SharingLinkInfo
}

// PermissionTarget identifies a securable object for permission queries.
type PermissionTarget struct {
	ObjectType string // "web", "list", or "item"
	ObjectID   string // web ID or list GUID; list GUID for items
	ListItemID int    // item integer ID, items only
}

// Securable object type tags for PermissionTarget.
const (
	TargetWeb  = "web"
	TargetList = "list"
	TargetItem = "item"
)

// SiteClient abstracts the SharePoint REST operations the scanner
// needs: site structure, site groups and their members, role
// assignments, sharing metadata and cursor-paged item retrieval.
type SiteClient interface {
	// Site structure
	GetWeb(ctx context.Context) (*sharepoint.Web, error)
	GetSubwebs(ctx context.Context) ([]*sharepoint.Web, error)
	GetWebLists(ctx context.Context, webID string) ([]*sharepoint.List, error)

	// Site groups
	GetSiteGroups(ctx context.Context) ([]*sharepoint.SiteGroup, error)
	GetSiteGroupMembers(ctx context.Context, groupID int64) ([]GroupMember, error)

	// Permissions
	GetRoleAssignments(ctx context.Context, target PermissionTarget) ([]RoleAssignment, error)
	HasUniquePermissions(ctx context.Context, target PermissionTarget) (bool, error)

	// Sharing
	GetItemSharing(ctx context.Context, itemGUID string) (*ItemSharing, error)

	// Items. Returns up to top items with Id strictly greater than
	// lastID, ordered by Id ascending.
	GetItemsPage(ctx context.Context, listID string, lastID int, top int) ([]*sharepoint.Item, error)

	// ForWeb derives a client addressing a subsite of the same site
	// collection, sharing this client's authentication.
	ForWeb(webURL string) SiteClient
}

// gosipSiteClient implements SiteClient over an authenticated Gosip
// client. Each instance is bound to one web endpoint; ForWeb derives a
// client for a subsite so the same scan logic can recurse. The auth
// client also serves direct HTTP calls to endpoints Gosip does not
// wrap (the sharing information API).
type gosipSiteClient struct {
	authClient    *gosip.SPClient
	webURL        string
	defaultConfig *api.RequestConfig
	logger        *logging.Logger
}

// NewSiteClient creates a SiteClient bound to the auth config's site URL.
func NewSiteClient(authClient *gosip.SPClient) SiteClient {
	return &gosipSiteClient{
		authClient:    authClient,
		webURL:        strings.TrimRight(authClient.AuthCnfg.GetSiteURL(), "/"),
		defaultConfig: &api.RequestConfig{},
		logger:        logging.Default().WithComponent("site_client"),
	}
}

// ForWeb returns a client addressing the given web, sharing this
// client's authentication.
func (c *gosipSiteClient) ForWeb(webURL string) SiteClient {
	clone := *c
	clone.webURL = strings.TrimRight(webURL, "/")
	return &clone
}

// web builds the API entry point for this client's web endpoint.
func (c *gosipSiteClient) web(ctx context.Context) *api.Web {
	return api.NewWeb(c.authClient, c.webURL+"/_api/web", c.createRequestConfig(ctx))
}

// createRequestConfig copies the default config with a per-request
// context for cancellation.
func (c *gosipSiteClient) createRequestConfig(ctx context.Context) *api.RequestConfig {
	config := *c.defaultConfig
	config.Context = ctx
	return &config
}

// OData field selectors used across queries.
const (
	webFields   = `Id,Title,Url,WebTemplate`
	listFields  = `Id,Title,Hidden,ItemCount,BaseTemplate,RootFolder/ServerRelativeUrl`
	groupFields = `Id,Title,OwnerTitle`
	userFields  = `Id,Title,LoginName,Email,PrincipalType`
	itemFields  = `Id,GUID,FileSystemObjectType,FileLeafRef,FileRef,HasUniqueRoleAssignments`

	roleAssignmentFields = `
		RoleAssignments/Member/Id,
		RoleAssignments/Member/Title,
		RoleAssignments/Member/LoginName,
		RoleAssignments/Member/PrincipalType,
		RoleAssignments/Member/Email,
		RoleAssignments/RoleDefinitionBindings/Id,
		RoleAssignments/RoleDefinitionBindings/Name
	`
	roleAssignmentExpand = `
		RoleAssignments,
		RoleAssignments/Member,
		RoleAssignments/RoleDefinitionBindings
	`
)

// SharePoint FileSystemObjectType values.
const (
	fsObjectFile   = 0
	fsObjectFolder = 1
)

// GetWeb retrieves the web this client is bound to. The first call of
// every scan.
func (c *gosipSiteClient) GetWeb(ctx context.Context) (*sharepoint.Web, error) {
	res, err := c.web(ctx).Select(webFields).Get()
	if err != nil {
		return nil, fmt.Errorf("get web: %w", classifyRemoteError(err))
	}

	var webData struct {
		Id          string
		Title       string
		Url         string
		WebTemplate string
	}
	if err := json.Unmarshal(res.Normalized(), &webData); err != nil {
		return nil, fmt.Errorf("decode web: %w", err)
	}

	return &sharepoint.Web{
		ID:       webData.Id,
		URL:      webData.Url,
		Title:    webData.Title,
		Template: webData.WebTemplate,
	}, nil
}

// GetSubwebs retrieves the immediate child webs of the connected web.
func (c *gosipSiteClient) GetSubwebs(ctx context.Context) ([]*sharepoint.Web, error) {
	res, err := c.web(ctx).Webs().Select(webFields).Get()
	if err != nil {
		return nil, fmt.Errorf("get subwebs: %w", classifyRemoteError(err))
	}

	var websData []struct {
		Id          string
		Title       string
		Url         string
		WebTemplate string
	}
	if err := json.Unmarshal(res.Normalized(), &websData); err != nil {
		return nil, fmt.Errorf("decode subwebs: %w", err)
	}

	webs := make([]*sharepoint.Web, 0, len(websData))
	for _, w := range websData {
		webs = append(webs, &sharepoint.Web{
			ID:       w.Id,
			URL:      w.Url,
			Title:    w.Title,
			Template: w.WebTemplate,
		})
	}
	return webs, nil
}

// GetWebLists retrieves all lists of the web with the metadata needed
// for structure scanning.
func (c *gosipSiteClient) GetWebLists(ctx context.Context, webID string) ([]*sharepoint.List, error) {
	res, err := c.web(ctx).Lists().Select(listFields).Expand(`RootFolder`).Get()
	if err != nil {
		return nil, fmt.Errorf("get lists: %w", classifyRemoteError(err))
	}

	var listsData []struct {
		Id           string
		Title        string
		Hidden       bool
		ItemCount    int
		BaseTemplate int
		RootFolder   struct{ ServerRelativeUrl string }
	}
	if err := json.Unmarshal(res.Normalized(), &listsData); err != nil {
		return nil, fmt.Errorf("decode lists: %w", err)
	}

	lists := make([]*sharepoint.List, 0, len(listsData))
	for _, l := range listsData {
		lists = append(lists, &sharepoint.List{
			ID:           l.Id,
			WebID:        webID,
			Title:        l.Title,
			URL:          joinURL(c.webURL, l.RootFolder.ServerRelativeUrl),
			BaseTemplate: l.BaseTemplate,
			ItemCount:    l.ItemCount,
			Hidden:       l.Hidden,
		})
	}
	return lists, nil
}

// GetSiteGroups retrieves the web's site groups, classified by the
// associated owner/member/visitor group ids.
func (c *gosipSiteClient) GetSiteGroups(ctx context.Context) ([]*sharepoint.SiteGroup, error) {
	assocRes, err := c.web(ctx).
		Select(`AssociatedOwnerGroup/Id,AssociatedMemberGroup/Id,AssociatedVisitorGroup/Id`).
		Expand(`AssociatedOwnerGroup,AssociatedMemberGroup,AssociatedVisitorGroup`).
		Get()
	if err != nil {
		return nil, fmt.Errorf("get associated groups: %w", classifyRemoteError(err))
	}

	var assoc struct {
		AssociatedOwnerGroup   struct{ Id int64 }
		AssociatedMemberGroup  struct{ Id int64 }
		AssociatedVisitorGroup struct{ Id int64 }
	}
	if err := json.Unmarshal(assocRes.Normalized(), &assoc); err != nil {
		return nil, fmt.Errorf("decode associated groups: %w", err)
	}

	res, err := c.web(ctx).SiteGroups().Select(groupFields).Get()
	if err != nil {
		return nil, fmt.Errorf("get site groups: %w", classifyRemoteError(err))
	}

	var groupsData []struct {
		Id         int64
		Title      string
		OwnerTitle string
	}
	if err := json.Unmarshal(res.Normalized(), &groupsData); err != nil {
		return nil, fmt.Errorf("decode site groups: %w", err)
	}

	groups := make([]*sharepoint.SiteGroup, 0, len(groupsData))
	for _, g := range groupsData {
		role := sharepoint.SiteGroupRoleCustom
		switch g.Id {
		case assoc.AssociatedOwnerGroup.Id:
			role = sharepoint.SiteGroupRoleOwners
		case assoc.AssociatedMemberGroup.Id:
			role = sharepoint.SiteGroupRoleMembers
		case assoc.AssociatedVisitorGroup.Id:
			role = sharepoint.SiteGroupRoleVisitors
		}
		groups = append(groups, &sharepoint.SiteGroup{
			ID:         g.Id,
			Title:      g.Title,
			OwnerTitle: g.OwnerTitle,
			Role:       role,
		})
	}
	return groups, nil
}

// GetSiteGroupMembers retrieves the direct members of one site group.
// Members may be users or directory groups; the caller classifies via
// the claims-formatted login names.
func (c *gosipSiteClient) GetSiteGroupMembers(ctx context.Context, groupID int64) ([]GroupMember, error) {
	res, err := c.web(ctx).SiteGroups().GetByID(int(groupID)).Users().Select(userFields).Get()
	if err != nil {
		return nil, fmt.Errorf("get group %d members: %w", groupID, classifyRemoteError(err))
	}

	var usersData []struct {
		Id            int64
		Title         string
		LoginName     string
		Email         string
		PrincipalType int
	}
	if err := json.Unmarshal(res.Normalized(), &usersData); err != nil {
		return nil, fmt.Errorf("decode group %d members: %w", groupID, err)
	}

	members := make([]GroupMember, 0, len(usersData))
	for _, u := range usersData {
		members = append(members, GroupMember{
			ID:            u.Id,
			LoginName:     u.LoginName,
			Title:         strings.TrimSpace(u.Title),
			Email:         u.Email,
			PrincipalType: u.PrincipalType,
		})
	}
	return members, nil
}

// GetRoleAssignments retrieves the explicit role assignments of a web,
// list or item.
func (c *gosipSiteClient) GetRoleAssignments(ctx context.Context, target PermissionTarget) ([]RoleAssignment, error) {
	var normalized []byte

	switch target.ObjectType {
	case TargetWeb:
		res, err := c.web(ctx).
			Select(roleAssignmentFields).
			Expand(roleAssignmentExpand).
			Get()
		if err != nil {
			return nil, fmt.Errorf("get web role assignments: %w", classifyRemoteError(err))
		}
		normalized = res.Normalized()

	case TargetList:
		res, err := c.web(ctx).Lists().GetByID(target.ObjectID).
			Select(roleAssignmentFields).
			Expand(roleAssignmentExpand).
			Get()
		if err != nil {
			return nil, fmt.Errorf("get list role assignments: %w", classifyRemoteError(err))
		}
		normalized = res.Normalized()

	case TargetItem:
		res, err := c.web(ctx).Lists().GetByID(target.ObjectID).Items().GetByID(target.ListItemID).
			Select(roleAssignmentFields).
			Expand(roleAssignmentExpand).
			Get()
		if err != nil {
			return nil, fmt.Errorf("get item role assignments: %w", classifyRemoteError(err))
		}
		normalized = res.Normalized()

	default:
		return nil, fmt.Errorf("unknown target type: %s", target.ObjectType)
	}

	return parseRoleAssignments(normalized)
}

// HasUniquePermissions reports whether the object has its own role
// assignments rather than inheriting from its parent.
func (c *gosipSiteClient) HasUniquePermissions(ctx context.Context, target PermissionTarget) (bool, error) {
	var (
		unique bool
		err    error
	)
	switch target.ObjectType {
	case TargetWeb:
		unique, err = c.web(ctx).Roles().HasUniqueAssignments()
	case TargetList:
		unique, err = c.web(ctx).Lists().GetByID(target.ObjectID).Roles().HasUniqueAssignments()
	case TargetItem:
		unique, err = c.web(ctx).Lists().GetByID(target.ObjectID).Items().GetByID(target.ListItemID).Roles().HasUniqueAssignments()
	default:
		return false, fmt.Errorf("unknown target type: %s", target.ObjectType)
	}
	if err != nil {
		return false, classifyRemoteError(err)
	}
	return unique, nil
}

// GetItemsPage retrieves one page of list items using an id cursor.
// The filter, ordering and page size are re-applied on every call; the
// platform silently ignores $skip on large lists, so offset paging is
// never used.
func (c *gosipSiteClient) GetItemsPage(ctx context.Context, listID string, lastID int, top int) ([]*sharepoint.Item, error) {
	res, err := c.web(ctx).Lists().GetByID(listID).Items().
		Select(itemFields).
		Filter(fmt.Sprintf("Id gt %d", lastID)).
		OrderBy("Id", true).
		Top(top).
		Get()
	if err != nil {
		return nil, fmt.Errorf("get items page (list %s, after %d): %w", listID, lastID, classifyRemoteError(err))
	}

	var itemsData []struct {
		Id                       int
		GUID                     string
		FileSystemObjectType     int
		FileLeafRef              string
		FileRef                  string
		HasUniqueRoleAssignments bool
	}
	if err := json.Unmarshal(res.Normalized(), &itemsData); err != nil {
		return nil, fmt.Errorf("decode items page: %w", err)
	}

	items := make([]*sharepoint.Item, 0, len(itemsData))
	for _, it := range itemsData {
		items = append(items, &sharepoint.Item{
			ID:        it.Id,
			GUID:      it.GUID,
			ListID:    listID,
			Name:      it.FileLeafRef,
			URL:       joinURL(c.webURL, it.FileRef),
			IsFolder:  it.FileSystemObjectType == fsObjectFolder,
			HasUnique: it.HasUniqueRoleAssignments,
		})
	}
	return items, nil
}

// GetItemSharing retrieves sharing link metadata for an item through
// the sharing information API, which Gosip does not wrap. Failures
// degrade to empty sharing info so one item cannot abort a scan.
func (c *gosipSiteClient) GetItemSharing(ctx context.Context, itemGUID string) (*ItemSharing, error) {
	empty := &ItemSharing{ItemGUID: itemGUID}
	if c.authClient == nil {
		c.logger.Warn("No auth client available for sharing API", "item_guid", itemGUID)
		return empty, nil
	}

	httpClient := api.NewHTTPClient(c.authClient)
	siteURL := c.webURL
	if siteURL == "" {
		siteURL = c.authClient.AuthCnfg.GetSiteURL()
	}

	endpoint := fmt.Sprintf(
		"%s/_api/web/GetFileById(guid'%s')/ListItemAllFields/GetSharingInformation?$expand=permissionsInformation",
		siteURL, itemGUID,
	)

	data, err := httpClient.Post(endpoint, strings.NewReader("{}"), &api.RequestConfig{Context: ctx})
	if err != nil {
		if classified := classifyRemoteError(err); scan.IsFatal(classified) {
			return nil, fmt.Errorf("get sharing info %s: %w", itemGUID, classified)
		}
		c.logger.Warn("Failed to get sharing info", "item_guid", itemGUID, "error", err.Error())
		return empty, nil
	}

	apiResp, err := decodeSharingResponse(data)
	if err != nil {
		c.logger.Warn("Failed to decode sharing info", "item_guid", itemGUID, "error", err.Error())
		return empty, nil
	}

	return mapSharingResponse(itemGUID, apiResp), nil
}

// parseRoleAssignments converts normalized role assignment JSON into
// raw assignments, one entry per member with its role names.
func parseRoleAssignments(data []byte) ([]RoleAssignment, error) {
	type payload struct {
		RoleAssignments []*struct {
			Member *struct {
				Id            int64
				Title         string
				LoginName     string
				PrincipalType int
				Email         string
			}
			RoleDefinitionBindings []*struct {
				Id   int64
				Name string
			}
		}
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode role assignments: %w", err)
	}

	assignments := make([]RoleAssignment, 0, len(p.RoleAssignments))
	for _, ra := range p.RoleAssignments {
		if ra == nil || ra.Member == nil {
			continue
		}
		names := make([]string, 0, len(ra.RoleDefinitionBindings))
		for _, rd := range ra.RoleDefinitionBindings {
			if rd == nil {
				continue
			}
			names = append(names, rd.Name)
		}
		assignments = append(assignments, RoleAssignment{
			Member: GroupMember{
				ID:            ra.Member.Id,
				LoginName:     ra.Member.LoginName,
				Title:         strings.TrimSpace(ra.Member.Title),
				Email:         ra.Member.Email,
				PrincipalType: ra.Member.PrincipalType,
			},
			RoleNames: names,
		})
	}
	return assignments, nil
}
