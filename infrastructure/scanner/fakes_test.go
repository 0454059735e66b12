package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"spscan/domain/contracts"
	"spscan/domain/scan"
	"spscan/domain/sharepoint"
	"spscan/infrastructure/directory"
	"spscan/infrastructure/spclient"
)

// fakeSiteClient serves canned site data and implements the id-cursor
// paging contract over in-memory item slices.
type fakeSiteClient struct {
	web             *sharepoint.Web
	subwebs         []*sharepoint.Web
	lists           []*sharepoint.List
	groups          []*sharepoint.SiteGroup
	groupMembers    map[int64][]spclient.GroupMember
	webAssignments  []spclient.RoleAssignment
	listAssignments map[string][]spclient.RoleAssignment
	itemAssignments map[int][]spclient.RoleAssignment
	items           map[string][]*sharepoint.Item
	sharing         map[string]*spclient.ItemSharing
	webHasUnique    bool
	listHasUnique   map[string]bool
	subClients      map[string]*fakeSiteClient

	// onItemsPage runs before each page is served, for fault and
	// cancellation injection.
	onItemsPage func(call int) error

	itemsPageCalls   int
	groupMemberCalls int
}

func newFakeSiteClient() *fakeSiteClient {
	return &fakeSiteClient{
		web:             &sharepoint.Web{ID: "web-1", URL: "https://contoso.sharepoint.com/sites/hr", Title: "HR"},
		groupMembers:    map[int64][]spclient.GroupMember{},
		listAssignments: map[string][]spclient.RoleAssignment{},
		itemAssignments: map[int][]spclient.RoleAssignment{},
		items:           map[string][]*sharepoint.Item{},
		sharing:         map[string]*spclient.ItemSharing{},
		listHasUnique:   map[string]bool{},
		subClients:      map[string]*fakeSiteClient{},
	}
}

func (f *fakeSiteClient) GetWeb(ctx context.Context) (*sharepoint.Web, error) {
	return f.web, nil
}

func (f *fakeSiteClient) GetSubwebs(ctx context.Context) ([]*sharepoint.Web, error) {
	return f.subwebs, nil
}

func (f *fakeSiteClient) GetWebLists(ctx context.Context, webID string) ([]*sharepoint.List, error) {
	return f.lists, nil
}

func (f *fakeSiteClient) GetSiteGroups(ctx context.Context) ([]*sharepoint.SiteGroup, error) {
	return f.groups, nil
}

func (f *fakeSiteClient) GetSiteGroupMembers(ctx context.Context, groupID int64) ([]spclient.GroupMember, error) {
	f.groupMemberCalls++
	members, ok := f.groupMembers[groupID]
	if !ok {
		return nil, fmt.Errorf("unknown group %d", groupID)
	}
	return members, nil
}

func (f *fakeSiteClient) GetRoleAssignments(ctx context.Context, target spclient.PermissionTarget) ([]spclient.RoleAssignment, error) {
	switch target.ObjectType {
	case spclient.TargetWeb:
		return f.webAssignments, nil
	case spclient.TargetList:
		return f.listAssignments[target.ObjectID], nil
	default:
		return f.itemAssignments[target.ListItemID], nil
	}
}

func (f *fakeSiteClient) HasUniquePermissions(ctx context.Context, target spclient.PermissionTarget) (bool, error) {
	switch target.ObjectType {
	case spclient.TargetWeb:
		return f.webHasUnique, nil
	case spclient.TargetList:
		return f.listHasUnique[target.ObjectID], nil
	default:
		return false, nil
	}
}

func (f *fakeSiteClient) GetItemSharing(ctx context.Context, itemGUID string) (*spclient.ItemSharing, error) {
	if s, ok := f.sharing[itemGUID]; ok {
		return s, nil
	}
	return &spclient.ItemSharing{ItemGUID: itemGUID}, nil
}

func (f *fakeSiteClient) GetItemsPage(ctx context.Context, listID string, lastID int, top int) ([]*sharepoint.Item, error) {
	f.itemsPageCalls++
	if f.onItemsPage != nil {
		if err := f.onItemsPage(f.itemsPageCalls); err != nil {
			return nil, err
		}
	}

	all := append([]*sharepoint.Item(nil), f.items[listID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	var page []*sharepoint.Item
	for _, item := range all {
		if item.ID <= lastID {
			continue
		}
		page = append(page, item)
		if len(page) == top {
			break
		}
	}
	return page, nil
}

func (f *fakeSiteClient) ForWeb(webURL string) spclient.SiteClient {
	if sub, ok := f.subClients[webURL]; ok {
		return sub
	}
	sub := newFakeSiteClient()
	sub.web = &sharepoint.Web{ID: "sub-" + webURL, URL: webURL}
	return sub
}

// fakeDirectoryClient serves canned directory memberships and counts
// fetches so cache behavior is observable.
type fakeDirectoryClient struct {
	transitive map[string][]sharepoint.Principal
	direct     map[string][]sharepoint.Principal

	transitiveCalls int
	directCalls     int
	err             error
}

func newFakeDirectoryClient() *fakeDirectoryClient {
	return &fakeDirectoryClient{
		transitive: map[string][]sharepoint.Principal{},
		direct:     map[string][]sharepoint.Principal{},
	}
}

func (f *fakeDirectoryClient) GetTransitiveMembers(ctx context.Context, groupID string) ([]sharepoint.Principal, error) {
	f.transitiveCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.transitive[groupID], nil
}

func (f *fakeDirectoryClient) GetDirectMembers(ctx context.Context, groupID string) ([]sharepoint.Principal, error) {
	f.directCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.direct[groupID], nil
}

// memoryGroupCache is a map-backed GroupCache for tests.
type memoryGroupCache struct {
	mu      sync.Mutex
	entries map[string]*directory.CacheEntry
}

func newMemoryGroupCache() *memoryGroupCache {
	return &memoryGroupCache{entries: map[string]*directory.CacheEntry{}}
}

func (c *memoryGroupCache) Get(ctx context.Context, groupID string) (*directory.CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[groupID]
	return entry, ok, nil
}

func (c *memoryGroupCache) Put(ctx context.Context, entry *directory.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.GroupID] = entry
	return nil
}

func (c *memoryGroupCache) InvalidateAll(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := int64(len(c.entries))
	c.entries = map[string]*directory.CacheEntry{}
	return n, nil
}

// fakeSink captures CreateReport invocations. It snapshots the staged
// file contents at call time, since the orchestrator cleans the
// staging directory right after archival.
type fakeSink struct {
	fs       afero.Fs
	calls    int
	files    []contracts.ReportFile
	contents map[string]string
	metadata contracts.ReportMetadata
	err      error
}

func (s *fakeSink) CreateReport(ctx context.Context, reportType, name string, files []contracts.ReportFile, metadata contracts.ReportMetadata) (string, error) {
	s.calls++
	s.files = files
	s.metadata = metadata
	if s.err != nil {
		return "", s.err
	}

	s.contents = map[string]string{}
	for _, f := range files {
		data, err := afero.ReadFile(s.fs, f.Path)
		if err != nil {
			return "", err
		}
		s.contents[f.Name] = string(data)
	}
	return "report-fixed-id", nil
}

// testParameters returns parameters fast enough for unit tests: a
// pacing rate that never blocks and a small page size so pagination
// paths get exercised.
func testParameters() *scan.Parameters {
	return &scan.Parameters{
		MaxNestingDepth:     5,
		MaxSubsiteDepth:     3,
		SkipHidden:          true,
		BatchSize:           2,
		MaxThrottleRetries:  3,
		MaxTransientRetries: 2,
		RequestsPerSecond:   5000,
	}
}
