package scanner

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spscan/domain/scan"
	"spscan/domain/sharepoint"
	"spscan/infrastructure/report"
	"spscan/infrastructure/spclient"
)

// scanScenario wires an orchestrator over fakes populated with a
// small but representative site: one custom group with a nested
// security group, one direct grant, one library with a shared item.
type scanScenario struct {
	site *fakeSiteClient
	dir  *fakeDirectoryClient
	sink *fakeSink
	fs   afero.Fs
	orch *Orchestrator
}

func newScanScenario() *scanScenario {
	site, dir := nestedScenario()

	site.groups = []*sharepoint.SiteGroup{
		{ID: 5, Title: "HR Owners", OwnerTitle: "Alice Martin", Role: sharepoint.SiteGroupRoleCustom},
	}
	site.webAssignments = []spclient.RoleAssignment{
		{
			Member:    spclient.GroupMember{ID: 5, Title: "HR Owners", PrincipalType: sharepoint.PrincipalTypeSharePointGroup},
			RoleNames: []string{"Full Control", "Limited Access"},
		},
		{
			Member:    spclient.GroupMember{ID: 30, LoginName: "i:0#.f|membership|grace@contoso.com", Title: "Grace Hopper", Email: "grace@contoso.com", PrincipalType: sharepoint.PrincipalTypeUser},
			RoleNames: []string{"Read"},
		},
		{
			Member:    spclient.GroupMember{ID: 31, LoginName: "i:0#.f|membership|frank@contoso.com", Title: "Frank Lowe", PrincipalType: sharepoint.PrincipalTypeUser},
			RoleNames: []string{"Limited Access"},
		},
	}

	site.lists = []*sharepoint.List{
		{ID: "list-1", Title: "Documents", URL: "/sites/hr/Shared Documents", BaseTemplate: sharepoint.TemplateDocumentLibrary},
		{ID: "list-2", Title: "Hidden Config", BaseTemplate: sharepoint.TemplateGenericList, Hidden: true},
		{ID: "list-3", Title: "Web Part Gallery", BaseTemplate: 113},
	}
	site.items["list-1"] = []*sharepoint.Item{
		{ID: 1, GUID: "guid-1", ListID: "list-1", Name: "plain.docx", URL: "/sites/hr/Shared Documents/plain.docx"},
		{ID: 2, GUID: "guid-2", ListID: "list-1", Name: "shared.docx", URL: "/sites/hr/Shared Documents/shared.docx", HasUnique: true},
		{ID: 3, GUID: "guid-3", ListID: "list-1", Name: "other.docx", URL: "/sites/hr/Shared Documents/other.docx"},
	}
	site.itemAssignments[2] = []spclient.RoleAssignment{
		{
			Member:    spclient.GroupMember{ID: 30, LoginName: "i:0#.f|membership|grace@contoso.com", Title: "Grace Hopper", Email: "grace@contoso.com", PrincipalType: sharepoint.PrincipalTypeUser},
			RoleNames: []string{"Contribute"},
		},
		{
			Member:    spclient.GroupMember{ID: 40, Title: "SharingLinks.guid-2.Flexible.abc123", LoginName: "SharingLinks.guid-2.Flexible.abc123", PrincipalType: sharepoint.PrincipalTypeSharePointGroup},
			RoleNames: []string{"Limited Access", "Read"},
		},
	}
	site.sharing["guid-2"] = &spclient.ItemSharing{
		ItemGUID: "guid-2",
		Links: []spclient.SharingLinkInfo{
			{
				ShareID:   "abc123",
				URL:       "https://contoso.sharepoint.com/:w:/s/hr/abc123",
				CreatedAt: "2026-07-14T09:30:00Z",
				CreatedBy: &sharepoint.Principal{LoginName: "alice@contoso.com", Title: "Alice Martin"},
				Members: []sharepoint.Principal{
					{LoginName: "hank@contoso.com", Title: "Hank Reed", Email: "hank@contoso.com"},
				},
			},
		},
	}

	fs := afero.NewMemMapFs()
	sink := &fakeSink{fs: fs}
	orch := NewOrchestrator(site, dir, newMemoryGroupCache(), sink, fs, "staging")
	return &scanScenario{site: site, dir: dir, sink: sink, fs: fs, orch: orch}
}

func fullScanRequest() scan.Request {
	return scan.Request{
		SiteID:     "hr",
		Scope:      scan.ScopeAll,
		Parameters: testParameters(),
	}
}

// readTable parses one archived CSV table from the sink snapshot.
func readTable(t *testing.T, sink *fakeSink, table string) [][]string {
	t.Helper()
	content, ok := sink.contents[table+".csv"]
	require.True(t, ok, "table %s missing from archived report", table)
	rows, err := csv.NewReader(strings.NewReader(content)).ReadAll()
	require.NoError(t, err)
	return rows
}

func countStagedFiles(t *testing.T, fs afero.Fs) int {
	t.Helper()
	count := 0
	err := afero.Walk(fs, "staging", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info != nil && !info.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestOrchestrator_FullScanProducesReport(t *testing.T) {
	// Arrange
	s := newScanScenario()

	// Act
	result, err := s.orch.Run(context.Background(), fullScanRequest(), nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCompleted, result.Status)
	assert.Equal(t, "report-fixed-id", result.ReportID)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/hr", result.SiteURL)
	require.Equal(t, 1, s.sink.calls)
	require.Len(t, s.sink.files, 5)

	// Groups: the custom group with Limited Access filtered out.
	groups := readTable(t, s.sink, report.TableGroups)
	require.Len(t, groups, 2, "header plus one group")
	assert.Equal(t, []string{"5", "Custom", "HR Owners", "Full Control", "Alice Martin"}, groups[1])

	// Contents: only the visible non-system list survives.
	contents := readTable(t, s.sink, report.TableContents)
	require.Len(t, contents, 2)
	assert.Equal(t, []string{"list-1", "LIBRARY", "Documents", "/sites/hr/Shared Documents"}, contents[1])

	// Users: group expansion plus the direct Read grant, nothing for
	// the Limited Access only user.
	users := readTable(t, s.sink, report.TableUsers)
	require.Len(t, users, 5, "header, alice, bob, carol, grace")
	var logins []string
	for _, row := range users[1:] {
		logins = append(logins, row[1])
	}
	assert.Contains(t, logins, "i:0#.f|membership|alice@contoso.com")
	assert.Contains(t, logins, "bob@contoso.com")
	assert.Contains(t, logins, "carol@contoso.com")
	assert.Contains(t, logins, "i:0#.f|membership|grace@contoso.com")
	assert.NotContains(t, logins, "i:0#.f|membership|frank@contoso.com")

	// BrokenObjects: the one item with its own permissions.
	broken := readTable(t, s.sink, report.TableBrokenObjects)
	require.Len(t, broken, 2)
	assert.Equal(t, []string{"2", "FILE", "shared.docx", "/sites/hr/Shared Documents/shared.docx"}, broken[1])

	// BrokenAccess: the direct grant and the sharing link member with
	// its provenance columns filled.
	access := readTable(t, s.sink, report.TableBrokenAccess)
	require.Len(t, access, 3)
	byLogin := map[string][]string{}
	for _, row := range access[1:] {
		byLogin[row[2]] = row
	}
	grace := byLogin["i:0#.f|membership|grace@contoso.com"]
	require.NotNil(t, grace)
	assert.Equal(t, "Contribute", grace[5])
	assert.Equal(t, "direct", grace[9])

	hank := byLogin["hank@contoso.com"]
	require.NotNil(t, hank)
	assert.Equal(t, "Read", hank[5], "link members carry the assignment's filtered levels")
	assert.Equal(t, "sharing_link", hank[9])
	assert.Equal(t, "2026-07-14T09:30:00Z", hank[12])
	assert.Equal(t, "Alice Martin", hank[13])

	// Staging is cleaned once the report is archived.
	assert.Equal(t, 0, countStagedFiles(t, s.fs))

	// Stats reflect what was scanned.
	assert.Equal(t, 1, result.Stats.GroupsFound)
	assert.Equal(t, 1, result.Stats.BrokenInheritance)
	assert.Equal(t, 1, result.Stats.CacheMisses)
	assert.Equal(t, 0, result.Stats.Errors)
}

func TestOrchestrator_LibraryWithOwnPermissionsReported(t *testing.T) {
	// Arrange: the library itself stops inheriting, granting the
	// custom group and one direct user.
	s := newScanScenario()
	s.site.listHasUnique["list-1"] = true
	s.site.listAssignments["list-1"] = []spclient.RoleAssignment{
		{
			Member:    spclient.GroupMember{ID: 5, Title: "HR Owners", PrincipalType: sharepoint.PrincipalTypeSharePointGroup},
			RoleNames: []string{"Full Control"},
		},
		{
			Member:    spclient.GroupMember{ID: 30, LoginName: "i:0#.f|membership|grace@contoso.com", Title: "Grace Hopper", Email: "grace@contoso.com", PrincipalType: sharepoint.PrincipalTypeUser},
			RoleNames: []string{"Read", "Limited Access"},
		},
	}

	// Act
	result, err := s.orch.Run(context.Background(), fullScanRequest(), nil)

	// Assert: the library appears in BrokenObjects ahead of its items,
	// tagged with its container type.
	require.NoError(t, err)
	broken := readTable(t, s.sink, report.TableBrokenObjects)
	require.Len(t, broken, 3, "header, the library, the shared item")
	assert.Equal(t, []string{"list-1", "LIBRARY", "Documents", "/sites/hr/Shared Documents"}, broken[1])
	assert.Equal(t, []string{"2", "FILE", "shared.docx", "/sites/hr/Shared Documents/shared.docx"}, broken[2])
	assert.Equal(t, 2, result.Stats.BrokenInheritance)

	// Its assignments expand into BrokenAccess rows at the library URL.
	access := readTable(t, s.sink, report.TableBrokenAccess)
	var atLibrary []string
	for _, row := range access[1:] {
		if row[0] == "/sites/hr/Shared Documents" {
			atLibrary = append(atLibrary, row[2])
		}
	}
	assert.Contains(t, atLibrary, "i:0#.f|membership|alice@contoso.com", "group grant expands to its members")
	assert.Contains(t, atLibrary, "bob@contoso.com", "nested security group members included")
	assert.Contains(t, atLibrary, "i:0#.f|membership|grace@contoso.com", "direct grant on the library")
}

func TestOrchestrator_ListWithInheritedPermissionsNotReported(t *testing.T) {
	// Arrange: default scenario, no container declares its own
	// assignments.
	s := newScanScenario()

	// Act
	result, err := s.orch.Run(context.Background(), fullScanRequest(), nil)

	// Assert: only the shared item shows up.
	require.NoError(t, err)
	broken := readTable(t, s.sink, report.TableBrokenObjects)
	require.Len(t, broken, 2)
	assert.Equal(t, "FILE", broken[1][1])
	assert.Equal(t, 1, result.Stats.BrokenInheritance)
}

func TestOrchestrator_LimitedAccessNeverEmitted(t *testing.T) {
	// Arrange
	s := newScanScenario()

	// Act
	_, err := s.orch.Run(context.Background(), fullScanRequest(), nil)

	// Assert: the artifact role must not appear in any archived cell.
	require.NoError(t, err)
	for name, content := range s.sink.contents {
		assert.NotContains(t, content, "Limited Access", "table %s leaks the artifact role", name)
	}
}

func TestOrchestrator_CancellationDiscardsPartialOutput(t *testing.T) {
	// Arrange
	s := newScanScenario()
	ctx, cancel := context.WithCancel(context.Background())
	s.site.onItemsPage = func(call int) error {
		cancel()
		return nil
	}

	// Act
	result, err := s.orch.Run(ctx, fullScanRequest(), nil)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, scan.ErrCancelled)
	assert.Equal(t, scan.StatusCancelled, result.Status)
	assert.Equal(t, 0, s.sink.calls, "cancelled scans never reach the sink")
	assert.Equal(t, 0, countStagedFiles(t, s.fs), "partial CSV output is discarded")
}

func TestOrchestrator_AuthenticationFailureFailsScan(t *testing.T) {
	// Arrange
	s := newScanScenario()
	s.dir.err = fmt.Errorf("token rejected: %w", scan.ErrAuthentication)

	// Act
	result, err := s.orch.Run(context.Background(), fullScanRequest(), nil)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, scan.ErrAuthentication)
	assert.Equal(t, scan.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 0, s.sink.calls)
	assert.Equal(t, 0, countStagedFiles(t, s.fs))
}

func TestOrchestrator_ValidationRejectedBeforeRemoteCalls(t *testing.T) {
	// Arrange
	s := newScanScenario()

	// Act
	result, err := s.orch.Run(context.Background(), scan.Request{Scope: scan.ScopeAll}, nil)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, scan.ErrValidation)
	assert.Equal(t, scan.StatusFailed, result.Status)
	assert.Equal(t, 0, s.site.itemsPageCalls)
	assert.Equal(t, 0, s.site.groupMemberCalls)
}

func TestOrchestrator_StructureScopeSkipsGroupsAndItems(t *testing.T) {
	// Arrange
	s := newScanScenario()
	request := fullScanRequest()
	request.Scope = scan.ScopeStructure

	// Act
	result, err := s.orch.Run(context.Background(), request, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCompleted, result.Status)
	assert.Equal(t, 0, s.site.groupMemberCalls)
	assert.Equal(t, 0, s.site.itemsPageCalls)

	contents := readTable(t, s.sink, report.TableContents)
	assert.Len(t, contents, 2)
	users := readTable(t, s.sink, report.TableUsers)
	assert.Len(t, users, 1, "header only")
}

func TestOrchestrator_SubsiteRowsTagged(t *testing.T) {
	// Arrange
	s := newScanScenario()
	subURL := "https://contoso.sharepoint.com/sites/hr/archive"
	s.site.subwebs = []*sharepoint.Web{{ID: "web-2", URL: subURL, Title: "HR Archive"}}

	sub := newFakeSiteClient()
	sub.web = &sharepoint.Web{ID: "web-2", URL: subURL, Title: "HR Archive"}
	sub.webHasUnique = true
	sub.lists = []*sharepoint.List{
		{ID: "list-9", Title: "Archive Docs", URL: "/sites/hr/archive/docs", BaseTemplate: sharepoint.TemplateDocumentLibrary},
	}
	s.site.subClients[subURL] = sub

	request := fullScanRequest()
	request.IncludeSubsites = true

	// Act
	result, err := s.orch.Run(context.Background(), request, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.SubsitesScanned)

	contents := readTable(t, s.sink, report.TableContents)
	var types []string
	for _, row := range contents[1:] {
		types = append(types, row[1])
	}
	assert.Contains(t, types, "SUBSITE")
	assert.Contains(t, types, "LIBRARY", "subsite lists are scanned too")

	broken := readTable(t, s.sink, report.TableBrokenObjects)
	var brokenTypes []string
	for _, row := range broken[1:] {
		brokenTypes = append(brokenTypes, row[1])
	}
	assert.Contains(t, brokenTypes, "SUBSITE", "subsite with own permissions is reported")
}

func TestOrchestrator_ProgressEmittedPerPhase(t *testing.T) {
	// Arrange
	s := newScanScenario()
	progress := &recordingProgress{}

	// Act
	_, err := s.orch.Run(context.Background(), fullScanRequest(), progress)

	// Assert: every phase announces itself at least once, in order.
	require.NoError(t, err)
	require.NotEmpty(t, progress.stages)
	assert.Equal(t, scan.StandardStages.Connecting, progress.stages[0])
	assert.Contains(t, progress.stages, scan.StandardStages.Groups)
	assert.Contains(t, progress.stages, scan.StandardStages.Structure)
	assert.Contains(t, progress.stages, scan.StandardStages.Items)
	assert.Contains(t, progress.stages, scan.StandardStages.Finalization)
	last := progress.percentages[len(progress.percentages)-1]
	assert.Equal(t, 100, last)
}

// recordingProgress captures progress emissions for assertions.
type recordingProgress struct {
	stages      []string
	percentages []int
}

func (r *recordingProgress) ReportProgress(stage, description string, percentage int) {
	r.stages = append(r.stages, stage)
	r.percentages = append(r.percentages, percentage)
}

func (r *recordingProgress) ReportItemProgress(stage, description string, percentage, itemsDone, itemsTotal int) {
	r.ReportProgress(stage, description, percentage)
}
