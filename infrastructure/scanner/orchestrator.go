package scanner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"spscan/domain/contracts"
	"spscan/domain/scan"
	"spscan/domain/sharepoint"
	"spscan/infrastructure/directory"
	"spscan/infrastructure/report"
	"spscan/infrastructure/spclient"
	"spscan/logging"
)

// progressInterval is the longest gap allowed between progress
// emissions during item loops.
const progressInterval = 5 * time.Second

// sharingLinkPrefix marks role assignment members that are sharing
// link groups rather than real site groups.
const sharingLinkPrefix = "SharingLinks."

// Orchestrator sequences the scanning phases for one site: connect,
// site groups, structure, broken-inheritance items, optional subsite
// recursion, then report archival. A single scan is strictly
// sequential; scans of different sites may run concurrently and share
// only the directory group cache.
type Orchestrator struct {
	site       spclient.SiteClient
	dir        directory.DirectoryClient
	cache      directory.GroupCache
	sink       contracts.ReportSink
	fs         afero.Fs
	stagingDir string
	logger     *logging.Logger
}

// NewOrchestrator creates an orchestrator. The site client must be
// bound to the site the requests will target; staging CSV files are
// written under stagingDir until archival.
func NewOrchestrator(
	site spclient.SiteClient,
	dir directory.DirectoryClient,
	cache directory.GroupCache,
	sink contracts.ReportSink,
	fs afero.Fs,
	stagingDir string,
) *Orchestrator {
	return &Orchestrator{
		site:       site,
		dir:        dir,
		cache:      cache,
		sink:       sink,
		fs:         fs,
		stagingDir: stagingDir,
		logger:     logging.Default().WithComponent("scan_orchestrator"),
	}
}

// Run executes one scan to completion. The terminal result is always
// returned; the error mirrors result.Error for failed and cancelled
// scans. Failed and cancelled scans discard their partial CSV output
// and never touch the report sink.
func (o *Orchestrator) Run(ctx context.Context, request scan.Request, progress scan.ProgressReporter) (*scan.Result, error) {
	if progress == nil {
		progress = scan.NewNoOpProgressReporter()
	}

	result := &scan.Result{
		Status:    scan.StatusRunning,
		StartedAt: time.Now(),
	}

	if err := request.Validate(); err != nil {
		result.Status = scan.StatusFailed
		result.Error = err.Error()
		result.CompletedAt = time.Now()
		return result, err
	}

	params := request.Parameters
	if params == nil {
		params = scan.DefaultParameters()
	}
	if err := params.ValidateAndSetDefaults(); err != nil {
		result.Status = scan.StatusFailed
		result.Error = err.Error()
		result.CompletedAt = time.Now()
		return result, fmt.Errorf("%w: %v", scan.ErrValidation, err)
	}

	writer, err := report.NewCsvReportWriter(o.fs, filepath.Join(o.stagingDir, uuid.NewString()))
	if err != nil {
		result.Status = scan.StatusFailed
		result.Error = err.Error()
		result.CompletedAt = time.Now()
		return result, err
	}

	stats := &scan.Stats{}
	throttle := NewThrottleController(params)
	run := &scanRun{
		orchestrator: o,
		request:      request,
		params:       params,
		stats:        stats,
		throttle:     throttle,
		resolver:     NewGroupResolver(o.site, o.dir, o.cache, throttle, params.MaxNestingDepth, stats),
		writer:       writer,
		progress:     progress,
		metrics:      NewPerformanceMetrics(),
		logger:       o.logger,
	}

	runErr := run.execute(ctx)
	result.SiteURL = run.siteURL
	result.Stats = *stats
	result.CompletedAt = time.Now()

	if runErr != nil {
		if discardErr := writer.Discard(); discardErr != nil {
			o.logger.Warn("Failed to discard partial report", "error", discardErr.Error())
		}
		if errors.Is(runErr, scan.ErrCancelled) {
			result.Status = scan.StatusCancelled
		} else {
			result.Status = scan.StatusFailed
		}
		result.Error = runErr.Error()
		return result, runErr
	}

	reportID, finalErr := run.finalize(ctx)
	if finalErr != nil {
		if discardErr := writer.Discard(); discardErr != nil {
			o.logger.Warn("Failed to discard partial report", "error", discardErr.Error())
		}
		if errors.Is(finalErr, scan.ErrCancelled) || errors.Is(finalErr, context.Canceled) {
			result.Status = scan.StatusCancelled
		} else {
			result.Status = scan.StatusFailed
		}
		result.Error = finalErr.Error()
		return result, finalErr
	}

	result.Status = scan.StatusCompleted
	result.ReportID = reportID
	run.metrics.CalculateTotalDuration(result.StartedAt)
	run.metrics.LogPerformanceMetrics(o.logger, run.siteURL)
	return result, nil
}

// scanRun holds the per-scan state; the orchestrator itself stays
// reusable across scans.
type scanRun struct {
	orchestrator *Orchestrator
	request      scan.Request
	params       *scan.Parameters
	stats        *scan.Stats
	throttle     *ThrottleController
	resolver     *GroupResolver
	writer       *report.CsvReportWriter
	progress     scan.ProgressReporter
	metrics      *PerformanceMetrics
	logger       *logging.Logger

	siteURL      string
	startedAt    time.Time
	lastProgress time.Time
}

// execute runs the phase chain against the root web.
func (r *scanRun) execute(ctx context.Context) error {
	r.startedAt = time.Now()
	r.emitProgress(scan.StandardStages.Connecting, "Connecting to site", 5)

	connectStart := r.metrics.StartTiming()
	var web *sharepoint.Web
	err := r.throttle.Do(ctx, "get_web", func() error {
		var webErr error
		web, webErr = r.orchestrator.site.GetWeb(ctx)
		return webErr
	})
	if err != nil {
		return err
	}
	r.siteURL = web.URL
	r.metrics.RecordConnect(connectStart)

	if err := r.scanWeb(ctx, r.orchestrator.site, web, 0); err != nil {
		return err
	}
	return nil
}

// scanWeb runs the scoped phases for one web, then recurses into its
// subsites. The group phase only runs at the root: site groups are
// site-collection scoped and re-enumerating them per subsite would
// duplicate report rows.
func (r *scanRun) scanWeb(ctx context.Context, client spclient.SiteClient, web *sharepoint.Web, depth int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", scan.ErrCancelled, err)
	}

	if depth == 0 && r.request.Scope.IncludesGroups() {
		if err := r.phaseGroups(ctx, client); err != nil {
			return err
		}
	}

	// Items need the list inventory even when the structure phase is
	// scoped out.
	var lists []*sharepoint.List
	if r.request.Scope.IncludesStructure() || r.request.Scope.IncludesItems() {
		err := r.throttle.Do(ctx, "get_lists", func() error {
			var listErr error
			lists, listErr = client.GetWebLists(ctx, web.ID)
			return listErr
		})
		if err != nil {
			return err
		}
		lists = r.filterLists(lists)
	}

	if r.request.Scope.IncludesStructure() {
		if err := r.phaseStructure(ctx, lists, depth); err != nil {
			return err
		}
	}

	if r.request.Scope.IncludesItems() {
		if err := r.phaseItems(ctx, client, lists); err != nil {
			return err
		}
	}

	return r.phaseSubsites(ctx, client, depth)
}

// filterLists drops platform system lists and, when configured,
// hidden lists.
func (r *scanRun) filterLists(lists []*sharepoint.List) []*sharepoint.List {
	kept := make([]*sharepoint.List, 0, len(lists))
	for _, l := range lists {
		if l.IsSystemList() {
			continue
		}
		if r.params.SkipHidden && l.Hidden {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

// phaseGroups writes the Groups table and expands every site-level
// grant into Users rows.
func (r *scanRun) phaseGroups(ctx context.Context, client spclient.SiteClient) error {
	r.emitProgress(scan.StandardStages.Groups, "Resolving site groups and members", 20)
	start := r.metrics.StartTiming()

	var assignments []spclient.RoleAssignment
	err := r.throttle.Do(ctx, "get_web_role_assignments", func() error {
		var raErr error
		assignments, raErr = client.GetRoleAssignments(ctx, spclient.PermissionTarget{ObjectType: spclient.TargetWeb})
		return raErr
	})
	if err != nil {
		return err
	}

	// Permission levels per principal id, with Limited Access dropped.
	levelsByID := make(map[int64][]string, len(assignments))
	for _, a := range assignments {
		levels := sharepoint.FilterLimitedAccess(a.RoleNames)
		if len(levels) > 0 {
			levelsByID[a.Member.ID] = levels
		}
	}

	var groups []*sharepoint.SiteGroup
	err = r.throttle.Do(ctx, "get_site_groups", func() error {
		var grErr error
		groups, grErr = client.GetSiteGroups(ctx)
		return grErr
	})
	if err != nil {
		return err
	}

	membersResolved := 0
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", scan.ErrCancelled, err)
		}
		if strings.HasPrefix(g.Title, sharingLinkPrefix) {
			continue
		}

		g.PermissionLevels = levelsByID[g.ID]
		if err := r.writer.WriteGroup(g); err != nil {
			return err
		}
		r.stats.GroupsFound++

		identity := sharepoint.GroupIdentity{
			Kind:  sharepoint.GroupKindSiteGroup,
			ID:    strconv.FormatInt(g.ID, 10),
			Title: g.Title,
		}
		members, resolveErr := r.resolver.Resolve(ctx, identity, 1, nil)
		if resolveErr != nil {
			if scan.IsFatal(resolveErr) {
				return resolveErr
			}
			r.logger.Warn("Failed to resolve site group", "group", g.Title, "error", resolveErr.Error())
			r.stats.Errors++
			r.metrics.RecordError()
			continue
		}

		for _, m := range members {
			row := r.userRow(m, g.PermissionLevels, sharepoint.AssignmentGroup)
			if err := r.writer.WriteUser(row); err != nil {
				return err
			}
			r.stats.UsersFound++
		}
		membersResolved += len(members)
		r.maybeEmitProgress(scan.StandardStages.Groups, "Resolving site groups and members", 20)
	}

	// Grants made straight on the web: users at level 0, directory
	// groups expanded from level 1.
	for _, a := range assignments {
		levels := sharepoint.FilterLimitedAccess(a.RoleNames)
		if len(levels) == 0 {
			continue
		}

		switch {
		case a.Member.PrincipalType == sharepoint.PrincipalTypeUser:
			row := r.userRow(sharepoint.ResolvedMember{
				Principal: sharepoint.Principal{
					ID:        a.Member.ID,
					LoginName: a.Member.LoginName,
					Title:     a.Member.Title,
					Email:     a.Member.Email,
				},
			}, levels, sharepoint.AssignmentDirect)
			if err := r.writer.WriteUser(row); err != nil {
				return err
			}
			r.stats.UsersFound++

		case sharepoint.IsDirectoryGroupMember(a.Member.PrincipalType, a.Member.LoginName):
			identity, _ := sharepoint.ParseDirectoryGroupClaim(a.Member.LoginName, a.Member.Title)
			members, resolveErr := r.resolver.Resolve(ctx, identity, 1, nil)
			if resolveErr != nil {
				if scan.IsFatal(resolveErr) {
					return resolveErr
				}
				r.logger.Warn("Failed to resolve directory group grant", "group", a.Member.Title, "error", resolveErr.Error())
				r.stats.Errors++
				r.metrics.RecordError()
				continue
			}
			for _, m := range members {
				row := r.userRow(m, levels, sharepoint.AssignmentGroup)
				if err := r.writer.WriteUser(row); err != nil {
					return err
				}
				r.stats.UsersFound++
			}
			membersResolved += len(members)
		}
	}

	r.metrics.RecordGroups(start, len(groups), membersResolved)
	return nil
}

// phaseStructure writes the Contents rows for this web's lists.
func (r *scanRun) phaseStructure(ctx context.Context, lists []*sharepoint.List, depth int) error {
	if depth == 0 {
		r.emitProgress(scan.StandardStages.Structure, "Scanning site structure", 40)
	}
	start := r.metrics.StartTiming()

	for _, l := range lists {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", scan.ErrCancelled, err)
		}
		obj := sharepoint.ScannedObject{
			ID:    l.ID,
			Type:  l.ObjectType(),
			Title: l.Title,
			URL:   l.URL,
		}
		if err := r.writer.WriteContent(obj); err != nil {
			return err
		}
		r.stats.ObjectsScanned++
	}

	r.metrics.RecordStructure(start, len(lists))
	return nil
}

// phaseItems pages every list's items looking for broken inheritance.
func (r *scanRun) phaseItems(ctx context.Context, client spclient.SiteClient, lists []*sharepoint.List) error {
	r.emitProgress(scan.StandardStages.Items, "Scanning items for unique permissions", 70)
	start := r.metrics.StartTiming()

	fetcher := NewPaginatedFetcher(client, r.throttle, r.params.BatchSize)
	itemsProcessed := 0
	itemsWithUnique := 0

	for i, l := range lists {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", scan.ErrCancelled, err)
		}

		isLibrary := l.ObjectType() != sharepoint.ObjectTypeList
		list := l

		if err := r.recordListInheritance(ctx, client, list); err != nil {
			return err
		}

		err := fetcher.FetchItems(ctx, list, func(item *sharepoint.Item) error {
			itemsProcessed++
			r.stats.ObjectsScanned++
			r.maybeEmitItemProgress(scan.StandardStages.Items,
				fmt.Sprintf("Scanning %s", list.Title), 70, itemsProcessed, 0)

			if !item.HasUnique {
				return nil
			}
			itemsWithUnique++
			return r.processBrokenItem(ctx, client, list, item, isLibrary)
		})
		if err != nil {
			return err
		}

		r.logger.Debug("List item scan complete",
			"list_title", list.Title, "lists_done", i+1, "lists_total", len(lists))
	}

	r.metrics.RecordItems(start, itemsProcessed, itemsWithUnique)
	return nil
}

// recordListInheritance writes a LIST or LIBRARY BrokenObjects entry
// when the container itself declares its own role assignments, and
// expands those assignments into BrokenAccess rows at the list URL.
// Items inside are still checked individually afterwards.
func (r *scanRun) recordListInheritance(ctx context.Context, client spclient.SiteClient, list *sharepoint.List) error {
	target := spclient.PermissionTarget{ObjectType: spclient.TargetList, ObjectID: list.ID}

	err := r.throttle.Do(ctx, "check_list_permissions", func() error {
		var uErr error
		list.HasUnique, uErr = client.HasUniquePermissions(ctx, target)
		return uErr
	})
	if err != nil {
		if scan.IsFatal(err) {
			return err
		}
		r.logger.Warn("Failed to check list permissions",
			"list", list.Title, "error", err.Error())
		r.stats.Errors++
		r.metrics.RecordError()
		return nil
	}
	if !list.HasUnique {
		return nil
	}

	r.stats.BrokenInheritance++
	if err := r.writer.WriteBrokenObject(sharepoint.ScannedObject{
		ID:    list.ID,
		Type:  list.ObjectType(),
		Title: list.Title,
		URL:   list.URL,
	}); err != nil {
		return err
	}

	var assignments []spclient.RoleAssignment
	err = r.throttle.Do(ctx, "get_list_role_assignments", func() error {
		var raErr error
		assignments, raErr = client.GetRoleAssignments(ctx, target)
		return raErr
	})
	if err != nil {
		if scan.IsFatal(err) {
			return err
		}
		r.logger.Warn("Failed to read list permissions",
			"list", list.Title, "error", err.Error())
		r.stats.Errors++
		r.metrics.RecordError()
		return nil
	}

	for _, a := range assignments {
		levels := sharepoint.FilterLimitedAccess(a.RoleNames)
		if len(levels) == 0 {
			continue
		}
		// Sharing links live on files, not containers; skip the
		// artifact principals if the API reports any here.
		if strings.HasPrefix(a.Member.Title, sharingLinkPrefix) || strings.HasPrefix(a.Member.LoginName, sharingLinkPrefix) {
			continue
		}
		if err := r.emitAssignmentAccess(ctx, list.URL, a, levels); err != nil {
			return err
		}
	}
	return nil
}

// processBrokenItem records one item with its own role assignments:
// a BrokenObjects row plus one BrokenAccess row per resolved accessor.
// Failures here are per-item: logged and counted, never fatal unless
// the error class aborts the whole scan.
func (r *scanRun) processBrokenItem(ctx context.Context, client spclient.SiteClient, list *sharepoint.List, item *sharepoint.Item, isLibrary bool) error {
	r.stats.BrokenInheritance++

	obj := sharepoint.ScannedObject{
		ID:    strconv.Itoa(item.ID),
		Type:  item.ObjectType(isLibrary),
		Title: item.Name,
		URL:   item.URL,
	}
	if err := r.writer.WriteBrokenObject(obj); err != nil {
		return err
	}

	var assignments []spclient.RoleAssignment
	err := r.throttle.Do(ctx, "get_item_role_assignments", func() error {
		var raErr error
		assignments, raErr = client.GetRoleAssignments(ctx, spclient.PermissionTarget{
			ObjectType: spclient.TargetItem,
			ObjectID:   list.ID,
			ListItemID: item.ID,
		})
		return raErr
	})
	if err != nil {
		if scan.IsFatal(err) {
			return err
		}
		r.logger.Warn("Failed to read item permissions",
			"list", list.Title, "item_id", item.ID, "error", err.Error())
		r.stats.Errors++
		r.metrics.RecordError()
		return nil
	}

	sharingEmitted := false
	for _, a := range assignments {
		levels := sharepoint.FilterLimitedAccess(a.RoleNames)
		if len(levels) == 0 {
			continue
		}

		if strings.HasPrefix(a.Member.Title, sharingLinkPrefix) || strings.HasPrefix(a.Member.LoginName, sharingLinkPrefix) {
			if sharingEmitted {
				continue
			}
			sharingEmitted = true
			if err := r.emitSharingAccess(ctx, client, item, levels); err != nil {
				return err
			}
			continue
		}

		if err := r.emitAssignmentAccess(ctx, item.URL, a, levels); err != nil {
			return err
		}
	}

	return nil
}

// emitAssignmentAccess writes the BrokenAccess rows for one non-link
// role assignment: group grants expand through the resolver, user
// grants emit a single direct row.
func (r *scanRun) emitAssignmentAccess(ctx context.Context, url string, a spclient.RoleAssignment, levels []string) error {
	switch {
	case a.Member.PrincipalType == sharepoint.PrincipalTypeSharePointGroup:
		identity := sharepoint.GroupIdentity{
			Kind:  sharepoint.GroupKindSiteGroup,
			ID:    strconv.FormatInt(a.Member.ID, 10),
			Title: a.Member.Title,
		}
		return r.emitGroupAccess(ctx, url, identity, levels)

	case sharepoint.IsDirectoryGroupMember(a.Member.PrincipalType, a.Member.LoginName):
		identity, _ := sharepoint.ParseDirectoryGroupClaim(a.Member.LoginName, a.Member.Title)
		return r.emitGroupAccess(ctx, url, identity, levels)

	case a.Member.PrincipalType == sharepoint.PrincipalTypeUser:
		row := r.userRow(sharepoint.ResolvedMember{
			Principal: sharepoint.Principal{
				ID:        a.Member.ID,
				LoginName: a.Member.LoginName,
				Title:     a.Member.Title,
				Email:     a.Member.Email,
			},
		}, levels, sharepoint.AssignmentDirect)
		if err := r.writer.WriteBrokenAccess(url, row, "", "", ""); err != nil {
			return err
		}
		r.stats.UsersFound++
	}
	return nil
}

// emitGroupAccess expands a group grant into BrokenAccess rows at url.
func (r *scanRun) emitGroupAccess(ctx context.Context, url string, identity sharepoint.GroupIdentity, levels []string) error {
	members, err := r.resolver.Resolve(ctx, identity, 1, nil)
	if err != nil {
		if scan.IsFatal(err) {
			return err
		}
		r.logger.Warn("Failed to resolve group grant",
			"group", identity.Title, "url", url, "error", err.Error())
		r.stats.Errors++
		r.metrics.RecordError()
		return nil
	}

	for _, m := range members {
		row := r.userRow(m, levels, sharepoint.AssignmentGroup)
		if err := r.writer.WriteBrokenAccess(url, row, "", "", ""); err != nil {
			return err
		}
		r.stats.UsersFound++
	}
	return nil
}

// emitSharingAccess fetches the item's sharing links once and writes
// one BrokenAccess row per link member, with when and by whom the
// link was created. Members carry the filtered levels of the link's
// role assignment.
func (r *scanRun) emitSharingAccess(ctx context.Context, client spclient.SiteClient, item *sharepoint.Item, levels []string) error {
	var sharing *spclient.ItemSharing
	err := r.throttle.Do(ctx, "get_item_sharing", func() error {
		var shErr error
		sharing, shErr = client.GetItemSharing(ctx, item.GUID)
		return shErr
	})
	if err != nil {
		if scan.IsFatal(err) {
			return err
		}
		r.logger.Warn("Failed to read item sharing",
			"item_id", item.ID, "error", err.Error())
		r.stats.Errors++
		r.metrics.RecordError()
		return nil
	}

	for _, link := range sharing.Links {
		sharedBy := ""
		sharedByLogin := ""
		if link.CreatedBy != nil {
			sharedBy = link.CreatedBy.Title
			sharedByLogin = link.CreatedBy.LoginName
		}

		for _, member := range link.Members {
			row := r.userRow(sharepoint.ResolvedMember{
				Principal:    member,
				NestingLevel: 1,
			}, levels, sharepoint.AssignmentSharingLink)
			if err := r.writer.WriteBrokenAccess(item.URL, row, link.CreatedAt, sharedBy, sharedByLogin); err != nil {
				return err
			}
			r.stats.UsersFound++
		}
	}
	return nil
}

// phaseSubsites recurses the scan into child webs, bounded by the
// configured subsite depth.
func (r *scanRun) phaseSubsites(ctx context.Context, client spclient.SiteClient, depth int) error {
	if !r.request.IncludeSubsites {
		return nil
	}
	if depth >= r.params.MaxSubsiteDepth {
		r.logger.Warn("Subsite depth bound reached, not descending further", "depth", depth)
		return nil
	}

	if depth == 0 {
		r.emitProgress(scan.StandardStages.Subsites, "Scanning subsites", 85)
	}
	start := r.metrics.StartTiming()

	var subwebs []*sharepoint.Web
	err := r.throttle.Do(ctx, "get_subwebs", func() error {
		var subErr error
		subwebs, subErr = client.GetSubwebs(ctx)
		return subErr
	})
	if err != nil {
		return err
	}

	for _, sub := range subwebs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", scan.ErrCancelled, err)
		}
		r.stats.SubsitesScanned++

		if r.request.Scope.IncludesStructure() {
			obj := sharepoint.ScannedObject{
				ID:    sub.ID,
				Type:  sharepoint.ObjectTypeSubsite,
				Title: sub.Title,
				URL:   sub.URL,
			}
			if err := r.writer.WriteContent(obj); err != nil {
				return err
			}
			r.stats.ObjectsScanned++
		}

		subClient := client.ForWeb(sub.URL)

		if r.request.Scope.IncludesItems() {
			if err := r.recordSubsiteInheritance(ctx, subClient, sub); err != nil {
				return err
			}
		}

		if err := r.scanWeb(ctx, subClient, sub, depth+1); err != nil {
			return err
		}
	}

	r.metrics.RecordSubsites(start)
	return nil
}

// recordSubsiteInheritance writes a SUBSITE BrokenObjects entry when
// the subsite declares its own role assignments.
func (r *scanRun) recordSubsiteInheritance(ctx context.Context, subClient spclient.SiteClient, sub *sharepoint.Web) error {
	var hasUnique bool
	err := r.throttle.Do(ctx, "check_subsite_permissions", func() error {
		var uErr error
		hasUnique, uErr = subClient.HasUniquePermissions(ctx, spclient.PermissionTarget{ObjectType: spclient.TargetWeb})
		return uErr
	})
	if err != nil {
		if scan.IsFatal(err) {
			return err
		}
		r.logger.Warn("Failed to check subsite permissions", "subsite", sub.URL, "error", err.Error())
		r.stats.Errors++
		r.metrics.RecordError()
		return nil
	}
	if !hasUnique {
		return nil
	}

	r.stats.BrokenInheritance++
	return r.writer.WriteBrokenObject(sharepoint.ScannedObject{
		ID:    sub.ID,
		Type:  sharepoint.ObjectTypeSubsite,
		Title: sub.Title,
		URL:   sub.URL,
	})
}

// finalize hands the completed files to the report sink and cleans the
// staging directory.
func (r *scanRun) finalize(ctx context.Context) (string, error) {
	r.emitProgress(scan.StandardStages.Finalization, "Archiving report", 95)

	if err := r.writer.Close(); err != nil {
		return "", err
	}

	paths := r.writer.Files()
	files := make([]contracts.ReportFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, contracts.ReportFile{Name: filepath.Base(p), Path: p})
	}

	reportID, err := r.orchestrator.sink.CreateReport(ctx,
		contracts.ReportTypeSiteScan, r.request.SiteID, files,
		contracts.ReportMetadata{
			SiteURL:     r.siteURL,
			Scope:       string(r.request.Scope),
			StartedAt:   r.startedAt,
			CompletedAt: time.Now(),
			Stats:       *r.stats,
		})
	if err != nil {
		return "", err
	}

	if err := r.writer.Discard(); err != nil {
		r.logger.Warn("Failed to clean staging dir", "error", err.Error())
	}

	r.emitProgress(scan.StandardStages.Finalization, "Scan complete", 100)
	return reportID, nil
}

// userRow flattens a resolved member into the Users row shape.
func (r *scanRun) userRow(m sharepoint.ResolvedMember, levels []string, kind sharepoint.AssignmentKind) report.UserRow {
	id := ""
	if m.Principal.ID != 0 {
		id = strconv.FormatInt(m.Principal.ID, 10)
	}

	via, viaID, viaType := "", "", ""
	if m.ViaGroup != nil {
		via = m.ViaGroup.Title
		viaID = m.ViaGroup.ID
		viaType = string(m.ViaGroup.Kind)
	}

	parent := ""
	if m.ParentGroup != nil {
		parent = m.ParentGroup.Title
	}

	return report.UserRow{
		ID:              id,
		LoginName:       m.Principal.LoginName,
		DisplayName:     m.Principal.Title,
		Email:           m.Principal.Email,
		PermissionLevel: strings.Join(levels, ", "),
		ViaGroup:        via,
		ViaGroupID:      viaID,
		ViaGroupType:    viaType,
		AssignmentType:  string(kind),
		NestingLevel:    strconv.Itoa(m.NestingLevel),
		ParentGroup:     parent,
	}
}

// emitProgress always emits, then yields so the streaming transport
// can flush before the next blocking remote call.
func (r *scanRun) emitProgress(stage, description string, percentage int) {
	r.progress.ReportProgress(stage, description, percentage)
	r.lastProgress = time.Now()
	runtime.Gosched()
}

// maybeEmitProgress emits at most once per progress interval.
func (r *scanRun) maybeEmitProgress(stage, description string, percentage int) {
	if time.Since(r.lastProgress) < progressInterval {
		return
	}
	r.emitProgress(stage, description, percentage)
}

// maybeEmitItemProgress is the item-loop variant carrying counters.
func (r *scanRun) maybeEmitItemProgress(stage, description string, percentage, itemsDone, itemsTotal int) {
	if time.Since(r.lastProgress) < progressInterval {
		return
	}
	r.progress.ReportItemProgress(stage, description, percentage, itemsDone, itemsTotal)
	r.lastProgress = time.Now()
	runtime.Gosched()
}
