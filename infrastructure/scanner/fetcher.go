package scanner

import (
	"context"
	"fmt"

	"spscan/domain/scan"
	"spscan/domain/sharepoint"
	"spscan/infrastructure/spclient"
	"spscan/logging"
)

// PaginatedFetcher walks a list's items with an id cursor: each page
// asks for items with Id strictly greater than the highest id seen,
// ordered by Id ascending, capped at the batch size. Offset paging is
// never used because the platform silently ignores the skip operator
// on large lists, which would repeat the first page forever.
//
// The sequence is forward-only and not restartable; a failed scan
// starts over.
type PaginatedFetcher struct {
	client    spclient.SiteClient
	throttle  *ThrottleController
	batchSize int
	logger    *logging.Logger
}

// NewPaginatedFetcher creates a fetcher with the given page size.
func NewPaginatedFetcher(client spclient.SiteClient, throttle *ThrottleController, batchSize int) *PaginatedFetcher {
	return &PaginatedFetcher{
		client:    client,
		throttle:  throttle,
		batchSize: batchSize,
		logger:    logging.Default().WithComponent("fetcher"),
	}
}

// FetchItems streams every item of the list through fn, in ascending
// id order, each exactly once. fn errors abort the walk. Cancellation
// is checked at every page boundary.
func (f *PaginatedFetcher) FetchItems(ctx context.Context, list *sharepoint.List, fn func(*sharepoint.Item) error) error {
	lastID := 0
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fetch items of %s: %w: %v", list.Title, scan.ErrCancelled, err)
		}

		var page []*sharepoint.Item
		err := f.throttle.Do(ctx, "get_items_page", func() error {
			var pageErr error
			page, pageErr = f.client.GetItemsPage(ctx, list.ID, lastID, f.batchSize)
			return pageErr
		})
		if err != nil {
			return err
		}

		if len(page) == 0 {
			break
		}

		for _, item := range page {
			if err := fn(item); err != nil {
				return err
			}
			if item.ID > lastID {
				lastID = item.ID
			}
		}
		total += len(page)

		// A short page means the cursor reached the end.
		if len(page) < f.batchSize {
			break
		}
	}

	f.logger.Debug("List items fetched", "list_title", list.Title, "count", total)
	return nil
}
