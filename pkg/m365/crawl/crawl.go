package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/praetorian-inc/tenantscan/pkg/m365/client"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

// Fetcher is the subset of client.Client the crawler needs.
type Fetcher interface {
	Do(ctx context.Context, req client.Request) (*client.Response, error)
	Relative(link string) string
}

// CheckpointStore persists one resume cursor per resource type.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, rt models.ResourceType) (*string, error)
	SaveCheckpoint(ctx context.Context, rt models.ResourceType, cursor *string) error
	ClearCheckpoint(ctx context.Context, rt models.ResourceType) error
}

// Page is one decoded page of a paged collection.
type Page struct {
	Number int
	Items  []json.RawMessage
}

// Options configures a single checkpointed crawl.
type Options struct {
	// ResourceType keys the checkpoint.
	ResourceType models.ResourceType
	// InitialQuery is the first page path, relative to the fetcher's base URL.
	InitialQuery string
	// Select is appended as $select when InitialQuery has none.
	Select  []string
	Headers map[string]string
	// OnFresh runs once before the first page when no checkpoint exists.
	OnFresh func(ctx context.Context) error
	Process func(ctx context.Context, page Page) error
}

// Result summarizes a finished crawl.
type Result struct {
	Pages   int
	Items   int
	Resumed bool
}

type Crawler struct {
	fetcher Fetcher
	store   CheckpointStore
	logger  *slog.Logger
}

func New(fetcher Fetcher, store CheckpointStore, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{fetcher: fetcher, store: store, logger: logger}
}

// Crawl walks every page of a collection starting at the saved checkpoint,
// or at InitialQuery when there is none. After each page is processed the
// next link is saved; on success the checkpoint is cleared. Any error leaves
// the last saved checkpoint in place.
func (c *Crawler) Crawl(ctx context.Context, opts Options) (Result, error) {
	var res Result

	cursor, err := c.store.LoadCheckpoint(ctx, opts.ResourceType)
	if err != nil {
		return res, err
	}

	next := ""
	if cursor != nil && *cursor != "" {
		next = *cursor
		res.Resumed = true
		c.logger.Info("Resuming from checkpoint", "type", opts.ResourceType, "cursor", next)
	} else {
		if opts.OnFresh != nil {
			if err := opts.OnFresh(ctx); err != nil {
				return res, fmt.Errorf("%s: failed to prepare fresh run: %w", opts.ResourceType, err)
			}
		}
		next = WithSelect(opts.InitialQuery, opts.Select)
	}

	for next != "" {
		page, link, err := fetchPage(ctx, c.fetcher, next, opts.Headers)
		if err != nil {
			return res, fmt.Errorf("%s page %d: %w", opts.ResourceType, res.Pages+1, err)
		}
		res.Pages++
		page.Number = res.Pages

		if opts.Process != nil && (len(page.Items) > 0 || link != "") {
			if err := opts.Process(ctx, page); err != nil {
				return res, fmt.Errorf("%s page %d: %w", opts.ResourceType, res.Pages, err)
			}
		}
		res.Items += len(page.Items)

		var saved *string
		next = ""
		if link != "" {
			next = c.fetcher.Relative(link)
			saved = &next
		}
		if err := c.store.SaveCheckpoint(ctx, opts.ResourceType, saved); err != nil {
			return res, err
		}

		c.logger.Info("Processed page",
			"type", opts.ResourceType,
			"page", res.Pages,
			"items", len(page.Items),
			"total", res.Items,
			"more", next != "")
	}

	if err := c.store.ClearCheckpoint(ctx, opts.ResourceType); err != nil {
		return res, err
	}
	return res, nil
}

// CollectAll follows every next link from path and returns all items. It keeps
// no checkpoint and is meant for small nested collections.
func CollectAll(ctx context.Context, f Fetcher, path string, headers map[string]string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	next := path
	for next != "" {
		page, link, err := fetchPage(ctx, f, next, headers)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		next = ""
		if link != "" {
			next = f.Relative(link)
		}
	}
	return items, nil
}

// CollectAll is the crawler-bound form of the package function.
func (c *Crawler) CollectAll(ctx context.Context, path string, headers map[string]string) ([]json.RawMessage, error) {
	return CollectAll(ctx, c.fetcher, path, headers)
}

type rawPage struct {
	Value         []json.RawMessage `json:"value"`
	ODataNextLink string            `json:"@odata.nextLink"`
	NextLink      string            `json:"nextLink"`
}

func fetchPage(ctx context.Context, f Fetcher, path string, headers map[string]string) (Page, string, error) {
	resp, err := f.Do(ctx, client.Request{Path: path, Headers: headers})
	if err != nil {
		return Page{}, "", err
	}
	var raw rawPage
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return Page{}, "", fmt.Errorf("failed to decode page: %w", err)
	}
	link := raw.ODataNextLink
	if link == "" {
		link = raw.NextLink
	}
	return Page{Items: raw.Value}, link, nil
}

// WithSelect appends $select=fields to query unless it already selects.
func WithSelect(query string, fields []string) string {
	if len(fields) == 0 || strings.Contains(query, "$select=") {
		return query
	}
	sep := "?"
	if strings.Contains(query, "?") {
		sep = "&"
	}
	return query + sep + "$select=" + strings.Join(fields, ",")
}

// WithQuery adds key=value to path. value is percent-encoded with spaces as
// %20, which OData filters require.
func WithQuery(path, key, value string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + key + "=" + strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}
