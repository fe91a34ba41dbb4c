// Package enumerate discovers the work item list for a capture task's scope.
package enumerate

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kingotools/capture/internal/capture"
	"github.com/kingotools/capture/internal/kingo"
	"github.com/kingotools/capture/internal/transport"
)

// CourseListParser converts a raw course listing page into a code → label map.
type CourseListParser func(text string) map[string]string

// Enumerator performs the listing scrape that yields one work item per course.
type Enumerator struct {
	site   kingo.Site
	parse  CourseListParser
	logger *zap.Logger
}

// New constructs an Enumerator.
func New(site kingo.Site, parse CourseListParser, logger *zap.Logger) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{
		site:   site,
		parse:  parse,
		logger: logger,
	}
}

// WorkItems fetches and parses the course list for a term. A transport
// failure here is fatal for the task start; there are no retries beyond what
// the client's profile already provides.
func (e *Enumerator) WorkItems(ctx context.Context, client *transport.Client, termCode string) ([]capture.WorkItem, error) {
	if err := client.Sleep(ctx); err != nil {
		return nil, err
	}
	resp, err := client.Get(ctx, e.site.CourseListPage(termCode), map[string]string{
		"Referer": e.site.ClassQueryPage(),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch course list for term %s: %w", termCode, err)
	}

	listing := e.parse(resp.Text)
	items := make([]capture.WorkItem, 0, len(listing))
	for code, label := range listing {
		items = append(items, capture.WorkItem{Code: code, Label: label})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })

	e.logger.Debug("fetched remote course list",
		zap.String("term", termCode),
		zap.Int("items", len(items)),
	)
	return items, nil
}
