// Package hierarchy assembles flat, paginated tracker query results into a
// multi-level tree, emitting one structural delta per newly resolved node so
// clients can render incrementally instead of waiting for the whole tree.
package hierarchy

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/danielolaszy/hierview/internal/logging"
	"github.com/danielolaszy/hierview/pkg/models"
)

// Gateway is the slice of the tracker adapter the assembler needs. Both
// methods must return complete logical result sets (pagination hidden).
type Gateway interface {
	// TopLevel fetches the root issues matching the filter.
	TopLevel(ctx context.Context, filter models.Filter) ([]models.Issue, error)

	// Children fetches the direct children of one issue; zero children is
	// not an error.
	Children(ctx context.Context, parent models.Issue) ([]models.Issue, error)
}

// DefaultWorkers bounds concurrent per-parent child queries within one level.
const DefaultWorkers = 4

// Assembler walks the hierarchy breadth-first, level by level, and produces
// an ordered stream of events. One Assembler is safe for concurrent streams;
// all per-stream state lives in the run.
type Assembler struct {
	gateway Gateway
	workers int
}

// NewAssembler creates an assembler over the given gateway. workers <= 0
// selects DefaultWorkers.
func NewAssembler(gateway Gateway, workers int) *Assembler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Assembler{gateway: gateway, workers: workers}
}

// Stream starts one hierarchy run and returns its event channel. The channel
// is closed after the terminal event (done, or an unrecoverable error).
// Cancelling ctx stops new gateway calls and event emission at the next
// scheduling point; in-flight calls complete but their results are dropped.
func (a *Assembler) Stream(ctx context.Context, filter models.Filter) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent)
	go func() {
		defer close(events)
		a.run(ctx, filter, events)
	}()
	return events
}

func (a *Assembler) run(ctx context.Context, filter models.Filter, events chan<- models.StreamEvent) {
	tree := NewTree()
	var totals models.Totals

	// Children whose parent has not been materialized yet, keyed by the
	// missing parent.
	pending := make(map[string][]models.Issue)

	emit := func(ev models.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// insert materializes an issue, emits its node-added event and drains
	// any pending children now attachable under it. It returns every issue
	// it added, in emission order.
	var insert func(issue models.Issue, parentKey string, unparented bool) ([]models.Issue, bool)
	insert = func(issue models.Issue, parentKey string, unparented bool) ([]models.Issue, bool) {
		owned := issue
		if !tree.Add(&owned, parentKey) {
			// Already materialized via another query path.
			return nil, true
		}
		if !emit(models.NodeAdded(&owned, parentKey, unparented)) {
			return nil, false
		}
		totals.Add(owned.Type)

		added := []models.Issue{owned}
		waiting := pending[owned.Key]
		delete(pending, owned.Key)
		for _, child := range waiting {
			more, ok := insert(child, owned.Key, false)
			if !ok {
				return nil, false
			}
			added = append(added, more...)
		}
		return added, true
	}

	top, err := a.gateway.TopLevel(ctx, filter)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Error("hierarchy stream failed at top level", "error", err)
		emit(models.StreamError(fmt.Sprintf("fetching top level: %v", err), false))
		return
	}

	var frontier []models.Issue
	for _, issue := range top {
		issue.ParentKey = ""
		added, ok := insert(issue, "", false)
		if !ok {
			return
		}
		frontier = append(frontier, added...)
	}

	if len(frontier) == 0 {
		emit(models.Done(totals))
		return
	}
	if !emit(models.LevelComplete(0)) {
		return
	}

	level := 1
	for len(frontier) > 0 && frontier[0].Type.Child() != "" {
		results := make([][]models.Issue, len(frontier))
		failures := make([]error, len(frontier))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.workers)
		for i := range frontier {
			slot := i
			parent := frontier[i]
			g.Go(func() error {
				children, err := a.gateway.Children(gctx, parent)
				if err != nil {
					// Scoped to this subtree; siblings continue.
					failures[slot] = err
					return nil
				}
				results[slot] = children
				return nil
			})
		}
		g.Wait()
		if ctx.Err() != nil {
			return
		}

		// Flush in parent-discovery order so event order is deterministic
		// regardless of which query returned first.
		var next []models.Issue
		for i := range frontier {
			parent := frontier[i]
			if failures[i] != nil {
				logging.Warn("subtree query failed",
					"parent", parent.Key,
					"error", failures[i])
				if !emit(models.StreamError(fmt.Sprintf("subtree %s: %v", parent.Key, failures[i]), true)) {
					return
				}
				continue
			}
			for _, child := range results[i] {
				if tree.Contains(child.Key) {
					continue
				}
				attachKey := child.ParentKey
				if attachKey == "" {
					attachKey = parent.Key
					child.ParentKey = parent.Key
				}
				if !tree.Contains(attachKey) {
					pending[attachKey] = append(pending[attachKey], child)
					continue
				}
				added, ok := insert(child, attachKey, false)
				if !ok {
					return
				}
				next = append(next, added...)
			}
		}

		if len(next) == 0 {
			break
		}
		if !emit(models.LevelComplete(level)) {
			return
		}
		level++
		frontier = next
	}

	// Children whose parent never arrived are surfaced as unparented
	// top-level nodes rather than dropped.
	if len(pending) > 0 {
		missing := make([]string, 0, len(pending))
		for key := range pending {
			missing = append(missing, key)
		}
		sort.Strings(missing)
		for _, key := range missing {
			orphans := pending[key]
			if len(orphans) == 0 {
				continue
			}
			delete(pending, key)
			for _, orphan := range orphans {
				logging.Warn("parent never resolved, emitting unparented",
					"key", orphan.Key,
					"missing_parent", key)
				orphan.ParentKey = ""
				if _, ok := insert(orphan, "", true); !ok {
					return
				}
			}
		}
	}

	logging.Info("hierarchy stream complete",
		"rfes", totals.RFEs,
		"strats", totals.Strats,
		"epics", totals.Epics,
		"tasks", totals.Tasks)
	emit(models.Done(totals))
}
