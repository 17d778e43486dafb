// Package walker implements the Connection Walker (§4.3): it fans out
// concurrently over a connection list, forking the variable bag per
// branch, fetching each target node, invoking its handler, and
// recursing into whatever connections the handler returns.
package walker

import (
	"context"
	"log/slog"
	"time"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/handlers"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
	"golang.org/x/sync/errgroup"
)

// MaxDepth caps traversal depth to guard against unexpected cycles in
// an authored flow graph.
const MaxDepth = 64

// Fetcher resolves one flow node snapshot by kind and id.
type Fetcher interface {
	Fetch(ctx context.Context, kind flow.NodeKind, id int64) (any, error)
}

// HandlerFunc invokes the node handler appropriate for kind.
type HandlerFunc func(ctx context.Context, kind flow.NodeKind, obj any, ec handlers.EventContext, storage *scratch.EventStorage, v *variables.Variables) ([]flow.Connection, error)

// Recorder is the slice of the metrics registry the walker reports
// branch outcomes and traversal duration to. Nil is a valid Recorder:
// a walker built without one simply records nothing.
type Recorder interface {
	TraversalBranch(botID int64, kind, result string)
	ObserveTraversal(botID int64, seconds float64)
}

// Walker drives one traversal.
type Walker struct {
	fetch    Fetcher
	handle   HandlerFunc
	maxDepth int
	metrics  Recorder
	botID    int64
}

// New builds a Walker with the default depth cap. metrics may be nil;
// botID labels every metric this walker records.
func New(fetch Fetcher, handle HandlerFunc, metrics Recorder, botID int64) *Walker {
	return &Walker{fetch: fetch, handle: handle, maxDepth: MaxDepth, metrics: metrics, botID: botID}
}

// HandleMany fans out over connections concurrently. Every branch
// gets its own forked Variables bag; a branch's failure is logged and
// never cancels its siblings. The whole fan-out's wall time is
// reported as one traversal observation.
func (w *Walker) HandleMany(ctx context.Context, ec handlers.EventContext, connections []flow.Connection, storage *scratch.EventStorage, v *variables.Variables) {
	start := time.Now()
	w.handleMany(ctx, ec, connections, storage, v, 0)
	if w.metrics != nil {
		w.metrics.ObserveTraversal(w.botID, time.Since(start).Seconds())
	}
}

func (w *Walker) handleMany(ctx context.Context, ec handlers.EventContext, connections []flow.Connection, storage *scratch.EventStorage, v *variables.Variables, depth int) {
	if depth >= w.maxDepth {
		slog.Warn("connection walker: depth cap reached, cutting traversal", "depth", depth)
		return
	}

	var g errgroup.Group
	for _, conn := range connections {
		conn := conn
		g.Go(func() error {
			if err := w.handleOne(ctx, ec, conn, storage, v.Fork(), depth+1); err != nil {
				slog.Error("connection walker: branch failed",
					"connection_id", conn.ID,
					"target_object_type", conn.TargetObjectType,
					"target_object_id", conn.TargetObjectID,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Walker) handleOne(ctx context.Context, ec handlers.EventContext, conn flow.Connection, storage *scratch.EventStorage, v *variables.Variables, depth int) error {
	obj, err := w.fetch.Fetch(ctx, conn.TargetObjectType, conn.TargetObjectID)
	if err != nil {
		w.recordBranch(conn.TargetObjectType, "error")
		return err
	}

	next, err := w.handle(ctx, conn.TargetObjectType, obj, ec, storage, v)
	if err != nil {
		w.recordBranch(conn.TargetObjectType, "error")
		return err
	}
	w.recordBranch(conn.TargetObjectType, "ok")
	if len(next) == 0 {
		return nil
	}

	w.handleMany(ctx, ec, next, storage, v, depth)
	return nil
}

func (w *Walker) recordBranch(kind flow.NodeKind, result string) {
	if w.metrics != nil {
		w.metrics.TraversalBranch(w.botID, string(kind), result)
	}
}
