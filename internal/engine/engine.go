// Package engine keeps the verification tree synchronized with the external
// analysis service: it refreshes component listings, runs cancellable checks
// and merges their results.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"verisync/internal/checker"
	"verisync/internal/events"
	"verisync/internal/model"
	"verisync/internal/tree"
	"verisync/internal/uri"
)

// ErrUnknownComponent is returned when an action names a component that is
// not in the tree.
var ErrUnknownComponent = errors.New("unknown component")

// ErrNotRunning is returned by Cancel when no check is in flight for the
// component. A correct caller never hits this; it signals a caller bug
// rather than being silently ignored.
var ErrNotRunning = errors.New("no check in flight")

// session is one in-flight check. The registry maps a component to its
// session; comparing registry value against the session pointer on
// completion tells a superseded check apart from a live one.
type session struct {
	cancel context.CancelFunc
}

// Engine owns the tree, the dependency map and the running-check registry.
// All mutation happens under mu; analysis service calls happen outside it,
// so concurrent checks against different components proceed independently.
//
// Two concurrent checks can resolve results to the same target component
// when roots share dependency files; the merge is then last-writer-wins
// with no per-target lock. Known limitation.
type Engine struct {
	mu      sync.Mutex
	tree    *tree.Tree
	running map[model.ComponentID]*session

	service checker.Service
	hub     *events.Hub
	wg      sync.WaitGroup
}

// New returns an engine with an empty tree.
func New(service checker.Service, hub *events.Hub) *Engine {
	return &Engine{
		tree:    tree.New(),
		running: make(map[model.ComponentID]*session),
		service: service,
		hub:     hub,
	}
}

// Refresh re-fetches the component listing for root and reconciles it with
// the tree. Every in-flight check is cancelled first: a stale listing must
// not be merged with results computed against obsolete component
// identities.
func (e *Engine) Refresh(ctx context.Context, rootURI string) error {
	root := model.FileID(uri.Normalize(rootURI))
	logrus.Infof("refreshing components of %s", root)

	e.cancelAll()

	descriptors, err := e.service.GetComponents(ctx, string(root))
	if err != nil {
		logrus.Warnf("component listing for %s failed: %v", root, err)
		return fmt.Errorf("fetching components of %s: %w", root, err)
	}

	e.mu.Lock()
	if len(descriptors) == 0 {
		// No known components yet. Keep the root's node and its previous
		// dependency set untouched rather than treating this as "root has
		// no components". The root still registers in the dependency map so
		// other roots' refreshes never collect it.
		e.tree.EnsureFile(root)
		e.tree.EnsureRoot(root)
		e.mu.Unlock()
		e.notifyAll()
		return nil
	}

	// The root keeps its File node so selections and handles pointing at it
	// stay valid; only its component list is replaced.
	staged := make(map[model.FileID]bool)
	if f := e.tree.File(root); f != nil {
		f.Components = nil
		staged[root] = true
	}

	var deps []model.FileID
	seen := make(map[model.FileID]bool)
	for _, d := range descriptors {
		fid := model.FileID(uri.Normalize(d.File))
		f := e.tree.File(fid)
		if f == nil {
			f = e.tree.EnsureFile(fid)
			staged[fid] = true
		} else if !staged[fid] {
			// First mention of an already-tracked file in this pass: a
			// refresh implies the source changed, so its components are
			// rebuilt even when identities match the previous listing.
			f.Components = nil
			staged[fid] = true
		}
		f.Components = append(f.Components, &model.Component{
			File:  fid,
			Name:  d.Name,
			Line:  d.StartLine - 1,
			State: model.StatePending,
		})
		if !seen[fid] {
			seen[fid] = true
			deps = append(deps, fid)
		}
	}

	e.tree.SetDependencies(root, deps)
	e.mu.Unlock()

	e.notifyAll()
	return nil
}

// normalizeID applies the file-identity normalization rule to a component
// key. Every action entry point passes through here, so callers may echo
// whatever encoding variant the service handed them.
func normalizeID(id model.ComponentID) model.ComponentID {
	id.File = model.FileID(uri.Normalize(string(id.File)))
	return id
}

// Check starts an asynchronous, cancellable verification of the component.
// At most one check per component is tracked; a duplicate call while one is
// running overwrites the registry entry (last writer wins) and leaks the
// earlier handle, which is the documented limitation of the registry.
func (e *Engine) Check(id model.ComponentID) error {
	id = normalizeID(id)
	e.mu.Lock()
	comp := e.tree.Component(id)
	if comp == nil {
		e.mu.Unlock()
		return fmt.Errorf("check %s/%s: %w", id.File, id.Name, ErrUnknownComponent)
	}
	comp.Analyses = nil
	comp.State = model.StateRunning

	candidates := e.candidateFiles(id.File)

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{cancel: cancel}
	if _, ok := e.running[id]; ok {
		logrus.Warnf("duplicate check for %s/%s; previous handle is abandoned", id.File, id.Name)
	}
	e.running[id] = s
	e.mu.Unlock()

	e.notifyComponent(id)
	logrus.Infof("checking %s/%s", id.File, id.Name)

	e.wg.Add(1)
	go e.runCheck(ctx, id, s, candidates)
	return nil
}

// candidateFiles returns the ordered files against which check results for a
// component of file fid are resolved. If fid is itself a root, its recorded
// dependency list is authoritative; otherwise the first root (in refresh
// order) that depends on fid lends its list. Results are keyed by bare
// component name, so under cross-file name collisions the first candidate
// containing the name wins. Deliberate tie-break, not a correctness claim.
func (e *Engine) candidateFiles(fid model.FileID) []model.FileID {
	if deps := e.tree.Dependencies(fid); deps != nil {
		return deps
	}
	for _, root := range e.tree.Roots() {
		for _, d := range e.tree.Dependencies(root) {
			if d == fid {
				return e.tree.Dependencies(root)
			}
		}
	}
	return []model.FileID{fid}
}

func (e *Engine) runCheck(ctx context.Context, id model.ComponentID, s *session, candidates []model.FileID) {
	defer e.wg.Done()

	results, err := e.service.Check(ctx, string(id.File), id.Name)

	e.mu.Lock()
	if e.running[id] != s {
		// A refresh (or a duplicate check) superseded this session while the
		// request was in flight; its outcome must not touch the rebuilt tree.
		e.mu.Unlock()
		logrus.Debugf("check %s/%s superseded, result dropped", id.File, id.Name)
		return
	}
	delete(e.running, id)

	touched := []model.ComponentID{id}
	if err != nil {
		// Service failure and cancellation share this path; the component
		// ends Errored, partially merged components from earlier passes are
		// left alone.
		if comp := e.tree.Component(id); comp != nil {
			comp.State = model.StateErrored
		}
		logrus.Warnf("check %s/%s failed: %v", id.File, id.Name, err)
	} else {
		touched = append(touched, e.merge(id, candidates, results)...)
	}
	e.mu.Unlock()

	for _, t := range touched {
		e.notifyComponent(t)
	}
}

// merge applies per-component check results to the tree and returns the
// components it touched beyond the originating one. Candidates were resolved
// when the check was issued. Caller holds e.mu.
func (e *Engine) merge(origin model.ComponentID, candidates []model.FileID, results []model.ComponentResult) []model.ComponentID {
	if len(results) == 0 {
		// Nothing to report is treated as success.
		if comp := e.tree.Component(origin); comp != nil {
			comp.State = model.StatePassed
		}
		return nil
	}

	var touched []model.ComponentID
	for _, res := range results {
		target := e.resolve(candidates, res.Name)
		if target == nil {
			// The service reported a component absent from the last listing.
			// Dropping it silently would leave the tree permanently Running,
			// so the whole check is treated as broken.
			logrus.Errorf("check %s/%s: result for unknown component %q", origin.File, origin.Name, res.Name)
			if comp := e.tree.Component(origin); comp != nil {
				comp.State = model.StateErrored
			}
			continue
		}
		target.Analyses = buildAnalyses(res.Analyses)
		target.State = derivedState(target.Analyses)
		if target.ID() != origin {
			touched = append(touched, target.ID())
		}
	}

	// A result set that names only other components would otherwise leave
	// the origin in Running forever, with its registry entry already gone.
	// Nothing reported for it counts as success, like the empty result set.
	if comp := e.tree.Component(origin); comp != nil && comp.State == model.StateRunning {
		comp.State = derivedState(comp.Analyses)
	}
	return touched
}

// resolve picks the first candidate file containing a component by name.
func (e *Engine) resolve(candidates []model.FileID, name string) *model.Component {
	for _, fid := range candidates {
		if c := e.tree.Component(model.ComponentID{File: fid, Name: name}); c != nil {
			return c
		}
	}
	return nil
}

func buildAnalyses(results []model.AnalysisResult) []*model.Analysis {
	analyses := make([]*model.Analysis, 0, len(results))
	for _, ar := range results {
		a := &model.Analysis{Abstract: ar.Abstract, Concrete: ar.Concrete}
		for _, pr := range ar.Properties {
			state := model.StateFailed
			if pr.Answer.Value == "valid" {
				state = model.StatePassed
			}
			a.Properties = append(a.Properties, &model.Property{
				Name:  pr.Name,
				Line:  pr.Line - 1,
				File:  model.FileID(uri.Normalize(pr.File)),
				State: state,
			})
		}
		analyses = append(analyses, a)
	}
	return analyses
}

// derivedState is the component state after a completed check: Failed if any
// property failed, otherwise Passed. Zero analyses means nothing to report,
// which counts as Passed.
func derivedState(analyses []*model.Analysis) model.State {
	for _, a := range analyses {
		for _, p := range a.Properties {
			if p.State == model.StateFailed {
				return model.StateFailed
			}
		}
	}
	return model.StatePassed
}

// Cancel signals the in-flight check for the component. The tree is not
// touched here; the check's own failure path performs the Errored
// transition and releases the registry entry.
func (e *Engine) Cancel(id model.ComponentID) error {
	id = normalizeID(id)
	e.mu.Lock()
	s, ok := e.running[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel %s/%s: %w", id.File, id.Name, ErrNotRunning)
	}
	logrus.Infof("cancelling check of %s/%s", id.File, id.Name)
	s.cancel()
	return nil
}

// cancelAll signals every in-flight check and clears the registry, so that
// late results are recognized as superseded and dropped.
func (e *Engine) cancelAll() {
	e.mu.Lock()
	for id, s := range e.running {
		logrus.Debugf("invalidating check of %s/%s", id.File, id.Name)
		s.cancel()
	}
	e.running = make(map[model.ComponentID]*session)
	e.mu.Unlock()
}

// Interpret forwards simulation inputs for a component to the service.
func (e *Engine) Interpret(ctx context.Context, id model.ComponentID, inputsJSON string) (string, error) {
	id = normalizeID(id)
	return e.service.Interpret(ctx, string(id.File), id.Name, inputsJSON)
}

// CounterExample fetches the refuting trace for one property of one analysis.
func (e *Engine) CounterExample(ctx context.Context, id model.ComponentID, abstract, concrete []string, property string) (string, error) {
	id = normalizeID(id)
	return e.service.CounterExample(ctx, string(id.File), id.Name, abstract, concrete, property)
}

// RawCommand returns the checker invocation for the component.
func (e *Engine) RawCommand(ctx context.Context, id model.ComponentID) ([]string, error) {
	id = normalizeID(id)
	return e.service.GetRawCommand(ctx, string(id.File), id.Name)
}

// Snapshot returns a serializable copy of the tree.
func (e *Engine) Snapshot() []tree.FileSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Snapshot()
}

// Roots returns the tracked root files.
func (e *Engine) Roots() []model.FileID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Roots()
}

// Decorations returns per-state source line buckets for one file.
func (e *Engine) Decorations(fileURI string) map[model.State][]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Decorations(model.FileID(uri.Normalize(fileURI)))
}

// ComponentState reports the current state of a component.
func (e *Engine) ComponentState(id model.ComponentID) (model.State, bool) {
	id = normalizeID(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.tree.Component(id)
	if c == nil {
		return 0, false
	}
	return c.State, true
}

// Drain blocks until every started check goroutine has finished. Used on
// shutdown and by tests.
func (e *Engine) Drain() {
	e.wg.Wait()
}

func (e *Engine) notifyAll() {
	e.hub.EmitTreeChanged(events.TreeEvent{All: true})
	e.hub.EmitDecorationsChanged()
}

func (e *Engine) notifyComponent(id model.ComponentID) {
	e.hub.EmitTreeChanged(events.TreeEvent{Component: id})
	e.hub.EmitDecorationsChanged()
}
