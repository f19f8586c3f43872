// Package tree stores the live verification tree and the dependency map that
// decides which files stay in it.
package tree

import (
	"sort"

	"github.com/sirupsen/logrus"

	"verisync/internal/model"
)

// Tree holds every tracked File node plus the root → dependencies mapping.
// Files are addressed by their normalized URI; insertion order is kept so
// enumeration and the engine's first-match resolution stay deterministic.
//
// The tree performs no locking of its own. The engine owns a single mutex
// and is the only writer.
type Tree struct {
	files map[model.FileID]*model.File
	order []model.FileID

	deps      map[model.FileID][]model.FileID
	rootOrder []model.FileID
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{
		files: make(map[model.FileID]*model.File),
		deps:  make(map[model.FileID][]model.FileID),
	}
}

// File returns the node for id, or nil if the file is not tracked.
func (t *Tree) File(id model.FileID) *model.File {
	return t.files[id]
}

// EnsureFile returns the node for id, creating it if absent.
func (t *Tree) EnsureFile(id model.FileID) *model.File {
	if f, ok := t.files[id]; ok {
		return f
	}
	f := &model.File{URI: id}
	t.files[id] = f
	t.order = append(t.order, id)
	logrus.Debugf("tree: file %s added", id)
	return f
}

// Files returns every tracked file in insertion order.
func (t *Tree) Files() []*model.File {
	out := make([]*model.File, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.files[id])
	}
	return out
}

// Roots returns the root files, in the order their first listing arrived.
func (t *Tree) Roots() []model.FileID {
	out := make([]model.FileID, len(t.rootOrder))
	copy(out, t.rootOrder)
	return out
}

// Component looks up a component by its stable identity.
func (t *Tree) Component(id model.ComponentID) *model.Component {
	f := t.files[id.File]
	if f == nil {
		return nil
	}
	for _, c := range f.Components {
		if c.Name == id.Name {
			return c
		}
	}
	return nil
}

// Dependencies returns the ordered dependency list recorded for root, or nil
// if root has never been refreshed.
func (t *Tree) Dependencies(root model.FileID) []model.FileID {
	return t.deps[root]
}

// EnsureRoot records root in the dependency map with no dependencies if it
// has never been refreshed. A root whose listing is still unknown must count
// as referenced, or another root's dependency update would collect it.
func (t *Tree) EnsureRoot(root model.FileID) {
	if _, ok := t.deps[root]; ok {
		return
	}
	t.deps[root] = nil
	t.rootOrder = append(t.rootOrder, root)
}

// SetDependencies replaces the dependency list for root and immediately
// garbage-collects files no longer referenced by any root. The engine calls
// this exactly once per successful listing refresh, after the refreshed
// nodes have been merged.
func (t *Tree) SetDependencies(root model.FileID, deps []model.FileID) {
	if _, ok := t.deps[root]; !ok {
		t.rootOrder = append(t.rootOrder, root)
	}
	t.deps[root] = deps
	t.collect()
}

// UnreferencedFiles returns every tracked file that is neither a root nor a
// member of any root's dependency list, sorted for determinism.
func (t *Tree) UnreferencedFiles() []model.FileID {
	referenced := t.referenced()
	var out []model.FileID
	for id := range t.files {
		if _, ok := referenced[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Tree) referenced() map[model.FileID]struct{} {
	ref := make(map[model.FileID]struct{}, len(t.files))
	for root, deps := range t.deps {
		ref[root] = struct{}{}
		for _, d := range deps {
			ref[d] = struct{}{}
		}
	}
	return ref
}

// collect removes unreferenced files and their whole subtree. Runs after
// every dependency update so the tree cannot grow unbounded as a root's
// imports change.
func (t *Tree) collect() {
	referenced := t.referenced()
	kept := t.order[:0]
	for _, id := range t.order {
		if _, ok := referenced[id]; ok {
			kept = append(kept, id)
			continue
		}
		delete(t.files, id)
		logrus.Debugf("tree: file %s collected", id)
	}
	t.order = kept
}

// Decorations buckets the source lines of components and properties declared
// in uri by their current state. Consumers place one marker set per state.
func (t *Tree) Decorations(uri model.FileID) map[model.State][]int {
	buckets := make(map[model.State][]int)
	for _, id := range t.order {
		for _, c := range t.files[id].Components {
			if c.File == uri {
				buckets[c.State] = append(buckets[c.State], c.Line)
			}
			for _, a := range c.Analyses {
				for _, p := range a.Properties {
					if p.File == uri {
						buckets[p.State] = append(buckets[p.State], p.Line)
					}
				}
			}
		}
	}
	for s := range buckets {
		sort.Ints(buckets[s])
	}
	return buckets
}

// FileSnapshot, ComponentSnapshot, AnalysisSnapshot and PropertySnapshot form
// a plain serializable view of the tree for the snapshot export and the tree
// query endpoint.
type FileSnapshot struct {
	URI        string              `yaml:"uri" json:"uri"`
	Components []ComponentSnapshot `yaml:"components" json:"components"`
}

type ComponentSnapshot struct {
	Name     string             `yaml:"name" json:"name"`
	Line     int                `yaml:"line" json:"line"`
	State    string             `yaml:"state" json:"state"`
	Analyses []AnalysisSnapshot `yaml:"analyses,omitempty" json:"analyses,omitempty"`
}

type AnalysisSnapshot struct {
	Abstract   []string           `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Concrete   []string           `yaml:"concrete,omitempty" json:"concrete,omitempty"`
	Properties []PropertySnapshot `yaml:"properties,omitempty" json:"properties,omitempty"`
}

type PropertySnapshot struct {
	Name  string `yaml:"name" json:"name"`
	Line  int    `yaml:"line" json:"line"`
	File  string `yaml:"file" json:"file"`
	State string `yaml:"state" json:"state"`
}

// Snapshot copies the current tree into its serializable view, preserving
// file and component order.
func (t *Tree) Snapshot() []FileSnapshot {
	out := make([]FileSnapshot, 0, len(t.order))
	for _, id := range t.order {
		f := t.files[id]
		fs := FileSnapshot{URI: string(f.URI)}
		for _, c := range f.Components {
			cs := ComponentSnapshot{Name: c.Name, Line: c.Line, State: c.State.String()}
			for _, a := range c.Analyses {
				as := AnalysisSnapshot{Abstract: a.Abstract, Concrete: a.Concrete}
				for _, p := range a.Properties {
					as.Properties = append(as.Properties, PropertySnapshot{
						Name:  p.Name,
						Line:  p.Line,
						File:  string(p.File),
						State: p.State.String(),
					})
				}
				cs.Analyses = append(cs.Analyses, as)
			}
			fs.Components = append(fs.Components, cs)
		}
		out = append(out, fs)
	}
	return out
}
