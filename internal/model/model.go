// Package model defines the verification tree node types and the payload
// types exchanged with the external analysis service.
package model

// State is the verification state attached to components and properties.
type State int

const (
	StatePending State = iota
	StateRunning
	StatePassed
	StateFailed
	StateErrored
)

// String returns the lowercase name used in logs and API payloads.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// FileID is a normalized file URI. It is the only key under which files are
// stored; see the uri package for the normalization rule.
type FileID string

// ComponentID identifies a component by its owning file and name. The pair is
// stable across refreshes even though the Component node itself is replaced.
type ComponentID struct {
	File FileID
	Name string
}

// File is a tracked source file and the ordered components declared in it.
// Order is the discovery order reported by the analysis service.
type File struct {
	URI        FileID
	Components []*Component
}

// Component is a named analyzable unit declared in a file. The back-reference
// to the owning file is the FileID, not a pointer, so nodes carry no cycles.
type Component struct {
	File     FileID
	Name     string
	Line     int
	State    State
	Analyses []*Analysis
}

// ID returns the stable identity key for the component.
func (c *Component) ID() ComponentID {
	return ComponentID{File: c.File, Name: c.Name}
}

// Analysis is one verification run variant over a component. Abstract and
// Concrete list which sub-parts were abstracted vs. concretely modeled for
// this run. Analyses have no identity of their own; a check replaces the
// whole list.
type Analysis struct {
	Abstract   []string
	Concrete   []string
	Properties []*Property
}

// Property is a single checked assertion with its verdict-derived state,
// which is always Passed or Failed.
type Property struct {
	Name  string
	Line  int
	File  FileID
	State State
}

// ComponentDescriptor is one entry of the component listing returned by the
// analysis service for a root file.
type ComponentDescriptor struct {
	File      string `json:"file"`
	Name      string `json:"name"`
	StartLine int    `json:"startLine"`
}

// Answer is the raw verdict for a property; Value is "valid" when the
// property holds.
type Answer struct {
	Value string `json:"value"`
}

// PropertyResult is the service's report for one property of one analysis.
type PropertyResult struct {
	Name   string `json:"name"`
	Line   int    `json:"line"`
	File   string `json:"file"`
	Answer Answer `json:"answer"`
}

// AnalysisResult is the service's report for one analysis run.
type AnalysisResult struct {
	Abstract   []string         `json:"abstract"`
	Concrete   []string         `json:"concrete"`
	Properties []PropertyResult `json:"properties"`
}

// ComponentResult is the service's per-component check result. Name is not
// qualified by file; resolution against the dependency set happens in the
// engine.
type ComponentResult struct {
	Name     string           `json:"name"`
	Analyses []AnalysisResult `json:"analyses"`
}
