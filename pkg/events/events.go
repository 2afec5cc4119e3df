package events

import "github.com/roomforge/themekit/pkg/theme"

// Kind is the wire name of an event.
type Kind string

const (
	KindInheritanceRegistered    Kind = "inheritance:registered"
	KindInheritanceRemoved       Kind = "inheritance:removed"
	KindInheritanceResolved      Kind = "inheritance:resolved"
	KindInheritanceResolveFailed Kind = "inheritance:resolve-failed"
	KindOverrideApplied          Kind = "override:applied"
	KindOverrideApplyFailed      Kind = "override:apply-failed"
)

// Event is implemented only by the event types of this package, so a type
// switch over them can be exhaustive.
type Event interface {
	Kind() Kind
	Theme() string
	sealed()
}

type (
	// InheritanceRegistered is published after an edge has been installed.
	InheritanceRegistered struct {
		Child    string   `json:"child"`
		Parent   string   `json:"parent"`
		Affected []string `json:"affected"`
	}

	// InheritanceRemoved is published after an edge has been removed.
	InheritanceRemoved struct {
		Child    string   `json:"child"`
		Parent   string   `json:"parent"`
		Affected []string `json:"affected"`
	}

	// InheritanceResolved is published after a successful resolution.
	InheritanceResolved struct {
		ThemeID string        `json:"theme_id"`
		Chain   []string      `json:"chain"`
		Config  *theme.Config `json:"config"`
		Cached  bool          `json:"cached"`
	}

	// InheritanceResolveFailed is published when a resolution fails.
	InheritanceResolveFailed struct {
		ThemeID string `json:"theme_id"`
		Err     error  `json:"-"`
	}

	// OverrideApplied is published after overrides were merged and written back.
	OverrideApplied struct {
		ThemeID string        `json:"theme_id"`
		Buckets []string      `json:"buckets"`
		Config  *theme.Config `json:"config"`
	}

	// OverrideApplyFailed is published when applying overrides fails.
	OverrideApplyFailed struct {
		ThemeID string `json:"theme_id"`
		Err     error  `json:"-"`
	}
)

func (InheritanceRegistered) Kind() Kind    { return KindInheritanceRegistered }
func (InheritanceRemoved) Kind() Kind       { return KindInheritanceRemoved }
func (InheritanceResolved) Kind() Kind      { return KindInheritanceResolved }
func (InheritanceResolveFailed) Kind() Kind { return KindInheritanceResolveFailed }
func (OverrideApplied) Kind() Kind          { return KindOverrideApplied }
func (OverrideApplyFailed) Kind() Kind      { return KindOverrideApplyFailed }

func (e InheritanceRegistered) Theme() string    { return e.Child }
func (e InheritanceRemoved) Theme() string       { return e.Child }
func (e InheritanceResolved) Theme() string      { return e.ThemeID }
func (e InheritanceResolveFailed) Theme() string { return e.ThemeID }
func (e OverrideApplied) Theme() string          { return e.ThemeID }
func (e OverrideApplyFailed) Theme() string      { return e.ThemeID }

func (InheritanceRegistered) sealed()    {}
func (InheritanceRemoved) sealed()       {}
func (InheritanceResolved) sealed()      {}
func (InheritanceResolveFailed) sealed() {}
func (OverrideApplied) sealed()          {}
func (OverrideApplyFailed) sealed()      {}
