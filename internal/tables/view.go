package tables

import "net/url"

// Focus targets
const (
	FocusActiveRow  = "row-active"
	FocusPanelClose = "js-hide"
)

// Column classes toggled by the detail panel
const (
	ClassHidePanel       = "hide-panel"
	ClassHidePanelTablet = "hide-panel-tablet"
)

// Table is the rendered data table widget
type Table interface {
	Reload()
	SetProcessing(on bool)
	SetColumnsVisible(class string, visible bool)
	// SetActiveRow marks one row active; a negative index clears it
	SetActiveRow(index int)
	Focus(target string)
}

// Panel is the shared detail region
type Panel interface {
	// Show renders content and un-hides the panel. An empty pdfURL removes the PDF link.
	Show(content string, pdfURL string)
	Hide()
}

// FilterForm is the table's filter form
type FilterForm interface {
	Serialize() []Field
	// Fields returns the names of the filter controls
	Fields() []string
	ActivateFromURL(query url.Values)
}

// Viewport reports the page width
type Viewport interface {
	Width() int
}

// HideNullControl is the "hide rows with missing values when sorting" checkbox
type HideNullControl interface {
	Checked() bool
}

// View groups the page collaborators of one interaction. Nil members are
// treated as absent.
type View struct {
	Table    Table
	Panel    Panel
	Form     FilterForm
	Bar      AddressBar
	Viewport Viewport
	HideNull HideNullControl
}

type noopTable struct{}

func (noopTable) Reload() {}
func (noopTable) SetProcessing(bool) {}
func (noopTable) SetColumnsVisible(string, bool) {}
func (noopTable) SetActiveRow(int) {}
func (noopTable) Focus(string) {}

type noopPanel struct{}

func (noopPanel) Show(string, string) {}
func (noopPanel) Hide() {}

// wideViewport is used when the page did not report its width
type wideViewport struct{}

func (wideViewport) Width() int { return 1 << 16 }

type checkedControl struct{}

func (checkedControl) Checked() bool { return true }

func (v View) withDefaults() View {
	if v.Table == nil {
		v.Table = noopTable{}
	}
	if v.Panel == nil {
		v.Panel = noopPanel{}
	}
	if v.Viewport == nil {
		v.Viewport = wideViewport{}
	}
	if v.HideNull == nil {
		v.HideNull = checkedControl{}
	}
	return v
}
