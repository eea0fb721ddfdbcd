// ABOUTME: Virtual window computation for long message lists
// ABOUTME: Pure function of scroll geometry; bounds rendered rows

package state

// Virtual window defaults. Windowing only kicks in past the threshold so
// small lists render in full without padding arithmetic.
const (
	DefaultWindowThreshold = 200
	DefaultRowHeight       = 88
	DefaultOverscan        = 12
)

// Window is the renderable sub-range of a message list. TopPadding and
// BottomPadding stand in for the unrendered rows above and below so the
// scrollable height stays (approximately) correct.
type Window struct {
	StartIndex    int
	EndIndex      int
	TopPadding    int
	BottomPadding int
}

// WindowParams describes the scroll geometry a window is computed from.
type WindowParams struct {
	ScrollTop      int
	ViewportHeight int
	TotalCount     int
	RowHeight      int // estimated; rows vary in height
	Overscan       int
	Threshold      int // below or at this count, the full list is returned
}

// ComputeWindow derives the visible sub-range for the given geometry. It
// keeps no state between calls and is safe to invoke on every scroll or
// resize tick. The heights are estimates: the contract is bounded rendered
// rows, not pixel-exact padding.
func ComputeWindow(p WindowParams) Window {
	rowHeight := p.RowHeight
	if rowHeight <= 0 {
		rowHeight = DefaultRowHeight
	}
	overscan := p.Overscan
	if overscan < 0 {
		overscan = DefaultOverscan
	}
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultWindowThreshold
	}

	if p.TotalCount == 0 || p.TotalCount <= threshold {
		return Window{StartIndex: 0, EndIndex: p.TotalCount}
	}

	start := p.ScrollTop/rowHeight - overscan
	if start < 0 {
		start = 0
	}
	visible := (p.ViewportHeight+rowHeight-1)/rowHeight + overscan*2
	end := start + visible
	if end > p.TotalCount {
		end = p.TotalCount
	}

	bottom := (p.TotalCount - end) * rowHeight
	if bottom < 0 {
		bottom = 0
	}
	return Window{
		StartIndex:    start,
		EndIndex:      end,
		TopPadding:    start * rowHeight,
		BottomPadding: bottom,
	}
}
