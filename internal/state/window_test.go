// ABOUTME: Tests for virtual window computation
// ABOUTME: Threshold bypass, bounds, padding arithmetic

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeWindow_SmallListBypassesWindowing(t *testing.T) {
	w := ComputeWindow(WindowParams{
		ScrollTop:      5000,
		ViewportHeight: 600,
		TotalCount:     150,
	})
	assert.Equal(t, 0, w.StartIndex)
	assert.Equal(t, 150, w.EndIndex)
	assert.Equal(t, 0, w.TopPadding)
	assert.Equal(t, 0, w.BottomPadding)
}

func TestComputeWindow_EmptyList(t *testing.T) {
	w := ComputeWindow(WindowParams{ViewportHeight: 600})
	assert.Equal(t, Window{}, w)
}

func TestComputeWindow_ScrolledMiddle(t *testing.T) {
	w := ComputeWindow(WindowParams{
		ScrollTop:      8800, // row 100 at default height
		ViewportHeight: 880,  // 10 rows
		TotalCount:     1000,
	})
	assert.Equal(t, 88, w.StartIndex) // 100 - overscan
	assert.Equal(t, 88+10+DefaultOverscan*2, w.EndIndex)
	assert.Equal(t, 88*DefaultRowHeight, w.TopPadding)
	assert.Equal(t, (1000-w.EndIndex)*DefaultRowHeight, w.BottomPadding)
}

func TestComputeWindow_PaddingSumsToFullHeight(t *testing.T) {
	p := WindowParams{
		ScrollTop:      12345,
		ViewportHeight: 700,
		TotalCount:     500,
	}
	w := ComputeWindow(p)
	rendered := (w.EndIndex - w.StartIndex) * DefaultRowHeight
	assert.Equal(t, p.TotalCount*DefaultRowHeight, w.TopPadding+rendered+w.BottomPadding)
}

func TestComputeWindow_TopOfList(t *testing.T) {
	w := ComputeWindow(WindowParams{
		ScrollTop:      0,
		ViewportHeight: 600,
		TotalCount:     400,
	})
	assert.Equal(t, 0, w.StartIndex)
	assert.Equal(t, 0, w.TopPadding)
	assert.Greater(t, w.EndIndex, 0)
	assert.LessOrEqual(t, w.EndIndex, 400)
}

func TestComputeWindow_BottomClamped(t *testing.T) {
	w := ComputeWindow(WindowParams{
		ScrollTop:      1 << 20,
		ViewportHeight: 600,
		TotalCount:     300,
	})
	assert.Equal(t, 300, w.EndIndex)
	assert.Equal(t, 0, w.BottomPadding)
	assert.LessOrEqual(t, w.StartIndex, w.EndIndex)
}

func TestComputeWindow_CustomGeometry(t *testing.T) {
	w := ComputeWindow(WindowParams{
		ScrollTop:      1000,
		ViewportHeight: 500,
		TotalCount:     50,
		RowHeight:      100,
		Overscan:       2,
		Threshold:      10,
	})
	assert.Equal(t, 8, w.StartIndex) // 1000/100 - 2
	assert.Equal(t, 8+5+4, w.EndIndex)
	assert.Equal(t, 800, w.TopPadding)
}
