package sketch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f64"
)

func TestNewLayerAddsMargin(t *testing.T) {
	l := New(100, 50)
	assert.Equal(t, 20.0, l.Offset())
	assert.Equal(t, 140, l.Document().Rect.Dx())
	assert.Equal(t, 90, l.Document().Rect.Dy())
	assert.True(t, l.Empty())
}

func TestBrushStroke(t *testing.T) {
	l := New(100, 100)
	changes := 0
	l.Changed.On(func(struct{}) { changes++ })

	l.Stroke(Brush, f64.Vec2{10, 10}, f64.Vec2{60, 10})
	require.False(t, l.Empty())
	assert.Equal(t, 1, changes)

	off := int(l.Offset())
	doc := l.Document()
	// on the segment
	assert.Equal(t, uint8(255), doc.RGBAAt(off+35, off+10).A)
	// far from it
	assert.Equal(t, uint8(0), doc.RGBAAt(off+35, off+40).A)
}

func TestStrokeOffFrameStaysInDocument(t *testing.T) {
	l := New(100, 100)
	l.Stroke(Brush, f64.Vec2{-10, -10}, f64.Vec2{-10, -10})

	off := int(l.Offset())
	assert.Equal(t, uint8(255), l.Document().RGBAAt(off-10, off-10).A)
}

func TestEraserRemovesInk(t *testing.T) {
	l := New(100, 100)
	l.BrushSize = 20
	l.Stroke(Brush, f64.Vec2{10, 50}, f64.Vec2{90, 50})

	l.Stroke(Eraser, f64.Vec2{50, 50}, f64.Vec2{50, 50})
	off := int(l.Offset())
	doc := l.Document()
	assert.Equal(t, uint8(0), doc.RGBAAt(off+50, off+50).A)
	assert.Equal(t, uint8(255), doc.RGBAAt(off+20, off+50).A)
}

func TestClear(t *testing.T) {
	l := New(20, 20)
	l.Stroke(Brush, f64.Vec2{1, 1}, f64.Vec2{15, 15})
	l.Clear()
	assert.True(t, l.Empty())
}

func TestParseTool(t *testing.T) {
	tool, ok := ParseTool("eraser")
	assert.True(t, ok)
	assert.Equal(t, Eraser, tool)
	assert.Equal(t, "eraser", tool.String())

	_, ok = ParseTool("spray")
	assert.False(t, ok)
}
