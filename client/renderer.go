// Package client implements the client-side board state: a local mirror of a
// room's action history and a snapshot cache that makes undo/redo an O(1)
// visual operation instead of a full replay.
//
// Rendering itself is external: the package drives any Renderer and treats
// its snapshots as opaque values.
package client

import (
	v1 "slate/shared/contracts/board/v1"
)

// Image is an opaque full-canvas raster snapshot. It is produced by
// Renderer.Snapshot and only ever handed back to Renderer.Restore.
type Image any

// Renderer is the drawing surface the mirror drives.
//
// Snapshot must capture the complete current pixel state; Restore must bring
// the canvas back to exactly that state. Both are synchronous; their cost
// scales with canvas area, not history length, which is why the cache is
// keyed by state rather than by delta.
type Renderer interface {
	// Render draws one line segment (brush or eraser).
	Render(event v1.DrawEvent)
	// RenderShape draws a shape outline from the event's bounds.
	RenderShape(event v1.DrawEvent)
	// Snapshot captures the full current canvas.
	Snapshot() Image
	// Restore replaces the canvas with a previously captured snapshot.
	Restore(img Image)
	// Clear blanks the canvas.
	Clear()
}

// renderEvent routes one event to the renderer: rectangle events draw an
// outline, everything else draws a line segment.
func renderEvent(r Renderer, event v1.DrawEvent) {
	if event.Tool == v1.ToolRectangle {
		r.RenderShape(event)
		return
	}
	r.Render(event)
}

// renderAction replays every event of one action.
func renderAction(r Renderer, action v1.DrawAction) {
	for _, ev := range action.Events {
		renderEvent(r, ev)
	}
}
