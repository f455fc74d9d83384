package tracking

import (
	"log/slog"
	"sync"
)

// Anchor is the attachment point tied to the detected marker pose
type Anchor struct {
	index   int
	session *Session

	mutex   sync.Mutex
	visible bool
	content *Content
	onFound func()
}

func (a *Anchor) Index() int { return a.index }

// OnTargetFound registers the callback fired each time the marker goes from
// not visible to visible
func (a *Anchor) OnTargetFound(fn func()) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.onFound = fn
}

// Attach parents content under the anchor, replacing any previous content.
// Content attached before the session runs is pushed when it starts; content
// attached after the session stopped is dropped.
func (a *Anchor) Attach(content Content) error {
	return a.session.attachContent(a, content)
}

func (a *Anchor) setContent(content Content) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.content = &content
}

// Content returns the attached content, if any
func (a *Anchor) Content() (Content, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.content == nil {
		return Content{}, false
	}
	return *a.content, true
}

// Visible reports whether the marker is currently in view
func (a *Anchor) Visible() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.visible
}

// setVisible updates visibility and reports whether it changed
func (a *Anchor) setVisible(v bool) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.visible == v {
		return false
	}
	a.visible = v
	return true
}

func (a *Anchor) fireFound() {
	a.mutex.Lock()
	fn := a.onFound
	a.mutex.Unlock()

	if fn == nil {
		slog.Debug("Target found with no listener", "anchor", a.index)
		return
	}
	fn()
}
