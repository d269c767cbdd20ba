package sandbox

import (
	"io"
	"log"
)

// Policy keeps every frame under a mount stamped with one mode. The mode
// is fixed for the life of the policy: frame isolation is decided when a
// frame is created, so changing modes means re-opening the document with
// a new policy.
type Policy struct {
	mode    Mode
	logger  *log.Logger
	mount   *Mount
	removes []func()
	stamps  int
}

// NewPolicy returns a policy for mode. A nil logger discards output.
func NewPolicy(mode Mode, logger *log.Logger) *Policy {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Policy{mode: mode, logger: logger}
}

// Mode returns the active privilege set.
func (p *Policy) Mode() Mode { return p.mode }

// Install guards m: node insertions are intercepted and stamped before
// the insertion returns, and an observer re-stamps any frame whose grant
// changes afterwards. Frames already present are reconciled immediately.
// The returned function removes both.
func (p *Policy) Install(m *Mount) func() {
	p.Uninstall()
	p.mount = m
	p.removes = []func(){
		m.Intercept(func(n *Node) { p.Stamp(n) }),
		m.Observe(p.observe),
	}
	p.Reconcile()
	return p.Uninstall
}

// Uninstall removes the guard and observer. It is safe to call twice.
func (p *Policy) Uninstall() {
	for _, rm := range p.removes {
		rm()
	}
	p.removes = nil
	p.mount = nil
}

// Stamp applies the active mode to n if it is a frame. It reports whether
// the attribute had to change.
func (p *Policy) Stamp(n *Node) bool {
	if n == nil || !n.IsFrame() {
		return false
	}
	want := p.mode.Attr()
	got := n.Attr(AttrName)
	if got == want {
		return false
	}
	if !ValidAttr(got) {
		p.logger.Printf("sandbox: replacing frame grant %q with %q", got, want)
	}
	n.SetAttr(AttrName, want)
	p.stamps++
	return true
}

// Reconcile walks the whole mount and stamps every frame. It returns the
// number of frames that needed a change.
func (p *Policy) Reconcile() int {
	if p.mount == nil {
		return 0
	}
	changed := 0
	for _, f := range p.mount.Frames() {
		if p.Stamp(f) {
			changed++
		}
	}
	return changed
}

// Stamps returns how many attribute corrections the policy has made.
func (p *Policy) Stamps() int { return p.stamps }

func (p *Policy) observe(rec MutationRecord) {
	switch rec.Kind {
	case ChildAdded:
		rec.Target.walk(func(n *Node) { p.Stamp(n) })
	case AttributeChanged:
		if rec.Name == AttrName {
			p.Stamp(rec.Target)
		}
	}
}
