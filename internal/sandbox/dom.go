package sandbox

import (
	"errors"

	"golang.org/x/net/html"
)

// ErrCrossOrigin is returned when the host asks for the document of a
// frame isolated to an opaque origin.
var ErrCrossOrigin = errors.New("frame document is on an opaque origin")

const frameTag = "iframe"

// Node is an element in a mount subtree. Nodes are not safe for
// concurrent use; a mount and everything under it belong to one owner.
type Node struct {
	Tag      string
	attrs    map[string]string
	parent   *Node
	children []*Node
	mount    *Mount
	doc      *html.Node
}

// NewElement returns a detached element.
func NewElement(tag string) *Node {
	return &Node{Tag: tag, attrs: make(map[string]string)}
}

// NewFrame returns a detached frame wrapping doc. New frames start with
// the restrictive value so a frame is never without a valid grant.
func NewFrame(doc *html.Node) *Node {
	n := NewElement(frameTag)
	n.doc = doc
	n.attrs[AttrName] = ScriptsBlocked.Attr()
	return n
}

// IsFrame reports whether n embeds a document.
func (n *Node) IsFrame() bool { return n.Tag == frameTag }

// Attr returns the attribute value or "".
func (n *Node) Attr(name string) string { return n.attrs[name] }

// SetAttr sets an attribute and notifies the owning mount's observers.
func (n *Node) SetAttr(name, value string) {
	old, had := n.attrs[name]
	if had && old == value {
		return
	}
	n.attrs[name] = value
	if n.mount != nil {
		n.mount.record(MutationRecord{Kind: AttributeChanged, Target: n, Name: name, OldValue: old})
	}
}

// Parent returns the parent node, or nil.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// AppendChild attaches c as the last child of n, detaching it from any
// previous parent first.
func (n *Node) AppendChild(c *Node) {
	if c == nil || c == n {
		return
	}
	if c.parent != nil {
		c.parent.RemoveChild(c)
	}
	c.parent = n
	n.children = append(n.children, c)
	if n.mount != nil {
		n.mount.adopt(c)
	}
}

// RemoveChild detaches c from n. It reports whether c was a child.
func (n *Node) RemoveChild(c *Node) bool {
	for i, ch := range n.children {
		if ch != c {
			continue
		}
		n.children = append(n.children[:i], n.children[i+1:]...)
		c.parent = nil
		if m := c.mount; m != nil {
			c.walk(func(x *Node) { x.mount = nil })
			m.record(MutationRecord{Kind: ChildRemoved, Target: c})
		}
		return true
	}
	return false
}

// ContentDocument returns the embedded document when the frame's grant
// keeps it on the host origin.
func (n *Node) ContentDocument() (*html.Node, error) {
	if !n.IsFrame() {
		return nil, errors.New("not a frame")
	}
	attr := n.attrs[AttrName]
	if !hasToken(attr, tokenSameOrigin) {
		return nil, ErrCrossOrigin
	}
	return n.doc, nil
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.walk(fn)
	}
}

// MutationKind classifies a mutation record.
type MutationKind int

const (
	ChildAdded MutationKind = iota
	ChildRemoved
	AttributeChanged
)

// MutationRecord describes one change inside a mount subtree.
type MutationRecord struct {
	Kind     MutationKind
	Target   *Node
	Name     string
	OldValue string
}

// InsertHook runs synchronously for every node entering a mount subtree,
// before the insertion call returns.
type InsertHook func(n *Node)

// Observer receives every mutation record of a mount subtree.
type Observer func(rec MutationRecord)

// Mount is the container embedded content is rendered into.
type Mount struct {
	root       *Node
	nextID     int
	hooks      map[int]InsertHook
	observers  map[int]Observer
	queue      []MutationRecord
	delivering bool
}

// NewMount returns an empty mount.
func NewMount() *Mount {
	m := &Mount{
		hooks:     make(map[int]InsertHook),
		observers: make(map[int]Observer),
	}
	m.root = NewElement("div")
	m.root.mount = m
	return m
}

// Root returns the mount container node.
func (m *Mount) Root() *Node { return m.root }

// Insert appends n to the mount container.
func (m *Mount) Insert(n *Node) { m.root.AppendChild(n) }

// Clear detaches everything under the container.
func (m *Mount) Clear() {
	for _, c := range m.root.Children() {
		m.root.RemoveChild(c)
	}
}

// Frames returns every frame currently in the subtree, in document order.
func (m *Mount) Frames() []*Node {
	var out []*Node
	m.root.walk(func(n *Node) {
		if n.IsFrame() {
			out = append(out, n)
		}
	})
	return out
}

// Intercept registers a hook for node insertions and returns its remover.
func (m *Mount) Intercept(h InsertHook) func() {
	id := m.nextID
	m.nextID++
	m.hooks[id] = h
	return func() { delete(m.hooks, id) }
}

// Observe registers an observer and returns its disconnect function.
func (m *Mount) Observe(o Observer) func() {
	id := m.nextID
	m.nextID++
	m.observers[id] = o
	return func() { delete(m.observers, id) }
}

func (m *Mount) adopt(c *Node) {
	c.walk(func(x *Node) { x.mount = m })
	c.walk(func(x *Node) {
		for _, h := range m.hooks {
			h(x)
		}
	})
	m.record(MutationRecord{Kind: ChildAdded, Target: c})
}

// record queues rec and drains the queue unless a delivery is already in
// progress further up the stack.
func (m *Mount) record(rec MutationRecord) {
	m.queue = append(m.queue, rec)
	if m.delivering {
		return
	}
	m.delivering = true
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		for _, o := range m.observers {
			o(next)
		}
	}
	m.delivering = false
}
