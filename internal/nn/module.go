// Package nn holds the in-memory module graph used by the native backend and
// the quantizer. A graph is a tree of Modules; container nodes own their
// children through indexed slots so a child can be swapped in place.
package nn

import "fmt"

// Module is any node of the graph.
type Module interface {
	Name() string
	Kind() string
	// Parameters and Buffers list tensors owned directly by this module
	// (children are not included).
	Parameters() []*Tensor
	Buffers() []*Tensor
}

// Parent is a module that owns child slots.
type Parent interface {
	Module
	NumChildren() int
	Child(i int) Module
	// Replace swaps slot i and returns the previous occupant.
	Replace(i int, m Module) (Module, error)
}

// Layer is a module that maps one activation vector to another.
type Layer interface {
	Module
	Forward(x []float32) ([]float32, error)
}

// Releaser frees the storage of a module that has been removed from the graph.
type Releaser interface {
	Release()
}

// Trainable modules change behavior between training and inference.
type Trainable interface {
	SetTraining(bool)
}

// Container is a generic parent with named slots.
type Container struct {
	name     string
	kind     string
	children []Module
}

// NewContainer builds a container with the given children in slot order.
func NewContainer(name, kind string, children ...Module) *Container {
	return &Container{name: name, kind: kind, children: children}
}

func (c *Container) Name() string          { return c.name }
func (c *Container) Kind() string          { return c.kind }
func (c *Container) Parameters() []*Tensor { return nil }
func (c *Container) Buffers() []*Tensor    { return nil }
func (c *Container) NumChildren() int      { return len(c.children) }
func (c *Container) Child(i int) Module    { return c.children[i] }

// Append adds a child in a new slot.
func (c *Container) Append(m Module) { c.children = append(c.children, m) }

func (c *Container) Replace(i int, m Module) (Module, error) {
	if i < 0 || i >= len(c.children) {
		return nil, fmt.Errorf("%s: slot %d out of range", c.name, i)
	}
	if m == nil {
		return nil, fmt.Errorf("%s: nil module for slot %d", c.name, i)
	}
	old := c.children[i]
	c.children[i] = m
	return old, nil
}

// Lookup returns the direct child with the given name.
func (c *Container) Lookup(name string) (Module, bool) {
	for _, ch := range c.children {
		if ch.Name() == name {
			return ch, true
		}
	}
	return nil, false
}

// ShallowCopy returns a container with the same children in new slots.
func (c *Container) ShallowCopy() *Container {
	return &Container{name: c.name, kind: c.kind, children: append([]Module(nil), c.children...)}
}

// Walk visits every module depth first. Returning false from fn skips the
// module's subtree.
func Walk(m Module, fn func(path string, m Module) bool) {
	walk(m.Name(), m, fn)
}

func walk(path string, m Module, fn func(string, Module) bool) {
	if !fn(path, m) {
		return
	}
	p, ok := m.(Parent)
	if !ok {
		return
	}
	for i := 0; i < p.NumChildren(); i++ {
		ch := p.Child(i)
		walk(path+"."+ch.Name(), ch, fn)
	}
}

// SetTraining toggles every Trainable module in the graph.
func SetTraining(root Module, training bool) {
	Walk(root, func(_ string, m Module) bool {
		if t, ok := m.(Trainable); ok {
			t.SetTraining(training)
		}
		return true
	})
}

// Eval puts the graph into inference mode.
func Eval(root Module) { SetTraining(root, false) }
