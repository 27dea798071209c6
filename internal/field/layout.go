package field

import (
	"fmt"
	"slices"
)

// Node is a structural node of a field layout. The root has no extents;
// each Dense child appends its extents to those of its ancestors, and every
// field placed under a node takes the node's accumulated shape.
type Node struct {
	parent  *Node
	extents []int
	fields  []*Field
}

// Root returns a new layout root. Fields placed directly under the root
// hold a single element.
func Root() *Node { return &Node{} }

// Dense returns a child node adding dense axes with the given extents.
func (n *Node) Dense(extents ...int) *Node {
	return &Node{parent: n, extents: slices.Clone(extents)}
}

// Shape is the concatenation of the extents from the root down to n.
func (n *Node) Shape() []int {
	var chain []*Node
	for p := n; p != nil; p = p.parent {
		chain = append(chain, p)
	}
	var shape []int
	for i := len(chain) - 1; i >= 0; i-- {
		shape = append(shape, chain[i].extents...)
	}
	return shape
}

// Place allocates storage for each field with the node's shape. It stops
// at the first field that cannot be placed.
func (n *Node) Place(fields ...*Field) error {
	shape := n.Shape()
	for _, f := range fields {
		if f == nil {
			return fmt.Errorf("place: nil field: %w", ErrNotPlaced)
		}
		if err := f.place(shape); err != nil {
			return err
		}
		n.fields = append(n.fields, f)
	}
	return nil
}

// Fields lists the fields placed directly under n.
func (n *Node) Fields() []*Field { return slices.Clone(n.fields) }
