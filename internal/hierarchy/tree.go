package hierarchy

import (
	"github.com/danielolaszy/hierview/pkg/models"
)

// Node wraps one issue together with its resolved children. Nodes are owned
// exclusively by the Tree that created them.
type Node struct {
	Issue    *models.Issue
	Children []*Node
}

// Tree is the node-ownership arena for one streaming session. Every issue key
// appears at most once, even when the tracker returns the same issue via two
// query paths. A Tree lives for exactly one stream and is never shared.
type Tree struct {
	nodes map[string]*Node
	roots []*Node
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[string]*Node)}
}

// Contains reports whether an issue key is already materialized.
func (t *Tree) Contains(key string) bool {
	_, ok := t.nodes[key]
	return ok
}

// Get returns the node for a key, or nil.
func (t *Tree) Get(key string) *Node {
	return t.nodes[key]
}

// Len returns the number of materialized nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Roots returns the top-level nodes in insertion order.
func (t *Tree) Roots() []*Node {
	return t.roots
}

// Add materializes an issue under the parent identified by parentKey, or as a
// root when parentKey is empty. It returns false without modifying the tree
// when the key already exists or the parent is absent.
func (t *Tree) Add(issue *models.Issue, parentKey string) bool {
	if _, exists := t.nodes[issue.Key]; exists {
		return false
	}

	node := &Node{Issue: issue}
	if parentKey == "" {
		t.nodes[issue.Key] = node
		t.roots = append(t.roots, node)
		return true
	}

	parent, ok := t.nodes[parentKey]
	if !ok {
		return false
	}
	t.nodes[issue.Key] = node
	parent.Children = append(parent.Children, node)
	return true
}
