package projection

import (
	"fmt"
	"io"
	"strings"
)

// View holds the current tree together with the search term and the
// remembered expand state. It is used by the interactive shell; Project
// stays the only place the tree is built.
type View struct {
	sources []Source
	state   ExpandedState
	term    string
	nodes   []*Node
}

// NewView builds the initial tree. state is shared and updated in place;
// a nil state starts empty.
func NewView(sources []Source, state ExpandedState) *View {
	if state == nil {
		state = make(ExpandedState)
	}
	v := &View{sources: sources, state: state}
	v.Reload()
	return v
}

// Reload rebuilds the tree from the sources' current caches.
func (v *View) Reload() {
	v.nodes = Project(v.sources, v.term, v.state)
}

// SetSources replaces the sources and rebuilds.
func (v *View) SetSources(sources []Source) {
	v.sources = sources
	v.Reload()
}

// Nodes returns the current tree.
func (v *View) Nodes() []*Node {
	return v.nodes
}

// Term returns the current search term.
func (v *View) Term() string {
	return v.term
}

// Searching reports whether a non-blank search term is active.
func (v *View) Searching() bool {
	return strings.TrimSpace(v.term) != ""
}

// State returns the remembered expand state.
func (v *View) State() ExpandedState {
	return v.state
}

// SetSearch changes the search term. Starting a search from a blank term
// records the current layout first, so clearing the search restores it.
func (v *View) SetSearch(term string) {
	if !v.Searching() && strings.TrimSpace(term) != "" {
		v.state.Record(v.nodes)
	}
	v.term = term
	v.Reload()
}

// Toggle flips the expand state of the vault or folder at key and returns
// the new state.
func (v *View) Toggle(key string) (bool, error) {
	n, err := v.container(key)
	if err != nil {
		return false, err
	}
	v.set(n, !n.Expanded)
	return n.Expanded, nil
}

// SetExpanded sets the expand state of the vault or folder at key. While
// searching only the node changes; the remembered state is kept for when
// the search is cleared.
func (v *View) SetExpanded(key string, expanded bool) error {
	n, err := v.container(key)
	if err != nil {
		return err
	}
	v.set(n, expanded)
	return nil
}

// ExpandAll expands every vault and folder in the current tree.
func (v *View) ExpandAll() {
	Walk(v.nodes, func(n *Node, _ int) bool {
		if n.Kind != KindSecret {
			v.set(n, true)
		}
		return true
	})
}

// Find resolves a node key to its descriptor.
func (v *View) Find(key string) (Descriptor, bool) {
	n := v.find(key)
	if n == nil {
		return nil, false
	}
	return n.Ref, true
}

// Render writes the visible part of the tree, two spaces per level.
// Collapsed vaults and folders are marked with "+", expanded ones with "-".
func (v *View) Render(w io.Writer) error {
	var err error
	Walk(v.nodes, func(n *Node, depth int) bool {
		if err != nil {
			return false
		}
		indent := strings.Repeat("  ", depth)
		switch n.Kind {
		case KindVault, KindFolder:
			marker := "+"
			if n.Expanded {
				marker = "-"
			}
			suffix := ""
			if n.Kind == KindFolder {
				suffix = "/"
			}
			_, err = fmt.Fprintf(w, "%s%s %s%s\n", indent, marker, n.Label, suffix)
			return n.Expanded
		default:
			ref := n.Ref.(SecretRef)
			if n.Label != ref.Name {
				_, err = fmt.Fprintf(w, "%s  %s (%s)\n", indent, n.Label, ref.Name)
			} else {
				_, err = fmt.Fprintf(w, "%s  %s\n", indent, n.Label)
			}
			return false
		}
	})
	return err
}

func (v *View) set(n *Node, expanded bool) {
	n.Expanded = expanded
	if !v.Searching() {
		v.state[n.Key] = expanded
	}
}

func (v *View) container(key string) (*Node, error) {
	n := v.find(key)
	if n == nil {
		return nil, fmt.Errorf("no vault or folder %q in the tree", key)
	}
	if n.Kind == KindSecret {
		return nil, fmt.Errorf("%q is a secret and cannot be expanded", key)
	}
	return n, nil
}

func (v *View) find(key string) *Node {
	var found *Node
	Walk(v.nodes, func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.Key == key {
			found = n
			return false
		}
		return true
	})
	return found
}
