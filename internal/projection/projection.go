// Package projection builds the virtual folder tree shown for a set of
// vaults.
//
// Secrets are stored flat. The tree is derived on every call from the
// Folder and DisplayName tags of the cached properties and is never
// persisted; only the flat tags that generate it are. Project is a pure
// function of its inputs: the same sources, search term and expanded state
// always give a structurally identical tree.
//
// Node keys identify vaults and folders across rebuilds so that expand and
// collapse state can be restored:
//
//	corp-kv              vault
//	corp-kv/Prod         folder "Prod" at the vault root
//	corp-kv/Prod/DB      folder "DB" inside "Prod"
//	corp-kv#db-password  secret "db-password"
package projection

import (
	"strings"

	"github.com/systmms/knox/pkg/secretstore"
)

// Kind is the type of a tree node.
type Kind int

const (
	KindVault Kind = iota
	KindFolder
	KindSecret
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindVault:
		return "vault"
	case KindFolder:
		return "folder"
	case KindSecret:
		return "secret"
	}
	return "unknown"
}

// Descriptor identifies the entity behind a node. It is one of VaultRef,
// FolderRef or SecretRef.
type Descriptor interface {
	Kind() Kind
	descriptor()
}

// VaultRef points at a vault.
type VaultRef struct {
	Vault string
}

// FolderRef points at a virtual folder. Path holds the folder labels from
// the vault root down.
type FolderRef struct {
	Vault string
	Path  []string
}

// SecretRef points at a secret by its real name.
type SecretRef struct {
	Vault string
	Name  string
}

func (VaultRef) Kind() Kind  { return KindVault }
func (FolderRef) Kind() Kind { return KindFolder }
func (SecretRef) Kind() Kind { return KindSecret }

func (VaultRef) descriptor()  {}
func (FolderRef) descriptor() {}
func (SecretRef) descriptor() {}

// Node is one entry of the projected tree.
type Node struct {
	Kind     Kind
	Label    string
	Key      string
	Ref      Descriptor
	Expanded bool
	Children []*Node
}

// Source is a vault with cached secret properties. *vault.Client satisfies
// it.
type Source interface {
	Name() string
	Properties() []secretstore.Properties
}

// ExpandedLookup reports the remembered expand state of a node key.
type ExpandedLookup interface {
	IsExpanded(key string) bool
}

// ExpandedState maps vault and folder keys to their expand state. Absent
// keys are collapsed. A nil ExpandedState is valid for lookups.
type ExpandedState map[string]bool

// IsExpanded implements ExpandedLookup.
func (s ExpandedState) IsExpanded(key string) bool {
	return s[key]
}

// Record stores the expand state of every vault and folder under nodes.
func (s ExpandedState) Record(nodes []*Node) {
	for _, n := range nodes {
		if n.Kind == KindSecret {
			continue
		}
		s[n.Key] = n.Expanded
		s.Record(n.Children)
	}
}

// Project builds the tree for sources. With a blank term every secret is
// shown and expand state comes from state; otherwise only matching secrets
// are shown and every node that has children is expanded.
func Project(sources []Source, term string, state ExpandedLookup) []*Node {
	term = strings.TrimSpace(term)
	searching := term != ""

	nodes := make([]*Node, 0, len(sources))
	for _, src := range sources {
		vaultName := src.Name()
		vn := &Node{
			Kind:  KindVault,
			Label: vaultName,
			Key:   vaultName,
			Ref:   VaultRef{Vault: vaultName},
		}

		for _, p := range src.Properties() {
			if !Matches(p, term) {
				continue
			}
			parent := vn
			var path []string
			for _, segment := range SplitFolderPath(folderOf(p)) {
				path = append(path, segment)
				parent = childFolder(parent, vaultName, segment, path)
			}
			parent.Children = append(parent.Children, &Node{
				Kind:  KindSecret,
				Label: DisplayLabel(p),
				Key:   SecretKey(vaultName, p.Name),
				Ref:   SecretRef{Vault: vaultName, Name: p.Name},
			})
		}

		applyExpanded(vn, searching, state)
		nodes = append(nodes, vn)
	}
	return nodes
}

// SplitFolderPath splits a Folder tag value on slashes and backslashes,
// dropping empty segments.
func SplitFolderPath(folder string) []string {
	return strings.FieldsFunc(folder, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// Matches reports whether p is shown for term. A blank term matches every
// secret; otherwise the secret name and the tag values are searched
// case-insensitively. Tag names are not searched.
func Matches(p secretstore.Properties, term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return true
	}
	needle := strings.ToLower(term)
	if strings.Contains(strings.ToLower(p.Name), needle) {
		return true
	}
	for _, v := range p.Tags {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// DisplayLabel returns the DisplayName tag when present, otherwise the
// secret name.
func DisplayLabel(p secretstore.Properties) string {
	if label, ok := p.Tag(secretstore.TagDisplayName); ok && label != "" {
		return label
	}
	return p.Name
}

// SecretKey returns the node key of a secret.
func SecretKey(vault, name string) string {
	return vault + "#" + name
}

// FolderKey returns the node key of the folder at path in vault.
func FolderKey(vault string, path []string) string {
	if len(path) == 0 {
		return vault
	}
	return vault + "/" + strings.Join(path, "/")
}

func folderOf(p secretstore.Properties) string {
	folder, _ := p.Tag(secretstore.TagFolder)
	return folder
}

// childFolder returns the first folder child of parent labelled segment,
// creating it when missing.
func childFolder(parent *Node, vault, segment string, path []string) *Node {
	for _, c := range parent.Children {
		if c.Kind == KindFolder && c.Label == segment {
			return c
		}
	}
	ref := FolderRef{Vault: vault, Path: append([]string(nil), path...)}
	n := &Node{
		Kind:  KindFolder,
		Label: segment,
		Key:   FolderKey(vault, ref.Path),
		Ref:   ref,
	}
	parent.Children = append(parent.Children, n)
	return n
}

func applyExpanded(n *Node, searching bool, state ExpandedLookup) {
	if n.Kind == KindSecret {
		return
	}
	if searching {
		n.Expanded = len(n.Children) > 0
	} else if state != nil {
		n.Expanded = state.IsExpanded(n.Key)
	}
	for _, c := range n.Children {
		applyExpanded(c, searching, state)
	}
}

// Walk calls fn for every node in depth-first order. Returning false from
// fn skips the children of that node.
func Walk(nodes []*Node, fn func(n *Node, depth int) bool) {
	walk(nodes, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(*Node, int) bool) {
	for _, n := range nodes {
		if fn(n, depth) {
			walk(n.Children, depth+1, fn)
		}
	}
}
