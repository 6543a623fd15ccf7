// Package registry maps collection kind names, as written in the site
// configuration, to collection kinds.
//
// # Adding a New Kind
//
// A kind is any collection.Kind: a name and a resource path template below
// /api/. To list another OAE resource, define the kind and register it from
// an init() function:
//
//	type Followers struct{}
//
//	func (Followers) Name() string         { return "followers" }
//	func (Followers) PathTemplate() string { return "following/{{parentId}}/followers" }
//
//	func init() {
//	    registry.RegisterKind(Followers{})
//	}
//
// # Built-in Kinds
//
// subGroups, memberGroups and pois are registered automatically.
package registry

import (
	"sort"
	"sync"

	"github.com/gscoppino/STEM/internal/collection"
)

var (
	kindMu       sync.RWMutex
	kindRegistry = make(map[string]collection.Kind)
)

// RegisterKind registers a kind under its name. Registering a name twice
// replaces the previous kind.
//
// This function is safe for concurrent use and is typically called from
// init() functions.
func RegisterKind(kind collection.Kind) {
	if kind == nil {
		return
	}
	kindMu.Lock()
	defer kindMu.Unlock()
	kindRegistry[kind.Name()] = kind
}

// GetKind returns the kind registered under name.
func GetKind(name string) (collection.Kind, bool) {
	kindMu.RLock()
	defer kindMu.RUnlock()
	kind, ok := kindRegistry[name]
	return kind, ok
}

// ListKinds returns the registered kind names, sorted.
func ListKinds() []string {
	kindMu.RLock()
	defer kindMu.RUnlock()
	names := make([]string, 0, len(kindRegistry))
	for name := range kindRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearRegistry removes all registered kinds.
// This is intended for testing purposes only.
func ClearRegistry() {
	kindMu.Lock()
	defer kindMu.Unlock()
	kindRegistry = make(map[string]collection.Kind)
}

// RegisterBuiltins registers the built-in kinds. It runs at init and may be
// called again after ClearRegistry.
func RegisterBuiltins() {
	RegisterKind(collection.SubGroups{})
	RegisterKind(collection.MemberGroups{})
	RegisterKind(collection.Pois{})
}
