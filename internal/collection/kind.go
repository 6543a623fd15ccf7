package collection

// Kind describes one type of collection: its name and the OAE resource path
// its records are listed from. Each collection kind is its own type.
type Kind interface {
	// Name identifies the kind in configuration and logs.
	Name() string
	// PathTemplate is the resource path below /api/, with {{parentId}}
	// substituted from the collection options. An empty template marks a
	// local-only kind that cannot be fetched.
	PathTemplate() string
}

// SubGroups lists the groups (and users) that are members of a parent group.
type SubGroups struct{}

// Name implements Kind.
func (SubGroups) Name() string { return "subGroups" }

// PathTemplate implements Kind.
func (SubGroups) PathTemplate() string { return "group/{{parentId}}/members" }

// MemberGroups lists the groups a principal is a member of, through the OAE
// members-library search.
type MemberGroups struct{}

// Name implements Kind.
func (MemberGroups) Name() string { return "memberGroups" }

// PathTemplate implements Kind.
func (MemberGroups) PathTemplate() string { return "search/members-library/{{parentId}}" }

// Pois holds points of interest placed on the map. Records are added locally;
// the kind has no remote listing endpoint.
type Pois struct{}

// Name implements Kind.
func (Pois) Name() string { return "pois" }

// PathTemplate implements Kind.
func (Pois) PathTemplate() string { return "" }

// Fetchable reports whether collections of kind k can be fetched.
func Fetchable(k Kind) bool {
	return k != nil && k.PathTemplate() != ""
}
