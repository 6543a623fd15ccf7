package collection

// Options scope a collection's remote listing.
type Options struct {
	// ParentID identifies the owning group. Defaults to "".
	ParentID string
	// Limit is the maximum number of records to request. Nil means no limit
	// and the limit parameter is omitted; an explicit zero is sent as limit=0.
	Limit *int
}

// Option updates one option key. Options passed together are applied in
// order, so later values win.
type Option func(*Options)

// WithParentID sets the owning group identifier.
func WithParentID(id string) Option {
	return func(o *Options) {
		o.ParentID = id
	}
}

// WithLimit sets the maximum number of records to request.
func WithLimit(n int) Option {
	return func(o *Options) {
		o.Limit = &n
	}
}

// WithoutLimit clears the limit so none is sent.
func WithoutLimit() Option {
	return func(o *Options) {
		o.Limit = nil
	}
}

// DefaultOptions returns the options a collection starts from.
func DefaultOptions() Options {
	return Options{ParentID: ""}
}

// LimitValue returns the configured limit and whether one is set.
func (o Options) LimitValue() (int, bool) {
	if o.Limit == nil {
		return 0, false
	}
	return *o.Limit, true
}

// clone returns a deep copy so callers cannot reach the collection's state.
func (o Options) clone() Options {
	out := o
	if o.Limit != nil {
		n := *o.Limit
		out.Limit = &n
	}
	return out
}

// apply merges opts over o: only the keys the options touch change.
func (o Options) apply(opts []Option) Options {
	out := o.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// templateData exposes the options to resource path templates.
func (o Options) templateData() map[string]interface{} {
	data := map[string]interface{}{"parentId": o.ParentID}
	if n, ok := o.LimitValue(); ok {
		data["limit"] = n
	}
	return data
}
