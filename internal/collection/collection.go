// Package collection implements remote collections: ordered record sets
// backed by an OAE listing endpoint, scoped by a small set of options and
// refreshed by explicit fetches.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gscoppino/STEM/internal/errhandling"
	"github.com/gscoppino/STEM/internal/logger"
	"github.com/gscoppino/STEM/internal/normalize"
	"github.com/gscoppino/STEM/internal/template"
	"github.com/gscoppino/STEM/pkg/directory"
)

// Common errors
var (
	ErrNotFetchable = errors.New("collection kind has no remote endpoint")
	ErrNilKind      = errors.New("collection kind is required")
	ErrNoHost       = errors.New("endpoint host is required")
)

var pathEvaluator = template.NewEvaluator()

// Endpoint locates the OAE tenant a collection lists from.
type Endpoint struct {
	// Protocol is the URL scheme, with or without the trailing colon
	// ("https:" and "https" are equivalent).
	Protocol string
	// Host is the tenant host name, optionally with a port.
	Host string
}

// Base returns "<protocol>//<host>".
func (e Endpoint) Base() string {
	protocol := e.Protocol
	if protocol == "" {
		protocol = "https:"
	}
	if !strings.HasSuffix(protocol, ":") {
		protocol += ":"
	}
	return protocol + "//" + e.Host
}

// Config holds the fixed parts of a collection, set once at construction.
type Config struct {
	// Name identifies the collection in logs and events. Defaults to the
	// kind name.
	Name string
	// Kind selects the resource path.
	Kind Kind
	// Endpoint is the tenant to list from.
	Endpoint Endpoint
	// Transport performs requests. Defaults to NewClient(ClientConfig{}).
	Transport Transport
}

// Collection is an ordered set of records with a remote listing endpoint.
// It is safe for concurrent use.
type Collection struct {
	name      string
	kind      Kind
	endpoint  Endpoint
	transport Transport

	mu          sync.Mutex
	options     Options
	records     []directory.Record
	index       map[string]int
	current     *Request
	subscribers map[int]func(directory.Event)
	nextSubID   int
}

// New creates a collection. The initial records are stored as given, with no
// normalization, and nothing is fetched.
func New(cfg Config, records []directory.Record, opts ...Option) (*Collection, error) {
	if cfg.Kind == nil {
		return nil, ErrNilKind
	}
	if Fetchable(cfg.Kind) && cfg.Endpoint.Host == "" {
		return nil, ErrNoHost
	}

	name := cfg.Name
	if name == "" {
		name = cfg.Kind.Name()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = NewClient(ClientConfig{})
	}

	c := &Collection{
		name:        name,
		kind:        cfg.Kind,
		endpoint:    cfg.Endpoint,
		transport:   transport,
		options:     DefaultOptions().apply(opts),
		subscribers: make(map[int]func(directory.Event)),
	}
	c.setRecordsLocked(records)
	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Kind returns the collection kind.
func (c *Collection) Kind() Kind { return c.kind }

// Options returns a copy of the current options.
func (c *Collection) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options.clone()
}

// SetOptions merges opts over the current options. Keys not touched by opts
// keep their values. Subsequent BuildURL and Fetch calls see the update.
func (c *Collection) SetOptions(opts ...Option) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options = c.options.apply(opts)
}

// BuildURL returns the listing URL for the current options. The parent
// identifier is escaped as a path segment and the limit parameter is only
// present when a limit is set.
func (c *Collection) BuildURL() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildURLLocked()
}

func (c *Collection) buildURLLocked() (string, error) {
	if !Fetchable(c.kind) {
		return "", fmt.Errorf("%w: %s", ErrNotFetchable, c.kind.Name())
	}

	path := pathEvaluator.EvaluatePath(c.kind.PathTemplate(), c.options.templateData())
	u := c.endpoint.Base() + "/api/" + path

	if n, ok := c.options.LimitValue(); ok {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(n))
		u += "?" + q.Encode()
	}
	return u, nil
}

// Fetch requests the listing and replaces the record set with the
// normalized response. It blocks until the request settles. A fetch that is
// superseded by a newer one returns an error wrapping errhandling.ErrAborted
// and leaves the records to the newer fetch.
func (c *Collection) Fetch(ctx context.Context) error {
	req := c.FetchAsync(ctx)
	<-req.Done()
	return req.Err()
}

// FetchAsync starts a fetch and returns immediately. Any fetch still in
// flight on this collection is aborted first.
func (c *Collection) FetchAsync(ctx context.Context) *Request {
	reqCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	u, err := c.buildURLLocked()
	req := newRequest(uuid.NewString(), u, cancel)
	if err != nil {
		c.mu.Unlock()
		req.finish(err)
		return req
	}

	if prev := c.current; prev != nil && prev.abort(req.ID) {
		logger.LogFetchAborted(c.fetchContext(prev), req.ID)
	}
	c.current = req
	c.mu.Unlock()

	go c.run(reqCtx, req)
	return req
}

func (c *Collection) run(ctx context.Context, req *Request) {
	fc := c.fetchContext(req)
	start := time.Now()
	logger.LogFetchStart(fc)

	body, err := c.transport.Get(ctx, req.URL, req.ID)
	var records []directory.Record
	if err == nil {
		records, err = normalize.Parse(body)
	}

	c.mu.Lock()
	if !req.complete() {
		// Superseded while in flight: the response belongs to nobody.
		c.mu.Unlock()
		req.finish(errhandling.ClassifyNetworkError(
			fmt.Errorf("%w: superseded by %s", errhandling.ErrAborted, req.supersededBy)))
		return
	}
	if c.current == req {
		c.current = nil
	}
	if err != nil {
		c.mu.Unlock()
		logger.LogFetchEnd(fc, 0, time.Since(start), err)
		req.finish(err)
		return
	}

	c.setRecordsLocked(records)
	snapshot := c.copyRecordsLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, directory.Event{Collection: c.name, Type: directory.EventReset, Records: snapshot})
	logger.LogFetchEnd(fc, len(snapshot), time.Since(start), nil)
	req.finish(nil)
}

func (c *Collection) fetchContext(req *Request) logger.FetchContext {
	return logger.FetchContext{
		Collection: c.name,
		Kind:       c.kind.Name(),
		URL:        req.URL,
		RequestID:  req.ID,
	}
}

// Add appends records not already present (by id) and emits one add event per
// appended record.
func (c *Collection) Add(records ...directory.Record) int {
	c.mu.Lock()
	added := make([]directory.Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		id := r.ID()
		if id != "" {
			if _, exists := c.index[id]; exists {
				continue
			}
			c.index[id] = len(c.records)
		}
		c.records = append(c.records, r)
		added = append(added, r)
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	if len(added) > 0 {
		logger.WithCollection(c.name, c.kind.Name()).Debug("records added",
			slog.Int("added", len(added)),
			slog.Int("skipped", len(records)-len(added)),
		)
	}
	for _, r := range added {
		notify(subs, directory.Event{Collection: c.name, Type: directory.EventAdd, Records: []directory.Record{r}})
	}
	return len(added)
}

// Reset replaces the record set and emits a reset event.
func (c *Collection) Reset(records []directory.Record) {
	c.mu.Lock()
	c.setRecordsLocked(records)
	snapshot := c.copyRecordsLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	logger.WithCollection(c.name, c.kind.Name()).Debug("records reset", slog.Int("record_count", len(snapshot)))
	notify(subs, directory.Event{Collection: c.name, Type: directory.EventReset, Records: snapshot})
}

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// At returns the record at position i, or nil when out of range.
func (c *Collection) At(i int) directory.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.records) {
		return nil
	}
	return c.records[i]
}

// Get returns the record with the given id.
func (c *Collection) Get(id string) (directory.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.records[i], true
}

// Records returns the records in order. The slice is a copy; the records
// themselves are shared.
func (c *Collection) Records() []directory.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyRecordsLocked()
}

// Subscribe registers fn for add and reset events. Callbacks run on the
// goroutine that changed the collection, outside the collection lock. The
// returned function removes the subscription.
func (c *Collection) Subscribe(fn func(directory.Event)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Collection) setRecordsLocked(records []directory.Record) {
	c.records = make([]directory.Record, 0, len(records))
	c.index = make(map[string]int, len(records))
	for _, r := range records {
		if id := r.ID(); id != "" {
			if _, exists := c.index[id]; !exists {
				c.index[id] = len(c.records)
			}
		}
		c.records = append(c.records, r)
	}
}

func (c *Collection) copyRecordsLocked() []directory.Record {
	out := make([]directory.Record, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Collection) subscribersLocked() []func(directory.Event) {
	ids := make([]int, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(directory.Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, c.subscribers[id])
	}
	return subs
}

func notify(subs []func(directory.Event), ev directory.Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
