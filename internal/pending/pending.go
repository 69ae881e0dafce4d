package pending

import (
	"context"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	json "github.com/goccy/go-json"
	"github.com/jellydator/ttlcache/v3"
)

const (
	defaultTombstoneTTL      = 2 * time.Minute
	defaultTombstoneCapacity = 1024
)

// Entry is the single-assignment completion handle of one outstanding
// command. The first of Complete or Fail wins, later calls are ignored.
type Entry struct {
	id     int64
	method string
	done   chan struct{}
	once   sync.Once
	result json.RawMessage
	err    error
}

func newEntry(id int64, method string) *Entry {
	return &Entry{id: id, method: method, done: make(chan struct{})}
}

// ID is the command id the entry waits for.
func (e *Entry) ID() int64 { return e.id }

// Method is the command method, kept for logging late responses.
func (e *Entry) Method() string { return e.method }

// Done is closed once the entry has been resolved.
func (e *Entry) Done() <-chan struct{} { return e.done }

func (e *Entry) Complete(result json.RawMessage) bool {
	resolved := false
	e.once.Do(func() {
		e.result = result
		resolved = true
		close(e.done)
	})
	return resolved
}

func (e *Entry) Fail(err error) bool {
	resolved := false
	e.once.Do(func() {
		e.err = err
		resolved = true
		close(e.done)
	})
	return resolved
}

// Result returns the outcome of a resolved entry. It must only be called
// after Done is closed.
func (e *Entry) Result() (json.RawMessage, error) {
	return e.result, e.err
}

// Wait blocks until the entry resolves or ctx is done. A resolution that
// races with cancellation wins, so a caller never sees a timeout for a
// command whose response was already routed to it.
func (e *Entry) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-e.done:
		return e.result, e.err
	case <-ctx.Done():
		select {
		case <-e.done:
			return e.result, e.err
		default:
		}
		return nil, context.Cause(ctx)
	}
}

// Table maps command ids to their outstanding entries.
type Table struct {
	entries *haxmap.Map[int64, *Entry]
	late    *ttlcache.Cache[int64, string]
}

func NewTable() *Table {
	return &Table{
		entries: haxmap.New[int64, *Entry](),
		late: ttlcache.New[int64, string](
			ttlcache.WithTTL[int64, string](defaultTombstoneTTL),
			ttlcache.WithCapacity[int64, string](defaultTombstoneCapacity),
			ttlcache.WithDisableTouchOnHit[int64, string](),
		),
	}
}

// Register creates the entry for a freshly assigned id.
func (t *Table) Register(id int64, method string) *Entry {
	e := newEntry(id, method)
	t.entries.Set(id, e)
	return e
}

// Resolve completes the entry for id with a result and removes it. It
// reports false when no entry is outstanding for id.
func (t *Table) Resolve(id int64, result json.RawMessage) bool {
	e, ok := t.entries.GetAndDel(id)
	if !ok {
		return false
	}
	return e.Complete(result)
}

// Reject fails the entry for id and removes it. It reports false when no
// entry is outstanding for id.
func (t *Table) Reject(id int64, err error) bool {
	e, ok := t.entries.GetAndDel(id)
	if !ok {
		return false
	}
	return e.Fail(err)
}

// Abandon removes an entry whose caller stopped waiting and remembers the
// id for a while so a late response can be told apart from a stray one.
func (t *Table) Abandon(id int64, cause error) {
	e, ok := t.entries.GetAndDel(id)
	if !ok {
		return
	}
	e.Fail(cause)
	t.late.Set(id, e.method, ttlcache.DefaultTTL)
}

// Late reports whether id belongs to a command that was abandoned recently,
// and its method.
func (t *Table) Late(id int64) (string, bool) {
	item := t.late.Get(id)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// FailAll resolves every outstanding entry with err and empties the table.
// It returns the number of entries failed.
func (t *Table) FailAll(err error) int {
	var ids []int64
	t.entries.ForEach(func(id int64, _ *Entry) bool {
		ids = append(ids, id)
		return true
	})

	n := 0
	for _, id := range ids {
		if t.Reject(id, err) {
			n++
		}
	}
	return n
}

func (t *Table) Has(id int64) bool {
	_, ok := t.entries.Get(id)
	return ok
}

func (t *Table) Len() int {
	return int(t.entries.Len())
}
