package database

import (
	"sync"

	"github.com/cinchapi/concourse-kernel/internal/buffer"
	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

// Transaction is the scoped mutation batch opened by Stage (spec §4.9:
// "stage(), commit(), abort() — scoped mutation batches"). Nested Stage
// calls from the same requester stack conceptually but do not create true
// nested isolation: the source integration tests this is grounded on
// assert single-commit semantics rather than real nested transactions, so
// repeated Stage calls share one ref-counted Transaction and only the
// outermost Commit or Abort takes effect.
type Transaction struct {
	mu        sync.Mutex
	db        *Database
	requester any
	refs      int
	staged    []buffer.Write
	done      bool
}

func newTransaction(db *Database, requester any) *Transaction {
	return &Transaction{db: db, requester: requester, refs: 1}
}

// Stage opens, or re-enters, a Transaction for requester. The first call
// creates a fresh Transaction with refs=1; every call before a matching
// Commit/Abort pair increments the same Transaction's ref count and
// returns it unchanged, so a caller that stages twice must commit or abort
// twice before anything reaches the database.
func (d *Database) Stage(requester any) *Transaction {
	d.txMu.Lock()
	defer d.txMu.Unlock()
	if t, ok := d.transactions[requester]; ok {
		t.mu.Lock()
		t.refs++
		t.mu.Unlock()
		return t
	}
	t := newTransaction(d, requester)
	d.transactions[requester] = t
	return t
}

// Add stages an ADD of (key, value) on record. The staged write is visible
// to this Transaction's own subsequent reads (Add/Remove/Set re-derive
// present values via valuesLocked) but invisible to the rest of the
// database until Commit.
func (t *Transaction) Add(key byteable.Text, value byteable.Value, record byteable.Identifier) (bool, error) {
	if value.Type() == byteable.TypeLink && value.Link() == record {
		return false, ErrSelfLink
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	present, err := t.valuesLocked(key, record)
	if err != nil {
		return false, err
	}
	for _, v := range present {
		if v.Compare(value) == 0 {
			return false, nil
		}
	}
	t.staged = append(t.staged, buffer.New(revision.Add, record, key, value, 0))
	return true, nil
}

// Remove stages a REMOVE of (key, value) on record, if present within this
// Transaction's view (committed state plus everything staged so far).
func (t *Transaction) Remove(key byteable.Text, value byteable.Value, record byteable.Identifier) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	present, err := t.valuesLocked(key, record)
	if err != nil {
		return false, err
	}
	found := false
	for _, v := range present {
		if v.Compare(value) == 0 {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	t.staged = append(t.staged, buffer.New(revision.Remove, record, key, value, 0))
	return true, nil
}

// Set stages a remove-then-add that replaces key's entire value set
// (committed plus staged) on record with {value}.
func (t *Transaction) Set(key byteable.Text, value byteable.Value, record byteable.Identifier) error {
	if value.Type() == byteable.TypeLink && value.Link() == record {
		return ErrSelfLink
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	present, err := t.valuesLocked(key, record)
	if err != nil {
		return err
	}
	for _, v := range present {
		t.staged = append(t.staged, buffer.New(revision.Remove, record, key, v, 0))
	}
	t.staged = append(t.staged, buffer.New(revision.Add, record, key, value, 0))
	return nil
}

// valuesLocked replays the database's committed effective state for (key,
// record) plus every write staged so far in this Transaction, in staging
// order. Callers must hold t.mu.
func (t *Transaction) valuesLocked(key byteable.Text, record byteable.Identifier) ([]byteable.Value, error) {
	base, err := t.db.values(key, record, 0)
	if err != nil {
		return nil, err
	}
	present := make(map[string]byteable.Value, len(base))
	for _, v := range base {
		present[string(byteable.Bytes(v))] = v
	}
	for _, w := range t.staged {
		if w.Locator != record || string(w.Key) != string(key) {
			continue
		}
		k := string(byteable.Bytes(w.Val))
		switch w.Action {
		case revision.Add:
			present[k] = w.Val
		case revision.Remove:
			delete(present, k)
		}
	}
	out := make([]byteable.Value, 0, len(present))
	for _, v := range present {
		out = append(out, v)
	}
	return out, nil
}

// Commit decrements the Transaction's ref count. Once it reaches zero (the
// outermost Stage call's matching Commit), every staged write is applied
// to the database under a write lock on its (key, record), in staging
// order, and the Transaction is discarded. A Commit belonging to a nested
// Stage call is a no-op beyond the ref-count decrement.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	t.refs--
	if t.refs > 0 || t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	staged := t.staged
	t.staged = nil
	t.mu.Unlock()

	t.db.txMu.Lock()
	delete(t.db.transactions, t.requester)
	t.db.txMu.Unlock()

	for _, w := range staged {
		permit := t.db.broker.WriteLock(recordToken(w.Key, w.Locator))
		err := t.db.write(w.Action, w.Locator, w.Key, w.Val)
		permit.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// Abort decrements the Transaction's ref count. Once it reaches zero, the
// staged writes are discarded without ever reaching the database. An
// Abort belonging to a nested Stage call is a no-op beyond the ref-count
// decrement.
func (t *Transaction) Abort() {
	t.mu.Lock()
	t.refs--
	if t.refs > 0 || t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.staged = nil
	t.mu.Unlock()

	t.db.txMu.Lock()
	delete(t.db.transactions, t.requester)
	t.db.txMu.Unlock()
}
