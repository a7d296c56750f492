package database

import (
	"fmt"
	"sort"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/lock"
	"github.com/cinchapi/concourse-kernel/internal/revision"
	"github.com/cinchapi/concourse-kernel/internal/segment"
)

// change is one (version, action, value) point in a key/record's history,
// gathered from the pending write queue and every segment in temporal order.
type change struct {
	version uint64
	action  revision.Action
	value   byteable.Value
}

// history returns every recorded change to (key, record), oldest first,
// merging the not-yet-drained write queue (read-your-writes) with the
// mutable current segment and every synced segment, in the segment
// ordering spec §4.5/§5 defines as the merge order.
func (d *Database) history(key byteable.Text, record byteable.Identifier) ([]change, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []change
	for _, w := range d.queue.Snapshot() {
		if w.Locator == record && string(w.Key) == string(key) {
			out = append(out, change{version: w.Version, action: w.Action, value: w.Val})
		}
	}

	locator, err := byteable.Create(record)
	if err != nil {
		return nil, fmt.Errorf("database: build record locator: %w", err)
	}
	for _, s := range d.allSegmentsLocked() {
		if err := s.Table().Seek(locator, func(r revision.TableRevision) {
			if string(r.Field) == string(key) {
				out = append(out, change{version: r.Version(), action: r.Action(), value: r.Val})
			}
		}); err != nil {
			return nil, fmt.Errorf("database: seek table chunk: %w", err)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// allSegmentsLocked returns every segment in oldest-first merge order: the
// synced list, then the current mutable segment. Callers must hold d.mu.
func (d *Database) allSegmentsLocked() []*segment.Segment {
	segs := make([]*segment.Segment, 0, len(d.synced)+1)
	segs = append(segs, d.synced...)
	segs = append(segs, d.current)
	return segs
}

// values computes the effective value set for (key, record) as of
// atVersion (0 means "latest"): replay every change in order, toggling
// value membership on Add/Remove (spec §4.9's "effective-state rule").
func (d *Database) values(key byteable.Text, record byteable.Identifier, atVersion uint64) ([]byteable.Value, error) {
	changes, err := d.history(key, record)
	if err != nil {
		return nil, err
	}
	present := make(map[string]byteable.Value)
	for _, c := range changes {
		if atVersion != 0 && c.version > atVersion {
			break
		}
		k := string(byteable.Bytes(c.value))
		switch c.action {
		case revision.Add:
			present[k] = c.value
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

// Select returns every key's present value set for record.
func (d *Database) Select(record byteable.Identifier) (map[string][]byteable.Value, error) {
	keys, err := d.keysForRecord(record)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byteable.Value, len(keys))
	for _, key := range keys {
		vs, err := d.values(key, record, 0)
		if err != nil {
			return nil, err
		}
		if len(vs) > 0 {
			result[string(key)] = vs
		}
	}
	return result, nil
}

// SelectKey returns key's currently present values on record.
func (d *Database) SelectKey(key byteable.Text, record byteable.Identifier) ([]byteable.Value, error) {
	return d.values(key, record, 0)
}

// SelectKeyAt returns key's present values on record as of atVersion.
func (d *Database) SelectKeyAt(key byteable.Text, record byteable.Identifier, atVersion uint64) ([]byteable.Value, error) {
	return d.values(key, record, atVersion)
}

// keysForRecord collects the distinct field keys ever written to record,
// across the pending queue and every segment.
func (d *Database) keysForRecord(record byteable.Identifier) ([]byteable.Text, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]byteable.Text)
	for _, w := range d.queue.Snapshot() {
		if w.Locator == record {
			seen[string(w.Key)] = w.Key
		}
	}
	locator, err := byteable.Create(record)
	if err != nil {
		return nil, fmt.Errorf("database: build record locator: %w", err)
	}
	for _, s := range d.allSegmentsLocked() {
		if err := s.Table().Seek(locator, func(r revision.TableRevision) {
			seen[string(r.Field)] = r.Field
		}); err != nil {
			return nil, fmt.Errorf("database: seek table chunk: %w", err)
		}
	}
	out := make([]byteable.Text, 0, len(seen))
	for _, k := range seen {
		out = append(out, k)
	}
	return out, nil
}

// Find returns every record whose key currently satisfies the predicate
// (op, v1, v2) (spec §4.9; CCL-string predicates are an explicit
// Non-goal and out of scope here). This is a full scan over every record
// this process has ever touched on key — no secondary-index planning is
// performed, matching the façade's "interface only" scope.
func (d *Database) Find(key byteable.Text, op lock.Operator, v1, v2 byteable.Value) ([]byteable.Identifier, error) {
	d.mu.RLock()
	records := make(map[byteable.Identifier]struct{})
	for _, w := range d.queue.Snapshot() {
		if string(w.Key) == string(key) {
			records[w.Locator] = struct{}{}
		}
	}
	segs := d.allSegmentsLocked()
	d.mu.RUnlock()

	fieldLocator, err := byteable.Create(key)
	if err != nil {
		return nil, fmt.Errorf("database: build field locator: %w", err)
	}
	for _, s := range segs {
		if err := s.Index().Seek(fieldLocator, func(r revision.IndexRevision) {
			records[r.Record] = struct{}{}
		}); err != nil {
			return nil, fmt.Errorf("database: seek index chunk: %w", err)
		}
	}

	var out []byteable.Identifier
	for record := range records {
		vs, err := d.values(key, record, 0)
		if err != nil {
			return nil, err
		}
		for _, v := range vs {
			if covers(op, v1, v2, v) {
				out = append(out, record)
				break
			}
		}
	}
	return out, nil
}

// Chronologize returns the sequence of (version, value-set) change points
// for (key, record) within [start, end) (spec §4.9). Empty intermediate
// sets are filtered.
func (d *Database) Chronologize(key byteable.Text, record byteable.Identifier, start, end uint64) ([]ChronologizeEntry, error) {
	changes, err := d.history(key, record)
	if err != nil {
		return nil, err
	}
	present := make(map[string]byteable.Value)
	var out []ChronologizeEntry
	for _, c := range changes {
		if end != 0 && c.version >= end {
			break
		}
		switch c.action {
		case revision.Add:
			present[string(byteable.Bytes(c.value))] = c.value
		case revision.Remove:
			delete(present, string(byteable.Bytes(c.value)))
		}
		if c.version < start {
			continue
		}
		if len(present) == 0 {
			continue
		}
		values := make([]byteable.Value, 0, len(present))
		for _, v := range present {
			values = append(values, v)
		}
		out = append(out, ChronologizeEntry{Version: c.version, Values: values})
	}
	return out, nil
}

// Audit returns a human-readable description of every change to (key,
// record) within [start, end) (spec §4.9).
func (d *Database) Audit(key byteable.Text, record byteable.Identifier, start, end uint64) ([]AuditEntry, error) {
	changes, err := d.history(key, record)
	if err != nil {
		return nil, err
	}
	var out []AuditEntry
	for _, c := range changes {
		if c.version < start || (end != 0 && c.version >= end) {
			continue
		}
		verb := "added"
		if c.action == revision.Remove {
			verb = "removed"
		}
		out = append(out, AuditEntry{
			Version:     c.version,
			Description: fmt.Sprintf("%s %s = %s", verb, key, c.value.String()),
		})
	}
	return out, nil
}

// Trace returns every incoming Link, keyed by the field name on the
// linking record (spec §4.9): for each key this process has indexed a Link
// pointing at record, the set of records holding that link. Unlike
// keysForRecord/history, there is no fixed locator to Seek on here — every
// record could in principle hold a link to this one — so this walks
// SeekAll's unconstrained in-memory scan rather than a composite prefix
// match.
func (d *Database) Trace(record byteable.Identifier) (map[string][]byteable.Identifier, error) {
	d.mu.RLock()
	segs := d.allSegmentsLocked()
	queued := d.queue.Snapshot()
	d.mu.RUnlock()

	result := make(map[string]map[byteable.Identifier]struct{})
	add := func(key byteable.Text, linker byteable.Identifier) {
		k := string(key)
		if result[k] == nil {
			result[k] = make(map[byteable.Identifier]struct{})
		}
		result[k][linker] = struct{}{}
	}

	for _, w := range queued {
		if w.Val.Type() == byteable.TypeLink && w.Val.Link() == record && w.Action == revision.Add {
			add(w.Key, w.Locator)
		}
	}
	for _, s := range segs {
		if err := s.Table().SeekAll(func(r revision.TableRevision) {
			if r.Val.Type() != byteable.TypeLink || r.Val.Link() != record || r.Action() != revision.Add {
				return
			}
			add(r.Field, r.Record)
		}); err != nil {
			return nil, fmt.Errorf("database: scan table chunk: %w", err)
		}
	}

	out := make(map[string][]byteable.Identifier, len(result))
	for key, linkers := range result {
		for linker := range linkers {
			out[key] = append(out[key], linker)
		}
	}
	return out, nil
}

// Navigate follows Link values across records along path, returning the
// records reached at the end of the path (spec §4.9).
func (d *Database) Navigate(record byteable.Identifier, path []byteable.Text) ([]byteable.Identifier, error) {
	current := []byteable.Identifier{record}
	for _, key := range path {
		var next []byteable.Identifier
		for _, r := range current {
			vs, err := d.values(key, r, 0)
			if err != nil {
				return nil, err
			}
			for _, v := range vs {
				if v.Type() == byteable.TypeLink {
					next = append(next, v.Link())
				}
			}
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current, nil
}

// covers mirrors lock.Operator semantics for Find's value-set matching
// (spec §4.7's truth table doubles as the predicate semantics for find).
func covers(op lock.Operator, v1, v2, w byteable.Value) bool {
	switch op {
	case lock.Equals:
		return w.Compare(v1) == 0
	case lock.NotEquals:
		return w.Compare(v1) != 0
	case lock.LessThan:
		return w.Compare(v1) < 0
	case lock.LessThanOrEquals:
		return w.Compare(v1) <= 0
	case lock.GreaterThan:
		return w.Compare(v1) > 0
	case lock.GreaterThanOrEquals:
		return w.Compare(v1) >= 0
	case lock.Between:
		return w.Compare(v1) >= 0 && w.Compare(v2) < 0
	default:
		return false
	}
}
