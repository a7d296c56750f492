// Package lock implements the LockBroker (spec §4.7): per-record
// read/write tokens, shareable multi-writer tokens, and predicate
// RangeTokens used to guard point writes against overlapping range reads
// (and vice versa).
package lock

import "github.com/cinchapi/concourse-kernel/internal/byteable"

// Operator is a RangeToken read predicate's comparison operator (spec §4.7).
type Operator int

const (
	Equals Operator = iota
	NotEquals
	LessThan
	LessThanOrEquals
	GreaterThan
	GreaterThanOrEquals
	Between
)

// covers reports whether w satisfies the predicate (op, v1, v2), per spec
// §4.7's range-blocking truth table. Between is lower-inclusive,
// upper-exclusive: v1 <= w < v2.
func covers(op Operator, v1, v2, w byteable.Value) bool {
	switch op {
	case Equals:
		return w.Compare(v1) == 0
	case NotEquals:
		return w.Compare(v1) != 0
	case LessThan:
		return w.Compare(v1) < 0
	case LessThanOrEquals:
		return w.Compare(v1) <= 0
	case GreaterThan:
		return w.Compare(v1) > 0
	case GreaterThanOrEquals:
		return w.Compare(v1) >= 0
	case Between:
		return w.Compare(v1) >= 0 && w.Compare(v2) < 0
	default:
		return false
	}
}

// RecordToken identifies a shared read/write lock on one (key, record)
// field (spec §4.7: "Shared read/write token: keys (text key, Identifier
// record)").
type RecordToken struct {
	Key    byteable.Text
	Record byteable.Identifier
}

func (t RecordToken) cacheKey() string {
	composite, _ := byteable.Create(t.Key, t.Record)
	return string(composite.Bytes())
}

// ShareableToken identifies a multi-writer lock: tryWriteLock never fails
// due to contention among shareable writers, but a reader on the same
// token blocks writers and vice versa (spec §4.7).
type ShareableToken struct {
	Key    byteable.Text
	Record byteable.Identifier
}

func (t ShareableToken) cacheKey() string {
	composite, _ := byteable.Create(t.Key, t.Record)
	return "shareable:" + string(composite.Bytes())
}

// RangeToken is a predicate-shaped lock over every value of a key: a point
// write (ForWriting) or a read over an operator-defined region
// (ForReading) (spec §4.7).
type RangeToken struct {
	Key      byteable.Text
	Op       Operator
	V1, V2   byteable.Value
	isWrite  bool
}

// ForWriting creates a point-write RangeToken.
func ForWriting(key byteable.Text, value byteable.Value) RangeToken {
	return RangeToken{Key: key, Op: Equals, V1: value, isWrite: true}
}

// ForReading creates a predicate-read RangeToken. v2 is only meaningful for
// Between.
func ForReading(key byteable.Text, op Operator, v1, v2 byteable.Value) RangeToken {
	return RangeToken{Key: key, Op: op, V1: v1, V2: v2}
}

func (t RangeToken) cacheKey() string { return string(t.Key) }
