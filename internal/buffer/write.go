// Package buffer implements the durable append-only landing zone for
// incoming writes before they transfer into a Segment (spec §4.6): a
// ToggleQueue that cancels an ADD against a same-version REMOVE (and vice
// versa) rather than queuing both.
package buffer

import (
	"encoding/binary"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

// Write is one pending mutation: an ADD or REMOVE of (key, value) on a
// record at version, not yet transferred into a segment (spec §4.6).
type Write struct {
	Action  revision.Action
	Locator byteable.Identifier
	Key     byteable.Text
	Val     byteable.Value
	Version uint64
}

// New constructs a Write.
func New(action revision.Action, locator byteable.Identifier, key byteable.Text, val byteable.Value, version uint64) Write {
	return Write{Action: action, Locator: locator, Key: key, Val: val, Version: version}
}

// Inverse flips Action, leaving every other field unchanged.
func (w Write) Inverse() Write {
	inv := w
	if w.Action == revision.Add {
		inv.Action = revision.Remove
	} else {
		inv.Action = revision.Add
	}
	return inv
}

// Rewrite returns an equivalent Write with Version replaced.
func (w Write) Rewrite(version uint64) Write {
	out := w
	out.Version = version
	return out
}

// toggleKey identifies writes that may cancel one another: same locator,
// key, value, and version, regardless of action.
func (w Write) toggleKey() string {
	buf := make([]byte, 0, w.Locator.Size()+w.Key.Size()+w.Val.Size()+8)
	buf = append(buf, byteable.Bytes(w.Locator)...)
	buf = append(buf, byteable.Bytes(w.Key)...)
	buf = append(buf, byteable.Bytes(w.Val)...)
	var versionBuf [8]byte
	binary.BigEndian.PutUint64(versionBuf[:], w.Version)
	buf = append(buf, versionBuf[:]...)
	return string(buf)
}

// size is the on-disk encoded size of w, excluding the frame's own 4-byte
// length prefix and 1-byte tombstone flag (spec §6 "Buffer log encoding").
func (w Write) size() int {
	return 1 + w.Locator.Size() + w.Key.Size() + w.Val.Size() + 8
}

func (w Write) copyTo(sink []byte) int {
	off := 0
	sink[off] = byte(w.Action)
	off++
	off += w.Locator.CopyTo(sink[off:])
	off += w.Key.CopyTo(sink[off:])
	off += w.Val.CopyTo(sink[off:])
	binary.BigEndian.PutUint64(sink[off:], w.Version)
	off += 8
	return off
}

func decodeWrite(buf []byte) (Write, int, error) {
	if len(buf) < 1 {
		return Write{}, 0, byteable.ErrShortBuffer
	}
	actionByte := buf[0]
	if actionByte != byte(revision.Add) && actionByte != byte(revision.Remove) {
		return Write{}, 0, revision.ErrUnknownAction
	}
	off := 1
	locator, err := byteable.DecodeIdentifier(buf[off:])
	if err != nil {
		return Write{}, 0, err
	}
	off += byteable.IdentifierSize
	key, n, err := byteable.DecodeText(buf[off:])
	if err != nil {
		return Write{}, 0, err
	}
	off += n
	val, n, err := byteable.DecodeValue(buf[off:])
	if err != nil {
		return Write{}, 0, err
	}
	off += n
	if len(buf)-off < 8 {
		return Write{}, 0, byteable.ErrShortBuffer
	}
	version := binary.BigEndian.Uint64(buf[off:])
	off += 8
	return Write{Action: revision.Action(actionByte), Locator: locator, Key: key, Val: val, Version: version}, off, nil
}
