// Package fingerprint computes stable content hashes for UI elements and
// screens. Hashes are deterministic across process restarts and drive all
// deduplication decisions, so the canonical form must never change silently.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/augmentalis/uiscout/api/schemas"
)

// Field markers keep swapped field values from colliding: ("a", "b") in
// (class, text) must never hash equal to ("b", "a").
const (
	markClass    = "class:"
	markResource = "id:"
	markText     = "text:"
	markDesc     = "desc:"
	markContext  = "ctx:"
	markKind     = "kind:"
	markRoot     = "root:"
	markChildren = "children:"
	markDepth    = "depth:"
	markNode     = "node:"
	markSub      = "sub:"
)

// sep separates tagged fields in the canonical concatenation. A unit
// separator cannot occur in accessibility text, so field boundaries are
// unambiguous.
const sep = "\x1f"

func digest(parts ...string) schemas.Hash {
	sum := sha256.Sum256([]byte(strings.Join(parts, sep)))
	return schemas.Hash(hex.EncodeToString(sum[:]))
}

// Element computes the context-aware hash of a single UI node. Empty optional
// fields are omitted from the canonical form rather than hashed as empty
// strings, so a node gains no new identity when a nil field becomes "".
// parentContext is the hash of the nearest container ancestor (dialog,
// fragment, bottom sheet); when empty the element is hashed flat.
func Element(className, resourceID, text, description string, parentContext schemas.Hash) schemas.Hash {
	parts := make([]string, 0, 5)
	parts = append(parts, markClass+className)
	if resourceID != "" {
		parts = append(parts, markResource+resourceID)
	}
	if text != "" {
		parts = append(parts, markText+text)
	}
	if description != "" {
		parts = append(parts, markDesc+description)
	}
	if parentContext != "" {
		parts = append(parts, markContext+string(parentContext))
	}
	return digest(parts...)
}

// Subtree folds a node's flat fingerprint with its children's subtree
// hashes, in order, into one signature of the whole hierarchy. Two trees
// whose roots match but whose descendants differ anywhere fold to different
// signatures.
func Subtree(self schemas.Hash, children []schemas.Hash) schemas.Hash {
	parts := make([]string, 0, len(children)+1)
	parts = append(parts, markNode+string(self))
	for _, c := range children {
		parts = append(parts, markSub+string(c))
	}
	return digest(parts...)
}

// Screen fingerprints an entire surface from its window kind, the root
// node's subtree signature and the root child count. Used for screen-level
// dedup and the passive path's short-circuit.
func Screen(kind schemas.WindowKind, rootHash schemas.Hash, childCount int) schemas.Hash {
	return digest(
		markKind+string(kind),
		markRoot+string(rootHash),
		markChildren+strconv.Itoa(childCount),
	)
}

// Structure computes the structure-only key for hybrid (repeated list row)
// templates: class, depth and child count, deliberately excluding text so
// that every row of a list collapses to one template record.
func Structure(className string, depth, childCount int) schemas.Hash {
	return digest(
		markClass+className,
		markDepth+strconv.Itoa(depth),
		markChildren+strconv.Itoa(childCount),
	)
}
