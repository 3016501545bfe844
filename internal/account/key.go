// Package account holds the data model and the local replica store the
// reconciliation engine operates on: AccountKey identity, the master-side
// Account snapshot, the slave's ShadowAccount replica, and the
// ShadowAccountStore that maps keys to replicas.
package account

import (
	"encoding/json"
	"strings"
)

// Key identifies an account by its ordered path of name segments, e.g.
// campaign:strategy. Equality and hashing (it is used directly as a map
// key throughout the store) are by the full colon-joined path.
type Key struct {
	path string
}

// NewKey builds a Key from its ordered segments.
func NewKey(segments ...string) Key {
	return Key{path: strings.Join(segments, ":")}
}

// ParseKey reinterprets an already-joined colon-separated path as a Key.
func ParseKey(path string) Key {
	return Key{path: path}
}

// Segments returns the key's ordered name segments.
func (k Key) Segments() []string {
	if k.path == "" {
		return nil
	}
	return strings.Split(k.path, ":")
}

// String returns the canonical colon-joined path.
func (k Key) String() string {
	return k.path
}

// IsZero reports whether the key has no segments.
func (k Key) IsZero() bool {
	return k.path == ""
}

// ShadowName derives the mangled name this key is sent to the master
// under: the slash-joined account path, suffixed with ":<accountSuffix>"
// so that different slaves sharing a master namespace never collide.
func (k Key) ShadowName(accountSuffix string) string {
	return strings.Join(k.Segments(), "/") + ":" + accountSuffix
}

// MarshalJSON renders the key as its canonical colon-joined path
// string, since the unexported path field would otherwise serialize
// as an empty object.
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.path)
}

// UnmarshalJSON parses a colon-joined path string back into a Key.
func (k *Key) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err != nil {
		return err
	}
	k.path = path
	return nil
}
