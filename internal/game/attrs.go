package game

import "encoding/json"

// Attr is a single game attribute key/value pair.
type Attr struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Attrs is an ordered set of attributes. Order is preserved so that
// snapshots and notifications always list attributes the way the host
// supplied them. Keys are unique; Set replaces in place.
type Attrs []Attr

// Get returns the value for key and whether it was present.
func (a Attrs) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key, or appends it if not present.
func (a Attrs) Set(key, value string) Attrs {
	for i, attr := range a {
		if attr.Key == key {
			a[i].Value = value
			return a
		}
	}
	return append(a, Attr{Key: key, Value: value})
}

// Merge applies every pair in other on top of a, preserving a's ordering
// for keys that already exist.
func (a Attrs) Merge(other Attrs) Attrs {
	out := a
	for _, attr := range other {
		out = out.Set(attr.Key, attr.Value)
	}
	return out
}

// Matches reports whether a satisfies the filter: every key present in
// the filter must match exactly. Keys absent from the filter are
// wildcards.
func (a Attrs) Matches(filter Attrs) bool {
	for _, want := range filter {
		got, ok := a.Get(want.Key)
		if !ok || got != want.Value {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no backing storage with a.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	copy(out, a)
	return out
}

// String renders the attributes as a compact JSON array for logging.
func (a Attrs) String() string {
	b, err := json.Marshal(a)
	if err != nil {
		return "[]"
	}
	return string(b)
}
