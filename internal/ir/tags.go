package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tag is a single key/value pair on an entity.
type Tag struct {
	Key   string
	Value string
}

// TagSet is an ordered mapping from tag key to tag value with unique keys.
//
// A TagSet is owned by exactly one entity. Code that needs to change tags
// clones first; callers compare *TagSet pointers to detect "no change".
type TagSet struct {
	tags  []Tag
	index map[string]int
}

// NewTagSet builds a TagSet from tags in order. A repeated key keeps its
// first position and takes the last value.
func NewTagSet(tags ...Tag) *TagSet {
	ts := &TagSet{
		tags:  make([]Tag, 0, len(tags)),
		index: make(map[string]int, len(tags)),
	}
	for _, t := range tags {
		ts.Set(t.Key, t.Value)
	}
	return ts
}

// TagsOf is shorthand for NewTagSet from alternating key, value strings.
// Panics on an odd number of arguments.
func TagsOf(kv ...string) *TagSet {
	if len(kv)%2 != 0 {
		panic("TagsOf: odd number of arguments")
	}
	ts := NewTagSet()
	for i := 0; i < len(kv); i += 2 {
		ts.Set(kv[i], kv[i+1])
	}
	return ts
}

// Len returns the number of tags.
func (ts *TagSet) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.tags)
}

// Get returns the value for key.
func (ts *TagSet) Get(key string) (string, bool) {
	if ts == nil {
		return "", false
	}
	i, ok := ts.index[key]
	if !ok {
		return "", false
	}
	return ts.tags[i].Value, true
}

// Has reports whether key is present.
func (ts *TagSet) Has(key string) bool {
	_, ok := ts.Get(key)
	return ok
}

// Set assigns key=value. An existing key is overwritten in place; a new key
// is appended.
func (ts *TagSet) Set(key, value string) {
	if ts.index == nil {
		ts.index = make(map[string]int)
	}
	if i, ok := ts.index[key]; ok {
		ts.tags[i].Value = value
		return
	}
	ts.index[key] = len(ts.tags)
	ts.tags = append(ts.tags, Tag{Key: key, Value: value})
}

// Delete removes key, preserving the order of the remaining tags.
// Returns the removed value.
func (ts *TagSet) Delete(key string) (string, bool) {
	i, ok := ts.index[key]
	if !ok {
		return "", false
	}
	value := ts.tags[i].Value
	ts.tags = append(ts.tags[:i], ts.tags[i+1:]...)
	delete(ts.index, key)
	for j := i; j < len(ts.tags); j++ {
		ts.index[ts.tags[j].Key] = j
	}
	return value, true
}

// Clone returns a deep copy.
func (ts *TagSet) Clone() *TagSet {
	if ts == nil {
		return NewTagSet()
	}
	c := &TagSet{
		tags:  make([]Tag, len(ts.tags)),
		index: make(map[string]int, len(ts.tags)),
	}
	copy(c.tags, ts.tags)
	for k, v := range ts.index {
		c.index[k] = v
	}
	return c
}

// Tags returns a copy of the tags in order.
func (ts *TagSet) Tags() []Tag {
	if ts == nil {
		return nil
	}
	out := make([]Tag, len(ts.tags))
	copy(out, ts.tags)
	return out
}

// Keys returns the keys in order.
func (ts *TagSet) Keys() []string {
	if ts == nil {
		return nil
	}
	keys := make([]string, len(ts.tags))
	for i, t := range ts.tags {
		keys[i] = t.Key
	}
	return keys
}

// KeySet returns the keys as a set.
func (ts *TagSet) KeySet() map[string]struct{} {
	set := make(map[string]struct{}, ts.Len())
	for _, k := range ts.Keys() {
		set[k] = struct{}{}
	}
	return set
}

// Equal reports whether both sets hold the same tags in the same order.
func (ts *TagSet) Equal(other *TagSet) bool {
	if ts.Len() != other.Len() {
		return false
	}
	for i := range ts.Len() {
		if ts.tags[i] != other.tags[i] {
			return false
		}
	}
	return true
}

// Map returns the tags as an unordered map.
func (ts *TagSet) Map() map[string]string {
	m := make(map[string]string, ts.Len())
	for _, t := range ts.Tags() {
		m[t.Key] = t.Value
	}
	return m
}

// MarshalJSON encodes the set as an ordered array of [key, value] pairs.
func (ts *TagSet) MarshalJSON() ([]byte, error) {
	pairs := make([][2]string, ts.Len())
	for i, t := range ts.Tags() {
		pairs[i] = [2]string{t.Key, t.Value}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(pairs); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON decodes an ordered array of [key, value] pairs.
func (ts *TagSet) UnmarshalJSON(data []byte) error {
	var pairs [][]string
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	*ts = TagSet{
		tags:  make([]Tag, 0, len(pairs)),
		index: make(map[string]int, len(pairs)),
	}
	for i, p := range pairs {
		if len(p) != 2 {
			return fmt.Errorf("tags[%d]: expected [key, value] pair, got %d elements", i, len(p))
		}
		ts.Set(p[0], p[1])
	}
	return nil
}
