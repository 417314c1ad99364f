package osmio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/opinionated/internal/engine"
	"github.com/roach88/opinionated/internal/ir"
)

// MaxLineSize bounds a single encoded entity.
const MaxLineSize = 16 * 1024 * 1024

// Reader decodes an entity stream. It implements engine.Source.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	last    engine.EntityKey
	strict  bool
}

// NewReader creates a reader over r. Blank lines are skipped.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Reader{scanner: s, strict: true}
}

// Unordered disables the type/id ordering check.
func (r *Reader) Unordered() *Reader {
	r.strict = false
	return r
}

// Next returns the next record, or io.EOF at the end of the stream.
// Record.Raw holds the line as read, without the trailing newline.
func (r *Reader) Next() (engine.Record, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		raw := make([]byte, len(line))
		copy(raw, line)

		e, err := Decode(raw)
		if err != nil {
			return engine.Record{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		key := engine.EntityKey{Type: e.Type, ID: e.ID}
		if r.strict && r.last.Type != 0 && !ordered(r.last, key) {
			return engine.Record{}, fmt.Errorf("line %d: %s after %s: entities must be grouped by type and ordered by id", r.line, key, r.last)
		}
		r.last = key
		return engine.Record{Entity: e, Raw: raw}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return engine.Record{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return engine.Record{}, io.EOF
}

func ordered(prev, next engine.EntityKey) bool {
	if prev.Type != next.Type {
		return prev.Type < next.Type
	}
	return prev.ID < next.ID
}

// wireEntity is the line encoding. Type and id are required; a missing tags
// field decodes as an untagged entity.
type wireEntity struct {
	Type ir.EntityType `json:"type"`
	ID   *int64        `json:"id"`
	Tags *ir.TagSet    `json:"tags"`
}

// Decode parses one encoded entity.
func Decode(data []byte) (ir.Entity, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wireEntity
	if err := dec.Decode(&w); err != nil {
		return ir.Entity{}, fmt.Errorf("decode entity: %w", err)
	}
	if w.Type == 0 {
		return ir.Entity{}, errors.New("decode entity: missing type")
	}
	if w.ID == nil {
		return ir.Entity{}, errors.New("decode entity: missing id")
	}
	if w.Tags == nil {
		w.Tags = ir.NewTagSet()
	}
	return ir.Entity{Type: w.Type, ID: *w.ID, Tags: w.Tags}, nil
}

// Encode renders an entity as one line, without the trailing newline.
func Encode(e ir.Entity) ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = ir.NewTagSet()
	}
	id := e.ID
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wireEntity{Type: e.Type, ID: &id, Tags: tags}); err != nil {
		return nil, fmt.Errorf("encode %s/%d: %w", e.Type, e.ID, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ReadAll decodes every entity of a stream. Intended for small inputs and
// tests.
func ReadAll(r io.Reader) ([]ir.Entity, error) {
	rd := NewReader(r).Unordered()
	var out []ir.Entity
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Entity)
	}
}
