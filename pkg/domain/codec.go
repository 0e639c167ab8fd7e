package domain

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// entityRecord is the transport form of an entity. Values follow the
// declaration order of the persisted properties, so reordering, adding or
// removing properties changes the format.
type entityRecord struct {
	Domain   string        `json:"domain"`
	Entity   string        `json:"entity"`
	Modified bool          `json:"modified"`
	Values   []valueRecord `json:"values"`
}

// valueRecord holds one property value. An absent Value means the entity
// has no value for the property; JSON null is a present nil value.
type valueRecord struct {
	ID       string          `json:"id"`
	Value    json.RawMessage `json:"value,omitempty"`
	Changed  bool            `json:"changed,omitempty"`
	Original json.RawMessage `json:"original,omitempty"`
}

type keyRecord struct {
	Domain string        `json:"domain"`
	Entity string        `json:"entity"`
	Values []valueRecord `json:"values"`
}

// serialized reports whether p is part of the transport form.
func serialized(p Property) bool {
	return p.Kind() != KindDerived && p.Kind() != KindDenormalizedView
}

// Encode writes e as JSON: domain id, entity id and modified flag, then the
// value of each persisted property in declaration order. When e is
// modified each value also carries a changed flag and, if changed, the
// original value. A referenced entity that is already being encoded
// further up, as in a self referencing foreign key, is left out; its key
// remains in the reference columns.
func Encode(e *Entity) ([]byte, error) {
	rec, err := encodeRecord(e, make(map[*Entity]bool))
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

func encodeRecord(e *Entity, path map[*Entity]bool) (*entityRecord, error) {
	path[e] = true
	defer delete(path, e)
	rec := &entityRecord{
		Domain:   e.def.DomainID(),
		Entity:   e.def.entityID,
		Modified: e.IsModified(),
	}
	for _, p := range e.def.properties {
		if !serialized(p) {
			continue
		}
		vr := valueRecord{ID: p.ID()}
		if v, ok := e.values[p.ID()]; ok && !onPath(v, path) {
			raw, err := encodeValue(v, path)
			if err != nil {
				return nil, fmt.Errorf("encoding %s.%s: %w", e.def.entityID, p.ID(), err)
			}
			vr.Value = raw
		}
		if rec.Modified {
			if orig, ok := e.originals[p.ID()]; ok && !onPath(orig, path) {
				raw, err := encodeValue(orig, path)
				if err != nil {
					return nil, fmt.Errorf("encoding original %s.%s: %w", e.def.entityID, p.ID(), err)
				}
				vr.Changed = true
				vr.Original = raw
			}
		}
		rec.Values = append(rec.Values, vr)
	}
	return rec, nil
}

func onPath(v any, path map[*Entity]bool) bool {
	ref, ok := v.(*Entity)
	return ok && ref != nil && path[ref]
}

func encodeValue(v any, path map[*Entity]bool) (json.RawMessage, error) {
	switch x := v.(type) {
	case *Entity:
		if x == nil {
			return json.RawMessage("null"), nil
		}
		rec, err := encodeRecord(x, path)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rec)
	case rune:
		return json.Marshal(string(x))
	case time.Time:
		return json.Marshal(x.Format(time.RFC3339Nano))
	}
	return json.Marshal(v)
}

// Decode reads an entity written by Encode. The definition is resolved
// through reg; an unknown domain or entity fails with ErrUndefinedEntity.
func Decode(reg *Registry, data []byte) (*Entity, error) {
	var rec entityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding entity: %w", err)
	}
	return decodeRecord(reg, &rec)
}

func decodeRecord(reg *Registry, rec *entityRecord) (*Entity, error) {
	def, err := reg.Definition(rec.Domain, rec.Entity)
	if err != nil {
		return nil, err
	}
	e := newEntity(def)
	i := 0
	for _, p := range def.properties {
		if !serialized(p) {
			continue
		}
		if i >= len(rec.Values) {
			return nil, schemaErrorf(def.entityID, p.ID(), "missing from encoded entity")
		}
		vr := rec.Values[i]
		i++
		if vr.ID != p.ID() {
			return nil, schemaErrorf(def.entityID, p.ID(), "encoded value %d is %s", i-1, vr.ID)
		}
		if len(vr.Value) > 0 {
			v, err := decodeValue(reg, p, vr.Value)
			if err != nil {
				return nil, err
			}
			e.values[p.ID()] = v
		}
		if rec.Modified && vr.Changed {
			v, err := decodeValue(reg, p, vr.Original)
			if err != nil {
				return nil, err
			}
			e.originals[p.ID()] = v
		}
	}
	if i != len(rec.Values) {
		return nil, schemaErrorf(def.entityID, "", "%d encoded values for %d properties", len(rec.Values), i)
	}
	return e, nil
}

func decodeValue(reg *Registry, p Property, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		v   any
		err error
	)
	switch p.Type() {
	case TypeInteger, TypeLong:
		var n json.Number
		if err = json.Unmarshal(raw, &n); err == nil {
			var i int64
			if i, err = n.Int64(); err == nil {
				v = i
			}
		}
	case TypeDouble:
		var f float64
		err = json.Unmarshal(raw, &f)
		v = f
	case TypeString:
		var s string
		err = json.Unmarshal(raw, &s)
		v = s
	case TypeCharacter:
		var s string
		if err = json.Unmarshal(raw, &s); err == nil {
			r, size := utf8.DecodeRuneInString(s)
			if size == 0 || size != len(s) {
				err = fmt.Errorf("%q is not a single character", s)
			}
			v = r
		}
	case TypeBoolean:
		var b bool
		err = json.Unmarshal(raw, &b)
		v = b
	case TypeDate, TypeTimestamp, TypeTime:
		var s string
		if err = json.Unmarshal(raw, &s); err == nil {
			v, err = time.Parse(time.RFC3339Nano, s)
		}
	case TypeBlob:
		var b []byte
		err = json.Unmarshal(raw, &b)
		v = b
	case TypeEntity:
		var rec entityRecord
		if err = json.Unmarshal(raw, &rec); err != nil {
			break
		}
		ref, derr := decodeRecord(reg, &rec)
		if derr != nil {
			return nil, derr
		}
		if fk, ok := p.(*ForeignKeyProperty); ok && ref.EntityID() != fk.referencedEntityID {
			return nil, valueError(ErrTypeMismatch, p, ref.EntityID(), "expected %s entity", fk.referencedEntityID)
		}
		return ref, nil
	default:
		err = json.Unmarshal(raw, &v)
	}
	if err != nil {
		return nil, valueError(ErrTypeMismatch, p, string(raw), "decoding %s: %v", p.Type(), err)
	}
	n, ok := normalize(p.Type(), v)
	if !ok {
		return nil, valueError(ErrTypeMismatch, p, v, "decoded value is not %s", p.Type())
	}
	return n, nil
}

// EncodeKey writes k as JSON.
func EncodeKey(k *Key) ([]byte, error) {
	rec := keyRecord{Domain: k.def.DomainID(), Entity: k.def.entityID}
	for _, c := range k.columns {
		raw, err := encodeValue(k.values[c.ID()], make(map[*Entity]bool))
		if err != nil {
			return nil, fmt.Errorf("encoding key %s.%s: %w", k.def.entityID, c.ID(), err)
		}
		rec.Values = append(rec.Values, valueRecord{ID: c.ID(), Value: raw})
	}
	return json.Marshal(rec)
}

// DecodeKey reads a primary key written by EncodeKey.
func DecodeKey(reg *Registry, data []byte) (*Key, error) {
	var rec keyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	def, err := reg.Definition(rec.Domain, rec.Entity)
	if err != nil {
		return nil, err
	}
	k := newKey(def)
	for _, vr := range rec.Values {
		c, err := def.Column(vr.ID)
		if err != nil {
			return nil, err
		}
		v, err := decodeValue(reg, c, vr.Value)
		if err != nil {
			return nil, err
		}
		if err := k.Put(c, v); err != nil {
			return nil, err
		}
	}
	return k, nil
}
