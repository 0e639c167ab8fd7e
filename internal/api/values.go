package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// encodeValue renders v in its JSON form: temporal values use the domain
// layouts, characters become one character strings.
func encodeValue(p domain.Property, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		switch p.Type() {
		case domain.TypeDate:
			return x.Format(domain.DateLayout)
		case domain.TypeTime:
			return x.Format(domain.TimeLayout)
		}
		return x.Format(domain.TimestampLayout)
	case rune:
		if p.Type() == domain.TypeCharacter {
			return string(x)
		}
	case *domain.Entity:
		return encodeEntity(x, false)
	}
	return v
}

// encodeEntity maps property ids to values. Foreign keys are included when
// nested is false and the referenced entity is loaded, one level deep.
func encodeEntity(e *domain.Entity, nested bool) map[string]any {
	out := make(map[string]any)
	for _, p := range e.Definition().Properties() {
		if fk, ok := p.(*domain.ForeignKeyProperty); ok {
			if nested || !e.IsLoaded(fk) {
				continue
			}
			if ref := e.ForeignKeyValue(fk); ref != nil {
				out[p.ID()] = encodeEntity(ref, true)
			}
			continue
		}
		if !e.Contains(p) && p.Kind() != domain.KindDerived {
			continue
		}
		out[p.ID()] = encodeValue(p, e.Get(p))
	}
	return out
}

// decodeValue converts a value decoded with json.Decoder.UseNumber to the
// type of p.
func decodeValue(p domain.Property, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if !p.Type().IsNumerical() {
			return nil, fmt.Errorf("%w: %s expects %s, got a number", domain.ErrTypeMismatch, p.ID(), p.Type())
		}
		return domain.ParseValue(p.Type(), x.String())
	case string:
		if p.Type() == domain.TypeString || p.Type() == domain.TypeObject {
			return x, nil
		}
		return domain.ParseValue(p.Type(), x)
	}
	return v, nil
}

// putValues puts the JSON values of body into e, by property id.
func putValues(e *domain.Entity, body map[string]any) error {
	def := e.Definition()
	for id, raw := range body {
		p, err := def.Property(id)
		if err != nil {
			return err
		}
		if _, ok := p.(*domain.ForeignKeyProperty); ok {
			return fmt.Errorf("%w: set the reference columns of %s instead", domain.ErrTypeMismatch, id)
		}
		if p.ReadOnly() {
			return fmt.Errorf("%w: %s", domain.ErrReadOnlyViolation, id)
		}
		v, err := decodeValue(p, raw)
		if err != nil {
			return err
		}
		if err := e.Put(p, v); err != nil {
			return err
		}
	}
	return nil
}
