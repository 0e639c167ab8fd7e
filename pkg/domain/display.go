package domain

import (
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// StringProvider renders entities from a sequence of property values and
// literal text. Pass its String method to WithStringProvider.
type StringProvider struct {
	parts []stringPart
}

type stringPart struct {
	text string
	fk   *ForeignKeyProperty
	prop Property
}

// NewStringProvider returns an empty provider.
func NewStringProvider() *StringProvider {
	return &StringProvider{}
}

// Value appends the formatted value of p.
func (s *StringProvider) Value(p Property) *StringProvider {
	s.parts = append(s.parts, stringPart{prop: p})
	return s
}

// Text appends literal text.
func (s *StringProvider) Text(text string) *StringProvider {
	s.parts = append(s.parts, stringPart{text: text})
	return s
}

// ForeignKeyValue appends the formatted value of p in the entity fk
// references.
func (s *StringProvider) ForeignKeyValue(fk *ForeignKeyProperty, p Property) *StringProvider {
	s.parts = append(s.parts, stringPart{fk: fk, prop: p})
	return s
}

// String renders e.
func (s *StringProvider) String(e *Entity) string {
	var b strings.Builder
	for _, part := range s.parts {
		switch {
		case part.fk != nil:
			if ref := e.ForeignKeyValue(part.fk); ref != nil {
				b.WriteString(ref.Formatted(part.prop))
			}
		case part.prop != nil:
			b.WriteString(e.Formatted(part.prop))
		default:
			b.WriteString(part.text)
		}
	}
	return b.String()
}

// collators are not safe for concurrent use.
var collators = sync.Pool{
	New: func() any { return collate.New(language.Und, collate.IgnoreCase) },
}

func compareStrings(a, b string) int {
	c := collators.Get().(*collate.Collator)
	defer collators.Put(c)
	return c.CompareString(a, b)
}
