package api

import (
	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// DomainInfo lists the entity types of a domain.
type DomainInfo struct {
	ID       string   `json:"id"`
	Entities []string `json:"entities"`
}

// EntityInfo describes an entity definition.
type EntityInfo struct {
	ID           string         `json:"id"`
	Caption      string         `json:"caption,omitempty"`
	Description  string         `json:"description,omitempty"`
	Table        string         `json:"table"`
	SelectTable  string         `json:"selectTable,omitempty"`
	SelectQuery  string         `json:"selectQuery,omitempty"`
	OrderBy      string         `json:"orderBy,omitempty"`
	KeyGenerator string         `json:"keyGenerator"`
	PrimaryKey   []string       `json:"primaryKey"`
	ReadOnly     bool           `json:"readOnly,omitempty"`
	SmallDataset bool           `json:"smallDataset,omitempty"`
	StaticData   bool           `json:"staticData,omitempty"`
	Properties   []PropertyInfo `json:"properties"`
}

// PropertyInfo describes one property.
type PropertyInfo struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Type        string   `json:"type"`
	Caption     string   `json:"caption,omitempty"`
	Nullable    bool     `json:"nullable"`
	ReadOnly    bool     `json:"readOnly,omitempty"`
	Hidden      bool     `json:"hidden,omitempty"`
	Default     any      `json:"default,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	MaxLength   int      `json:"maxLength,omitempty"`
	Column      string   `json:"column,omitempty"`
	References  string   `json:"references,omitempty"`
	ForeignKeys []string `json:"referenceColumns,omitempty"`
	Items       []Item   `json:"items,omitempty"`
}

// Item is a value list entry.
type Item struct {
	Value   any    `json:"value"`
	Caption string `json:"caption"`
}

// DescribeDomain lists the entity ids of d in definition order.
func DescribeDomain(d *domain.Domain) DomainInfo {
	defs := d.Definitions()
	info := DomainInfo{ID: d.ID(), Entities: make([]string, 0, len(defs))}
	for _, def := range defs {
		info.Entities = append(info.Entities, def.EntityID())
	}
	return info
}

// DescribeEntity describes def.
func DescribeEntity(def *domain.Definition) EntityInfo {
	info := EntityInfo{
		ID:           def.EntityID(),
		Caption:      def.Caption(),
		Description:  def.Description(),
		Table:        def.TableName(),
		SelectQuery:  def.SelectQueryText(),
		OrderBy:      def.OrderByClause(),
		KeyGenerator: string(def.KeyGenerator().Type()),
		ReadOnly:     def.IsReadOnly(),
		SmallDataset: def.IsSmallDataset(),
		StaticData:   def.IsStaticData(),
	}
	if def.SelectTableName() != def.TableName() {
		info.SelectTable = def.SelectTableName()
	}
	for _, c := range def.PrimaryKey() {
		info.PrimaryKey = append(info.PrimaryKey, c.ID())
	}
	for _, p := range def.Properties() {
		info.Properties = append(info.Properties, describeProperty(p))
	}
	return info
}

func describeProperty(p domain.Property) PropertyInfo {
	info := PropertyInfo{
		ID:        p.ID(),
		Kind:      p.Kind().String(),
		Type:      string(p.Type()),
		Caption:   p.Caption(),
		Nullable:  p.Nullable(),
		ReadOnly:  p.ReadOnly(),
		Hidden:    p.Hidden(),
		Default:   encodeValue(p, p.DefaultValue()),
		MaxLength: p.MaxLength(),
	}
	if lo, ok := p.Min(); ok {
		info.Min = &lo
	}
	if hi, ok := p.Max(); ok {
		info.Max = &hi
	}
	switch x := p.(type) {
	case *domain.ForeignKeyProperty:
		info.References = x.ReferencedEntityID()
		for _, c := range x.References() {
			info.ForeignKeys = append(info.ForeignKeys, c.ID())
		}
	case *domain.ValueListProperty:
		for _, it := range x.Items() {
			info.Items = append(info.Items, Item{Value: encodeValue(p, it.Value), Caption: it.Caption})
		}
	}
	if c, ok := p.(domain.Column); ok {
		info.Column = c.ColumnName()
	}
	return info
}
