// Package schema builds domains from YAML schema files.
//
// A schema file names a domain and lists its entity types in definition
// order. Each entity lists its properties; the kind field selects the
// property variant and defaults to a plain column:
//
//	domain: shop
//	entities:
//	  - id: customer
//	    table: customers
//	    order_by: name
//	    key_generator: {type: automatic, source: customers}
//	    properties:
//	      - {id: id, type: integer, primary_key_index: 0}
//	      - {id: name, type: string, nullable: false, max_length: 40}
//	  - id: order
//	    properties:
//	      - {id: id, type: long, primary_key_index: 0}
//	      - {id: customer_id, type: integer}
//	      - {id: customer_fk, kind: foreign_key, entity: customer, references: [customer_id]}
//	      - {id: customer_name, kind: denormalized, foreign_key: customer_fk, source: name}
package schema

// File is the document of a schema file.
type File struct {
	Domain            string   `yaml:"domain"`
	StrictForeignKeys *bool    `yaml:"strict_foreign_keys,omitempty"`
	Entities          []Entity `yaml:"entities"`
}

// Entity declares one entity type.
type Entity struct {
	ID           string        `yaml:"id"`
	Table        string        `yaml:"table,omitempty"`
	SelectTable  string        `yaml:"select_table,omitempty"`
	Caption      string        `yaml:"caption,omitempty"`
	Description  string        `yaml:"description,omitempty"`
	OrderBy      string        `yaml:"order_by,omitempty"`
	GroupBy      string        `yaml:"group_by,omitempty"`
	Having       string        `yaml:"having,omitempty"`
	SelectQuery  string        `yaml:"select_query,omitempty"`
	ReadOnly     bool          `yaml:"read_only,omitempty"`
	SmallDataset bool          `yaml:"small_dataset,omitempty"`
	StaticData   bool          `yaml:"static_data,omitempty"`
	KeyGenerator *KeyGenerator `yaml:"key_generator,omitempty"`
	Properties   []Property    `yaml:"properties"`
}

// KeyGenerator selects the key generation strategy of an entity.
type KeyGenerator struct {
	// Type is none, increment, sequence, query, automatic or uuid.
	Type     string `yaml:"type"`
	Table    string `yaml:"table,omitempty"`
	Column   string `yaml:"column,omitempty"`
	Sequence string `yaml:"sequence,omitempty"`
	Query    string `yaml:"query,omitempty"`
	Source   string `yaml:"source,omitempty"`
}

// Property declares one property. Fields that do not apply to the kind are
// rejected by the corresponding option when set.
type Property struct {
	ID          string `yaml:"id"`
	Kind        string `yaml:"kind,omitempty"`
	Type        string `yaml:"type,omitempty"`
	Caption     string `yaml:"caption,omitempty"`
	Description string `yaml:"description,omitempty"`
	Nullable    *bool  `yaml:"nullable,omitempty"`
	Default     any    `yaml:"default,omitempty"`
	ReadOnly    *bool  `yaml:"read_only,omitempty"`
	Hidden      bool   `yaml:"hidden,omitempty"`

	Min            *float64 `yaml:"min,omitempty"`
	Max            *float64 `yaml:"max,omitempty"`
	MaxLength      int      `yaml:"max_length,omitempty"`
	FractionDigits *int     `yaml:"fraction_digits,omitempty"`
	Format         *Format  `yaml:"format,omitempty"`

	ColumnName      string          `yaml:"column_name,omitempty"`
	ColumnType      string          `yaml:"column_type,omitempty"`
	PrimaryKeyIndex *int            `yaml:"primary_key_index,omitempty"`
	Updatable       *bool           `yaml:"updatable,omitempty"`
	Searchable      bool            `yaml:"searchable,omitempty"`
	Grouping        bool            `yaml:"grouping,omitempty"`
	Aggregate       bool            `yaml:"aggregate,omitempty"`
	HasDefault      bool            `yaml:"has_default,omitempty"`
	BooleanStorage  *BooleanStorage `yaml:"boolean_storage,omitempty"`

	// foreign_key
	Entity            string   `yaml:"entity,omitempty"`
	References        []string `yaml:"references,omitempty"`
	ReferencedColumns []string `yaml:"referenced_columns,omitempty"`
	FetchDepth        *int     `yaml:"fetch_depth,omitempty"`

	// denormalized and denormalized_view
	ForeignKey string `yaml:"foreign_key,omitempty"`
	Source     string `yaml:"source,omitempty"`

	// derived
	Provider string   `yaml:"provider,omitempty"`
	Sources  []string `yaml:"sources,omitempty"`

	// value_list
	Items []Item `yaml:"items,omitempty"`

	// subquery
	Query string `yaml:"query,omitempty"`

	// audit_time and audit_user: insert or update
	Action string `yaml:"action,omitempty"`

	// transient
	ModifiesEntity *bool `yaml:"modifies_entity,omitempty"`
}

// BooleanStorage maps booleans to column values.
type BooleanStorage struct {
	Type  string `yaml:"type"`
	True  any    `yaml:"true"`
	False any    `yaml:"false"`
}

// Item is a value list entry.
type Item struct {
	Value   any    `yaml:"value"`
	Caption string `yaml:"caption"`
}

// Format selects a display format. Layout applies to temporal values,
// Grouping and Locale to numbers.
type Format struct {
	Layout   string `yaml:"layout,omitempty"`
	Grouping bool   `yaml:"grouping,omitempty"`
	Locale   string `yaml:"locale,omitempty"`
}
