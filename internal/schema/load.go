package schema

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// Schema errors.
var (
	ErrNoDomain        = errors.New("schema declares no domain")
	ErrUnknownKind     = errors.New("unknown property kind")
	ErrUnknownType     = errors.New("unknown value type")
	ErrUnknownKeyGen   = errors.New("unknown key generator")
	ErrUnknownProvider = errors.New("unknown value provider")
	ErrUnknownAction   = errors.New("unknown audit action")
	ErrUnresolved      = errors.New("unresolved property reference")
)

// Loader converts schema files to domains.
type Loader struct {
	providers      map[string]domain.ValueProvider
	logger         *zap.Logger
	strict         *bool
	nullValidation *bool
}

// LoaderOption configures a Loader.
type LoaderOption func(l *Loader)

// WithProvider registers a value provider that derived properties name in
// their provider field.
func WithProvider(name string, fn domain.ValueProvider) LoaderOption {
	return func(l *Loader) { l.providers[name] = fn }
}

// WithLogger sets the logger handed to the domains the loader builds.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// WithStrictForeignKeys overrides the strict_foreign_keys setting of the
// schema file.
func WithStrictForeignKeys(strict bool) LoaderOption {
	return func(l *Loader) { l.strict = &strict }
}

// WithNullValidation gives every entity type a default validator with null
// validation on or off.
func WithNullValidation(perform bool) LoaderOption {
	return func(l *Loader) { l.nullValidation = &perform }
}

// NewLoader returns a loader knowing the concat provider plus any providers
// given as options.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		providers: map[string]domain.ValueProvider{"concat": nil},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile reads and builds the schema at path.
func (l *Loader) LoadFile(path string) (*domain.Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	d, err := l.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Load builds a sealed domain from schema data.
func (l *Loader) Load(data []byte) (*domain.Domain, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return l.Build(f)
}

// Parse decodes schema data without building it.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	if strings.TrimSpace(f.Domain) == "" {
		return nil, ErrNoDomain
	}
	return &f, nil
}

// Build defines every entity of f in a new domain and seals it.
func (l *Loader) Build(f *File) (*domain.Domain, error) {
	opts := []domain.DomainOption{domain.WithLogger(l.logger)}
	strict := f.StrictForeignKeys
	if l.strict != nil {
		strict = l.strict
	}
	if strict != nil {
		opts = append(opts, domain.StrictForeignKeys(*strict))
	}
	d := domain.NewDomain(f.Domain, opts...)
	for i := range f.Entities {
		if err := l.define(d, &f.Entities[i]); err != nil {
			return nil, err
		}
	}
	if err := d.Seal(); err != nil {
		return nil, err
	}
	return d, nil
}

func (l *Loader) define(d *domain.Domain, e *Entity) error {
	defOpts, err := definitionOptions(e)
	if err != nil {
		return fmt.Errorf("entity %s: %w", e.ID, err)
	}

	// Foreign keys and denormalized properties refer to columns by id, so
	// they are built after every other property. Declaration order is kept.
	props := make([]domain.Property, len(e.Properties))
	columns := make(map[string]domain.Column)
	var deferred []int
	for i := range e.Properties {
		p := &e.Properties[i]
		switch kind(p) {
		case "foreign_key", "denormalized", "denormalized_view":
			deferred = append(deferred, i)
			continue
		}
		prop, err := l.property(p)
		if err != nil {
			return fmt.Errorf("entity %s property %s: %w", e.ID, p.ID, err)
		}
		props[i] = prop
		if c, ok := prop.(domain.Column); ok {
			columns[p.ID] = c
		}
	}
	fks := make(map[string]*domain.ForeignKeyProperty)
	for _, i := range deferred {
		p := &e.Properties[i]
		if kind(p) != "foreign_key" {
			continue
		}
		fk, err := foreignKey(p, columns)
		if err != nil {
			return fmt.Errorf("entity %s property %s: %w", e.ID, p.ID, err)
		}
		props[i] = fk
		fks[p.ID] = fk
	}
	for _, i := range deferred {
		p := &e.Properties[i]
		if kind(p) == "foreign_key" {
			continue
		}
		prop, err := denormalized(d, e.ID, p, fks)
		if err != nil {
			return fmt.Errorf("entity %s property %s: %w", e.ID, p.ID, err)
		}
		props[i] = prop
	}

	if l.nullValidation != nil {
		defOpts = append(defOpts, domain.WithValidator(domain.NewValidator(*l.nullValidation)))
	}
	_, err = d.Define(e.ID, props, defOpts...)
	return err
}

func definitionOptions(e *Entity) ([]domain.DefinitionOption, error) {
	var opts []domain.DefinitionOption
	add := func(set bool, opt domain.DefinitionOption) {
		if set {
			opts = append(opts, opt)
		}
	}
	add(e.Table != "", domain.TableName(e.Table))
	add(e.SelectTable != "", domain.SelectTableName(e.SelectTable))
	add(e.Caption != "", domain.EntityCaption(e.Caption))
	add(e.Description != "", domain.EntityDescription(e.Description))
	add(e.OrderBy != "", domain.OrderBy(e.OrderBy))
	add(e.GroupBy != "", domain.GroupBy(e.GroupBy))
	add(e.Having != "", domain.Having(e.Having))
	add(e.SelectQuery != "", domain.SelectQuery(e.SelectQuery))
	add(e.ReadOnly, domain.ReadOnlyEntity())
	add(e.SmallDataset, domain.SmallDataset())
	add(e.StaticData, domain.StaticData())
	if e.KeyGenerator != nil {
		g, err := keyGenerator(e.KeyGenerator)
		if err != nil {
			return nil, err
		}
		opts = append(opts, domain.WithKeyGenerator(g))
	}
	return opts, nil
}

func keyGenerator(k *KeyGenerator) (domain.KeyGenerator, error) {
	switch k.Type {
	case "", "none", "manual":
		return domain.ManualKeyGenerator(), nil
	case "increment":
		return domain.IncrementKeyGenerator(k.Table, k.Column), nil
	case "sequence":
		return domain.SequenceKeyGenerator(k.Sequence), nil
	case "query":
		return domain.QueryKeyGenerator(k.Query), nil
	case "automatic":
		return domain.AutomaticKeyGenerator(k.Source), nil
	case "uuid":
		return domain.UUIDKeyGenerator(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKeyGen, k.Type)
}

func kind(p *Property) string {
	if p.Kind == "" {
		return "column"
	}
	return p.Kind
}

func valueType(s string) (domain.ValueType, error) {
	if s == "" {
		return domain.TypeString, nil
	}
	if !domain.IsValidValueType(s) {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return domain.ValueType(s), nil
}

func (l *Loader) property(p *Property) (domain.Property, error) {
	t, err := valueType(p.Type)
	if err != nil {
		return nil, err
	}
	opts, err := options(p, t)
	if err != nil {
		return nil, err
	}
	switch kind(p) {
	case "column":
		return domain.NewColumn(p.ID, t, opts...), nil
	case "mirror":
		return domain.NewMirror(p.ID, t, opts...), nil
	case "transient":
		return domain.NewTransient(p.ID, t, opts...), nil
	case "subquery":
		return domain.NewSubquery(p.ID, t, p.Query, opts...), nil
	case "value_list":
		items := make([]domain.Item, 0, len(p.Items))
		for _, it := range p.Items {
			v, err := convert(t, it.Value)
			if err != nil {
				return nil, fmt.Errorf("item %v: %w", it.Value, err)
			}
			items = append(items, domain.Item{Value: v, Caption: it.Caption})
		}
		return domain.NewValueList(p.ID, t, items, opts...), nil
	case "audit_time", "audit_user":
		action, err := auditAction(p.Action)
		if err != nil {
			return nil, err
		}
		if p.Kind == "audit_time" {
			return domain.NewAuditTime(p.ID, action, opts...), nil
		}
		return domain.NewAuditUser(p.ID, action, opts...), nil
	case "derived":
		fn, ok := l.providers[p.Provider]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p.Provider)
		}
		if fn == nil {
			fn = concat(p.Sources)
		}
		return domain.NewDerived(p.ID, t, fn, p.Sources, opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
}

func auditAction(s string) (domain.AuditAction, error) {
	switch s {
	case "", "insert":
		return domain.AuditInsert, nil
	case "update":
		return domain.AuditUpdate, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

func foreignKey(p *Property, columns map[string]domain.Column) (*domain.ForeignKeyProperty, error) {
	refs := make([]domain.Column, 0, len(p.References))
	for _, id := range p.References {
		c, ok := columns[id]
		if !ok {
			return nil, fmt.Errorf("%w: reference column %q", ErrUnresolved, id)
		}
		refs = append(refs, c)
	}
	opts, err := options(p, domain.TypeEntity)
	if err != nil {
		return nil, err
	}
	if len(p.ReferencedColumns) > 0 {
		opts = append(opts, domain.ReferencedColumns(p.ReferencedColumns...))
	}
	if p.FetchDepth != nil {
		opts = append(opts, domain.FetchDepth(*p.FetchDepth))
	}
	return domain.NewForeignKey(p.ID, p.Entity, refs, opts...), nil
}

func denormalized(d *domain.Domain, entityID string, p *Property, fks map[string]*domain.ForeignKeyProperty) (domain.Property, error) {
	fk, ok := fks[p.ForeignKey]
	if !ok {
		return nil, fmt.Errorf("%w: foreign key %q", ErrUnresolved, p.ForeignKey)
	}
	refEntity := fk.ReferencedEntityID()
	if refEntity == entityID {
		return nil, fmt.Errorf("%w: %s denormalizes its own entity", ErrUnresolved, p.ID)
	}
	source, err := d.Property(refEntity, p.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s.%s", ErrUnresolved, refEntity, p.Source)
	}
	opts, err := options(p, source.Type())
	if err != nil {
		return nil, err
	}
	if p.Kind == "denormalized_view" {
		return domain.NewDenormalizedView(p.ID, p.ForeignKey, source, opts...), nil
	}
	return domain.NewDenormalized(p.ID, p.ForeignKey, source, opts...), nil
}

// options translates the shared property fields. Values for t are parsed
// from their YAML form first, the domain options reject what does not apply.
func options(p *Property, t domain.ValueType) ([]domain.Option, error) {
	var opts []domain.Option
	if p.Caption != "" {
		opts = append(opts, domain.Caption(p.Caption))
	}
	if p.Description != "" {
		opts = append(opts, domain.Description(p.Description))
	}
	if p.Nullable != nil {
		opts = append(opts, domain.Nullable(*p.Nullable))
	}
	if p.ReadOnly != nil {
		opts = append(opts, domain.ReadOnly(*p.ReadOnly))
	}
	if p.Hidden {
		opts = append(opts, domain.Hidden(true))
	}
	if p.Default != nil {
		v, err := convert(t, p.Default)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		opts = append(opts, domain.Default(v))
	}
	if p.Min != nil || p.Max != nil {
		lo, hi := -math.MaxFloat64, math.MaxFloat64
		if p.Min != nil {
			lo = *p.Min
		}
		if p.Max != nil {
			hi = *p.Max
		}
		opts = append(opts, domain.Range(lo, hi))
	}
	if p.MaxLength > 0 {
		opts = append(opts, domain.MaxLength(p.MaxLength))
	}
	if p.Format != nil {
		f, err := format(p.Format, t)
		if err != nil {
			return nil, err
		}
		opts = append(opts, domain.WithFormat(f))
	}
	if p.FractionDigits != nil {
		opts = append(opts, domain.MaximumFractionDigits(*p.FractionDigits))
	}
	if p.ColumnName != "" {
		opts = append(opts, domain.ColumnName(p.ColumnName))
	}
	if p.ColumnType != "" {
		ct, err := valueType(p.ColumnType)
		if err != nil {
			return nil, err
		}
		opts = append(opts, domain.ColumnType(ct))
	}
	if p.PrimaryKeyIndex != nil {
		opts = append(opts, domain.PrimaryKeyIndex(*p.PrimaryKeyIndex))
	}
	if p.Updatable != nil {
		opts = append(opts, domain.Updatable(*p.Updatable))
	}
	if p.Searchable {
		opts = append(opts, domain.Searchable(true))
	}
	if p.Grouping {
		opts = append(opts, domain.Grouping())
	}
	if p.Aggregate {
		opts = append(opts, domain.Aggregate())
	}
	if p.HasDefault {
		opts = append(opts, domain.ColumnHasDefault())
	}
	if bs := p.BooleanStorage; bs != nil {
		ct, err := valueType(bs.Type)
		if err != nil {
			return nil, err
		}
		tv, err := convert(ct, bs.True)
		if err != nil {
			return nil, fmt.Errorf("boolean storage: %w", err)
		}
		fv, err := convert(ct, bs.False)
		if err != nil {
			return nil, fmt.Errorf("boolean storage: %w", err)
		}
		opts = append(opts, domain.BooleanStorage(ct, tv, fv))
	}
	if p.ModifiesEntity != nil {
		opts = append(opts, domain.ModifiesEntity(*p.ModifiesEntity))
	}
	return opts, nil
}

func format(f *Format, t domain.ValueType) (domain.Format, error) {
	if f.Layout != "" {
		return &domain.DateFormat{Layout: f.Layout}, nil
	}
	nf := &domain.NumberFormat{Grouping: f.Grouping}
	if t == domain.TypeDouble {
		nf.MaximumFractionDigits = domain.DefaultMaximumFractionDigits
	}
	if f.Locale != "" {
		tag, err := language.Parse(f.Locale)
		if err != nil {
			return nil, fmt.Errorf("format locale: %w", err)
		}
		nf.Tag = tag
	}
	return nf, nil
}

// convert turns a YAML scalar into a value of type t. Strings are parsed for
// non-string types, anything else is left to the domain's normalization.
func convert(t domain.ValueType, v any) (any, error) {
	s, ok := v.(string)
	if !ok || t == domain.TypeString || t == domain.TypeObject {
		return v, nil
	}
	return domain.ParseValue(t, s)
}

// concat joins the non-null source values with a space, in source order.
func concat(sources []string) domain.ValueProvider {
	return func(values map[string]any) any {
		var parts []string
		for _, id := range sources {
			if v := values[id]; v != nil {
				parts = append(parts, fmt.Sprint(v))
			}
		}
		if len(parts) == 0 {
			return nil
		}
		return strings.Join(parts, " ")
	}
}
