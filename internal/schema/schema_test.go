package schema

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

func loadShop(t *testing.T, opts ...LoaderOption) *domain.Domain {
	t.Helper()
	d, err := NewLoader(opts...).LoadFile(filepath.Join("testdata", "shop.yaml"))
	require.NoError(t, err)
	return d
}

func TestLoadFile(t *testing.T) {
	d := loadShop(t)

	assert.Equal(t, "shop", d.ID())
	assert.True(t, d.Sealed())

	var ids []string
	for _, def := range d.Definitions() {
		ids = append(ids, def.EntityID())
	}
	assert.Equal(t, []string{"status", "customer", "order"}, ids, "definition order follows the file")

	status, err := d.Definition("status")
	require.NoError(t, err)
	assert.True(t, status.IsStaticData())

	customer, err := d.Definition("customer")
	require.NoError(t, err)
	assert.Equal(t, "customers", customer.TableName())
	assert.Equal(t, "Customer", customer.Caption())
	assert.Equal(t, "last_name", customer.OrderByClause())
	assert.Equal(t, domain.KeyGenAutomatic, customer.KeyGenerator().Type())

	order, err := d.Definition("order")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyGenIncrement, order.KeyGenerator().Type())
	require.Len(t, order.PrimaryKey(), 1)
	assert.Equal(t, domain.TypeLong, order.PrimaryKey()[0].Type())
}

func TestLoadFile_Properties(t *testing.T) {
	d := loadShop(t)

	t.Run("foreign key", func(t *testing.T) {
		fk, err := d.ForeignKey("order", "customer_fk")
		require.NoError(t, err)
		assert.Equal(t, "customer", fk.ReferencedEntityID())
		assert.Equal(t, 2, fk.FetchDepth())
		assert.False(t, fk.Nullable())
		refs := fk.References()
		require.Len(t, refs, 1)
		assert.Equal(t, "customer_id", refs[0].ID())
		assert.False(t, refs[0].Nullable(), "nullability follows the foreign key")
	})

	t.Run("denormalized", func(t *testing.T) {
		p, err := d.Property("order", "customer_name")
		require.NoError(t, err)
		den, ok := p.(*domain.DenormalizedProperty)
		require.True(t, ok)
		assert.Equal(t, "customer_fk", den.ForeignKeyID())
		assert.Equal(t, "last_name", den.Source().ID())
		assert.Equal(t, domain.TypeString, den.Type())
	})

	t.Run("value list", func(t *testing.T) {
		p, err := d.Property("order", "priority")
		require.NoError(t, err)
		vl, ok := p.(*domain.ValueListProperty)
		require.True(t, ok)
		require.Len(t, vl.Items(), 3)
		assert.Equal(t, 3, vl.Items()[2].Value, "string item values are parsed")
		assert.Equal(t, "Low", vl.ItemCaption(3))
		assert.Equal(t, 2, vl.DefaultValue())
	})

	t.Run("numbers and formats", func(t *testing.T) {
		p, err := d.Property("order", "amount")
		require.NoError(t, err)
		lo, ok := p.Min()
		require.True(t, ok)
		assert.Equal(t, 0.0, lo)
		assert.Equal(t, 2, p.MaximumFractionDigits())
		assert.Equal(t, "1.234,5", p.Format().Format(1234.5))

		placed, err := d.Property("order", "placed")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), placed.DefaultValue())
		assert.Equal(t, "01.01.2026", placed.Format().Format(placed.DefaultValue()))
	})

	t.Run("boolean storage", func(t *testing.T) {
		p, err := d.Property("customer", "active")
		require.NoError(t, err)
		c, ok := p.(domain.Column)
		require.True(t, ok)
		assert.Equal(t, domain.TypeCharacter, c.ColumnType())
		assert.Equal(t, 'Y', c.ToColumnValue(true))
	})

	t.Run("audit and transient", func(t *testing.T) {
		p, err := d.Property("order", "updated_by")
		require.NoError(t, err)
		audit, ok := p.(*domain.AuditProperty)
		require.True(t, ok)
		assert.Equal(t, domain.AuditUpdate, audit.Action())
		assert.Equal(t, domain.KindAuditUser, audit.Kind())

		p, err = d.Property("order", "note")
		require.NoError(t, err)
		tp, ok := p.(*domain.TransientProperty)
		require.True(t, ok)
		assert.False(t, tp.ModifiesEntity())
	})
}

func TestLoadFile_Entities(t *testing.T) {
	d := loadShop(t)

	customer, err := d.DefaultEntity("customer")
	require.NoError(t, err)
	first, _ := d.Property("customer", "first_name")
	last, _ := d.Property("customer", "last_name")
	full, _ := d.Property("customer", "full_name")
	active, _ := d.Property("customer", "active")
	assert.Equal(t, true, customer.Get(active))
	require.NoError(t, customer.Put(first, "Ada"))
	require.NoError(t, customer.Put(last, "Lovelace"))
	assert.Equal(t, "Ada Lovelace", customer.Get(full), "concat provider")

	order, err := d.Entity("order")
	require.NoError(t, err)
	fk, _ := d.ForeignKey("order", "customer_fk")
	name, _ := d.Property("order", "customer_name")
	require.NoError(t, order.Put(fk, customer))
	assert.Equal(t, "Lovelace", order.Get(name))
}

func TestLoader_CustomProvider(t *testing.T) {
	src := `
domain: people
entities:
  - id: person
    properties:
      - {id: id, type: integer, primary_key_index: 0}
      - {id: name, type: string}
      - {id: shout, kind: derived, type: string, provider: upper, sources: [name]}
`
	upper := func(values map[string]any) any {
		s, _ := values["name"].(string)
		return strings.ToUpper(s)
	}
	d, err := NewLoader(WithProvider("upper", upper)).Load([]byte(src))
	require.NoError(t, err)

	e, err := d.Entity("person")
	require.NoError(t, err)
	name, _ := d.Property("person", "name")
	shout, _ := d.Property("person", "shout")
	require.NoError(t, e.Put(name, "hey"))
	assert.Equal(t, "HEY", e.Get(shout))
}

func TestLoad_Errors(t *testing.T) {
	const head = "domain: bad\nentities:\n  - id: thing\n    properties:\n      - {id: id, type: integer, primary_key_index: 0}\n"
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{name: "no domain", src: "entities: []\n", wantErr: ErrNoDomain},
		{name: "unknown kind", src: head + "      - {id: x, kind: magic}\n", wantErr: ErrUnknownKind},
		{name: "unknown type", src: head + "      - {id: x, type: decimal}\n", wantErr: ErrUnknownType},
		{name: "unknown provider", src: head + "      - {id: x, kind: derived, provider: nope, sources: [id]}\n", wantErr: ErrUnknownProvider},
		{name: "unknown action", src: head + "      - {id: x, kind: audit_time, action: delete}\n", wantErr: ErrUnknownAction},
		{name: "unresolved reference", src: head + "      - {id: x_fk, kind: foreign_key, entity: thing, references: [missing]}\n", wantErr: ErrUnresolved},
		{name: "unresolved foreign key", src: head + "      - {id: x, kind: denormalized, foreign_key: nope, source: id}\n", wantErr: ErrUnresolved},
		{name: "unknown key generator", src: "domain: bad\nentities:\n  - id: thing\n    key_generator: {type: random}\n    properties:\n      - {id: id, type: integer, primary_key_index: 0}\n", wantErr: ErrUnknownKeyGen},
		{name: "bad default", src: head + "      - {id: x, type: integer, default: abc}\n"},
		{name: "invalid yaml", src: "domain: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Load([]byte(tt.src))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
