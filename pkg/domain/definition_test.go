package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefine_Failures(t *testing.T) {
	tests := []struct {
		name   string
		define func(d *Domain) error
	}{
		{
			name: "duplicate property id",
			define: func(d *Domain) error {
				_, err := d.Define("e", []Property{NewPrimaryKey("id", TypeInteger), NewColumn("id", TypeString)})
				return err
			},
		},
		{
			name: "no primary key",
			define: func(d *Domain) error {
				_, err := d.Define("e", []Property{NewColumn("name", TypeString)})
				return err
			},
		},
		{
			name: "primary key index collision",
			define: func(d *Domain) error {
				_, err := d.Define("e", []Property{
					NewColumn("a", TypeInteger, PrimaryKeyIndex(0)),
					NewColumn("b", TypeInteger, PrimaryKeyIndex(0)),
				})
				return err
			},
		},
		{
			name: "primary key gap",
			define: func(d *Domain) error {
				_, err := d.Define("e", []Property{
					NewColumn("a", TypeInteger, PrimaryKeyIndex(0)),
					NewColumn("b", TypeInteger, PrimaryKeyIndex(2)),
				})
				return err
			},
		},
		{
			name: "empty entity id",
			define: func(d *Domain) error {
				_, err := d.Define("", []Property{NewPrimaryKey("id", TypeInteger)})
				return err
			},
		},
		{
			name: "undefined referenced entity",
			define: func(d *Domain) error {
				_, err := d.Define("e", []Property{
					NewPrimaryKey("id", TypeInteger),
					NewForeignKey("fk", "missing", []Column{NewColumn("ref_id", TypeInteger)}),
				})
				return err
			},
		},
		{
			name: "reference column count mismatch",
			define: func(d *Domain) error {
				if _, err := d.Define("parent", []Property{NewPrimaryKey("id", TypeInteger)}); err != nil {
					return err
				}
				_, err := d.Define("child", []Property{
					NewPrimaryKey("id", TypeInteger),
					NewForeignKey("fk", "parent", []Column{NewColumn("a", TypeInteger), NewColumn("b", TypeInteger)}),
				})
				return err
			},
		},
		{
			name: "derived source undefined",
			define: func(d *Domain) error {
				_, err := d.Define("e", []Property{
					NewPrimaryKey("id", TypeInteger),
					NewDerived("d", TypeString, concat, []string{"first_name"}),
				})
				return err
			},
		},
		{
			name: "denormalized foreign key undefined",
			define: func(d *Domain) error {
				_, err := d.Define("e", []Property{
					NewPrimaryKey("id", TypeInteger),
					NewDenormalized("d", "fk", NewColumn("name", TypeString)),
				})
				return err
			},
		},
		{
			name: "mirror without column",
			define: func(d *Domain) error {
				if _, err := d.Define("parent", []Property{
					NewColumn("a", TypeInteger, PrimaryKeyIndex(0)),
					NewColumn("b", TypeInteger, PrimaryKeyIndex(1)),
				}); err != nil {
					return err
				}
				_, err := d.Define("child", []Property{
					NewPrimaryKey("id", TypeInteger),
					NewForeignKey("fk", "parent", []Column{NewMirror("a", TypeInteger), NewColumn("b", TypeInteger)}),
				})
				return err
			},
		},
		{
			name: "generated key on composite primary key",
			define: func(d *Domain) error {
				_, err := d.Define("e", []Property{
					NewColumn("a", TypeInteger, PrimaryKeyIndex(0)),
					NewColumn("b", TypeInteger, PrimaryKeyIndex(1)),
				}, WithKeyGenerator(IncrementKeyGenerator("e", "a")))
				return err
			},
		},
		{
			name: "property option error",
			define: func(d *Domain) error {
				_, err := d.Define("e", []Property{
					NewPrimaryKey("id", TypeInteger),
					NewColumn("name", TypeString, Range(0, 1)),
				})
				return err
			},
		},
		{
			name: "entity defined twice",
			define: func(d *Domain) error {
				if _, err := d.Define("e", []Property{NewPrimaryKey("id", TypeInteger)}); err != nil {
					return err
				}
				_, err := d.Define("e", []Property{NewPrimaryKey("id", TypeInteger)})
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.define(NewDomain("test"))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchemaDefinition)
			var se *SchemaError
			assert.True(t, errors.As(err, &se))
		})
	}
}

func TestDefine_PropertyBelongsToOneEntity(t *testing.T) {
	d := NewDomain("test")
	id := NewPrimaryKey("id", TypeInteger)
	_, err := d.Define("a", []Property{id})
	require.NoError(t, err)
	_, err = d.Define("b", []Property{id})
	require.ErrorIs(t, err, ErrSchemaDefinition)
}

func TestDefine_LenientForeignKeys(t *testing.T) {
	d := NewDomain("test", StrictForeignKeys(false))
	_, err := d.Define("child", []Property{
		NewPrimaryKey("id", TypeInteger),
		NewForeignKey("parent_fk", "parent", []Column{NewColumn("parent_id", TypeInteger)}),
	})
	require.NoError(t, err)
	require.ErrorIs(t, d.Seal(), ErrSchemaDefinition, "parent is still undefined")

	d = NewDomain("test", StrictForeignKeys(false))
	_, err = d.Define("child", []Property{
		NewPrimaryKey("id", TypeInteger),
		NewForeignKey("parent_fk", "parent", []Column{NewColumn("parent_id", TypeInteger)}),
	})
	require.NoError(t, err)
	_, err = d.Define("parent", []Property{NewPrimaryKey("id", TypeInteger)})
	require.NoError(t, err)
	require.NoError(t, d.Seal())
	assert.Len(t, d.ReferencingForeignKeys("parent"), 1)
}

func TestDefine_SelfReference(t *testing.T) {
	d := NewDomain("test")
	id := NewPrimaryKey("id", TypeInteger)
	parent := NewForeignKey("parent_fk", "node", []Column{NewColumn("parent_id", TypeInteger)})
	def, err := d.Define("node", []Property{id, parent})
	require.NoError(t, err)

	root, err := d.Entity("node")
	require.NoError(t, err)
	require.NoError(t, root.Put(id, 1))
	child, err := d.Entity("node")
	require.NoError(t, err)
	require.NoError(t, child.Put(id, 2))
	require.NoError(t, child.Put(parent, root))
	assert.Equal(t, 1, child.Get(def.byID["parent_id"]))
}

func TestDefinition_Accessors(t *testing.T) {
	s := newShop(t)

	t.Run("declaration order with reference columns after their foreign key", func(t *testing.T) {
		var ids []string
		for _, p := range s.order.Properties() {
			ids = append(ids, p.ID())
		}
		assert.Equal(t, []string{"id", "customer_fk", "customer_id", "customer_name", "customer_view", "amount", "status", "note", "created_by"}, ids)
	})

	t.Run("columns", func(t *testing.T) {
		var ids []string
		for _, c := range s.order.Columns() {
			ids = append(ids, c.ID())
		}
		assert.Equal(t, []string{"id", "customer_id", "customer_name", "amount", "status", "created_by"}, ids)
		assert.Len(t, s.order.SelectColumns(), 6)
	})

	t.Run("writable columns", func(t *testing.T) {
		var ids []string
		for _, c := range s.order.WritableColumns(true) {
			ids = append(ids, c.ID())
		}
		assert.NotContains(t, ids, "id")
		assert.Contains(t, ids, "amount")
		assert.Len(t, s.order.WritableColumns(false), 6)
	})

	t.Run("primary key sorted by index", func(t *testing.T) {
		pk := s.line.PrimaryKey()
		require.Len(t, pk, 2)
		assert.Equal(t, "order_id", pk[0].ID())
		assert.Equal(t, "line_no", pk[1].ID())
	})

	t.Run("transients", func(t *testing.T) {
		var ids []string
		for _, p := range s.order.Transients() {
			ids = append(ids, p.ID())
		}
		assert.Equal(t, []string{"customer_view", "note"}, ids)
	})

	t.Run("lookups", func(t *testing.T) {
		p, err := s.order.Property("amount")
		require.NoError(t, err)
		assert.Same(t, s.orderAmount, p)

		_, err = s.order.Property("missing")
		require.ErrorIs(t, err, ErrUndefinedProperty)
		_, err = s.order.Column("customer_fk")
		require.ErrorIs(t, err, ErrUndefinedProperty)
		_, err = s.order.ForeignKey("amount")
		require.ErrorIs(t, err, ErrUndefinedForeignKey)

		fk, err := s.dom.ForeignKey("order", "customer_fk")
		require.NoError(t, err)
		assert.Same(t, s.orderCustomer, fk)

		_, err = s.dom.Definition("missing")
		require.ErrorIs(t, err, ErrUndefinedEntity)
	})

	t.Run("denormalized index", func(t *testing.T) {
		assert.True(t, s.order.HasDenormalized("customer_fk"))
		assert.Equal(t, []*DenormalizedProperty{s.orderCustName}, s.order.DenormalizedFrom("customer_fk"))
	})

	t.Run("entity attributes", func(t *testing.T) {
		assert.Equal(t, "orders", s.order.TableName())
		assert.Equal(t, "orders", s.order.SelectTableName())
		assert.Equal(t, "person", s.person.TableName())
		assert.Equal(t, KeyGenIncrement, s.order.KeyGenerator().Type())
		assert.Equal(t, KeyGenNone, s.customer.KeyGenerator().Type())
		assert.Equal(t, "name", s.customer.OrderByClause())
		assert.Equal(t, "shop", s.order.DomainID())
	})
}

func TestDefinition_SetOnce(t *testing.T) {
	s := newShop(t)

	require.ErrorIs(t, s.customer.SetOrderBy("id"), ErrSchemaDefinition)
	require.NoError(t, s.order.SetOrderBy("id desc"))
	require.ErrorIs(t, s.order.SetOrderBy("id"), ErrSchemaDefinition)
	assert.Equal(t, "id desc", s.order.OrderByClause())

	require.NoError(t, s.order.SetGroupBy("customer_id"))
	require.ErrorIs(t, s.order.SetGroupBy("status"), ErrSchemaDefinition)
	require.NoError(t, s.order.SetHaving("count(*) > 1"))
	require.ErrorIs(t, s.order.SetHaving("x"), ErrSchemaDefinition)
	require.NoError(t, s.order.SetSelectQuery("select * from orders"))
	require.ErrorIs(t, s.order.SetSelectQuery("x"), ErrSchemaDefinition)
}

type fakeRow []any

func (r fakeRow) ColumnValue(index int, _ Column) (any, error) { return r[index], nil }

func TestDefinition_PackRow(t *testing.T) {
	s := newShop(t)

	e, err := s.customer.PackRow(fakeRow{int64(1), "Acme", nil, true, nil, int64(3)})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Get(s.custID))
	assert.Equal(t, "Acme", e.Get(s.custName))
	assert.Equal(t, 3, e.Get(s.custRating))
	assert.True(t, e.Contains(s.custCreated))
	assert.False(t, e.IsModified())
	assert.False(t, IsNew(e))

	_, err = s.customer.PackRow(fakeRow{"x", "Acme", nil, true, nil, nil})
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDomain_Seal(t *testing.T) {
	d := NewDomain("test")
	_, err := d.Define("a", []Property{NewPrimaryKey("id", TypeInteger)})
	require.NoError(t, err)
	require.NoError(t, d.Seal())
	assert.True(t, d.Sealed())
	require.NoError(t, d.Seal())

	_, err = d.Define("b", []Property{NewPrimaryKey("id", TypeInteger)})
	require.ErrorIs(t, err, ErrDomainSealed)
}
