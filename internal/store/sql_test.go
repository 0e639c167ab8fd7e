package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

func lineDomain(t *testing.T) *domain.Domain {
	t.Helper()
	d := domain.NewDomain("lines")
	_, err := d.Define("order", []domain.Property{domain.NewPrimaryKey("id", domain.TypeLong)},
		domain.TableName("orders"), domain.WithKeyGenerator(domain.AutomaticKeyGenerator("orders_id_seq")))
	require.NoError(t, err)
	orderID := domain.NewColumn("order_id", domain.TypeLong, domain.PrimaryKeyIndex(0))
	_, err = d.Define("line", []domain.Property{
		orderID,
		domain.NewForeignKey("order_fk", "order", []domain.Column{orderID}),
		domain.NewColumn("line_no", domain.TypeInteger, domain.PrimaryKeyIndex(1)),
		domain.NewColumn("active", domain.TypeBoolean),
		domain.NewSubquery("total", domain.TypeDouble, "select 1"),
	}, domain.TableName("lines"), domain.OrderBy("line_no"), domain.GroupBy("order_id"))
	require.NoError(t, err)
	return d
}

func TestSchemaSQL(t *testing.T) {
	d := lineDomain(t)

	tests := []struct {
		name    string
		dialect Dialect
		want    []string
	}{
		{"sqlite", SQLite, []string{
			"CREATE TABLE IF NOT EXISTS orders (\n  id INTEGER PRIMARY KEY AUTOINCREMENT\n)",
			"CREATE TABLE IF NOT EXISTS lines (\n  order_id INTEGER NOT NULL,\n  line_no INTEGER NOT NULL,\n  active INTEGER,\n" +
				"  PRIMARY KEY (order_id, line_no),\n  FOREIGN KEY (order_id) REFERENCES orders (id)\n)",
		}},
		{"postgres", Postgres, []string{
			"CREATE TABLE IF NOT EXISTS orders (\n  id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY\n)",
			"CREATE TABLE IF NOT EXISTS lines (\n  order_id BIGINT NOT NULL,\n  line_no INTEGER NOT NULL,\n  active BOOLEAN,\n" +
				"  PRIMARY KEY (order_id, line_no),\n  FOREIGN KEY (order_id) REFERENCES orders (id)\n)",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SchemaSQL(tt.dialect, d)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatements(t *testing.T) {
	d := lineDomain(t)
	def, err := d.Definition("line")
	require.NoError(t, err)
	k, err := d.CompositeKey("line", map[string]any{"order_id": int64(4), "line_no": 2})
	require.NoError(t, err)

	t.Run("select", func(t *testing.T) {
		b := &binder{dialect: Postgres}
		got := selectSQL(def, keyCondition(k, b))
		assert.Equal(t, "SELECT order_id, line_no, active, (select 1) AS total FROM lines "+
			"WHERE order_id = $1 AND line_no = $2 GROUP BY order_id ORDER BY line_no", got)
		assert.Equal(t, []any{int64(4), 2}, b.args)
	})

	t.Run("null key values", func(t *testing.T) {
		partial, err := d.CompositeKey("line", map[string]any{"order_id": int64(4)})
		require.NoError(t, err)
		b := &binder{dialect: SQLite}
		assert.Equal(t, "order_id = ? AND line_no IS NULL", keyCondition(partial, b))
		assert.Len(t, b.args, 1)
	})

	t.Run("insert and update", func(t *testing.T) {
		cols := def.WritableColumns(false)
		b := &binder{dialect: Postgres}
		ins := insertSQL(def, cols, func(domain.Column) string { return b.bind(nil) })
		assert.Equal(t, "INSERT INTO lines (order_id, line_no, active) VALUES ($1, $2, $3)", ins)
		assert.Equal(t, "INSERT INTO lines DEFAULT VALUES", insertSQL(def, nil, nil))

		b = &binder{dialect: SQLite}
		upd := updateSQL(def, cols[2:], func(domain.Column) string { return b.bind(true) })
		assert.Equal(t, "UPDATE lines SET active = ?", upd)
	})

	t.Run("sequence and identity queries", func(t *testing.T) {
		assert.Equal(t, "select nextval('line_seq')", Postgres.SequenceQuery("line_seq"))
		assert.Equal(t, "select currval('orders_id_seq')", Postgres.AutoIncrementQuery("orders_id_seq"))
		assert.Equal(t, "select last_insert_rowid()", SQLite.AutoIncrementQuery("orders"))
		assert.Empty(t, SQLite.SequenceQuery("line_seq"))
	})
}

func TestDialectByName(t *testing.T) {
	for name, want := range map[string]Dialect{"sqlite": SQLite, "postgres": Postgres, "pg": Postgres} {
		got, err := DialectByName(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := DialectByName("oracle")
	require.Error(t, err)
}

func TestBindValue(t *testing.T) {
	flag := domain.NewColumn("flag", domain.TypeBoolean, domain.BooleanStorage(domain.TypeString, "Y", "N"))
	assert.Equal(t, "Y", bindValue(flag, true))
	initial := domain.NewColumn("initial", domain.TypeCharacter)
	assert.Equal(t, "J", bindValue(initial, 'J'))
	assert.Equal(t, 3, bindValue(domain.NewColumn("n", domain.TypeInteger), 3))
}
