package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

var clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	dom   *domain.Domain
	db    *sql.DB
	store *Store
	logs  *observer.ObservedLogs

	statusCode    *domain.ColumnProperty
	statusCaption *domain.ColumnProperty

	custID     *domain.ColumnProperty
	custName   *domain.ColumnProperty
	custActive *domain.ColumnProperty
	custOrders *domain.SubqueryProperty

	orderID       *domain.ColumnProperty
	orderCustomer *domain.ForeignKeyProperty
	orderStatus   *domain.ForeignKeyProperty
	orderAmount   *domain.ColumnProperty
	orderPlaced   *domain.ColumnProperty
	orderNote     *domain.TransientProperty
	orderCreated  *domain.AuditProperty
	orderUpdater  *domain.AuditProperty
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dom: domain.NewDomain("shop")}

	f.statusCode = domain.NewPrimaryKey("code", domain.TypeString)
	f.statusCaption = domain.NewColumn("caption", domain.TypeString)
	_, err := f.dom.Define("status", []domain.Property{f.statusCode, f.statusCaption},
		domain.TableName("statuses"), domain.StaticData(), domain.OrderBy("code"))
	require.NoError(t, err)

	f.custID = domain.NewPrimaryKey("id", domain.TypeInteger)
	f.custName = domain.NewColumn("name", domain.TypeString, domain.Nullable(false), domain.MaxLength(40))
	f.custActive = domain.NewColumn("active", domain.TypeBoolean,
		domain.BooleanStorage(domain.TypeString, "Y", "N"), domain.Default(true))
	f.custOrders = domain.NewSubquery("order_count", domain.TypeInteger,
		"select count(*) from orders where orders.customer_id = customers.id")
	_, err = f.dom.Define("customer", []domain.Property{f.custID, f.custName, f.custActive, f.custOrders},
		domain.TableName("customers"), domain.OrderBy("name"),
		domain.WithKeyGenerator(domain.AutomaticKeyGenerator("customers")))
	require.NoError(t, err)

	customerID := domain.NewColumn("customer_id", domain.TypeInteger)
	statusCode := domain.NewColumn("status_code", domain.TypeString)
	f.orderID = domain.NewPrimaryKey("id", domain.TypeLong)
	f.orderCustomer = domain.NewForeignKey("customer_fk", "customer", []domain.Column{customerID}, domain.Nullable(false))
	f.orderStatus = domain.NewForeignKey("status_fk", "status", []domain.Column{statusCode})
	f.orderAmount = domain.NewColumn("amount", domain.TypeDouble, domain.MaximumFractionDigits(2))
	f.orderPlaced = domain.NewColumn("placed", domain.TypeDate)
	f.orderNote = domain.NewTransient("note", domain.TypeString)
	f.orderCreated = domain.NewAuditTime("created_at", domain.AuditInsert)
	f.orderUpdater = domain.NewAuditUser("updated_by", domain.AuditUpdate)
	_, err = f.dom.Define("order", []domain.Property{
		f.orderID, customerID, f.orderCustomer, statusCode, f.orderStatus,
		f.orderAmount, f.orderPlaced, f.orderNote, f.orderCreated, f.orderUpdater,
	}, domain.TableName("orders"), domain.OrderBy("id"),
		domain.WithKeyGenerator(domain.IncrementKeyGenerator("orders", "id")))
	require.NoError(t, err)

	_, err = f.dom.Define("customer_summary", []domain.Property{
		domain.NewPrimaryKey("id", domain.TypeInteger),
		domain.NewColumn("name", domain.TypeString),
	}, domain.SelectQuery("select id, name from customers"), domain.ReadOnlyEntity())
	require.NoError(t, err)
	require.NoError(t, f.dom.Seal())

	f.db, err = sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { f.db.Close() })

	core, logs := observer.New(zap.DebugLevel)
	f.logs = logs
	f.store = New(f.db, SQLite, f.dom,
		WithLogger(zap.New(core)),
		WithUser("tester"),
		WithClock(func() time.Time { return clock }),
		WithStaticCache(time.Minute))
	require.NoError(t, f.store.CreateSchema(context.Background()))
	return f
}

func (f *fixture) entity(t *testing.T, entityID string, values map[string]any) *domain.Entity {
	t.Helper()
	e, err := f.dom.DefaultEntity(entityID)
	require.NoError(t, err)
	def := e.Definition()
	for id, v := range values {
		p, err := def.Property(id)
		require.NoError(t, err)
		require.NoError(t, e.Put(p, v))
	}
	return e
}

// seed inserts two statuses, one customer and one order.
func (f *fixture) seed(t *testing.T) (customer, order *domain.Entity) {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.Insert(ctx,
		f.entity(t, "status", map[string]any{"code": "new", "caption": "New"}),
		f.entity(t, "status", map[string]any{"code": "paid", "caption": "Paid"}))
	require.NoError(t, err)

	customer = f.entity(t, "customer", map[string]any{"name": "Acme"})
	_, err = f.store.Insert(ctx, customer)
	require.NoError(t, err)

	status, err := f.store.Select(ctx, mustKey(t, f.dom, "status", "new"))
	require.NoError(t, err)
	order = f.entity(t, "order", map[string]any{
		"customer_fk": customer,
		"status_fk":   status,
		"amount":      12.5,
		"placed":      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	_, err = f.store.Insert(ctx, order)
	require.NoError(t, err)
	return customer, order
}

func mustKey(t *testing.T, d *domain.Domain, entityID string, value any) *domain.Key {
	t.Helper()
	k, err := d.Key(entityID, value)
	require.NoError(t, err)
	return k
}

func TestStore_CreateSchemaIsRepeatable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateSchema(context.Background()))

	n, err := f.store.Count(context.Background(), "customer", "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_Insert(t *testing.T) {
	f := newFixture(t)
	customer, order := f.seed(t)

	t.Run("automatic key", func(t *testing.T) {
		assert.Equal(t, 1, customer.Get(f.custID))
		assert.False(t, customer.IsModified())
	})

	t.Run("increment key", func(t *testing.T) {
		assert.Equal(t, int64(1), order.Get(f.orderID))
		next := f.entity(t, "order", map[string]any{"customer_fk": customer, "amount": 1.0})
		keys, err := f.store.Insert(context.Background(), next)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, int64(2), keys[0].Value())
	})

	t.Run("audit columns", func(t *testing.T) {
		created, ok := domain.ValueOf[time.Time](order, f.orderCreated)
		require.True(t, ok)
		assert.True(t, clock.Equal(created))
		assert.Nil(t, order.Get(f.orderUpdater), "update audit columns are not stamped on insert")
	})

	t.Run("validation rolls back", func(t *testing.T) {
		ctx := context.Background()
		ok := f.entity(t, "customer", map[string]any{"name": "Globex"})
		invalid := f.entity(t, "customer", nil)
		_, err := f.store.Insert(ctx, ok, invalid)
		require.ErrorIs(t, err, domain.ErrNullValidation)

		n, err := f.store.Count(ctx, "customer", "")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("read only entity", func(t *testing.T) {
		e := f.entity(t, "customer_summary", map[string]any{"id": 5, "name": "x"})
		_, err := f.store.Insert(context.Background(), e)
		require.ErrorIs(t, err, ErrReadOnlyEntity)
	})
}

func TestStore_Select(t *testing.T) {
	f := newFixture(t)
	customer, order := f.seed(t)
	ctx := context.Background()

	got, err := f.store.Select(ctx, order.Key())
	require.NoError(t, err)
	assert.False(t, got.IsModified())
	assert.Equal(t, 12.5, got.Get(f.orderAmount))
	placed, _ := domain.ValueOf[time.Time](got, f.orderPlaced)
	assert.Equal(t, 2026, placed.Year())
	assert.Equal(t, time.February, placed.Month())

	ref := got.ForeignKeyValue(f.orderCustomer)
	require.NotNil(t, ref, "foreign keys are fetched to their fetch depth")
	assert.True(t, ref.Equal(customer))
	assert.Equal(t, "Acme", ref.Get(f.custName))
	assert.Equal(t, true, ref.Get(f.custActive))
	assert.Equal(t, 1, ref.Get(f.custOrders))
	require.NotNil(t, got.ForeignKeyValue(f.orderStatus))
	assert.Equal(t, "New", got.ForeignKeyValue(f.orderStatus).Get(f.statusCaption))

	_, err = f.store.Select(ctx, mustKey(t, f.dom, "order", int64(99)))
	require.ErrorIs(t, err, ErrNotFound)

	summary, err := f.store.Select(ctx, mustKey(t, f.dom, "customer_summary", 1))
	require.NoError(t, err)
	assert.Equal(t, "Acme", summary.Get(summary.Definition().Properties()[1]))
}

func TestStore_SelectWhere(t *testing.T) {
	f := newFixture(t)
	customer, _ := f.seed(t)
	ctx := context.Background()
	for _, amount := range []float64{3, 40} {
		_, err := f.store.Insert(ctx, f.entity(t, "order", map[string]any{"customer_fk": customer, "amount": amount}))
		require.NoError(t, err)
	}

	orders, err := f.store.SelectWhere(ctx, "order", "amount > ?", 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, []any{12.5, 40.0}, domain.Values(f.orderAmount, orders, true))
	for _, o := range orders {
		assert.True(t, o.IsLoaded(f.orderCustomer))
	}

	n, err := f.store.Count(ctx, "order", "customer_id = ?", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.store.SelectWhere(ctx, "nothing", "")
	require.ErrorIs(t, err, domain.ErrUndefinedEntity)

	byKeys, err := f.store.SelectByKeys(ctx, []*domain.Key{
		mustKey(t, f.dom, "order", int64(1)),
		mustKey(t, f.dom, "customer", 1),
		mustKey(t, f.dom, "order", int64(3)),
	})
	require.NoError(t, err)
	groups := domain.GroupByEntityID(byKeys)
	assert.Len(t, groups["order"], 2)
	assert.Len(t, groups["customer"], 1)
}

func TestStore_Update(t *testing.T) {
	f := newFixture(t)
	_, order := f.seed(t)
	ctx := context.Background()

	require.NoError(t, order.Put(f.orderAmount, 20.0))
	require.NoError(t, f.store.Update(ctx, order))
	assert.False(t, order.IsModified())
	assert.Equal(t, "tester", order.Get(f.orderUpdater))

	got, err := f.store.Select(ctx, order.Key())
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.Get(f.orderAmount))
	assert.Equal(t, "tester", got.Get(f.orderUpdater))

	t.Run("unmodified entities are skipped", func(t *testing.T) {
		require.NoError(t, f.store.Update(ctx, got))
	})

	t.Run("transient changes write nothing", func(t *testing.T) {
		require.NoError(t, got.Put(f.orderNote, "call first"))
		require.NoError(t, f.store.Update(ctx, got))
		assert.False(t, got.IsModified())
	})

	t.Run("missing row", func(t *testing.T) {
		gone := got.Copy()
		require.NoError(t, f.store.Delete(ctx, got.Key()))
		require.NoError(t, gone.Put(f.orderAmount, 1.0))
		require.ErrorIs(t, f.store.Update(ctx, gone), ErrNotFound)
	})
}

func TestStore_Delete(t *testing.T) {
	f := newFixture(t)
	_, order := f.seed(t)
	ctx := context.Background()

	require.NoError(t, f.store.Delete(ctx, order.Key()))
	_, err := f.store.Select(ctx, order.Key())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, f.store.Delete(ctx, order.Key()), ErrNotFound)
	require.ErrorIs(t, f.store.Delete(ctx, mustKey(t, f.dom, "customer_summary", 1)), ErrReadOnlyEntity)
}

func TestStore_StaticDataCache(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	first, err := f.store.SelectAll(ctx, "status")
	require.NoError(t, err)
	require.Len(t, first, 2)

	_, err = f.db.ExecContext(ctx, "INSERT INTO statuses (code, caption) VALUES ('void', 'Void')")
	require.NoError(t, err)
	cached, err := f.store.SelectAll(ctx, "status")
	require.NoError(t, err)
	assert.Len(t, cached, 2, "static data is served from the cache")
	require.NoError(t, cached[0].Put(f.statusCaption, "changed"))

	again, err := f.store.SelectAll(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, "New", again[0].Get(f.statusCaption), "cached entities are copied")

	_, err = f.store.Insert(ctx, f.entity(t, "status", map[string]any{"code": "sent", "caption": "Sent"}))
	require.NoError(t, err)
	fresh, err := f.store.SelectAll(ctx, "status")
	require.NoError(t, err)
	assert.Len(t, fresh, 4, "writes invalidate the cached type")
}

func TestStore_SequenceUnsupported(t *testing.T) {
	f := newFixture(t)
	x := f.store.executor(context.Background(), f.db)
	_, err := x.QueryInt64(x.SequenceQuery("orders_seq"))
	require.ErrorIs(t, err, ErrUnsupportedQuery)
}

func TestStore_LogsStatements(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	entries := f.logs.FilterMessage("sql").All()
	require.NotEmpty(t, entries)
	fields := entries[0].ContextMap()
	assert.Equal(t, "sqlite", fields["dialect"])
	assert.Contains(t, fields["statement"], "CREATE TABLE IF NOT EXISTS statuses")
}

func TestStore_ScanAndLoad(t *testing.T) {
	f := newFixture(t)
	_, order := f.seed(t)
	ctx := context.Background()

	rows, err := f.store.Scan(ctx, "order")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsLoaded(f.orderCustomer), "scan does not fetch references")
	assert.Equal(t, 1, rows[0].Get(f.orderCustomer.References()[0]))

	restored := rows[0].Copy()
	require.NoError(t, f.store.Delete(ctx, order.Key()))
	require.NoError(t, f.store.Load(ctx, restored))

	got, err := f.store.Select(ctx, order.Key())
	require.NoError(t, err)
	created, _ := domain.ValueOf[time.Time](got, f.orderCreated)
	assert.True(t, clock.Equal(created), "load keeps audit values")
	assert.Nil(t, got.Get(f.orderUpdater))

	summary := f.entity(t, "customer_summary", map[string]any{"id": 9, "name": "x"})
	require.ErrorIs(t, f.store.Load(ctx, summary), ErrReadOnlyEntity)
}
