package pg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

func TestURL(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")
	_, err := URL("")
	require.ErrorIs(t, err, ErrNoDatabaseURL)

	got, err := URL("postgres://flag")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag", got)

	t.Setenv(EnvDatabaseURL, "postgres://env")
	got, err = URL("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", got)
}

func inventory(t *testing.T) *domain.Domain {
	t.Helper()
	d := domain.NewDomain("inventory")
	_, err := d.Define("item", []domain.Property{
		domain.NewPrimaryKey("id", domain.TypeLong),
		domain.NewColumn("name", domain.TypeString, domain.Nullable(false)),
		domain.NewColumn("in_stock", domain.TypeBoolean, domain.Default(true)),
		domain.NewColumn("added", domain.TypeTimestamp),
	}, domain.TableName("items"), domain.OrderBy("id"),
		domain.WithKeyGenerator(domain.AutomaticKeyGenerator("items_id_seq")))
	require.NoError(t, err)
	itemID := domain.NewColumn("item_id", domain.TypeLong)
	_, err = d.Define("tag", []domain.Property{
		domain.NewPrimaryKey("id", domain.TypeInteger),
		itemID,
		domain.NewForeignKey("item_fk", "item", []domain.Column{itemID}, domain.Nullable(false)),
		domain.NewColumn("label", domain.TypeString),
	}, domain.TableName("tags"),
		domain.WithKeyGenerator(domain.SequenceKeyGenerator("tag_seq")))
	require.NoError(t, err)
	return d
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("domainkit"),
		postgres.WithUsername("domainkit"),
		postgres.WithPassword("domainkit"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	d := inventory(t)
	st, err := Connect(ctx, url, d, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.DB().Close() })
	require.NoError(t, ApplySchema(ctx, st.DB(), d, zaptest.NewLogger(t)), "schema is idempotent")
	_, err = st.DB().ExecContext(ctx, "create sequence if not exists tag_seq")
	require.NoError(t, err)

	item, err := d.DefaultEntity("item")
	require.NoError(t, err)
	name, _ := d.Property("item", "name")
	added, _ := d.Property("item", "added")
	now := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	require.NoError(t, item.Put(name, "bolt"))
	require.NoError(t, item.Put(added, now))
	keys, err := st.Insert(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(1), keys[0].Value(), "identity value read back")

	pool, err := NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tag, err := d.Entity("tag")
	require.NoError(t, err)
	fk, _ := d.ForeignKey("tag", "item_fk")
	require.NoError(t, tag.Put(fk, item))
	require.NoError(t, ReserveKeys(ctx, pool, tag))
	reserved := tag.Key().Value()
	require.NotNil(t, reserved)
	_, err = st.Insert(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, reserved, tag.Key().Value(), "reserved keys are kept")

	got, err := st.Select(ctx, tag.Key())
	require.NoError(t, err)
	ref := got.ForeignKeyValue(fk)
	require.NotNil(t, ref)
	assert.Equal(t, "bolt", ref.Get(name))
	assert.Equal(t, true, ref.Get(d.Definitions()[0].Columns()[2]))
	ts, ok := domain.ValueOf[time.Time](ref, added)
	require.True(t, ok)
	assert.True(t, now.Equal(ts))
}
