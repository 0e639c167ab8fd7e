package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// shop is a small domain used across the package tests.
type shop struct {
	reg *Registry
	dom *Domain

	customer, order, person, line, lineNote *Definition

	custID        *ColumnProperty
	custName      *ColumnProperty
	custCreated   *AuditProperty
	custActive    *ColumnProperty
	custPicture   *ColumnProperty
	custRating    *ColumnProperty

	orderID        *ColumnProperty
	orderCustID    *ColumnProperty
	orderCustomer  *ForeignKeyProperty
	orderCustName  *DenormalizedProperty
	orderCustView  *DenormalizedViewProperty
	orderAmount    *ColumnProperty
	orderStatus    *ValueListProperty
	orderNote      *TransientProperty
	orderCreatedBy *AuditProperty

	personID    *ColumnProperty
	firstName   *ColumnProperty
	lastName    *ColumnProperty
	fullName    *DerivedProperty

	lineOrderID *ColumnProperty
	lineNo      *ColumnProperty
	lineOrder   *ForeignKeyProperty
	lineQty     *ColumnProperty

	noteID      *ColumnProperty
	noteOrderID *ColumnProperty
	noteLineNo  *ColumnProperty
	noteOrder   *ForeignKeyProperty
	noteLine    *ForeignKeyProperty
	noteText    *ColumnProperty
}

func concat(sources map[string]any) any {
	var parts []string
	for _, id := range []string{"first_name", "last_name"} {
		if s, ok := sources[id].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return strings.Join(parts, " ")
}

func newShop(t *testing.T) *shop {
	t.Helper()
	s := &shop{reg: NewRegistry(), dom: NewDomain("shop")}
	require.NoError(t, s.reg.Register(s.dom))

	s.custID = NewPrimaryKey("id", TypeInteger)
	s.custName = NewColumn("name", TypeString, Nullable(false), MaxLength(40), Caption("Name"))
	s.custCreated = NewAuditTime("created_at", AuditInsert)
	s.custActive = NewColumn("active", TypeBoolean, BooleanStorage(TypeString, "Y", "N"), Default(true))
	s.custPicture = NewColumn("picture", TypeBlob)
	s.custRating = NewColumn("rating", TypeInteger, Range(0, 5), ColumnHasDefault())
	var err error
	s.customer, err = s.dom.Define("customer",
		[]Property{s.custID, s.custName, s.custCreated, s.custActive, s.custPicture, s.custRating},
		TableName("customers"), OrderBy("name"))
	require.NoError(t, err)

	s.orderID = NewPrimaryKey("id", TypeLong)
	s.orderCustID = NewColumn("customer_id", TypeInteger)
	s.orderCustomer = NewForeignKey("customer_fk", "customer", []Column{s.orderCustID}, Nullable(false), Caption("Customer"))
	s.orderCustName = NewDenormalized("customer_name", "customer_fk", s.custName)
	s.orderCustView = NewDenormalizedView("customer_view", "customer_fk", s.custName)
	s.orderAmount = NewColumn("amount", TypeDouble, MaximumFractionDigits(2), Range(0, 1_000_000))
	s.orderStatus = NewValueList("status", TypeString, []Item{{Value: "new", Caption: "New"}, {Value: "paid", Caption: "Paid"}})
	s.orderNote = NewTransient("note", TypeString)
	s.orderCreatedBy = NewAuditUser("created_by", AuditInsert)
	s.order, err = s.dom.Define("order",
		[]Property{s.orderID, s.orderCustomer, s.orderCustName, s.orderCustView, s.orderAmount, s.orderStatus, s.orderNote, s.orderCreatedBy},
		TableName("orders"), WithKeyGenerator(IncrementKeyGenerator("orders", "id")))
	require.NoError(t, err)

	s.personID = NewPrimaryKey("id", TypeString)
	s.firstName = NewColumn("first_name", TypeString)
	s.lastName = NewColumn("last_name", TypeString)
	s.fullName = NewDerived("full_name", TypeString, concat, []string{"first_name", "last_name"})
	s.person, err = s.dom.Define("person", []Property{s.personID, s.firstName, s.lastName, s.fullName})
	require.NoError(t, err)

	s.lineOrderID = NewColumn("order_id", TypeLong, PrimaryKeyIndex(0))
	s.lineNo = NewColumn("line_no", TypeInteger, PrimaryKeyIndex(1))
	s.lineOrder = NewForeignKey("order_fk", "order", []Column{s.lineOrderID})
	s.lineQty = NewColumn("qty", TypeInteger, Nullable(false))
	s.line, err = s.dom.Define("line", []Property{s.lineOrder, s.lineNo, s.lineQty})
	require.NoError(t, err)

	s.noteID = NewPrimaryKey("id", TypeInteger)
	s.noteOrderID = NewColumn("order_id", TypeLong)
	s.noteLineNo = NewColumn("line_no", TypeInteger)
	s.noteOrder = NewForeignKey("order_fk", "order", []Column{s.noteOrderID})
	s.noteLine = NewForeignKey("line_fk", "line", []Column{NewMirror("order_id", TypeLong), s.noteLineNo})
	s.noteText = NewColumn("text", TypeString)
	s.lineNote, err = s.dom.Define("line_note", []Property{s.noteID, s.noteOrder, s.noteLine, s.noteText})
	require.NoError(t, err)

	require.NoError(t, s.dom.Seal())
	return s
}

func (s *shop) newCustomer(t *testing.T, id int, name string) *Entity {
	t.Helper()
	e, err := s.dom.Entity("customer")
	require.NoError(t, err)
	require.NoError(t, e.Put(s.custID, id))
	require.NoError(t, e.Put(s.custName, name))
	return e
}

func (s *shop) newOrder(t *testing.T, id int64, customer *Entity) *Entity {
	t.Helper()
	e, err := s.dom.Entity("order")
	require.NoError(t, err)
	require.NoError(t, e.Put(s.orderID, id))
	require.NoError(t, e.Put(s.orderCustomer, customer))
	return e
}
