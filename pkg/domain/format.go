package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultMaximumFractionDigits applies to double properties without an
// explicit setting.
const DefaultMaximumFractionDigits = 10

// Format renders a property value for display.
type Format interface {
	Format(v any) string
}

// NumberFormat formats numeric values. Grouping inserts thousands separators
// for Tag, which defaults to English.
type NumberFormat struct {
	MaximumFractionDigits int
	Grouping              bool
	Tag                   language.Tag
}

// Format implements Format.
func (f *NumberFormat) Format(v any) string {
	if v == nil {
		return ""
	}
	x, ok := toFloat64(v)
	if !ok {
		return fmt.Sprint(v)
	}
	_, integral := toInt64(v)
	if !f.Grouping {
		if integral {
			return strconv.FormatFloat(x, 'f', 0, 64)
		}
		return strconv.FormatFloat(round(x, f.MaximumFractionDigits), 'f', -1, 64)
	}
	tag := f.Tag
	if tag == language.Und {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	if integral {
		return p.Sprint(number.Decimal(x, number.MaxFractionDigits(0)))
	}
	return p.Sprint(number.Decimal(x, number.MaxFractionDigits(f.MaximumFractionDigits)))
}

// DateFormat formats temporal values with a Go time layout.
type DateFormat struct {
	Layout string
}

// Format implements Format.
func (f *DateFormat) Format(v any) string {
	tm, ok := v.(time.Time)
	if !ok {
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
	return tm.Format(f.Layout)
}

// round rounds x half away from zero to digits fraction digits.
func round(x float64, digits int) float64 {
	if digits < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	pow := math.Pow10(digits)
	// Beyond 2^53 a float64 has no fraction digits left to round.
	if math.Abs(x)*pow >= 1<<53 {
		return x
	}
	return math.Round(x*pow) / pow
}

func defaultFormat(t ValueType) Format {
	switch t {
	case TypeInteger, TypeLong:
		return &NumberFormat{}
	case TypeDouble:
		return &NumberFormat{MaximumFractionDigits: DefaultMaximumFractionDigits}
	case TypeDate:
		return &DateFormat{Layout: DateLayout}
	case TypeTimestamp:
		return &DateFormat{Layout: "2006-01-02 15:04:05"}
	case TypeTime:
		return &DateFormat{Layout: TimeLayout}
	}
	return nil
}
