// Package sequence issues per-month document numbers such as INV-2024/05/0001.
//
// Numbers come from a counter row per (kind, month) that is incremented with a
// single upsert on the caller's transaction, so a number is only consumed when
// the document that carries it commits.
package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Kind identifies a numbered document type.
type Kind string

const (
	KindPurchase      Kind = "purchase"
	KindPurchaseOrder Kind = "purchase_order"
	KindShipment      Kind = "shipment"
	KindWaybill       Kind = "waybill"
	KindReceipt       Kind = "receipt"
	KindPayment       Kind = "payment"
	KindInvoice       Kind = "invoice"
)

var prefixes = map[Kind]string{
	KindPurchase:      "P-",
	KindPurchaseOrder: "PO-",
	KindShipment:      "SHP-",
	KindWaybill:       "WB-",
	KindReceipt:       "RCV-",
	KindPayment:       "PAY-",
	KindInvoice:       "INV-",
}

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindPurchase, KindPurchaseOrder, KindShipment, KindWaybill, KindReceipt, KindPayment, KindInvoice}
}

// Prefix returns the document prefix for k.
func (k Kind) Prefix() string {
	return prefixes[k]
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := prefixes[k]
	return ok
}

// ParseKind accepts a kind name ("invoice") or its bare prefix ("INV").
func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	if k.Valid() {
		return k, nil
	}
	for kind, prefix := range prefixes {
		if prefix == raw+"-" || prefix == raw {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, raw)
}

// Period is the counter scope for at, e.g. "2024-05".
func Period(at time.Time) string {
	return at.Format("2006-01")
}

// Format renders {PREFIX}{YYYY}/{MM}/{NNNN}. Sequences above 9999 keep growing.
func Format(kind Kind, at time.Time, seq int64) string {
	return fmt.Sprintf("%s%04d/%02d/%04d", kind.Prefix(), at.Year(), int(at.Month()), seq)
}

// Number is a parsed document number.
type Number struct {
	Kind     Kind
	Year     int
	Month    time.Month
	Sequence int64
}

var numberPattern = regexp.MustCompile(`^([A-Z]+-)(\d{4})/(\d{2})/(\d{4,})$`)

// Parse splits a formatted number into its parts.
func Parse(number string) (Number, error) {
	m := numberPattern.FindStringSubmatch(number)
	if m == nil {
		return Number{}, fmt.Errorf("%w: malformed document number %q", shared.ErrValidation, number)
	}
	kind, err := ParseKind(m[1])
	if err != nil {
		return Number{}, err
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return Number{}, fmt.Errorf("%w: month out of range in %q", shared.ErrValidation, number)
	}
	seq, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil || seq <= 0 {
		return Number{}, fmt.Errorf("%w: sequence out of range in %q", shared.ErrValidation, number)
	}
	return Number{Kind: kind, Year: year, Month: time.Month(month), Sequence: seq}, nil
}
