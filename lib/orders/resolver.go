package orders

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cychen2021/walmart-receipt-crawler/lib/browser"
)

var tracer = otel.Tracer("orders")

// OrdersURL is the account order list view.
const OrdersURL = "https://www.walmart.com/orders"

// Variant is a query-parameter shape for a detail-page address.
// Walmart's routing is inconsistent: in-store purchases often 404 on the
// canonical address and need extra parameters.
type Variant int

const (
	VariantCanonical Variant = iota
	VariantGroup
	VariantGroupStore
)

func (v Variant) String() string {
	switch v {
	case VariantCanonical:
		return "canonical"
	case VariantGroup:
		return "groupId=0"
	case VariantGroupStore:
		return "groupId=0&storePurchase=true"
	default:
		return "unknown"
	}
}

func (v Variant) query() url.Values {
	q := url.Values{}
	switch v {
	case VariantGroup:
		q.Set("groupId", "0")
	case VariantGroupStore:
		q.Set("groupId", "0")
		q.Set("storePurchase", "true")
	}
	return q
}

// candidate variants in strict priority order, keyed by order kind.
// further variants may be appended without changing the contract.
var variantsByKind = map[Kind][]Variant{
	KindStandard:      {VariantCanonical, VariantGroup, VariantGroupStore},
	KindStorePurchase: {VariantCanonical, VariantGroup, VariantGroupStore},
	KindUnknown:       {VariantCanonical, VariantGroup, VariantGroupStore},
}

// Prober checks whether an address serves a usable detail page.
type Prober interface {
	Status(ctx context.Context, address string) (browser.Status, error)
}

// Resolver turns an order identifier into a working detail-page address
// by trying candidate variants in a fixed priority order.
type Resolver struct {
	Prober Prober
	// base URL override for tests; OrdersURL when empty
	BaseURL string
}

func (r Resolver) candidates(id string, kind Kind) []DetailAddress {
	base := r.BaseURL
	if base == "" {
		base = OrdersURL
	}
	variants := variantsByKind[kind]

	out := make([]DetailAddress, 0, len(variants))
	for _, v := range variants {
		addr := fmt.Sprintf("%s/%s", base, url.PathEscape(id))
		if q := v.query(); len(q) > 0 {
			addr += "?" + q.Encode()
		}
		out = append(out, DetailAddress{URL: addr, Variant: v})
	}
	return out
}

// Resolve returns the first candidate address whose page loads without
// an error or not-found indicator. Candidates are tried strictly in
// priority order and the earliest success always wins; a later variant
// is never preferred. When every candidate fails it returns a
// *ResolutionExhaustedError listing the attempted addresses.
func (r Resolver) Resolve(ctx context.Context, id string, kind Kind) (DetailAddress, error) {
	ctx, span := tracer.Start(ctx, "resolver:Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", id),
		attribute.String("kind", kind.String()),
	)

	candidates := r.candidates(id, kind)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return DetailAddress{}, err
		}

		status, err := r.Prober.Status(ctx, c.URL)
		if err != nil {
			// a transport failure just disqualifies this candidate
			slog.Warn("detail address probe failed",
				"order_id", id, "variant", c.Variant.String(), "err", err)
			continue
		}
		slog.Debug("probed detail address",
			"order_id", id, "variant", c.Variant.String(), "status", status.String())
		if status == browser.StatusOK {
			span.SetAttributes(attribute.String("resolved_variant", c.Variant.String()))
			return c, nil
		}
	}

	span.SetStatus(codes.Error, "all variants exhausted")
	return DetailAddress{}, &ResolutionExhaustedError{OrderID: id, Attempted: candidates}
}
