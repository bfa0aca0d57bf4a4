package report

import (
	"context"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/arkilian/eventagg/internal/aggregate"
	"github.com/arkilian/eventagg/internal/engine"
	"github.com/arkilian/eventagg/internal/flatten"
	"github.com/arkilian/eventagg/pkg/types"
)

// itemRow is an item-grain row with the derived parent fields reports use.
type itemRow struct {
	flatten.ItemRow
	session types.SessionKey
	seq     int64
}

// eventID identifies the parent event of an item row by its date and its
// position in the partition scan, so events sharing user and timestamp
// stay distinct.
func (r itemRow) eventID() types.Value {
	return types.StringValue(r.EventDate + "\x1f" + strconv.FormatInt(r.seq, 10))
}

func (r itemRow) quantity() (decimal.Decimal, bool) {
	if r.Item == nil {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromInt(r.Item.Quantity), true
}

func (r itemRow) lineTotal() (decimal.Decimal, bool) {
	if r.Item == nil {
		return decimal.Decimal{}, false
	}
	return r.Item.LineTotal(), true
}

func (r itemRow) price() (decimal.Decimal, bool) {
	if r.Item == nil {
		return decimal.Decimal{}, false
	}
	return r.Item.Price, true
}

func (r itemRow) itemName() types.Value {
	if r.Item == nil {
		return types.Null()
	}
	return types.StringValue(r.Item.ItemName)
}

// ItemRollupRow summarizes purchases of one item.
type ItemRollupRow struct {
	ItemID         string          `json:"item_id"`
	ItemName       string          `json:"item_name"`
	Quantity       int64           `json:"quantity"`
	Revenue        decimal.Decimal `json:"revenue"`
	AvgPrice       Fixed           `json:"avg_price"`
	PurchaseEvents int64           `json:"purchase_events"`
	Purchasers     Count           `json:"purchasers"`
}

// ItemRollup flattens purchase events to item grain and aggregates per
// item_id. Purchases without items contribute nothing. Rows are ordered by
// revenue descending, then item_id.
func (r *Runner) ItemRollup(ctx context.Context, p Params) (*Output[ItemRollupRow], error) {
	res, err := engine.Run(ctx, r.engine, engine.Request[itemRow]{
		Name:       NameItemRollup,
		Range:      p.Range,
		EventNames: []string{types.EventPurchase},
		Map: func(f *engine.Fields) []itemRow {
			flat := flatten.Flatten(f.Event())
			rows := make([]itemRow, len(flat))
			for i := range flat {
				rows[i] = itemRow{ItemRow: flat[i], seq: f.Seq()}
			}
			return rows
		},
		NewTable: func() (*aggregate.Table[itemRow], error) {
			return aggregate.NewTable(
				func(row itemRow) []types.Value { return []types.Value{types.StringValue(row.Item.ItemID)} },
				aggregate.Concat("item_name", itemRow.itemName, " | ", false),
				aggregate.Sum("quantity", itemRow.quantity, true),
				aggregate.Sum("revenue", itemRow.lineTotal, true),
				aggregate.Avg("avg_price", itemRow.price),
				aggregate.CountDistinct("purchase_events", itemRow.eventID),
				aggregate.Distinct("purchasers",
					func(row itemRow) types.Value { return types.StringValue(row.UserPseudoID) },
					p.Approx, p.Precision),
			)
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Output[ItemRollupRow]{Report: NameItemRollup, Runs: []RunInfo{runInfo(res)}}
	for _, row := range res.Table.Rows() {
		out.Rows = append(out.Rows, ItemRollupRow{
			ItemID:         row.KeyValues[0].String(),
			ItemName:       row.Text("item_name"),
			Quantity:       row.Decimal("quantity").Decimal.IntPart(),
			Revenue:        row.Decimal("revenue").Decimal,
			AvgPrice:       Fixed{NullDecimal: row.Decimal("avg_price"), Places: 2},
			PurchaseEvents: row.Int("purchase_events"),
			Purchasers:     countOf(row, "purchasers"),
		})
	}
	sort.SliceStable(out.Rows, func(i, j int) bool {
		return out.Rows[i].Revenue.GreaterThan(out.Rows[j].Revenue)
	})
	return out, nil
}

// CartLine is one retained add_to_cart line.
type CartLine struct {
	ItemName       string `json:"item_name"`
	Quantity       int64  `json:"quantity"`
	EventTimestamp int64  `json:"event_timestamp"`
}

// SessionCartRow summarizes the add_to_cart activity of one session.
type SessionCartRow struct {
	UserPseudoID string          `json:"user_pseudo_id"`
	SessionID    int64           `json:"ga_session_id"`
	CartEvents   int64           `json:"cart_events"`
	ItemsAdded   int64           `json:"items_added"`
	CartValue    decimal.Decimal `json:"cart_value"`
	ItemNames    string          `json:"item_names"`
	TopLines     []CartLine      `json:"top_lines"`
}

// SessionCarts outer-flattens add_to_cart events and aggregates per session.
// An add_to_cart event without items still counts as a cart event. Events
// without a session id are skipped. TopLines keeps the TopK lines by
// quantity descending, earliest first on ties.
func (r *Runner) SessionCarts(ctx context.Context, p Params) (*Output[SessionCartRow], error) {
	lineOrder := []aggregate.OrderKey{{Index: 0, Desc: true}, {Index: 1}, {Index: 2}, {Index: 3}}

	res, err := engine.Run(ctx, r.engine, engine.Request[itemRow]{
		Name:       NameSessionCarts,
		Range:      p.Range,
		EventNames: []string{types.EventAddToCart},
		Map: func(f *engine.Fields) []itemRow {
			key, ok := f.Session()
			if !ok {
				return nil
			}
			flat := flatten.FlattenOuter(f.Event())
			rows := make([]itemRow, len(flat))
			for i := range flat {
				rows[i] = itemRow{ItemRow: flat[i], session: key, seq: f.Seq()}
			}
			return rows
		},
		NewTable: func() (*aggregate.Table[itemRow], error) {
			return aggregate.NewTable(
				func(row itemRow) []types.Value {
					return []types.Value{
						types.StringValue(row.session.UserPseudoID),
						types.IntValue(row.session.SessionID),
					}
				},
				aggregate.CountDistinct("cart_events", itemRow.eventID),
				aggregate.Sum("items_added", itemRow.quantity, true),
				aggregate.Sum("cart_value", itemRow.lineTotal, true),
				aggregate.Concat("item_names", itemRow.itemName, ", ", false),
				// timestamp and item position make the order total across partitions
				aggregate.TopK("top_lines", p.TopK, lineOrder, func(row itemRow) []types.Value {
					if row.Item == nil {
						return nil
					}
					return []types.Value{
						types.IntValue(row.Item.Quantity),
						types.IntValue(row.EventTimestamp),
						types.IntValue(int64(row.Index)),
						types.StringValue(row.Item.ItemName),
					}
				}),
			)
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Output[SessionCartRow]{Report: NameSessionCarts, Runs: []RunInfo{runInfo(res)}}
	for _, row := range res.Table.Rows() {
		sessionID, _ := row.KeyValues[1].AsInt()
		cart := SessionCartRow{
			UserPseudoID: row.KeyValues[0].String(),
			SessionID:    sessionID,
			CartEvents:   row.Int("cart_events"),
			ItemsAdded:   row.Decimal("items_added").Decimal.IntPart(),
			CartValue:    row.Decimal("cart_value").Decimal,
			ItemNames:    row.Text("item_names"),
		}
		for _, t := range row.Top("top_lines") {
			qty, _ := t[0].AsInt()
			ts, _ := t[1].AsInt()
			cart.TopLines = append(cart.TopLines, CartLine{ItemName: t[3].String(), Quantity: qty, EventTimestamp: ts})
		}
		out.Rows = append(out.Rows, cart)
	}
	return out, nil
}
