package db

import (
	"context"
	"fmt"
	"time"
)

// PriceInsert is one append-only price observation.
type PriceInsert struct {
	StoreID               int64
	RunID                 int64
	Price                 float64
	PromoPrice            *float64
	PromoText             *string
	PromoEndsAt           *time.Time
	MemberOnly            bool
	PricePer100ML         *float64
	StandardDrinks        *float64
	PricePerStandardDrink *float64
	SourceTS              time.Time
}

// CommitParams carries one resolved record into its commit transaction.
// ProductID zero means the record resolved to a new product and Product is
// inserted (or the concurrent winner re-read) inside the same transaction.
type CommitParams struct {
	RetailerID      int64
	ProductID       int64
	Product         NewProduct
	SourceProductID *string
	Price           PriceInsert
}

// CommitResult reports what the commit transaction actually wrote.
type CommitResult struct {
	ProductID      int64
	ProductCreated bool
	PriceInserted  bool
}

// insertPriceIfAbsent appends the price row unless one already exists for
// (store, product, source_ts). Replays hit the conflict and report false.
func insertPriceIfAbsent(ctx context.Context, q Querier, productID int64, price PriceInsert) (bool, error) {
	const insertQ = `
INSERT INTO catalog.price_records
	(store_id, product_id, run_id, price, promo_price, promo_text, promo_ends_at, member_only,
	 price_per_100ml, standard_drinks, price_per_standard_drink, source_ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (store_id, product_id, source_ts) DO NOTHING`

	tag, err := q.Exec(ctx, insertQ,
		price.StoreID,
		productID,
		price.RunID,
		price.Price,
		price.PromoPrice,
		price.PromoText,
		price.PromoEndsAt,
		price.MemberOnly,
		price.PricePer100ML,
		price.StandardDrinks,
		price.PricePerStandardDrink,
		price.SourceTS.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert price record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CommitListing runs the single-record write transaction: resolve or create
// the product, attach the retailer's source id, append the price row. The
// transaction either lands whole or not at all.
func (p *Pool) CommitListing(ctx context.Context, params CommitParams) (CommitResult, error) {
	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return CommitResult{}, fmt.Errorf("begin commit transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	result := CommitResult{ProductID: params.ProductID}
	if result.ProductID == 0 {
		productID, created, err := insertProductIfAbsent(ctx, tx, params.Product)
		if err != nil {
			return CommitResult{}, err
		}
		result.ProductID = productID
		result.ProductCreated = created
	}

	if params.SourceProductID != nil && *params.SourceProductID != "" {
		if err := attachSourceID(ctx, tx, params.RetailerID, result.ProductID, *params.SourceProductID); err != nil {
			return CommitResult{}, err
		}
	}

	inserted, err := insertPriceIfAbsent(ctx, tx, result.ProductID, params.Price)
	if err != nil {
		return CommitResult{}, err
	}
	result.PriceInserted = inserted

	if err := tx.Commit(ctx); err != nil {
		return CommitResult{}, fmt.Errorf("commit listing transaction: %w", err)
	}
	return result, nil
}
