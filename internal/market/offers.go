package market

import (
	"context"
	"fmt"
)

// Seller types.
const (
	SellerPlayer = "player"
	SellerTrader = "trader"
)

// Offer is one market listing. Price is the total asking price for
// Quantity units.
type Offer struct {
	ID         string `json:"id"`
	Tpl        string `json:"tpl"`
	Price      int64  `json:"price"`
	Quantity   int64  `json:"quantity"`
	SellerType string `json:"sellerType"`
	Barter     bool   `json:"barter"`
}

func (o Offer) validate() error {
	switch {
	case o.ID == "" || o.Tpl == "":
		return fmt.Errorf("%w: missing id or tpl", ErrInvalidOffer)
	case o.Quantity <= 0:
		return fmt.Errorf("%w: %s quantity %d", ErrInvalidOffer, o.ID, o.Quantity)
	case o.Price < 0:
		return fmt.Errorf("%w: %s negative price", ErrInvalidOffer, o.ID)
	}
	return nil
}

// ReplaceOffers replaces every offer for tpl with offers.
func (s *Store) ReplaceOffers(ctx context.Context, tpl string, offers []Offer) error {
	return s.replaceOffers(ctx, "DELETE FROM offers WHERE tpl = ?", []any{tpl}, offers)
}

// ReplaceAllOffers clears the offers table and inserts offers.
func (s *Store) ReplaceAllOffers(ctx context.Context, offers []Offer) error {
	return s.replaceOffers(ctx, "DELETE FROM offers", nil, offers)
}

func (s *Store) replaceOffers(ctx context.Context, del string, args []any, offers []Offer) error {
	for _, o := range offers {
		if err := o.validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("delete offers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO offers (id, tpl, price, quantity, seller_type, barter, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	stamp := s.now().UTC().Format(TimeFormat)
	for _, o := range offers {
		if _, err := stmt.ExecContext(ctx, o.ID, o.Tpl, o.Price, o.Quantity, o.SellerType, o.Barter, stamp); err != nil {
			return fmt.Errorf("insert offer %s: %w", o.ID, err)
		}
	}

	return tx.Commit()
}

// Offers returns all listings for tpl ordered by id.
func (s *Store) Offers(ctx context.Context, tpl string) ([]Offer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tpl, price, quantity, seller_type, barter
		FROM offers WHERE tpl = ? ORDER BY id`, tpl)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		var o Offer
		if err := rows.Scan(&o.ID, &o.Tpl, &o.Price, &o.Quantity, &o.SellerType, &o.Barter); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountOffers returns the number of stored offers.
func (s *Store) CountOffers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM offers").Scan(&n)
	return n, err
}
