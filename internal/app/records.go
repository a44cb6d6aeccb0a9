package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/graaaaa/raidlog-companion/internal/items"
	"github.com/graaaaa/raidlog-companion/internal/raid"
	"github.com/graaaaa/raidlog-companion/internal/records"
)

// ErrNotFound is returned when an account, record index or match id does
// not exist.
var ErrNotFound = errors.New("not found")

// RecordsUsecase is the read-only query surface over archived records.
// Every method accepts either an account id or one of its player ids.
type RecordsUsecase interface {
	List(ctx context.Context, id string) ([]*raid.ArchivedRecord, error)
	ByIndex(ctx context.Context, id string, index int) (*raid.ArchivedRecord, error)
	ByMatchID(ctx context.Context, id, matchID string) (records.Entry, error)
	Page(ctx context.Context, id string, req records.PageRequest) (records.Page, error)
	BuybackQuote(ctx context.Context, id string, index int) (BuybackQuote, error)
}

// RecordReader defines store operations needed by RecordsService.
type RecordReader interface {
	Records(ctx context.Context, account string) []*raid.ArchivedRecord
	ByIndex(ctx context.Context, account string, i int) (*raid.ArchivedRecord, bool)
	ByMatchID(ctx context.Context, account, matchID string) (*raid.ArchivedRecord, int, bool)
	Page(ctx context.Context, account string, req records.PageRequest) (records.Page, error)
}

// AccountResolver maps player ids to accounts and lists known accounts.
type AccountResolver interface {
	Resolve(playerID string) (string, bool)
	Accounts() []string
}

// resolveAccount maps id to an account: a known player id first, then a
// known account id. Anything else is ErrNotFound and never reaches the
// record store.
func resolveAccount(r AccountResolver, id string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: account %q", ErrNotFound, id)
	}
	if account, ok := r.Resolve(id); ok {
		return account, nil
	}
	if slices.Contains(r.Accounts(), id) {
		return id, nil
	}
	return "", fmt.Errorf("%w: account %q", ErrNotFound, id)
}

// ItemValuer values item instances at current prices.
type ItemValuer interface {
	ValueOf(ctx context.Context, it items.Item) int64
}

// BuybackQuote prices an archived loadout at current market value. It is a
// quote only; charging the player is up to the caller.
type BuybackQuote struct {
	MatchID string      `json:"matchId"`
	Index   int         `json:"index"`
	Total   int64       `json:"total"`
	Lines   []QuoteLine `json:"lines"`
}

// QuoteLine is one priced loadout item.
type QuoteLine struct {
	ItemID string `json:"itemId"`
	Tpl    string `json:"tpl"`
	Value  int64  `json:"value"`
}

// RecordsService implements RecordsUsecase.
type RecordsService struct {
	Store    RecordReader
	Accounts AccountResolver
	Valuer   ItemValuer
}

// List returns all archived records, oldest first.
func (s *RecordsService) List(ctx context.Context, id string) ([]*raid.ArchivedRecord, error) {
	account, err := resolveAccount(s.Accounts, id)
	if err != nil {
		return nil, err
	}
	return s.Store.Records(ctx, account), nil
}

// ByIndex returns the record at index; negative indexes count from the end.
func (s *RecordsService) ByIndex(ctx context.Context, id string, index int) (*raid.ArchivedRecord, error) {
	account, err := resolveAccount(s.Accounts, id)
	if err != nil {
		return nil, err
	}
	rec, ok := s.Store.ByIndex(ctx, account, index)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ByMatchID returns the record of matchID with its index.
func (s *RecordsService) ByMatchID(ctx context.Context, id, matchID string) (records.Entry, error) {
	account, err := resolveAccount(s.Accounts, id)
	if err != nil {
		return records.Entry{}, err
	}
	rec, i, ok := s.Store.ByMatchID(ctx, account, matchID)
	if !ok {
		return records.Entry{}, ErrNotFound
	}
	return records.Entry{Index: i, Record: rec}, nil
}

// Page returns one filtered page.
func (s *RecordsService) Page(ctx context.Context, id string, req records.PageRequest) (records.Page, error) {
	account, err := resolveAccount(s.Accounts, id)
	if err != nil {
		return records.Page{}, err
	}
	return s.Store.Page(ctx, account, req)
}

// BuybackQuote revalues the loadout of the record at index.
func (s *RecordsService) BuybackQuote(ctx context.Context, id string, index int) (BuybackQuote, error) {
	account, err := resolveAccount(s.Accounts, id)
	if err != nil {
		return BuybackQuote{}, err
	}
	rec, ok := s.Store.ByIndex(ctx, account, index)
	if !ok {
		return BuybackQuote{}, ErrNotFound
	}
	if index < 0 {
		index += len(s.Store.Records(ctx, account))
	}

	q := BuybackQuote{MatchID: rec.MatchID, Index: index, Lines: make([]QuoteLine, 0, len(rec.Loadout))}
	for _, it := range rec.Loadout {
		v := s.Valuer.ValueOf(ctx, it)
		q.Lines = append(q.Lines, QuoteLine{ItemID: it.ID, Tpl: it.Tpl, Value: v})
		q.Total += v
	}
	return q, nil
}
