package storage

import (
	"context"

	"gorm.io/gorm"

	"whalecopy/internal/errors"
	"whalecopy/internal/order"
	"whalecopy/internal/position"
	"whalecopy/internal/schema"
)

// Store is the relational persistence collaborator. It implements both
// the order store and the position store over one gorm connection.
type Store struct {
	db *gorm.DB
}

var (
	_ order.Store    = (*Store)(nil)
	_ position.Store = (*Store)(nil)
)

// NewStore wraps an open gorm connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&OrderRecord{},
		&OrderTransitionRecord{},
		&PositionRecord{},
		&PositionUpdateRecord{},
	)
}

// Create inserts a new order row.
func (s *Store) Create(ctx context.Context, o *order.ManagedOrder) error {
	rec := toOrderRecord(o)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrap(err, "insert order")
	}
	return nil
}

// SaveTransition writes the new order state and the transition record
// in a single transaction. Neither is durable without the other.
func (s *Store) SaveTransition(ctx context.Context, o *order.ManagedOrder, rec order.TransitionRecord) error {
	orderRec := toOrderRecord(o)
	transition := OrderTransitionRecord{
		OrderID:   o.ID,
		FromState: string(rec.From),
		ToState:   string(rec.To),
		Reason:    rec.Reason,
		At:        rec.At,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&orderRec).Error; err != nil {
			return err
		}
		return tx.Create(&transition).Error
	})
	if err != nil {
		return errors.Wrap(err, "save transition")
	}
	return nil
}

// SaveFill updates the order row without a transition record.
func (s *Store) SaveFill(ctx context.Context, o *order.ManagedOrder) error {
	rec := toOrderRecord(o)
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return errors.Wrap(err, "save order fill")
	}
	return nil
}

// ListOpen loads every non-terminal order with its transition log, for
// crash recovery.
func (s *Store) ListOpen(ctx context.Context) ([]*order.ManagedOrder, error) {
	var recs []OrderRecord
	terminal := []string{
		string(order.StateConfirmed),
		string(order.StateCancelled),
		string(order.StateDeadLetter),
	}
	if err := s.db.WithContext(ctx).Where("state NOT IN ?", terminal).Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "list open orders")
	}

	out := make([]*order.ManagedOrder, 0, len(recs))
	for _, rec := range recs {
		o := fromOrderRecord(rec)
		var transitions []OrderTransitionRecord
		if err := s.db.WithContext(ctx).Where("order_id = ?", rec.ID).Order("id").Find(&transitions).Error; err != nil {
			return nil, errors.Wrap(err, "load order transitions")
		}
		for _, t := range transitions {
			o.Transitions = append(o.Transitions, order.TransitionRecord{
				From:   order.State(t.FromState),
				To:     order.State(t.ToState),
				Reason: t.Reason,
				At:     t.At,
			})
		}
		out = append(out, o)
	}
	return out, nil
}

// SavePosition upserts a position snapshot.
func (s *Store) SavePosition(ctx context.Context, p position.Position) error {
	rec := toPositionRecord(p)
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return errors.Wrap(err, "save position")
	}
	return nil
}

// AppendUpdate inserts one position audit entry.
func (s *Store) AppendUpdate(ctx context.Context, u position.Update) error {
	rec := PositionUpdateRecord{
		PositionID: u.PositionID,
		Kind:       u.Kind,
		Price:      u.Price,
		Size:       u.Size,
		PnL:        u.PnL,
		Reason:     u.Reason,
		At:         u.At,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrap(err, "append position update")
	}
	return nil
}

func toOrderRecord(o *order.ManagedOrder) OrderRecord {
	return OrderRecord{
		ID:              o.ID,
		IdempotencyKey:  o.IdempotencyKey,
		MarketID:        o.MarketID,
		TokenID:         o.TokenID,
		Side:            o.Side.String(),
		Kind:            o.Kind.String(),
		Size:            o.Size,
		Price:           o.Price,
		State:           string(o.State),
		ExchangeOrderID: o.ExchangeOrderID,
		FilledSize:      o.FilledSize,
		AvgFillPrice:    o.AvgFillPrice,
		RetryCount:      o.RetryCount,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func fromOrderRecord(rec OrderRecord) *order.ManagedOrder {
	return &order.ManagedOrder{
		ID:              rec.ID,
		IdempotencyKey:  rec.IdempotencyKey,
		MarketID:        rec.MarketID,
		TokenID:         rec.TokenID,
		Side:            schema.ParseSide(rec.Side),
		Kind:            schema.ParseOrderKind(rec.Kind),
		Size:            rec.Size,
		Price:           rec.Price,
		State:           order.State(rec.State),
		ExchangeOrderID: rec.ExchangeOrderID,
		FilledSize:      rec.FilledSize,
		AvgFillPrice:    rec.AvgFillPrice,
		RetryCount:      rec.RetryCount,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func toPositionRecord(p position.Position) PositionRecord {
	return PositionRecord{
		ID:              p.ID,
		WhaleAddress:    p.WhaleAddress,
		MarketID:        p.MarketID,
		TokenID:         p.TokenID,
		Category:        p.Category,
		Side:            p.Side.String(),
		EntrySize:       p.EntrySize,
		EntryPrice:      p.EntryPrice,
		EntryAmount:     p.EntryAmount,
		CurrentSize:     p.CurrentSize,
		CurrentPrice:    p.CurrentPrice,
		MarketValue:     p.MarketValue,
		UnrealizedPnL:   p.UnrealizedPnL,
		RealizedPnL:     p.RealizedPnL,
		StopLossPrice:   p.StopLossPrice,
		TakeProfitPrice: p.TakeProfitPrice,
		TrailingActive:  p.TrailingActive,
		TrailingStop:    p.TrailingStop,
		MaxProfit:       p.MaxProfit,
		MaxDrawdown:     p.MaxDrawdown,
		Status:          string(p.Status),
		CloseReason:     p.CloseReason,
		OpenedAt:        p.OpenedAt,
		UpdatedAt:       p.UpdatedAt,
		ClosedAt:        p.ClosedAt,
	}
}
