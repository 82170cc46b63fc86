package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/cache"
	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/domain"
	"github.com/predictru/backend/internal/repository"
)

const (
	// placeRetries bounds re-runs of a placement that lost a deadlock race.
	placeRetries = 3

	bookCacheTTL = time.Second

	defaultTradesLimit = 50
	maxTradesLimit     = 100
	userOrdersLimit    = 100
)

// ──────────────────────────────────────────────────────────────────────────────
// Result types
// ──────────────────────────────────────────────────────────────────────────────

// PlaceOrderResult reports the immediate outcome of a placement, including
// fills executed synchronously during matching.
type PlaceOrderResult struct {
	OrderID        uuid.UUID          `json:"order_id"`
	Status         domain.OrderStatus `json:"status"`
	FilledQuantity decimal.Decimal    `json:"filled_quantity"`
	Remaining      decimal.Decimal    `json:"remaining"`
	FillsCount     int                `json:"fills_count"`
}

// CancelOrderResult reports a cancellation and how much quantity was unwound.
type CancelOrderResult struct {
	OrderID           uuid.UUID       `json:"order_id"`
	CancelledQuantity decimal.Decimal `json:"cancelled_quantity"`
}

// ──────────────────────────────────────────────────────────────────────────────
// OrderBookService
// ──────────────────────────────────────────────────────────────────────────────

// OrderBookService runs the CLOB venue: placement with collateral
// reservation, price-time matching, the three settlement modes, and
// cancellation. Placement locks rows in the order user → market → counterparty
// → positions; the market row lock serializes matching per market.
type OrderBookService struct {
	db          *sqlx.DB
	orderRepo   *repository.OrderRepository
	marketRepo  *repository.MarketRepository
	userRepo    *repository.UserRepository
	posRepo     *repository.PositionRepository
	txRepo      *repository.TransactionRepository
	cache       *cache.Client
	cfg         *config.Config
	broadcaster Broadcaster // injected after the WS hub is built
}

// NewOrderBookService creates an OrderBookService.
func NewOrderBookService(
	db *sqlx.DB,
	orderRepo *repository.OrderRepository,
	marketRepo *repository.MarketRepository,
	userRepo *repository.UserRepository,
	posRepo *repository.PositionRepository,
	txRepo *repository.TransactionRepository,
	cacheClient *cache.Client,
	cfg *config.Config,
) *OrderBookService {
	return &OrderBookService{
		db:         db,
		orderRepo:  orderRepo,
		marketRepo: marketRepo,
		userRepo:   userRepo,
		posRepo:    posRepo,
		txRepo:     txRepo,
		cache:      cacheClient,
		cfg:        cfg,
	}
}

// SetBroadcaster injects the WS hub dependency post-construction.
func (s *OrderBookService) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// Placement
// ──────────────────────────────────────────────────────────────────────────────

// PlaceOrder reserves collateral, creates a limit order, and matches it
// against the book. Two concurrent placements can lock the same pair of users
// in opposite order; Postgres resolves that by aborting one, so the losing
// attempt is retried from scratch a bounded number of times.
func (s *OrderBookService) PlaceOrder(ctx context.Context, userID, marketID uuid.UUID, intent domain.OrderIntent, price, quantity decimal.Decimal) (*PlaceOrderResult, error) {
	// ── 1. Input validation, before any locks ────────────────────────────────
	if !intent.IsValid() {
		return nil, domain.ErrInvalidIntent
	}
	if price.LessThan(domain.MinBookPrice) || price.GreaterThan(domain.MaxBookPrice) {
		return nil, domain.ErrPriceOutOfRange
	}
	if !quantity.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}

	// ── 2. Run the placement transaction with deadlock retries ───────────────
	var (
		res *PlaceOrderResult
		err error
	)
	for attempt := 0; attempt <= placeRetries; attempt++ {
		res, err = s.placeOrder(ctx, userID, marketID, intent, price, quantity)
		if err == nil || !repository.IsRetryable(err) {
			break
		}
	}
	return res, err
}

// placeOrder is one attempt at the placement transaction.
func (s *OrderBookService) placeOrder(ctx context.Context, userID, marketID uuid.UUID, intent domain.OrderIntent, price, quantity decimal.Decimal) (*PlaceOrderResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("orderbook_service.PlaceOrder: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock the user ─────────────────────────────────────────────────────
	user, err := s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("orderbook_service.PlaceOrder: lock user: %w", err)
	}

	// ── 2. Lock the market and check the venue ───────────────────────────────
	market, err := s.marketRepo.GetForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("orderbook_service.PlaceOrder: lock market: %w", err)
	}
	if !market.IsOpen() {
		err = domain.ErrMarketNotOpen
		return nil, err
	}
	if market.Mechanism != domain.MechanismCLOB {
		err = domain.ErrWrongMechanism
		return nil, err
	}

	// ── 3. Translate the intent and reserve collateral ───────────────────────
	// Buy intents lock PRC at the intent price; sell intents lock shares.
	side, bookPrice := domain.TranslateIntent(intent, price)
	if intent.ReservesPRC() {
		required := domain.RoundPRC(price.Mul(quantity))
		if user.Available().LessThan(required) {
			err = domain.ErrInsufficientBalance
			return nil, err
		}
		if err = s.userRepo.ReserveBalance(ctx, tx, user.ID, required); err != nil {
			return nil, fmt.Errorf("orderbook_service.PlaceOrder: reserve balance: %w", err)
		}
	} else {
		var pos *domain.Position
		pos, _, err = s.posRepo.GetOrCreateForUpdate(ctx, tx, user.ID, market.ID, intent.Outcome())
		if err != nil {
			return nil, fmt.Errorf("orderbook_service.PlaceOrder: lock position: %w", err)
		}
		if err = s.posRepo.ReserveShares(ctx, tx, pos.ID, quantity); err != nil {
			return nil, err
		}
	}

	// ── 4. Create the order ──────────────────────────────────────────────────
	now := time.Now().UTC()
	order := &domain.Order{
		ID:             uuid.New(),
		UserID:         user.ID,
		MarketID:       market.ID,
		Side:           side,
		Price:          bookPrice,
		Quantity:       quantity,
		FilledQuantity: decimal.Zero,
		Status:         domain.OrderOpen,
		OriginalIntent: intent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err = s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("orderbook_service.PlaceOrder: %w", err)
	}

	// ── 5. Match against the resting book ────────────────────────────────────
	var fills int
	fills, err = s.matchOrder(ctx, tx, market, order)
	if err != nil {
		return nil, fmt.Errorf("orderbook_service.PlaceOrder: match: %w", err)
	}
	if fills > 0 {
		if err = s.marketRepo.UpdateTradeState(ctx, tx, market); err != nil {
			return nil, fmt.Errorf("orderbook_service.PlaceOrder: %w", err)
		}
	}

	// ── 6. Commit ────────────────────────────────────────────────────────────
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("orderbook_service.PlaceOrder: commit: %w", err)
	}

	// ── 7. Caches and broadcasts off the hot path ────────────────────────────
	go s.postPlaceAsync(market.ID, fills > 0)

	return &PlaceOrderResult{
		OrderID:        order.ID,
		Status:         order.Status,
		FilledQuantity: order.FilledQuantity,
		Remaining:      order.Remaining(),
		FillsCount:     fills,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Matching
// ──────────────────────────────────────────────────────────────────────────────

// matchOrder walks crossing counter-orders in price-time priority and fills
// the incoming order until it is exhausted or the book runs out. Fills execute
// at the resting order's price. Returns the number of fills.
func (s *OrderBookService) matchOrder(ctx context.Context, tx *sqlx.Tx, market *domain.Market, incoming *domain.Order) (int, error) {
	var (
		counters []*domain.Order
		err      error
	)
	if incoming.Side == domain.SideBuy {
		counters, err = s.orderRepo.MatchableSells(ctx, tx, market.ID, incoming.Price, incoming.UserID)
	} else {
		counters, err = s.orderRepo.MatchableBuys(ctx, tx, market.ID, incoming.Price, incoming.UserID)
	}
	if err != nil {
		return 0, err
	}

	fills := 0
	for _, resting := range counters {
		if !incoming.Remaining().IsPositive() {
			break
		}
		qty := decimal.Min(incoming.Remaining(), resting.Remaining())
		if !qty.IsPositive() {
			continue
		}
		// The placing user's row is already locked; lock the counterparty.
		if _, err := s.userRepo.GetForUpdate(ctx, tx, resting.UserID); err != nil {
			return fills, fmt.Errorf("lock counterparty: %w", err)
		}
		if err := s.executeFill(ctx, tx, market, incoming, resting, qty); err != nil {
			return fills, err
		}
		fills++
	}
	return fills, nil
}

// executeFill settles one fill of qty shares at the resting order's book
// price. The settlement mode follows from the pair of original intents:
// matching buy_yes×sell_yes or sell_no×buy_no transfers existing shares,
// buy_yes×buy_no mints a YES+NO pair from 1 PRC, and sell_no×sell_yes burns a
// pair back into 1 PRC. Updates both orders, both users, their positions, the
// ledger, the fill history, and the market's trade state (written back by the
// caller).
func (s *OrderBookService) executeFill(ctx context.Context, tx *sqlx.Tx, market *domain.Market, incoming, resting *domain.Order, qty decimal.Decimal) error {
	price := resting.Price

	// ── 1. Orient the pair by book side ──────────────────────────────────────
	buyOrder, sellOrder := incoming, resting
	if incoming.Side == domain.SideSell {
		buyOrder, sellOrder = resting, incoming
	}
	settlement := domain.DetermineSettlement(buyOrder.OriginalIntent, sellOrder.OriginalIntent)

	// ── 2. Move the money and the shares ─────────────────────────────────────
	var totalValue decimal.Decimal
	var err error
	switch settlement {
	case domain.SettlementTransfer:
		totalValue, err = s.settleTransfer(ctx, tx, market, buyOrder, sellOrder, price, qty)
	case domain.SettlementMint:
		totalValue, err = s.settleMint(ctx, tx, market, buyOrder, sellOrder, price, qty)
	default:
		totalValue, err = s.settleBurn(ctx, tx, market, buyOrder, sellOrder, price, qty)
	}
	if err != nil {
		return err
	}

	// ── 3. Advance both orders ───────────────────────────────────────────────
	for _, o := range []*domain.Order{buyOrder, sellOrder} {
		o.FilledQuantity = o.FilledQuantity.Add(qty)
		if o.FilledQuantity.GreaterThanOrEqual(o.Quantity) {
			o.Status = domain.OrderFilled
		} else {
			o.Status = domain.OrderPartiallyFilled
		}
		if err := s.orderRepo.UpdateFill(ctx, tx, o); err != nil {
			return err
		}
	}

	// ── 4. Record the fill ───────────────────────────────────────────────────
	fee := domain.FeeOn(totalValue, feeRate(s.cfg))
	fill := &domain.TradeFill{
		ID:             uuid.New(),
		MarketID:       market.ID,
		BuyOrderID:     buyOrder.ID,
		SellOrderID:    sellOrder.ID,
		BuyerID:        buyOrder.UserID,
		SellerID:       sellOrder.UserID,
		Price:          price,
		Quantity:       qty,
		Fee:            fee,
		SettlementType: settlement,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.orderRepo.CreateFill(ctx, tx, fill); err != nil {
		return err
	}

	// ── 5. Both users traded ─────────────────────────────────────────────────
	if err := s.userRepo.IncrementTrades(ctx, tx, buyOrder.UserID); err != nil {
		return err
	}
	if err := s.userRepo.IncrementTrades(ctx, tx, sellOrder.UserID); err != nil {
		return err
	}

	// ── 6. Market trade state (persisted once by the caller) ─────────────────
	lastPrice := price
	market.LastTradePriceYes = &lastPrice
	market.TotalVolume = market.TotalVolume.Add(totalValue)
	return nil
}

// settleTransfer moves existing shares between the two users. Which outcome
// changes hands follows from the intent pair: buy_yes×sell_yes moves YES at
// the book price, sell_no×buy_no moves NO at its complement. The share
// acquirer pays the full cost; the disposer receives it net of the fee.
// Returns the PRC value transferred.
func (s *OrderBookService) settleTransfer(ctx context.Context, tx *sqlx.Tx, market *domain.Market, buyOrder, sellOrder *domain.Order, price, qty decimal.Decimal) (decimal.Decimal, error) {
	acquirer, disposer := buyOrder, sellOrder
	value := price
	outcome := domain.OutcomeYes
	if buyOrder.OriginalIntent == domain.IntentSellNo {
		acquirer, disposer = sellOrder, buyOrder
		value = one.Sub(price)
		outcome = domain.OutcomeNo
	}
	cost := domain.RoundPRC(value.Mul(qty))
	fee := domain.FeeOn(cost, feeRate(s.cfg))

	// Acquirer: unlock the PRC reserved at their own intent price (≥ the fill
	// value, since fills only ever improve on the limit), then pay the cost.
	// Collateral was checked at placement, so the debit cannot fail here.
	release := domain.RoundPRC(acquirer.IntentPrice().Mul(qty))
	if err := s.userRepo.ReleaseBalance(ctx, tx, acquirer.UserID, release); err != nil {
		return decimal.Zero, err
	}
	if err := s.userRepo.AddBalance(ctx, tx, acquirer.UserID, cost.Neg()); err != nil {
		return decimal.Zero, err
	}
	acqPos, _, err := s.posRepo.GetOrCreateForUpdate(ctx, tx, acquirer.UserID, market.ID, outcome)
	if err != nil {
		return decimal.Zero, err
	}
	acqPos.Shares = acqPos.Shares.Add(qty)
	acqPos.TotalCost = acqPos.TotalCost.Add(cost)
	if err := s.posRepo.Save(ctx, tx, acqPos); err != nil {
		return decimal.Zero, err
	}

	// Disposer: the shares leave their reservation; they are paid net of fee.
	dispPos, _, err := s.posRepo.GetOrCreateForUpdate(ctx, tx, disposer.UserID, market.ID, outcome)
	if err != nil {
		return decimal.Zero, err
	}
	dispPos.Shares = dispPos.Shares.Sub(qty)
	dispPos.ReservedShares = domain.ClampZero(dispPos.ReservedShares.Sub(qty))
	if err := s.posRepo.Save(ctx, tx, dispPos); err != nil {
		return decimal.Zero, err
	}
	if err := s.userRepo.AddBalance(ctx, tx, disposer.UserID, cost.Sub(fee)); err != nil {
		return decimal.Zero, err
	}

	// Ledger: one leg per side, in each side's own outcome terms.
	if err := s.fillLedger(ctx, tx, market.ID, acquirer, outcome, value, qty, cost.Neg()); err != nil {
		return decimal.Zero, err
	}
	if err := s.fillLedger(ctx, tx, market.ID, disposer, outcome, value, qty, cost.Sub(fee)); err != nil {
		return decimal.Zero, err
	}
	return cost, nil
}

// settleMint creates qty new YES+NO pairs: buy_yes funds the YES half at the
// book price, buy_no funds the NO half at its complement, together 1.00 per
// pair. The fee is charged on the pair value and split between the sides.
// Returns the PRC value collected (qty × 1.00).
func (s *OrderBookService) settleMint(ctx context.Context, tx *sqlx.Tx, market *domain.Market, buyOrder, sellOrder *domain.Order, price, qty decimal.Decimal) (decimal.Decimal, error) {
	totalValue := domain.RoundPRC(qty)
	fee := domain.FeeOn(totalValue, feeRate(s.cfg))
	buyHalf, sellHalf := domain.SplitFee(fee)

	yesCost := domain.RoundPRC(price.Mul(qty))
	noCost := domain.RoundPRC(one.Sub(price).Mul(qty))

	if err := s.mintSide(ctx, tx, market, buyOrder, domain.OutcomeYes, price, qty, yesCost, buyHalf); err != nil {
		return decimal.Zero, err
	}
	if err := s.mintSide(ctx, tx, market, sellOrder, domain.OutcomeNo, one.Sub(price), qty, noCost, sellHalf); err != nil {
		return decimal.Zero, err
	}
	return totalValue, nil
}

// mintSide settles one side of a mint: release the reservation, debit the
// cost plus this side's fee share, and grow the position.
func (s *OrderBookService) mintSide(ctx context.Context, tx *sqlx.Tx, market *domain.Market, order *domain.Order, outcome domain.Outcome, value, qty, cost, feeHalf decimal.Decimal) error {
	release := domain.RoundPRC(order.IntentPrice().Mul(qty))
	if err := s.userRepo.ReleaseBalance(ctx, tx, order.UserID, release); err != nil {
		return err
	}
	debit := cost.Add(feeHalf)
	if err := s.userRepo.AddBalance(ctx, tx, order.UserID, debit.Neg()); err != nil {
		return err
	}

	pos, _, err := s.posRepo.GetOrCreateForUpdate(ctx, tx, order.UserID, market.ID, outcome)
	if err != nil {
		return err
	}
	pos.Shares = pos.Shares.Add(qty)
	pos.TotalCost = pos.TotalCost.Add(debit)
	if err := s.posRepo.Save(ctx, tx, pos); err != nil {
		return err
	}
	return s.fillLedger(ctx, tx, market.ID, order, outcome, value, qty, debit.Neg())
}

// settleBurn destroys qty YES+NO pairs: sell_yes gives up YES shares for the
// book price, sell_no gives up NO shares for its complement, together 1.00
// per pair, each side net of its fee share. Returns the pair value
// (qty × 1.00).
func (s *OrderBookService) settleBurn(ctx context.Context, tx *sqlx.Tx, market *domain.Market, buyOrder, sellOrder *domain.Order, price, qty decimal.Decimal) (decimal.Decimal, error) {
	totalValue := domain.RoundPRC(qty)
	fee := domain.FeeOn(totalValue, feeRate(s.cfg))
	buyHalf, sellHalf := domain.SplitFee(fee)

	yesRevenue := domain.RoundPRC(price.Mul(qty))
	noRevenue := domain.RoundPRC(one.Sub(price).Mul(qty))

	// Book-buy side is sell_no, book-sell side is sell_yes.
	if err := s.burnSide(ctx, tx, market, buyOrder, domain.OutcomeNo, one.Sub(price), qty, noRevenue, buyHalf); err != nil {
		return decimal.Zero, err
	}
	if err := s.burnSide(ctx, tx, market, sellOrder, domain.OutcomeYes, price, qty, yesRevenue, sellHalf); err != nil {
		return decimal.Zero, err
	}
	return totalValue, nil
}

// burnSide settles one side of a burn: shares leave the reservation and the
// position, and the side is credited its revenue minus its fee share.
func (s *OrderBookService) burnSide(ctx context.Context, tx *sqlx.Tx, market *domain.Market, order *domain.Order, outcome domain.Outcome, value, qty, revenue, feeHalf decimal.Decimal) error {
	pos, _, err := s.posRepo.GetOrCreateForUpdate(ctx, tx, order.UserID, market.ID, outcome)
	if err != nil {
		return err
	}
	pos.Shares = pos.Shares.Sub(qty)
	pos.ReservedShares = domain.ClampZero(pos.ReservedShares.Sub(qty))
	if err := s.posRepo.Save(ctx, tx, pos); err != nil {
		return err
	}

	credit := revenue.Sub(feeHalf)
	if err := s.userRepo.AddBalance(ctx, tx, order.UserID, credit); err != nil {
		return err
	}
	return s.fillLedger(ctx, tx, market.ID, order, outcome, value, qty, credit)
}

// fillLedger writes one ORDER_FILL ledger leg. Amount is the side's actual
// balance delta; value is the per-share price in the side's own outcome
// terms.
func (s *OrderBookService) fillLedger(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, order *domain.Order, outcome domain.Outcome, value, qty, amount decimal.Decimal) error {
	return s.txRepo.Create(ctx, tx, &domain.Transaction{
		ID:           uuid.New(),
		UserID:       order.UserID,
		MarketID:     &marketID,
		Type:         domain.TxOrderFill,
		Amount:       amount,
		Shares:       qty,
		Outcome:      &outcome,
		PriceAtTrade: value,
		Description:  fmt.Sprintf("Order fill: %s @ %s", order.OriginalIntent, value.StringFixed(2)),
		CreatedAt:    time.Now().UTC(),
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Cancellation
// ──────────────────────────────────────────────────────────────────────────────

// CancelOrder cancels the caller's own non-terminal order and releases the
// collateral still backing its unfilled quantity.
func (s *OrderBookService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*CancelOrderResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("orderbook_service.CancelOrder: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Load and guard the order ──────────────────────────────────────────
	order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		err = domain.ErrNotOrderOwner
		return nil, err
	}
	if order.IsTerminal() {
		err = domain.ErrOrderNotOpen
		return nil, err
	}

	// ── 2. Release the unfilled reservation ──────────────────────────────────
	remaining := order.Remaining()
	if err = s.releaseOrderCollateral(ctx, tx, order, remaining); err != nil {
		return nil, fmt.Errorf("orderbook_service.CancelOrder: release: %w", err)
	}

	// ── 3. Mark cancelled and leave a ledger marker ──────────────────────────
	if err = s.orderRepo.SetStatus(ctx, tx, order.ID, domain.OrderCancelled); err != nil {
		return nil, fmt.Errorf("orderbook_service.CancelOrder: %w", err)
	}
	outcome := order.OriginalIntent.Outcome()
	err = s.txRepo.Create(ctx, tx, &domain.Transaction{
		ID:           uuid.New(),
		UserID:       order.UserID,
		MarketID:     &order.MarketID,
		Type:         domain.TxOrderCancel,
		Amount:       decimal.Zero,
		Shares:       remaining,
		Outcome:      &outcome,
		PriceAtTrade: order.Price,
		Description:  fmt.Sprintf("Cancelled order %s @ %s", order.OriginalIntent, order.Price.StringFixed(2)),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("orderbook_service.CancelOrder: %w", err)
	}

	// ── 4. Commit ────────────────────────────────────────────────────────────
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("orderbook_service.CancelOrder: commit: %w", err)
	}

	go s.postCancelAsync(order.MarketID)

	return &CancelOrderResult{OrderID: order.ID, CancelledQuantity: remaining}, nil
}

// CancelAllForMarket cancels every live order in the market inside the
// caller's transaction, releasing all reservations. No ledger markers are
// written; resolution and cancellation write their own records. Returns the
// number of orders cancelled.
func (s *OrderBookService) CancelAllForMarket(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) (int, error) {
	orders, err := s.orderRepo.ListOpenByMarket(ctx, tx, marketID)
	if err != nil {
		return 0, fmt.Errorf("orderbook_service.CancelAllForMarket: %w", err)
	}
	for _, order := range orders {
		if err := s.releaseOrderCollateral(ctx, tx, order, order.Remaining()); err != nil {
			return 0, fmt.Errorf("orderbook_service.CancelAllForMarket: release: %w", err)
		}
		if err := s.orderRepo.SetStatus(ctx, tx, order.ID, domain.OrderCancelled); err != nil {
			return 0, fmt.Errorf("orderbook_service.CancelAllForMarket: %w", err)
		}
	}
	return len(orders), nil
}

// releaseOrderCollateral returns qty worth of the order's reservation: PRC at
// the intent price for buy intents, shares for sell intents. Releases clamp
// at zero so rounding drift can never drive a reservation negative.
func (s *OrderBookService) releaseOrderCollateral(ctx context.Context, tx *sqlx.Tx, order *domain.Order, qty decimal.Decimal) error {
	if order.OriginalIntent.ReservesPRC() {
		amount := domain.RoundPRC(order.IntentPrice().Mul(qty))
		return s.userRepo.ReleaseBalance(ctx, tx, order.UserID, amount)
	}
	pos, _, err := s.posRepo.GetOrCreateForUpdate(ctx, tx, order.UserID, order.MarketID, order.OriginalIntent.Outcome())
	if err != nil {
		return err
	}
	return s.posRepo.ReleaseShares(ctx, tx, pos.ID, qty)
}

// ──────────────────────────────────────────────────────────────────────────────
// Views
// ──────────────────────────────────────────────────────────────────────────────

// GetBook returns the aggregated order book, cached for one second.
func (s *OrderBookService) GetBook(ctx context.Context, marketID uuid.UUID) (*domain.BookView, error) {
	cacheKey := cache.OrderBookKey(marketID)
	var cached domain.BookView
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	book, err := s.liveBook(ctx, marketID)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, cacheKey, book, bookCacheTTL)
	return book, nil
}

// liveBook reads the book straight from the database.
func (s *OrderBookService) liveBook(ctx context.Context, marketID uuid.UUID) (*domain.BookView, error) {
	market, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	bids, asks, err := s.orderRepo.BookLevels(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("orderbook_service.GetBook: %w", err)
	}
	if bids == nil {
		bids = []domain.BookLevel{}
	}
	if asks == nil {
		asks = []domain.BookLevel{}
	}
	return &domain.BookView{Bids: bids, Asks: asks, LastPrice: market.LastTradePriceYes}, nil
}

// GetUserOrders returns the caller's orders, newest first, optionally
// restricted to one market or to live orders only.
func (s *OrderBookService) GetUserOrders(ctx context.Context, userID uuid.UUID, marketID *uuid.UUID, activeOnly bool) ([]*domain.Order, error) {
	orders, _, err := s.orderRepo.ListByUser(ctx, userID, marketID, activeOnly, userOrdersLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("orderbook_service.GetUserOrders: %w", err)
	}
	return orders, nil
}

// GetTrades returns recent fills for a market, newest first.
func (s *OrderBookService) GetTrades(ctx context.Context, marketID uuid.UUID, limit int) ([]*domain.TradeFill, error) {
	if limit <= 0 {
		limit = defaultTradesLimit
	}
	if limit > maxTradesLimit {
		limit = maxTradesLimit
	}
	fills, err := s.orderRepo.ListFillsByMarket(ctx, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("orderbook_service.GetTrades: %w", err)
	}
	return fills, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Post-commit side effects
// ──────────────────────────────────────────────────────────────────────────────

// postPlaceAsync refreshes caches and pushes WS updates after a committed
// placement. Failures here never affect the committed trade.
func (s *OrderBookService) postPlaceAsync(marketID uuid.UUID, traded bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.cache.Invalidate(ctx, cache.OrderBookKey(marketID), cache.MarketKey(marketID))

	if s.broadcaster == nil {
		return
	}
	if book, err := s.liveBook(ctx, marketID); err == nil {
		s.broadcaster.BroadcastBookUpdate(marketID, book)
	}
	if traded {
		if market, err := s.marketRepo.GetByID(ctx, marketID); err == nil {
			summary := market.ToSummary(market.LastPriceOrMid())
			s.broadcaster.BroadcastPriceUpdate(&summary)
		}
	}
}

// postCancelAsync refreshes the book cache and pushes a WS update after a
// committed cancellation.
func (s *OrderBookService) postCancelAsync(marketID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.cache.Invalidate(ctx, cache.OrderBookKey(marketID))

	if s.broadcaster == nil {
		return
	}
	if book, err := s.liveBook(ctx, marketID); err == nil {
		s.broadcaster.BroadcastBookUpdate(marketID, book)
	}
}
