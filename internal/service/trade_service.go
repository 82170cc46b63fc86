package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/cache"
	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/domain"
	"github.com/predictru/backend/internal/lmsr"
	"github.com/predictru/backend/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into services to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// Broadcaster is the minimal interface the trading services need from the WS
// hub. Implemented by ws.Hub.
type Broadcaster interface {
	BroadcastPriceUpdate(summary *domain.MarketSummary)
	BroadcastBookUpdate(marketID uuid.UUID, book *domain.BookView)
	BroadcastMarketResolved(marketID uuid.UUID, outcome domain.Outcome)
}

// TradeNotifier is the minimal interface TradeService needs from the Telegram
// notifier. Implemented by notify.Telegram.
type TradeNotifier interface {
	TradeConfirmed(ctx context.Context, telegramID int64, marketTitle string, outcome domain.Outcome, cost decimal.Decimal)
}

// ──────────────────────────────────────────────────────────────────────────────
// Result types
// ──────────────────────────────────────────────────────────────────────────────

// BuyResult reports an executed AMM purchase.
type BuyResult struct {
	Shares     decimal.Decimal `json:"shares"`
	Cost       decimal.Decimal `json:"cost"`
	Fee        decimal.Decimal `json:"fee"`
	PriceYes   decimal.Decimal `json:"price_yes"`
	PriceNo    decimal.Decimal `json:"price_no"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// SellResult reports an executed AMM sale.
type SellResult struct {
	SharesSold decimal.Decimal `json:"shares_sold"`
	Revenue    decimal.Decimal `json:"revenue"`
	PriceYes   decimal.Decimal `json:"price_yes"`
	PriceNo    decimal.Decimal `json:"price_no"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// ──────────────────────────────────────────────────────────────────────────────
// TradeService
// ──────────────────────────────────────────────────────────────────────────────

// TradeService executes buys and sells against the LMSR market maker. All
// money movement happens inside a single PostgreSQL transaction; trading
// paths take row locks in the order user → market → position.
type TradeService struct {
	db          *sqlx.DB
	marketRepo  *repository.MarketRepository
	userRepo    *repository.UserRepository
	posRepo     *repository.PositionRepository
	txRepo      *repository.TransactionRepository
	cache       *cache.Client
	cfg         *config.Config
	broadcaster Broadcaster   // injected after the WS hub is built
	notifier    TradeNotifier // injected after the notifier is built
}

// NewTradeService creates a TradeService.
func NewTradeService(
	db *sqlx.DB,
	marketRepo *repository.MarketRepository,
	userRepo *repository.UserRepository,
	posRepo *repository.PositionRepository,
	txRepo *repository.TransactionRepository,
	cacheClient *cache.Client,
	cfg *config.Config,
) *TradeService {
	return &TradeService{
		db:         db,
		marketRepo: marketRepo,
		userRepo:   userRepo,
		posRepo:    posRepo,
		txRepo:     txRepo,
		cache:      cacheClient,
		cfg:        cfg,
	}
}

// SetBroadcaster injects the WS hub dependency post-construction.
func (s *TradeService) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// SetNotifier injects the Telegram notifier post-construction.
func (s *TradeService) SetNotifier(n TradeNotifier) { s.notifier = n }

// ──────────────────────────────────────────────────────────────────────────────
// Buy
// ──────────────────────────────────────────────────────────────────────────────

// Buy spends amount PRC on shares of the given outcome. The fee is taken off
// the top and the remainder is pushed through the cost function; the market's
// quantities, the user's balance and position, and the ledger all move in one
// transaction.
func (s *TradeService) Buy(ctx context.Context, userID, marketID uuid.UUID, outcome domain.Outcome, amount decimal.Decimal) (*BuyResult, error) {
	// ── 1. Input validation ──────────────────────────────────────────────────
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}

	// ── 2. Begin transaction ─────────────────────────────────────────────────
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Buy: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 3. Lock user ─────────────────────────────────────────────────────────
	user, err := s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Buy: lock user: %w", err)
	}

	// ── 4. Lock market and validate the trade ────────────────────────────────
	market, err := s.marketRepo.GetForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Buy: lock market: %w", err)
	}
	if !market.IsOpen() {
		return nil, domain.ErrMarketNotOpen
	}
	if market.Mechanism != domain.MechanismLMSR {
		return nil, domain.ErrWrongMechanism
	}
	if amount.LessThan(market.MinBet) {
		return nil, domain.ErrAmountBelowMinimum
	}
	if amount.GreaterThan(market.MaxBet) {
		return nil, domain.ErrAmountAboveMaximum
	}
	if user.Available().LessThan(amount) {
		return nil, domain.ErrInsufficientBalance
	}

	// ── 5. Price the purchase ────────────────────────────────────────────────
	fee := domain.FeeOn(amount, feeRate(s.cfg))
	net := amount.Sub(fee)

	mm, err := lmsr.New(market.LiquidityB)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Buy: %w", err)
	}
	qOut, qOpp := market.QYes, market.QNo
	if outcome == domain.OutcomeNo {
		qOut, qOpp = market.QNo, market.QYes
	}
	shares := domain.RoundShares(mm.SharesForAmount(qOut, qOpp, net))
	if !shares.IsPositive() {
		return nil, domain.ErrZeroShares
	}

	// ── 6. Deduct balance ────────────────────────────────────────────────────
	if err = s.userRepo.DeductBalance(ctx, tx, userID, amount); err != nil {
		return nil, fmt.Errorf("trade_service.Buy: deduct: %w", err)
	}
	if err = s.userRepo.IncrementTrades(ctx, tx, userID); err != nil {
		return nil, fmt.Errorf("trade_service.Buy: increment trades: %w", err)
	}

	// ── 7. Update position (lock taken last) ─────────────────────────────────
	pos, posCreated, err := s.posRepo.GetOrCreateForUpdate(ctx, tx, userID, marketID, outcome)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Buy: position: %w", err)
	}
	pos.Shares = pos.Shares.Add(shares)
	pos.TotalCost = pos.TotalCost.Add(amount)
	if err = s.posRepo.Save(ctx, tx, pos); err != nil {
		return nil, fmt.Errorf("trade_service.Buy: save position: %w", err)
	}

	// ── 8. Update market state — volume counts the gross spend ───────────────
	qOut = domain.RoundShares(qOut.Add(shares))
	if outcome == domain.OutcomeYes {
		market.QYes = qOut
	} else {
		market.QNo = qOut
	}
	market.TotalVolume = market.TotalVolume.Add(amount)
	if posCreated {
		market.TotalTraders++
	}
	if err = s.marketRepo.UpdateTradeState(ctx, tx, market); err != nil {
		return nil, fmt.Errorf("trade_service.Buy: update market: %w", err)
	}

	// ── 9. Post-trade prices ─────────────────────────────────────────────────
	priceYes := domain.RoundPrice(mm.Price(market.QYes, market.QNo))
	priceNo := domain.RoundPrice(mm.Price(market.QNo, market.QYes))
	priceAtTrade := priceYes
	if outcome == domain.OutcomeNo {
		priceAtTrade = priceNo
	}

	// ── 10. Ledger entries ───────────────────────────────────────────────────
	now := time.Now().UTC()
	outcomeCopy := outcome
	buyTxn := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		MarketID:     &market.ID,
		Type:         domain.TxBuy,
		Amount:       amount.Neg(),
		Shares:       shares,
		Outcome:      &outcomeCopy,
		PriceAtTrade: priceAtTrade,
		Description:  fmt.Sprintf("Buy %s | fee: %s PRC", strings.ToUpper(string(outcome)), fee.StringFixed(2)),
		CreatedAt:    now,
	}
	if err = s.txRepo.Create(ctx, tx, buyTxn); err != nil {
		return nil, fmt.Errorf("trade_service.Buy: log buy: %w", err)
	}
	if fee.IsPositive() {
		feeTxn := &domain.Transaction{
			ID:          uuid.New(),
			UserID:      userID,
			MarketID:    &market.ID,
			Type:        domain.TxFee,
			Amount:      fee.Neg(),
			Description: fmt.Sprintf("Trading fee %.1f%%", s.cfg.Trading.FeePercent),
			CreatedAt:   now,
		}
		if err = s.txRepo.Create(ctx, tx, feeTxn); err != nil {
			return nil, fmt.Errorf("trade_service.Buy: log fee: %w", err)
		}
	}

	// ── 11. Price history sample ─────────────────────────────────────────────
	point := &domain.PricePoint{
		ID:        uuid.New(),
		MarketID:  market.ID,
		PriceYes:  priceYes,
		PriceNo:   priceNo,
		QYes:      market.QYes,
		QNo:       market.QNo,
		CreatedAt: now,
	}
	if err = s.marketRepo.AddPricePoint(ctx, tx, point); err != nil {
		return nil, fmt.Errorf("trade_service.Buy: price history: %w", err)
	}

	// ── 12. Commit ───────────────────────────────────────────────────────────
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("trade_service.Buy: commit: %w", err)
	}

	// ── 13. Async: cache invalidation, WS broadcast, Telegram confirm ────────
	summary := market.ToSummary(priceYes)
	go s.postTradeAsync(market.ID, &summary, user.TelegramID, market.Title, outcome, amount)

	return &BuyResult{
		Shares:     shares,
		Cost:       amount,
		Fee:        fee,
		PriceYes:   priceYes,
		PriceNo:    priceNo,
		NewBalance: user.Balance.Sub(amount),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Sell
// ──────────────────────────────────────────────────────────────────────────────

// Sell liquidates shares of the given outcome back into the market maker.
// Sales carry no fee and do not count towards volume or the trade counter;
// the position's cost basis shrinks proportionally to the shares sold.
func (s *TradeService) Sell(ctx context.Context, userID, marketID uuid.UUID, outcome domain.Outcome, shares decimal.Decimal) (*SellResult, error) {
	// ── 1. Input validation ──────────────────────────────────────────────────
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}
	if !shares.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}

	// ── 2. Begin transaction ─────────────────────────────────────────────────
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Sell: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 3. Lock user ─────────────────────────────────────────────────────────
	user, err := s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Sell: lock user: %w", err)
	}

	// ── 4. Lock market and validate ──────────────────────────────────────────
	market, err := s.marketRepo.GetForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Sell: lock market: %w", err)
	}
	if !market.IsOpen() {
		return nil, domain.ErrMarketNotOpen
	}
	if market.Mechanism != domain.MechanismLMSR {
		return nil, domain.ErrWrongMechanism
	}

	// ── 5. Lock position and check the holding ───────────────────────────────
	pos, _, err := s.posRepo.GetOrCreateForUpdate(ctx, tx, userID, marketID, outcome)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Sell: position: %w", err)
	}
	if pos.AvailableShares().LessThan(shares) {
		return nil, domain.ErrInsufficientShares
	}

	// ── 6. Price the sale ────────────────────────────────────────────────────
	mm, err := lmsr.New(market.LiquidityB)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Sell: %w", err)
	}
	qOut, qOpp := market.QYes, market.QNo
	if outcome == domain.OutcomeNo {
		qOut, qOpp = market.QNo, market.QYes
	}
	revenue := domain.RoundPRC(mm.SaleRevenue(qOut, qOpp, shares))

	// ── 7. Move money and shares ─────────────────────────────────────────────
	if err = s.userRepo.AddBalance(ctx, tx, userID, revenue); err != nil {
		return nil, fmt.Errorf("trade_service.Sell: credit: %w", err)
	}

	sharesBefore := pos.Shares
	soldCost := domain.RoundPRC(pos.TotalCost.Mul(shares).Div(sharesBefore))
	pos.Shares = pos.Shares.Sub(shares)
	pos.TotalCost = domain.ClampZero(pos.TotalCost.Sub(soldCost))
	if err = s.posRepo.Save(ctx, tx, pos); err != nil {
		return nil, fmt.Errorf("trade_service.Sell: save position: %w", err)
	}

	// ── 8. Update market quantities — volume and trade count stay put ────────
	qOut = domain.RoundShares(qOut.Sub(shares))
	if outcome == domain.OutcomeYes {
		market.QYes = qOut
	} else {
		market.QNo = qOut
	}
	if err = s.marketRepo.UpdateTradeState(ctx, tx, market); err != nil {
		return nil, fmt.Errorf("trade_service.Sell: update market: %w", err)
	}

	// ── 9. Post-trade prices ─────────────────────────────────────────────────
	priceYes := domain.RoundPrice(mm.Price(market.QYes, market.QNo))
	priceNo := domain.RoundPrice(mm.Price(market.QNo, market.QYes))
	priceAtTrade := priceYes
	if outcome == domain.OutcomeNo {
		priceAtTrade = priceNo
	}

	// ── 10. Ledger entry ─────────────────────────────────────────────────────
	now := time.Now().UTC()
	outcomeCopy := outcome
	sellTxn := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		MarketID:     &market.ID,
		Type:         domain.TxSell,
		Amount:       revenue,
		Shares:       shares,
		Outcome:      &outcomeCopy,
		PriceAtTrade: priceAtTrade,
		CreatedAt:    now,
	}
	if err = s.txRepo.Create(ctx, tx, sellTxn); err != nil {
		return nil, fmt.Errorf("trade_service.Sell: log sell: %w", err)
	}

	// ── 11. Price history sample ─────────────────────────────────────────────
	point := &domain.PricePoint{
		ID:        uuid.New(),
		MarketID:  market.ID,
		PriceYes:  priceYes,
		PriceNo:   priceNo,
		QYes:      market.QYes,
		QNo:       market.QNo,
		CreatedAt: now,
	}
	if err = s.marketRepo.AddPricePoint(ctx, tx, point); err != nil {
		return nil, fmt.Errorf("trade_service.Sell: price history: %w", err)
	}

	// ── 12. Commit ───────────────────────────────────────────────────────────
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("trade_service.Sell: commit: %w", err)
	}

	// ── 13. Async: cache invalidation + WS broadcast ─────────────────────────
	summary := market.ToSummary(priceYes)
	go s.postTradeAsync(market.ID, &summary, 0, "", outcome, decimal.Zero)

	return &SellResult{
		SharesSold: shares,
		Revenue:    revenue,
		PriceYes:   priceYes,
		PriceNo:    priceNo,
		NewBalance: user.Balance.Add(revenue),
	}, nil
}

// postTradeAsync refreshes caches, pushes the new price to WS subscribers,
// and (for buys) sends the Telegram confirmation. Runs in a goroutine after
// commit; failures only log, they never undo the trade.
func (s *TradeService) postTradeAsync(marketID uuid.UUID, summary *domain.MarketSummary, telegramID int64, title string, outcome domain.Outcome, cost decimal.Decimal) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.cache.Invalidate(ctx, cache.MarketKey(marketID))
	s.cache.InvalidatePrefix(ctx, cache.MarketListPrefix)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastPriceUpdate(summary)
	}
	if s.notifier != nil && telegramID != 0 {
		s.notifier.TradeConfirmed(ctx, telegramID, title, outcome, cost)
	}
}
