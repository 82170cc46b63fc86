package service

import (
	"context"
	"errors"
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

const (
	// marketCacheTTL bounds staleness of list and detail reads. Trades
	// invalidate eagerly, so 30s only covers crashes of the invalidation path.
	marketCacheTTL = 30 * time.Second

	defaultListLimit = 20
	maxListLimit     = 50

	commentsDefaultLimit = 50
	commentsMaxLimit     = 100
	commentMaxRunes      = 1000

	defaultCategory = "general"
)

// ──────────────────────────────────────────────────────────────────────────────
// Read views
// ──────────────────────────────────────────────────────────────────────────────

// MarketDetail is a market with its derived prices attached.
type MarketDetail struct {
	domain.Market
	PriceYes decimal.Decimal `json:"price_yes"`
	PriceNo  decimal.Decimal `json:"price_no"`
}

// MarketListResult is one page of market summaries. NextCursor is the last
// market's id, or nil on the final page.
type MarketListResult struct {
	Markets    []*domain.MarketSummary `json:"markets"`
	NextCursor *string                 `json:"next_cursor"`
}

// PricePointView is one chart sample.
type PricePointView struct {
	PriceYes  decimal.Decimal `json:"price_yes"`
	PriceNo   decimal.Decimal `json:"price_no"`
	CreatedAt time.Time       `json:"created_at"`
}

// SideStat aggregates one trade direction.
type SideStat struct {
	Count  int             `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

// MarketStats is the per-market analytics snapshot. Buy/sell stats cover AMM
// trades; book fills land in TotalVolume.
type MarketStats struct {
	MarketID      uuid.UUID       `json:"market_id"`
	UniqueTraders int             `json:"unique_traders"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	BuyStats      SideStat        `json:"buy_stats"`
	SellStats     SideStat        `json:"sell_stats"`
}

// ProposalDecision reports the outcome of a proposal review.
type ProposalDecision struct {
	Status   domain.ProposalStatus `json:"status"`
	MarketID *uuid.UUID            `json:"market_id,omitempty"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Inputs
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarketInput carries an admin's new-market request. Zero-value
// LiquidityB, MinBet and MaxBet fall back to the configured defaults.
type CreateMarketInput struct {
	Title            string
	Description      string
	Category         string
	ImageURL         *string
	Mechanism        domain.Mechanism
	InitialPrice     decimal.Decimal
	LiquidityB       decimal.Decimal
	MinBet           decimal.Decimal
	MaxBet           decimal.Decimal
	ClosesAt         time.Time
	ResolutionSource string
	IsFeatured       bool
}

// UpdateMarketInput carries optional admin edits; nil fields stay unchanged.
type UpdateMarketInput struct {
	Title            *string
	Description      *string
	Category         *string
	ImageURL         *string
	IsFeatured       *bool
	ResolutionSource *string
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketService
// ──────────────────────────────────────────────────────────────────────────────

// MarketService serves the market catalogue: cached listings and detail
// views, price charts, comment threads, per-market analytics, admin
// creation/editing, and the user-proposal review flow.
type MarketService struct {
	db           *sqlx.DB
	marketRepo   *repository.MarketRepository
	posRepo      *repository.PositionRepository
	txRepo       *repository.TransactionRepository
	proposalRepo *repository.ProposalRepository
	commentRepo  *repository.CommentRepository
	userRepo     *repository.UserRepository
	cache        *cache.Client
	cfg          *config.Config
}

// NewMarketService creates a MarketService.
func NewMarketService(
	db *sqlx.DB,
	marketRepo *repository.MarketRepository,
	posRepo *repository.PositionRepository,
	txRepo *repository.TransactionRepository,
	proposalRepo *repository.ProposalRepository,
	commentRepo *repository.CommentRepository,
	userRepo *repository.UserRepository,
	cacheClient *cache.Client,
	cfg *config.Config,
) *MarketService {
	return &MarketService{
		db:           db,
		marketRepo:   marketRepo,
		posRepo:      posRepo,
		txRepo:       txRepo,
		proposalRepo: proposalRepo,
		commentRepo:  commentRepo,
		userRepo:     userRepo,
		cache:        cacheClient,
		cfg:          cfg,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Catalogue
// ──────────────────────────────────────────────────────────────────────────────

// List returns one page of market summaries, filtered by category and status.
// The cursor is the id of the previous page's last market; pages cache per
// filter combination.
func (s *MarketService) List(ctx context.Context, category, status, cursor string, limit int) (*MarketListResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	key := cache.MarketListKey(category, status, cursor, limit)
	var cached MarketListResult
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	// An unknown cursor starts from the newest market rather than erroring:
	// the anchoring market may have been deleted between pages.
	var before *time.Time
	if cursor != "" {
		if id, err := uuid.Parse(cursor); err == nil {
			if anchor, err := s.marketRepo.GetByID(ctx, id); err == nil {
				before = &anchor.CreatedAt
			}
		}
	}

	filter := repository.ListFilter{Status: status, Category: category}
	markets, err := s.marketRepo.ListCursor(ctx, filter, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("market_service.List: %w", err)
	}

	var next *string
	if len(markets) > limit {
		markets = markets[:limit]
		id := markets[limit-1].ID.String()
		next = &id
	}

	result := &MarketListResult{
		Markets:    make([]*domain.MarketSummary, 0, len(markets)),
		NextCursor: next,
	}
	for _, m := range markets {
		summary := m.ToSummary(s.priceYes(m))
		result.Markets = append(result.Markets, &summary)
	}

	s.cache.SetJSON(ctx, key, result, marketCacheTTL)
	return result, nil
}

// Get returns a market's detail view with derived prices, cached briefly.
func (s *MarketService) Get(ctx context.Context, id uuid.UUID) (*MarketDetail, error) {
	key := cache.MarketKey(id)
	var cached MarketDetail
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	m, err := s.marketRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := s.detail(m)
	s.cache.SetJSON(ctx, key, detail, marketCacheTTL)
	return detail, nil
}

// History returns every price sample for a market, oldest first. CLOB markets
// have no samples; the chart comes from the trade tape instead.
func (s *MarketService) History(ctx context.Context, marketID uuid.UUID) ([]*PricePointView, error) {
	if _, err := s.marketRepo.GetByID(ctx, marketID); err != nil {
		return nil, err
	}
	points, err := s.marketRepo.PriceHistory(ctx, marketID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("market_service.History: %w", err)
	}

	views := make([]*PricePointView, 0, len(points))
	for _, p := range points {
		views = append(views, &PricePointView{
			PriceYes:  p.PriceYes,
			PriceNo:   p.PriceNo,
			CreatedAt: p.CreatedAt,
		})
	}
	return views, nil
}

// Stats aggregates trading activity for one market.
func (s *MarketService) Stats(ctx context.Context, marketID uuid.UUID) (*MarketStats, error) {
	m, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	traders, err := s.posRepo.CountDistinctTraders(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service.Stats: %w", err)
	}
	typeStats, err := s.txRepo.StatsByTypeForMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service.Stats: %w", err)
	}

	stats := &MarketStats{
		MarketID:      m.ID,
		UniqueTraders: traders,
		TotalVolume:   m.TotalVolume,
		BuyStats:      SideStat{Volume: decimal.Zero},
		SellStats:     SideStat{Volume: decimal.Zero},
	}
	for _, ts := range typeStats {
		switch ts.Type {
		case domain.TxBuy:
			stats.BuyStats = SideStat{Count: ts.Count, Volume: ts.Total}
		case domain.TxSell:
			stats.SellStats = SideStat{Count: ts.Count, Volume: ts.Total}
		}
	}
	return stats, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Comments
// ──────────────────────────────────────────────────────────────────────────────

// ListComments returns a market's discussion thread, oldest first.
func (s *MarketService) ListComments(ctx context.Context, marketID uuid.UUID, limit int) ([]*domain.CommentView, error) {
	if limit <= 0 {
		limit = commentsDefaultLimit
	}
	if limit > commentsMaxLimit {
		limit = commentsMaxLimit
	}
	if _, err := s.marketRepo.GetByID(ctx, marketID); err != nil {
		return nil, err
	}

	comments, err := s.commentRepo.ListByMarket(ctx, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service.ListComments: %w", err)
	}
	if comments == nil {
		comments = []*domain.CommentView{}
	}
	return comments, nil
}

// AddComment posts to a market's thread.
func (s *MarketService) AddComment(ctx context.Context, userID, marketID uuid.UUID, text string, parentID *uuid.UUID) (*domain.CommentView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrCommentEmpty
	}
	if len([]rune(text)) > commentMaxRunes {
		return nil, domain.ErrCommentTooLong
	}
	if _, err := s.marketRepo.GetByID(ctx, marketID); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &domain.Comment{
		ID:        uuid.New(),
		MarketID:  marketID,
		UserID:    userID,
		Text:      text,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.commentRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("market_service.AddComment: %w", err)
	}

	return &domain.CommentView{Comment: *c, Username: user.Username, FirstName: user.FirstName}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Admin operations
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarket opens a new market. The initial price seeds the last-trade
// price on CLOB markets; LMSR markets always start at 0.50 with equal
// outstanding quantities.
func (s *MarketService) CreateMarket(ctx context.Context, adminID uuid.UUID, in CreateMarketInput) (*MarketDetail, error) {
	now := time.Now().UTC()

	mech := in.Mechanism
	if mech == "" {
		mech = domain.MechanismLMSR
	}
	category := in.Category
	if category == "" {
		category = defaultCategory
	}
	liquidityB := in.LiquidityB
	if !liquidityB.IsPositive() {
		liquidityB = decimal.NewFromFloat(s.cfg.Trading.LiquidityB)
	}
	minBet := in.MinBet
	if !minBet.IsPositive() {
		minBet = decimal.NewFromFloat(s.cfg.Trading.MinBetDefault)
	}
	maxBet := in.MaxBet
	if !maxBet.IsPositive() {
		maxBet = decimal.NewFromFloat(s.cfg.Trading.MaxBetDefault)
	}

	initial := in.InitialPrice
	if initial.IsZero() {
		initial = decimal.NewFromFloat(0.5)
	}
	if initial.LessThan(domain.MinBookPrice) {
		initial = domain.MinBookPrice
	}
	if initial.GreaterThan(domain.MaxBookPrice) {
		initial = domain.MaxBookPrice
	}

	m := &domain.Market{
		ID:               uuid.New(),
		Title:            in.Title,
		Description:      in.Description,
		Category:         category,
		ImageURL:         in.ImageURL,
		Status:           domain.StatusOpen,
		Mechanism:        mech,
		QYes:             decimal.Zero,
		QNo:              decimal.Zero,
		LiquidityB:       liquidityB,
		MinBet:           minBet,
		MaxBet:           maxBet,
		TotalVolume:      decimal.Zero,
		ClosesAt:         in.ClosesAt.UTC(),
		ResolutionSource: in.ResolutionSource,
		CreatedBy:        &adminID,
		IsFeatured:       in.IsFeatured,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if mech == domain.MechanismCLOB {
		seed := domain.RoundPRC(initial)
		m.LastTradePriceYes = &seed
	}

	if err := s.marketRepo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("market_service.CreateMarket: %w", err)
	}
	s.cache.InvalidatePrefix(ctx, cache.MarketListPrefix)

	return s.detail(m), nil
}

// UpdateMarket applies partial admin edits to a market's presentation fields.
func (s *MarketService) UpdateMarket(ctx context.Context, marketID uuid.UUID, in UpdateMarketInput) (*MarketDetail, error) {
	m, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		m.Title = *in.Title
	}
	if in.Description != nil {
		m.Description = *in.Description
	}
	if in.Category != nil {
		m.Category = *in.Category
	}
	if in.ImageURL != nil {
		m.ImageURL = in.ImageURL
	}
	if in.IsFeatured != nil {
		m.IsFeatured = *in.IsFeatured
	}
	if in.ResolutionSource != nil {
		m.ResolutionSource = *in.ResolutionSource
	}

	if err := s.marketRepo.UpdateDetails(ctx, m); err != nil {
		return nil, fmt.Errorf("market_service.UpdateMarket: %w", err)
	}
	s.cache.Invalidate(ctx, cache.MarketKey(marketID))
	s.cache.InvalidatePrefix(ctx, cache.MarketListPrefix)

	return s.detail(m), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// User proposals
// ──────────────────────────────────────────────────────────────────────────────

// ProposeMarket records a user's market idea for admin review.
func (s *MarketService) ProposeMarket(ctx context.Context, userID uuid.UUID, title, description, category string, closesAt time.Time) (*domain.MarketProposal, error) {
	if category == "" {
		category = defaultCategory
	}
	now := time.Now().UTC()
	p := &domain.MarketProposal{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Category:    category,
		ClosesAt:    closesAt.UTC(),
		Status:      domain.ProposalPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.proposalRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("market_service.ProposeMarket: %w", err)
	}
	return p, nil
}

// MyProposals returns the caller's proposals, newest first.
func (s *MarketService) MyProposals(ctx context.Context, userID uuid.UUID) ([]*domain.MarketProposal, error) {
	proposals, err := s.proposalRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("market_service.MyProposals: %w", err)
	}
	return proposals, nil
}

// PendingProposals returns the review queue in submission order.
func (s *MarketService) PendingProposals(ctx context.Context) ([]*domain.MarketProposal, error) {
	proposals, err := s.proposalRepo.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service.PendingProposals: %w", err)
	}
	return proposals, nil
}

// ApproveProposal turns a pending proposal into a live LMSR market credited
// to the proposer.
func (s *MarketService) ApproveProposal(ctx context.Context, proposalID uuid.UUID) (*ProposalDecision, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("market_service.ApproveProposal: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var p *domain.MarketProposal
	p, err = s.proposalRepo.GetForUpdate(ctx, tx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.ProposalPending {
		err = domain.ErrProposalNotPending
		return nil, err
	}

	m := &domain.Market{
		ID:          uuid.New(),
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Status:      domain.StatusOpen,
		Mechanism:   domain.MechanismLMSR,
		QYes:        decimal.Zero,
		QNo:         decimal.Zero,
		LiquidityB:  decimal.NewFromFloat(s.cfg.Trading.LiquidityB),
		MinBet:      decimal.NewFromFloat(s.cfg.Trading.MinBetDefault),
		MaxBet:      decimal.NewFromFloat(s.cfg.Trading.MaxBetDefault),
		TotalVolume: decimal.Zero,
		ClosesAt:    p.ClosesAt,
		CreatedBy:   &p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.marketRepo.CreateInTx(ctx, tx, m); err != nil {
		return nil, err
	}

	p.Status = domain.ProposalApproved
	p.MarketID = &m.ID
	if err = s.proposalRepo.SetReviewed(ctx, tx, p); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("market_service.ApproveProposal: commit: %w", err)
	}

	s.cache.InvalidatePrefix(ctx, cache.MarketListPrefix)
	return &ProposalDecision{Status: p.Status, MarketID: p.MarketID}, nil
}

// RejectProposal declines a pending proposal with a reason shown to the
// proposer.
func (s *MarketService) RejectProposal(ctx context.Context, proposalID uuid.UUID, reason string) (*ProposalDecision, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("market_service.RejectProposal: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var p *domain.MarketProposal
	p, err = s.proposalRepo.GetForUpdate(ctx, tx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.ProposalPending {
		err = domain.ErrProposalNotPending
		return nil, err
	}

	p.Status = domain.ProposalRejected
	p.RejectionReason = &reason
	if err = s.proposalRepo.SetReviewed(ctx, tx, p); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("market_service.RejectProposal: commit: %w", err)
	}
	return &ProposalDecision{Status: p.Status}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduled sweep
// ──────────────────────────────────────────────────────────────────────────────

// CloseExpired flips open markets past their closing time to trading_closed
// and reports how many it closed. Resolution stays a manual admin step.
func (s *MarketService) CloseExpired(ctx context.Context) (int, error) {
	markets, err := s.marketRepo.ListExpiredOpen(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("market_service.CloseExpired: %w", err)
	}
	closed := 0
	for _, m := range markets {
		if err := s.marketRepo.SetTradingClosed(ctx, m.ID); err != nil {
			// Lost a race with another closer or with resolution; skip.
			if errors.Is(err, domain.ErrMarketNotOpen) {
				continue
			}
			return closed, fmt.Errorf("market_service.CloseExpired: %w", err)
		}
		closed++
		s.cache.Invalidate(ctx, cache.MarketKey(m.ID))
	}
	if closed > 0 {
		s.cache.InvalidatePrefix(ctx, cache.MarketListPrefix)
	}
	return closed, nil
}

// TopOpenTitles returns the titles of the busiest open markets, for the daily
// digest.
func (s *MarketService) TopOpenTitles(ctx context.Context, limit int) ([]string, error) {
	markets, err := s.marketRepo.TopByVolume(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service.TopOpenTitles: %w", err)
	}
	titles := make([]string, 0, len(markets))
	for _, m := range markets {
		titles = append(titles, m.Title)
	}
	return titles, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// priceYes derives the current YES probability: LMSR softmax for AMM markets,
// last fill (or mid) for book markets.
func (s *MarketService) priceYes(m *domain.Market) decimal.Decimal {
	if m.Mechanism == domain.MechanismCLOB {
		return m.LastPriceOrMid()
	}
	mm, err := lmsr.New(m.LiquidityB)
	if err != nil {
		return decimal.NewFromFloat(0.5)
	}
	return domain.RoundPrice(mm.Price(m.QYes, m.QNo))
}

func (s *MarketService) detail(m *domain.Market) *MarketDetail {
	priceYes := s.priceYes(m)
	return &MarketDetail{
		Market:   *m,
		PriceYes: priceYes,
		PriceNo:  domain.RoundPrice(one.Sub(priceYes)),
	}
}
