package airdrop

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceConfig wires the lifecycle engine.
type ServiceConfig struct {
	Treasury common.Address
	// AdminTaxAddress receives the admin-tax leg; zero disables admin tax.
	AdminTaxAddress common.Address
	BatchCapacity   int
	// GraceDelay lets a final burst of joins settle before a cap-triggered
	// launch.
	GraceDelay time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.BatchCapacity <= 0 {
		c.BatchCapacity = DefaultBatchCapacity
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = 2 * time.Second
	}
	return c
}

// CreateRequest describes a new airdrop.
type CreateRequest struct {
	Creator          common.Address
	Type             Type
	JoinMode         bool
	Collection       common.Address
	Currency         common.Address
	CurrencyDecimals uint8
	TotalAmount      *big.Int
	TaxPercent       float64
	AdminTaxPercent  float64
	MaxParticipants  int
	Exclude          []common.Address
	OnlyResolved     bool
}

// Service owns every Airdrop record and drives the status lifecycle. All
// mutations go through it; distribution runs as a tracked background task per
// airdrop id, never two at once for the same id.
type Service struct {
	repo      Repository
	discovery *HolderDiscovery
	resolver  *RecipientResolver
	executor  *DistributionExecutor
	writer    Writer
	cfg       ServiceConfig
	log       *zap.Logger

	mu       sync.Mutex
	inflight map[string]chan struct{}
	observer func(id string, ok bool, runErr error)
}

func NewService(repo Repository, discovery *HolderDiscovery, resolver *RecipientResolver, executor *DistributionExecutor, writer Writer, cfg ServiceConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		discovery: discovery,
		resolver:  resolver,
		executor:  executor,
		writer:    writer,
		cfg:       cfg.withDefaults(),
		log:       log,
		inflight:  make(map[string]chan struct{}),
	}
}

// SetObserver registers a callback invoked when a distribution run finishes.
// ok reports the net payout leg only; tax-leg failures surface in runErr via
// logs but never flip ok.
func (s *Service) SetObserver(fn func(id string, ok bool, runErr error)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Create builds the record, computes the recipient set (scoped type) and the
// tax split, and persists it in pending.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Airdrop, error) {
	if req.TotalAmount == nil || req.TotalAmount.Sign() <= 0 {
		return nil, validationf("total amount must be positive")
	}
	if req.Currency == (common.Address{}) {
		return nil, validationf("currency contract is required")
	}
	switch req.Type {
	case TypeScoped, TypeOpen:
	default:
		return nil, validationf("unknown airdrop type %q", req.Type)
	}
	if req.Type == TypeScoped && req.Collection == (common.Address{}) {
		return nil, validationf("scoped airdrop requires a collection contract")
	}
	if req.MaxParticipants < 0 {
		return nil, validationf("max participants must be >= 0")
	}

	hasAdmin := s.cfg.AdminTaxAddress != (common.Address{})
	split := ComputeTax(req.TotalAmount, req.TaxPercent, req.AdminTaxPercent, hasAdmin)

	now := time.Now().UTC()
	a := &Airdrop{
		ID:               uuid.NewString(),
		CreatorAddress:   req.Creator,
		Type:             req.Type,
		JoinMode:         req.JoinMode || req.Type == TypeOpen,
		Collection:       req.Collection,
		Currency:         req.Currency,
		CurrencyDecimals: req.CurrencyDecimals,
		TotalAmount:      copyBig(req.TotalAmount),
		TaxPercent:       req.TaxPercent,
		TaxAmount:        split.HolderTax,
		AdminTaxPercent:  req.AdminTaxPercent,
		AdminTaxAmount:   split.AdminTax,
		NetAmount:        split.Net,
		MaxParticipants:  req.MaxParticipants,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if req.Type == TypeScoped {
		holders := s.discovery.DiscoverHolders(ctx, req.Collection)
		a.TaxHolders = holders
		identities := make([]Identity, len(holders))
		for i, h := range holders {
			identities[i] = Identity{Addr: h, IsAddress: true}
		}
		a.Participants = s.resolver.ResolveUnique(ctx, identities, req.Exclude, req.OnlyResolved)
	}
	a.recomputePerRecipient()

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info("airdrop created",
		zap.String("id", a.ID),
		zap.String("type", string(a.Type)),
		zap.Int("recipients", a.RecipientCount),
		zap.String("net", a.NetAmount.String()))
	return a.Clone(), nil
}

// ConfirmDeposit moves pending -> funded once the deposit tx has a successful
// receipt. A scoped airdrop with recipients launches immediately; a join-mode
// airdrop already at capacity launches after the grace delay.
func (s *Service) ConfirmDeposit(ctx context.Context, id string, txHash common.Hash) (*Airdrop, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending {
		return nil, validationf("deposit confirmation requires pending status, have %s", a.Status)
	}

	// Receipt polling can run up to the full receipt timeout; holding the
	// service lock here would stall every other airdrop.
	status, err := s.writer.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if status != types.ReceiptStatusSuccessful {
		return nil, validationf("deposit transaction %s did not succeed", txHash.Hex())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The record may have moved (cancel, a racing confirmation) while the
	// receipt was pending.
	a, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending {
		return nil, validationf("deposit confirmation requires pending status, have %s", a.Status)
	}

	a.DepositTxHash = txHash
	a.Status = StatusFunded
	a.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info("deposit confirmed", zap.String("id", a.ID), zap.String("tx", txHash.Hex()))

	if a.Type == TypeScoped && !a.JoinMode && a.RecipientCount > 0 {
		if err := s.startDistributionLocked(ctx, a.ID); err != nil {
			return nil, err
		}
	} else if a.JoinMode && a.MaxParticipants > 0 && a.RecipientCount >= a.MaxParticipants {
		s.launchAfterGrace(a.ID)
	}

	return s.repo.Get(ctx, id)
}

// Join appends a resolved wallet to a funded join-mode airdrop and recomputes
// the per-recipient amount. Scoped join-mode additionally requires membership
// in the discovered holder set.
func (s *Service) Join(ctx context.Context, id string, rawIdentity string) (*Airdrop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusFunded {
		return nil, validationf("join requires funded status, have %s", a.Status)
	}
	if !a.JoinMode {
		return nil, validationf("airdrop %s does not accept joins", id)
	}
	if a.MaxParticipants > 0 && len(a.Participants) >= a.MaxParticipants {
		return nil, validationf("airdrop %s is full (%d participants)", id, a.MaxParticipants)
	}

	ident := IdentityFromString(rawIdentity)
	wallet, ok := s.resolver.ResolveOne(ctx, ident)
	if !ok {
		return nil, validationf("identity %q does not resolve to a payable wallet", rawIdentity)
	}
	if a.Type == TypeScoped && !a.isHolder(wallet) {
		return nil, validationf("wallet %s is not a holder of collection %s", wallet.Hex(), a.Collection.Hex())
	}
	if a.hasParticipant(wallet) {
		return nil, validationf("wallet %s already joined", wallet.Hex())
	}

	a.Participants = append(a.Participants, wallet)
	a.recomputePerRecipient()
	a.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info("participant joined",
		zap.String("id", a.ID),
		zap.String("wallet", wallet.Hex()),
		zap.Int("count", a.RecipientCount))

	if a.MaxParticipants > 0 && a.RecipientCount >= a.MaxParticipants {
		s.launchAfterGrace(a.ID)
	}
	return a.Clone(), nil
}

// Launch manually moves a funded airdrop into distribution.
func (s *Service) Launch(ctx context.Context, id string) (*Airdrop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startDistributionLocked(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Cancel marks a pending or funded airdrop cancelled. Records in distributing
// or terminal states are immutable; an in-flight run is never interrupted.
func (s *Service) Cancel(ctx context.Context, id string) (*Airdrop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending && a.Status != StatusFunded {
		return nil, validationf("cannot cancel airdrop in %s status", a.Status)
	}
	a.Status = StatusCancelled
	a.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info("airdrop cancelled", zap.String("id", a.ID))
	return a.Clone(), nil
}

// Get returns one airdrop record.
func (s *Service) Get(ctx context.Context, id string) (*Airdrop, error) {
	return s.repo.Get(ctx, id)
}

// ListByCreator returns all airdrops funded by creator.
func (s *Service) ListByCreator(ctx context.Context, creator common.Address) ([]*Airdrop, error) {
	return s.repo.ListByCreator(ctx, creator)
}

// ListOpenJoinable returns funded join-mode airdrops with capacity left.
func (s *Service) ListOpenJoinable(ctx context.Context) ([]*Airdrop, error) {
	return s.repo.ListOpenJoinable(ctx)
}

// WaitDistribution blocks until the in-flight distribution run for id (if
// any) finishes. Status is the source of truth for the outcome.
func (s *Service) WaitDistribution(id string) {
	s.mu.Lock()
	done, ok := s.inflight[id]
	s.mu.Unlock()
	if ok {
		<-done
	}
}

// launchAfterGrace schedules a cap-triggered launch after the grace delay.
func (s *Service) launchAfterGrace(id string) {
	go func() {
		time.Sleep(s.cfg.GraceDelay)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.startDistributionLocked(context.Background(), id); err != nil {
			s.log.Warn("cap-triggered launch skipped", zap.String("id", id), zap.Error(err))
		}
	}()
}

// startDistributionLocked is the single gate into distributing: it refuses a
// second concurrent run for the same id and flips funded -> distributing
// atomically under the service lock before spawning the run task.
func (s *Service) startDistributionLocked(ctx context.Context, id string) error {
	if _, running := s.inflight[id]; running {
		return validationf("distribution already running for %s", id)
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != StatusFunded {
		return validationf("launch requires funded status, have %s", a.Status)
	}
	if a.RecipientCount == 0 {
		return validationf("airdrop %s has no recipients", id)
	}

	a.Status = StatusDistributing
	a.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return err
	}

	done := make(chan struct{})
	s.inflight[id] = done
	go s.runDistribution(id, done)
	return nil
}

// runDistribution executes the three payout legs. Only the net leg gates the
// completed transition; tax legs are logged partial failures. A failed net
// leg rolls status back to funded so a retry can be triggered.
func (s *Service) runDistribution(id string, done chan struct{}) {
	// Detached from the triggering request on purpose; outcome is observable
	// through status and the observer callback.
	ctx := context.Background()

	var runOK bool
	var runErr error
	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		observer := s.observer
		s.mu.Unlock()
		close(done)
		if observer != nil {
			observer(id, runOK, runErr)
		}
	}()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		runErr = err
		s.log.Error("distribution run could not load record", zap.String("id", id), zap.Error(err))
		return
	}

	netBatches := PlanBatches(a.Participants, a.AmountPerRecipient, s.cfg.BatchCapacity)
	outcome := s.executor.ExecuteBatches(ctx, s.cfg.Treasury, a.Currency, netBatches)
	if !outcome.OK {
		runErr = outcome.Err
		s.log.Error("net payout failed, rolling back to funded",
			zap.String("id", id),
			zap.Int("confirmed", outcome.BatchesConfirmed),
			zap.Error(outcome.Err))
		a.Status = StatusFunded
		a.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, a); err != nil {
			s.log.Error("rollback update failed", zap.String("id", id), zap.Error(err))
		}
		return
	}
	a.DistributionTxHash = outcome.LastTxHash

	// Tax legs: attempted after the net leg, never rolled back.
	if a.TaxAmount != nil && a.TaxAmount.Sign() > 0 && len(a.TaxHolders) > 0 {
		amountEach := new(big.Int).Div(a.TaxAmount, big.NewInt(int64(len(a.TaxHolders))))
		if amountEach.Sign() > 0 {
			taxOutcome := s.executor.ExecuteBatches(ctx, s.cfg.Treasury, a.Currency,
				PlanBatches(a.TaxHolders, amountEach, s.cfg.BatchCapacity))
			if taxOutcome.OK {
				a.TaxDistributionTxHash = taxOutcome.LastTxHash
			} else {
				s.log.Error("holder-tax payout failed (partial distribution)",
					zap.String("id", id), zap.Error(taxOutcome.Err))
			}
		}
	}
	if a.AdminTaxAmount != nil && a.AdminTaxAmount.Sign() > 0 && s.cfg.AdminTaxAddress != (common.Address{}) {
		adminOutcome := s.executor.ExecuteBatches(ctx, s.cfg.Treasury, a.Currency,
			PlanBatches([]common.Address{s.cfg.AdminTaxAddress}, a.AdminTaxAmount, 1))
		if adminOutcome.OK {
			a.AdminTaxDistributionTxHash = adminOutcome.LastTxHash
		} else {
			s.log.Error("admin-tax payout failed (partial distribution)",
				zap.String("id", id), zap.Error(adminOutcome.Err))
		}
	}

	a.Status = StatusCompleted
	a.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		runErr = err
		s.log.Error("completion update failed", zap.String("id", id), zap.Error(err))
		return
	}
	runOK = true
	s.log.Info("distribution completed",
		zap.String("id", id),
		zap.Int("recipients", a.RecipientCount),
		zap.String("tx", a.DistributionTxHash.Hex()))
}
