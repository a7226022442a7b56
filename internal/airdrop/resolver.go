package airdrop

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Identity is either a wallet address or an opaque external identifier that
// still needs a resolution step. The tag is decided once, at the boundary,
// instead of duck-typing raw strings all over the engine.
type Identity struct {
	Addr      common.Address
	ID        string
	IsAddress bool
}

// IdentityFromString classifies s. Address-shaped strings (including the
// stream-id encodings) become Address identities; everything else stays an
// external id awaiting resolution.
func IdentityFromString(s string) Identity {
	s = strings.TrimSpace(s)
	if IsValidAddress(s) {
		return Identity{Addr: common.HexToAddress(s), IsAddress: true}
	}
	if addr, ok := ExtractAddressFromStreamID(s); ok {
		return Identity{Addr: addr, IsAddress: true}
	}
	return Identity{ID: s}
}

// RecipientResolver maps raw identities to a unique ordered list of payable
// addresses.
type RecipientResolver struct {
	treasury common.Address
	wallets  WalletResolver
	log      *zap.Logger
}

func NewRecipientResolver(treasury common.Address, wallets WalletResolver, log *zap.Logger) *RecipientResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecipientResolver{treasury: treasury, wallets: wallets, log: log}
}

// ResolveUnique resolves identities to wallets, skipping the treasury and the
// exclude set, deduplicating by lowercased address while preserving first-seen
// order. External ids that fail to resolve are dropped when onlyResolved is
// set; with onlyResolved=false an unresolved id is only usable if it already
// carries an address shape (the tagged classification catches that up front),
// so it is dropped as well and logged.
//
// The same input always yields the same ordered output given a stable
// resolver; amount-per-recipient math depends on that determinism.
func (r *RecipientResolver) ResolveUnique(ctx context.Context, identities []Identity, exclude []common.Address, onlyResolved bool) []common.Address {
	excluded := make(map[common.Address]struct{}, len(exclude)+1)
	excluded[r.treasury] = struct{}{}
	for _, e := range exclude {
		excluded[e] = struct{}{}
	}

	seen := make(map[string]struct{}, len(identities))
	out := make([]common.Address, 0, len(identities))
	for _, ident := range identities {
		addr := ident.Addr
		if !ident.IsAddress {
			if ident.ID == "" || r.wallets == nil {
				continue
			}
			resolved, ok, err := r.wallets.ResolveWallet(ctx, ident.ID)
			if err != nil {
				r.log.Warn("wallet resolution failed", zap.String("identity", ident.ID), zap.Error(err))
				continue
			}
			if !ok {
				if onlyResolved {
					continue
				}
				r.log.Debug("identity has no wallet and no address shape, dropped", zap.String("identity", ident.ID))
				continue
			}
			addr = resolved
		}
		if addr == (common.Address{}) {
			continue
		}
		if _, skip := excluded[addr]; skip {
			continue
		}
		key := strings.ToLower(addr.Hex())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// ResolveOne resolves a single identity, applying the same treasury guard.
func (r *RecipientResolver) ResolveOne(ctx context.Context, ident Identity) (common.Address, bool) {
	got := r.ResolveUnique(ctx, []Identity{ident}, nil, true)
	if len(got) == 0 {
		return common.Address{}, false
	}
	return got[0], true
}
