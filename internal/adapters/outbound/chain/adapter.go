package chain

import (
	"fmt"
	"strings"

	portsout "depositwatch/internal/application/ports/out"
	valueobjects "depositwatch/internal/domain/value_objects"
	"depositwatch/internal/infrastructure/walletkeys"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

// Deriver is the slice of walletkeys.Engine an adapter needs.
type Deriver interface {
	Derive(chain valueobjects.Chain, userID string) (walletkeys.DerivedAddress, *walletkeys.KeyError)
}

// Sources are the optional observation clients of one chain. A chain without
// a configured endpoint still derives addresses but cannot be scanned.
type Sources struct {
	Blocks        portsout.BlockSource
	History       portsout.AccountHistorySource
	SharedAddress string
}

type Adapter struct {
	chain         valueobjects.Chain
	deriver       Deriver
	blocks        portsout.BlockSource
	history       portsout.AccountHistorySource
	sharedAddress string
}

var _ portsout.ChainAdapter = (*Adapter)(nil)

func NewAdapter(chain valueobjects.Chain, deriver Deriver, sources Sources) *Adapter {
	return &Adapter{
		chain:         chain,
		deriver:       deriver,
		blocks:        sources.Blocks,
		history:       sources.History,
		sharedAddress: strings.TrimSpace(sources.SharedAddress),
	}
}

func (a *Adapter) Chain() valueobjects.Chain {
	return a.chain
}

func (a *Adapter) DeriveAddress(userID string) (portsout.DerivedAddress, *apperrors.AppError) {
	if a.deriver == nil {
		return portsout.DerivedAddress{}, apperrors.NewInternal(
			"invalid_configuration",
			"address deriver is not configured",
			map[string]any{"chain": a.chain.String()},
		)
	}

	derived, keyErr := a.deriver.Derive(a.chain, userID)
	if keyErr != nil {
		return portsout.DerivedAddress{}, mapKeyError(a.chain, keyErr)
	}

	canonical, appErr := valueobjects.NormalizeAddress(a.chain, derived.Address)
	if appErr != nil {
		return portsout.DerivedAddress{}, apperrors.NewInternal(
			"address_derivation_failed",
			"derived address failed validation",
			map[string]any{"chain": a.chain.String(), "reason": appErr.Message},
		)
	}

	return portsout.DerivedAddress{
		Address:          valueobjects.FormatAddress(a.chain, canonical),
		AddressCanonical: canonical,
		Memo:             derived.Memo,
		DerivationIndex:  valueobjects.DerivationIndex(derived.Index),
	}, nil
}

func (a *Adapter) BlockSource() (portsout.BlockSource, bool) {
	return a.blocks, a.blocks != nil
}

func (a *Adapter) AccountHistorySource() (portsout.AccountHistorySource, bool) {
	return a.history, a.history != nil
}

func (a *Adapter) SharedAddress() (string, bool) {
	return a.sharedAddress, a.sharedAddress != ""
}

func mapKeyError(chain valueobjects.Chain, keyErr *walletkeys.KeyError) *apperrors.AppError {
	details := map[string]any{
		"chain":  chain.String(),
		"reason": keyErr.Message,
	}
	if keyErr.Cause != nil {
		details["cause"] = keyErr.Cause.Error()
	}

	switch keyErr.Code {
	case walletkeys.CodeUnsupportedTarget:
		return apperrors.NewValidation("unsupported_chain", keyErr.Message, details)
	case walletkeys.CodeInvalidConfiguration, walletkeys.CodeInvalidKeyMaterialFormat, walletkeys.CodeDerivationFailed:
		return apperrors.NewInternal(string(keyErr.Code), keyErr.Message, details)
	default:
		return apperrors.NewInternal("address_derivation_failed", fmt.Sprintf("address derivation failed: %s", keyErr.Message), details)
	}
}
