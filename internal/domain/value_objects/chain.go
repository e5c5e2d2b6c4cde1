package valueobjects

import (
	"strings"

	apperrors "depositwatch/internal/shared_kernel/errors"
)

type Chain string

const (
	ChainETH Chain = "eth"
	ChainBNB Chain = "bnb"
	ChainSOL Chain = "sol"
	ChainTRX Chain = "trx"
	ChainXRP Chain = "xrp"
)

var supportedChains = []Chain{ChainETH, ChainBNB, ChainSOL, ChainTRX, ChainXRP}

var chainAliases = map[string]Chain{
	"eth":      ChainETH,
	"ethereum": ChainETH,
	"bnb":      ChainBNB,
	"bsc":      ChainBNB,
	"sol":      ChainSOL,
	"solana":   ChainSOL,
	"trx":      ChainTRX,
	"tron":     ChainTRX,
	"xrp":      ChainXRP,
	"xrpl":     ChainXRP,
	"ripple":   ChainXRP,
}

func SupportedChains() []Chain {
	out := make([]Chain, len(supportedChains))
	copy(out, supportedChains)
	return out
}

func ParseChain(raw string) (Chain, *apperrors.AppError) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", apperrors.NewValidation(
			"invalid_request",
			"chain is required",
			map[string]any{"field": "chain"},
		)
	}

	chain, exists := chainAliases[normalized]
	if !exists {
		return "", apperrors.NewValidation(
			"unsupported_chain",
			"chain is not supported",
			map[string]any{"chain": normalized},
		)
	}

	return chain, nil
}

func (c Chain) String() string {
	return string(c)
}

func (c Chain) IsEVM() bool {
	return c == ChainETH || c == ChainBNB
}

// UsesSharedAddress reports chains where every user pays the same address and
// is told apart by a numeric memo (destination tag).
func (c Chain) UsesSharedAddress() bool {
	return c == ChainXRP
}

// HasBlockEnumeration is false for chains scanned through account history.
func (c Chain) HasBlockEnumeration() bool {
	return c != ChainXRP
}

func (c Chain) NativeSymbol() string {
	switch c {
	case ChainETH:
		return "ETH"
	case ChainBNB:
		return "BNB"
	case ChainSOL:
		return "SOL"
	case ChainTRX:
		return "TRX"
	case ChainXRP:
		return "XRP"
	default:
		return strings.ToUpper(string(c))
	}
}

// NativeDecimals is the exponent between the chain's base unit
// (wei, lamports, sun, drops) and one whole coin.
func (c Chain) NativeDecimals() int32 {
	switch c {
	case ChainETH, ChainBNB:
		return 18
	case ChainSOL:
		return 9
	case ChainTRX, ChainXRP:
		return 6
	default:
		return 0
	}
}
