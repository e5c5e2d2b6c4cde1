package valueobjects

import (
	"regexp"
	"strings"

	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	evmAddressPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	solanaAddressPattern = regexp.MustCompile(`^[123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz]{32,44}$`)
	tronAddressPattern   = regexp.MustCompile(`^T[123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz]{33}$`)
	xrpAddressPattern    = regexp.MustCompile(`^r[rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz]{24,34}$`)
)

// NormalizeAddress returns the canonical form used for storage and for
// matching scanned transfer destinations.
func NormalizeAddress(chain Chain, address string) (string, *apperrors.AppError) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", apperrors.NewValidation(
			"invalid_request",
			"address is required",
			map[string]any{"field": "address"},
		)
	}

	var pattern *regexp.Regexp
	switch chain {
	case ChainETH, ChainBNB:
		if !evmAddressPattern.MatchString(trimmed) {
			return "", invalidAddress(chain)
		}
		return "0x" + strings.ToLower(strings.TrimPrefix(trimmed, "0x")), nil
	case ChainSOL:
		pattern = solanaAddressPattern
	case ChainTRX:
		pattern = tronAddressPattern
	case ChainXRP:
		pattern = xrpAddressPattern
	default:
		return "", apperrors.NewValidation(
			"unsupported_chain",
			"unsupported chain for address canonicalization",
			map[string]any{"chain": chain.String()},
		)
	}

	if !pattern.MatchString(trimmed) {
		return "", invalidAddress(chain)
	}
	return trimmed, nil
}

// FormatAddress renders a canonical address for display. EVM addresses get
// their EIP-55 checksum back; base58 formats are already case-significant.
func FormatAddress(chain Chain, canonical string) string {
	if chain.IsEVM() {
		return common.HexToAddress(canonical).Hex()
	}
	return canonical
}

func invalidAddress(chain Chain) *apperrors.AppError {
	return apperrors.NewValidation(
		"invalid_request",
		chain.NativeSymbol()+" address is invalid",
		map[string]any{"field": "address", "chain": chain.String()},
	)
}
