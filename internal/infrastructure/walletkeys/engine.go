package walletkeys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	valueobjects "depositwatch/internal/domain/value_objects"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
	tronaddress "github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/tyler-smith/go-bip32"
	"golang.org/x/crypto/hkdf"
)

const (
	purposeBIP44 = bip32.FirstHardenedChild + 44
	coinTypeEVM  = bip32.FirstHardenedChild + 60
	coinTypeTron = bip32.FirstHardenedChild + 195
	account0     = bip32.FirstHardenedChild
	changeExt    = 0

	solanaSeedSalt = "sol-deposit"
)

// DerivedAddress is the engine's result for one (chain, user). Memo is set
// only for shared-address chains; Path only for BIP-32 derived chains.
type DerivedAddress struct {
	Chain   valueobjects.Chain
	Address string
	Memo    *uint32
	Index   uint32
	Path    string
}

type EngineConfig struct {
	XRPSharedAddress string
}

// Engine derives per-user deposit addresses. It holds no mutable state after
// construction and is safe for concurrent use.
type Engine struct {
	secret           *MasterSecret
	master           *bip32.Key
	xrpSharedAddress string
}

func NewEngine(secret *MasterSecret, config EngineConfig) (*Engine, *KeyError) {
	seed := secret.seedBytes()
	if len(seed) == 0 {
		return nil, wrapKeyError(CodeInvalidConfiguration, "master secret is required", nil)
	}

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, wrapKeyError(CodeInvalidKeyMaterialFormat, "master key could not be created", err)
	}

	return &Engine{
		secret:           secret,
		master:           master,
		xrpSharedAddress: strings.TrimSpace(config.XRPSharedAddress),
	}, nil
}

// DerivationIndexFor is the per-user index: the first four bytes of
// sha256(userID) read big-endian.
func DerivationIndexFor(userID string) uint32 {
	return valueobjects.NewDerivationIndex(userID).Uint32()
}

func (e *Engine) Derive(chain valueobjects.Chain, userID string) (DerivedAddress, *KeyError) {
	if userID == "" {
		return DerivedAddress{}, wrapKeyError(CodeInvalidConfiguration, "user id is required", nil)
	}

	index := DerivationIndexFor(userID)
	if chain == valueobjects.ChainSOL {
		return e.deriveSolana(userID, index)
	}
	return e.DeriveAtIndex(chain, index)
}

// DeriveAtIndex derives the address at an explicit index. Solana keys are
// seeded from the user id itself, so it is not index addressable.
func (e *Engine) DeriveAtIndex(chain valueobjects.Chain, index uint32) (DerivedAddress, *KeyError) {
	switch chain {
	case valueobjects.ChainETH, valueobjects.ChainBNB:
		return e.deriveSecp256k1(chain, coinTypeEVM, index, func(key *bip32.Key) (string, error) {
			publicKey, err := crypto.DecompressPubkey(key.PublicKey().Key)
			if err != nil {
				return "", err
			}
			return crypto.PubkeyToAddress(*publicKey).Hex(), nil
		})
	case valueobjects.ChainTRX:
		return e.deriveSecp256k1(chain, coinTypeTron, index, func(key *bip32.Key) (string, error) {
			publicKey, err := crypto.DecompressPubkey(key.PublicKey().Key)
			if err != nil {
				return "", err
			}
			return tronaddress.PubkeyToAddress(*publicKey).String(), nil
		})
	case valueobjects.ChainXRP:
		if e.xrpSharedAddress == "" {
			return DerivedAddress{}, wrapKeyError(CodeInvalidConfiguration, "xrp shared address is not configured", nil)
		}
		memo := index
		return DerivedAddress{Chain: chain, Address: e.xrpSharedAddress, Memo: &memo, Index: index}, nil
	case valueobjects.ChainSOL:
		return DerivedAddress{}, wrapKeyError(CodeUnsupportedTarget, "sol addresses are derived from the user id, not an index", nil)
	default:
		return DerivedAddress{}, wrapKeyError(CodeUnsupportedTarget, "chain not supported", nil)
	}
}

func (e *Engine) deriveSecp256k1(
	chain valueobjects.Chain,
	coinType uint32,
	index uint32,
	encode func(key *bip32.Key) (string, error),
) (DerivedAddress, *KeyError) {
	key := e.master
	for _, child := range []uint32{purposeBIP44, coinType, account0, changeExt, index} {
		next, err := key.NewChildKey(child)
		if err != nil {
			return DerivedAddress{}, wrapKeyError(CodeDerivationFailed, "child key derivation failed", err)
		}
		key = next
	}

	address, err := encode(key)
	if err != nil {
		return DerivedAddress{}, wrapKeyError(CodeDerivationFailed, "public key encoding failed", err)
	}

	return DerivedAddress{
		Chain:   chain,
		Address: address,
		Index:   index,
		Path:    derivationPath(coinType, index),
	}, nil
}

func (e *Engine) deriveSolana(userID string, index uint32) (DerivedAddress, *KeyError) {
	reader := hkdf.New(sha256.New, e.secret.seedBytes(), []byte(solanaSeedSalt), []byte(userID))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return DerivedAddress{}, wrapKeyError(CodeDerivationFailed, "solana seed expansion failed", err)
	}

	publicKey := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	return DerivedAddress{
		Chain:   valueobjects.ChainSOL,
		Address: base58.Encode(publicKey),
		Index:   index,
	}, nil
}

// derivationPath renders m/44'/coin'/0'/0/index. Indices at or above 2^31
// are hardened children, shown with the offset removed and a trailing '.
func derivationPath(coinType uint32, index uint32) string {
	last := fmt.Sprintf("%d", index)
	if index >= bip32.FirstHardenedChild {
		last = fmt.Sprintf("%d'", index-bip32.FirstHardenedChild)
	}
	return fmt.Sprintf("m/44'/%d'/0'/0/%s", coinType-bip32.FirstHardenedChild, last)
}
