package walletkeys

import (
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// MasterSecret holds the expanded BIP-39 seed. It is process configuration
// only and must never be persisted next to derived addresses.
type MasterSecret struct {
	seed []byte
}

// LoadMasterSecret validates mnemonic and expands it with passphrase once.
// Inner whitespace is collapsed so secrets read from files compare equal.
func LoadMasterSecret(mnemonic string, passphrase string) (*MasterSecret, *KeyError) {
	normalized := strings.Join(strings.Fields(mnemonic), " ")
	if normalized == "" {
		return nil, wrapKeyError(CodeInvalidConfiguration, "master mnemonic is required", nil)
	}
	if !bip39.IsMnemonicValid(normalized) {
		return nil, wrapKeyError(CodeInvalidKeyMaterialFormat, "master mnemonic is not a valid bip39 phrase", nil)
	}

	seed, err := bip39.NewSeedWithErrorChecking(normalized, passphrase)
	if err != nil {
		return nil, wrapKeyError(CodeInvalidKeyMaterialFormat, "master mnemonic could not be expanded", err)
	}

	return &MasterSecret{seed: seed}, nil
}

func (s *MasterSecret) String() string {
	return "MasterSecret(redacted)"
}

func (s *MasterSecret) GoString() string {
	return s.String()
}

func (s *MasterSecret) seedBytes() []byte {
	if s == nil {
		return nil
	}
	return s.seed
}
