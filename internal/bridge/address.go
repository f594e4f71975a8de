package bridge

import (
	"strings"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"

	"megabridge/internal/domain"
)

const (
	solanaPubkeyLen    = 32
	solanaSignatureLen = 64
	evmHashLen         = 32
)

// NormalizeAddress returns the ledger form of an address: EVM hex addresses
// lower-cased, anything else trimmed and kept as is (base58 is case-sensitive).
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if common.IsHexAddress(addr) {
		return strings.ToLower(common.HexToAddress(addr).Hex())
	}
	return addr
}

// ValidateAddress checks addr against the source chain's address format and
// returns its normalized form.
func ValidateAddress(chain domain.ChainKey, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if chain.IsSolana() {
		if !isSolanaWallet(addr) {
			return "", ErrInvalidAddress
		}
		return addr, nil
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", ErrInvalidAddress
	}
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(addr), nil
}

// ValidateTxHash checks a deposit transaction id against the source chain's format:
// a 0x-prefixed 32-byte hash on EVM chains, a 64-byte base58 signature on Solana.
func ValidateTxHash(chain domain.ChainKey, hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if chain.IsSolana() {
		sig, err := base58.Decode(hash)
		if err != nil || len(sig) != solanaSignatureLen {
			return "", ErrInvalidTxHash
		}
		return hash, nil
	}
	return validateEVMHash(hash)
}

func validateEVMHash(hash string) (string, error) {
	b, err := hexutil.Decode(hash)
	if err != nil || len(b) != evmHashLen {
		return "", ErrInvalidTxHash
	}
	return strings.ToLower(hash), nil
}

// isSolanaWallet reports whether addr is a base58 32-byte key on the ed25519 curve.
// Program-derived addresses are off-curve and cannot sign deposits.
func isSolanaWallet(addr string) bool {
	key, err := base58.Decode(addr)
	if err != nil || len(key) != solanaPubkeyLen {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(key)
	return err == nil
}
