// Package signature validates mutation requests against the personal-message
// signature carried with them. Identity is derived from the signature alone;
// nothing is ever looked up or stored.
package signature

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/scbrf/comments/internal/thread"
)

// Rejection messages, surfaced to clients verbatim.
var (
	// ErrNotAllowed means mutation parameters were supplied without a
	// signature. Unsigned requests may carry no fields at all; those pass
	// through as anonymous read increments.
	ErrNotAllowed = errors.New("not allow")

	// ErrSignMismatch means the recovered signer differs from the claimed
	// from address.
	ErrSignMismatch = errors.New("sign mismatch")
)

// placeholder substitutes for every empty or absent field so the canonical
// message stays positional and unambiguous.
const placeholder = "_"

// CanonicalMessage builds the exact byte string the client signed: the
// ordered concatenation of status, from, content, id and replyTo with "_"
// standing in for empty fields.
func CanonicalMessage(status, from, content, id, replyTo string) string {
	fields := []string{status, from, content, id, replyTo}
	var b strings.Builder
	for _, f := range fields {
		if f == "" {
			f = placeholder
		}
		b.WriteString(f)
	}
	return b.String()
}

// Validate enforces the "no parameters without proof of identity" rule and,
// when a signature is present, checks that it recovers to the claimed from
// address. A mutation with no fields at all is accepted unauthenticated.
func Validate(m *thread.Mutation) error {
	hasParams := m.Status != "" || m.From != "" || m.Content != nil || m.ID != "" || m.ReplyTo != ""
	if hasParams && m.Sign == "" {
		return ErrNotAllowed
	}
	if m.Sign == "" {
		return nil
	}

	content := ""
	if m.Content != nil {
		content = *m.Content
	}
	msg := CanonicalMessage(m.Status, m.From, content, m.ID, m.ReplyTo)

	addr, err := Recover(msg, m.Sign)
	if err != nil {
		log.Debug().Err(err).Str("from", m.From).Msg("signature recovery failed")
		return ErrSignMismatch
	}
	if !strings.EqualFold(addr, m.From) {
		log.Debug().Str("expect", m.From).Str("got", addr).Msg("signer mismatch")
		return ErrSignMismatch
	}
	return nil
}

// Recover returns the 0x address that produced sigHex over message, using
// the personal-message scheme (EIP-191): the message is prefixed and
// keccak-hashed before ECDSA recovery. Both recovery id conventions are
// accepted: 0/1 as emitted by raw secp256k1 signers and 27/28 as emitted by
// wallets.
func Recover(message, sigHex string) (string, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := personalHash(message)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// personalHash is keccak256 of the EIP-191 personal-message envelope.
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
