// Package signature provides helper functions for handling the blockchain
// signature and hashing needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// grokID is an arbitrary number for signing messages. This will make it
// clear that the signature comes from the Grok blockchain.
// Ethereum and Bitcoin do this as well, but they use the value of 27.
const grokID = 29

// Set of error variables for signature handling.
var (
	ErrInvalidLength     = errors.New("invalid signature length")
	ErrInvalidRecoveryID = errors.New("invalid recovery id")
	ErrInvalidValues     = errors.New("invalid signature values")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// =============================================================================

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Mix returns the blake2b-256 hash of prev followed by data. This is the
// hash used to extend the proof of history sequence.
func Mix(prev []byte, data []byte) [32]byte {
	buf := make([]byte, 0, len(prev)+len(data))
	buf = append(buf, prev...)
	buf = append(buf, data...)

	return blake2b.Sum256(buf)
}

// Sign uses the specified private key to sign the data. The signature is
// returned in the 65 byte [R|S|V] format with the grokID added to V.
func Sign(value any, privateKey *ecdsa.PrivateKey) ([]byte, error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return nil, err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, err
	}

	// Extract the public key from the data and the signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return nil, ErrInvalidSignature
	}

	sig[crypto.RecoveryIDOffset] += grokID

	return sig, nil
}

// VerifySignature verifies the signature conforms to our standards.
func VerifySignature(sig []byte) error {
	if len(sig) != crypto.SignatureLength {
		return ErrInvalidLength
	}

	// Check the recovery id is either 0 or 1.
	v := sig[crypto.RecoveryIDOffset]
	if v != grokID && v != grokID+1 {
		return ErrInvalidRecoveryID
	}

	// Check the signature values are valid.
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v-grokID, r, s, true) {
		return ErrInvalidValues
	}

	return nil
}

// FromAddress extracts the address for the account that signed the data
// after checking the signature verifies against the recovered key.
func FromAddress(value any, sig []byte) (string, error) {
	if err := VerifySignature(sig); err != nil {
		return "", err
	}

	// Prepare the data for public key extraction.
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	// Capture the public key associated with this data and signature.
	raw := ToSignatureBytes(sig)
	publicKey, err := crypto.SigToPub(data, raw)
	if err != nil {
		return "", err
	}

	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, raw[:crypto.RecoveryIDOffset]) {
		return "", ErrInvalidSignature
	}

	// Extract the account address from the public key.
	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// VerifyWithKey reports whether the signature was produced over the value by
// the owner of the uncompressed public key. Malformed input returns false.
func VerifyWithKey(publicKey []byte, value any, sig []byte) bool {
	if err := VerifySignature(sig); err != nil {
		return false
	}

	data, err := stamp(value)
	if err != nil {
		return false
	}

	return crypto.VerifySignature(publicKey, data, sig[:crypto.RecoveryIDOffset])
}

// SignatureString returns the signature as a string.
func SignatureString(sig []byte) string {
	return hexutil.Encode(sig)
}

// ToSignatureBytes returns a copy of the signature with the grokID removed
// from the recovery id.
func ToSignatureBytes(sig []byte) []byte {
	raw := make([]byte, len(sig))
	copy(raw, sig)

	if len(raw) == crypto.SignatureLength {
		raw[crypto.RecoveryIDOffset] -= grokID
	}

	return raw
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the Grok stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {

	// Marshal the data.
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Hash the data data into a 32 byte array. This will provide
	// a data length consistency with all data.
	txHash := crypto.Keccak256(v)

	// Convert the stamp into a slice of bytes. This stamp is
	// used so signatures we produce when signing data
	// are always unique to the Grok blockchain.
	stamp := []byte("\x19Grok Signed Message:\n32")

	// Hash the stamp and txHash together in a final 32 byte array
	// that represents the data.
	data := crypto.Keccak256(stamp, txHash)

	return data, nil
}
