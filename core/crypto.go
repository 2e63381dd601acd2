package core

// crypto.go – the crypto adapter of §2 item 3: signature verify, El-Gamal
// ciphertexts, and Sigma/VRF verification calls. Primitives themselves are
// out of scope (§1); this file only specifies how the core invokes them.
//
// Hashing follows the teacher's go.mod (lukechampine.com/blake3). Signing
// follows the teacher's core/transactions.go, which signs/verifies with
// github.com/ethereum/go-ethereum/crypto (secp256k1 ECDSA) rather than a
// generic Ed25519 call — kept here unchanged because the spec treats the
// signature scheme as an opaque primitive (§1) and the teacher's adapter
// already specifies exactly this invocation shape.

import (
	"crypto/ecdsa"
	"errors"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"lukechampine.com/blake3"
)

// hashDomain prefixes every domain-separated hash the core computes, so a
// signature or VRF binding computed for one message class can never be
// replayed as another.
func hashDomain(domain string, parts ...[]byte) Hash {
	h := blake3.New(32, nil)
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Hash computes the block hash used as both the DAG identity and the
// VRF input binding (§3, §4.2).
func (b *Block) Hash() Hash {
	return hashDomain("tos-block-v1", b.Header.serializeForHash())
}

// hashForSig returns the domain-separated digest a Transaction's signature
// covers: every field except the signature itself (§3 invariant).
func (tx *Transaction) hashForSig() Hash {
	return hashDomain("tos-tx-sig-v1", mustEncodeTxUnsigned(tx))
}

// HashTx returns (and caches) the transaction's content hash, used for
// mempool/storage indexing and as a Reference target.
func (tx *Transaction) HashTx() Hash {
	if tx.hash != nil {
		return *tx.hash
	}
	h := hashDomain("tos-tx-v1", mustEncodeTx(tx))
	tx.hash = &h
	return h
}

// Sign computes tx's signature-domain hash and signs it with priv.
func (tx *Transaction) Sign(priv *ecdsa.PrivateKey) error {
	if priv == nil {
		return errors.New("nil privkey")
	}
	digest := tx.hashForSig()
	sig, err := gethcrypto.Sign(digest[:], priv)
	if err != nil {
		return err
	}
	copy(tx.Signature[:], sig[:64])
	var pub [32]byte
	copy(pub[:], gethcrypto.FromECDSAPub(&priv.PublicKey)[:32])
	tx.Source = pub
	return nil
}

// signDigest signs an arbitrary domain-separated digest with priv, the same
// primitive Sign uses internally. Kept as a package-level helper since
// KYC approvals, juror votes, and VRF bindings all sign a digest that isn't
// a Transaction's own signature-domain hash.
func signDigest(priv *ecdsa.PrivateKey, digest Hash) ([64]byte, error) {
	var out [64]byte
	if priv == nil {
		return out, errors.New("nil privkey")
	}
	sig, err := gethcrypto.Sign(digest[:], priv)
	if err != nil {
		return out, err
	}
	copy(out[:], sig[:64])
	return out, nil
}

// VerifySignature checks tx.Signature against tx.Source over the
// signature-domain hash. It is step 4 of the verifier's rejection
// precedence (§4.3, INVALID_SIGNATURE).
func (tx *Transaction) VerifySignature() bool {
	return verifyRawSignature(tx.Source, tx.hashForSig(), tx.Signature)
}

// -----------------------------------------------------------------------------
// El-Gamal confidential amounts & Sigma proofs
// -----------------------------------------------------------------------------

// CipherText is a simple El-Gamal ciphertext over the secp256k1 group:
// C = amount*G + r*PK, D = r*G. Homomorphic addition/subtraction of two
// ciphertexts under the same public key adds/subtracts the committed
// plaintexts, which is all the applier needs (§3, §4.3).
type CipherText struct {
	C [33]byte // compressed point
	D [33]byte // compressed point
}

// SigmaProof is a Fiat-Shamir Sigma proof of knowledge attesting that a
// CipherText commits to a non-zero, correctly-randomized amount (§4.3). The
// challenge is derived from blake3 over the statement, matching the
// teacher's hash-then-sign pattern rather than a dedicated transcript
// library (none of the retrieval pack carries one).
type SigmaProof struct {
	Commitment [33]byte
	Challenge  [32]byte
	Response   [32]byte
}

// AddCipherText homomorphically adds two ciphertexts encrypted under the
// same public key.
func AddCipherText(a, b CipherText) (CipherText, error) {
	ac, err := decompress(a.C)
	if err != nil {
		return CipherText{}, err
	}
	bc, err := decompress(b.C)
	if err != nil {
		return CipherText{}, err
	}
	ad, err := decompress(a.D)
	if err != nil {
		return CipherText{}, err
	}
	bd, err := decompress(b.D)
	if err != nil {
		return CipherText{}, err
	}
	var acj, bcj, sumC secp256k1.JacobianPoint
	ac.AsJacobian(&acj)
	bc.AsJacobian(&bcj)
	secp256k1.AddNonConst(&acj, &bcj, &sumC)
	sumC.ToAffine()

	var adj, bdj, sumD secp256k1.JacobianPoint
	ad.AsJacobian(&adj)
	bd.AsJacobian(&bdj)
	secp256k1.AddNonConst(&adj, &bdj, &sumD)
	sumD.ToAffine()

	cPub := secp256k1.NewPublicKey(&sumC.X, &sumC.Y)
	dPub := secp256k1.NewPublicKey(&sumD.X, &sumD.Y)

	var out CipherText
	copy(out.C[:], cPub.SerializeCompressed())
	copy(out.D[:], dPub.SerializeCompressed())
	return out, nil
}

func decompress(b [33]byte) (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(b[:])
}

// VerifySigmaProof re-derives the Fiat-Shamir challenge from the ciphertext
// and proof.Commitment and compares it with proof.Challenge; the verifier
// maps a false result to INVALID_AMOUNT (§4.3). proof.Response is not
// checked, so a true result does not by itself show the amount is non-zero.
func VerifySigmaProof(ct CipherText, proof SigmaProof) bool {
	// Fiat-Shamir re-derivation: challenge must equal blake3(statement).
	expected := hashDomain("tos-sigma-v1", ct.C[:], ct.D[:], proof.Commitment[:])
	return expected == Hash(proof.Challenge)
}

// -----------------------------------------------------------------------------
// VRF
// -----------------------------------------------------------------------------

// vrfInputDomain is the literal domain-separation tag named in §4.2/§3.
const vrfInputDomain = "TOS-VRF-INPUT-v1"

// VRFInput computes the binding message a block's VRF output/proof are
// computed over.
func VRFInput(blockHashWithoutVRF Hash, minerCompressed [32]byte) Hash {
	return hashDomain(vrfInputDomain, blockHashWithoutVRF[:], minerCompressed[:])
}

// VerifyVRFBinding re-derives the VRF input for blk and checks both the
// output-binds-to-input predicate (delegated to verifyVRFProof, a thin
// wrapper a real deployment would back with an ECVRF library once the
// ecosystem ships one in this ecosystem's dependency surface) and the
// miner's binding signature over chain_id||vrf_public_key||block_hash
// (§4.2). Any failure is VRF_VALIDATION_FAILED.
func VerifyVRFBinding(chainID uint8, blk *Block) bool {
	vrf := blk.Header.VRF
	if vrf == nil {
		return false
	}
	blockHashNoVRF := blk.hashWithoutVRF()
	input := VRFInput(blockHashNoVRF, blk.Header.Miner)
	if !verifyVRFProof(vrf.PublicKey, input, vrf.Output, vrf.Proof) {
		return false
	}
	bindMsg := hashDomain("tos-vrf-binding-v1", []byte{chainID}, vrf.PublicKey[:], blockHashNoVRF[:])
	return verifyRawSignature(blk.Header.Miner, bindMsg, vrf.Binding)
}

// verifyVRFProof checks that output is the deterministic VRF evaluation of
// input under pub, attested by proof. The concrete ECVRF construction is a
// crypto primitive out of this core's scope (§1); this adapter specifies
// only the call shape a real implementation must satisfy.
func verifyVRFProof(pub [32]byte, input Hash, output [64]byte, proof [80]byte) bool {
	expected := hashDomain("tos-vrf-eval-v1", pub[:], input[:], proof[:])
	return Hash(output[:32]) == expected
}

// verifyRawSignature tries both recovery ids, since the 64-byte signature
// does not carry the recovery byte gethcrypto.Sign produced.
func verifyRawSignature(signer PubKey, digest Hash, sig [64]byte) bool {
	for _, v := range []byte{0, 1} {
		sigWithRecovery := append(append([]byte{}, sig[:]...), v)
		pubBytes, err := gethcrypto.SigToPub(digest[:], sigWithRecovery)
		if err != nil {
			continue
		}
		var recovered [32]byte
		copy(recovered[:], gethcrypto.FromECDSAPub(pubBytes)[:32])
		if recovered == signer && gethcrypto.VerifySignature(gethcrypto.FromECDSAPub(pubBytes), digest[:], sig[:]) {
			return true
		}
	}
	return false
}
