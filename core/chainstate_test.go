package core

import (
	"crypto/ecdsa"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

func testChainStateConfig() ChainStateConfig {
	return ChainStateConfig{
		CoinValue:             100_000,
		FeePerAccountCreation: 100_000,
		MaxTransferCount:      255,
		MaxGasUsagePerTx:      100_000_000,
		BlocksPerDay:          1,
		Freeze3DayMultiplier:  2,
		Freeze7DayMultiplier:  6,
		Freeze14DayMultiplier: 14,
	}
}

func newTestChainState(t *testing.T) *ChainState {
	t.Helper()
	return NewChainState(logrus.New(), 1, testChainStateConfig())
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, PubKey) {
	t.Helper()
	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pub PubKey
	copy(pub[:], gethcrypto.FromECDSAPub(&priv.PublicKey)[:32])
	return priv, pub
}

func signedTransfer(t *testing.T, priv *ecdsa.PrivateKey, src PubKey, nonce uint64, dest PubKey, amount, fee uint64) *Transaction {
	t.Helper()
	tx := &Transaction{
		Version: TxV0,
		ChainID: 1,
		Source:  src,
		Payload: Payload{Kind: PayloadTransfers, Transfers: &TransfersPayload{
			Plain: []Transfer{{Asset: NativeAsset, Destination: dest, Amount: amount}},
		}},
		Fee:     fee,
		FeeType: FeeTOS,
		Nonce:   nonce,
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}

func TestApplyTransferHappyPath(t *testing.T) {
	cs := newTestChainState(t)
	alicePriv, alice := newKey(t)
	_, bob := newKey(t)

	a := cs.Register(alice, 0)
	a.PlainBalances[NativeAsset] = 1_000 * cs.coinValue
	bAcct := cs.Register(bob, 0)
	_ = bAcct

	tx := signedTransfer(t, alicePriv, alice, 1, bob, 100*cs.coinValue, 5000)
	if err := cs.Apply(tx, 1); err != nil {
		t.Fatalf("apply: %v", err)
	}

	wantAlice := 1_000*cs.coinValue - 100*cs.coinValue - 5000
	if got := cs.accounts[alice].PlainBalances[NativeAsset]; got != wantAlice {
		t.Fatalf("alice balance = %d, want %d", got, wantAlice)
	}
	if got := cs.accounts[bob].PlainBalances[NativeAsset]; got != 100*cs.coinValue {
		t.Fatalf("bob balance = %d, want %d", got, 100*cs.coinValue)
	}
	if cs.accounts[alice].Nonce != 1 {
		t.Fatalf("alice nonce = %d, want 1", cs.accounts[alice].Nonce)
	}
}

func TestApplyTransferToUnregisteredChargesAccountCreationFee(t *testing.T) {
	cs := newTestChainState(t)
	alicePriv, alice := newKey(t)
	var bob PubKey
	bob[0] = 0x42

	a := cs.Register(alice, 0)
	a.PlainBalances[NativeAsset] = 1_000 * cs.coinValue

	tx := signedTransfer(t, alicePriv, alice, 1, bob, 200*cs.coinValue, 100_000)
	if err := cs.Apply(tx, 1); err != nil {
		t.Fatalf("apply: %v", err)
	}

	want := 1_000*cs.coinValue - 200*cs.coinValue - 100_000 - cs.feePerAccountCreation
	if got := cs.accounts[alice].PlainBalances[NativeAsset]; got != want {
		t.Fatalf("alice balance = %d, want %d", got, want)
	}
	if got := cs.accounts[bob].PlainBalances[NativeAsset]; got != 200*cs.coinValue {
		t.Fatalf("bob balance = %d, want %d", got, 200*cs.coinValue)
	}
}

func TestApplyNonceGap(t *testing.T) {
	cs := newTestChainState(t)
	alicePriv, alice := newKey(t)
	_, bob := newKey(t)
	cs.Register(alice, 0).PlainBalances[NativeAsset] = 1_000 * cs.coinValue

	tx := signedTransfer(t, alicePriv, alice, 5, bob, 1, 1) // expected nonce is 1
	err := cs.Apply(tx, 1)
	if err == nil {
		t.Fatalf("expected nonce-too-high rejection")
	}
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeNonceTooHigh {
		t.Fatalf("expected NONCE_TOO_HIGH, got %v", err)
	}
}

func TestApplyNonceTooLow(t *testing.T) {
	cs := newTestChainState(t)
	alicePriv, alice := newKey(t)
	_, bob := newKey(t)
	a := cs.Register(alice, 0)
	a.PlainBalances[NativeAsset] = 1_000 * cs.coinValue
	a.Nonce = 3

	tx := signedTransfer(t, alicePriv, alice, 2, bob, 1, 1)
	err := cs.Apply(tx, 1)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeNonceTooLow {
		t.Fatalf("expected NONCE_TOO_LOW, got %v", err)
	}
}

func TestApplyFreezeAndUnfreeze(t *testing.T) {
	cs := newTestChainState(t)
	cs.blocksPerDay = 10
	privA, a := newKey(t)
	cs.Register(a, 0).PlainBalances[NativeAsset] = 1_000 * cs.coinValue

	freezeTx := &Transaction{
		Version: TxV0, ChainID: 1, Source: a, Fee: 10, FeeType: FeeTOS, Nonce: 1,
		Payload: Payload{Kind: PayloadFreezeTOS, Freeze: &FreezePayload{
			Amount: 300 * cs.coinValue, Duration: Freeze7Day,
		}},
	}
	if err := freezeTx.Sign(privA); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := cs.Apply(freezeTx, 100); err != nil {
		t.Fatalf("apply freeze: %v", err)
	}
	wantEnergy := 300 * cs.freezeMultiplier[Freeze7Day]
	if got := cs.energyPoolOf(a); got != wantEnergy {
		t.Fatalf("energy pool = %d, want %d", got, wantEnergy)
	}

	unlockAt := cs.energy[a][0].UnlockTopoheight

	unfreezeTx := &Transaction{
		Version: TxV0, ChainID: 1, Source: a, Fee: 10, FeeType: FeeTOS, Nonce: 2,
		Payload: Payload{Kind: PayloadUnfreezeTOS, Unfreeze: &UnfreezePayload{
			Amount: 300 * cs.coinValue,
		}},
	}
	if err := unfreezeTx.Sign(privA); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := cs.Apply(unfreezeTx, unlockAt-1); err == nil {
		t.Fatalf("expected unfreeze before unlock to be rejected")
	}

	unfreezeTx.Nonce = 2
	if err := cs.Apply(unfreezeTx, unlockAt); err != nil {
		t.Fatalf("apply unfreeze: %v", err)
	}
	if len(cs.energy[a]) != 0 {
		t.Fatalf("expected freeze record removed, got %d remaining", len(cs.energy[a]))
	}
}

func TestApplyBurn(t *testing.T) {
	cs := newTestChainState(t)
	priv, a := newKey(t)
	cs.Register(a, 0).PlainBalances[NativeAsset] = 1_000

	tx := &Transaction{
		Version: TxV0, ChainID: 1, Source: a, Fee: 10, FeeType: FeeTOS, Nonce: 1,
		Payload: Payload{Kind: PayloadBurn, Burn: &BurnPayload{Asset: NativeAsset, Amount: 500}},
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := cs.Apply(tx, 1); err != nil {
		t.Fatalf("apply burn: %v", err)
	}
	if got := cs.accounts[a].PlainBalances[NativeAsset]; got != 1_000-500-10 {
		t.Fatalf("balance = %d", got)
	}
}

// A transaction that is simultaneously a self-transfer and carries a bad
// nonce must report the nonce violation: §4.3's precedence table ranks
// nonce discipline (7-9) ahead of self-referential payloads (17).
func TestApplySelfTransferWithBadNonceReportsNonceNotSelfOperation(t *testing.T) {
	cs := newTestChainState(t)
	alicePriv, alice := newKey(t)
	a := cs.Register(alice, 0)
	a.PlainBalances[NativeAsset] = 1_000 * cs.coinValue

	tx := signedTransfer(t, alicePriv, alice, 5, alice, 1, 1) // self-transfer, wrong nonce
	err := cs.Apply(tx, 1)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeNonceTooHigh {
		t.Fatalf("expected NONCE_TOO_HIGH to outrank SELF_OPERATION, got %v", err)
	}
}
