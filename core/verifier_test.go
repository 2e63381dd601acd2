package core

import "testing"

func TestVerifyStaticRejectsUnsupportedVersion(t *testing.T) {
	priv, pub := newKey(t)
	tx := signedTransfer(t, priv, pub, 1, PubKey{0xAA}, 1, 1)
	tx.Version = TxVersion(99)
	err := VerifyStatic(tx)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeInvalidVersion {
		t.Fatalf("expected INVALID_VERSION, got %v", err)
	}
}

func TestVerifyStaticRejectsBadSignature(t *testing.T) {
	priv, pub := newKey(t)
	tx := signedTransfer(t, priv, pub, 1, PubKey{0xAA}, 1, 1)
	tx.Signature[0] ^= 0xFF
	err := VerifyStatic(tx)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeInvalidSignature {
		t.Fatalf("expected INVALID_SIGNATURE, got %v", err)
	}
}

func TestVerifyStaticRejectsEnergyFeeOnBurn(t *testing.T) {
	priv, pub := newKey(t)
	tx := &Transaction{
		Version: TxV0, ChainID: 1, Source: pub, Fee: 10, FeeType: FeeEnergy, Nonce: 1,
		Payload: Payload{Kind: PayloadBurn, Burn: &BurnPayload{Asset: NativeAsset, Amount: 5}},
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	err := VerifyStatic(tx)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeInvalidFormat {
		t.Fatalf("expected INVALID_FORMAT for an energy fee on Burn, got %v", err)
	}
}

func TestVerifyStaticRejectsZeroAmountTransfer(t *testing.T) {
	priv, pub := newKey(t)
	tx := signedTransfer(t, priv, pub, 1, PubKey{0xAA}, 0, 10)
	err := VerifyStatic(tx)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeInvalidAmount {
		t.Fatalf("expected INVALID_AMOUNT, got %v", err)
	}
}

// Self-transfer detection ranks after nonce discipline, so VerifyStatic
// passes the transaction and Apply rejects it.
func TestSelfTransferPassesVerifyStaticAndFailsApply(t *testing.T) {
	priv, pub := newKey(t)
	tx := signedTransfer(t, priv, pub, 1, pub, 10, 1)
	if err := VerifyStatic(tx); err != nil {
		t.Fatalf("expected VerifyStatic to leave self-transfer detection to Apply, got %v", err)
	}
	cs := newTestChainState(t)
	cs.Register(pub, 0).PlainBalances[NativeAsset] = 1_000
	err := cs.Apply(tx, 1)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeSelfOperation {
		t.Fatalf("expected SELF_OPERATION, got %v", err)
	}
}

func TestVerifyStaticRejectsTooManyTransfers(t *testing.T) {
	priv, pub := newKey(t)
	plain := make([]Transfer, MaxTransferCount+1)
	for i := range plain {
		plain[i] = Transfer{Asset: NativeAsset, Destination: PubKey{byte(i + 1)}, Amount: 1}
	}
	tx := &Transaction{
		Version: TxV0, ChainID: 1, Source: pub, Fee: 1, FeeType: FeeTOS, Nonce: 1,
		Payload: Payload{Kind: PayloadTransfers, Transfers: &TransfersPayload{Plain: plain}},
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	err := VerifyStatic(tx)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeInvalidPayload {
		t.Fatalf("expected INVALID_PAYLOAD, got %v", err)
	}
}

func TestVerifyStaticChainChecksConfiguredChainID(t *testing.T) {
	cs := newTestChainState(t)
	priv, pub := newKey(t)
	tx := signedTransfer(t, priv, pub, 1, PubKey{0xAA}, 1, 1)
	tx.ChainID = 2
	err := cs.VerifyStatic(tx)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeInvalidChainID {
		t.Fatalf("expected INVALID_CHAIN_ID, got %v", err)
	}
}

func TestValidateNameRules(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"alice", true},
		{"al", false},           // too short
		{"1alice", false},       // must start with a letter
		{"alice-", false},       // trailing separator
		{"ali--ce", false},      // consecutive separators
		{"admin", false},        // reserved
		{"alice_2", true},
		{"adm1n", false},        // confusable with reserved "admin"
		{"r00t", false},         // confusable with reserved "root"
	}
	for _, tc := range cases {
		err := validateName(tc.name)
		if tc.ok && err != nil {
			t.Errorf("%q: expected valid, got %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%q: expected invalid, got nil", tc.name)
		}
	}
}
