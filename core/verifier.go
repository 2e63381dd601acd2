package core

// verifier.go – the stateless/static half of §4.3's precedence-ordered
// rejection checks (1-6): version, chain id, signature, amount-zero, and
// payload-shape validation. These never mutate state and are safe to run
// against every mempool candidate in parallel (§5 "transaction verification
// can run in parallel across transactions"). The state-dependent checks
// (nonce discipline onward) live in chainstate.go/payloads.go, since they
// need a mutable view of accounts, escrows, committees etc.
//
// Grounded on the teacher's core/transactions.go Validate/VerifyTx pair: one
// function, one early-return per failure mode, in the same order the
// teacher checks fields before touching the ledger.

const maxNameLength = 32
const minNameLength = 3

var reservedNames = map[string]bool{
	"admin": true, "root": true, "tos": true, "system": true, "null": true,
}

// confusableFold maps visually-ambiguous ASCII characters onto a single
// canonical representative, so "adm1n" and "adrnin" fold to the same shape
// as "admin". The character set enforced earlier in validateName is already
// limited to ASCII letters/digits/separators, so this table only needs to
// cover confusions within that set rather than cross-script homoglyphs.
var confusableFold = map[byte]byte{
	'0': 'o', 'o': 'o', // digit zero / letter o
	'1': 'l', 'l': 'l', 'i': 'l', // digit one / lowercase L / lowercase i
	'5': 's', 's': 's',
	'8': 'b', 'b': 'b',
	'2': 'z', 'z': 'z',
}

// foldedReservedNames holds the confusable-folded form of every reserved
// name, built once so validateName can compare folded-against-folded rather
// than folded-against-raw.
var foldedReservedNames = func() map[string]bool {
	out := make(map[string]bool, len(reservedNames))
	for name := range reservedNames {
		out[foldConfusables(name)] = true
	}
	return out
}()

// foldConfusables canonicalizes name for the confusable-name heuristic: each
// byte maps through confusableFold (unmapped bytes pass through unchanged),
// and the two-letter sequence "rn" - which reads as "m" at a glance - folds
// to a single 'm'.
func foldConfusables(name string) string {
	s := lower(name)
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 'r' && i+1 < len(s) && s[i+1] == 'n' {
			b = append(b, 'm')
			i++
			continue
		}
		if f, ok := confusableFold[s[i]]; ok {
			b = append(b, f)
		} else {
			b = append(b, s[i])
		}
	}
	return string(b)
}

// VerifyStatic runs precedence checks 2 through 6. Check 1 (wire/structural)
// is enforced by DecodeTransaction itself; a Transaction reaching this
// function already round-tripped the wire codec cleanly.
func VerifyStatic(tx *Transaction) error {
	return (&ChainState{chainID: 0}).verifyStaticAgainstChainID(tx, false)
}

// verifyStaticAgainstChainID is the real implementation; it's a ChainState
// method because the chain id check (precedence 3) needs to compare against
// the configured chain, not a hardcoded constant. The package-level
// VerifyStatic above exists only for callers (tests, the mempool) that want
// to check shape without a live ChainState; it skips the chain id check.
func (cs *ChainState) verifyStaticAgainstChainID(tx *Transaction, checkChainID bool) error {
	// 2. Version unsupported.
	if tx.Version != TxV0 && tx.Version != TxV1 {
		return errInvalidVersion("unsupported transaction version")
	}
	if tp := tx.Payload.Transfers; tp != nil && len(tp.Confidential) > 0 && tx.Version == TxV1 && tp.Y2 == nil {
		return errInvalidFormat("T1 confidential transfer missing Y2")
	}

	// 3. Chain id mismatch.
	if checkChainID && tx.ChainID != cs.chainID {
		return errInvalidChainID("chain id does not match configured chain")
	}

	// 4. Signature invalid.
	if !tx.VerifySignature() {
		return errInvalidSignature("signature does not verify")
	}

	// Fee type policy (§4.3 "Violations yield INVALID_FORMAT"): checked
	// here, ahead of amount-zero, since it's a wire-level property of the
	// whole transaction rather than a per-payload validation rule.
	if err := checkFeeTypePolicy(tx); err != nil {
		return err
	}

	// 5. Amount zero where forbidden, and 6. invalid payload shape. Both
	// live in the same per-kind switch since which amounts are "zero
	// forbidden" is itself payload-specific.
	if err := verifyPayloadShape(tx); err != nil {
		return err
	}

	return nil
}

// VerifyStatic is also exposed as a ChainState method so callers that do
// have a configured chain (the mempool, block apply) get the chain id check
// for free.
func (cs *ChainState) VerifyStatic(tx *Transaction) error {
	return cs.verifyStaticAgainstChainID(tx, true)
}

func checkFeeTypePolicy(tx *Transaction) error {
	if tx.FeeType != FeeTOS && tx.FeeType != FeeEnergy {
		return errInvalidFormat("unknown fee type")
	}
	if tx.FeeType == FeeEnergy {
		switch tx.Payload.Kind {
		case PayloadTransfers:
			// allowed
		default:
			return errInvalidFormat("payload does not accept an energy fee")
		}
	}
	return nil
}

func verifyPayloadShape(tx *Transaction) error {
	p := tx.Payload
	switch p.Kind {
	case PayloadTransfers:
		return verifyTransfersShape(tx)
	case PayloadBurn:
		if p.Burn == nil {
			return errInvalidFormat("missing burn payload")
		}
		if p.Burn.Amount == 0 {
			return errInvalidAmount("burn amount must be non-zero")
		}
	case PayloadFreezeTOS:
		if p.Freeze == nil {
			return errInvalidFormat("missing freeze payload")
		}
		if p.Freeze.Amount == 0 {
			return errInvalidAmount("freeze amount must be non-zero")
		}
		if p.Freeze.Duration != Freeze3Day && p.Freeze.Duration != Freeze7Day && p.Freeze.Duration != Freeze14Day {
			return errInvalidPayload("unknown freeze duration")
		}
	case PayloadUnfreezeTOS:
		if p.Unfreeze == nil {
			return errInvalidFormat("missing unfreeze payload")
		}
		if p.Unfreeze.Amount == 0 {
			return errInvalidAmount("unfreeze amount must be non-zero")
		}
	case PayloadMultiSig:
		if p.MultiSig == nil {
			return errInvalidFormat("missing multisig payload")
		}
		if p.MultiSig.Threshold <= 0 || p.MultiSig.Threshold > len(p.MultiSig.Signers) {
			return errInvalidPayload("multisig threshold out of range")
		}
		if len(p.MultiSig.Signers) > 255 {
			return errInvalidPayload("too many multisig signers")
		}
	case PayloadDeployContract:
		if p.DeployContract == nil || len(p.DeployContract.Bytecode) == 0 {
			return errInvalidFormat("missing contract bytecode")
		}
	case PayloadInvokeContract:
		return verifyInvokeShape(p.InvokeContract)
	case PayloadScheduleExecution:
		return verifyScheduleShape(p.ScheduleExec)
	case PayloadRegisterArbiter, PayloadRequestArbiterExit, PayloadCancelArbiterExit:
		// all three carry only a committee id; nothing to validate beyond
		// the decode already having populated a non-nil pointer.
	case PayloadCreateEscrow:
		return verifyCreateEscrowShape(p.CreateEscrow)
	case PayloadReleaseEscrow:
		if p.ReleaseEscrow == nil || p.ReleaseEscrow.Amount == 0 {
			return errInvalidAmount("escrow release amount must be non-zero")
		}
	case PayloadRefundEscrow:
		if p.RefundEscrow == nil || p.RefundEscrow.Amount == 0 {
			return errInvalidAmount("escrow refund amount must be non-zero")
		}
	case PayloadSetKyc, PayloadRevokeKyc, PayloadRenewKyc, PayloadAppealKyc:
		return verifyKycShape(p)
	case PayloadTransferKyc:
		if p.TransferKyc == nil {
			return errInvalidFormat("missing transfer-kyc payload")
		}
	case PayloadRegisterName:
		if p.RegisterName == nil {
			return errInvalidFormat("missing register-name payload")
		}
		return validateName(p.RegisterName.Name)
	case PayloadTransferName:
		if p.TransferName == nil {
			return errInvalidFormat("missing transfer-name payload")
		}
		return validateName(p.TransferName.Name)
	case PayloadAgentAccount:
		if p.AgentAccount == nil {
			return errInvalidFormat("missing agent-account payload")
		}
	default:
		return errInvalidFormat("unknown payload kind")
	}
	return nil
}

func verifyTransfersShape(tx *Transaction) error {
	p := tx.Payload.Transfers
	if p == nil {
		return errInvalidFormat("missing transfers payload")
	}
	n := len(p.Plain) + len(p.Confidential)
	if n == 0 {
		return errInvalidPayload("transfers payload is empty")
	}
	if n > MaxTransferCount {
		return errInvalidPayload("too many transfer entries")
	}
	if len(p.Plain) > 0 && len(p.Confidential) > 0 {
		return errInvalidPayload("plain and confidential transfers cannot mix")
	}
	// Self-transfer (precedence 17) is a payload-shape property but the
	// table ranks it after nonce/funds/fee, so it's rejected in
	// applyTransfers (payloads.go) rather than here - this pass only
	// covers the checks §4.3 ranks at 5-6.
	for _, t := range p.Plain {
		if t.Amount == 0 {
			return errInvalidAmount("transfer amount must be non-zero")
		}
	}
	for _, ct := range p.Confidential {
		if !VerifySigmaProof(ct.Commitment, ct.ValidityProof) {
			return errInvalidAmount("confidential transfer amount proof failed")
		}
	}
	if len(p.Confidential) > 0 && tx.FeeType != FeeTOS {
		return errInvalidFormat("confidential transfers require a zero UNO fee")
	}
	return nil
}

func verifyInvokeShape(p *InvokeContractPayload) error {
	if p == nil {
		return errInvalidFormat("missing invoke-contract payload")
	}
	if p.MaxGas > MaxGasUsagePerTx {
		return errInvalidPayload("max_gas exceeds the per-transaction limit")
	}
	if len(p.Deposits) > 255 {
		return errInvalidPayload("too many deposits")
	}
	for _, d := range p.Deposits {
		if d.Amount == 0 {
			return errInvalidFormat("deposit amount must be non-zero")
		}
	}
	return nil
}

func verifyScheduleShape(p *ScheduleExecutionPayload) error {
	if p == nil {
		return errInvalidFormat("missing schedule-execution payload")
	}
	if p.MaxGas == 0 {
		return errInvalidPayload("max_gas must be non-zero")
	}
	return nil
}

func verifyCreateEscrowShape(p *CreateEscrowPayload) error {
	if p == nil {
		return errInvalidFormat("missing create-escrow payload")
	}
	if p.Amount == 0 {
		return errInvalidAmount("escrow amount must be non-zero")
	}
	if p.TimeoutBlocks == 0 {
		return errInvalidPayload("escrow timeout_blocks must be non-zero")
	}
	if p.TaskID == "" {
		return errInvalidPayload("escrow task_id must be non-empty")
	}
	return nil
}

func verifyKycShape(p Payload) error {
	switch p.Kind {
	case PayloadSetKyc:
		if p.SetKyc == nil {
			return errInvalidFormat("missing set-kyc payload")
		}
	case PayloadRevokeKyc:
		if p.RevokeKyc == nil {
			return errInvalidFormat("missing revoke-kyc payload")
		}
	case PayloadRenewKyc:
		if p.RenewKyc == nil {
			return errInvalidFormat("missing renew-kyc payload")
		}
	case PayloadAppealKyc:
		if p.AppealKyc == nil {
			return errInvalidFormat("missing appeal-kyc payload")
		}
	}
	return nil
}

// validateName enforces §4.9's format rules ahead of any lookup against the
// live name registry (the uniqueness checks are a state-dependent concern
// handled in payloads.go's applyRegisterName, precedence 16).
func validateName(name string) error {
	if len(name) < minNameLength || len(name) > maxNameLength {
		return errInvalidPayload("name length out of range")
	}
	first := name[0]
	if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return errInvalidPayload("name must start with a letter")
	}
	if name[len(name)-1] == '-' || name[len(name)-1] == '_' {
		return errInvalidPayload("name must not end with a separator")
	}
	prevSep := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		isSep := c == '-' || c == '_'
		if !isLetter && !isDigit && !isSep {
			return errInvalidPayload("name contains disallowed characters")
		}
		if isSep && prevSep {
			return errInvalidPayload("name contains consecutive separators")
		}
		prevSep = isSep
	}
	if reservedNames[lower(name)] {
		return errInvalidPayload("name is reserved")
	}
	if foldedReservedNames[foldConfusables(name)] {
		return errInvalidPayload("name is confusable with a reserved name")
	}
	return nil
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// MaxGasUsagePerTx is the package-level max_gas bound verifyInvokeShape
// enforces; MaxTransferCount is the constant in wire.go that the verifier and
// the wire codec share. Nothing overrides either from configuration: the
// verifier does not consult ChainState's configured maxGasUsagePerTx or
// maxTransferCount.
var (
	MaxGasUsagePerTx uint64 = 100_000_000
)
