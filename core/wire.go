package core

// wire.go – the deterministic, bit-exact wire codec of §4.1/§6. Every valid
// byte string parses to exactly one value and re-serializing that value
// reproduces the input exactly (the round-trip property tested in
// wire_test.go). Trailing bytes after a complete value are INVALID_FORMAT.

import (
	"encoding/binary"
	"fmt"
)

// Sizing constants (§4.1).
const (
	MaxTransferCount          = 255
	PeerMaxPacketSize         = 8 << 20 // 8 MiB
	MaxItemsPerPage           = 1024
	MaxKeySize                = 256
	MaxValueSize              = 4096
	ChainSyncRequestMaxBlocks = 128
)

func init() {
	// Static assertion named in §4.1: 8 + MAX_ITEMS_PER_PAGE*(MAX_KEY_SIZE+MAX_VALUE_SIZE) + 32 <= PEER_MAX_PACKET_SIZE
	const bound = 8 + MaxItemsPerPage*(MaxKeySize+MaxValueSize) + 32
	if bound > PeerMaxPacketSize {
		panic(fmt.Sprintf("wire: static packet-size assertion violated: %d > %d", bound, PeerMaxPacketSize))
	}
}

// binWriter is a minimal, allocation-light byte-buffer writer used by every
// Encode method below.
type binWriter struct {
	buf []byte
}

func (w *binWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *binWriter) bytes(b []byte) { w.buf = append(w.buf, b...) }
func (w *binWriter) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *binWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *binWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *binWriter) bool_(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// bytesU8/bytesU16/bytesU64 write a length-prefixed byte string using a u8,
// u16, or u64 prefix as directed by the caller (§4.1: "length prefixes are type
// specific").
func (w *binWriter) bytesU8(b []byte) error {
	if len(b) > 0xff {
		return errInvalidFormat("byte string exceeds u8 length prefix")
	}
	w.u8(uint8(len(b)))
	w.bytes(b)
	return nil
}
func (w *binWriter) bytesU16(b []byte) error {
	if len(b) > 0xffff {
		return errInvalidFormat("byte string exceeds u16 length prefix")
	}
	w.u16(uint16(len(b)))
	w.bytes(b)
	return nil
}
func (w *binWriter) bytesU64(b []byte) {
	w.u64(uint64(len(b)))
	w.bytes(b)
}

// binReader is the matching reader; every accessor returns INVALID_FORMAT
// on underflow.
type binReader struct {
	buf []byte
	pos int
}

func newBinReader(b []byte) *binReader { return &binReader{buf: b} }

func (r *binReader) remaining() int { return len(r.buf) - r.pos }

func (r *binReader) need(n int) error {
	if r.remaining() < n {
		return errInvalidFormat("unexpected end of buffer")
	}
	return nil
}

func (r *binReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}
func (r *binReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}
func (r *binReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}
func (r *binReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}
func (r *binReader) bool_() (bool, error) {
	v, err := r.u8()
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, errInvalidFormat("invalid bool tag")
	}
	return v == 1, nil
}
func (r *binReader) bytesN(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}
func (r *binReader) bytesU8() ([]byte, error) {
	n, err := r.u8()
	if err != nil {
		return nil, err
	}
	return r.bytesN(int(n))
}
func (r *binReader) bytesU16() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	return r.bytesN(int(n))
}
func (r *binReader) bytesU64() ([]byte, error) {
	n, err := r.u64()
	if err != nil {
		return nil, err
	}
	if n > uint64(PeerMaxPacketSize) {
		return nil, errInvalidFormat("byte string exceeds packet size")
	}
	return r.bytesN(int(n))
}
func (r *binReader) finish() error {
	if r.remaining() != 0 {
		return errInvalidFormat("trailing bytes")
	}
	return nil
}

// -----------------------------------------------------------------------------
// PubKey / Hash / AssetID fixed-size encodings
// -----------------------------------------------------------------------------

func (w *binWriter) pubKey(p PubKey) { w.bytes(p[:]) }
func (r *binReader) pubKey() (PubKey, error) {
	b, err := r.bytesN(32)
	if err != nil {
		return PubKey{}, err
	}
	var p PubKey
	copy(p[:], b)
	return p, nil
}

func (w *binWriter) hash(h Hash) { w.bytes(h[:]) }
func (r *binReader) hash() (Hash, error) {
	b, err := r.bytesN(32)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func (w *binWriter) assetID(a AssetID) { w.bytes(a[:]) }
func (r *binReader) assetID() (AssetID, error) {
	b, err := r.bytesN(32)
	if err != nil {
		return AssetID{}, err
	}
	var a AssetID
	copy(a[:], b)
	return a, nil
}

// -----------------------------------------------------------------------------
// Transaction encode/decode
// -----------------------------------------------------------------------------

// encodeTx writes the full wire transaction, optionally including the final
// signature (set includeSig=false to obtain the signature-domain payload).
func encodeTx(tx *Transaction, w *binWriter, includeSig bool) error {
	w.u8(uint8(tx.Version))
	w.u8(tx.ChainID)
	w.pubKey(tx.Source)
	if err := encodePayload(&tx.Payload, w); err != nil {
		return err
	}
	w.u64(tx.Fee)
	w.u8(uint8(tx.FeeType))
	w.u64(tx.Nonce)
	w.hash(tx.Reference.Hash)
	w.u64(tx.Reference.Topoheight)
	if tx.MultiSig != nil {
		w.bool_(true)
		if len(tx.MultiSig.Signers) > 0xff {
			return errInvalidFormat("too many multisig signers")
		}
		w.u8(uint8(len(tx.MultiSig.Signers)))
		for i, s := range tx.MultiSig.Signers {
			w.pubKey(s)
			w.bytes(tx.MultiSig.Signatures[i][:])
		}
	} else {
		w.bool_(false)
	}
	if includeSig {
		w.bytes(tx.Signature[:])
	}
	return nil
}

func mustEncodeTx(tx *Transaction) []byte {
	w := &binWriter{}
	if err := encodeTx(tx, w, true); err != nil {
		panic(err)
	}
	return w.buf
}

func mustEncodeTxUnsigned(tx *Transaction) []byte {
	w := &binWriter{}
	if err := encodeTx(tx, w, false); err != nil {
		panic(err)
	}
	return w.buf
}

// EncodeTransaction is the public entry point used by the mempool, RPC
// adapter, and storage layer.
func EncodeTransaction(tx *Transaction) ([]byte, error) {
	w := &binWriter{}
	if err := encodeTx(tx, w, true); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// DecodeTransaction parses b into a Transaction. Trailing bytes are
// INVALID_FORMAT (§4.1, §8).
func DecodeTransaction(b []byte) (*Transaction, error) {
	r := newBinReader(b)
	tx, err := decodeTx(r)
	if err != nil {
		return nil, err
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return tx, nil
}

func decodeTx(r *binReader) (*Transaction, error) {
	var tx Transaction
	v, err := r.u8()
	if err != nil {
		return nil, err
	}
	tx.Version = TxVersion(v)
	if tx.Version > TxV1 {
		return nil, errInvalidVersion("unsupported transaction version")
	}
	if tx.ChainID, err = r.u8(); err != nil {
		return nil, err
	}
	if tx.Source, err = r.pubKey(); err != nil {
		return nil, err
	}
	if err = decodePayload(&tx.Payload, r, tx.Version); err != nil {
		return nil, err
	}
	if tx.Fee, err = r.u64(); err != nil {
		return nil, err
	}
	ft, err := r.u8()
	if err != nil {
		return nil, err
	}
	if ft != uint8(FeeTOS) && ft != uint8(FeeEnergy) {
		return nil, errInvalidFormat("unknown fee type tag")
	}
	tx.FeeType = FeeType(ft)
	if tx.Nonce, err = r.u64(); err != nil {
		return nil, err
	}
	if tx.Reference.Hash, err = r.hash(); err != nil {
		return nil, err
	}
	if tx.Reference.Topoheight, err = r.u64(); err != nil {
		return nil, err
	}
	hasMS, err := r.bool_()
	if err != nil {
		return nil, err
	}
	if hasMS {
		n, err := r.u8()
		if err != nil {
			return nil, err
		}
		ms := &MultiSigAggregate{}
		for i := 0; i < int(n); i++ {
			s, err := r.pubKey()
			if err != nil {
				return nil, err
			}
			sigB, err := r.bytesN(64)
			if err != nil {
				return nil, err
			}
			var sig [64]byte
			copy(sig[:], sigB)
			ms.Signers = append(ms.Signers, s)
			ms.Signatures = append(ms.Signatures, sig)
		}
		tx.MultiSig = ms
	}
	sigB, err := r.bytesN(64)
	if err != nil {
		return nil, err
	}
	copy(tx.Signature[:], sigB)
	return &tx, nil
}

// -----------------------------------------------------------------------------
// Payload encode/decode
// -----------------------------------------------------------------------------

func encodePayload(p *Payload, w *binWriter) error {
	w.u8(uint8(p.Kind))
	switch p.Kind {
	case PayloadTransfers:
		tp := p.Transfers
		if tp == nil {
			return errInvalidFormat("missing transfers payload")
		}
		isConf := len(tp.Confidential) > 0
		w.bool_(isConf)
		if isConf {
			if len(tp.Confidential) == 0 || len(tp.Confidential) > MaxTransferCount {
				return errInvalidFormat("confidential transfer count out of range")
			}
			w.u8(uint8(len(tp.Confidential)))
			for _, ct := range tp.Confidential {
				w.assetID(ct.Asset)
				w.pubKey(ct.Destination)
				w.bytes(ct.Commitment.C[:])
				w.bytes(ct.Commitment.D[:])
				w.bytes(ct.SenderHandle[:])
				w.bytes(ct.ReceiverHandle[:])
				w.bytes(ct.ValidityProof.Commitment[:])
				w.bytes(ct.ValidityProof.Challenge[:])
				w.bytes(ct.ValidityProof.Response[:])
				if err := w.bytesU16(ct.ExtraData); err != nil {
					return err
				}
			}
			if tp.Y2 != nil {
				w.bool_(true)
				w.bytes(tp.Y2[:])
			} else {
				w.bool_(false)
			}
		} else {
			if len(tp.Plain) == 0 || len(tp.Plain) > MaxTransferCount {
				return errInvalidFormat("transfer count out of range")
			}
			w.u8(uint8(len(tp.Plain)))
			for _, t := range tp.Plain {
				w.assetID(t.Asset)
				w.pubKey(t.Destination)
				w.u64(t.Amount)
				if err := w.bytesU16(t.ExtraData); err != nil {
					return err
				}
			}
		}
	case PayloadBurn:
		if p.Burn == nil {
			return errInvalidFormat("missing burn payload")
		}
		w.assetID(p.Burn.Asset)
		w.u64(p.Burn.Amount)
	case PayloadFreezeTOS:
		if p.Freeze == nil {
			return errInvalidFormat("missing freeze payload")
		}
		w.u64(p.Freeze.Amount)
		w.u8(uint8(p.Freeze.Duration))
	case PayloadUnfreezeTOS:
		if p.Unfreeze == nil {
			return errInvalidFormat("missing unfreeze payload")
		}
		w.u64(p.Unfreeze.Amount)
	case PayloadMultiSig:
		if p.MultiSig == nil {
			return errInvalidFormat("missing multisig payload")
		}
		w.u8(uint8(p.MultiSig.Threshold))
		if len(p.MultiSig.Signers) > 0xff {
			return errInvalidFormat("too many multisig signers")
		}
		w.u8(uint8(len(p.MultiSig.Signers)))
		for _, s := range p.MultiSig.Signers {
			w.pubKey(s)
		}
	case PayloadDeployContract:
		if p.DeployContract == nil {
			return errInvalidFormat("missing deploy payload")
		}
		w.bytesU64(p.DeployContract.Bytecode)
	case PayloadInvokeContract:
		ip := p.InvokeContract
		if ip == nil {
			return errInvalidFormat("missing invoke payload")
		}
		w.pubKey(ip.Contract)
		if len(ip.Deposits) > 0xff {
			return errInvalidFormat("too many deposits")
		}
		w.u8(uint8(len(ip.Deposits)))
		for _, d := range ip.Deposits {
			w.assetID(d.Asset)
			w.u64(d.Amount)
		}
		w.u32(ip.EntryID)
		w.u64(ip.MaxGas)
		w.bytesU64(ip.Parameters)
	case PayloadScheduleExecution:
		sp := p.ScheduleExec
		if sp == nil {
			return errInvalidFormat("missing schedule payload")
		}
		w.pubKey(sp.Contract)
		w.u32(sp.ChunkID)
		w.bytesU64(sp.InputData)
		w.u64(sp.MaxGas)
		w.u64(sp.OfferAmount)
		w.pubKey(sp.SchedulerContract)
		w.bool_(sp.Kind.IsBlockEnd)
		w.u64(sp.Kind.TopoHeight)
	case PayloadRegisterArbiter:
		w.hash(p.RegisterArbiter.CommitteeID)
	case PayloadRequestArbiterExit:
		w.hash(p.RequestArbExit.CommitteeID)
	case PayloadCancelArbiterExit:
		w.hash(p.CancelArbExit.CommitteeID)
	case PayloadCreateEscrow:
		ce := p.CreateEscrow
		if ce == nil {
			return errInvalidFormat("missing create-escrow payload")
		}
		if err := w.bytesU8([]byte(ce.TaskID)); err != nil {
			return err
		}
		w.pubKey(ce.Provider)
		w.u64(ce.Amount)
		w.assetID(ce.Asset)
		w.u64(ce.TimeoutBlocks)
		w.u64(ce.ChallengeWindow)
		w.u16(ce.ChallengeDepositBps)
		w.bool_(ce.OptimisticRelease)
		if ce.ArbitrationConfig != nil {
			w.bool_(true)
			w.hash(ce.ArbitrationConfig.CommitteeID)
			w.u32(uint32(ce.ArbitrationConfig.MaxAppeals))
		} else {
			w.bool_(false)
		}
	case PayloadReleaseEscrow:
		if err := w.bytesU8([]byte(p.ReleaseEscrow.TaskID)); err != nil {
			return err
		}
		w.u64(p.ReleaseEscrow.Amount)
	case PayloadRefundEscrow:
		if err := w.bytesU8([]byte(p.RefundEscrow.TaskID)); err != nil {
			return err
		}
		w.u64(p.RefundEscrow.Amount)
		if err := w.bytesU8([]byte(p.RefundEscrow.Reason)); err != nil {
			return err
		}
	case PayloadSetKyc:
		if err := encodeKycCommon(w, p.SetKyc.Subject, p.SetKyc.CommitteeID, p.SetKyc.Approvals); err != nil {
			return err
		}
		w.u8(p.SetKyc.Level)
		w.hash(p.SetKyc.DataHash)
	case PayloadRevokeKyc:
		if err := encodeKycCommon(w, p.RevokeKyc.Subject, p.RevokeKyc.CommitteeID, p.RevokeKyc.Approvals); err != nil {
			return err
		}
	case PayloadRenewKyc:
		if err := encodeKycCommon(w, p.RenewKyc.Subject, p.RenewKyc.CommitteeID, p.RenewKyc.Approvals); err != nil {
			return err
		}
	case PayloadTransferKyc:
		w.pubKey(p.TransferKyc.Subject)
		w.pubKey(p.TransferKyc.NewOwner)
	case PayloadAppealKyc:
		w.pubKey(p.AppealKyc.Subject)
		w.hash(p.AppealKyc.ParentCommittee)
		w.hash(p.AppealKyc.NewCommittee)
		if err := encodeApprovals(w, p.AppealKyc.Approvals); err != nil {
			return err
		}
	case PayloadRegisterName:
		if err := w.bytesU8([]byte(p.RegisterName.Name)); err != nil {
			return err
		}
	case PayloadTransferName:
		if err := w.bytesU8([]byte(p.TransferName.Name)); err != nil {
			return err
		}
		w.pubKey(p.TransferName.NewOwner)
	case PayloadAgentAccount:
		ap := p.AgentAccount
		w.pubKey(ap.Controller)
		w.hash(ap.PolicyHash)
		if ap.SessionKeyRoot != nil {
			w.bool_(true)
			w.hash(*ap.SessionKeyRoot)
		} else {
			w.bool_(false)
		}
	default:
		return errInvalidFormat("unknown payload tag")
	}
	return nil
}

func encodeKycCommon(w *binWriter, subject PubKey, committee Hash, approvals []CommitteeApproval) error {
	w.pubKey(subject)
	w.hash(committee)
	return encodeApprovals(w, approvals)
}

func encodeApprovals(w *binWriter, approvals []CommitteeApproval) error {
	if len(approvals) > 0xff {
		return errInvalidFormat("too many committee approvals")
	}
	w.u8(uint8(len(approvals)))
	for _, a := range approvals {
		w.pubKey(a.Member)
		w.bytes(a.Signature[:])
	}
	return nil
}

func decodeApprovals(r *binReader) ([]CommitteeApproval, error) {
	n, err := r.u8()
	if err != nil {
		return nil, err
	}
	out := make([]CommitteeApproval, 0, n)
	for i := 0; i < int(n); i++ {
		m, err := r.pubKey()
		if err != nil {
			return nil, err
		}
		sb, err := r.bytesN(64)
		if err != nil {
			return nil, err
		}
		var sig [64]byte
		copy(sig[:], sb)
		out = append(out, CommitteeApproval{Member: m, Signature: sig})
	}
	return out, nil
}

func decodePayload(p *Payload, r *binReader, version TxVersion) error {
	k, err := r.u8()
	if err != nil {
		return err
	}
	p.Kind = PayloadKind(k)
	switch p.Kind {
	case PayloadTransfers:
		isConf, err := r.bool_()
		if err != nil {
			return err
		}
		tp := &TransfersPayload{}
		n, err := r.u8()
		if err != nil {
			return err
		}
		if n == 0 || int(n) > MaxTransferCount {
			return errInvalidFormat("transfer count out of range")
		}
		if isConf {
			for i := 0; i < int(n); i++ {
				var ct ConfidentialTransfer
				if ct.Asset, err = r.assetID(); err != nil {
					return err
				}
				if ct.Destination, err = r.pubKey(); err != nil {
					return err
				}
				if b, err := r.bytesN(33); err != nil {
					return err
				} else {
					copy(ct.Commitment.C[:], b)
				}
				if b, err := r.bytesN(33); err != nil {
					return err
				} else {
					copy(ct.Commitment.D[:], b)
				}
				if b, err := r.bytesN(32); err != nil {
					return err
				} else {
					copy(ct.SenderHandle[:], b)
				}
				if b, err := r.bytesN(32); err != nil {
					return err
				} else {
					copy(ct.ReceiverHandle[:], b)
				}
				if b, err := r.bytesN(33); err != nil {
					return err
				} else {
					copy(ct.ValidityProof.Commitment[:], b)
				}
				if b, err := r.bytesN(32); err != nil {
					return err
				} else {
					copy(ct.ValidityProof.Challenge[:], b)
				}
				if b, err := r.bytesN(32); err != nil {
					return err
				} else {
					copy(ct.ValidityProof.Response[:], b)
				}
				if ct.ExtraData, err = r.bytesU16(); err != nil {
					return err
				}
				tp.Confidential = append(tp.Confidential, ct)
			}
			hasY2, err := r.bool_()
			if err != nil {
				return err
			}
			if hasY2 {
				if version < TxV1 {
					return errInvalidFormat("Y2 present under unsupported version")
				}
				b, err := r.bytesN(32)
				if err != nil {
					return err
				}
				var y2 [32]byte
				copy(y2[:], b)
				tp.Y2 = &y2
			}
		} else {
			for i := 0; i < int(n); i++ {
				var t Transfer
				if t.Asset, err = r.assetID(); err != nil {
					return err
				}
				if t.Destination, err = r.pubKey(); err != nil {
					return err
				}
				if t.Amount, err = r.u64(); err != nil {
					return err
				}
				if t.ExtraData, err = r.bytesU16(); err != nil {
					return err
				}
				tp.Plain = append(tp.Plain, t)
			}
		}
		p.Transfers = tp
	case PayloadBurn:
		bp := &BurnPayload{}
		if bp.Asset, err = r.assetID(); err != nil {
			return err
		}
		if bp.Amount, err = r.u64(); err != nil {
			return err
		}
		p.Burn = bp
	case PayloadFreezeTOS:
		fp := &FreezePayload{}
		if fp.Amount, err = r.u64(); err != nil {
			return err
		}
		d, err := r.u8()
		if err != nil {
			return err
		}
		if d > uint8(Freeze14Day) {
			return errInvalidFormat("unknown freeze duration tag")
		}
		fp.Duration = FreezeDuration(d)
		p.Freeze = fp
	case PayloadUnfreezeTOS:
		up := &UnfreezePayload{}
		if up.Amount, err = r.u64(); err != nil {
			return err
		}
		p.Unfreeze = up
	case PayloadMultiSig:
		mp := &MultiSigPayload{}
		th, err := r.u8()
		if err != nil {
			return err
		}
		mp.Threshold = int(th)
		n, err := r.u8()
		if err != nil {
			return err
		}
		for i := 0; i < int(n); i++ {
			s, err := r.pubKey()
			if err != nil {
				return err
			}
			mp.Signers = append(mp.Signers, s)
		}
		p.MultiSig = mp
	case PayloadDeployContract:
		dp := &DeployContractPayload{}
		if dp.Bytecode, err = r.bytesU64(); err != nil {
			return err
		}
		p.DeployContract = dp
	case PayloadInvokeContract:
		ip := &InvokeContractPayload{}
		if ip.Contract, err = r.pubKey(); err != nil {
			return err
		}
		n, err := r.u8()
		if err != nil {
			return err
		}
		if int(n) > 255 {
			return errInvalidFormat("too many deposits")
		}
		for i := 0; i < int(n); i++ {
			var d Deposit
			if d.Asset, err = r.assetID(); err != nil {
				return err
			}
			if d.Amount, err = r.u64(); err != nil {
				return err
			}
			ip.Deposits = append(ip.Deposits, d)
		}
		if ip.EntryID, err = r.u32(); err != nil {
			return err
		}
		if ip.MaxGas, err = r.u64(); err != nil {
			return err
		}
		if ip.Parameters, err = r.bytesU64(); err != nil {
			return err
		}
		p.InvokeContract = ip
	case PayloadScheduleExecution:
		sp := &ScheduleExecutionPayload{}
		if sp.Contract, err = r.pubKey(); err != nil {
			return err
		}
		if sp.ChunkID, err = r.u32(); err != nil {
			return err
		}
		if sp.InputData, err = r.bytesU64(); err != nil {
			return err
		}
		if sp.MaxGas, err = r.u64(); err != nil {
			return err
		}
		if sp.OfferAmount, err = r.u64(); err != nil {
			return err
		}
		if sp.SchedulerContract, err = r.pubKey(); err != nil {
			return err
		}
		if sp.Kind.IsBlockEnd, err = r.bool_(); err != nil {
			return err
		}
		if sp.Kind.TopoHeight, err = r.u64(); err != nil {
			return err
		}
		p.ScheduleExec = sp
	case PayloadRegisterArbiter:
		rp := &RegisterArbiterPayload{}
		if rp.CommitteeID, err = r.hash(); err != nil {
			return err
		}
		p.RegisterArbiter = rp
	case PayloadRequestArbiterExit:
		rp := &RequestArbiterExitPayload{}
		if rp.CommitteeID, err = r.hash(); err != nil {
			return err
		}
		p.RequestArbExit = rp
	case PayloadCancelArbiterExit:
		rp := &CancelArbiterExitPayload{}
		if rp.CommitteeID, err = r.hash(); err != nil {
			return err
		}
		p.CancelArbExit = rp
	case PayloadCreateEscrow:
		ce := &CreateEscrowPayload{}
		tid, err := r.bytesU8()
		if err != nil {
			return err
		}
		ce.TaskID = string(tid)
		if ce.Provider, err = r.pubKey(); err != nil {
			return err
		}
		if ce.Amount, err = r.u64(); err != nil {
			return err
		}
		if ce.Asset, err = r.assetID(); err != nil {
			return err
		}
		if ce.TimeoutBlocks, err = r.u64(); err != nil {
			return err
		}
		if ce.ChallengeWindow, err = r.u64(); err != nil {
			return err
		}
		if ce.ChallengeDepositBps, err = r.u16(); err != nil {
			return err
		}
		if ce.OptimisticRelease, err = r.bool_(); err != nil {
			return err
		}
		hasArb, err := r.bool_()
		if err != nil {
			return err
		}
		if hasArb {
			ac := &ArbitrationConfig{}
			if ac.CommitteeID, err = r.hash(); err != nil {
				return err
			}
			ma, err := r.u32()
			if err != nil {
				return err
			}
			ac.MaxAppeals = int(ma)
			ce.ArbitrationConfig = ac
		}
		p.CreateEscrow = ce
	case PayloadReleaseEscrow:
		rp := &ReleaseEscrowPayload{}
		tid, err := r.bytesU8()
		if err != nil {
			return err
		}
		rp.TaskID = string(tid)
		if rp.Amount, err = r.u64(); err != nil {
			return err
		}
		p.ReleaseEscrow = rp
	case PayloadRefundEscrow:
		rp := &RefundEscrowPayload{}
		tid, err := r.bytesU8()
		if err != nil {
			return err
		}
		rp.TaskID = string(tid)
		if rp.Amount, err = r.u64(); err != nil {
			return err
		}
		reason, err := r.bytesU8()
		if err != nil {
			return err
		}
		rp.Reason = string(reason)
		p.RefundEscrow = rp
	case PayloadSetKyc:
		sk := &SetKycPayload{}
		if sk.Subject, err = r.pubKey(); err != nil {
			return err
		}
		if sk.CommitteeID, err = r.hash(); err != nil {
			return err
		}
		if sk.Approvals, err = decodeApprovals(r); err != nil {
			return err
		}
		if sk.Level, err = r.u8(); err != nil {
			return err
		}
		if sk.DataHash, err = r.hash(); err != nil {
			return err
		}
		p.SetKyc = sk
	case PayloadRevokeKyc:
		rk := &RevokeKycPayload{}
		if rk.Subject, err = r.pubKey(); err != nil {
			return err
		}
		if rk.CommitteeID, err = r.hash(); err != nil {
			return err
		}
		if rk.Approvals, err = decodeApprovals(r); err != nil {
			return err
		}
		p.RevokeKyc = rk
	case PayloadRenewKyc:
		rk := &RenewKycPayload{}
		if rk.Subject, err = r.pubKey(); err != nil {
			return err
		}
		if rk.CommitteeID, err = r.hash(); err != nil {
			return err
		}
		if rk.Approvals, err = decodeApprovals(r); err != nil {
			return err
		}
		p.RenewKyc = rk
	case PayloadTransferKyc:
		tk := &TransferKycPayload{}
		if tk.Subject, err = r.pubKey(); err != nil {
			return err
		}
		if tk.NewOwner, err = r.pubKey(); err != nil {
			return err
		}
		p.TransferKyc = tk
	case PayloadAppealKyc:
		ak := &AppealKycPayload{}
		if ak.Subject, err = r.pubKey(); err != nil {
			return err
		}
		if ak.ParentCommittee, err = r.hash(); err != nil {
			return err
		}
		if ak.NewCommittee, err = r.hash(); err != nil {
			return err
		}
		if ak.Approvals, err = decodeApprovals(r); err != nil {
			return err
		}
		p.AppealKyc = ak
	case PayloadRegisterName:
		rn := &RegisterNamePayload{}
		name, err := r.bytesU8()
		if err != nil {
			return err
		}
		rn.Name = string(name)
		p.RegisterName = rn
	case PayloadTransferName:
		tn := &TransferNamePayload{}
		name, err := r.bytesU8()
		if err != nil {
			return err
		}
		tn.Name = string(name)
		if tn.NewOwner, err = r.pubKey(); err != nil {
			return err
		}
		p.TransferName = tn
	case PayloadAgentAccount:
		ap := &AgentAccountPayload{}
		if ap.Controller, err = r.pubKey(); err != nil {
			return err
		}
		if ap.PolicyHash, err = r.hash(); err != nil {
			return err
		}
		hasSK, err := r.bool_()
		if err != nil {
			return err
		}
		if hasSK {
			h, err := r.hash()
			if err != nil {
				return err
			}
			ap.SessionKeyRoot = &h
		}
		p.AgentAccount = ap
	default:
		return errInvalidFormat("unknown payload tag")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Block encode/decode
// -----------------------------------------------------------------------------

func (h *BlockHeader) serializeForHash() []byte {
	w := &binWriter{}
	h.encode(w, true)
	return w.buf
}

func (b *Block) hashWithoutVRF() Hash {
	w := &binWriter{}
	b.Header.encode(w, false)
	return hashDomain("tos-block-v1", w.buf)
}

func (h *BlockHeader) encode(w *binWriter, includeVRF bool) {
	w.u8(h.Version)
	w.u64(h.Height)
	w.u64(h.TimestampMs)
	if len(h.Tips) > 0xff {
		panic("too many tips")
	}
	w.u8(uint8(len(h.Tips)))
	for _, t := range h.Tips {
		w.hash(t)
	}
	w.bytes(h.ExtraNonce[:])
	w.pubKey(h.Miner)
	if len(h.TxHashes) > 0xffff {
		panic("too many tx hashes")
	}
	w.u16(uint16(len(h.TxHashes)))
	for _, t := range h.TxHashes {
		w.hash(t)
	}
	if includeVRF {
		if h.VRF != nil {
			w.bool_(true)
			w.bytes(h.VRF.PublicKey[:])
			w.bytes(h.VRF.Output[:])
			w.bytes(h.VRF.Proof[:])
			w.bytes(h.VRF.Binding[:])
		} else {
			w.bool_(false)
		}
		w.bytes(h.MinerSig[:])
	}
}

func decodeBlockHeader(r *binReader) (*BlockHeader, error) {
	var h BlockHeader
	var err error
	if h.Version, err = r.u8(); err != nil {
		return nil, err
	}
	if h.Height, err = r.u64(); err != nil {
		return nil, err
	}
	if h.TimestampMs, err = r.u64(); err != nil {
		return nil, err
	}
	nTips, err := r.u8()
	if err != nil {
		return nil, err
	}
	seen := make(map[Hash]bool, nTips)
	for i := 0; i < int(nTips); i++ {
		t, err := r.hash()
		if err != nil {
			return nil, err
		}
		if seen[t] {
			return nil, errInvalidFormat("duplicate tip hash")
		}
		seen[t] = true
		h.Tips = append(h.Tips, t)
	}
	nonceB, err := r.bytesN(extraNonceSize)
	if err != nil {
		return nil, err
	}
	copy(h.ExtraNonce[:], nonceB)
	if h.Miner, err = r.pubKey(); err != nil {
		return nil, err
	}
	nTx, err := r.u16()
	if err != nil {
		return nil, err
	}
	seenTx := make(map[Hash]bool, nTx)
	for i := 0; i < int(nTx); i++ {
		t, err := r.hash()
		if err != nil {
			return nil, err
		}
		if seenTx[t] {
			return nil, errInvalidFormat("duplicate tx hash")
		}
		seenTx[t] = true
		h.TxHashes = append(h.TxHashes, t)
	}
	hasVRF, err := r.bool_()
	if err != nil {
		return nil, err
	}
	if hasVRF {
		vrf := &BlockVrfData{}
		if b, err := r.bytesN(32); err != nil {
			return nil, err
		} else {
			copy(vrf.PublicKey[:], b)
		}
		if b, err := r.bytesN(64); err != nil {
			return nil, err
		} else {
			copy(vrf.Output[:], b)
		}
		if b, err := r.bytesN(80); err != nil {
			return nil, err
		} else {
			copy(vrf.Proof[:], b)
		}
		if b, err := r.bytesN(64); err != nil {
			return nil, err
		} else {
			copy(vrf.Binding[:], b)
		}
		h.VRF = vrf
	}
	sigB, err := r.bytesN(64)
	if err != nil {
		return nil, err
	}
	copy(h.MinerSig[:], sigB)
	return &h, nil
}

// EncodeBlock is the public block codec entry point (§6).
func EncodeBlock(b *Block) ([]byte, error) {
	w := &binWriter{}
	b.Header.encode(w, true)
	if len(b.Txs) > 0xffff {
		return nil, errInvalidFormat("too many transactions")
	}
	w.u16(uint16(len(b.Txs)))
	for _, tx := range b.Txs {
		if err := encodeTx(tx, w, true); err != nil {
			return nil, err
		}
	}
	return w.buf, nil
}

// DecodeBlock parses b into a Block.
func DecodeBlock(b []byte) (*Block, error) {
	r := newBinReader(b)
	hdr, err := decodeBlockHeader(r)
	if err != nil {
		return nil, err
	}
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	blk := &Block{Header: *hdr}
	seen := make(map[Hash]bool, n)
	for i := 0; i < int(n); i++ {
		tx, err := decodeTx(r)
		if err != nil {
			return nil, err
		}
		h := tx.HashTx()
		if seen[h] {
			return nil, errInvalidFormat("duplicate tx in block")
		}
		seen[h] = true
		blk.Txs = append(blk.Txs, tx)
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return blk, nil
}
