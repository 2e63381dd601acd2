package core

// arbitration.go – the dispute coordinator of §4.6: ArbitrationOpen →
// VoteRequest → JurorVote tally → verdict → escrow transition, with bounded
// appeal rounds. Grounded on the teacher's core/compliance.go committee
// threshold-signature pattern, generalised from KYC approvals to juror
// votes; canonical-JSON hashing for off-chain interop is layered on top of
// the same blake3 domain-separation idiom crypto.go already uses on-chain.

import (
	"encoding/json"
	"sort"
	"time"
)

// ArbitrationCoordinator owns every in-flight dispute. One per node; it is
// separate from ChainState and holds no mutex of its own.
type ArbitrationCoordinator struct {
	disputes map[Hash]*Dispute
}

func NewArbitrationCoordinator() *ArbitrationCoordinator {
	return &ArbitrationCoordinator{disputes: make(map[Hash]*Dispute)}
}

// arbitrationOpenMessage is the canonical-JSON-without-signature payload
// hashed for off-chain interoperability (§4.6). Field order is fixed by the
// struct tags so two implementations produce byte-identical JSON.
type arbitrationOpenMessage struct {
	EscrowTask   string `json:"escrow_task"`
	CommitteeID  Hash   `json:"committee_id"`
	EvidenceHash Hash   `json:"evidence_hash"`
	OpenedBy     PubKey `json:"opened_by"`
}

// CanonicalHash returns the canonical-JSON-without-signature digest a
// signature over an ArbitrationOpen message covers, per §4.6.
func CanonicalHash(escrowTask string, committeeID, evidenceHash Hash, openedBy PubKey) (Hash, error) {
	msg := arbitrationOpenMessage{escrowTask, committeeID, evidenceHash, openedBy}
	b, err := json.Marshal(msg)
	if err != nil {
		return Hash{}, err
	}
	return hashDomain("tos-arb-open-v1", b), nil
}

// Open validates opener's signature over the canonical message and creates
// a Pending dispute for the named escrow.
func (ac *ArbitrationCoordinator) Open(escrow *Escrow, committeeID, evidenceHash Hash, openedBy PubKey, sig [64]byte) (*Dispute, error) {
	msg, err := CanonicalHash(escrow.TaskID, committeeID, evidenceHash, openedBy)
	if err != nil {
		return nil, errInvalidFormat("could not canonicalise arbitration-open message")
	}
	if openedBy != escrow.Payer && openedBy != escrow.Provider {
		return nil, errUnauthorized("only a party to the escrow may open a dispute")
	}
	if !verifyRawSignature(openedBy, msg, sig) {
		return nil, errInvalidSignature("arbitration-open signature does not verify")
	}
	id := hashDomain("tos-dispute-id-v1", []byte(escrow.TaskID), committeeID[:])
	if _, exists := ac.disputes[id]; exists {
		return nil, errAlreadyExists("dispute already open for this escrow")
	}
	d := &Dispute{
		ID: id, EscrowTask: escrow.TaskID, CommitteeID: committeeID,
		State: ArbPending, OpenedBy: openedBy, EvidenceHash: evidenceHash,
	}
	ac.disputes[id] = d
	return d, nil
}

// RequestVote moves a Pending/Appealed dispute to VoteRequested, drawing
// jurors deterministically from the committee under the given selection
// commitment (a domain-separated hash seed, so the draw is reproducible and
// verifiable off-chain without revealing a seed in advance).
func (ac *ArbitrationCoordinator) RequestVote(committee *Committee, disputeID Hash, jurorCount int, seed Hash, deadline time.Time) (*Dispute, error) {
	d, ok := ac.disputes[disputeID]
	if !ok {
		return nil, errRecordNotFound("dispute does not exist")
	}
	if d.State != ArbPending && d.State != ArbAppealed {
		return nil, errInvalidPayload("dispute is not awaiting a vote request")
	}
	d.Jurors = selectJurors(committee, jurorCount, seed)
	d.Votes = make(map[PubKey]JurorVoteChoice)
	d.State = ArbVoteRequested
	d.Deadline = deadline
	return d, nil
}

// selectJurors deterministically orders committee members by distance from
// seed and takes the first n, giving a reproducible draw without needing a
// verifiable-random-function dependency the pack doesn't carry.
func selectJurors(committee *Committee, n int, seed Hash) []PubKey {
	type scored struct {
		pub   PubKey
		score Hash
	}
	all := make([]scored, 0, len(committee.Members))
	for pub := range committee.Members {
		all = append(all, scored{pub, hashDomain("tos-juror-draw-v1", seed[:], pub[:])})
	}
	sort.Slice(all, func(i, j int) bool { return less(all[i].score, all[j].score) })
	if n > len(all) {
		n = len(all)
	}
	out := make([]PubKey, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].pub
	}
	return out
}

// requestHash is the message jurors sign their vote over (§4.6 "signed
// over the request hash").
func requestHash(d *Dispute) Hash {
	return hashDomain("tos-vote-request-v1", d.ID[:], []byte{byte(d.Round)})
}

// Vote records juror's signed vote, transitioning VoteRequested → Voting on
// the first vote received.
func (ac *ArbitrationCoordinator) Vote(disputeID Hash, juror PubKey, choice JurorVoteChoice, sig [64]byte) error {
	d, ok := ac.disputes[disputeID]
	if !ok {
		return errRecordNotFound("dispute does not exist")
	}
	isJuror := false
	for _, j := range d.Jurors {
		if j == juror {
			isJuror = true
			break
		}
	}
	if !isJuror {
		return errUnauthorized("signer is not a juror for this dispute")
	}
	if !verifyRawSignature(juror, requestHash(d), sig) {
		return errInvalidSignature("juror vote signature does not verify")
	}
	if d.State != ArbVoteRequested && d.State != ArbVoting {
		return errInvalidPayload("dispute is not accepting votes")
	}
	d.State = ArbVoting
	d.Votes[juror] = choice
	return nil
}

// Tally counts the votes recorded so far and returns the majority verdict;
// it does not compare the current time with d.Deadline. Ties resolve to
// Abstain (no transfer either way), matching the escrow state machine's "no state change on an inconclusive verdict" default.
func (ac *ArbitrationCoordinator) Tally(disputeID Hash) (JurorVoteChoice, error) {
	d, ok := ac.disputes[disputeID]
	if !ok {
		return VoteAbstain, errRecordNotFound("dispute does not exist")
	}
	if d.State != ArbVoting {
		return VoteAbstain, errInvalidPayload("dispute has no votes to tally")
	}
	var pay, refund int
	for _, v := range d.Votes {
		switch v {
		case VotePay:
			pay++
		case VoteRefund:
			refund++
		}
	}
	d.State = ArbResolved
	switch {
	case pay > refund:
		return VotePay, nil
	case refund > pay:
		return VoteRefund, nil
	default:
		return VoteAbstain, nil
	}
}

// Appeal moves a Resolved dispute to Appealed and advances its round,
// bounded by cfg.MaxAppeals. It does not pick jurors or a parent committee:
// the next RequestVote draws from whichever committee and juror count it is
// given.
func (ac *ArbitrationCoordinator) Appeal(disputeID Hash, cfg ArbitrationConfig) error {
	d, ok := ac.disputes[disputeID]
	if !ok {
		return errRecordNotFound("dispute does not exist")
	}
	if d.State != ArbResolved {
		return errInvalidPayload("only a resolved dispute may be appealed")
	}
	if d.Round+1 >= cfg.MaxAppeals {
		return errUnauthorized("maximum appeal rounds exhausted")
	}
	d.Round++
	d.State = ArbAppealed
	return nil
}
