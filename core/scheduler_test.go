package core

import "testing"

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxSchedulingHorizon:             720,
		MaxScheduledExecutionsPerBlock:   2,
		MaxScheduledExecutionGasPerBlock: 100,
		MinimumCancellationWindow:        10,
	}
}

func TestSchedulerRegisterRejectsPastTarget(t *testing.T) {
	s := NewScheduler(testSchedulerConfig())
	exec := &ScheduledExecution{Hash: Hash{1}, Kind: ScheduleKind{TopoHeight: 5}}
	if err := s.Register(exec, 10); err == nil {
		t.Fatalf("expected rejection of a target at or below current")
	}
}

func TestSchedulerRegisterRejectsBeyondHorizon(t *testing.T) {
	s := NewScheduler(testSchedulerConfig())
	exec := &ScheduledExecution{Hash: Hash{1}, Kind: ScheduleKind{TopoHeight: 1000}}
	if err := s.Register(exec, 10); err == nil {
		t.Fatalf("expected rejection beyond max scheduling horizon")
	}
}

func TestSchedulerExecuteAtOrdersByOfferDesc(t *testing.T) {
	s := NewScheduler(testSchedulerConfig())
	low := &ScheduledExecution{Hash: Hash{1}, MaxGas: 10, OfferAmount: 5, Kind: ScheduleKind{TopoHeight: 100}}
	high := &ScheduledExecution{Hash: Hash{2}, MaxGas: 10, OfferAmount: 50, Kind: ScheduleKind{TopoHeight: 100}}
	if err := s.Register(low, 10); err != nil {
		t.Fatalf("register low: %v", err)
	}
	if err := s.Register(high, 10); err != nil {
		t.Fatalf("register high: %v", err)
	}

	outcomes := s.ExecuteAt(100)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Exec.Hash != high.Hash {
		t.Fatalf("expected higher-offer execution first")
	}
	if outcomes[0].MinerShare != 35 { // 50 * 70 / 100
		t.Fatalf("miner share = %d, want 35", outcomes[0].MinerShare)
	}
}

func TestSchedulerDefersWhenBudgetExceeded(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxScheduledExecutionGasPerBlock = 10
	s := NewScheduler(cfg)
	first := &ScheduledExecution{Hash: Hash{1}, MaxGas: 10, Kind: ScheduleKind{TopoHeight: 100}}
	second := &ScheduledExecution{Hash: Hash{2}, MaxGas: 10, Kind: ScheduleKind{TopoHeight: 100}}
	_ = s.Register(first, 10)
	_ = s.Register(second, 10)

	outcomes := s.ExecuteAt(100)
	if len(outcomes) != 1 {
		t.Fatalf("expected exactly 1 executed this block, got %d", len(outcomes))
	}
	if _, ok := s.byHash[second.Hash]; !ok {
		t.Fatalf("expected deferred execution to remain tracked")
	}
	if len(s.queue[101]) != 1 {
		t.Fatalf("expected deferred execution requeued at T+1")
	}
}

func TestSchedulerCancelRefundsSeventyPercent(t *testing.T) {
	s := NewScheduler(testSchedulerConfig())
	var scheduler PubKey
	scheduler[0] = 9
	exec := &ScheduledExecution{
		Hash: Hash{1}, OfferAmount: 100, SchedulerContract: scheduler,
		Kind: ScheduleKind{TopoHeight: 200},
	}
	if err := s.Register(exec, 10); err != nil {
		t.Fatalf("register: %v", err)
	}
	refundTo, amount, err := s.Cancel(exec.Hash, 15)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refundTo != scheduler || amount != 70 {
		t.Fatalf("refund = (%v, %d), want (%v, 70)", refundTo, amount, scheduler)
	}
}

func TestSchedulerCancelAfterWindowRejected(t *testing.T) {
	s := NewScheduler(testSchedulerConfig())
	exec := &ScheduledExecution{Hash: Hash{1}, Kind: ScheduleKind{TopoHeight: 200}}
	if err := s.Register(exec, 10); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := s.Cancel(exec.Hash, 25); err == nil {
		t.Fatalf("expected rejection past the cancellation window")
	}
}
