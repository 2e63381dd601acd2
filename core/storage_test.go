package core

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(logrus.New())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return s
}

func TestStoragePointInTimeRead(t *testing.T) {
	s := newTestStorage(t)
	key := []byte("acct:alice")

	s.PutVersioned(FamilyBalances, key, 10, []byte("100"))
	s.PutVersioned(FamilyBalances, key, 20, []byte("200"))
	s.PutVersioned(FamilyBalances, key, 30, []byte("300"))

	cases := []struct {
		at   Topoheight
		want string
		ok   bool
	}{
		{5, "", false},
		{10, "100", true},
		{15, "100", true},
		{20, "200", true},
		{25, "200", true},
		{30, "300", true},
		{1000, "300", true},
	}
	for _, tc := range cases {
		got, ok := s.GetAt(FamilyBalances, key, tc.at)
		if ok != tc.ok {
			t.Fatalf("at %d: ok=%v want %v", tc.at, ok, tc.ok)
		}
		if ok && string(got) != tc.want {
			t.Fatalf("at %d: got %q want %q", tc.at, got, tc.want)
		}
	}
}

func TestStorageScanPrefix(t *testing.T) {
	s := newTestStorage(t)
	s.PutVersioned(FamilyEscrows, []byte("escrow:a"), 1, []byte("va"))
	s.PutVersioned(FamilyEscrows, []byte("escrow:b"), 1, []byte("vb"))
	s.PutVersioned(FamilyEscrows, []byte("other:c"), 1, []byte("vc"))

	got := s.ScanPrefix(FamilyEscrows, []byte("escrow:"))
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}

func TestStorageFamiliesIsolated(t *testing.T) {
	s := newTestStorage(t)
	key := []byte("shared-key")
	s.PutVersioned(FamilyAccounts, key, 1, []byte("account-value"))
	if _, ok := s.GetAt(FamilyBalances, key, 1); ok {
		t.Fatalf("expected family isolation, found leaked value")
	}
}
