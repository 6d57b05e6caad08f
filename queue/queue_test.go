package queue

import (
	"testing"

	"github.com/paynet/simcash/ids"
	"github.com/paynet/simcash/txn"
)

func mkTx(id string, priority int, arrival int64) *txn.Transaction {
	return &txn.Transaction{
		ID:          ids.TxID(id),
		Priority:    priority,
		ArrivalTick: ids.Tick(arrival),
		Amount:      100,
	}
}

func TestQ1SortedOrder(t *testing.T) {
	q := NewQ1()
	q.Push(mkTx("c", 5, 2))
	q.Push(mkTx("a", 5, 1))
	q.Push(mkTx("b", 9, 1))

	sorted := q.Sorted(func(tx *txn.Transaction) int { return tx.Priority })
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if string(sorted[i].ID) != id {
			t.Fatalf("position %d: want %s got %s", i, id, sorted[i].ID)
		}
	}
}

func TestQ1RemoveAndLen(t *testing.T) {
	q := NewQ1()
	q.Push(mkTx("a", 1, 0))
	q.Push(mkTx("b", 1, 0))
	if q.Len() != 2 {
		t.Fatalf("want len 2, got %d", q.Len())
	}
	q.Remove("a")
	if q.Len() != 1 {
		t.Fatalf("want len 1 after remove, got %d", q.Len())
	}
	if q.items[0].ID != "b" {
		t.Fatalf("want remaining item b, got %s", q.items[0].ID)
	}
}

func TestQ2EnqueueRemoveContains(t *testing.T) {
	q := NewQ2()
	tx1 := mkTx("x", 1, 0)
	q.Enqueue(tx1, "agentA", 5)

	if !q.Contains("x") {
		t.Fatal("expected x to be in Q2")
	}
	at, ok := q.EnqueuedAt("x")
	if !ok || at != 5 {
		t.Fatalf("want enqueued at 5, got %d ok=%v", at, ok)
	}
	waitFrom, ok := q.Remove("x")
	if !ok || waitFrom != 5 {
		t.Fatalf("remove: want 5, got %d ok=%v", waitFrom, ok)
	}
	if q.Contains("x") {
		t.Fatal("expected x to be gone after remove")
	}
	if q.Len() != 0 {
		t.Fatalf("want len 0, got %d", q.Len())
	}
}

func TestQ2FIFOOrderAndForAgent(t *testing.T) {
	q := NewQ2()
	q.Enqueue(mkTx("a", 1, 0), "bank1", 0)
	q.Enqueue(mkTx("b", 1, 0), "bank2", 1)
	q.Enqueue(mkTx("c", 1, 0), "bank1", 2)

	order := q.FIFOOrder()
	if len(order) != 3 || order[0].Tx.ID != "a" || order[2].Tx.ID != "c" {
		t.Fatalf("unexpected FIFO order: %+v", order)
	}

	bank1 := q.ForAgent("bank1")
	if len(bank1) != 2 || bank1[0].Tx.ID != "a" || bank1[1].Tx.ID != "c" {
		t.Fatalf("unexpected per-agent order: %+v", bank1)
	}
}
