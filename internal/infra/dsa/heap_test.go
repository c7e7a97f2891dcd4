package dsa

import (
	"math/rand"
	"sort"
	"testing"
)

func intLess(a, b int) bool { return a < b }

func TestPriorityQueue_PopOrder(t *testing.T) {
	pq := NewPriorityQueue(intLess)
	for _, v := range []int{5, 3, 8, 1, 9, 2} {
		pq.Push(v)
	}
	if pq.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", pq.Len())
	}

	want := []int{1, 2, 3, 5, 8, 9}
	for i, w := range want {
		got, ok := pq.Pop()
		if !ok {
			t.Fatalf("Pop() #%d returned empty", i)
		}
		if got != w {
			t.Errorf("Pop() #%d = %d, want %d", i, got, w)
		}
	}
	if _, ok := pq.Pop(); ok {
		t.Error("Pop() on empty queue should return false")
	}
}

func TestPriorityQueue_Peek(t *testing.T) {
	pq := NewPriorityQueue(intLess)
	if _, ok := pq.Peek(); ok {
		t.Error("Peek() on empty queue should return false")
	}
	pq.Push(4)
	pq.Push(2)
	if got, _ := pq.Peek(); got != 2 {
		t.Errorf("Peek() = %d, want 2", got)
	}
	if pq.Len() != 2 {
		t.Errorf("Peek must not remove; Len() = %d, want 2", pq.Len())
	}
}

func TestPriorityQueue_Drain(t *testing.T) {
	pq := NewPriorityQueue(intLess)
	for _, v := range []int{7, 1, 4} {
		pq.Push(v)
	}

	top := pq.Drain(2)
	if len(top) != 2 || top[0] != 1 || top[1] != 4 {
		t.Errorf("Drain(2) = %v, want [1 4]", top)
	}
	rest := pq.Drain(0)
	if len(rest) != 1 || rest[0] != 7 {
		t.Errorf("Drain(0) = %v, want [7]", rest)
	}
}

func TestPriorityQueue_RandomMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pq := NewPriorityQueue(intLess)
	values := make([]int, 500)
	for i := range values {
		values[i] = rng.Intn(1000)
		pq.Push(values[i])
	}
	sort.Ints(values)

	got := pq.Drain(0)
	for i := range values {
		if got[i] != values[i] {
			t.Fatalf("position %d = %d, want %d", i, got[i], values[i])
		}
	}
}
