package streams

import (
	"testing"

	"lighthouse/internal/domain"
)

func TestFrameQueue_DropsOldestOnOverflow(t *testing.T) {
	q := newFrameQueue(2)

	q.Push(domain.Frame{ID: "1"})
	q.Push(domain.Frame{ID: "2"})
	dropped := q.Push(domain.Frame{ID: "3"})

	if !dropped {
		t.Fatal("expected overflow push to report dropped=true")
	}
	if q.Len() != 2 {
		t.Fatalf("expected queue length 2, got %d", q.Len())
	}

	first, ok := q.Pop()
	if !ok || first.ID != "2" {
		t.Fatalf("expected oldest surviving frame to be id=2, got %+v ok=%v", first, ok)
	}
}

func TestFrameQueue_PopEmpty(t *testing.T) {
	q := newFrameQueue(4)
	if _, ok := q.Pop(); ok {
		t.Fatal("expected Pop on empty queue to report false")
	}
}
