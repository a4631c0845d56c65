package events_test

import (
	"testing"
	"time"

	"github.com/ardanlabs/ethsim/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Ordering(t *testing.T) {
	evts := events.New[int]()
	defer evts.Shutdown()

	fast := evts.Acquire("fast")
	slow := evts.Acquire("slow")

	const total = 1000

	t.Log("Given the need to deliver every event in order.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen sending %d events to two subscribers.", testID, total)
		{
			for i := 0; i < total; i++ {
				evts.Send(i)
			}
			t.Logf("\t%s\tTest %d:\tShould send without blocking.", success, testID)

			for i := 0; i < total; i++ {
				if v := receive(t, fast); v != i {
					t.Fatalf("\t%s\tTest %d:\tShould receive %d on the fast subscriber, got %d.", failed, testID, i, v)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould receive every event in order on the fast subscriber.", success, testID)

			for i := 0; i < total; i++ {
				if v := receive(t, slow); v != i {
					t.Fatalf("\t%s\tTest %d:\tShould receive %d on the slow subscriber, got %d.", failed, testID, i, v)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould receive every event in order on the slow subscriber.", success, testID)
		}
	}
}

func Test_Release(t *testing.T) {
	evts := events.New[string]()
	defer evts.Shutdown()

	ch := evts.Acquire("id")
	if again := evts.Acquire("id"); again != ch {
		t.Fatalf("Should get back the same channel for the same id.")
	}

	evts.Send("one")
	if err := evts.Release("id"); err != nil {
		t.Fatalf("Should be able to release: %s", err)
	}

	if err := evts.Release("id"); err == nil {
		t.Fatalf("Should not release an unknown id.")
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if evts.Len() != 0 {
					t.Fatalf("Should not have subscribers after release.")
				}
				return
			}
		case <-timeout:
			t.Fatalf("Should close the channel after release.")
		}
	}
}

// =============================================================================

func receive(t *testing.T, ch <-chan int) int {
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("Should receive an event.")
	}
	return -1
}
