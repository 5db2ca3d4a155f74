package core

import (
	"sync"
	"testing"
	"time"

	"github.com/jabolina/go-interchange/pkg/interchange/types"
	"go.uber.org/goleak"
)

func TestRouter_ConsumerReceivesExclusively(t *testing.T) {
	defer goleak.VerifyNone(t)
	router := NewRouter(noopLogger{})
	defer router.Stop()

	fallback := make(chan types.Outcome, 1)
	router.Register(types.DisplayGeneric, func(outcome types.Outcome) {
		fallback <- outcome
	})

	consumer := newChannelConsumer()
	router.Deliver(types.Outcome{Tag: types.ResultSuccess, Consumer: consumer})

	if _, ok := consumer.next(2 * time.Second); !ok {
		t.Fatalf("consumer never received the outcome")
	}
	select {
	case <-fallback:
		t.Fatalf("claimed outcome leaked to the presentation path")
	default:
	}
}

func TestRouter_DisplayMethodDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	router := NewRouter(noopLogger{})
	defer router.Stop()

	grid := make(chan types.Outcome, 1)
	generic := make(chan types.Outcome, 1)
	router.Register(types.DisplayGrid, func(outcome types.Outcome) { grid <- outcome })
	router.Register(types.DisplayGeneric, func(outcome types.Outcome) { generic <- outcome })

	router.Deliver(types.Outcome{
		Tag:       types.ResultSuccess,
		Reference: &types.DocReference{ID: 1, Decl: &types.Declaration{DisplayMethod: "grid"}},
	})
	select {
	case <-grid:
	case <-time.After(2 * time.Second):
		t.Fatalf("grid outcome not routed")
	}

	// An unregistered variant falls back to the generic route.
	router.Deliver(types.Outcome{
		Tag:       types.ResultSuccess,
		Reference: &types.DocReference{ID: 2, Decl: &types.Declaration{DisplayMethod: "attendanceprereq"}},
	})
	select {
	case outcome := <-generic:
		if outcome.Reference.ID != 2 {
			t.Fatalf("got record %d, want 2", outcome.Reference.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fallback outcome not routed")
	}
}

func TestRouter_UnclaimedErrorsPresented(t *testing.T) {
	defer goleak.VerifyNone(t)
	router := NewRouter(noopLogger{})
	defer router.Stop()

	presented := make(chan types.Outcome, 2)
	router.SetErrorPresenter(func(outcome types.Outcome) { presented <- outcome })

	router.Deliver(types.Outcome{Tag: types.ResultException, Message: "broken"})
	router.Deliver(types.Outcome{Tag: types.ResultTag(99)})

	for i := 0; i < 2; i++ {
		select {
		case <-presented:
		case <-time.After(2 * time.Second):
			t.Fatalf("unclaimed outcome #%d never presented", i)
		}
	}
}

func TestRouter_SerializedDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)
	router := NewRouter(noopLogger{})

	var mutex sync.Mutex
	var order []int64
	router.Register(types.DisplayGeneric, func(outcome types.Outcome) {
		mutex.Lock()
		order = append(order, outcome.Reference.ID)
		mutex.Unlock()
	})

	count := 50
	for i := 0; i < count; i++ {
		router.Deliver(types.Outcome{
			Tag:       types.ResultSuccess,
			Reference: &types.DocReference{ID: int64(i)},
		})
	}
	router.Stop()

	if len(order) != count {
		t.Fatalf("got %d deliveries, want %d", len(order), count)
	}
	for i, id := range order {
		if id != int64(i) {
			t.Fatalf("delivery #%d carried record %d, out of order", i, id)
		}
	}
}
