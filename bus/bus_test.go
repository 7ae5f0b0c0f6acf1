// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ton-blockchain/catchain-consensus/actor"
)

type testEventA struct{ N int }
type testEventB struct{ S string }

func TestPublishDeliversToSubscribersOfThatType(t *testing.T) {
	sys := actor.NewSystem(2)
	defer sys.Close()
	b := New()

	mbA := actor.NewMailbox(sys, 4)
	mbB := actor.NewMailbox(sys, 4)

	gotA := make(chan int, 1)
	gotB := make(chan string, 1)
	Subscribe(b, mbA, func(ctx context.Context, ev testEventA) { gotA <- ev.N })
	Subscribe(b, mbB, func(ctx context.Context, ev testEventB) { gotB <- ev.S })

	Publish(b, context.Background(), testEventA{N: 7})

	select {
	case v := <-gotA:
		require.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("subscriber A never received its event")
	}
	select {
	case <-gotB:
		t.Fatal("subscriber B should not receive testEventA")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPerSubscriberFIFO(t *testing.T) {
	sys := actor.NewSystem(4)
	defer sys.Close()
	b := New()
	mb := actor.NewMailbox(sys, 16)

	var order []int
	done := make(chan struct{})
	count := 0
	Subscribe(b, mb, func(ctx context.Context, ev testEventA) {
		order = append(order, ev.N)
		count++
		if count == 5 {
			close(done)
		}
	})

	for i := 0; i < 5; i++ {
		Publish(b, context.Background(), testEventA{N: i})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber never drained all five events")
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestAskRoutesToRegisteredResponder(t *testing.T) {
	b := New()
	RegisterResponder(b, func(ctx context.Context, req testEventA) (testEventB, error) {
		return testEventB{S: "ok"}, nil
	})

	resp, err := Ask[testEventA, testEventB](context.Background(), b, testEventA{N: 1})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.S)
}

func TestAskWithoutResponderErrors(t *testing.T) {
	b := New()
	_, err := Ask[testEventA, testEventB](context.Background(), b, testEventA{N: 1})
	require.Error(t, err)
}

func TestRegisterResponderTwiceForSameRequestPanics(t *testing.T) {
	b := New()
	RegisterResponder(b, func(ctx context.Context, req testEventA) (testEventB, error) {
		return testEventB{}, nil
	})
	require.Panics(t, func() {
		RegisterResponder(b, func(ctx context.Context, req testEventA) (testEventB, error) {
			return testEventB{}, nil
		})
	})
}
