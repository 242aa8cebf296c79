package events

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, unsub1 := bus.Subscribe(4, EventPriceTick)
	ch2, unsub2 := bus.Subscribe(4, EventPriceTick)
	defer unsub1()
	defer unsub2()

	bus.Publish(EventPriceTick, "tick")

	for i, ch := range []<-chan Message{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Topic != EventPriceTick || got.Payload != "tick" {
				t.Fatalf("subscriber %d got %+v", i, got)
			}
		default:
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestPublishSkipsOtherTopics(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(4, EventOrderPlaced)
	defer unsub()

	bus.Publish(EventPriceTick, "tick")

	select {
	case got := <-ch:
		t.Fatalf("wrong-topic delivery: %+v", got)
	default:
	}
}

func TestMultiTopicSubscriptionMergesOntoOneChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(4, EventPriceTick, EventOrderPlaced)
	defer unsub()

	bus.Publish(EventPriceTick, "tick")
	bus.Publish(EventStrategySignal, "signal") // not subscribed
	bus.Publish(EventOrderPlaced, "order")

	want := []Message{
		{Topic: EventPriceTick, Payload: "tick"},
		{Topic: EventOrderPlaced, Payload: "order"},
	}
	for i, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Fatalf("delivery %d = %+v, want %+v", i, got, w)
			}
		default:
			t.Fatalf("delivery %d missing", i)
		}
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected extra delivery: %+v", got)
	default:
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1, EventPriceTick)
	defer unsub()

	bus.Publish(EventPriceTick, 1)
	bus.Publish(EventPriceTick, 2) // dropped, buffer full

	if got := <-ch; got.Payload != 1 {
		t.Fatalf("first delivery = %+v, want payload 1", got)
	}
	select {
	case got := <-ch:
		t.Fatalf("second publish should have been dropped, got %+v", got)
	default:
	}
	if n := bus.Dropped(); n != 1 {
		t.Fatalf("Dropped() = %d, want 1", n)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1, EventPriceTick, EventOrderPlaced)
	unsub()
	unsub() // second call is a no-op

	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}

	// publishing after unsubscribe must not panic
	bus.Publish(EventPriceTick, "tick")
	bus.Publish(EventOrderPlaced, "order")
}
