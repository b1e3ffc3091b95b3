package eventbus

import "testing"

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeEvents("sub-1")
	defer unsub()

	b.Publish("command_done", map[string]any{"id": "k1"})

	select {
	case evt := <-ch:
		if evt.Name != "command_done" || evt.Payload["id"] != "k1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeEvents("sub-1")
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestPublishSkipsFullSubscriberWithoutBlocking(t *testing.T) {
	b := New()
	_, unsub := b.SubscribeEvents("slow")
	defer unsub()

	for i := 0; i < subscriberChanCap+5; i++ {
		b.Publish("noise", nil)
	}
	// Must not deadlock or panic; reaching here is the assertion.
}

func TestPublishFrameDeliversToFrameSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeFrames("viewer-1")
	defer unsub()

	b.PublishFrame("base64data", map[string]any{"quality": 70})

	select {
	case frame := <-ch:
		if frame.JPEGBase64 != "base64data" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	default:
		t.Fatal("expected frame to be delivered")
	}
}

func TestSubscriberCount(t *testing.T) {
	b := New()
	_, unsub1 := b.SubscribeEvents("e1")
	_, unsub2 := b.SubscribeFrames("f1")
	defer unsub1()
	defer unsub2()

	events, frames := b.SubscriberCount()
	if events != 1 || frames != 1 {
		t.Fatalf("SubscriberCount = (%d,%d), want (1,1)", events, frames)
	}
}
