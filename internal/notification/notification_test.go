package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type failingNotifier struct{ err error }

func (n failingNotifier) Send(context.Context, Event) error { return n.err }

type recordingNotifier struct{ events []Event }

func (n *recordingNotifier) Send(_ context.Context, e Event) error {
	n.events = append(n.events, e)
	return nil
}

func TestMultiDeliversToAll(t *testing.T) {
	boom := errors.New("boom")
	rec := &recordingNotifier{}
	m := Multi{failingNotifier{err: boom}, nil, rec}

	err := m.Send(context.Background(), Event{Kind: KindPoolWithdrawn})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected delivery despite earlier failure, got %d events", len(rec.events))
	}
}

func TestRedisPublisherPublishesJSON(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := NewRedisPublisher(client, "")
	event := Event{
		Kind:       KindContributionReceived,
		Pool:       "main",
		Identity:   "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		AmountWei:  "1000000000000000000",
		OccurredAt: time.Now().UTC(),
	}
	if err := pub.Send(ctx, event); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if got.Kind != event.Kind || got.Identity != event.Identity || got.AmountWei != event.AmountWei {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
