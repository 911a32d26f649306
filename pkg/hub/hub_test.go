package hub

import (
	"context"
	"testing"
	"time"
)

func newTestClient(h *Hub, topic string, buffer int) *Client {
	c := &Client{hub: h, send: make(chan Message, buffer), topic: topic}
	h.join(c)
	return c
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func TestHub_TopicRouting(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	all := newTestClient(h, "", 4)
	s1 := newTestClient(h, "s1", 4)
	s2 := newTestClient(h, "s2", 4)

	if err := h.BroadcastJSON("s1", map[string]int{"n": 1}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}
	h.Broadcast(NewJSONMessage("", []byte(`{"n":2}`)))

	if m, _ := receive(t, s1); string(m.Data) != `{"n":1}` {
		t.Errorf("s1 first = %s", m.Data)
	}
	if m, _ := receive(t, s1); string(m.Data) != `{"n":2}` {
		t.Errorf("s1 second = %s", m.Data)
	}
	if m, _ := receive(t, all); m.Topic != "s1" {
		t.Errorf("all first topic = %q", m.Topic)
	}
	if m, _ := receive(t, s2); string(m.Data) != `{"n":2}` {
		t.Errorf("s2 should only see the untargeted message, got %s", m.Data)
	}

	if n := h.ClientCount(); n != 3 {
		t.Errorf("ClientCount() = %d, want 3", n)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	slow := newTestClient(h, "", 1)
	h.BroadcastBinary("", []byte{1})
	h.BroadcastBinary("", []byte{2})

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Fatal("slow client was not dropped")
	}

	m, ok := receive(t, slow)
	if !ok || m.Type != BinaryMessage {
		t.Errorf("first message = %+v, %v", m, ok)
	}
	if _, ok := receive(t, slow); ok {
		t.Error("send channel should be closed")
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()

	c := newTestClient(h, "s1", 1)
	if !h.IsRunning() {
		t.Error("hub should be running")
	}
	cancel()
	<-done

	if _, ok := receive(t, c); ok {
		t.Error("client channel should be closed on stop")
	}
	if h.IsRunning() {
		t.Error("hub should not be running")
	}
}

func TestHub_JoinLeaveAfterStop(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := newTestClient(h, "s1", 1)
	cancel()
	<-stopped

	late := &Client{hub: h, send: make(chan Message, 1)}
	result := make(chan bool, 1)
	go func() {
		ok := h.join(late)
		h.leave(c)
		h.leave(late)
		result <- ok
	}()

	select {
	case ok := <-result:
		if ok {
			t.Error("join succeeded on a stopped hub")
		}
	case <-time.After(time.Second):
		t.Fatal("join or leave blocked on a stopped hub")
	}
	if _, ok := <-c.send; ok {
		t.Error("client send channel left open after stop")
	}
}
