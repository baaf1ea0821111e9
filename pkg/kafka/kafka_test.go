package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/resilience"
)

func TestToMessageSetsTypeHeader(t *testing.T) {
	msg, err := toMessage(Event{Key: "42", Type: "huffman_encode", Value: map[string]int{"bits": 7}})
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Value) != `{"bits":7}` {
		t.Errorf("value = %s", msg.Value)
	}
	back := fromKafka(msg)
	if back.Type != "huffman_encode" || string(back.Key) != "42" {
		t.Errorf("round trip = %+v", back)
	}
}

func TestToMessageRejectsUnencodable(t *testing.T) {
	if _, err := toMessage(Event{Value: make(chan int)}); err == nil {
		t.Error("expected marshal error")
	}
}

func TestFromKafkaWithoutHeader(t *testing.T) {
	m := fromKafka(kafka.Message{Value: []byte(`{}`)})
	if m.Type != "" {
		t.Errorf("type = %q, want empty", m.Type)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Bits int `json:"bits"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"bits":12}`))
	if err != nil || got.Bits != 12 {
		t.Errorf("DecodeJSON = %+v, %v", got, err)
	}
	if _, err := DecodeJSON[payload]([]byte(`{`)); err == nil {
		t.Error("expected decode error")
	}
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	fetchErrs int
	done      context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if f.fetchErrs > 0 {
		f.fetchErrs--
		return kafka.Message{}, errors.New("broker not available")
	}
	if len(f.msgs) == 0 {
		f.done()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Stats() kafka.ReaderStats {
	return kafka.ReaderStats{Messages: int64(len(f.committed)), Lag: 3}
}

func (f *fakeReader) Close() error { return nil }

func TestConsumerRetriesThenCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		fetchErrs: 1,
		done:      cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(`{}`), Headers: []kafka.Header{{Key: TypeHeader, Value: []byte("document_statistics")}}},
			{Offset: 2, Value: []byte(`{}`), Headers: []kafka.Header{{Key: TypeHeader, Value: []byte("poison")}}},
		},
	}
	attempts := map[string]int{}
	c := newConsumer(r, "docstats-analytics", func(_ context.Context, msg Message) error {
		attempts[msg.Type]++
		if msg.Type == "poison" {
			return errors.New("cannot record")
		}
		if attempts[msg.Type] == 1 {
			return errors.New("transient")
		}
		return nil
	})
	c.retry = resilience.Backoff{Attempts: 3, Base: time.Millisecond, Max: time.Millisecond}

	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if attempts["document_statistics"] != 2 || attempts["poison"] != 3 {
		t.Errorf("attempts = %v", attempts)
	}
	if len(r.committed) != 2 {
		t.Errorf("committed = %v, want both offsets", r.committed)
	}
	s := c.Stats()
	if s.Handled != 1 || s.GivenUp != 1 || s.Lag != 3 || s.LastMessage.IsZero() {
		t.Errorf("stats = %+v", s)
	}
}
