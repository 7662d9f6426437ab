package events

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", Ordered, func() {
	Context("emit", func() {
		It("writes queued events in order", func() {
			w := newTestWriter()
			ep := NewEventProducer(w)

			err := ep.Emit(context.TODO(), JobRetryKind, JobRetryEvent{JobID: "j1", Attempt: 1})
			Expect(err).To(BeNil())

			err = ep.Emit(context.TODO(), JobExhaustedKind, JobExhaustedEvent{JobID: "j1", Attempts: 4})
			Expect(err).To(BeNil())

			Eventually(w.Len, 2*time.Second).Should(Equal(2))

			messages := w.Events()
			Expect(messages[0].Context.GetType()).To(Equal(JobRetryKind))
			Expect(messages[0].Context.GetSource()).To(Equal("retrato.api"))
			Expect(messages[1].Context.GetType()).To(Equal(JobExhaustedKind))

			Expect(ep.Close()).To(BeNil())
		})

		It("rejects an unmarshalable payload", func() {
			w := newTestWriter()
			ep := NewEventProducer(w)

			err := ep.Emit(context.TODO(), JobRetryKind, func() {})
			Expect(err).ToNot(BeNil())
			Expect(w.Len()).To(Equal(0))

			Expect(ep.Close()).To(BeNil())
		})

		It("keeps going when the writer fails", func() {
			w := newTestWriter()
			w.err = context.DeadlineExceeded
			ep := NewEventProducer(w)

			Expect(ep.Emit(context.TODO(), JobTimeoutKind, JobTimeoutEvent{JobID: "j1"})).To(BeNil())

			w.setErr(nil)
			Expect(ep.Emit(context.TODO(), JobCompletedKind, JobCompletedEvent{JobID: "j1"})).To(BeNil())

			Eventually(w.Len, 2*time.Second).Should(BeNumerically(">=", 1))
			Expect(ep.Close()).To(BeNil())
		})
	})
})

type testwriter struct {
	mu       sync.Mutex
	messages []cloudevents.Event
	err      error
}

func newTestWriter() *testwriter {
	return &testwriter{messages: []cloudevents.Event{}}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.messages = append(t.messages, e)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	return nil
}

func (t *testwriter) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *testwriter) Events() []cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cloudevents.Event{}, t.messages...)
}

func (t *testwriter) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}
