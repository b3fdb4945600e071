package watcher_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/substream/pkg/subscription"
	"github.com/papercomputeco/substream/pkg/watcher"
)

type step struct {
	data string
	err  error
}

// scriptedStream replays steps, then returns io.EOF.
type scriptedStream struct {
	steps  []step
	nexts  int
	closes atomic.Int32
}

func (s *scriptedStream) Next() (subscription.Event, error) {
	s.nexts++
	if len(s.steps) == 0 {
		return subscription.Event{}, io.EOF
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.err != nil {
		return subscription.Event{}, st.err
	}
	return subscription.Event{Data: []byte(st.data)}, nil
}

func (s *scriptedStream) Close() error {
	s.closes.Add(1)
	return nil
}

func status(kind string) step {
	return step{data: `{"submitAndAwaitStatus":{"type":"` + kind + `"}}`}
}

func statusConfig() watcher.Config {
	return watcher.Config{
		StatusPath:    []string{"submitAndAwaitStatus", "type"},
		ReasonPath:    []string{"submitAndAwaitStatus", "reason"},
		SuccessKind:   "SuccessStatus",
		FailureKind:   "FailureStatus",
		DefaultReason: "transaction failed",
	}
}

var _ = Describe("Watcher", func() {
	var w *watcher.Watcher

	BeforeEach(func() {
		w = watcher.New(statusConfig())
	})

	It("starts waiting", func() {
		Expect(w.State()).To(Equal(watcher.StateWaiting))
	})

	It("resolves on the success status after intermediate ones", func() {
		stream := &scriptedStream{steps: []step{
			status("SubmittedStatus"),
			status("SqueezedOutStatus"),
			status("SuccessStatus"),
			status("FailureStatus"),
		}}

		outcome, err := w.Watch(context.Background(), stream)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Kind).To(Equal("SuccessStatus"))
		Expect(outcome.Observed).To(Equal([]string{"SubmittedStatus", "SqueezedOutStatus"}))
		Expect(string(outcome.Payload)).To(MatchJSON(`{"submitAndAwaitStatus":{"type":"SuccessStatus"}}`))
		Expect(outcome.Elapsed).To(BeNumerically(">=", 0))
		Expect(w.State()).To(Equal(watcher.StateResolved))
		Expect(stream.nexts).To(Equal(3))
		Expect(stream.closes.Load()).To(BeNumerically(">=", 1))
	})

	It("reports each intermediate status as it arrives", func() {
		var seen []string
		cfg := statusConfig()
		cfg.OnStatus = func(kind string) {
			seen = append(seen, kind)
		}

		stream := &scriptedStream{steps: []step{
			status("SubmittedStatus"),
			{data: `{"other":true}`},
			status("SqueezedOutStatus"),
			status("SuccessStatus"),
		}}

		_, err := watcher.New(cfg).Watch(context.Background(), stream)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal([]string{"SubmittedStatus", "SqueezedOutStatus"}))
	})

	It("fails with the server reason on the failure status", func() {
		stream := &scriptedStream{steps: []step{
			status("SubmittedStatus"),
			{data: `{"submitAndAwaitStatus":{"type":"FailureStatus","reason":"Revert(123)"}}`},
		}}

		outcome, err := w.Watch(context.Background(), stream)
		Expect(outcome).To(BeNil())

		var failure *watcher.FailureError
		Expect(errors.As(err, &failure)).To(BeTrue())
		Expect(failure.Kind).To(Equal("FailureStatus"))
		Expect(failure.Reason).To(Equal("Revert(123)"))
		Expect(err.Error()).To(Equal("Revert(123)"))
		Expect(string(failure.Payload)).To(ContainSubstring("Revert(123)"))
		Expect(w.State()).To(Equal(watcher.StateFailed))
		Expect(stream.closes.Load()).To(BeNumerically(">=", 1))
	})

	It("falls back to the default reason", func() {
		stream := &scriptedStream{steps: []step{status("FailureStatus")}}

		_, err := w.Watch(context.Background(), stream)
		var failure *watcher.FailureError
		Expect(errors.As(err, &failure)).To(BeTrue())
		Expect(failure.Reason).To(Equal("transaction failed"))
	})

	It("skips events without a status", func() {
		stream := &scriptedStream{steps: []step{
			{data: `{"other":true}`},
			{data: `[1,2,3]`},
			{data: `{"submitAndAwaitStatus":{"type":42}}`},
			status("SuccessStatus"),
		}}

		outcome, err := w.Watch(context.Background(), stream)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Observed).To(BeEmpty())
	})

	It("returns ErrStreamEnded when the stream ends without a terminal status", func() {
		stream := &scriptedStream{steps: []step{status("SubmittedStatus")}}

		_, err := w.Watch(context.Background(), stream)
		Expect(err).To(MatchError(watcher.ErrStreamEnded))
		Expect(w.State()).To(Equal(watcher.StateFailed))
		Expect(stream.closes.Load()).To(BeNumerically(">=", 1))
	})

	It("propagates stream errors unchanged", func() {
		upstream := &subscription.SubscriptionError{Errors: []subscription.GraphQLError{{Message: "boom"}}}
		stream := &scriptedStream{steps: []step{status("SubmittedStatus"), {err: upstream}}}

		_, err := w.Watch(context.Background(), stream)
		var subErr *subscription.SubscriptionError
		Expect(errors.As(err, &subErr)).To(BeTrue())
		Expect(subErr).To(BeIdenticalTo(upstream))
		Expect(stream.closes.Load()).To(BeNumerically(">=", 1))
	})

	It("refuses a second watch", func() {
		_, err := w.Watch(context.Background(), &scriptedStream{steps: []step{status("SuccessStatus")}})
		Expect(err).NotTo(HaveOccurred())

		_, err = w.Watch(context.Background(), &scriptedStream{steps: []step{status("SuccessStatus")}})
		Expect(err).To(MatchError(watcher.ErrAlreadyWatched))
	})

	It("returns immediately for an already cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		stream := &scriptedStream{steps: []step{status("SuccessStatus")}}
		_, err := w.Watch(ctx, stream)
		Expect(err).To(MatchError(context.Canceled))
		Expect(stream.nexts).To(BeZero())
	})

	Context("with a live subscription source", func() {
		It("closes the source when the deadline expires", func() {
			pr, pw := io.Pipe()
			defer pw.Close()

			src, err := subscription.New(context.Background(), &subscription.Config{
				URL:   "http://node.test",
				Query: "subscription { status }",
				Transport: subscription.TransportFunc(func(context.Context, *subscription.Request) (io.ReadCloser, error) {
					return pr, nil
				}),
			})
			Expect(err).NotTo(HaveOccurred())

			go func() {
				_, _ = io.WriteString(pw, `data: {"submitAndAwaitStatus":{"type":"SubmittedStatus"}}`+"\n\n")
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			_, err = w.Watch(ctx, src)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(src.State()).To(Equal(subscription.StateClosed))
		})

		It("resolves the success scenario end to end", func() {
			stream := strings.Join([]string{
				`data: {"submitAndAwaitStatus":{"type":"SubmittedStatus"}}` + "\n\n",
				":keep-alive\n\n",
				`data: {"submitAndAwaitStatus":{"type":"SuccessStatus","block":{"id":"0x1"}}}` + "\n\n",
			}, "")

			src, err := subscription.New(context.Background(), &subscription.Config{
				URL:   "http://node.test",
				Query: "subscription { status }",
				Transport: subscription.TransportFunc(func(context.Context, *subscription.Request) (io.ReadCloser, error) {
					return io.NopCloser(strings.NewReader(stream)), nil
				}),
			})
			Expect(err).NotTo(HaveOccurred())

			outcome, err := w.Watch(context.Background(), src)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Kind).To(Equal("SuccessStatus"))
			Expect(outcome.Observed).To(Equal([]string{"SubmittedStatus"}))
			Expect(src.State()).To(Equal(subscription.StateClosed))
		})

		It("propagates a parse error from the source", func() {
			src, err := subscription.New(context.Background(), &subscription.Config{
				URL:   "http://node.test",
				Query: "subscription { status }",
				Transport: subscription.TransportFunc(func(context.Context, *subscription.Request) (io.ReadCloser, error) {
					return io.NopCloser(strings.NewReader("data: {nope\n\n")), nil
				}),
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = w.Watch(context.Background(), src)
			var parseErr *subscription.ParseError
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(src.State()).To(Equal(subscription.StateErrored))
		})
	})
})

var _ = Describe("State", func() {
	It("names every state", func() {
		Expect(watcher.StateWaiting.String()).To(Equal("waiting"))
		Expect(watcher.StateWatching.String()).To(Equal("watching"))
		Expect(watcher.StateResolved.String()).To(Equal("resolved"))
		Expect(watcher.StateFailed.String()).To(Equal("failed"))
	})
})
