package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/substream/pkg/fuel"
	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/metrics"
	"github.com/papercomputeco/substream/pkg/storage"
	"github.com/papercomputeco/substream/pkg/storage/inmemory"
	"github.com/papercomputeco/substream/pkg/watcher"
	"github.com/papercomputeco/substream/pkg/worker"
)

const awaiterURL = "http://node.test/v1/graphql-sub"

// stubAwaiter answers every call with outcome and err.
type stubAwaiter struct {
	outcome *watcher.Outcome
	err     error
	gotTx   string
	wait    bool

	// waiting, when set, is closed once a waiting call has started.
	waiting chan struct{}
}

func (a *stubAwaiter) AwaitTransactionStatus(ctx context.Context, encodedTx string) (*watcher.Outcome, error) {
	a.gotTx = encodedTx
	if a.wait {
		if a.waiting != nil {
			close(a.waiting)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return a.outcome, a.err
}

func (a *stubAwaiter) URL() string {
	return awaiterURL
}

// recordingRecorder keeps every enqueued job.
type recordingRecorder struct {
	jobs []worker.Job
}

func (r *recordingRecorder) Enqueue(job worker.Job) bool {
	r.jobs = append(r.jobs, job)
	return true
}

func doRequest(server *Server, method, path, body string) (int, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.app.Test(req, 5000)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, respBody
}

func storedRecord(completed time.Time) *storage.Record {
	return &storage.Record{
		ID:          uuid.New(),
		URL:         awaiterURL,
		Transaction: "0xdeadbeef",
		Result:      storage.ResultSuccess,
		Status:      fuel.SuccessStatus,
		StartedAt:   completed.Add(-time.Second),
		CompletedAt: completed,
	}
}

var _ = Describe("API Server", func() {
	var (
		server *Server
		driver *inmemory.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		server = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop())
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			status, body := doRequest(server, http.MethodGet, "/ping", "")
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body).To(MatchJSON(`"pong"`))
		})
	})

	Describe("GET /v1/watches", func() {
		It("returns an empty list", func() {
			status, body := doRequest(server, http.MethodGet, "/v1/watches", "")
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body).To(MatchJSON(`{"count":0,"watches":[]}`))
		})

		It("returns records most recent first", func() {
			now := time.Now().UTC()
			older := storedRecord(now.Add(-time.Hour))
			newer := storedRecord(now)
			for _, rec := range []*storage.Record{older, newer} {
				_, err := driver.Put(ctx, rec)
				Expect(err).NotTo(HaveOccurred())
			}

			status, body := doRequest(server, http.MethodGet, "/v1/watches", "")
			Expect(status).To(Equal(fiber.StatusOK))

			var list WatchListResponse
			Expect(json.Unmarshal(body, &list)).To(Succeed())
			Expect(list.Count).To(Equal(2))
			Expect(list.Watches[0].ID).To(Equal(newer.ID))
			Expect(list.Watches[1].ID).To(Equal(older.ID))
		})
	})

	Describe("GET /v1/watches/:id", func() {
		It("returns a stored record", func() {
			rec := storedRecord(time.Now().UTC())
			_, err := driver.Put(ctx, rec)
			Expect(err).NotTo(HaveOccurred())

			status, body := doRequest(server, http.MethodGet, "/v1/watches/"+rec.ID.String(), "")
			Expect(status).To(Equal(fiber.StatusOK))

			var got storage.Record
			Expect(json.Unmarshal(body, &got)).To(Succeed())
			Expect(got.ID).To(Equal(rec.ID))
			Expect(got.Status).To(Equal(fuel.SuccessStatus))
		})

		It("returns 404 for an unknown id", func() {
			status, body := doRequest(server, http.MethodGet, "/v1/watches/"+uuid.NewString(), "")
			Expect(status).To(Equal(fiber.StatusNotFound))
			Expect(body).To(MatchJSON(`{"error":"watch not found"}`))
		})

		It("returns 400 for a malformed id", func() {
			status, _ := doRequest(server, http.MethodGet, "/v1/watches/not-a-uuid", "")
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /v1/watches", func() {
		var awaiter *stubAwaiter

		BeforeEach(func() {
			awaiter = &stubAwaiter{}
			server = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop(), WithAwaiter(awaiter))
		})

		It("is unavailable without an awaiter", func() {
			server = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop())
			status, _ := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":"0x01"}`)
			Expect(status).To(Equal(fiber.StatusServiceUnavailable))
		})

		It("rejects a malformed body", func() {
			status, _ := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":`)
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects a transaction that is not hex", func() {
			status, body := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":"0xzz"}`)
			Expect(status).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("invalid encoded transaction"))
		})

		It("records a successful watch", func() {
			awaiter.outcome = &watcher.Outcome{
				Kind:     fuel.SuccessStatus,
				Payload:  json.RawMessage(`{"submitAndAwaitStatus":{"type":"SuccessStatus"}}`),
				Observed: []string{fuel.SubmittedStatus},
			}

			status, body := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":"DEADBEEF"}`)
			Expect(status).To(Equal(fiber.StatusCreated))
			Expect(awaiter.gotTx).To(Equal("0xdeadbeef"))

			var rec storage.Record
			Expect(json.Unmarshal(body, &rec)).To(Succeed())
			Expect(rec.Result).To(Equal(storage.ResultSuccess))
			Expect(rec.URL).To(Equal(awaiterURL))
			Expect(rec.Observed).To(Equal([]string{fuel.SubmittedStatus}))

			stored, err := driver.Get(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Transaction).To(Equal("0xdeadbeef"))
		})

		It("records a failed transaction with its reason", func() {
			awaiter.err = &watcher.FailureError{Kind: fuel.FailureStatus, Reason: "Revert(123)"}

			status, body := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":"0x01"}`)
			Expect(status).To(Equal(fiber.StatusCreated))

			var rec storage.Record
			Expect(json.Unmarshal(body, &rec)).To(Succeed())
			Expect(rec.Result).To(Equal(storage.ResultFailure))
			Expect(rec.Reason).To(Equal("Revert(123)"))
		})

		It("answers 502 when the stream fails", func() {
			awaiter.err = fmt.Errorf("watching status: %w", errors.New("boom"))

			status, body := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":"0x01"}`)
			Expect(status).To(Equal(fiber.StatusBadGateway))

			var rec storage.Record
			Expect(json.Unmarshal(body, &rec)).To(Succeed())
			Expect(rec.Result).To(Equal(storage.ResultError))
			Expect(rec.Reason).To(ContainSubstring("boom"))
		})

		It("answers 504 when the watch times out", func() {
			awaiter.wait = true
			server = NewServer(Config{ListenAddr: ":0", WatchTimeout: 20 * time.Millisecond}, driver, logger.Nop(), WithAwaiter(awaiter))

			status, _ := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":"0x01"}`)
			Expect(status).To(Equal(fiber.StatusGatewayTimeout))

			records, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Result).To(Equal(storage.ResultError))
		})

		It("cancels an in-flight watch on shutdown", func() {
			awaiter.wait = true
			awaiter.waiting = make(chan struct{})
			server = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop(), WithAwaiter(awaiter))

			statuses := make(chan int, 1)
			go func() {
				defer GinkgoRecover()
				status, _ := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":"0x01"}`)
				statuses <- status
			}()
			Eventually(awaiter.waiting).Should(BeClosed())

			shutdown := make(chan error, 1)
			go func() {
				shutdown <- server.Shutdown()
			}()

			Eventually(shutdown, 2*time.Second).Should(Receive(BeNil()))
			Eventually(statuses, 2*time.Second).Should(Receive(Equal(fiber.StatusServiceUnavailable)))

			records, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Reason).To(ContainSubstring("canceled"))
		})

		It("hands the record to the recorder when one is set", func() {
			recorder := &recordingRecorder{}
			awaiter.outcome = &watcher.Outcome{Kind: fuel.SuccessStatus}
			server = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop(), WithAwaiter(awaiter), WithRecorder(recorder))

			status, _ := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":"0x01"}`)
			Expect(status).To(Equal(fiber.StatusCreated))
			Expect(recorder.jobs).To(HaveLen(1))

			records, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("awaits a real subscription end to end", func() {
			node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, `data: {"data":{"submitAndAwaitStatus":{"type":"SubmittedStatus"}}}`+"\n\n")
				fmt.Fprint(w, ":keep-alive\n\n")
				fmt.Fprint(w, `data: {"data":{"submitAndAwaitStatus":{"type":"SuccessStatus","block":{"id":"0x1"}}}}`+"\n\n")
			}))
			defer node.Close()

			server = NewServer(Config{ListenAddr: ":0", WatchTimeout: 5 * time.Second}, driver, logger.Nop(),
				WithAwaiter(fuel.NewClient(node.URL)))

			status, body := doRequest(server, http.MethodPost, "/v1/watches", `{"transaction":"0xabcd"}`)
			Expect(status).To(Equal(fiber.StatusCreated))

			var rec storage.Record
			Expect(json.Unmarshal(body, &rec)).To(Succeed())
			Expect(rec.URL).To(Equal(node.URL))
			Expect(rec.Status).To(Equal(fuel.SuccessStatus))
			Expect(rec.Observed).To(Equal([]string{fuel.SubmittedStatus}))
		})
	})

	Describe("GET /metrics", func() {
		It("is not routed without a gatherer", func() {
			status, _ := doRequest(server, http.MethodGet, "/metrics", "")
			Expect(status).To(Equal(fiber.StatusNotFound))
		})

		It("exposes the collector's counters", func() {
			reg := prometheus.NewRegistry()
			collector, err := metrics.New(reg)
			Expect(err).NotTo(HaveOccurred())
			collector.IncEvents()

			server = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop(), WithGatherer(reg))

			status, body := doRequest(server, http.MethodGet, "/metrics", "")
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(ContainSubstring("substream_subscription_events_total 1"))
		})
	})

	Describe("/mcp", func() {
		It("is not routed without an MCP handler", func() {
			status, _ := doRequest(server, http.MethodPost, "/mcp", `{}`)
			Expect(status).To(Equal(fiber.StatusNotFound))
		})

		It("forwards requests to the MCP handler", func() {
			var gotMethod string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
			})
			server = NewServer(Config{ListenAddr: ":0"}, driver, logger.Nop(), WithMCP(handler))

			status, body := doRequest(server, http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(gotMethod).To(Equal(http.MethodPost))
			Expect(body).To(MatchJSON(`{"jsonrpc":"2.0","id":1,"result":{}}`))
		})
	})
})
