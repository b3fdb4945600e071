// Package storagetest holds the behaviour every storage.Driver must share,
// written as Ginkgo specs that driver suites include.
package storagetest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/substream/pkg/storage"
)

// NewRecord returns a successful record completed at completed.
func NewRecord(completed time.Time) *storage.Record {
	return &storage.Record{
		ID:          uuid.New(),
		URL:         "http://node.test/v1/graphql-sub",
		Transaction: "0xdeadbeef",
		Result:      storage.ResultSuccess,
		Status:      "SuccessStatus",
		Observed:    []string{"SubmittedStatus"},
		Payload:     json.RawMessage(`{"submitAndAwaitStatus":{"type":"SuccessStatus"}}`),
		StartedAt:   completed.Add(-3 * time.Second),
		CompletedAt: completed,
	}
}

// DriverBehaviour registers the shared driver specs. newDriver is called
// before every spec; the returned driver is closed after it.
func DriverBehaviour(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Unix(1760000000, 123456789).UTC()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put", func() {
		It("inserts a new record", func() {
			inserted, err := driver.Put(ctx, NewRecord(now))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
		})

		It("is a no-op for an existing ID", func() {
			record := NewRecord(now)
			_, err := driver.Put(ctx, record)
			Expect(err).NotTo(HaveOccurred())

			changed := *record
			changed.Result = storage.ResultError
			inserted, err := driver.Put(ctx, &changed)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			got, err := driver.Get(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Result).To(Equal(storage.ResultSuccess))
		})

		It("rejects a nil record", func() {
			_, err := driver.Put(ctx, nil)
			Expect(err).To(MatchError(storage.ErrNilRecord))
		})
	})

	Describe("Get", func() {
		It("returns every stored field", func() {
			record := NewRecord(now)
			record.Reason = "none"
			_, err := driver.Put(ctx, record)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(record.ID))
			Expect(got.URL).To(Equal(record.URL))
			Expect(got.Transaction).To(Equal(record.Transaction))
			Expect(got.Result).To(Equal(record.Result))
			Expect(got.Status).To(Equal(record.Status))
			Expect(got.Reason).To(Equal("none"))
			Expect(got.Observed).To(Equal(record.Observed))
			Expect(string(got.Payload)).To(MatchJSON(string(record.Payload)))
			Expect(got.StartedAt).To(BeTemporally("==", record.StartedAt))
			Expect(got.CompletedAt).To(BeTemporally("==", record.CompletedAt))
			Expect(got.Duration()).To(Equal(3 * time.Second))
		})

		It("keeps an error record without payload or observed statuses", func() {
			record := NewRecord(now)
			record.Result = storage.ResultError
			record.Status = ""
			record.Reason = "stream ended before a terminal status"
			record.Observed = nil
			record.Payload = nil
			_, err := driver.Put(ctx, record)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Observed).To(BeEmpty())
			Expect(got.Payload).To(BeEmpty())
			Expect(got.Reason).To(Equal(record.Reason))
		})

		It("returns NotFoundError for an unknown ID", func() {
			id := uuid.New()
			_, err := driver.Get(ctx, id)

			var notFound storage.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(notFound))
			Expect(err.Error()).To(ContainSubstring(id.String()))
		})
	})

	Describe("List", func() {
		It("returns nothing for an empty store", func() {
			records, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("orders records by completion, newest first", func() {
			older := NewRecord(now.Add(-time.Minute))
			newest := NewRecord(now.Add(time.Minute))
			middle := NewRecord(now)

			for _, r := range []*storage.Record{older, newest, middle} {
				_, err := driver.Put(ctx, r)
				Expect(err).NotTo(HaveOccurred())
			}

			records, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[0].ID).To(Equal(newest.ID))
			Expect(records[1].ID).To(Equal(middle.ID))
			Expect(records[2].ID).To(Equal(older.ID))
		})
	})
}
