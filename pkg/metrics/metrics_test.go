package metrics_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/substream/pkg/metrics"
)

var _ = Describe("Collector", func() {
	var (
		reg *prometheus.Registry
		c   *metrics.Collector
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()

		var err error
		c, err = metrics.New(reg)
		Expect(err).NotTo(HaveOccurred())
	})

	It("counts frames and keep-alives", func() {
		c.AddFrames(3)
		c.AddFrames(0)
		c.AddKeepAlives(2)

		expected := `
# HELP substream_sse_frames_total Complete SSE frames reassembled from subscription streams.
# TYPE substream_sse_frames_total counter
substream_sse_frames_total 3
# HELP substream_sse_keepalives_total Keep-alive sentinels stripped from subscription streams.
# TYPE substream_sse_keepalives_total counter
substream_sse_keepalives_total 2
`
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected),
			"substream_sse_frames_total", "substream_sse_keepalives_total")).To(Succeed())
	})

	It("counts outcomes by result", func() {
		c.ObserveOutcome(metrics.ResultSuccess)
		c.ObserveOutcome(metrics.ResultSuccess)
		c.ObserveOutcome(metrics.ResultFailure)

		expected := `
# HELP substream_watch_outcomes_total Resolved watches by result.
# TYPE substream_watch_outcomes_total counter
substream_watch_outcomes_total{result="failure"} 1
substream_watch_outcomes_total{result="success"} 2
`
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected),
			"substream_watch_outcomes_total")).To(Succeed())
	})

	It("counts events and errors", func() {
		c.IncEvents()
		c.IncEvents()
		c.IncParseErrors()
		c.IncSubscriptionErrors()

		Expect(testutil.CollectAndCount(reg,
			"substream_subscription_events_total",
			"substream_subscription_parse_errors_total",
			"substream_subscription_errors_total",
		)).To(Equal(3))
	})

	It("fails to register twice on the same registry", func() {
		_, err := metrics.New(reg)
		Expect(err).To(HaveOccurred())
	})

	It("creates unregistered counters without a registerer", func() {
		unregistered, err := metrics.New(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(func() { unregistered.IncEvents() }).NotTo(Panic())
	})

	It("is safe to use as a nil collector", func() {
		var nilCollector *metrics.Collector
		Expect(func() {
			nilCollector.AddFrames(1)
			nilCollector.AddKeepAlives(1)
			nilCollector.IncEvents()
			nilCollector.IncParseErrors()
			nilCollector.IncSubscriptionErrors()
			nilCollector.ObserveOutcome(metrics.ResultError)
		}).NotTo(Panic())
	})
})
