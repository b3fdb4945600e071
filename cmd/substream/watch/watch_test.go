package watchcmder

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/substream/pkg/watcher"
)

var _ = Describe("describe", func() {
	It("passes success through", func() {
		Expect(describe(nil, time.Minute)).To(Succeed())
	})

	It("reports the failure reason", func() {
		err := describe(&watcher.FailureError{Kind: "FailureStatus", Reason: "OutOfGas"}, time.Minute)
		Expect(err).To(MatchError("transaction failed: OutOfGas"))
	})

	It("reports the timeout", func() {
		err := describe(fmt.Errorf("watching: %w", context.DeadlineExceeded), 30*time.Second)
		Expect(err).To(MatchError("no terminal status within 30s"))
	})

	It("reports an interrupt", func() {
		Expect(describe(context.Canceled, time.Minute)).To(MatchError(ContainSubstring("interrupted")))
	})

	It("returns other errors unchanged", func() {
		boom := errors.New("boom")
		Expect(describe(boom, time.Minute)).To(BeIdenticalTo(boom))
	})
})

var _ = Describe("NewWatchCmd", func() {
	It("requires exactly one argument", func() {
		cmd := NewWatchCmd()
		Expect(cmd.Args(cmd, []string{})).NotTo(Succeed())
		Expect(cmd.Args(cmd, []string{"0x01"})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"0x01", "0x02"})).NotTo(Succeed())
	})

	It("registers the shared flags", func() {
		cmd := NewWatchCmd()
		for _, name := range []string{"url", "timeout", "sqlite", "read-buffer-size"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("timeout").DefValue).To(Equal("2m"))
	})
})
