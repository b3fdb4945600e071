package utils

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("truncate", func() {
	It("returns the string unchanged when within the limit", func() {
		Expect(Truncate("short", 10)).To(Equal("short"))
	})

	It("returns the string unchanged when exactly at the limit", func() {
		Expect(Truncate("12345", 5)).To(Equal("12345"))
	})

	It("truncates with ellipsis when over the limit", func() {
		result := Truncate("this is a long string", 10)
		Expect(result).To(Equal("this is a ..."))
	})

	It("shortens an encoded transaction to its prefix", func() {
		tx := "0x" + strings.Repeat("ab", 40)
		Expect(Truncate(tx, 18)).To(Equal("0xabababababababab..."))
	})

	It("leaves a short node reason readable in full", func() {
		Expect(Truncate("InputCoinNotFound", 64)).To(Equal("InputCoinNotFound"))
	})
})
