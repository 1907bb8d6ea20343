/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package vclock_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterkv/clusterkv/vclock"
)

var _ = Describe("Clock", func() {
	It("is symmetric: compare(a,b) and compare(b,a) mirror each other", func() {
		a := vclock.New().Increment(1).Increment(2)
		b := a.Increment(1)

		Expect(vclock.Compare(a, b)).To(Equal(vclock.Before))
		Expect(vclock.Compare(b, a)).To(Equal(vclock.After))

		Expect(vclock.Compare(a, a)).To(Equal(vclock.Equal))

		c := vclock.New().Increment(3)
		Expect(vclock.Compare(a, c)).To(Equal(vclock.Concurrent))
		Expect(vclock.Compare(c, a)).To(Equal(vclock.Concurrent))
	})

	It("orders a clock strictly before its own increment", func() {
		a := vclock.New().Increment(7)
		b := a.Increment(9)
		Expect(vclock.Compare(a, b)).To(Equal(vclock.Before))
	})

	It("round-trips through the wire format", func() {
		a := vclock.New().Increment(1).Increment(2).Increment(1)
		b, err := vclock.FromBytes(a.ToBytes())
		Expect(err).NotTo(HaveOccurred())
		Expect(vclock.Compare(a, b)).To(Equal(vclock.Equal))
		Expect(b.Counter(1)).To(Equal(uint64(2)))
		Expect(b.Counter(2)).To(Equal(uint64(1)))
	})

	It("reports the exact wire size", func() {
		a := vclock.New().Increment(1).Increment(2)
		Expect(len(a.ToBytes())).To(Equal(a.Size()))
		Expect(a.Size()).To(Equal(2 + 2*10 + 8))
	})

	It("rejects truncated bytes", func() {
		a := vclock.New().Increment(1)
		b := a.ToBytes()
		_, err := vclock.FromBytes(b[:len(b)-1])
		Expect(err).To(HaveOccurred())
	})

	It("rejects unsorted entries", func() {
		a := vclock.New().Increment(5).Increment(1) // sorted internally regardless of insert order
		b := a.ToBytes()
		// corrupt by swapping the two 10-byte entry blocks to break sort order
		corrupt := append([]byte(nil), b...)
		copy(corrupt[2:12], b[12:22])
		copy(corrupt[12:22], b[2:12])
		_, err := vclock.FromBytes(corrupt)
		Expect(err).To(HaveOccurred())
	})

	It("merges to the per-node max with timestamp at the max", func() {
		a := vclock.New().Increment(1).Increment(1)
		b := vclock.New().Increment(1).Increment(2)
		m := vclock.Merge(a, b)
		Expect(m.Counter(1)).To(Equal(uint64(2)))
		Expect(m.Counter(2)).To(Equal(uint64(1)))
		wantTS := a.Timestamp()
		if b.Timestamp() > wantTS {
			wantTS = b.Timestamp()
		}
		Expect(m.Timestamp()).To(Equal(wantTS))
	})
})
