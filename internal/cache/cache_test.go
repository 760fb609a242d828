package cache_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsdev/podsleuthd/internal/cache"
)

var _ = Describe("Cache", func() {
	It("returns a put value within the TTL", func() {
		c := cache.New(50*time.Millisecond, 10)
		c.Put("prod/web-1", "result")
		v, ok := c.Get("prod/web-1")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("result"))
	})

	It("expires a value after the TTL elapses", func() {
		c := cache.New(10*time.Millisecond, 10)
		c.Put("prod/web-1", "result")
		Eventually(func() bool {
			_, ok := c.Get("prod/web-1")
			return ok
		}, time.Second, 5*time.Millisecond).Should(BeFalse())
	})

	It("never exceeds maxEntries across a long sequence of puts", func() {
		c := cache.New(time.Minute, 5)
		for i := 0; i < 50; i++ {
			c.Put(fmt.Sprintf("ns/pod-%d", i), "v")
			Expect(c.Len()).To(BeNumerically("<=", 5))
		}
		Expect(c.Len()).To(Equal(5))
	})

	It("evicts the oldest-inserted entry first (FIFO)", func() {
		c := cache.New(time.Minute, 2)
		c.Put("a", "1")
		c.Put("b", "2")
		c.Put("c", "3")

		_, ok := c.Get("a")
		Expect(ok).To(BeFalse())
		_, ok = c.Get("b")
		Expect(ok).To(BeTrue())
		_, ok = c.Get("c")
		Expect(ok).To(BeTrue())
	})

	It("sweep removes only entries past their TTL", func() {
		c := cache.New(20*time.Millisecond, 10)
		c.Put("fresh", "v")
		time.Sleep(30 * time.Millisecond)
		c.Put("also-fresh", "v")

		removed := c.Sweep()
		Expect(removed).To(Equal(1))
		Expect(c.Len()).To(Equal(1))
	})

	It("does not update recency on get (approximate LRU is FIFO, per design)", func() {
		c := cache.New(time.Minute, 2)
		c.Put("a", "1")
		c.Put("b", "2")
		c.Get("a")
		c.Put("c", "3")

		_, ok := c.Get("a")
		Expect(ok).To(BeFalse())
	})
})
