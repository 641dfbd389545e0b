// Package videoout implements the video output ring cache with
// skip/lag accounting and a dedicated delivery goroutine (spec
// component C4.1).
package videoout

import (
	"log"
	"sync"

	"github.com/richinsley/mixcore/mediatype"
	"github.com/richinsley/mixcore/vscale"
)

// CacheSize is the number of pre-allocated ring slots.
const CacheSize = 16

// Frame is one composited video frame handed to subscribers.
type Frame struct {
	Data      [mediatype.MaxAVPlanes][]byte
	LineSize  [mediatype.MaxAVPlanes]int
	Width     int
	Height    int
	Timestamp uint64
	Format    mediatype.VideoFormat
}

type slot struct {
	frame   Frame
	count   int
	skipped int
}

// Subscriber is a registered video output consumer.
type Subscriber struct {
	id       int
	info     vscale.Info
	scale    vscale.Scaler
	scaleKind vscale.ScaleType
	callback func(Frame)
}

// Cache is the ring cache plus its subscriber list and delivery loop.
type Cache struct {
	mu           sync.Mutex
	slots        [CacheSize]slot
	available    int
	lastAdded    int
	frameTime    uint64
	nativeInfo   vscale.Info
	subscribers  []*Subscriber
	nextSubID    int
	sem          chan struct{}
	stop         chan struct{}
	totalFrames  int
	skippedTotal int
}

// Open starts the cache and its delivery goroutine.
func Open(native vscale.Info, frameTime uint64) *Cache {
	c := &Cache{
		available:  CacheSize,
		frameTime:  frameTime,
		nativeInfo: native,
		sem:        make(chan struct{}, CacheSize),
		stop:       make(chan struct{}),
	}
	go c.deliveryLoop()
	return c
}

// Close stops the delivery goroutine.
func (c *Cache) Close() {
	close(c.stop)
	c.logSkipped()
}

// LockFrame reserves a slot for writing count consumers' worth of
// output, or reports locked=false if the ring is exhausted.
func (c *Cache) LockFrame(count int, ts uint64) (idx int, locked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.available <= 0 {
		c.slots[c.lastAdded].skipped++
		c.slots[c.lastAdded].count += count
		c.skippedTotal++
		return 0, false
	}
	idx = (c.lastAdded + 1) % CacheSize
	c.lastAdded = idx
	c.slots[idx].count = count
	c.slots[idx].frame.Timestamp = ts
	c.available--
	return idx, true
}

// UnlockFrame publishes slot idx's frame and wakes the delivery loop.
func (c *Cache) UnlockFrame(idx int, f Frame) {
	c.mu.Lock()
	c.slots[idx].frame = f
	c.totalFrames++
	c.mu.Unlock()

	select {
	case c.sem <- struct{}{}:
	default:
	}
}

func (c *Cache) deliveryLoop() {
	for {
		select {
		case <-c.stop:
			return
		case <-c.sem:
			c.deliverOnce()
		}
	}
}

func (c *Cache) deliverOnce() {
	c.mu.Lock()
	idx := c.lastAdded
	f := c.slots[idx].frame
	subs := append([]*Subscriber(nil), c.subscribers...)
	c.mu.Unlock()

	for _, sub := range subs {
		out := f
		if sub.scale != nil {
			converted := f
			converted.Format = sub.info.Format
			_ = sub.scale.Scale(outPlanes(&converted), outLineSizes(&converted), inPlanes(&f), inLineSizes(&f))
			out = converted
		}
		sub.callback(out)
	}

	c.mu.Lock()
	c.slots[idx].count--
	if c.slots[idx].count <= 0 {
		c.available++
	}
	c.slots[idx].frame.Timestamp += c.frameTime
	c.mu.Unlock()
}

func outPlanes(f *Frame) [][]byte {
	out := make([][]byte, mediatype.MaxAVPlanes)
	for i := range f.Data {
		out[i] = f.Data[i]
	}
	return out
}
func outLineSizes(f *Frame) []int { return f.LineSize[:] }
func inPlanes(f *Frame) [][]byte {
	out := make([][]byte, mediatype.MaxAVPlanes)
	for i := range f.Data {
		out[i] = f.Data[i]
	}
	return out
}
func inLineSizes(f *Frame) []int { return f.LineSize[:] }

// Subscribe registers a new consumer with an optional conversion; a
// scaleInfo equal to nativeInfo gets no scaler and skips conversion
// entirely.
func (c *Cache) Subscribe(scaleInfo vscale.Info, kind vscale.ScaleType, cb func(Frame)) (*Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scaler, err := vscale.Create(scaleInfo, c.nativeInfo, kind)
	if err != nil {
		return nil, err
	}

	c.nextSubID++
	sub := &Subscriber{id: c.nextSubID, info: scaleInfo, scale: scaler, scaleKind: kind, callback: cb}
	c.subscribers = append(c.subscribers, sub)
	return sub, nil
}

// Unsubscribe removes a previously registered subscriber.
func (c *Cache) Unsubscribe(sub *Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subscribers {
		if s == sub {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

func (c *Cache) logSkipped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totalFrames == 0 {
		return
	}
	pct := float64(c.skippedTotal) / float64(c.totalFrames+c.skippedTotal) * 100
	log.Printf("videoout: %d of %d frames skipped (%.2f%%)", c.skippedTotal, c.totalFrames+c.skippedTotal, pct)
}

// TotalFrames and SkippedFrames expose the accounting counters spec.md
// §8's invariant (total_frames >= skipped_frames >= 0) refers to.
func (c *Cache) TotalFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalFrames
}

func (c *Cache) SkippedFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skippedTotal
}

// SubscriberCount reports how many consumers are registered for the
// CPU-pixel path, letting a compositor skip the download/LockFrame
// work entirely when nobody is listening on it (the GPU-encode path
// goes around this cache's pixel fan-out altogether).
func (c *Cache) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}
