package mpsc

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	v    int
	next atomic.Pointer[node]
}

func (n *node) Next() *atomic.Pointer[node] { return &n.next }

func newTestQueue() *Queue[node] {
	return New(func(n *node) *atomic.Pointer[node] { return &n.next })
}

func TestQueueSingleProducerFIFO(t *testing.T) {
	q := newTestQueue()
	nodes := make([]*node, 10)
	for i := range nodes {
		nodes[i] = &node{v: i}
		q.Push(nodes[i])
	}

	head := q.DrainAll()
	require.NotNil(t, head)
	var got []int
	for n := head; n != nil; n = n.Next().Load() {
		got = append(got, n.v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestQueueDrainEmpty(t *testing.T) {
	q := newTestQueue()
	assert.Nil(t, q.DrainAll())
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newTestQueue()
	const producers = 16
	const perProducer = 2000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(&node{v: p*perProducer + i})
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for n := q.DrainAll(); n != nil; n = n.Next().Load() {
		assert.False(t, seen[n.v], "duplicate value %d", n.v)
		seen[n.v] = true
	}
	assert.Equal(t, producers*perProducer, len(seen))
}

func TestQueueInterleavedPushDrain(t *testing.T) {
	q := newTestQueue()
	q.Push(&node{v: 1})
	q.Push(&node{v: 2})
	head := q.DrainAll()
	count := 0
	for n := head; n != nil; n = n.Next().Load() {
		count++
	}
	assert.Equal(t, 2, count)

	assert.Nil(t, q.DrainAll())
	q.Push(&node{v: 3})
	head = q.DrainAll()
	require.NotNil(t, head)
	assert.Equal(t, 3, head.v)
	assert.Nil(t, head.Next().Load())
}
