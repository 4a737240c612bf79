package alloc

import (
	"github.com/joshuapare/heapkit/internal/format"
)

// Free-list node overlay on a free block's payload:
//
//	p+0   next  (payload offset of the next node, 0 = nil)
//	p+8   prev  (payload offset of the previous node, 0 = nil)
//
// The block header at p-8 doubles as the node's size field.
const (
	nextLinkOffset = 0
	prevLinkOffset = format.WordSize
)

func nextLink(mem []byte, p Ptr) Ptr {
	return Ptr(format.ReadWord(mem, int(p)+nextLinkOffset))
}

func prevLink(mem []byte, p Ptr) Ptr {
	return Ptr(format.ReadWord(mem, int(p)+prevLinkOffset))
}

func setNext(mem []byte, p, next Ptr) {
	format.PutWord(mem, int(p)+nextLinkOffset, uint64(next))
}

func setPrev(mem []byte, p, prev Ptr) {
	format.PutWord(mem, int(p)+prevLinkOffset, uint64(prev))
}

// blockSize reads the size from the header of the block at p.
func blockSize(mem []byte, p Ptr) uint64 {
	return format.UnpackSize(format.ReadWord(mem, format.HeaderOffset(int(p))))
}

// freeList is a doubly linked list of free blocks threaded through the
// blocks themselves, kept sorted by (size, address).
type freeList struct {
	head  Ptr
	count int
	bytes uint64
}

// insert links the free block p (of the given size) in sorted position.
func (l *freeList) insert(mem []byte, p Ptr, size uint64) {
	var prev Ptr
	cur := l.head
	for cur != Nil {
		cs := blockSize(mem, cur)
		if cs > size || (cs == size && cur > p) {
			break
		}
		prev = cur
		cur = nextLink(mem, cur)
	}

	setNext(mem, p, cur)
	setPrev(mem, p, prev)
	if cur != Nil {
		setPrev(mem, cur, p)
	}
	if prev == Nil {
		l.head = p
	} else {
		setNext(mem, prev, p)
	}
	l.count++
	l.bytes += size
}

// remove unlinks p using its own links.
func (l *freeList) remove(mem []byte, p Ptr, size uint64) {
	next := nextLink(mem, p)
	prev := prevLink(mem, p)
	if prev == Nil {
		l.head = next
	} else {
		setNext(mem, prev, next)
	}
	if next != Nil {
		setPrev(mem, next, prev)
	}
	l.count--
	l.bytes -= size
}

// findFirstFit unlinks and returns the first block of at least minSize
// bytes. The list is sorted, so this is also the best fit in the list.
func (l *freeList) findFirstFit(mem []byte, minSize uint64) (Ptr, uint64) {
	for cur := l.head; cur != Nil; cur = nextLink(mem, cur) {
		if size := blockSize(mem, cur); size >= minSize {
			l.remove(mem, cur, size)
			return cur, size
		}
	}
	return Nil, 0
}

// buckets is the set of segregated free lists, one per size class.
type buckets struct {
	mem   []byte // full arena reservation
	table *sizeClassTable
	lists []freeList
}

func newBuckets(mem []byte, table *sizeClassTable) *buckets {
	return &buckets{
		mem:   mem,
		table: table,
		lists: make([]freeList, table.NumBuckets()),
	}
}

func (b *buckets) insert(p Ptr, size uint64) {
	b.lists[b.table.bucketFor(size)].insert(b.mem, p, size)
}

func (b *buckets) remove(p Ptr, size uint64) {
	b.lists[b.table.bucketFor(size)].remove(b.mem, p, size)
}

// findFit scans buckets from upward and unlinks the first block of at least
// asize bytes.
func (b *buckets) findFit(from int, asize uint64) (Ptr, uint64) {
	for i := from; i < len(b.lists); i++ {
		if b.lists[i].head == Nil {
			continue
		}
		if p, size := b.lists[i].findFirstFit(b.mem, asize); p != Nil {
			return p, size
		}
	}
	return Nil, 0
}

func (b *buckets) freeBytes() uint64 {
	var n uint64
	for i := range b.lists {
		n += b.lists[i].bytes
	}
	return n
}

func (b *buckets) freeBlocks() int {
	n := 0
	for i := range b.lists {
		n += b.lists[i].count
	}
	return n
}

// drain empties every list, passing each block to fn in bucket order.
// fn may relink the block.
func (b *buckets) drain(fn func(p Ptr, size uint64)) {
	for i := range b.lists {
		cur := b.lists[i].head
		for cur != Nil {
			next := nextLink(b.mem, cur)
			fn(cur, blockSize(b.mem, cur))
			cur = next
		}
		b.lists[i] = freeList{}
	}
}
