// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package timer

import (
	"container/heap"
	"time"
)

// notification is a pending activation or deactivation of a schedule
type notification struct {
	schedule   int // index into Timer.schedules
	deactivate bool
	due        time.Time

	seq   uint64 // insertion order, breaks ties between equal due times
	index int    // heap position
}

type notificationKey struct {
	schedule   int
	deactivate bool
}

// queue orders notifications by due time. It holds at most one
// activation and one deactivation per schedule.
type queue struct {
	items []*notification
	byKey map[notificationKey]*notification
	seq   uint64
}

func newQueue() *queue {
	return &queue{byKey: make(map[notificationKey]*notification)}
}

// heap.Interface

func (q *queue) Len() int { return len(q.items) }

func (q *queue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.due.Equal(b.due) {
		return a.seq < b.seq
	}
	return a.due.Before(b.due)
}

func (q *queue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *queue) Push(x any) {
	n := x.(*notification)
	n.index = len(q.items)
	q.items = append(q.items, n)
}

func (q *queue) Pop() any {
	last := len(q.items) - 1
	n := q.items[last]
	q.items[last] = nil
	q.items = q.items[:last]
	n.index = -1
	return n
}

// put inserts a notification, replacing a pending one with the same key
func (q *queue) put(schedule int, deactivate bool, due time.Time) {
	q.seq++
	key := notificationKey{schedule, deactivate}
	if n, ok := q.byKey[key]; ok {
		n.due = due
		n.seq = q.seq
		heap.Fix(q, n.index)
		return
	}
	n := &notification{schedule: schedule, deactivate: deactivate, due: due, seq: q.seq}
	q.byKey[key] = n
	heap.Push(q, n)
}

// next returns the earliest notification without removing it
func (q *queue) next() *notification {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// take removes and returns the earliest notification
func (q *queue) take() *notification {
	if len(q.items) == 0 {
		return nil
	}
	n := heap.Pop(q).(*notification)
	delete(q.byKey, notificationKey{n.schedule, n.deactivate})
	return n
}

// dropActivations removes all pending activations, keeping deactivations
func (q *queue) dropActivations() {
	kept := q.items[:0]
	for _, n := range q.items {
		if n.deactivate {
			kept = append(kept, n)
		} else {
			delete(q.byKey, notificationKey{n.schedule, false})
		}
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	for i, n := range q.items {
		n.index = i
	}
	heap.Init(q)
}

// reset removes everything
func (q *queue) reset() {
	q.items = nil
	q.byKey = make(map[notificationKey]*notification)
}

// pending returns the due time of a pending notification
func (q *queue) pending(schedule int, deactivate bool) (time.Time, bool) {
	n, ok := q.byKey[notificationKey{schedule, deactivate}]
	if !ok {
		return time.Time{}, false
	}
	return n.due, true
}
