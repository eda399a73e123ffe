// Package txn implements the lock manager of spec §4.3 and the MVCC
// transaction manager of spec §4.4, grounded directly on
// original_source/src/concurrency/lock_manager.rs and
// original_source/src/concurrency/mod.rs.
package txn

import (
	"fmt"
	"sync"

	"github.com/dbcore/erdb/internal/common"
)

// LockMode is Shared or Exclusive. Shared is compatible with Shared only.
type LockMode uint8

const (
	Shared LockMode = iota
	Exclusive
)

func (m LockMode) compatible(other LockMode) bool {
	if m == Shared {
		return other == Shared
	}
	return false
}

func (m LockMode) String() string {
	if m == Shared {
		return "Shared"
	}
	return "Exclusive"
}

type tagKind uint8

const (
	tagTuple tagKind = iota
	tagTransaction
)

// LockTag names what a lock guards: either a single tuple version or an
// entire transaction (used so other transactions can wait for it to end).
type LockTag struct {
	kind  tagKind
	table common.TableId
	tuple common.TupleId
	tid   common.TxID
}

func tupleTag(table common.TableId, tupleId common.TupleId) LockTag {
	return LockTag{kind: tagTuple, table: table, tuple: tupleId}
}

func transactionTag(tid common.TxID) LockTag {
	return LockTag{kind: tagTransaction, tid: tid}
}

type lockRequest struct {
	mode  LockMode
	grant chan struct{}
}

type lockStatus struct {
	currentMode  LockMode
	grantedCount uint32
	waiting      []*lockRequest
}

func (s *lockStatus) canGrant(mode LockMode) bool {
	return len(s.waiting) == 0 && (s.grantedCount == 0 || s.currentMode.compatible(mode))
}

// LockManager is a concurrent map from LockTag to a FIFO-fair lock entry.
// A single mutex protects the whole table and every entry's state; this is
// a coarser critical section than the original's per-entry DashMap
// sharding, traded for a much simpler Go port — entries are only ever held
// long enough to flip a few fields, never across I/O or a blocking wait.
type LockManager struct {
	mu    sync.Mutex
	table map[LockTag]*lockStatus
}

func NewLockManager() *LockManager {
	return &LockManager{table: make(map[LockTag]*lockStatus)}
}

// LockGuard releases its lock exactly once, via Unlock. Callers acquire
// with LockTuple/LockTransaction and must release with defer guard.Unlock().
type LockGuard struct {
	lm   *LockManager
	tag  LockTag
	mode LockMode
}

func (g *LockGuard) Unlock() {
	g.lm.unlock(g.tag, g.mode)
}

// LockTuple acquires a lock on one tuple version. It blocks until granted.
func (lm *LockManager) LockTuple(table common.TableId, tupleId common.TupleId, mode LockMode) *LockGuard {
	return lm.lock(tupleTag(table, tupleId), mode)
}

// LockTransaction acquires a lock on a whole transaction, used by its owner
// (Exclusive, for its whole lifetime) and by readers waiting for it to end
// (Shared).
func (lm *LockManager) LockTransaction(tid common.TxID, mode LockMode) *LockGuard {
	return lm.lock(transactionTag(tid), mode)
}

func (lm *LockManager) lock(tag LockTag, mode LockMode) *LockGuard {
	lm.mu.Lock()
	status, exists := lm.table[tag]
	if !exists {
		lm.table[tag] = &lockStatus{currentMode: mode, grantedCount: 1}
		lm.mu.Unlock()
		return &LockGuard{lm: lm, tag: tag, mode: mode}
	}
	if status.canGrant(mode) {
		status.currentMode = mode
		status.grantedCount++
		lm.mu.Unlock()
		return &LockGuard{lm: lm, tag: tag, mode: mode}
	}
	req := &lockRequest{mode: mode, grant: make(chan struct{})}
	status.waiting = append(status.waiting, req)
	lm.mu.Unlock()

	<-req.grant
	return &LockGuard{lm: lm, tag: tag, mode: mode}
}

func (lm *LockManager) unlock(tag LockTag, mode LockMode) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	status, exists := lm.table[tag]
	if !exists {
		panic(fmt.Sprintf("unlock of unknown lock tag %+v", tag))
	}
	if status.currentMode != mode {
		panic(fmt.Sprintf("unlock mode %v does not match held mode %v for tag %+v", mode, status.currentMode, tag))
	}
	status.grantedCount--
	if status.grantedCount == 0 {
		wakeUpWaiting(status)
		if status.grantedCount == 0 {
			delete(lm.table, tag)
		}
	}
}

// wakeUpWaiting dequeues the next grant group: a single leading Exclusive
// waiter, or every leading Shared waiter up to (but not including) the
// next Exclusive waiter. Unlike original_source's lock_manager.rs, it does
// not discard an extra queue entry after granting an Exclusive waiter —
// that looked like a transcription bug, not documented behavior (see
// SPEC_FULL.md).
func wakeUpWaiting(status *lockStatus) {
	for len(status.waiting) > 0 {
		req := status.waiting[0]
		if req.mode == Exclusive {
			status.waiting = status.waiting[1:]
			status.currentMode = Exclusive
			status.grantedCount = 1
			close(req.grant)
			return
		}
		status.waiting = status.waiting[1:]
		status.currentMode = Shared
		status.grantedCount++
		close(req.grant)
		if len(status.waiting) > 0 && status.waiting[0].mode == Exclusive {
			return
		}
	}
}
