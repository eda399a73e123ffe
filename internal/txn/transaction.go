package txn

import (
	"fmt"
	"log"
	"sync"

	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/dberr"
	"github.com/dbcore/erdb/internal/storage/buffer"
)

// Status is a transaction's persisted 2-bit state, matching spec §3
// exactly: Invalid (never written), InProgress (never persisted either —
// it only ever exists in memory, via the alive set), Aborted, Committed.
type Status uint8

const (
	StatusInvalid Status = iota
	StatusInProgress
	StatusAborted
	StatusCommitted
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "InProgress"
	case StatusAborted:
		return "Aborted"
	case StatusCommitted:
		return "Committed"
	default:
		return "Invalid"
	}
}

// Isolation is the isolation level a transaction runs under.
type Isolation uint8

const (
	RepeatableRead Isolation = iota
	ReadCommitted
)

// Transaction is a running transaction's MVCC view: its own id, the
// exclusive bound of ids it should never see (tidMax) and the snapshot of
// ids that were still running when it started (alive). ReadCommitted
// transactions have these refreshed before every statement; RepeatableRead
// transactions keep the snapshot taken at Start for their whole lifetime.
type Transaction struct {
	manager   *Manager
	tid       common.TxID
	tidMax    common.TxID
	alive     map[common.TxID]struct{}
	isolation Isolation
	txLock    *LockGuard
}

func (t *Transaction) ID() common.TxID        { return t.tid }
func (t *Transaction) Isolation() Isolation    { return t.isolation }

// IsVisible implements spec §4.4's visibility predicate exactly, against
// this transaction's current snapshot.
func (t *Transaction) IsVisible(minTid, maxTid common.TxID) (bool, error) {
	if minTid >= t.tidMax {
		return false, nil
	}
	minStatus, err := t.manager.StatusOf(minTid)
	if err != nil {
		return false, err
	}
	switch minStatus {
	case StatusInvalid, StatusAborted:
		return false, nil
	case StatusInProgress:
		return minTid == t.tid && maxTid == common.InvalidTxID, nil
	case StatusCommitted:
		if _, inAlive := t.alive[minTid]; inAlive {
			return false, nil
		}
		if maxTid == common.InvalidTxID || maxTid >= t.tidMax {
			return true, nil
		}
		maxStatus, err := t.manager.StatusOf(maxTid)
		if err != nil {
			return false, err
		}
		switch maxStatus {
		case StatusInvalid, StatusAborted:
			return true, nil
		case StatusInProgress:
			return maxTid != t.tid, nil
		case StatusCommitted:
			_, inAlive := t.alive[maxTid]
			return inAlive, nil
		}
	}
	return false, nil
}

// Manager is the MVCC transaction manager of spec §4.4: it assigns
// transaction ids, tracks which are currently running, and persists each
// one's terminal status into the reserved transaction log table as a
// packed 2-bit-per-id array. Grounded on original_source's
// concurrency/mod.rs.
type Manager struct {
	pool   *buffer.Pool
	locks  *LockManager
	logger *log.Logger

	nextTid uint32 // set by Bootstrap/Load, then accessed only under aliveMu

	aliveMu sync.Mutex
	alive   map[common.TxID]struct{}
}

// NewManager constructs a Manager. Callers must call either Bootstrap (a
// brand-new data directory) or Load (an existing one) before starting any
// ordinary transaction.
func NewManager(pool *buffer.Pool, locks *LockManager, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		pool:   pool,
		locks:  locks,
		logger: logger,
		alive:  make(map[common.TxID]struct{}),
	}
}

// Bootstrap initializes a fresh transaction log table and the ordinary
// transaction id sequence, starting at common.FirstOrdinaryTxID.
func (m *Manager) Bootstrap() error {
	if err := m.pool.CreateTable(common.TransactionLogTableId); err != nil {
		return fmt.Errorf("bootstrapping transaction log: %w", err)
	}
	// Allocate zeroed file pages 0 and 1 so the log's first page exists
	// before any status is written; Load reads the highest page.
	for i := 0; i < 2; i++ {
		guard, _, err := m.pool.AllocateNewPage(common.TransactionLogTableId, make([]byte, common.PageSize))
		if err != nil {
			return fmt.Errorf("bootstrapping transaction log: %w", err)
		}
		guard.Release()
	}
	m.nextTid = uint32(common.FirstOrdinaryTxID)
	m.logger.Printf("txn: bootstrapped transaction log, next id %d", m.nextTid)
	return nil
}

// Load reconstructs the next transaction id by scanning the highest page
// of the transaction log table for the greatest assigned id. Per spec
// invariant 6, the log table must already contain at least one page.
func (m *Manager) Load() error {
	last, hasAny, err := m.pool.HighestPageNo(common.TransactionLogTableId)
	if err != nil {
		return fmt.Errorf("loading transaction log: %w", err)
	}
	if !hasAny {
		return dberr.New(dberr.CorruptData, "txn.Load", fmt.Errorf("transaction log table is empty after bootstrap"))
	}

	guard, ok, err := m.pool.Fetch(common.PageId{Table: common.TransactionLogTableId, Page: last})
	if err != nil {
		return fmt.Errorf("loading transaction log: %w", err)
	}
	if !ok {
		return dberr.New(dberr.Resource, "txn.Load", fmt.Errorf("all buffer frames are pinned"))
	}
	defer guard.Release()
	data := guard.Read()

	tidOffset := uint32(last-1) * uint32(common.PageSize) * 4
	highest := common.InvalidTxID
	found := false
	for i := 0; i < common.PageSize; i++ {
		b := data[i]
		if b == 0 {
			continue
		}
		delta := uint32(0)
		switch {
		case b >= 0b01000000:
			delta = 3
		case b >= 0b00010000:
			delta = 2
		case b >= 0b00000100:
			delta = 1
		}
		candidate := common.TxID(tidOffset + uint32(i)*4 + delta)
		highest = candidate
		found = true
	}
	if !found {
		m.nextTid = uint32(common.FirstOrdinaryTxID)
	} else {
		m.nextTid = uint32(highest) + 1
	}
	m.logger.Printf("txn: loaded transaction log, next id %d", m.nextTid)
	return nil
}

// BootstrapTransaction returns the special always-committed transaction
// used for catalog setup before any ordinary transaction exists. Its id,
// common.BootstrapTxID, is never entered into the alive set and never
// persists a status of its own — StatusOf special-cases it (see below).
func (m *Manager) BootstrapTransaction() *Transaction {
	return &Transaction{
		manager:   m,
		tid:       common.BootstrapTxID,
		tidMax:    ^common.TxID(0),
		alive:     map[common.TxID]struct{}{},
		isolation: RepeatableRead,
	}
}

// Start allocates a new transaction id, snapshots the current alive set,
// and acquires an Exclusive lock on Transaction(tid) so other transactions
// can wait for this one to finish via LockTransaction(tid, Shared).
func (m *Manager) Start(isolation Isolation) (*Transaction, error) {
	m.aliveMu.Lock()
	if m.nextTid == 0xFFFFFFFF {
		m.aliveMu.Unlock()
		return nil, dberr.New(dberr.Resource, "txn.Start", fmt.Errorf("transaction id space exhausted"))
	}
	tid := common.TxID(m.nextTid)
	m.nextTid++
	alive := make(map[common.TxID]struct{}, len(m.alive))
	for k := range m.alive {
		alive[k] = struct{}{}
	}
	m.alive[tid] = struct{}{}
	m.aliveMu.Unlock()

	txLock := m.locks.LockTransaction(tid, Exclusive)
	return &Transaction{
		manager:   m,
		tid:       tid,
		tidMax:    tid + 1, // intentional wraparound at TxID's max value
		alive:     alive,
		isolation: isolation,
		txLock:    txLock,
	}, nil
}

// Refresh re-takes a ReadCommitted transaction's snapshot before its next
// statement. RepeatableRead transactions are left untouched.
func (m *Manager) Refresh(t *Transaction) {
	if t.isolation == RepeatableRead {
		return
	}
	m.aliveMu.Lock()
	alive := make(map[common.TxID]struct{}, len(m.alive))
	for k := range m.alive {
		alive[k] = struct{}{}
	}
	tidMax := common.TxID(m.nextTid)
	m.aliveMu.Unlock()
	t.alive = alive
	t.tidMax = tidMax
}

// Commit marks t Committed and releases its transaction lock.
func (m *Manager) Commit(t *Transaction) error { return m.finish(t, StatusCommitted) }

// Abort marks t Aborted and releases its transaction lock.
func (m *Manager) Abort(t *Transaction) error { return m.finish(t, StatusAborted) }

func (m *Manager) finish(t *Transaction, status Status) error {
	m.aliveMu.Lock()
	delete(m.alive, t.tid)
	m.aliveMu.Unlock()

	if err := m.writeStatus(t.tid, status); err != nil {
		return err
	}
	t.txLock.Unlock()
	return nil
}

// StatusOf reports tid's current status: InProgress if it is in the alive
// set, otherwise whatever is persisted in the log (Invalid if tid has
// never been assigned yet).
func (m *Manager) StatusOf(tid common.TxID) (Status, error) {
	if tid == common.BootstrapTxID {
		// Never persisted and never in the alive set, but its writes must
		// be visible to everyone — see spec §9's bootstrap open question.
		return StatusCommitted, nil
	}

	m.aliveMu.Lock()
	_, inAlive := m.alive[tid]
	notYetAssigned := tid >= common.TxID(m.nextTid)
	m.aliveMu.Unlock()
	if inAlive {
		return StatusInProgress, nil
	}
	if notYetAssigned {
		return StatusInvalid, nil
	}

	pageNo, pageOffset, bitOffset := logLocation(tid)
	guard, ok, err := m.pool.Fetch(common.PageId{Table: common.TransactionLogTableId, Page: pageNo})
	if err != nil {
		return StatusInvalid, err
	}
	if !ok {
		return StatusInvalid, dberr.New(dberr.Resource, "txn.StatusOf", fmt.Errorf("all buffer frames are pinned"))
	}
	defer guard.Release()
	data := guard.Read()
	return Status((data[pageOffset] >> bitOffset) & 0b11), nil
}

func (m *Manager) writeStatus(tid common.TxID, status Status) error {
	pageNo, pageOffset, bitOffset := logLocation(tid)

	last, hasAny, err := m.pool.HighestPageNo(common.TransactionLogTableId)
	if err != nil {
		return err
	}
	for !hasAny || pageNo > last {
		zero := make([]byte, common.PageSize)
		g, pid, err := m.pool.AllocateNewPage(common.TransactionLogTableId, zero)
		if err != nil {
			return err
		}
		g.Release()
		last, hasAny = pid.Page, true
	}

	guard, ok, err := m.pool.Fetch(common.PageId{Table: common.TransactionLogTableId, Page: pageNo})
	if err != nil {
		return err
	}
	if !ok {
		return dberr.New(dberr.Resource, "txn.writeStatus", fmt.Errorf("all buffer frames are pinned"))
	}
	data := guard.Write()
	data[pageOffset] |= byte(status) << bitOffset
	guard.MarkDirty()
	guard.Release()
	return m.pool.FlushAll()
}

// logLocation returns the transaction log page (1-based: file page 0 is
// never used by the log) and the byte/bit offset of tid's 2-bit status
// within that page, per spec §3.
func logLocation(tid common.TxID) (pageNo common.PageNo, pageOffset, bitOffset int) {
	arrayPos := uint32(tid) / 4
	pageNo = common.PageNo(arrayPos/uint32(common.PageSize)) + 1
	pageOffset = int(arrayPos % uint32(common.PageSize))
	bitOffset = int((uint32(tid) % 4) * 2)
	return
}

// Locks exposes the lock manager so other packages (the heap table) can
// take Tuple and Transaction locks without constructing their own.
func (m *Manager) Locks() *LockManager { return m.locks }
