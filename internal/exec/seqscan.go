package exec

import (
	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/storage/heap"
	"github.com/dbcore/erdb/internal/txn"
	"github.com/dbcore/erdb/internal/value"
)

// SeqScan scans every page of a table, returning only versions visible to
// the transaction it was built with.
type SeqScan struct {
	table  *heap.Table
	tx     *txn.Transaction
	it     *heap.Iterator
	lastId common.TupleId
}

func NewSeqScan(table *heap.Table, tx *txn.Transaction) (*SeqScan, error) {
	s := &SeqScan{table: table, tx: tx}
	if err := s.Rewind(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SeqScan) Schema() *value.Schema { return s.table.Schema() }

func (s *SeqScan) Next() (value.Tuple, bool, error) {
	row, tupleId, ok, err := s.it.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	s.lastId = tupleId
	return row, true, nil
}

func (s *SeqScan) Rewind() error {
	it, err := s.table.Iter(s.tx)
	if err != nil {
		return err
	}
	s.it = it
	return nil
}

// LastTupleId reports the tuple id of the most recent row Next returned;
// Update/Delete executors use this to know what to write to.
func (s *SeqScan) LastTupleId() common.TupleId { return s.lastId }

// ReEvaluateTuple always succeeds: a sequential scan has no predicate of
// its own, only the MVCC visibility already applied by its iterator.
func (s *SeqScan) ReEvaluateTuple(row value.Tuple) (bool, error) { return true, nil }
