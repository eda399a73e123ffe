// Package common holds the scalar identifier types shared by every layer
// of the storage engine, so that pager, buffer pool, transaction manager
// and heap table all agree on their representation without import cycles.
package common

// TableId identifies a table's backing file. A handful of values are
// reserved for the system catalog and the transaction log; ordinary user
// tables start at UserTableIDStart and increase monotonically.
type TableId uint16

// PageNo is a 0-based page number within a single table's file.
type PageNo uint32

// TxID is a transaction identifier. 0 is never assigned to a real
// transaction and 1 is reserved for the bootstrap transaction used while
// the catalog itself is being created.
type TxID uint32

const (
	// InvalidTxID marks the absence of a transaction (e.g. a tuple's
	// delete_tid field when the tuple has never been deleted).
	InvalidTxID TxID = 0
	// BootstrapTxID is used only while the catalog's own rows are being
	// inserted, before any ordinary transaction can exist.
	BootstrapTxID TxID = 1
	// FirstOrdinaryTxID is the first TID handed out by Manager.Start.
	FirstOrdinaryTxID TxID = 2
)

// PageSize is the fixed size, in bytes, of every page in every table file,
// including the transaction log.
const PageSize = 8192

// Reserved table ids. User tables are allocated starting at UserTableIDStart.
const (
	CatalogTablesTableId  TableId = 1
	CatalogColumnsTableId TableId = 2
	TransactionLogTableId TableId = 3
	UserTableIDStart      TableId = 16
)

// PageId identifies a page uniquely across the whole database.
type PageId struct {
	Table TableId
	Page  PageNo
}

// TupleId identifies a tuple's slot within a single page of a single table.
type TupleId struct {
	Page PageNo
	Slot uint8
}
