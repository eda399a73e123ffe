// Package catalog implements the system catalog of spec §4.6: two
// reserved heap tables, "tables" and "columns", that describe every user
// table's schema. There is no separate on-disk format for catalog data —
// it is stored and read back through the same heap.Table machinery as any
// user table, which is why bootstrap must create these two tables before
// any ordinary transaction can run.
package catalog

import (
	"fmt"
	"sort"

	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/dberr"
	"github.com/dbcore/erdb/internal/storage/buffer"
	"github.com/dbcore/erdb/internal/storage/heap"
	"github.com/dbcore/erdb/internal/txn"
	"github.com/dbcore/erdb/internal/value"
)

// tablesSchema backs the reserved CatalogTablesTableId table: one row per
// user table, (table_id, name).
func tablesSchema() *value.Schema {
	return &value.Schema{Columns: []value.Column{
		{Name: "table_id", Type: value.TypeInteger, Offset: 0, NotNull: true},
		{Name: "name", Type: value.TypeText, Offset: 1, NotNull: true},
	}}
}

// columnsSchema backs the reserved CatalogColumnsTableId table: one row
// per column of every user table, (table_id, column_name, column_type,
// column_offset, not_null).
func columnsSchema() *value.Schema {
	return &value.Schema{Columns: []value.Column{
		{Name: "table_id", Type: value.TypeInteger, Offset: 0, NotNull: true},
		{Name: "column_name", Type: value.TypeText, Offset: 1, NotNull: true},
		{Name: "column_type", Type: value.TypeInteger, Offset: 2, NotNull: true},
		{Name: "column_offset", Type: value.TypeInteger, Offset: 3, NotNull: true},
		{Name: "not_null", Type: value.TypeBoolean, Offset: 4, NotNull: true},
	}}
}

// TableInfo is one user table's reconstructed schema and id.
type TableInfo struct {
	TableId common.TableId
	Name    string
	Schema  *value.Schema
}

// Catalog holds the two reserved catalog tables plus the in-memory
// directory of user tables reconstructed from them at startup.
type Catalog struct {
	pool       *buffer.Pool
	mgr        *txn.Manager
	tablesTbl  *heap.Table
	columnsTbl *heap.Table

	byName map[string]*TableInfo
	byId   map[common.TableId]*TableInfo
	nextId common.TableId
}

// Bootstrap creates the catalog's two backing tables in a brand-new data
// directory. It must run before any ordinary transaction.
func Bootstrap(pool *buffer.Pool, mgr *txn.Manager) (*Catalog, error) {
	if err := pool.CreateTable(common.CatalogTablesTableId); err != nil {
		return nil, fmt.Errorf("bootstrapping catalog tables table: %w", err)
	}
	if err := pool.CreateTable(common.CatalogColumnsTableId); err != nil {
		return nil, fmt.Errorf("bootstrapping catalog columns table: %w", err)
	}
	c := &Catalog{
		pool:       pool,
		mgr:        mgr,
		tablesTbl:  heap.NewTable(common.CatalogTablesTableId, tablesSchema(), pool, mgr),
		columnsTbl: heap.NewTable(common.CatalogColumnsTableId, columnsSchema(), pool, mgr),
		byName:     make(map[string]*TableInfo),
		byId:       make(map[common.TableId]*TableInfo),
		nextId:     common.UserTableIDStart,
	}
	return c, nil
}

// Load reconstructs the in-memory catalog directory from an existing data
// directory by scanning both catalog tables under the bootstrap
// transaction (which is visible to everyone, including itself).
func Load(pool *buffer.Pool, mgr *txn.Manager) (*Catalog, error) {
	c := &Catalog{
		pool:       pool,
		mgr:        mgr,
		tablesTbl:  heap.NewTable(common.CatalogTablesTableId, tablesSchema(), pool, mgr),
		columnsTbl: heap.NewTable(common.CatalogColumnsTableId, columnsSchema(), pool, mgr),
		byName:     make(map[string]*TableInfo),
		byId:       make(map[common.TableId]*TableInfo),
		nextId:     common.UserTableIDStart,
	}
	boot := mgr.BootstrapTransaction()

	it, err := c.tablesTbl.Iter(boot)
	if err != nil {
		return nil, fmt.Errorf("scanning catalog tables: %w", err)
	}
	for {
		row, _, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("scanning catalog tables: %w", err)
		}
		if !ok {
			break
		}
		tid := common.TableId(row[0].AsInt())
		name := row[1].AsText()
		info := &TableInfo{TableId: tid, Name: name, Schema: &value.Schema{}}
		c.byName[name] = info
		c.byId[tid] = info
		if tid >= c.nextId {
			c.nextId = tid + 1
		}
	}

	type colRow struct {
		name     string
		typ      value.TypeId
		offset   uint8
		notNull  bool
	}
	columnsByTable := make(map[common.TableId][]colRow)

	cit, err := c.columnsTbl.Iter(boot)
	if err != nil {
		return nil, fmt.Errorf("scanning catalog columns: %w", err)
	}
	for {
		row, _, ok, err := cit.Next()
		if err != nil {
			return nil, fmt.Errorf("scanning catalog columns: %w", err)
		}
		if !ok {
			break
		}
		tid := common.TableId(row[0].AsInt())
		columnsByTable[tid] = append(columnsByTable[tid], colRow{
			name:    row[1].AsText(),
			typ:     value.TypeId(row[2].AsInt()),
			offset:  uint8(row[3].AsInt()),
			notNull: row[4].AsBool(),
		})
	}

	for tid, cols := range columnsByTable {
		sort.Slice(cols, func(i, j int) bool { return cols[i].offset < cols[j].offset })
		info, ok := c.byId[tid]
		if !ok {
			return nil, dberr.New(dberr.CorruptData, "catalog.Load", fmt.Errorf("columns reference unknown table id %d", tid))
		}
		for _, col := range cols {
			info.Schema.Columns = append(info.Schema.Columns, value.Column{
				Name:    col.name,
				Type:    col.typ,
				Offset:  col.offset,
				NotNull: col.notNull,
			})
		}
	}

	return c, nil
}

// CreateTable allocates a new table id, persists its schema into the
// catalog tables under tx, and creates its backing file. The caller is
// responsible for committing tx.
func (c *Catalog) CreateTable(name string, columns []value.Column, tx *txn.Transaction) (*TableInfo, error) {
	if _, exists := c.byName[name]; exists {
		return nil, dberr.New(dberr.Schema, "catalog.CreateTable", fmt.Errorf("table %q already exists", name))
	}

	tid := c.nextId
	c.nextId++

	if _, err := c.tablesTbl.InsertTuple(value.Tuple{
		value.Integer(int32(tid)),
		value.Text(name),
	}, tx.ID()); err != nil {
		return nil, fmt.Errorf("recording table %q: %w", name, err)
	}
	for _, col := range columns {
		if _, err := c.columnsTbl.InsertTuple(value.Tuple{
			value.Integer(int32(tid)),
			value.Text(col.Name),
			value.Integer(int32(col.Type)),
			value.Integer(int32(col.Offset)),
			value.Boolean(col.NotNull),
		}, tx.ID()); err != nil {
			return nil, fmt.Errorf("recording column %q of table %q: %w", col.Name, name, err)
		}
	}

	if err := c.pool.CreateTable(tid); err != nil {
		return nil, fmt.Errorf("creating backing file for table %q: %w", name, err)
	}

	info := &TableInfo{TableId: tid, Name: name, Schema: &value.Schema{Columns: columns}}
	c.byName[name] = info
	c.byId[tid] = info
	return info, nil
}

// Lookup returns the schema and id of a table by name.
func (c *Catalog) Lookup(name string) (*TableInfo, bool) {
	info, ok := c.byName[name]
	return info, ok
}

// LookupId returns the schema and name of a table by id.
func (c *Catalog) LookupId(tid common.TableId) (*TableInfo, bool) {
	info, ok := c.byId[tid]
	return info, ok
}

// OpenTable constructs a heap.Table bound to name's current schema.
func (c *Catalog) OpenTable(name string) (*heap.Table, error) {
	info, ok := c.byName[name]
	if !ok {
		return nil, dberr.New(dberr.NotFound, "catalog.OpenTable", fmt.Errorf("table %q does not exist", name))
	}
	return heap.NewTable(info.TableId, info.Schema, c.pool, c.mgr), nil
}
