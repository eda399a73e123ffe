package pager

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/dberr"
)

// FileManager owns one regular file per table inside a single data
// directory, named by the table's decimal id, and serves fixed-size pages
// out of it. It is grounded directly on original_source/src/storage/file_manager.rs:
// the same filename-to-table-id parsing rule, the same fatal-on-corruption
// boundary check at startup, and the same write+fsync contract.
type FileManager struct {
	dir string

	mu    sync.RWMutex
	files map[common.TableId]*os.File
}

// toTableId parses name as a pure base-10 table id, returning ok=false for
// anything else (including names with leading/trailing junk, empty names,
// or values that overflow common.TableId).
func toTableId(name string) (common.TableId, bool) {
	if name == "" {
		return 0, false
	}
	var id uint32
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false
		}
		id = id*10 + uint32(r-'0')
		if id > 0xFFFF {
			return 0, false
		}
	}
	return common.TableId(id), true
}

// Open scans dataDir for existing table files and opens each one, failing
// the whole call if any table file's size is not a multiple of PAGE_SIZE
// (spec §4.1: a corrupt table file is fatal to startup, not a skippable
// per-table error). Subdirectories and filenames that are not valid table
// ids are silently ignored.
func Open(dataDir string) (*FileManager, error) {
	info, err := os.Stat(dataDir)
	if err != nil || !info.IsDir() {
		return nil, dberr.New(dberr.IO, "pager.Open", fmt.Errorf("%q is not a directory", dataDir))
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, dberr.New(dberr.IO, "pager.Open", fmt.Errorf("reading data directory %q: %w", dataDir, err))
	}

	fm := &FileManager{dir: dataDir, files: make(map[common.TableId]*os.File)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		tableId, ok := toTableId(entry.Name())
		if !ok {
			continue
		}
		f, err := os.OpenFile(filepath.Join(dataDir, entry.Name()), os.O_RDWR, 0o644)
		if err != nil {
			return nil, dberr.New(dberr.IO, "pager.Open", fmt.Errorf("opening table %d: %w", tableId, err))
		}
		size, err := fileSize(f)
		if err != nil {
			f.Close()
			return nil, dberr.New(dberr.IO, "pager.Open", fmt.Errorf("stat table %d: %w", tableId, err))
		}
		if size%common.PageSize != 0 {
			f.Close()
			return nil, dberr.New(dberr.CorruptData, "pager.Open",
				fmt.Errorf("table %d size %d is not a multiple of page size %d", tableId, size, common.PageSize))
		}
		fm.files[tableId] = f
	}
	return fm, nil
}

func fileSize(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func (fm *FileManager) getFile(tableId common.TableId) (*os.File, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	f, ok := fm.files[tableId]
	if !ok {
		return nil, dberr.New(dberr.NotFound, "pager.getFile", fmt.Errorf("no data file for table %d", tableId))
	}
	return f, nil
}

// CreateTable creates a new, empty backing file for tableId. It fails if
// the table is already tracked or a file with that name already exists on
// disk.
func (fm *FileManager) CreateTable(tableId common.TableId) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if _, exists := fm.files[tableId]; exists {
		return dberr.New(dberr.Schema, "pager.CreateTable", fmt.Errorf("table %d already exists", tableId))
	}
	path := filepath.Join(fm.dir, strconv.FormatUint(uint64(tableId), 10))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return dberr.New(dberr.IO, "pager.CreateTable", fmt.Errorf("creating data file for table %d: %w", tableId, err))
	}
	fm.files[tableId] = f
	return nil
}

// LastPageNo returns the highest page number in tableId's file, or
// (0, false) if the table is empty.
func (fm *FileManager) LastPageNo(tableId common.TableId) (common.PageNo, bool, error) {
	f, err := fm.getFile(tableId)
	if err != nil {
		return 0, false, err
	}
	size, err := fileSize(f)
	if err != nil {
		return 0, false, dberr.New(dberr.IO, "pager.LastPageNo", err)
	}
	if size == 0 {
		return 0, false, nil
	}
	return common.PageNo(size/common.PageSize - 1), true, nil
}

// ReadPage reads one page of tableId into buf, which must be exactly
// PAGE_SIZE bytes.
func (fm *FileManager) ReadPage(tableId common.TableId, pageNo common.PageNo, buf []byte) error {
	f, err := fm.getFile(tableId)
	if err != nil {
		return err
	}
	size, err := fileSize(f)
	if err != nil {
		return dberr.New(dberr.IO, "pager.ReadPage", err)
	}
	offset := int64(pageNo) * common.PageSize
	if offset+common.PageSize > size {
		return dberr.New(dberr.CorruptData, "pager.ReadPage",
			fmt.Errorf("page %d of table %d at offset %d exceeds file size %d", pageNo, tableId, offset, size))
	}
	if _, err := f.ReadAt(buf[:common.PageSize], offset); err != nil {
		return dberr.New(dberr.IO, "pager.ReadPage", fmt.Errorf("reading page %d of table %d: %w", pageNo, tableId, err))
	}
	return nil
}

// WritePage writes one page of tableId and fsyncs the file before
// returning, so that a crash cannot observe a torn write. Writing one page
// past the current end of file is legal and extends the file.
func (fm *FileManager) WritePage(tableId common.TableId, pageNo common.PageNo, buf []byte) error {
	f, err := fm.getFile(tableId)
	if err != nil {
		return err
	}
	offset := int64(pageNo) * common.PageSize
	if _, err := f.WriteAt(buf[:common.PageSize], offset); err != nil {
		return dberr.New(dberr.IO, "pager.WritePage", fmt.Errorf("writing page %d of table %d: %w", pageNo, tableId, err))
	}
	if err := f.Sync(); err != nil {
		return dberr.New(dberr.IO, "pager.WritePage", fmt.Errorf("fsync page %d of table %d: %w", pageNo, tableId, err))
	}
	return nil
}

// AllocateNewPage appends one page with the given initial contents and
// returns its page number.
func (fm *FileManager) AllocateNewPage(tableId common.TableId, initial []byte) (common.PageNo, error) {
	last, hasAny, err := fm.LastPageNo(tableId)
	pageNo := common.PageNo(0)
	if err != nil {
		return 0, err
	}
	if hasAny {
		pageNo = last + 1
	}
	if err := fm.WritePage(tableId, pageNo, initial); err != nil {
		return 0, err
	}
	return pageNo, nil
}

// Close closes every open table file. It is not safe to use the
// FileManager afterward.
func (fm *FileManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	var firstErr error
	for _, f := range fm.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
