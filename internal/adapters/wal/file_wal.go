package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
	"github.com/vmihailenco/msgpack/v5"
)

// entry format: [8 bytes id][4 bytes len][4 bytes crc32][len bytes msgpack job]
const recordHeaderLen = 16

// FileWAL is an append-only job journal with a separate commit watermark.
// Entries at or below the watermark have reached a sink and are dropped by
// TruncateCommitted.
type FileWAL struct {
	mu        sync.Mutex
	dir       string
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
}

var _ ports.WAL = (*FileWAL)(nil)

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	wal := &FileWAL{
		dir:      dir,
		path:     path,
		metaPath: filepath.Join(dir, "wal.meta"),
		file:     f,
		writer:   bufio.NewWriterSize(f, 1<<16),
	}
	if err := wal.bootstrap(); err != nil {
		f.Close()
		return nil, err
	}
	return wal, nil
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

// scanExisting finds the last complete entry and cuts off a torn tail left by
// a crash mid-append.
func (w *FileWAL) scanExisting() error {
	stat, err := os.Stat(w.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil || stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.WALEntryID
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("wal scan header: %w", err)
		}
		id, length, sum := decodeHeader(hdr)

		body := make([]byte, length)
		if _, err := io.ReadFull(reader, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("wal scan body: %w", err)
		}
		if crc32.ChecksumIEEE(body) != sum {
			break
		}
		offset += recordHeaderLen + int64(length)
		lastID = id
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("wal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

// Append journals job and flushes it to the OS before returning its id.
func (w *FileWAL) Append(job *domain.Job) (ports.WALEntryID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := msgpack.Marshal(job)
	if err != nil {
		return 0, fmt.Errorf("wal encode job: %w", err)
	}

	id := w.nextID + 1
	hdr := encodeHeader(id, b)
	if _, err := w.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.writer.Write(b); err != nil {
		return 0, err
	}
	if err := w.writer.Flush(); err != nil {
		return 0, err
	}

	w.nextID = id
	w.sizeBytes += int64(len(b) + len(hdr))
	return id, nil
}

// Iterate calls fn for every entry with id >= from, in append order.
func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, job *domain.Job) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	return readEntries(bufio.NewReader(f), func(id ports.WALEntryID, body []byte) error {
		if id < from {
			return nil
		}
		var job domain.Job
		if err := msgpack.Unmarshal(body, &job); err != nil {
			return fmt.Errorf("corrupt WAL entry %d: %w", id, err)
		}
		return fn(id, &job)
	})
}

func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upto > w.committed {
		w.committed = upto
	}
	return w.persistMetaLocked()
}

// TruncateCommitted rewrites the log keeping only uncommitted entries. Entry
// ids are preserved.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}

	src, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmpPath := w.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	out := bufio.NewWriter(tmp)

	var kept int64
	err = readEntries(bufio.NewReader(src), func(id ports.WALEntryID, body []byte) error {
		if id <= w.committed {
			return nil
		}
		hdr := encodeHeader(id, body)
		if _, err := out.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := out.Write(body); err != nil {
			return err
		}
		kept += recordHeaderLen + int64(len(body))
		return nil
	})
	if err == nil {
		err = out.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("wal compact: %w", err)
	}

	if err := w.file.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Join(fmt.Errorf("wal compact: %w", err), w.reopenLocked())
	}
	if err := renameFile(tmpPath, w.path); err != nil {
		// the original log is untouched; keep appending to it
		os.Remove(tmpPath)
		return errors.Join(fmt.Errorf("wal compact rename: %w", err), w.reopenLocked())
	}
	if err := w.reopenLocked(); err != nil {
		return err
	}
	w.sizeBytes = kept
	return nil
}

// renameFile is swapped in tests to simulate a failed compaction.
var renameFile = os.Rename

func (w *FileWAL) reopenLocked() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal reopen: %w", err)
	}
	w.file = f
	w.writer.Reset(f)
	return nil
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

// Close flushes, syncs and closes the log.
func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *FileWAL) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", w.committed))
	tmp := w.metaPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.metaPath)
}

func encodeHeader(id ports.WALEntryID, body []byte) [recordHeaderLen]byte {
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	binary.BigEndian.PutUint32(hdr[12:16], crc32.ChecksumIEEE(body))
	return hdr
}

func decodeHeader(hdr [recordHeaderLen]byte) (ports.WALEntryID, uint32, uint32) {
	return ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8])),
		binary.BigEndian.Uint32(hdr[8:12]),
		binary.BigEndian.Uint32(hdr[12:16])
}

func readEntries(r io.Reader, fn func(id ports.WALEntryID, body []byte) error) error {
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("wal truncated header: %w", err)
		}
		id, length, sum := decodeHeader(hdr)

		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return fmt.Errorf("corrupt WAL: %w", err)
		}
		if crc32.ChecksumIEEE(body) != sum {
			return fmt.Errorf("corrupt WAL: checksum mismatch at entry %d", id)
		}
		if err := fn(id, body); err != nil {
			return err
		}
	}
}
