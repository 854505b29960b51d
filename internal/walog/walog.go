// Package walog is an internal command log: every accepted
// place/cancel command is appended here, CRC32-checksummed and
// length-framed, before the engine applies it. The engine never
// rebuilds the book from it; startup replay is defined exclusively
// over the CSV files, and at startup the engine reads the WAL only for
// its highest sequence number.
//
// Segmented, size-rotated log; frame layout is
// [type:1][seq:8][time:8][len:4][payload][crc:4].
package walog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"
)

// RecordType distinguishes the two command kinds the engine logs.
type RecordType uint8

const (
	RecordPlace RecordType = iota
	RecordCancel
)

// Record is one WAL entry.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

// NewRecord stamps a record with the current time.
func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{Type: t, Seq: seq, Time: time.Now().UnixNano(), Data: data}
}

func crc(data []byte) uint32 { return crc32.ChecksumIEEE(data) }

type segment struct {
	file   *os.File
	offset int64
}

func openSegment(dir string, index int) (*segment, error) {
	path := filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segment{file: f, offset: info.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	if err != nil {
		return err
	}
	s.offset += int64(n)
	return s.file.Sync()
}

func (s *segment) close() error { return s.file.Close() }

// Config controls segment sizing.
type Config struct {
	Dir         string
	SegmentSize int64 // bytes; rotate once a segment reaches this size
}

// WAL is a segmented, checksummed append-only command log.
type WAL struct {
	dir      string
	segSize  int64
	current  *segment
	segIndex int
}

// Open opens (creating if necessary) the WAL directory, appending to
// the highest-numbered existing segment.
func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 2 * 1024 * 1024
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("walog: mkdir %s: %w", cfg.Dir, err)
	}

	idx, err := latestSegmentIndex(cfg.Dir)
	if err != nil {
		return nil, err
	}
	seg, err := openSegment(cfg.Dir, idx)
	if err != nil {
		return nil, fmt.Errorf("walog: open segment: %w", err)
	}

	return &WAL{dir: cfg.Dir, segSize: cfg.SegmentSize, current: seg, segIndex: idx}, nil
}

func latestSegmentIndex(dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err != nil {
		return 0, err
	}
	max := 0
	for _, f := range files {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(f), "segment-%06d.wal", &idx); err == nil && idx > max {
			max = idx
		}
	}
	return max, nil
}

// Append frames and writes r, fsyncing before returning, and rotates
// to a new segment if the current one has reached SegmentSize.
func (w *WAL) Append(r *Record) error {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, 1+8+8+4+int(payloadLen)+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], r.Data)
	binary.BigEndian.PutUint32(buf[21+payloadLen:], crc(buf[:21+payloadLen]))

	if err := w.current.append(buf); err != nil {
		return fmt.Errorf("walog: append: %w", err)
	}
	if w.current.offset >= w.segSize {
		return w.rotate()
	}
	return nil
}

func (w *WAL) rotate() error {
	if err := w.current.close(); err != nil {
		return err
	}
	w.segIndex++
	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}
	w.current = seg
	return nil
}

// TruncateBefore deletes whole segments whose records are all at or
// below seq. The engine does not call it, so segments accumulate.
func (w *WAL) TruncateBefore(seq uint64) error {
	files, err := filepath.Glob(filepath.Join(w.dir, "segment-*.wal"))
	if err != nil {
		return err
	}
	for _, path := range files {
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq != 0 && maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

// Close closes the active segment.
func (w *WAL) Close() error { return w.current.close() }

// ReplayHandler is invoked once per record, in segment and
// then-in-file order.
type ReplayHandler func(*Record) error

// Replay walks every segment in dir in order, invoking fn for each
// record and returning the highest sequence number seen.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err != nil {
		return 0, err
	}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return lastSeq, err
		}
		for {
			rec, rerr := readRecord(f)
			if rerr != nil {
				if rerr == io.EOF {
					break
				}
				f.Close()
				return lastSeq, rerr
			}
			if rec.Seq > lastSeq {
				lastSeq = rec.Seq
			}
			if err := fn(rec); err != nil {
				f.Close()
				return lastSeq, err
			}
		}
		f.Close()
	}
	return lastSeq, nil
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, 21)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	t := RecordType(header[0])
	seq := binary.BigEndian.Uint64(header[1:9])
	ts := binary.BigEndian.Uint64(header[9:17])
	l := binary.BigEndian.Uint32(header[17:21])

	data := make([]byte, l+4)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	payload := data[:l]
	sum := binary.BigEndian.Uint32(data[l:])
	if crc(append(append([]byte{}, header...), payload...)) != sum {
		return nil, fmt.Errorf("walog: crc mismatch")
	}
	return &Record{Type: t, Seq: seq, Time: int64(ts), Data: payload}, nil
}

func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var max uint64
	for {
		header := make([]byte, 21)
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return max, nil
			}
			return max, err
		}
		seq := binary.BigEndian.Uint64(header[1:9])
		if seq > max {
			max = seq
		}
		payloadLen := binary.BigEndian.Uint32(header[17:21])
		if _, err := f.Seek(int64(payloadLen)+4, io.SeekCurrent); err != nil {
			return max, err
		}
	}
}
