package storage

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// HeaderSize is the length of the SQLite database header on page 1.
const HeaderSize = 100

const headerMagic = "SQLite format 3\x00"

// ErrNotDatabase is returned when a buffer does not start with a SQLite header.
var ErrNotDatabase = errors.New("not a SQLite database image")

// Header holds the fields of the database header the backup tooling uses.
type Header struct {
	PageSize      int
	WriteVersion  uint8 // 1 = rollback journal, 2 = WAL
	ReadVersion   uint8
	ChangeCounter uint32
	// PageCount is the in-header database size. It is only authoritative
	// when ChangeCounter equals VersionValidFor.
	PageCount       uint32
	VersionValidFor uint32
}

// WAL reports whether the image was written by a database in WAL mode.
func (h Header) WAL() bool {
	return h.WriteVersion == 2
}

// ParseHeader decodes the header at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize || string(buf[:len(headerMagic)]) != headerMagic {
		return Header{}, ErrNotDatabase
	}

	h := Header{
		PageSize:        int(binary.BigEndian.Uint16(buf[16:18])),
		WriteVersion:    buf[18],
		ReadVersion:     buf[19],
		ChangeCounter:   binary.BigEndian.Uint32(buf[24:28]),
		PageCount:       binary.BigEndian.Uint32(buf[28:32]),
		VersionValidFor: binary.BigEndian.Uint32(buf[92:96]),
	}
	if h.PageSize == 1 {
		h.PageSize = 65536
	}
	if h.PageSize < 512 || h.PageSize&(h.PageSize-1) != 0 {
		return Header{}, fmt.Errorf("%w: invalid page size %d", ErrNotDatabase, h.PageSize)
	}
	return h, nil
}

// ImageInfo describes a backup image file on disk.
type ImageInfo struct {
	Path   string
	Size   int64
	Header Header
}

// Blocks returns how many page-sized blocks the file holds.
func (i *ImageInfo) Blocks() int64 {
	if i.Header.PageSize == 0 {
		return 0
	}
	return i.Size / int64(i.Header.PageSize)
}

// ReadImageInfo reads the header of the image at path.
func ReadImageInfo(path string) (*ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDatabase, err)
	}
	hdr, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	return &ImageInfo{Path: path, Size: st.Size(), Header: hdr}, nil
}

// VerifyImage opens the image at path as a standalone SQLite database and
// runs PRAGMA quick_check against it.
func VerifyImage(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("backup image not accessible: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup as database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping backup database: %w", err)
	}

	rows, err := db.Query("PRAGMA quick_check")
	if err != nil {
		return fmt.Errorf("failed to check backup database: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("failed to read quick_check result: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to check backup database: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("backup database failed quick_check: %s", strings.Join(problems, "; "))
	}
	return nil
}
