package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"modernc.org/sqlite"

	"github.com/ramonehamilton/sqlite-incbackup/internal/pagesource"
)

// pageMode selects how pages are read from the driver.
type pageMode int

const (
	modeUnknown pageMode = iota
	// modeDBPage reads through the sqlite_dbpage virtual table, available when
	// the SQLite build enables SQLITE_ENABLE_DBPAGE_VTAB.
	modeDBPage
	// modeSerialize reads the whole main database with sqlite3_serialize.
	modeSerialize
)

func (m pageMode) String() string {
	switch m {
	case modeDBPage:
		return "dbpage"
	case modeSerialize:
		return "serialize"
	default:
		return "unknown"
	}
}

// serializer is implemented by modernc.org/sqlite driver connections.
type serializer interface {
	Serialize() ([]byte, error)
}

// restorer is implemented by modernc.org/sqlite driver connections.
type restorer interface {
	NewRestore(srcURI string) (*sqlite.Backup, error)
}

// Source reads the pages of the main database of a *sql.DB and restores
// backup images into it. It implements pagesource.Database.
type Source struct {
	db *sql.DB

	mu   sync.Mutex
	mode pageMode
}

var _ pagesource.Database = (*Source)(nil)

// NewSource returns a Source over db.
func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

// Mode reports the page read strategy in use, detecting it if needed.
func (s *Source) Mode(ctx context.Context) (string, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	m, err := s.detect(ctx, conn)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

func (s *Source) detect(ctx context.Context, conn *sql.Conn) (pageMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != modeUnknown {
		return s.mode, nil
	}

	rows, err := conn.QueryContext(ctx, "SELECT pgno FROM sqlite_dbpage('main') LIMIT 0")
	if err == nil {
		err = rows.Close()
		if err != nil {
			return modeUnknown, fmt.Errorf("probe sqlite_dbpage: %w", err)
		}
		s.mode = modeDBPage
		return s.mode, nil
	}
	if ctx.Err() != nil {
		return modeUnknown, ctx.Err()
	}
	s.mode = modeSerialize
	return s.mode, nil
}

// PageCount implements pagesource.Source.
func (s *Source) PageCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&n); err != nil {
		return 0, fmt.Errorf("query page count: %w", err)
	}
	return n, nil
}

// PageSize returns the database page size in bytes.
func (s *Source) PageSize(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&n); err != nil {
		return 0, fmt.Errorf("query page size: %w", err)
	}
	return n, nil
}

// Pages implements pagesource.Source. All pages are read within a single
// read transaction so the walk sees one consistent database state.
func (s *Source) Pages(ctx context.Context, fn pagesource.PageFunc) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	mode, err := s.detect(ctx, conn)
	if err != nil {
		return err
	}
	if mode == modeDBPage {
		return s.dbpagePages(ctx, conn, fn)
	}

	image, pageSize, err := serialize(ctx, conn)
	if err != nil {
		return err
	}
	for off, pgno := 0, 1; off < len(image); off, pgno = off+pageSize, pgno+1 {
		if err := fn(pgno, image[off:off+pageSize]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) dbpagePages(ctx context.Context, conn *sql.Conn, fn pagesource.PageFunc) error {
	rows, err := conn.QueryContext(ctx, "SELECT pgno, data FROM sqlite_dbpage('main') ORDER BY pgno")
	if err != nil {
		return fmt.Errorf("select pages: %w", err)
	}
	defer rows.Close()

	want := 1
	for rows.Next() {
		var (
			pgno int
			data []byte
		)
		if err := rows.Scan(&pgno, &data); err != nil {
			return fmt.Errorf("scan page %d: %w", want, err)
		}
		if pgno != want {
			return fmt.Errorf("page stream out of order: got page %d, want %d", pgno, want)
		}
		if err := fn(pgno, data); err != nil {
			return err
		}
		want++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("fetch page %d: %w", want, err)
	}
	return nil
}

// Page implements pagesource.Source.
func (s *Source) Page(ctx context.Context, pgno int) ([]byte, error) {
	if pgno < 1 {
		return nil, pagesource.ErrNoPage
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	mode, err := s.detect(ctx, conn)
	if err != nil {
		return nil, err
	}

	if mode == modeDBPage {
		var data []byte
		err := conn.QueryRowContext(ctx, "SELECT data FROM sqlite_dbpage('main') WHERE pgno = ?", pgno).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pagesource.ErrNoPage
		}
		if err != nil {
			return nil, fmt.Errorf("select page %d: %w", pgno, err)
		}
		return data, nil
	}

	image, pageSize, err := serialize(ctx, conn)
	if err != nil {
		return nil, err
	}
	off := (pgno - 1) * pageSize
	if off >= len(image) {
		return nil, pagesource.ErrNoPage
	}
	return append([]byte(nil), image[off:off+pageSize]...), nil
}

// serialize returns the main database image and its page size. An empty
// database yields a nil image.
func serialize(ctx context.Context, conn *sql.Conn) ([]byte, int, error) {
	var pages int
	if err := conn.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
		return nil, 0, fmt.Errorf("query page count: %w", err)
	}
	if pages == 0 {
		return nil, 0, nil
	}

	var image []byte
	err := conn.Raw(func(dc any) error {
		s, ok := dc.(serializer)
		if !ok {
			return fmt.Errorf("driver connection %T cannot serialize", dc)
		}
		var err error
		image, err = s.Serialize()
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("serialize database: %w", err)
	}

	hdr, err := ParseHeader(image)
	if err != nil {
		return nil, 0, err
	}
	if len(image)%hdr.PageSize != 0 {
		return nil, 0, fmt.Errorf("serialized size %d is not a multiple of page size %d", len(image), hdr.PageSize)
	}
	return image, hdr.PageSize, nil
}

// RestoreFrom implements pagesource.Restorer using the SQLite online backup
// API. All pages are copied in a single step, so the destination either
// receives the whole image or keeps its previous content.
func (s *Source) RestoreFrom(ctx context.Context, imagePath string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(dc any) error {
		r, ok := dc.(restorer)
		if !ok {
			return fmt.Errorf("driver connection %T cannot restore", dc)
		}

		bk, err := r.NewRestore(imagePath)
		if err != nil {
			return fmt.Errorf("init restore from %s: %w", imagePath, err)
		}

		more, stepErr := bk.Step(-1)
		finishErr := bk.Finish()
		if stepErr != nil {
			return fmt.Errorf("restore step: %w", stepErr)
		}
		if more {
			return fmt.Errorf("restore from %s stopped before the last page", imagePath)
		}
		if finishErr != nil {
			return fmt.Errorf("finish restore: %w", finishErr)
		}
		return nil
	})
}
