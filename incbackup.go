// Package incbackup backs up SQLite databases incrementally. Each backup
// fingerprints every page of the database and rewrites only the pages whose
// fingerprint changed since the previous run. Restores check the stored
// fingerprints before the database is replaced.
//
// The entry points return a result code and a message instead of an error:
// 0 is success, a positive code names the failure kind and -1 is an
// unclassified failure. Panics are recovered into -1.
package incbackup

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ramonehamilton/sqlite-incbackup/internal/fingerprint"
	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/storage"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

// HashFunc maps a page to a 64-bit fingerprint. Equal pages must yield
// equal values.
type HashFunc = fingerprint.HashFunc

// Built-in hash functions. A nil HashFunc selects XXHash64.
var (
	XXHash64 HashFunc = fingerprint.XXHash64
	FNV1a64  HashFunc = fingerprint.FNV1a64
)

// Result codes.
const (
	CodeOK             = 0
	CodeUnknown        = -1
	CodePageRead       = 1
	CodeBackupInit     = 2
	CodeIntegrityCheck = 3
	CodeBackupMissing  = 4
	CodeManifestRead   = 5
	CodeRestoreFailed  = 6
	CodeLocked         = 7
)

// Backup copies the pages of db that changed since the last backup into the
// backup named name in workspace. The workspace directory is created if
// needed.
func Backup(ctx context.Context, db *sql.DB, workspace, name string, hash HashFunc) (code int, msg string) {
	defer recoverResult(&code, &msg)

	e, err := newEngine(workspace, name, hash)
	if err != nil {
		return result(err)
	}
	_, err = e.Backup(ctx, storage.NewSource(db))
	return result(err)
}

// Restore replaces db with the named backup. db also serves as the
// reference: its first page must still match the backup's.
func Restore(ctx context.Context, db *sql.DB, workspace, name string, hash HashFunc) (code int, msg string) {
	return RestoreInto(ctx, db, db, workspace, name, hash)
}

// RestoreInto replaces dst with the named backup after checking ref's first
// page against it. dst is untouched unless every check passes.
func RestoreInto(ctx context.Context, dst, ref *sql.DB, workspace, name string, hash HashFunc) (code int, msg string) {
	defer recoverResult(&code, &msg)

	e, err := newEngine(workspace, name, hash)
	if err != nil {
		return result(err)
	}

	dstSource := storage.NewSource(dst)
	refSource := dstSource
	if ref != dst {
		refSource = storage.NewSource(ref)
	}
	return result(e.Restore(ctx, dstSource, refSource))
}

// Clear deletes the named backup. Clearing a backup that does not exist
// succeeds.
func Clear(ctx context.Context, workspace, name string) (code int, msg string) {
	defer recoverResult(&code, &msg)

	e, err := newEngine(workspace, name, nil)
	if err != nil {
		return result(err)
	}
	return result(e.Clear(ctx))
}

// Verify checks the named backup on disk against its manifest.
func Verify(ctx context.Context, workspace, name string, hash HashFunc) (code int, msg string) {
	defer recoverResult(&code, &msg)

	e, err := newEngine(workspace, name, hash)
	if err != nil {
		return result(err)
	}
	_, err = e.Verify(ctx)
	return result(err)
}

func newEngine(dir, name string, hash HashFunc) (incremental.Engine, error) {
	u, err := workspace.NewUnit(dir, name)
	if err != nil {
		return nil, err
	}
	return incremental.New(incremental.VersionLatest, u, hash)
}

func result(err error) (int, string) {
	if err == nil {
		return CodeOK, ""
	}
	return incremental.Code(err), err.Error()
}

func recoverResult(code *int, msg *string) {
	if r := recover(); r != nil {
		*code = CodeUnknown
		*msg = fmt.Sprintf("%s: %v", incremental.ErrUnknown, r)
	}
}
