//go:build !unix

package workspace

import "os"

// Advisory locking is only implemented on Unix; elsewhere the lock file is
// created but not locked.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
