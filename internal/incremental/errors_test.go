package incremental

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"kind only", &Error{Kind: KindPageRead}, "(1) failed to get database page data"},
		{"message", &Error{Kind: KindBackupInit, Msg: "open image"}, "(2) failed to init backup file: open image"},
		{"cause", &Error{Kind: KindIntegrityCheck, Err: errors.New("meta mismatch")}, "(3) integrity check failed: meta mismatch"},
		{"both", &Error{Kind: KindRestoreFailed, Msg: "step", Err: errors.New("busy")}, "(6) failed to restore backup: step: busy"},
		{"unknown", &Error{Kind: KindUnknown, Msg: "boom"}, "(0) unknown error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("wrapped: %w", newError(KindBackupInit, cause, "write page %d", 3))

	assert.ErrorIs(t, err, ErrBackupInit)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrPageRead)
	assert.Equal(t, KindBackupInit, KindOf(err))
}

func TestCode(t *testing.T) {
	assert.Equal(t, 0, Code(nil))
	assert.Equal(t, -1, Code(errors.New("plain")))
	assert.Equal(t, -1, Code(&Error{Kind: KindUnknown}))
	assert.Equal(t, 1, Code(&Error{Kind: KindPageRead}))
	assert.Equal(t, 3, Code(&Error{Kind: KindIntegrityCheck}))
	assert.Equal(t, 4, Code(&Error{Kind: KindBackupMissing}))
	assert.Equal(t, 7, Code(&Error{Kind: KindLocked}))
	assert.Equal(t, -1, Code(&Error{Kind: Kind(42)}))
}
