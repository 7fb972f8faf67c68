package executor

import (
	"context"
	"errors"
)

// ErrNotImplemented reports that a transfer operation was requested from an
// executor whose transport does not provide one.
var ErrNotImplemented = errors.New("executor: transfer not implemented")

// Compression is the optional compression sub-configuration for transfers.
type Compression struct {
	Enabled   bool
	ExtraArgs []string
}

// TransferOptions configures a single upload or download.
type TransferOptions struct {
	// AdditionalConnOptions is appended to the base connection options for
	// this transfer only.
	AdditionalConnOptions string
	Compression           *Compression
}

// TransferCapable is implemented by executor specializations that can move
// files between the local machine and the host. The base Executor does not
// implement it; callers pick a capable specialization at construction time
// or probe with AsTransfer.
type TransferCapable interface {
	Upload(ctx context.Context, localSrc, remoteDst string, opts TransferOptions) error
	Download(ctx context.Context, remoteSrc, localDst string, opts TransferOptions) error
}

// AsTransfer returns the TransferCapable view of v, or ErrNotImplemented
// when the executor has no transfer support.
func AsTransfer(v any) (TransferCapable, error) {
	if t, ok := v.(TransferCapable); ok {
		return t, nil
	}
	return nil, ErrNotImplemented
}
