package sim

import "errors"

var (
	// ErrKernelUsed is returned by Run on a kernel that has already run.
	ErrKernelUsed = errors.New("sim: kernel already ran")

	// ErrClaimed is returned by Claim when another owner holds the kernel.
	ErrClaimed = errors.New("sim: kernel already claimed")
)

// killSignal is the panic value used to unwind a killed process.
type killSignal struct{}
