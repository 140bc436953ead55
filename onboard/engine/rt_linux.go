//go:build linux

package engine

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type schedParam struct {
	priority int32
}

// setupRealtime prepares the calling OS thread for the cyclic loop. The
// caller must hold the thread with runtime.LockOSThread.
func setupRealtime(rt RTConfig) error {
	if rt.LockMemory {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			return errors.Wrap(err, "mlockall")
		}
	}

	if len(rt.CPUs) > 0 {
		var set unix.CPUSet
		for _, cpu := range rt.CPUs {
			set.Set(cpu)
		}
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			return errors.Wrapf(err, "pinning to cpus %v", rt.CPUs)
		}
	}

	if rt.Priority > 0 {
		param := schedParam{priority: int32(rt.Priority)}
		_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, unix.SCHED_FIFO, uintptr(unsafe.Pointer(&param)))
		if errno != 0 {
			return errors.Wrapf(errno, "SCHED_FIFO priority %d", rt.Priority)
		}
	}

	return nil
}
