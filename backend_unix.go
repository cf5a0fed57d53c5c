//go:build linux || darwin || freebsd

package fractalloc

import "golang.org/x/sys/unix"

// osBackend reserves pool memory straight from the OS via an anonymous
// mmap, the way the original's AlignedAllocate ultimately bottoms out in
// the system allocator. Grounded in joshuapare-hivekit's mmap-backed
// hive loader and its flush_unix.go/mmap_safety.go platform split.
type osBackend struct{}

func newBackend() backend { return osBackend{} }

func (osBackend) reserve(n uintptr) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return mem, nil
}

func (osBackend) release(mem []byte) {
	_ = unix.Munmap(mem)
}

// touch prefers MADV_WILLNEED to ask the kernel to fault pages in
// eagerly; if the platform refuses it falls back to the manual
// stride-4096 touch the original's Pool::Touch performs.
func (osBackend) touch(mem []byte) {
	if len(mem) == 0 {
		return
	}
	if err := unix.Madvise(mem, unix.MADV_WILLNEED); err == nil {
		return
	}
	manualTouch(mem)
}
