//go:build unix

package emitter

import "golang.org/x/sys/unix"

func mapCode(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
}

func unmapCode(mem []byte) error {
	return unix.Munmap(mem)
}
