//go:build !unix

package emitter

func mapCode(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapCode(mem []byte) error {
	return nil
}
