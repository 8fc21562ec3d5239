//go:build !linux

package serial

func openPort(path string, baud int) (port, error) {
	return nil, ErrUnsupported
}
