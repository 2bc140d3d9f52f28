//go:build !unix

package transport

import (
	"net"
	"syscall"
)

func socketControl(Config) func(network, address string, c syscall.RawConn) error {
	return nil
}

func recvBufferSize(*net.UDPConn) int {
	return 0
}
