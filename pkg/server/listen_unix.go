//go:build !windows

package server

import (
	"fmt"
	"net"
	"runtime"
)

func listenNamedPipe(name string) (net.Listener, error) {
	return nil, fmt.Errorf("cannot listen on named pipe %q: named pipes are not supported on %s", name, runtime.GOOS)
}
