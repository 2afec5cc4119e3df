package server

import (
	"net"

	winio "github.com/Microsoft/go-winio"
)

// listenNamedPipe serves on \\.\pipe\<name>. A full pipe path is used as is.
func listenNamedPipe(name string) (net.Listener, error) {
	path := name
	if len(path) < 2 || path[:2] != `\\` {
		path = `\\.\pipe\` + name
	}
	return winio.ListenPipe(path, &winio.PipeConfig{MessageMode: false})
}
