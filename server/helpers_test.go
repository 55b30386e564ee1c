package server

import (
	"net"
	"time"
)

const (
	timeout = 5 * time.Second
	tick    = 20 * time.Millisecond
)

func newLocalListener() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}
