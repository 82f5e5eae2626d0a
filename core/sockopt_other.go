//go:build !unix

package core

import (
	"errors"
	"net"
)

func tuneSocket(net.Conn) error { return nil }

func retryAccept(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
