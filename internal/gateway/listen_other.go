//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package gateway

import "net"

const reusePortSupported = false

func listenConfig(bool) net.ListenConfig { return net.ListenConfig{} }
