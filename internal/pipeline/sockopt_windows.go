package pipeline

import "net"

func reuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
