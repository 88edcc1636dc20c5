// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package ruft

import "net"

const (
	ethernetMTU    = 1500
	ipv4HeaderSize = 20
	ipv6HeaderSize = 40
	udpHeaderSize  = 8

	// headroom for tunnels (GRE/PPPoE and friends) between us and the peer
	fudgeHeaderSize = 36
	teredoMTU       = 1280

	udpIPv4MTU   = ethernetMTU - ipv4HeaderSize - udpHeaderSize - fudgeHeaderSize
	udpIPv6MTU   = ethernetMTU - ipv6HeaderSize - udpHeaderSize - fudgeHeaderSize
	udpTeredoMTU = teredoMTU - ipv6HeaderSize - udpHeaderSize
)

// GetUDPMTU returns a conservative guess at the usable UDP payload size on
// the network the given address belongs to. The socket manager clamps the
// configured max segment size to it so RUFT datagrams avoid IP
// fragmentation, which would make every fragment loss cost a whole packet
// retransmission.
func GetUDPMTU(addr *net.UDPAddr) uint16 {
	// Without probing we can't know the real path MTU; assume the worst
	// plausible tunnel overhead, and treat all IPv6 as possibly Teredo.
	if isIPv6(addr.IP) {
		return udpTeredoMTU
	}
	return udpIPv4MTU
}

func isIPv6(ip net.IP) bool {
	return ip.To4() == nil && len(ip) == net.IPv6len
}
