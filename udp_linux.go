// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package ruft

import (
	"golang.org/x/sys/unix"
)

func systemSetupUDPSocket(sm *socketManager) error {
	sc, err := sm.udpSocket.SyscallConn()
	if err != nil {
		return err
	}
	return sc.Control(func(fd uintptr) {
		// enable path mtu discovery, which (for datagram sockets) forces
		// the don't-fragment flag on for all outgoing packets. RUFT sizes
		// its segments under the MTU estimate, so fragmentation should
		// never be needed; with DF set, a mistake shows up as loss rather
		// than as silently fragmented datagrams.
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO); err != nil {
			// not fatal; we just lose the DF safety net
			sm.log.V(1).Info("could not set IP_MTU_DISCOVER on UDP socket", "err", err.Error())
		}

		// a busy endpoint multiplexes many connections over this one
		// socket; give the kernel room to absorb bursts
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, 1<<20); err != nil {
			sm.log.V(1).Info("could not grow SO_RCVBUF on UDP socket", "err", err.Error())
		}
	})
}
