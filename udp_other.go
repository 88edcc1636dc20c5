// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

//go:build !linux

package ruft

func systemSetupUDPSocket(sm *socketManager) error {
	// no platform-specific socket setup outside linux
	return nil
}
