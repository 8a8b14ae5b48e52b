// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

var simpleNetworkProtocolGUID = MustParseGUID("a19832b9-ac25-11d3-9a2d-0090273fc14d")

const simpleNetworkTransmitInterrupt = 0x02

// EFI Simple Network Protocol offsets
const (
	snpStart      = 0x08
	snpStop       = 0x10
	snpInitialize = 0x18
	snpGetStatus  = 0x58
	snpTransmit   = 0x60
	snpReceive    = 0x68
)

// SimpleNetwork represents an EFI Simple Network Protocol instance.
type SimpleNetwork struct {
	base uint64
}

// Start calls EFI_SIMPLE_NETWORK.Start().
func (sn *SimpleNetwork) Start() error {
	status := callService(sn.base+snpStart, []uint64{sn.base})
	return parseStatus(status)
}

// Stop calls EFI_SIMPLE_NETWORK.Stop().
func (sn *SimpleNetwork) Stop() error {
	status := callService(sn.base+snpStop, []uint64{sn.base})
	return parseStatus(status)
}

// Initialize calls EFI_SIMPLE_NETWORK.Initialize().
func (sn *SimpleNetwork) Initialize() error {
	status := callService(sn.base+snpInitialize, []uint64{sn.base, 0, 0})
	return parseStatus(status)
}

// GetStatus calls EFI_SIMPLE_NETWORK.GetStatus().
func (sn *SimpleNetwork) GetStatus() (interruptStatus uint32, txBuf uint64, err error) {
	status := callService(sn.base+snpGetStatus,
		[]uint64{sn.base, ptrval(&interruptStatus), ptrval(&txBuf)},
	)

	return interruptStatus, txBuf, parseStatus(status)
}

// Transmit calls EFI_SIMPLE_NETWORK.Transmit(), waiting for
// GetStatus() to report a transmit interrupt before returning.
func (sn *SimpleNetwork) Transmit(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	status := callService(sn.base+snpTransmit,
		[]uint64{sn.base, 0, uint64(len(buf)), ptrval(&buf[0]), 0, 0, 0},
	)

	if err := parseStatus(status); err != nil {
		return err
	}

	for {
		interruptStatus, _, err := sn.GetStatus()

		if err != nil {
			return err
		}

		if interruptStatus&simpleNetworkTransmitInterrupt != 0 {
			return nil
		}
	}
}

// Receive calls EFI_SIMPLE_NETWORK.Receive().
func (sn *SimpleNetwork) Receive(buf []byte) (n int, err error) {
	if len(buf) == 0 {
		return 0, nil
	}

	size := uint64(len(buf))

	status := callService(sn.base+snpReceive,
		[]uint64{sn.base, 0, ptrval(&size), ptrval(&buf[0]), 0, 0, 0},
	)

	if status == EFI_NOT_READY {
		return 0, nil
	}

	return int(size), parseStatus(status)
}

// GetNetwork locates and returns the EFI Simple Network Protocol instance.
func (s *BootServices) GetNetwork() (sn *SimpleNetwork, err error) {
	sn = &SimpleNetwork{}
	sn.base, err = s.LocateProtocol(simpleNetworkProtocolGUID)
	return
}
