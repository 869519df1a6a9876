// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

// Package hciutil encodes and decodes the byte-level fragments of the
// Host Controller Interface the link layer core touches directly: the
// ACL data header in front of every host data packet, and the handful of
// controller-originated events (no-op command complete, hardware error,
// data buffer overflow, number of completed packets). The HCI command
// parser proper lives above this package.
package hciutil

import (
	"encoding/binary"
	"errors"
)

// HCI event codes used by the link layer core.
const (
	EvCommandComplete  = 0x0e
	EvHardwareError    = 0x10
	EvNumCompPkts      = 0x13
	EvDataBufOverflow  = 0x1a
)

// LinkTypeACL is the link-type parameter of the data-buffer-overflow
// event for ACL traffic.
const LinkTypeACL = 0x01

// ACLHdrLen is the size of the HCI ACL data header: a 16-bit
// handle/flags word and a 16-bit data length, both little-endian.
const ACLHdrLen = 4

// ACL handle-word field layout: low 12 bits connection handle, bits
// 12-13 the packet-boundary flag, bits 14-15 the broadcast flag.
const (
	aclHandleMask = 0x0fff
	aclPBMask     = 0x3000
	aclBCMask     = 0xc000
)

var errShortACL = errors.New("hciutil: buffer shorter than ACL data header")

// ACLHdr is a decoded HCI ACL data header.
type ACLHdr struct {
	Handle uint16 // connection handle, 12 bits
	PB     uint8  // packet boundary flag
	BC     uint8  // broadcast flag
	Length uint16 // payload length
}

// HandleWord reconstructs the on-wire handle/flags word.
func (h ACLHdr) HandleWord() uint16 {
	return h.Handle&aclHandleMask | uint16(h.PB)<<12 | uint16(h.BC)<<14
}

// ParseACLHdr decodes the 4-byte ACL data header at the front of b and
// returns it along with the payload that follows.
func ParseACLHdr(b []byte) (ACLHdr, []byte, error) {
	if len(b) < ACLHdrLen {
		return ACLHdr{}, nil, errShortACL
	}
	hw := binary.LittleEndian.Uint16(b[0:2])
	return ACLHdr{
		Handle: hw & aclHandleMask,
		PB:     uint8(hw & aclPBMask >> 12),
		BC:     uint8(hw & aclBCMask >> 14),
		Length: binary.LittleEndian.Uint16(b[2:4]),
	}, b[ACLHdrLen:], nil
}

// EncodeACLHdr prepends an ACL data header to payload, with Length taken
// from the payload itself.
func EncodeACLHdr(h ACLHdr, payload []byte) []byte {
	out := make([]byte, ACLHdrLen+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], h.HandleWord())
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(payload)))
	copy(out[ACLHdrLen:], payload)
	return out
}

// event assembles an HCI event packet: event code, parameter length,
// parameters.
func event(code byte, params ...byte) []byte {
	out := make([]byte, 0, 2+len(params))
	out = append(out, code, byte(len(params)))
	return append(out, params...)
}

// NoOpCommandComplete encodes the command-complete event for the no-op
// opcode 0x0000, sent once at startup to tell the host the controller is
// ready. numHCIPkts advertises how many commands the host may have in
// flight.
func NoOpCommandComplete(numHCIPkts uint8) []byte {
	return event(EvCommandComplete, numHCIPkts, 0x00, 0x00)
}

// HardwareError encodes the hardware-error event for the given error
// code.
func HardwareError(code byte) []byte {
	return event(EvHardwareError, code)
}

// DataBufferOverflow encodes the data-buffer-overflow event for the
// given link type.
func DataBufferOverflow(linkType byte) []byte {
	return event(EvDataBufOverflow, linkType)
}

// NumCompletedPackets encodes the number-of-completed-packets event for
// the given parallel handle/count slices. It panics if the slices differ
// in length, which indicates a caller bug.
func NumCompletedPackets(handles, counts []uint16) []byte {
	if len(handles) != len(counts) {
		panic("hciutil: handle/count length mismatch")
	}
	params := make([]byte, 1+4*len(handles))
	params[0] = byte(len(handles))
	for i, h := range handles {
		binary.LittleEndian.PutUint16(params[1+2*i:], h)
	}
	off := 1 + 2*len(handles)
	for i, c := range counts {
		binary.LittleEndian.PutUint16(params[off+2*i:], c)
	}
	return event(EvNumCompPkts, params...)
}
