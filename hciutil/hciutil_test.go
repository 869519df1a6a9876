// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package hciutil

import (
	"bytes"
	"testing"
)

func TestParseACLHdr(t *testing.T) {
	cases := map[string]struct {
		in      []byte
		hdr     ACLHdr
		payload []byte
		wantErr bool
	}{
		"plain": {
			in:      []byte{0x05, 0x00, 0x03, 0x00, 0xaa, 0xbb, 0xcc},
			hdr:     ACLHdr{Handle: 0x005, PB: 0, BC: 0, Length: 3},
			payload: []byte{0xaa, 0xbb, 0xcc},
		},
		"flags packed into handle word": {
			in:  []byte{0x05, 0x50, 0x00, 0x00},
			hdr: ACLHdr{Handle: 0x005, PB: 1, BC: 1, Length: 0},
		},
		"short": {
			in:      []byte{0x05, 0x00, 0x03},
			wantErr: true,
		},
	}
	for n, tc := range cases {
		hdr, payload, err := ParseACLHdr(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", n, err, tc.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if hdr != tc.hdr {
			t.Errorf("%s: hdr = %+v, want %+v", n, hdr, tc.hdr)
		}
		if !bytes.Equal(payload, tc.payload) && len(tc.payload) > 0 {
			t.Errorf("%s: payload = %x, want %x", n, payload, tc.payload)
		}
	}
}

func TestACLHdrRoundTrip(t *testing.T) {
	h := ACLHdr{Handle: 0x234, PB: 2, BC: 0}
	payload := []byte{1, 2, 3, 4, 5}
	b := EncodeACLHdr(h, payload)
	got, gotPayload, err := ParseACLHdr(b)
	if err != nil {
		t.Fatalf("ParseACLHdr: %v", err)
	}
	h.Length = uint16(len(payload))
	if got != h || !bytes.Equal(gotPayload, payload) {
		t.Errorf("round trip: %+v %x, want %+v %x", got, gotPayload, h, payload)
	}
}

func TestEvents(t *testing.T) {
	cases := map[string]struct {
		got  []byte
		want []byte
	}{
		"noop command complete": {NoOpCommandComplete(5), []byte{0x0e, 0x03, 0x05, 0x00, 0x00}},
		"hardware error":        {HardwareError(0x01), []byte{0x10, 0x01, 0x01}},
		"data buffer overflow":  {DataBufferOverflow(LinkTypeACL), []byte{0x1a, 0x01, 0x01}},
		"completed packets": {
			NumCompletedPackets([]uint16{0x005, 0x006}, []uint16{2, 1}),
			[]byte{0x13, 0x09, 0x02, 0x05, 0x00, 0x06, 0x00, 0x02, 0x00, 0x01, 0x00},
		},
	}
	for n, tc := range cases {
		if !bytes.Equal(tc.got, tc.want) {
			t.Errorf("%s: %x, want %x", n, tc.got, tc.want)
		}
	}
}
