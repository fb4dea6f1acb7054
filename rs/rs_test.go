package rs

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c, err := New(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	payload := bytes.Repeat([]byte("infinite-map-cluster-payload!!"), 100)
	framed, err := c.Encode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !IsEncoded(framed) {
		t.Fatal("expected IsEncoded true for RS frame")
	}
	got, err := c.Decode(framed, nil, len(payload))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestDecodeToleratesLostParityShards(t *testing.T) {
	c, err := New(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	payload := bytes.Repeat([]byte("x"), 4096)
	framed, err := c.Encode(payload)
	if err != nil {
		t.Fatal(err)
	}
	lost := make([]bool, 6)
	lost[0] = true // lose one data shard
	lost[4] = true // lose one parity shard -- still within P=2 tolerance
	got, err := c.Decode(framed, lost, len(payload))
	if err != nil {
		t.Fatalf("expected reconstruction to tolerate up to P losses: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("reconstructed payload mismatch")
	}
}

func TestUnprotectedRoundTrip(t *testing.T) {
	payload := []byte("raw cluster bytes")
	framed := WrapUnprotected(payload)
	if IsEncoded(framed) {
		t.Fatal("unprotected frame must not report IsEncoded")
	}
	got, err := UnwrapUnprotected(framed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("unprotected round trip mismatch")
	}
}
