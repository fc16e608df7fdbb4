package core

import "testing"

func TestChecksum_KnownVector(t *testing.T) {
	got := Checksum([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Checksum(abc) = %s, want %s", got, want)
	}
}

func TestChecksum_Empty(t *testing.T) {
	got := Checksum(nil)
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("Checksum(nil) = %s, want %s", got, want)
	}
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("hello world")
	sum := Checksum(data)

	if !VerifyChecksum(data, sum) {
		t.Error("VerifyChecksum should accept matching checksum")
	}
	if VerifyChecksum(data, "deadbeef") {
		t.Error("VerifyChecksum should reject wrong checksum")
	}
	if VerifyChecksum([]byte("hello worlds"), sum) {
		t.Error("VerifyChecksum should reject modified data")
	}
}

func TestIncrementalHash_MatchesChecksum(t *testing.T) {
	parts := [][]byte{[]byte("chunk-a"), []byte("chunk-b"), []byte("chunk-c")}

	h := NewChecksumHash()
	var whole []byte
	for _, p := range parts {
		h.Write(p)
		whole = append(whole, p...)
	}

	if got, want := HexChecksum(h), Checksum(whole); got != want {
		t.Errorf("incremental hash = %s, want %s", got, want)
	}
}
