package ioprobe

import "testing"

func TestFreeSpaceReportsPositiveCapacity(t *testing.T) {
	dir := t.TempDir()
	free, total, err := FreeSpace(dir)
	if err != nil {
		t.Fatalf("free space: %v", err)
	}
	if total == 0 {
		t.Fatal("expected non-zero total filesystem size")
	}
	if free > total {
		t.Fatalf("free (%d) must not exceed total (%d)", free, total)
	}
}
