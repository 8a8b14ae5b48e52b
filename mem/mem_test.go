// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

import "testing"

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b *Allocation
		want bool
	}{
		{"disjoint", &Allocation{Base: 0, Pages: 1}, &Allocation{Base: PageSize, Pages: 1}, false},
		{"identical", &Allocation{Base: 0x1000, Pages: 2}, &Allocation{Base: 0x1000, Pages: 2}, true},
		{"partial", &Allocation{Base: 0x1000, Pages: 2}, &Allocation{Base: 0x1800, Pages: 2}, true},
		{"adjacent-end-exclusive", &Allocation{Base: 0x1000, Pages: 1}, &Allocation{Base: 0x2000, Pages: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("overlaps(%+v, %+v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAllocationEndSize(t *testing.T) {
	a := &Allocation{Base: 0x100000, Pages: 4}

	if got, want := a.End(), uint64(0x100000+4*PageSize); got != want {
		t.Errorf("End() = %#x, want %#x", got, want)
	}

	if got, want := a.Size(), 4*PageSize; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestStagerCeilingDefault(t *testing.T) {
	s := NewStager(nil)

	if got, want := s.ceiling(), uint64(defaultModuleCeiling); got != want {
		t.Errorf("ceiling() = %#x, want %#x", got, want)
	}

	s.ModuleCeiling = 64 * 1024 * 1024

	if got, want := s.ceiling(), uint64(64*1024*1024); got != want {
		t.Errorf("ceiling() = %#x, want %#x", got, want)
	}
}

func TestCheckOverlapDetectsLiveAllocation(t *testing.T) {
	s := NewStager(nil)
	s.live = append(s.live, &Allocation{Base: 0x1000, Pages: 1, Kind: KindKernel})

	candidate := &Allocation{Base: 0x1000, Pages: 1, Kind: KindModule}

	if err := s.checkOverlap(candidate); err == nil {
		t.Error("expected overlap error")
	}
}
