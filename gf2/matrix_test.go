package gf2_test

import (
	"testing"

	"github.com/hellman/wboxkit/gf2"
)

func TestRightKernelBasisAndSolveLeft(t *testing.T) {
	// Rows span a 2-dimensional space inside GF(2)^4:
	//   r0 = 1100
	//   r1 = 0110
	// target = r0 xor r1 = 1010, must be in the row space.
	rows := []gf2.BitVec{
		gf2.FromBits([]int{1, 1, 0, 0}),
		gf2.FromBits([]int{0, 1, 1, 0}),
	}
	m := gf2.NewMatrix(rows, 4)

	if got := m.Rank(); got != 2 {
		t.Fatalf("Rank = %d, want 2", got)
	}

	kernel := m.RightKernelBasis()
	if len(kernel) != 4-2 {
		t.Fatalf("kernel basis size = %d, want %d", len(kernel), 4-2)
	}

	target := gf2.FromBits([]int{1, 0, 1, 0})
	if !gf2.InRowSpace(target, kernel) {
		t.Fatal("target should be in row space per kernel check")
	}

	sol, ok := m.SolveLeft(target)
	if !ok {
		t.Fatal("SolveLeft should find a solution")
	}
	// Verify sol^T * M == target.
	recombined := gf2.NewBitVec(4)
	for i := 0; i < sol.Len(); i++ {
		if sol.Bit(i) == 1 {
			recombined = recombined.Xor(rows[i])
		}
	}
	if !recombined.Equal(target) {
		t.Fatalf("recombined = %v, want %v", recombined.ToBits(), target.ToBits())
	}

	notInSpace := gf2.FromBits([]int{1, 0, 0, 0})
	if gf2.InRowSpace(notInSpace, kernel) {
		t.Fatal("vector outside the row space falsely reported as member")
	}
	if _, ok := m.SolveLeft(notInSpace); ok {
		t.Fatal("SolveLeft should fail for a vector outside the row space")
	}
}

func TestRightKernelBasisFullRank(t *testing.T) {
	// An identity-like full rank square matrix has a trivial (empty) kernel.
	rows := []gf2.BitVec{
		gf2.FromBits([]int{1, 0, 0}),
		gf2.FromBits([]int{0, 1, 0}),
		gf2.FromBits([]int{0, 0, 1}),
	}
	m := gf2.NewMatrix(rows, 3)
	if got := len(m.RightKernelBasis()); got != 0 {
		t.Errorf("expected empty kernel basis, got %d vectors", got)
	}
}

func TestSolveLeftWitnessMatchesLDAExample(t *testing.T) {
	// Mirrors the spec's scenario 3: bit3 = bit0 xor bit1 xor target-bit.
	// Columns (indexed by absolute offset) 0, 1, 3 are retained rows;
	// offset 3's column equals offset0 xor offset1 xor the S-box target.
	const n = 6
	col0 := gf2.FromBits([]int{1, 0, 1, 1, 0, 0})
	col1 := gf2.FromBits([]int{0, 1, 1, 0, 1, 0})
	target := gf2.FromBits([]int{0, 0, 1, 1, 1, 1})
	col3 := col0.Xor(col1).Xor(target)

	rows := []gf2.BitVec{col0, col1, col3}
	m := gf2.NewMatrix(rows, n)

	sol, ok := m.SolveLeft(target)
	if !ok {
		t.Fatal("expected target to be solvable")
	}
	if sol.Bit(0) != 1 || sol.Bit(1) != 1 || sol.Bit(2) != 1 {
		t.Errorf("expected all three rows (offsets 0,1,3) in the solution, got %v", sol.ToBits())
	}
}
