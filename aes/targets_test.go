package aes_test

import (
	"math/bits"
	"math/rand"
	"testing"

	"github.com/hellman/wboxkit/aes"
)

func randomBlocks(n int, seed int64) [][]byte {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]byte, n)
	for i := range out {
		b := make([]byte, 16)
		rng.Read(b)
		out[i] = b
	}
	return out
}

func TestTargetParity(t *testing.T) {
	pts := randomBlocks(32, 1)
	cts := randomBlocks(32, 2)

	cfg := aes.Config{Positions: []int{0, 5}, Masks: []byte{1, 0x80}, Keys: []byte{0x2b, 0x11}}
	targets, err := aes.GenerateTargets(cfg, pts, cts)
	if err != nil {
		t.Fatal(err)
	}

	for _, tg := range targets {
		if tg.Guess.Complement {
			continue
		}
		for i := 0; i < len(pts); i++ {
			x := aes.SBOX[pts[i][tg.Guess.Byte]^tg.Guess.Key]
			want := bits.OnesCount8(uint8(x&tg.Guess.Mask)) & 1
			if tg.Vector.Bit(i) != want {
				t.Fatalf("byte %d trace %d: got %d want %d", tg.Guess.Byte, i, tg.Vector.Bit(i), want)
			}
		}
	}
}

func TestComplementPartner(t *testing.T) {
	pts := randomBlocks(16, 3)
	cts := randomBlocks(16, 4)
	cfg := aes.Config{Positions: []int{2}, Masks: []byte{4}, Keys: []byte{0x42}}
	targets, err := aes.GenerateTargets(cfg, pts, cts)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets (vector + complement), got %d", len(targets))
	}
	base, comp := targets[0], targets[1]
	if comp.Guess.Complement != true || base.Guess.Complement != false {
		t.Fatal("expected base then complement ordering")
	}
	for i := 0; i < 16; i++ {
		if base.Vector.Bit(i) == comp.Vector.Bit(i) {
			t.Fatalf("trace %d: complement must differ from base", i)
		}
	}
}

func TestCiphertextSideUnsupported(t *testing.T) {
	pts := randomBlocks(4, 5)
	cts := randomBlocks(4, 6)
	cfg := aes.Config{Positions: []int{0}, Masks: []byte{1}, Keys: []byte{0}, Side: aes.CIPHERTEXT}
	if _, err := aes.GenerateTargets(cfg, pts, cts); err == nil {
		t.Fatal("expected an error for ciphertext-side targets")
	}
}

func TestGenerateTargetsParallelMatchesSequential(t *testing.T) {
	pts := randomBlocks(20, 7)
	cts := randomBlocks(20, 8)
	cfg := aes.Config{Positions: aes.DefaultPositions()[:3], Masks: aes.DefaultMasks()[:3], Keys: aes.DefaultKeys()[:10]}

	seq, err := aes.GenerateTargets(cfg, pts, cts)
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{1, 2, 7} {
		par, err := aes.GenerateTargetsParallel(cfg, pts, cts, workers)
		if err != nil {
			t.Fatal(err)
		}
		if len(par) != len(seq) {
			t.Fatalf("workers=%d: length mismatch %d vs %d", workers, len(par), len(seq))
		}
		for i := range seq {
			if !seq[i].Vector.Equal(par[i].Vector) || seq[i].Guess != par[i].Guess {
				t.Fatalf("workers=%d: target %d differs", workers, i)
			}
		}
	}
}

func TestRandomMasksIncludesSingleBitMasks(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	masks := aes.RandomMasks(rng, 8)
	if len(masks) != 16 {
		t.Fatalf("expected 16 masks, got %d", len(masks))
	}
	seen := map[byte]bool{}
	for _, m := range masks {
		seen[m] = true
	}
	for i := 0; i < 8; i++ {
		if !seen[1<<uint(i)] {
			t.Errorf("missing single-bit mask %d", 1<<uint(i))
		}
	}
}
