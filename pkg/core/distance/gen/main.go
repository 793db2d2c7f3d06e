// Command gen emits the AVX2/FMA squared-Euclidean kernel used by the
// avo-tagged build of the distance package. Regenerate with:
//
//	go run ./gen -stubs ./stubs_avo.go -out ./distance_avo.s
package main

import (
	. "github.com/mmcloughlin/avo/build"
	. "github.com/mmcloughlin/avo/operand"
	reg "github.com/mmcloughlin/avo/reg"
)

func main() {
	TEXT("SquaredEuclideanAVX2", NOSPLIT, "func(a, b []float32) float32")
	Pragma("noescape")
	Doc("SquaredEuclideanAVX2 computes the squared Euclidean distance between two float32 vectors using AVX2 and FMA.")
	generateSquaredEuclidean()
	Generate()
}

func generateSquaredEuclidean() {
	aPtr := Load(Param("a").Base(), GP64())
	bPtr := Load(Param("b").Base(), GP64())
	n := Load(Param("a").Len(), GP64())

	sumVec := YMM()
	VXORPS(sumVec, sumVec, sumVec)

	// Main loop: 8 floats per iteration.
	Label("loop_euclidean_f32")
	CMPQ(n, Imm(8))
	JL(LabelRef("remainder_euclidean_f32"))

	av := YMM()
	bv := YMM()
	VMOVUPS(Mem{Base: aPtr}, av)
	VMOVUPS(Mem{Base: bPtr}, bv)

	diffVec := YMM()
	VSUBPS(bv, av, diffVec)
	VFMADD231PS(diffVec, diffVec, sumVec)

	ADDQ(Imm(32), aPtr)
	ADDQ(Imm(32), bPtr)
	SUBQ(Imm(8), n)
	JMP(LabelRef("loop_euclidean_f32"))

	// Tail: one float at a time.
	Label("remainder_euclidean_f32")
	CMPQ(n, Imm(0))
	JE(LabelRef("done_euclidean_f32"))

	aScalar := XMM()
	bScalar := XMM()
	VMOVSS(Mem{Base: aPtr}, aScalar)
	VMOVSS(Mem{Base: bPtr}, bScalar)

	diffScalar := XMM()
	VSUBSS(bScalar, aScalar, diffScalar)

	sumScalar := XMM()
	VXORPS(sumScalar, sumScalar, sumScalar)
	VFMADD231SS(diffScalar, diffScalar, sumScalar)

	tmp := YMM()
	VMOVDQU(sumScalar.AsY(), tmp)
	VADDPS(tmp, sumVec, sumVec)

	ADDQ(Imm(4), aPtr)
	ADDQ(Imm(4), bPtr)
	SUBQ(Imm(1), n)
	JMP(LabelRef("remainder_euclidean_f32"))

	Label("done_euclidean_f32")
	sumHorizontal(sumVec)

	ret := XMM()
	VMOVAPS(sumVec.AsX(), ret)
	Store(ret, ReturnIndex(0))
	RET()
}

// sumHorizontal horizontally sums the 8 float32 lanes of a YMM register.
func sumHorizontal(vec reg.Register) {
	h1 := YMM()
	VEXTRACTF128(Imm(1), vec, h1.AsX())
	VADDPS(vec, h1, vec)

	h2 := YMM()
	VSHUFPS(Imm(0b11101110), vec, vec, h2)
	VADDPS(h2, vec, vec)

	h3 := YMM()
	VSHUFPS(Imm(0b01010101), vec, vec, h3)
	VADDPS(h3, vec, vec)
}
