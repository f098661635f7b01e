// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package avr implements the AVR frontend: a rule set over 16 bit
// little-endian tokens read from the flash region, lifting each
// instruction into IL.
package avr

import (
	"github.com/das-labor/panopticon/disasm"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/proc"
	"github.com/das-labor/panopticon/region"
)

// State is the architecture state carried through a match. AVR rules
// are context free; the state only selects the MCU model.
type State struct {
	Model Model
}

// A Model describes the target MCU.
type Model struct {
	Name       string
	FlashBytes region.Offset
}

// Mega128 returns the ATmega128 state.
func Mega128() State {
	return State{Model: Model{Name: "mega128", FlashBytes: 128 * 1024}}
}

// Mega8 returns the ATmega8 state.
func Mega8() State {
	return State{Model: Model{Name: "mega8", FlashBytes: 8 * 1024}}
}

// SemState is the semantic state AVR actions receive.
type SemState = disasm.State[uint16, State]

// next returns the byte address following the matched tokens.
func next(st *SemState) region.Offset {
	return st.Address + 2*region.Offset(len(st.Tokens))
}

// size returns the byte length of the matched tokens.
func size(st *SemState) region.Offset {
	return 2 * region.Offset(len(st.Tokens))
}

// binaryReg lifts an instruction over two general purpose registers.
func binaryReg(x string, sem func(*il.CodeGen, il.Variable, il.Variable)) func(*SemState) {
	return func(st *SemState) {
		Rd := reg(st.Group("d"))
		Rr := reg(st.Group("r"))
		st.Mnemonic(size(st), x, "", []il.Rvalue{Rd, Rr}, func(m *il.CodeGen) { sem(m, Rd, Rr) })
		st.JumpTo(next(st), il.True())
	}
}

// binaryRegConst lifts an instruction over a register r16…r31 and an
// 8 bit immediate.
func binaryRegConst(x string, sem func(*il.CodeGen, il.Variable, il.Constant)) func(*SemState) {
	return func(st *SemState) {
		Rd := reg(st.Group("d") + 16)
		K := il.Const(st.Group("K"))
		st.Mnemonic(size(st), x, "", []il.Rvalue{Rd, K}, func(m *il.CodeGen) { sem(m, Rd, K) })
		st.JumpTo(next(st), il.True())
	}
}

// unaryReg lifts an instruction over one register.
func unaryReg(x string, sem func(*il.CodeGen, il.Variable)) func(*SemState) {
	return func(st *SemState) {
		Rd := reg(st.Group("d"))
		st.Mnemonic(size(st), x, "", []il.Rvalue{Rd}, func(m *il.CodeGen) { sem(m, Rd) })
		st.JumpTo(next(st), il.True())
	}
}

// simple lifts a register-free instruction.
func simple(x string, sem func(*il.CodeGen)) func(*SemState) {
	return func(st *SemState) {
		st.Mnemonic(size(st), x, "", nil, func(m *il.CodeGen) { sem(m) })
		st.JumpTo(next(st), il.True())
	}
}

// branch lifts a conditional relative branch on a status flag. The
// displacement capture k is a signed word count.
func branch(x string, flag il.Variable, set bool) func(*SemState) {
	return func(st *SemState) {
		k := signExtend(st.Group("k"), 7)
		target := region.Offset(int64(next(st)) + 2*k)

		st.Mnemonic(size(st), x, "{16:-}", []il.Rvalue{il.Const(uint64(2 * k))}, nil)

		want := uint64(0)
		if set {
			want = 1
		}
		g := il.If(flag, il.Eq, il.Const(want))
		st.JumpTo(next(st), g.Negation())
		st.JumpTo(target, g)
	}
}

// Disassembler builds the AVR rule set.
func Disassembler() *disasm.Disassembler[uint16, State] {
	main := disasm.New[uint16, State]()

	// byte-level arithmetic and logic
	main.Pat("000011 r@. d@..... r@....").Do(binaryReg("add", func(m *il.CodeGen, Rd, Rr il.Variable) {
		R := m.AddI(nil, Rd, Rr)
		setAddFlags(m, Rd, Rr, R)
		m.Assign(Rd, m.ModI(nil, R, il.Const(0x100)))
	}))
	main.Pat("000111 r@. d@..... r@....").Do(binaryReg("adc", func(m *il.CodeGen, Rd, Rr il.Variable) {
		Cr := m.LiftB(nil, flagC)
		R := m.AddI(nil, m.AddI(nil, Rd, Rr), Cr)
		setAddFlags(m, Rd, Rr, R)
		m.Assign(Rd, m.ModI(nil, R, il.Const(0x100)))
	}))
	main.Pat("000110 r@. d@..... r@....").Do(binaryReg("sub", func(m *il.CodeGen, Rd, Rr il.Variable) {
		R := m.ModI(nil, m.SubI(nil, m.AddI(nil, Rd, il.Const(0x100)), Rr), il.Const(0x100))
		setSubFlags(m, Rd, Rr, R)
		m.Assign(Rd, R)
	}))
	main.Pat("000010 r@. d@..... r@....").Do(binaryReg("sbc", func(m *il.CodeGen, Rd, Rr il.Variable) {
		Cr := m.LiftB(nil, flagC)
		R := m.ModI(nil, m.SubI(nil, m.SubI(nil, m.AddI(nil, Rd, il.Const(0x100)), Rr), Cr), il.Const(0x100))
		setSubFlags(m, Rd, Rr, R)
		m.Assign(Rd, R)
	}))
	main.Pat("0101 K@.... d@.... K@....").Do(binaryRegConst("subi", func(m *il.CodeGen, Rd il.Variable, K il.Constant) {
		R := m.ModI(nil, m.SubI(nil, m.AddI(nil, Rd, il.Const(0x100)), K), il.Const(0x100))
		setSubFlags(m, Rd, K, R)
		m.Assign(Rd, R)
	}))
	main.Pat("0100 K@.... d@.... K@....").Do(binaryRegConst("sbci", func(m *il.CodeGen, Rd il.Variable, K il.Constant) {
		Cr := m.LiftB(nil, flagC)
		R := m.ModI(nil, m.SubI(nil, m.SubI(nil, m.AddI(nil, Rd, il.Const(0x100)), K), Cr), il.Const(0x100))
		setSubFlags(m, Rd, K, R)
		m.Assign(Rd, R)
	}))
	main.Pat("001000 r@. d@..... r@....").Do(binaryReg("and", func(m *il.CodeGen, Rd, Rr il.Variable) {
		m.AndI(Rd, Rd, Rr)
		setLogicFlags(m, Rd)
	}))
	main.Pat("0111 K@.... d@.... K@....").Do(binaryRegConst("andi", func(m *il.CodeGen, Rd il.Variable, K il.Constant) {
		m.AndI(Rd, Rd, K)
		setLogicFlags(m, Rd)
	}))
	main.Pat("001010 r@. d@..... r@....").Do(binaryReg("or", func(m *il.CodeGen, Rd, Rr il.Variable) {
		m.OrI(Rd, Rd, Rr)
		setLogicFlags(m, Rd)
	}))
	main.Pat("0110 K@.... d@.... K@....").Do(binaryRegConst("ori", func(m *il.CodeGen, Rd il.Variable, K il.Constant) {
		m.OrI(Rd, Rd, K)
		setLogicFlags(m, Rd)
	}))

	// eor clears the register when both operands coincide
	main.Pat("001001 r@. d@..... r@....").Do(func(st *SemState) {
		Rd := reg(st.Group("d"))
		Rr := reg(st.Group("r"))

		if Rd == Rr {
			st.Mnemonic(size(st), "clr", "", []il.Rvalue{Rd}, func(m *il.CodeGen) {
				m.Assign(Rd, il.Const(0))
				m.Assign(flagV, il.Const(0))
				m.Assign(flagN, il.Const(0))
				m.Assign(flagS, il.Const(0))
				m.Assign(flagZ, il.Const(0))
			})
		} else {
			st.Mnemonic(size(st), "eor", "", []il.Rvalue{Rd, Rr}, func(m *il.CodeGen) {
				m.XorI(Rd, Rd, Rr)
				setLogicFlags(m, Rd)
			})
		}
		st.JumpTo(next(st), il.True())
	})

	main.Pat("1001010 d@..... 0000").Do(unaryReg("com", func(m *il.CodeGen, Rd il.Variable) {
		m.XorI(Rd, Rd, il.Const(0xff))
		m.Assign(flagC, il.Const(1))
		setLogicFlags(m, Rd)
	}))
	main.Pat("1001010 d@..... 0001").Do(unaryReg("neg", func(m *il.CodeGen, Rd il.Variable) {
		R := m.ModI(nil, m.SubI(nil, il.Const(0x100), Rd), il.Const(0x100))
		setSubFlags(m, Rd, Rd, R)
		m.Assign(Rd, R)
	}))
	main.Pat("1001010 d@..... 0011").Do(unaryReg("inc", func(m *il.CodeGen, Rd il.Variable) {
		m.Assign(Rd, m.ModI(nil, m.AddI(nil, Rd, il.Const(1)), il.Const(0x100)))
		setLogicFlags(m, Rd)
	}))
	main.Pat("1001010 d@..... 1010").Do(unaryReg("dec", func(m *il.CodeGen, Rd il.Variable) {
		m.Assign(Rd, m.ModI(nil, m.AddI(nil, Rd, il.Const(0xff)), il.Const(0x100)))
		setLogicFlags(m, Rd)
	}))
	main.Pat("1001010 d@..... 0110").Do(unaryReg("lsr", func(m *il.CodeGen, Rd il.Variable) {
		m.ModI(flagC, Rd, il.Const(2))
		m.RshiftI(Rd, Rd, il.Const(1))
		m.Assign(flagN, il.Const(0))
		m.EqualI(flagZ, il.Const(0), Rd)
		m.XorI(flagV, flagN, flagC)
		m.OrB(flagS, m.AndB(nil, m.NotB(nil, flagN), flagV), m.AndB(nil, flagN, m.NotB(nil, flagV)))
	}))
	main.Pat("1001010 d@..... 0101").Do(unaryReg("asr", func(m *il.CodeGen, Rd il.Variable) {
		m.ModI(flagC, Rd, il.Const(2))
		m.RshiftI(Rd, Rd, il.Const(1))
	}))
	main.Pat("1001010 d@..... 0111").Do(unaryReg("ror", func(m *il.CodeGen, Rd il.Variable) {
		Cr := m.LiftB(nil, flagC)
		m.ModI(flagC, Rd, il.Const(2))
		m.OrI(Rd, m.RshiftI(nil, Rd, il.Const(1)), m.LshiftI(nil, Cr, il.Const(7)))
	}))
	main.Pat("1001010 d@..... 0010").Do(unaryReg("swap", func(m *il.CodeGen, Rd il.Variable) {
		lo := m.ModI(nil, Rd, il.Const(0x10))
		hi := m.RshiftI(nil, Rd, il.Const(4))
		m.OrI(Rd, m.LshiftI(nil, lo, il.Const(4)), hi)
	}))

	main.Pat("100111 r@. d@..... r@....").Do(binaryReg("mul", func(m *il.CodeGen, Rd, Rr il.Variable) {
		R := m.MulI(nil, Rd, Rr)
		m.Assign(reg(0), m.ModI(nil, R, il.Const(0x100)))
		m.Assign(reg(1), m.RshiftI(nil, R, il.Const(8)))
		m.LessI(flagC, il.Const(0x7fff), R)
		m.EqualI(flagZ, il.Const(0), R)
	}))

	// comparisons
	main.Pat("000101 r@. d@..... r@....").Do(binaryReg("cp", func(m *il.CodeGen, Rd, Rr il.Variable) {
		R := m.ModI(nil, m.SubI(nil, m.AddI(nil, Rd, il.Const(0x100)), Rr), il.Const(0x100))
		setSubFlags(m, Rd, Rr, R)
	}))
	main.Pat("000001 r@. d@..... r@....").Do(binaryReg("cpc", func(m *il.CodeGen, Rd, Rr il.Variable) {
		Cr := m.LiftB(nil, flagC)
		R := m.ModI(nil, m.SubI(nil, m.SubI(nil, m.AddI(nil, Rd, il.Const(0x100)), Rr), Cr), il.Const(0x100))
		setSubFlags(m, Rd, Rr, R)
	}))
	main.Pat("0011 K@.... d@.... K@....").Do(binaryRegConst("cpi", func(m *il.CodeGen, Rd il.Variable, K il.Constant) {
		R := m.ModI(nil, m.SubI(nil, m.AddI(nil, Rd, il.Const(0x100)), K), il.Const(0x100))
		setSubFlags(m, Rd, K, R)
	}))

	// transfers
	main.Pat("001011 r@. d@..... r@....").Do(binaryReg("mov", func(m *il.CodeGen, Rd, Rr il.Variable) {
		m.Assign(Rd, Rr)
	}))
	main.Pat("00000001 d@.... r@....").Do(func(st *SemState) {
		Rd, Rr := st.Group("d")*2, st.Group("r")*2
		st.Mnemonic(size(st), "movw", "", []il.Rvalue{reg(Rd), reg(Rr)}, func(m *il.CodeGen) {
			m.Assign(reg(Rd), reg(Rr))
			m.Assign(reg(Rd+1), reg(Rr+1))
		})
		st.JumpTo(next(st), il.True())
	})
	main.Pat("1110 K@.... d@.... K@....").Do(binaryRegConst("ldi", func(m *il.CodeGen, Rd il.Variable, K il.Constant) {
		m.Assign(Rd, K)
	}))

	// loads and stores through the pointer registers
	ldst := func(x string, pair uint64, op PtrOp, load bool) func(*SemState) {
		return func(st *SemState) {
			Rd := reg(st.Group("d"))
			P := ptrReg(pair)
			st.Mnemonic(size(st), x, "", []il.Rvalue{Rd, P}, func(m *il.CodeGen) {
				if op == PtrPreDec {
					m.Assign(P, m.SubI(nil, P, il.Const(1)))
				}
				if load {
					m.Assign(Rd, sram(P))
				} else {
					m.Assign(sram(P), Rd)
				}
				if op == PtrPostInc {
					m.Assign(P, m.AddI(nil, P, il.Const(1)))
				}
			})
			st.JumpTo(next(st), il.True())
		}
	}
	main.Pat("1001000 d@..... 1100").Do(ldst("ld", 26, PtrNone, true))
	main.Pat("1001000 d@..... 1101").Do(ldst("ld", 26, PtrPostInc, true))
	main.Pat("1001000 d@..... 1110").Do(ldst("ld", 26, PtrPreDec, true))
	main.Pat("1000000 d@..... 1000").Do(ldst("ld", 28, PtrNone, true))
	main.Pat("1001000 d@..... 1001").Do(ldst("ld", 28, PtrPostInc, true))
	main.Pat("1001000 d@..... 1010").Do(ldst("ld", 28, PtrPreDec, true))
	main.Pat("1000000 d@..... 0000").Do(ldst("ld", 30, PtrNone, true))
	main.Pat("1001000 d@..... 0001").Do(ldst("ld", 30, PtrPostInc, true))
	main.Pat("1001000 d@..... 0010").Do(ldst("ld", 30, PtrPreDec, true))
	main.Pat("1001001 d@..... 1100").Do(ldst("st", 26, PtrNone, false))
	main.Pat("1001001 d@..... 1101").Do(ldst("st", 26, PtrPostInc, false))
	main.Pat("1001001 d@..... 1110").Do(ldst("st", 26, PtrPreDec, false))
	main.Pat("1000001 d@..... 1000").Do(ldst("st", 28, PtrNone, false))
	main.Pat("1001001 d@..... 1001").Do(ldst("st", 28, PtrPostInc, false))
	main.Pat("1001001 d@..... 1010").Do(ldst("st", 28, PtrPreDec, false))
	main.Pat("1000001 d@..... 0000").Do(ldst("st", 30, PtrNone, false))
	main.Pat("1001001 d@..... 0001").Do(ldst("st", 30, PtrPostInc, false))
	main.Pat("1001001 d@..... 0010").Do(ldst("st", 30, PtrPreDec, false))

	// word arithmetic on the upper register pairs
	wordImm := func(x string, add bool) func(*SemState) {
		return func(st *SemState) {
			lo := reg(24 + 2*st.Group("d"))
			hi := reg(24 + 2*st.Group("d") + 1)
			K := il.Const(st.Group("K"))
			st.Mnemonic(size(st), x, "", []il.Rvalue{lo, K}, func(m *il.CodeGen) {
				W := m.OrI(nil, m.LshiftI(nil, hi, il.Const(8)), lo)
				var R il.Rvalue
				if add {
					R = m.ModI(nil, m.AddI(nil, W, K), il.Const(0x10000))
				} else {
					R = m.ModI(nil, m.SubI(nil, m.AddI(nil, W, il.Const(0x10000)), K), il.Const(0x10000))
				}
				m.Assign(lo, m.ModI(nil, R, il.Const(0x100)))
				m.Assign(hi, m.RshiftI(nil, R, il.Const(8)))
				m.EqualI(flagZ, il.Const(0), R)
				m.LessI(flagN, R, il.Const(0x7fff))
				if add {
					m.LessI(flagC, il.Const(0x10000), m.AddI(nil, W, K))
				} else {
					m.LessI(flagC, W, K)
				}
			})
			st.JumpTo(next(st), il.True())
		}
	}
	main.Pat("10010110 K@.. d@.. K@....").Do(wordImm("adiw", true))
	main.Pat("10010111 K@.. d@.. K@....").Do(wordImm("sbiw", false))

	// loads and stores with displacement off Y and Z
	ldd := func(pair uint64, load bool) func(*SemState) {
		x := "ldd"
		if !load {
			x = "std"
		}
		return func(st *SemState) {
			Rd := reg(st.Group("d"))
			P := ptrReg(pair)
			q := st.Group("q")
			st.Mnemonic(size(st), x, "", []il.Rvalue{Rd, P, il.Const(q)}, func(m *il.CodeGen) {
				at := m.AddI(nil, P, il.Const(q))
				if load {
					m.Assign(Rd, sram(at))
				} else {
					m.Assign(sram(at), Rd)
				}
			})
			st.JumpTo(next(st), il.True())
		}
	}
	main.Pat("10 q@. 0 q@.. 0 d@..... 0 q@...").Do(ldd(30, true))
	main.Pat("10 q@. 0 q@.. 0 d@..... 1 q@...").Do(ldd(28, true))
	main.Pat("10 q@. 0 q@.. 1 d@..... 0 q@...").Do(ldd(30, false))
	main.Pat("10 q@. 0 q@.. 1 d@..... 1 q@...").Do(ldd(28, false))

	// program memory loads
	main.Tok(0x95c8).Do(simple("lpm", func(m *il.CodeGen) {
		m.Assign(reg(0), il.Mem(ptrReg(30), 1, il.LittleEndian, flashSpace))
	}))
	main.Pat("1001000 d@..... 0100").Do(unaryReg("lpm", func(m *il.CodeGen, Rd il.Variable) {
		m.Assign(Rd, il.Mem(ptrReg(30), 1, il.LittleEndian, flashSpace))
	}))
	main.Pat("1001000 d@..... 0101").Do(unaryReg("lpm", func(m *il.CodeGen, Rd il.Variable) {
		Z := ptrReg(30)
		m.Assign(Rd, il.Mem(Z, 1, il.LittleEndian, flashSpace))
		m.Assign(Z, m.AddI(nil, Z, il.Const(1)))
	}))

	// bit transfers with the T flag
	main.Pat("1111101 d@..... 0 b@...").Do(func(st *SemState) {
		Rd := reg(st.Group("d"))
		b := st.Group("b")
		st.Mnemonic(size(st), "bst", "", []il.Rvalue{Rd, il.Const(b)}, func(m *il.CodeGen) {
			m.ModI(flagT, m.RshiftI(nil, Rd, il.Const(b)), il.Const(2))
		})
		st.JumpTo(next(st), il.True())
	})
	main.Pat("1111100 d@..... 0 b@...").Do(func(st *SemState) {
		Rd := reg(st.Group("d"))
		b := st.Group("b")
		st.Mnemonic(size(st), "bld", "", []il.Rvalue{Rd, il.Const(b)}, func(m *il.CodeGen) {
			cleared := m.AndI(nil, Rd, il.Const(0xff^(1<<b)))
			m.OrI(Rd, cleared, m.LshiftI(nil, m.LiftB(nil, flagT), il.Const(b)))
		})
		st.JumpTo(next(st), il.True())
	})

	// two-word direct loads and stores
	main.Pat("1001000 d@..... 0000").Pat("k@................").Do(func(st *SemState) {
		Rd := reg(st.Group("d"))
		k := il.Const(st.Group("k"))
		st.Mnemonic(size(st), "lds", "", []il.Rvalue{Rd, k}, func(m *il.CodeGen) {
			m.Assign(Rd, sram(k))
		})
		st.JumpTo(next(st), il.True())
	})
	main.Pat("1001001 d@..... 0000").Pat("k@................").Do(func(st *SemState) {
		Rd := reg(st.Group("d"))
		k := il.Const(st.Group("k"))
		st.Mnemonic(size(st), "sts", "", []il.Rvalue{k, Rd}, func(m *il.CodeGen) {
			m.Assign(sram(k), Rd)
		})
		st.JumpTo(next(st), il.True())
	})

	// I/O space
	main.Pat("10110 A@.. d@..... A@....").Do(func(st *SemState) {
		Rd := reg(st.Group("d"))
		A := ioReg(st.Group("A"))
		st.Mnemonic(size(st), "in", "", []il.Rvalue{Rd, A}, func(m *il.CodeGen) {
			m.Assign(Rd, A)
		})
		st.JumpTo(next(st), il.True())
	})
	main.Pat("10111 A@.. d@..... A@....").Do(func(st *SemState) {
		Rd := reg(st.Group("d"))
		A := ioReg(st.Group("A"))
		st.Mnemonic(size(st), "out", "", []il.Rvalue{A, Rd}, func(m *il.CodeGen) {
			m.Assign(A, Rd)
		})
		st.JumpTo(next(st), il.True())
	})
	main.Pat("10011010 A@..... b@...").Do(func(st *SemState) {
		A := ioReg(st.Group("A"))
		b := st.Group("b")
		st.Mnemonic(size(st), "sbi", "", []il.Rvalue{A, il.Const(b)}, func(m *il.CodeGen) {
			m.OrI(A, A, il.Const(1<<b))
		})
		st.JumpTo(next(st), il.True())
	})
	main.Pat("10011000 A@..... b@...").Do(func(st *SemState) {
		A := ioReg(st.Group("A"))
		b := st.Group("b")
		st.Mnemonic(size(st), "cbi", "", []il.Rvalue{A, il.Const(b)}, func(m *il.CodeGen) {
			m.AndI(A, A, il.Const(0xff^(1<<b)))
		})
		st.JumpTo(next(st), il.True())
	})

	// stack
	main.Pat("1001001 d@..... 1111").Do(unaryReg("push", func(m *il.CodeGen, Rd il.Variable) {
		m.Assign(sram(spReg), Rd)
		m.SubI(spReg, spReg, il.Const(1))
	}))
	main.Pat("1001000 d@..... 1111").Do(unaryReg("pop", func(m *il.CodeGen, Rd il.Variable) {
		m.AddI(spReg, spReg, il.Const(1))
		m.Assign(Rd, sram(spReg))
	}))

	// flag set/clear
	type flagOp struct {
		tok  uint16
		name string
		flag il.Variable
		val  uint64
	}
	for _, f := range []flagOp{
		{0x9408, "sec", flagC, 1}, {0x9458, "seh", flagH, 1}, {0x9478, "sei", flagI, 1},
		{0x9428, "sen", flagN, 1}, {0x9448, "ses", flagS, 1}, {0x9468, "set", flagT, 1},
		{0x9438, "sev", flagV, 1}, {0x9418, "sez", flagZ, 1},
		{0x9488, "clc", flagC, 0}, {0x94d8, "clh", flagH, 0}, {0x94f8, "cli", flagI, 0},
		{0x94a8, "cln", flagN, 0}, {0x94c8, "cls", flagS, 0}, {0x94e8, "clt", flagT, 0},
		{0x94b8, "clv", flagV, 0}, {0x9498, "clz", flagZ, 0},
	} {
		f := f
		main.Tok(f.tok).Do(simple(f.name, func(m *il.CodeGen) {
			m.Assign(f.flag, il.Const(f.val))
		}))
	}

	// control flow
	main.Pat("1100 k@............").Do(func(st *SemState) {
		k := signExtend(st.Group("k"), 12)
		target := region.Offset(int64(next(st)) + 2*k)
		st.Mnemonic(size(st), "rjmp", "{16:-}", []il.Rvalue{il.Const(uint64(2 * k))}, nil)
		st.JumpTo(target, il.True())
	})
	main.Pat("1101 k@............").Do(func(st *SemState) {
		k := signExtend(st.Group("k"), 12)
		target := region.Offset(int64(next(st)) + 2*k)
		st.Mnemonic(size(st), "rcall", "{16:-}", []il.Rvalue{il.Const(uint64(2 * k))}, func(m *il.CodeGen) {
			m.CallI(nil, il.Const(target))
		})
		st.JumpTo(next(st), il.True())
	})
	main.Pat("1001010 k@..... 110 k@.").Pat("k@................").Do(func(st *SemState) {
		target := 2 * st.Group("k")
		st.Mnemonic(size(st), "jmp", "", []il.Rvalue{il.Const(target)}, nil)
		st.JumpTo(target, il.True())
	})
	main.Pat("1001010 k@..... 111 k@.").Pat("k@................").Do(func(st *SemState) {
		target := 2 * st.Group("k")
		st.Mnemonic(size(st), "call", "", []il.Rvalue{il.Const(target)}, func(m *il.CodeGen) {
			m.CallI(nil, il.Const(target))
		})
		st.JumpTo(next(st), il.True())
	})
	main.Tok(0x9409).Do(func(st *SemState) {
		st.Mnemonic(size(st), "ijmp", "", nil, nil)
		st.Jump(ptrReg(30), il.True())
	})
	main.Tok(0x9509).Do(func(st *SemState) {
		st.Mnemonic(size(st), "icall", "", nil, func(m *il.CodeGen) {
			m.CallI(nil, ptrReg(30))
		})
		st.JumpTo(next(st), il.True())
	})
	main.Tok(0x9508).Do(func(st *SemState) {
		st.Mnemonic(size(st), "ret", "", nil, nil)
	})
	main.Tok(0x9518).Do(func(st *SemState) {
		st.Mnemonic(size(st), "reti", "", nil, func(m *il.CodeGen) {
			m.Assign(flagI, il.Const(1))
		})
	})

	// conditional branches on single status flags
	type branchOp struct {
		pat  string
		name string
		flag il.Variable
		set  bool
	}
	for _, b := range []branchOp{
		{"111100 k@....... 000", "brcs", flagC, true},
		{"111101 k@....... 000", "brcc", flagC, false},
		{"111100 k@....... 001", "breq", flagZ, true},
		{"111101 k@....... 001", "brne", flagZ, false},
		{"111100 k@....... 010", "brmi", flagN, true},
		{"111101 k@....... 010", "brpl", flagN, false},
		{"111100 k@....... 011", "brvs", flagV, true},
		{"111101 k@....... 011", "brvc", flagV, false},
		{"111100 k@....... 100", "brlt", flagS, true},
		{"111101 k@....... 100", "brge", flagS, false},
		{"111100 k@....... 101", "brhs", flagH, true},
		{"111101 k@....... 101", "brhc", flagH, false},
		{"111100 k@....... 110", "brts", flagT, true},
		{"111101 k@....... 110", "brtc", flagT, false},
		{"111100 k@....... 111", "brie", flagI, true},
		{"111101 k@....... 111", "brid", flagI, false},
	} {
		main.Pat(b.pat).Do(branch(b.name, b.flag, b.set))
	}

	// skips: the skipped instruction is assumed to be one word, so
	// both the next and the following slot are successors
	skip := func(x string) func(*SemState) {
		return func(st *SemState) {
			Rr := reg(st.Group("r"))
			b := st.Group("b")
			st.Mnemonic(size(st), x, "", []il.Rvalue{Rr, il.Const(b)}, nil)
			st.JumpTo(next(st), il.True())
			st.JumpTo(next(st)+2, il.True())
		}
	}
	main.Pat("1111110 r@..... 0 b@...").Do(skip("sbrc"))
	main.Pat("1111111 r@..... 0 b@...").Do(skip("sbrs"))

	ioSkip := func(x string) func(*SemState) {
		return func(st *SemState) {
			A := ioReg(st.Group("A"))
			b := st.Group("b")
			st.Mnemonic(size(st), x, "", []il.Rvalue{A, il.Const(b)}, nil)
			st.JumpTo(next(st), il.True())
			st.JumpTo(next(st)+2, il.True())
		}
	}
	main.Pat("10011001 A@..... b@...").Do(ioSkip("sbic"))
	main.Pat("10011011 A@..... b@...").Do(ioSkip("sbis"))
	main.Pat("000100 r@. d@..... r@....").Do(func(st *SemState) {
		Rd := reg(st.Group("d"))
		Rr := reg(st.Group("r"))
		st.Mnemonic(size(st), "cpse", "", []il.Rvalue{Rd, Rr}, nil)
		st.JumpTo(next(st), il.If(Rd, il.Neq, Rr))
		st.JumpTo(next(st)+2, il.If(Rd, il.Eq, Rr))
	})

	// misc
	main.Tok(0x0000).Do(simple("nop", func(m *il.CodeGen) {}))
	main.Tok(0x95a8).Do(simple("wdr", func(m *il.CodeGen) {}))
	main.Tok(0x9588).Do(simple("sleep", func(m *il.CodeGen) {}))
	main.Tok(0x9598).Do(simple("break", func(m *il.CodeGen) {}))

	// anything else decodes as a single-word unknown instruction
	main.Do(func(st *SemState) {
		st.Mnemonic(size(st), "unk", "", nil, nil)
		st.JumpTo(next(st), il.True())
	})

	return main
}

// Disassemble seeds the reconstruction worklist at ref and extends or
// creates a program covering the flash image in data. It returns nil
// when nothing could be decoded.
func Disassemble(st State, prog *proc.Program, data region.Slab, ref region.Ref) (*proc.Program, error) {
	main := Disassembler()
	if err := main.Err(); err != nil {
		return prog, err
	}
	temps := &il.TempPool{Prefix: "t", Width: 16}
	return proc.ExtendProgram(prog, main, st, temps, data, ref.Region, ref.Offset)
}
