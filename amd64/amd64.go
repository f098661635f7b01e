// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amd64

import (
	"github.com/das-labor/panopticon/disasm"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/proc"
	"github.com/das-labor/panopticon/region"
)

// next returns the byte address after the matched tokens.
func next(st *SemState) region.Offset {
	return st.Address + region.Offset(len(st.Tokens))
}

// size returns the byte length of the match so far.
func size(st *SemState) region.Offset {
	return region.Offset(len(st.Tokens))
}

// aluFlags emits the common ZF/SF/CF/OF updates for the unclamped
// result R of an operation at the given width.
func aluFlags(m *il.CodeGen, R il.Rvalue, width uint, carries bool) {
	half := il.Const(uint64(1) << (width - 1))
	m.EqualI(flagZF, il.Const(0), R)
	m.LessI(flagSF, half, R)
	if carries {
		var full il.Rvalue = il.Const(0)
		if width < 64 {
			full = il.Const(uint64(1) << width)
		}
		m.LessI(flagCF, full, R)
		m.XorI(flagOF, m.LessI(nil, half, R), flagSF)
	} else {
		m.Assign(flagCF, il.Const(0))
		m.Assign(flagOF, il.Const(0))
	}
}

// aluOp describes one member of the classic eight-operation ALU
// family encoded at base, base+1, … base+5 and in the 0x80/0x81/0x83
// immediate groups at /ext.
type aluOp struct {
	name string
	base uint8
	ext  int
	sem  func(m *il.CodeGen, dst il.Lvalue, a, b il.Rvalue, width uint)
}

func aluOps() []aluOp {
	mod := func(width uint) il.Rvalue {
		if width == 64 {
			return nil
		}
		return il.Const(uint64(1) << width)
	}
	clamp := func(m *il.CodeGen, v il.Rvalue, width uint) il.Rvalue {
		if w := mod(width); w != nil {
			return m.ModI(nil, v, w)
		}
		return v
	}

	return []aluOp{
		{"add", 0x00, 0, func(m *il.CodeGen, dst il.Lvalue, a, b il.Rvalue, width uint) {
			R := m.AddI(nil, a, b)
			aluFlags(m, R, width, true)
			m.Assign(dst, clamp(m, R, width))
		}},
		{"or", 0x08, 1, func(m *il.CodeGen, dst il.Lvalue, a, b il.Rvalue, width uint) {
			R := m.OrI(nil, a, b)
			aluFlags(m, R, width, false)
			m.Assign(dst, R)
		}},
		{"adc", 0x10, 2, func(m *il.CodeGen, dst il.Lvalue, a, b il.Rvalue, width uint) {
			R := m.AddI(nil, m.AddI(nil, a, b), m.LiftB(nil, flagCF))
			aluFlags(m, R, width, true)
			m.Assign(dst, clamp(m, R, width))
		}},
		{"sbb", 0x18, 3, func(m *il.CodeGen, dst il.Lvalue, a, b il.Rvalue, width uint) {
			R := m.SubI(nil, m.SubI(nil, a, b), m.LiftB(nil, flagCF))
			aluFlags(m, R, width, true)
			m.Assign(dst, clamp(m, R, width))
		}},
		{"and", 0x20, 4, func(m *il.CodeGen, dst il.Lvalue, a, b il.Rvalue, width uint) {
			R := m.AndI(nil, a, b)
			aluFlags(m, R, width, false)
			m.Assign(dst, R)
		}},
		{"sub", 0x28, 5, func(m *il.CodeGen, dst il.Lvalue, a, b il.Rvalue, width uint) {
			m.LessI(flagCF, a, b)
			R := clamp(m, m.SubI(nil, a, b), width)
			aluFlags(m, R, width, false)
			m.Assign(dst, R)
		}},
		{"xor", 0x30, 6, func(m *il.CodeGen, dst il.Lvalue, a, b il.Rvalue, width uint) {
			R := m.XorI(nil, a, b)
			aluFlags(m, R, width, false)
			m.Assign(dst, R)
		}},
		{"cmp", 0x38, 7, func(m *il.CodeGen, dst il.Lvalue, a, b il.Rvalue, width uint) {
			m.LessI(flagCF, a, b)
			R := clamp(m, m.SubI(nil, a, b), width)
			aluFlags(m, R, width, false)
		}},
	}
}

// condition returns the guards under which conditional jump cc is
// taken and those of the fall-through edge. A list of guards models a
// disjunction: one edge is added per guard.
func condition(cc uint64) (taken, fall []il.Guard) {
	one := il.Const(1)
	zero := il.Const(0)

	is := func(f il.Variable, v il.Rvalue) il.Guard { return il.If(f, il.Eq, v) }
	both := func(a, b il.Guard) il.Guard {
		return il.Guard{Relations: append(append([]il.Relation(nil), a.Relations...), b.Relations...)}
	}

	switch cc {
	case 0x0:
		return []il.Guard{is(flagOF, one)}, []il.Guard{is(flagOF, zero)}
	case 0x1:
		return []il.Guard{is(flagOF, zero)}, []il.Guard{is(flagOF, one)}
	case 0x2:
		return []il.Guard{is(flagCF, one)}, []il.Guard{is(flagCF, zero)}
	case 0x3:
		return []il.Guard{is(flagCF, zero)}, []il.Guard{is(flagCF, one)}
	case 0x4:
		return []il.Guard{is(flagZF, one)}, []il.Guard{is(flagZF, zero)}
	case 0x5:
		return []il.Guard{is(flagZF, zero)}, []il.Guard{is(flagZF, one)}
	case 0x6: // be: CF=1 ∨ ZF=1
		return []il.Guard{is(flagCF, one), is(flagZF, one)},
			[]il.Guard{both(is(flagCF, zero), is(flagZF, zero))}
	case 0x7: // a: CF=0 ∧ ZF=0
		return []il.Guard{both(is(flagCF, zero), is(flagZF, zero))},
			[]il.Guard{is(flagCF, one), is(flagZF, one)}
	case 0x8:
		return []il.Guard{is(flagSF, one)}, []il.Guard{is(flagSF, zero)}
	case 0x9:
		return []il.Guard{is(flagSF, zero)}, []il.Guard{is(flagSF, one)}
	case 0xa:
		return []il.Guard{is(flagPF, one)}, []il.Guard{is(flagPF, zero)}
	case 0xb:
		return []il.Guard{is(flagPF, zero)}, []il.Guard{is(flagPF, one)}
	case 0xc: // l: SF ≠ OF
		return []il.Guard{il.If(flagSF, il.Neq, flagOF)}, []il.Guard{il.If(flagSF, il.Eq, flagOF)}
	case 0xd: // ge: SF = OF
		return []il.Guard{il.If(flagSF, il.Eq, flagOF)}, []il.Guard{il.If(flagSF, il.Neq, flagOF)}
	case 0xe: // le: ZF=1 ∨ SF ≠ OF
		return []il.Guard{is(flagZF, one), il.If(flagSF, il.Neq, flagOF)},
			[]il.Guard{both(is(flagZF, zero), il.If(flagSF, il.Eq, flagOF))}
	default: // g: ZF=0 ∧ SF=OF
		return []il.Guard{both(is(flagZF, zero), il.If(flagSF, il.Eq, flagOF))},
			[]il.Guard{is(flagZF, one), il.If(flagSF, il.Neq, flagOF)}
	}
}

var condNames = [...]string{"o", "no", "b", "ae", "e", "ne", "be", "a",
	"s", "ns", "p", "np", "l", "ge", "le", "g"}

// immPats appends n immediate byte patterns capturing into group
// "imm".
func immPats(d *Dis, n uint) *Dis {
	for i := uint(0); i < n; i++ {
		d.Pat("imm@........")
	}
	return d
}

// immWidth returns the immediate size in bits that the operand size
// selects; 64 bit operands take a sign-extended 32 bit immediate.
func immWidth(op uint) uint {
	if op == 64 {
		return 32
	}
	return op
}

// Disassembler builds the rule set for one operating mode. The
// returned set depends on the operand-size immediates of the mode's
// default, so 16 and 32/64 bit code use different instances.
func Disassembler(mode Mode) *Dis {
	main := disasm.New[uint8, State]()
	base := NewState(mode)

	// legacy prefixes recurse into the full rule set
	main.Tok(0x66).Call(func(st *SemState) {
		if st.Ctx.Mode == Mode16 {
			st.Ctx.OpSize = 32
		} else {
			st.Ctx.OpSize = 16
		}
	}).Sub(main).Do(nil)
	main.Tok(0x67).Call(func(st *SemState) {
		switch st.Ctx.Mode {
		case Mode16:
			st.Ctx.AddrSize = 32
		case Mode32:
			st.Ctx.AddrSize = 16
		default:
			st.Ctx.AddrSize = 32
		}
	}).Sub(main).Do(nil)
	main.Tok(0xf0).Call(func(st *SemState) { st.Ctx.Lock = true }).Sub(main).Do(nil)
	main.Tok(0xf2).Call(func(st *SemState) { st.Ctx.Rep = true }).Sub(main).Do(nil)
	main.Tok(0xf3).Call(func(st *SemState) { st.Ctx.Rep = true }).Sub(main).Do(nil)

	// the opcode body follows any prefixes; in 64 bit mode a REX byte
	// may come last in the prefix chain
	body := disasm.New[uint8, State]()

	if mode == Mode64 {
		main.Pat("0100 w@. r@. x@. b@.").Call(func(st *SemState) {
			st.Ctx.Rex = true
			st.Ctx.RexW = st.Group("w") != 0
			st.Ctx.RexR = st.Group("r") != 0
			st.Ctx.RexX = st.Group("x") != 0
			st.Ctx.RexB = st.Group("b") != 0
		}).Sub(body).Do(nil)
	}

	main.Sub(body).Do(nil)

	widthOf := func(st *SemState, byteOp bool) uint {
		if byteOp {
			return 8
		}
		return st.Ctx.effOpSize()
	}

	// the eight-operation ALU family
	for _, op := range aluOps() {
		op := op

		rmReg := func(byteOp, toRM bool) func(*SemState) {
			return func(st *SemState) {
				w := widthOf(st, byteOp)
				var ops []il.Rvalue
				st.Mnemonic(size(st), op.name, "", ops, func(m *il.CodeGen) {
					r := st.Ctx.regField(w)
					if toRM {
						dst := st.Ctx.rmWrite(m, w)
						op.sem(m, dst, st.Ctx.rmRead(m, w), r, w)
					} else {
						op.sem(m, r, r, st.Ctx.rmRead(m, w), w)
					}
				})
				st.JumpTo(next(st), il.True())
			}
		}

		body.Tok(op.base).Sub(rmAny).Do(rmReg(true, true))
		body.Tok(op.base + 1).Sub(rmAny).Do(rmReg(false, true))
		body.Tok(op.base + 2).Sub(rmAny).Do(rmReg(true, false))
		body.Tok(op.base + 3).Sub(rmAny).Do(rmReg(false, false))

		body.Tok(op.base + 4).Pat("imm@........").Do(func(st *SemState) {
			st.Mnemonic(size(st), op.name, "", nil, func(m *il.CodeGen) {
				al := st.Ctx.regVar(0, 8)
				op.sem(m, al, al, il.Const(st.Group("imm")), 8)
			})
			st.JumpTo(next(st), il.True())
		})

		accImm := disasm.New[uint8, State]()
		accImm.Tok(op.base + 5)
		immPats(accImm, immWidth(base.OpSize)/8)
		accImm.Do(func(st *SemState) {
			st.Mnemonic(size(st), op.name, "", nil, func(m *il.CodeGen) {
				w := st.Ctx.effOpSize()
				n := immWidth(w) / 8
				acc := st.Ctx.regVar(0, w)
				imm := uint64(signed(le(st.Group("imm"), n), n*8))
				op.sem(m, acc, acc, il.Const(imm), w)
			})
			st.JumpTo(next(st), il.True())
		})
		body.Sub(accImm).Do(nil)

		// immediate groups
		group := func(opcTok uint8, byteOp bool, immBytes uint, signExt bool) {
			g := disasm.New[uint8, State]()
			g.Tok(opcTok).Sub(rmFix[op.ext])
			immPats(g, immBytes)
			g.Do(func(st *SemState) {
				st.Mnemonic(size(st), op.name, "", nil, func(m *il.CodeGen) {
					w := widthOf(st, byteOp)
					imm := st.Group("imm")
					if signExt {
						imm = uint64(signed(imm, immBytes*8))
					} else {
						imm = le(imm, immBytes)
					}
					dst := st.Ctx.rmWrite(m, w)
					op.sem(m, dst, st.Ctx.rmRead(m, w), il.Const(imm), w)
				})
				st.JumpTo(next(st), il.True())
			})
			body.Sub(g).Do(nil)
		}
		group(0x80, true, 1, false)
		group(0x81, false, immWidth(base.OpSize)/8, false)
		group(0x83, false, 1, true)
	}

	// mov
	movRM := func(byteOp, toRM bool) func(*SemState) {
		return func(st *SemState) {
			w := widthOf(st, byteOp)
			st.Mnemonic(size(st), "mov", "", nil, func(m *il.CodeGen) {
				if toRM {
					m.Assign(st.Ctx.rmWrite(m, w), st.Ctx.regField(w))
				} else {
					m.Assign(st.Ctx.regField(w), st.Ctx.rmRead(m, w))
				}
			})
			st.JumpTo(next(st), il.True())
		}
	}
	body.Tok(0x88).Sub(rmAny).Do(movRM(true, true))
	body.Tok(0x89).Sub(rmAny).Do(movRM(false, true))
	body.Tok(0x8a).Sub(rmAny).Do(movRM(true, false))
	body.Tok(0x8b).Sub(rmAny).Do(movRM(false, false))

	body.Pat("10110 r@...").Pat("imm@........").Do(func(st *SemState) {
		st.Mnemonic(size(st), "mov", "", nil, func(m *il.CodeGen) {
			r := st.Group("r")
			if st.Ctx.RexB {
				r |= 8
			}
			m.Assign(st.Ctx.regVar(r, 8), il.Const(st.Group("imm")))
		})
		st.JumpTo(next(st), il.True())
	})

	movImm := disasm.New[uint8, State]()
	movImm.Pat("10111 r@...")
	immPats(movImm, base.OpSize/8)
	movImm.Do(func(st *SemState) {
		st.Mnemonic(size(st), "mov", "", nil, func(m *il.CodeGen) {
			w := st.Ctx.OpSize
			r := st.Group("r")
			if st.Ctx.RexB {
				r |= 8
			}
			m.Assign(st.Ctx.regVar(r, w), il.Const(le(st.Group("imm"), w/8)))
		})
		st.JumpTo(next(st), il.True())
	})
	body.Sub(movImm).Do(nil)

	movRMImm := disasm.New[uint8, State]()
	movRMImm.Tok(0xc7).Sub(rmFix[0])
	immPats(movRMImm, immWidth(base.OpSize)/8)
	movRMImm.Do(func(st *SemState) {
		st.Mnemonic(size(st), "mov", "", nil, func(m *il.CodeGen) {
			w := st.Ctx.effOpSize()
			n := immWidth(w) / 8
			m.Assign(st.Ctx.rmWrite(m, w), il.Const(uint64(signed(le(st.Group("imm"), n), n*8))))
		})
		st.JumpTo(next(st), il.True())
	})
	body.Sub(movRMImm).Do(nil)

	body.Tok(0xc6).Sub(rmFix[0]).Pat("imm@........").Do(func(st *SemState) {
		st.Mnemonic(size(st), "mov", "", nil, func(m *il.CodeGen) {
			m.Assign(st.Ctx.rmWrite(m, 8), il.Const(st.Group("imm")))
		})
		st.JumpTo(next(st), il.True())
	})

	// lea
	body.Tok(0x8d).Sub(rmAny).Do(func(st *SemState) {
		st.Mnemonic(size(st), "lea", "", nil, func(m *il.CodeGen) {
			w := st.Ctx.effOpSize()
			m.Assign(st.Ctx.regField(w), st.Ctx.rmAddress(m, st.Ctx.Modrm))
		})
		st.JumpTo(next(st), il.True())
	})

	// test
	testRM := func(byteOp bool) func(*SemState) {
		return func(st *SemState) {
			w := widthOf(st, byteOp)
			st.Mnemonic(size(st), "test", "", nil, func(m *il.CodeGen) {
				R := m.AndI(nil, st.Ctx.rmRead(m, w), st.Ctx.regField(w))
				aluFlags(m, R, w, false)
			})
			st.JumpTo(next(st), il.True())
		}
	}
	body.Tok(0x84).Sub(rmAny).Do(testRM(true))
	body.Tok(0x85).Sub(rmAny).Do(testRM(false))

	// push and pop
	stackW := func(st *SemState) uint {
		if st.Ctx.Mode == Mode64 {
			return 64
		}
		return st.Ctx.OpSize
	}
	body.Pat("01010 r@...").Do(func(st *SemState) {
		st.Mnemonic(size(st), "push", "", nil, func(m *il.CodeGen) {
			w := stackW(st)
			r := st.Group("r")
			if st.Ctx.RexB {
				r |= 8
			}
			sp := st.Ctx.regVar(4, w)
			m.SubI(sp, sp, il.Const(uint64(w/8)))
			m.Assign(il.Mem(sp, uint16(w/8), il.LittleEndian, ramSpace), st.Ctx.regVar(r, w))
		})
		st.JumpTo(next(st), il.True())
	})
	body.Pat("01011 r@...").Do(func(st *SemState) {
		st.Mnemonic(size(st), "pop", "", nil, func(m *il.CodeGen) {
			w := stackW(st)
			r := st.Group("r")
			if st.Ctx.RexB {
				r |= 8
			}
			sp := st.Ctx.regVar(4, w)
			m.Assign(st.Ctx.regVar(r, w), il.Mem(sp, uint16(w/8), il.LittleEndian, ramSpace))
			m.AddI(sp, sp, il.Const(uint64(w/8)))
		})
		st.JumpTo(next(st), il.True())
	})

	// inc/dec/call/jmp/push group
	body.Tok(0xff).Sub(rmAny).Do(func(st *SemState) {
		w := st.Ctx.effOpSize()
		switch st.Ctx.RegField {
		case 0, 1:
			name := "inc"
			delta := uint64(1)
			if st.Ctx.RegField == 1 {
				name, delta = "dec", ^uint64(0)
			}
			st.Mnemonic(size(st), name, "", nil, func(m *il.CodeGen) {
				dst := st.Ctx.rmWrite(m, w)
				R := m.AddI(nil, st.Ctx.rmRead(m, w), il.Const(delta))
				aluFlags(m, R, w, false)
				m.Assign(dst, R)
			})
			st.JumpTo(next(st), il.True())
		case 2: // indirect call
			var target il.Rvalue
			st.Mnemonic(size(st), "call", "", nil, func(m *il.CodeGen) {
				target = st.Ctx.rmRead(m, w)
				m.CallI(nil, target)
			})
			st.JumpTo(next(st), il.True())
		case 4: // indirect jmp
			var target il.Rvalue = il.Undefined{}
			st.Mnemonic(size(st), "jmp", "", nil, func(m *il.CodeGen) {
				target = m.Assign(nil, st.Ctx.rmRead(m, w))
			})
			st.Jump(target, il.True())
		case 6:
			st.Mnemonic(size(st), "push", "", nil, func(m *il.CodeGen) {
				w := stackW(st)
				sp := st.Ctx.regVar(4, w)
				m.SubI(sp, sp, il.Const(uint64(w/8)))
				m.Assign(il.Mem(sp, uint16(w/8), il.LittleEndian, ramSpace), st.Ctx.rmRead(m, w))
			})
			st.JumpTo(next(st), il.True())
		default:
			st.Mnemonic(size(st), "unk", "", nil, nil)
			st.JumpTo(next(st), il.True())
		}
	})

	// control flow
	body.Tok(0xc3).Do(func(st *SemState) {
		st.Mnemonic(size(st), "ret", "", nil, nil)
	})
	body.Tok(0xc9).Do(func(st *SemState) {
		st.Mnemonic(size(st), "leave", "", nil, func(m *il.CodeGen) {
			w := stackW(st)
			sp := st.Ctx.regVar(4, w)
			bp := st.Ctx.regVar(5, w)
			m.Assign(sp, bp)
			m.Assign(bp, il.Mem(sp, uint16(w/8), il.LittleEndian, ramSpace))
			m.AddI(sp, sp, il.Const(uint64(w/8)))
		})
		st.JumpTo(next(st), il.True())
	})

	rel32 := func(st *SemState) region.Offset {
		return region.Offset(int64(next(st)) + signed(le(st.Group("imm"), 4), 32))
	}

	call := disasm.New[uint8, State]()
	call.Tok(0xe8)
	immPats(call, 4)
	call.Do(func(st *SemState) {
		target := rel32(st)
		st.Mnemonic(size(st), "call", "", []il.Rvalue{il.Const(target)}, func(m *il.CodeGen) {
			m.CallI(nil, il.Const(target))
		})
		st.JumpTo(next(st), il.True())
	})
	body.Sub(call).Do(nil)

	jmp := disasm.New[uint8, State]()
	jmp.Tok(0xe9)
	immPats(jmp, 4)
	jmp.Do(func(st *SemState) {
		st.Mnemonic(size(st), "jmp", "", []il.Rvalue{il.Const(rel32(st))}, nil)
		st.JumpTo(rel32(st), il.True())
	})
	body.Sub(jmp).Do(nil)

	body.Tok(0xeb).Pat("imm@........").Do(func(st *SemState) {
		target := region.Offset(int64(next(st)) + signed(st.Group("imm"), 8))
		st.Mnemonic(size(st), "jmp", "", []il.Rvalue{il.Const(target)}, nil)
		st.JumpTo(target, il.True())
	})

	body.Pat("0111 cc@....").Pat("imm@........").Do(func(st *SemState) {
		cc := st.Group("cc")
		target := region.Offset(int64(next(st)) + signed(st.Group("imm"), 8))
		st.Mnemonic(size(st), "j"+condNames[cc], "", []il.Rvalue{il.Const(target)}, nil)
		taken, fall := condition(cc)
		for _, g := range taken {
			st.JumpTo(target, g)
		}
		for _, g := range fall {
			st.JumpTo(next(st), g)
		}
	})

	jcc32 := disasm.New[uint8, State]()
	jcc32.Tok(0x0f).Pat("1000 cc@....")
	immPats(jcc32, 4)
	jcc32.Do(func(st *SemState) {
		cc := st.Group("cc")
		target := rel32(st)
		st.Mnemonic(size(st), "j"+condNames[cc], "", []il.Rvalue{il.Const(target)}, nil)
		taken, fall := condition(cc)
		for _, g := range taken {
			st.JumpTo(target, g)
		}
		for _, g := range fall {
			st.JumpTo(next(st), g)
		}
	})
	body.Sub(jcc32).Do(nil)

	body.Tok(0x90).Do(func(st *SemState) {
		st.Mnemonic(size(st), "nop", "", nil, nil)
		st.JumpTo(next(st), il.True())
	})
	body.Tok(0xcc).Do(func(st *SemState) {
		st.Mnemonic(size(st), "int3", "", nil, nil)
	})
	body.Tok(0xcd).Pat("imm@........").Do(func(st *SemState) {
		st.Mnemonic(size(st), "int", "", []il.Rvalue{il.Const(st.Group("imm"))}, nil)
		st.JumpTo(next(st), il.True())
	})
	body.Tok(0xf4).Do(func(st *SemState) {
		st.Mnemonic(size(st), "hlt", "", nil, nil)
	})

	retImm := disasm.New[uint8, State]()
	retImm.Tok(0xc2).Pat("imm@........").Pat("imm@........")
	retImm.Do(func(st *SemState) {
		st.Mnemonic(size(st), "ret", "", []il.Rvalue{il.Const(le(st.Group("imm"), 2))}, nil)
	})
	body.Sub(retImm).Do(nil)

	// single-byte inc and dec exist outside 64 bit mode, where their
	// encodings are REX bytes
	if mode != Mode64 {
		incDec := func(name string, delta uint64) func(*SemState) {
			return func(st *SemState) {
				st.Mnemonic(size(st), name, "", nil, func(m *il.CodeGen) {
					w := st.Ctx.effOpSize()
					r := st.Ctx.regVar(st.Group("r"), w)
					R := m.AddI(nil, r, il.Const(delta))
					aluFlags(m, R, w, false)
					m.Assign(r, R)
				})
				st.JumpTo(next(st), il.True())
			}
		}
		body.Pat("01000 r@...").Do(incDec("inc", 1))
		body.Pat("01001 r@...").Do(incDec("dec", ^uint64(0)))
	}

	// xchg
	xchgRM := func(byteOp bool) func(*SemState) {
		return func(st *SemState) {
			w := widthOf(st, byteOp)
			st.Mnemonic(size(st), "xchg", "", nil, func(m *il.CodeGen) {
				r := st.Ctx.regField(w)
				tmp := m.Assign(nil, st.Ctx.rmRead(m, w))
				m.Assign(st.Ctx.rmWrite(m, w), r)
				m.Assign(r, tmp)
			})
			st.JumpTo(next(st), il.True())
		}
	}
	body.Tok(0x86).Sub(rmAny).Do(xchgRM(true))
	body.Tok(0x87).Sub(rmAny).Do(xchgRM(false))

	// test accumulator against an immediate
	body.Tok(0xa8).Pat("imm@........").Do(func(st *SemState) {
		st.Mnemonic(size(st), "test", "", nil, func(m *il.CodeGen) {
			R := m.AndI(nil, st.Ctx.regVar(0, 8), il.Const(st.Group("imm")))
			aluFlags(m, R, 8, false)
		})
		st.JumpTo(next(st), il.True())
	})
	testAcc := disasm.New[uint8, State]()
	testAcc.Tok(0xa9)
	immPats(testAcc, immWidth(base.OpSize)/8)
	testAcc.Do(func(st *SemState) {
		st.Mnemonic(size(st), "test", "", nil, func(m *il.CodeGen) {
			w := st.Ctx.effOpSize()
			n := immWidth(w) / 8
			R := m.AndI(nil, st.Ctx.regVar(0, w), il.Const(le(st.Group("imm"), n)))
			aluFlags(m, R, w, false)
		})
		st.JumpTo(next(st), il.True())
	})
	body.Sub(testAcc).Do(nil)

	// the F6/F7 unary group: test, not, neg, mul, div
	unaryGroup := func(opcTok uint8, byteOp bool) {
		for _, u := range []struct {
			ext  int
			name string
		}{{0, "test"}, {2, "not"}, {3, "neg"}, {4, "mul"}, {6, "div"}} {
			ext, name := u.ext, u.name
			g := disasm.New[uint8, State]()
			g.Tok(opcTok).Sub(rmFix[ext])
			if ext == 0 {
				if byteOp {
					immPats(g, 1)
				} else {
					immPats(g, immWidth(base.OpSize)/8)
				}
			}
			g.Do(func(st *SemState) {
				w := widthOf(st, byteOp)
				st.Mnemonic(size(st), name, "", nil, func(m *il.CodeGen) {
					switch ext {
					case 0:
						imm := st.Group("imm")
						if !byteOp {
							imm = le(imm, immWidth(st.Ctx.effOpSize())/8)
						}
						R := m.AndI(nil, st.Ctx.rmRead(m, w), il.Const(imm))
						aluFlags(m, R, w, false)
					case 2:
						v := st.Ctx.rmRead(m, w)
						mask := ^uint64(0)
						if w < 64 {
							mask = 1<<w - 1
						}
						m.Assign(st.Ctx.rmWrite(m, w), m.XorI(nil, v, il.Const(mask)))
					case 3:
						v := st.Ctx.rmRead(m, w)
						var R il.Rvalue = m.SubI(nil, il.Const(0), v)
						if w < 64 {
							R = m.ModI(nil, R, il.Const(uint64(1)<<w))
						}
						aluFlags(m, R, w, false)
						m.Assign(st.Ctx.rmWrite(m, w), R)
					case 4:
						a := st.Ctx.regVar(0, w)
						m.Assign(a, m.MulI(nil, a, st.Ctx.rmRead(m, w)))
					case 6:
						a := st.Ctx.regVar(0, w)
						v := st.Ctx.rmRead(m, w)
						q := m.DivI(nil, a, v)
						r := m.ModI(nil, a, v)
						m.Assign(a, q)
						if w > 8 {
							m.Assign(st.Ctx.regVar(2, w), r)
						}
					}
				})
				st.JumpTo(next(st), il.True())
			})
			body.Sub(g).Do(nil)
		}
	}
	unaryGroup(0xf6, true)
	unaryGroup(0xf7, false)

	// the shift group: shl, shr, sar by an immediate, one, or cl
	shiftGroup := func(opcTok uint8, byteOp bool, by string) {
		for _, u := range []struct {
			ext  int
			name string
		}{{4, "shl"}, {5, "shr"}, {7, "sar"}} {
			ext, name := u.ext, u.name
			g := disasm.New[uint8, State]()
			g.Tok(opcTok).Sub(rmFix[ext])
			if by == "imm" {
				immPats(g, 1)
			}
			g.Do(func(st *SemState) {
				w := widthOf(st, byteOp)
				st.Mnemonic(size(st), name, "", nil, func(m *il.CodeGen) {
					var count il.Rvalue
					switch by {
					case "imm":
						count = il.Const(st.Group("imm"))
					case "one":
						count = il.Const(1)
					default:
						count = st.Ctx.regVar(1, 8)
					}
					v := st.Ctx.rmRead(m, w)
					var R il.Rvalue
					if ext == 4 {
						R = m.LshiftI(nil, v, count)
						if w < 64 {
							R = m.ModI(nil, R, il.Const(uint64(1)<<w))
						}
					} else {
						R = m.RshiftI(nil, v, count)
					}
					m.EqualI(flagZF, il.Const(0), R)
					m.Assign(st.Ctx.rmWrite(m, w), R)
				})
				st.JumpTo(next(st), il.True())
			})
			body.Sub(g).Do(nil)
		}
	}
	shiftGroup(0xc0, true, "imm")
	shiftGroup(0xc1, false, "imm")
	shiftGroup(0xd0, true, "one")
	shiftGroup(0xd1, false, "one")
	shiftGroup(0xd2, true, "cl")
	shiftGroup(0xd3, false, "cl")

	// zero and sign extending moves
	extMov := func(second uint8, srcWidth uint, signExtend bool) {
		name := "movzx"
		if signExtend {
			name = "movsx"
		}
		g := disasm.New[uint8, State]()
		g.Tok(0x0f).Tok(second).Sub(rmAny)
		g.Do(func(st *SemState) {
			st.Mnemonic(size(st), name, "", nil, func(m *il.CodeGen) {
				w := st.Ctx.effOpSize()
				m.Assign(st.Ctx.regField(w), st.Ctx.rmRead(m, srcWidth))
			})
			st.JumpTo(next(st), il.True())
		})
		body.Sub(g).Do(nil)
	}
	extMov(0xb6, 8, false)
	extMov(0xb7, 16, false)
	extMov(0xbe, 8, true)
	extMov(0xbf, 16, true)

	// setcc materialises a condition flag into a byte
	setcc := disasm.New[uint8, State]()
	setcc.Tok(0x0f).Pat("1001 cc@....").Sub(rmAny)
	setcc.Do(func(st *SemState) {
		cc := st.Group("cc")
		st.Mnemonic(size(st), "set"+condNames[cc], "", nil, func(m *il.CodeGen) {
			dst := st.Ctx.rmWrite(m, 8)
			switch cc {
			case 0x4:
				m.LiftB(dst, flagZF)
			case 0x5:
				m.LiftB(dst, m.NotB(nil, flagZF))
			case 0x2:
				m.LiftB(dst, flagCF)
			case 0x3:
				m.LiftB(dst, m.NotB(nil, flagCF))
			case 0x8:
				m.LiftB(dst, flagSF)
			case 0x9:
				m.LiftB(dst, m.NotB(nil, flagSF))
			default:
				m.Assign(dst, il.Undefined{})
			}
		})
		st.JumpTo(next(st), il.True())
	})
	body.Sub(setcc).Do(nil)

	// direction and interrupt flags
	for _, f := range []struct {
		tok  uint8
		name string
		flag il.Variable
		val  uint64
	}{
		{0xf8, "clc", flagCF, 0},
		{0xf9, "stc", flagCF, 1},
		{0xfa, "cli", il.Var("IF", 1), 0},
		{0xfb, "sti", il.Var("IF", 1), 1},
		{0xfc, "cld", il.Var("DF", 1), 0},
		{0xfd, "std", il.Var("DF", 1), 1},
	} {
		f := f
		body.Tok(f.tok).Do(func(st *SemState) {
			st.Mnemonic(size(st), f.name, "", nil, func(m *il.CodeGen) {
				m.Assign(f.flag, il.Const(f.val))
			})
			st.JumpTo(next(st), il.True())
		})
	}

	// anything else decodes as a one-byte unknown instruction
	main.Do(func(st *SemState) {
		st.Mnemonic(size(st), "unk", "", nil, nil)
		st.JumpTo(next(st), il.True())
	})

	return main
}

// Disassemble seeds the reconstruction worklist at ref and extends or
// creates a program covering the image in data. It returns nil when
// nothing could be decoded.
func Disassemble(mode Mode, prog *proc.Program, data region.Slab, ref region.Ref) (*proc.Program, error) {
	main := Disassembler(mode)
	if err := main.Err(); err != nil {
		return prog, err
	}
	temps := &il.TempPool{Prefix: "t", Width: 64}
	return proc.ExtendProgram(prog, main, NewState(mode), temps, data, ref.Region, ref.Offset)
}
