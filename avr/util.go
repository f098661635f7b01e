// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avr

import (
	"fmt"

	"github.com/das-labor/panopticon/il"
)

// flash, sram and io are the memory spaces AVR IL references.
const (
	flashSpace = "flash"
	sramSpace  = "sram"
	ioSpace    = "io"
)

// status flags
var (
	flagI = il.Var("I", 1)
	flagT = il.Var("T", 1)
	flagH = il.Var("H", 1)
	flagS = il.Var("S", 1)
	flagV = il.Var("V", 1)
	flagN = il.Var("N", 1)
	flagZ = il.Var("Z", 1)
	flagC = il.Var("C", 1)
)

// stack pointer
var spReg = il.Var("sp", 16)

// reg returns the general purpose register r0…r31.
func reg(r uint64) il.Variable {
	if r > 31 {
		panic(fmt.Sprintf("avr: register %d out of range", r))
	}
	return il.Var(fmt.Sprintf("r%d", r), 8)
}

// PtrOp selects how an indirect pointer register access modifies the
// pointer.
type PtrOp int

const (
	PtrNone PtrOp = iota
	PtrPostInc
	PtrPreDec
	PtrDisplace
)

// ptrReg returns the pointer register X, Y or Z encoded by the
// register pair number 26, 28 or 30.
func ptrReg(r uint64) il.Variable {
	switch r {
	case 26:
		return il.Var("X", 16)
	case 28:
		return il.Var("Y", 16)
	case 30:
		return il.Var("Z", 16)
	default:
		panic(fmt.Sprintf("avr: %d is not a pointer register pair", r))
	}
}

// ioRegNames maps I/O addresses to their conventional names. Addresses
// missing from the table print as io<N>.
var ioRegNames = map[uint64]string{
	0x00: "ubrr1", 0x01: "ucsr1b", 0x02: "ucsr1a", 0x03: "udr1",
	0x05: "pine", 0x06: "ddre", 0x07: "porte", 0x08: "acsr",
	0x09: "ubrr0", 0x0a: "ucsr0b", 0x0b: "ucsr0a", 0x0c: "udr0",
	0x0d: "spcr", 0x0e: "spsr", 0x0f: "spdr",
	0x10: "pind", 0x11: "ddrd", 0x12: "portd",
	0x13: "pinc", 0x14: "ddrc", 0x15: "portc",
	0x16: "pinb", 0x17: "ddrb", 0x18: "portb",
	0x19: "pina", 0x1a: "ddra", 0x1b: "porta",
	0x1c: "eecr", 0x1d: "eedr", 0x1e: "eearl", 0x1f: "eearh",
	0x20: "ubrrh", 0x21: "wdtcr", 0x22: "ocr2", 0x23: "tcnt2",
	0x24: "icr1l", 0x25: "icr1h", 0x26: "assr", 0x27: "tccr2",
	0x28: "ocr1bl", 0x29: "ocr1bh", 0x2a: "ocr1al", 0x2b: "ocr1ah",
	0x2c: "tcnt1l", 0x2d: "tcnt1h", 0x2e: "tccr1b", 0x2f: "tccr1a",
	0x30: "sfior", 0x31: "ocr0", 0x32: "tcnt0", 0x33: "tccr0",
	0x34: "mcusr", 0x35: "mcucr", 0x36: "emcucr", 0x37: "spmcr",
	0x38: "tifr", 0x39: "timsk", 0x3a: "gifr", 0x3b: "gimsk",
	0x3d: "spl", 0x3e: "sph", 0x3f: "sreg",
}

// ioReg returns the 8 bit variable naming an I/O register.
func ioReg(r uint64) il.Variable {
	if n, ok := ioRegNames[r]; ok {
		return il.Var(n, 8)
	}
	return il.Var(fmt.Sprintf("io%d", r), 8)
}

// sram returns a one-byte reference into data memory.
func sram(off il.Rvalue) il.Memory {
	return il.Mem(off, 1, il.LittleEndian, sramSpace)
}

// signExtend interprets the low bits of v as a signed bits-wide
// integer.
func signExtend(v uint64, bits uint) int64 {
	mask := uint64(1)<<bits - 1
	v &= mask
	if v&(1<<(bits-1)) != 0 {
		return int64(v | ^mask)
	}
	return int64(v)
}

// setSubFlags emits the common H/V/N/Z/C/S updates of the 8 bit
// subtraction family for result R of Rd - Rr.
func setSubFlags(m *il.CodeGen, Rd il.Variable, Rr il.Rvalue, R il.Rvalue) {
	m.LessI(flagH, il.Const(16), m.AddI(nil, m.ModI(nil, Rd, il.Const(0x10)), m.ModI(nil, Rr, il.Const(0x10))))
	m.OrB(flagV,
		m.AndB(nil, m.LessI(nil, Rr, il.Const(0x80)),
			m.AndB(nil, m.LessI(nil, Rd, il.Const(0x80)), m.LessI(nil, il.Const(0x7f), R))),
		m.AndB(nil, m.LessI(nil, il.Const(0x7f), Rr),
			m.AndB(nil, m.LessI(nil, il.Const(0x7f), Rd), m.LessI(nil, R, il.Const(0x80)))))
	m.LessI(flagN, R, il.Const(0x7f))
	m.EqualI(flagZ, il.Const(0), R)
	m.LessI(flagC, Rd, Rr)
	m.OrB(flagS, m.AndB(nil, m.NotB(nil, flagN), flagV), m.AndB(nil, flagN, m.NotB(nil, flagV)))
}

// setLogicFlags emits the V/N/S/Z updates of the bitwise family for a
// result left in Rd.
func setLogicFlags(m *il.CodeGen, Rd il.Variable) {
	m.Assign(flagV, il.Const(0))
	m.LessI(flagN, Rd, il.Const(0x7f))
	m.OrB(flagS, m.AndB(nil, m.NotB(nil, flagN), flagV), m.AndB(nil, flagN, m.NotB(nil, flagV)))
	m.EqualI(flagZ, il.Const(0), Rd)
}

// setAddFlags emits the H/V/N/Z/C/S updates of the 8 bit addition
// family for the unclamped result R of Rd + Rr.
func setAddFlags(m *il.CodeGen, Rd, Rr il.Variable, R il.Rvalue) {
	m.LessI(flagH, il.Const(16), m.AddI(nil, m.ModI(nil, Rd, il.Const(0x10)), m.ModI(nil, Rr, il.Const(0x10))))
	m.OrB(flagV,
		m.AndB(nil, m.LessI(nil, Rr, il.Const(0x80)),
			m.AndB(nil, m.LessI(nil, Rd, il.Const(0x80)), m.LessI(nil, il.Const(0x7f), R))),
		m.AndB(nil, m.LessI(nil, il.Const(0x7f), Rr),
			m.AndB(nil, m.LessI(nil, il.Const(0x7f), Rd), m.LessI(nil, R, il.Const(0x80)))))
	m.LessI(flagN, R, il.Const(0x7f))
	m.EqualI(flagZ, il.Const(0), R)
	m.LessI(flagC, il.Const(0x100), R)
	m.OrB(flagS, m.AndB(nil, m.NotB(nil, flagN), flagV), m.AndB(nil, flagN, m.NotB(nil, flagV)))
}
