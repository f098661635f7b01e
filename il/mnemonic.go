// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package il

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/region"
)

// PhiMnemonic names the synthetic zero-width mnemonic holding the
// φ-functions at the head of a basic block.
const PhiMnemonic = "internal-phis"

// A FormatToken is one element of a parsed mnemonic format string:
// either a literal run of characters or a field rendering the next
// operand with the given width and signedness. A field with a
// non-empty alias prints the alias instead of the operand.
type FormatToken struct {
	Literal bool
	Alias   string
	Width   uint
	Signed  bool
}

// A Mnemonic is one decoded machine instruction: its address range,
// opcode, operands, display format and the IL instructions modelling
// its semantics.
type Mnemonic struct {
	Area         region.Bound
	Opcode       string
	Operands     []Rvalue
	Instructions []Instr
	Format       []FormatToken
	FormatString string
}

// NewMnemonic builds a mnemonic, parsing the format string. Empty
// areas are reserved for synthetic mnemonics.
func NewMnemonic(area region.Bound, opcode, format string, ops []Rvalue, instrs []Instr) (Mnemonic, error) {
	toks, err := parseFormat(format)
	if err != nil {
		return Mnemonic{}, errors.Wrapf(err, "mnemonic %s", opcode)
	}

	fields := 0
	for _, t := range toks {
		if !t.Literal {
			fields++
		}
	}
	if fields > len(ops) {
		return Mnemonic{}, errors.Errorf("mnemonic %s: format references %d operands, only %d given", opcode, fields, len(ops))
	}

	return Mnemonic{
		Area:         area,
		Opcode:       opcode,
		Operands:     ops,
		Instructions: instrs,
		Format:       toks,
		FormatString: format,
	}, nil
}

// Phis returns the synthetic φ-holder mnemonic anchored at offset at.
func Phis(at region.Offset, instrs []Instr) Mnemonic {
	return Mnemonic{
		Area:         region.Bound{Lower: at, Upper: at},
		Opcode:       PhiMnemonic,
		Instructions: instrs,
	}
}

// IsPhis reports whether m is a synthetic φ-holder.
func (m *Mnemonic) IsPhis() bool { return m.Opcode == PhiMnemonic }

// parseFormat parses the format mini-language:
//
//	FormatString -> ('{' EscapeSequence '}') | PlainAscii
//	EscapeSequence -> Digit+ (':' Modifiers (':' Alias)?)?
//	Modifiers -> '-'?
//	Alias -> PlainAscii*
//
// An unknown modifier character starts the alias.
func parseFormat(s string) ([]FormatToken, error) {
	var ret []FormatToken
	i := 0

	for i < len(s) {
		if s[i] != '{' {
			if len(ret) == 0 || !ret[len(ret)-1].Literal {
				ret = append(ret, FormatToken{Literal: true, Alias: string(s[i])})
			} else {
				ret[len(ret)-1].Alias += string(s[i])
			}
			i++
			continue
		}

		i++
		if i >= len(s) || s[i] < '0' || s[i] > '9' {
			return nil, errors.Errorf("invalid format string %q: field width expected at %d", s, i)
		}

		var tok FormatToken
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			tok.Width = tok.Width*10 + uint(s[i]-'0')
			i++
		}

		if i < len(s) && s[i] == ':' {
			i++
			if i < len(s) && s[i] == '-' {
				tok.Signed = true
				i++
			}
			if i < len(s) && s[i] == ':' {
				i++
			}
			for i < len(s) && s[i] != '}' {
				tok.Alias += string(s[i])
				i++
			}
		}

		if i >= len(s) || s[i] != '}' {
			return nil, errors.Errorf("invalid format string %q: unterminated field", s)
		}
		i++
		ret = append(ret, tok)
	}

	return ret, nil
}

// FormatConstant renders v under the token's width and sign flag.
func FormatConstant(tok FormatToken, v uint64) int64 {
	if tok.Width == 0 || tok.Width > 64 {
		return int64(v)
	}
	mask := ^uint64(0) >> (64 - tok.Width)
	v &= mask
	if tok.Signed && tok.Width < 64 && v&(1<<(tok.Width-1)) != 0 {
		return int64(v | ^mask)
	}
	return int64(v)
}

// FormatOperands renders the operand list according to the parsed
// format string.
func (m *Mnemonic) FormatOperands() string {
	var sb strings.Builder
	idx := 0

	for _, tok := range m.Format {
		switch {
		case tok.Literal || tok.Alias != "":
			sb.WriteString(tok.Alias)
		default:
			op := m.Operands[idx]
			if c, ok := op.(Constant); ok {
				fmt.Fprintf(&sb, "%d", FormatConstant(tok, c.Value))
			} else {
				sb.WriteString(op.String())
			}
		}
		if !tok.Literal {
			idx++
		}
	}

	return sb.String()
}

func (m Mnemonic) String() string {
	if len(m.Operands) == 0 {
		return m.Opcode
	}
	return m.Opcode + " " + m.FormatOperands()
}

// Equal reports structural equality of two mnemonics.
func (m Mnemonic) Equal(o Mnemonic) bool {
	if m.Area != o.Area || m.Opcode != o.Opcode || m.FormatString != o.FormatString {
		return false
	}
	if len(m.Operands) != len(o.Operands) || len(m.Instructions) != len(o.Instructions) {
		return false
	}
	for i := range m.Operands {
		if m.Operands[i] != o.Operands[i] {
			return false
		}
	}
	for i := range m.Instructions {
		if !m.Instructions[i].Equal(o.Instructions[i]) {
			return false
		}
	}
	return true
}
