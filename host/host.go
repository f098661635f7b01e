// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host implements the interactive shell over the analysis
// core: loading images, inspecting regions and procedures, annotating,
// renaming and running analyses.
package host

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/cmd"
	"github.com/beevik/term"
	"github.com/pkg/errors"

	"github.com/das-labor/panopticon/dflow"
	"github.com/das-labor/panopticon/il"
	"github.com/das-labor/panopticon/interp"
	"github.com/das-labor/panopticon/proc"
	"github.com/das-labor/panopticon/region"
	"github.com/das-labor/panopticon/session"
)

var errQuit = errors.New("quit")

// A Host drives one session through a line-oriented command
// interface.
type Host struct {
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	session     *session.Session
	lastCmd     *cmd.Selection
	settings    *settings
}

// New creates an empty host.
func New() *Host {
	return &Host{settings: newSettings()}
}

// Session returns the host's current session.
func (h *Host) Session() *session.Session { return h.session }

// Interactive reports whether stdin is attached to a terminal.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// RunCommands accepts commands from r and writes results to w. In
// interactive mode a prompt is displayed before every line.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.input = bufio.NewScanner(r)
	h.output = bufio.NewWriter(w)
	h.interactive = interactive

	for {
		h.prompt()

		line, err := h.getLine()
		if err != nil {
			break
		}
		if err := h.processCommand(line); err != nil {
			break
		}
	}
	h.output.Flush()
}

func (h *Host) processCommand(line string) error {
	var c cmd.Selection
	if line != "" {
		var err error
		c, err = cmds.Lookup(line)
		switch {
		case err == cmd.ErrNotFound:
			h.println("Command not found.")
			return nil
		case err == cmd.ErrAmbiguous:
			h.println("Command is ambiguous.")
			return nil
		case err != nil:
			h.printf("ERROR: %v.\n", err)
			return nil
		}
	} else if h.lastCmd != nil {
		c = *h.lastCmd
	}

	if c.Command == nil {
		return nil
	}
	if c.Command.Data == nil && c.Command.Subtree != nil {
		h.displayCommands(c.Command.Subtree)
		return nil
	}

	h.lastCmd = &c

	handler := c.Command.Data.(func(*Host, cmd.Selection) error)
	err := handler(h, c)
	if err == errQuit {
		return err
	}
	if err != nil {
		h.printf("ERROR: %v\n", err)
	}
	return nil
}

func (h *Host) getLine() (string, error) {
	if h.input.Scan() {
		return strings.TrimSpace(h.input.Text()), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) prompt() {
	if h.interactive {
		h.printf("* ")
	}
	h.output.Flush()
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
}

func (h *Host) displayCommands(tree *cmd.Tree) {
	h.printf("%s commands:\n", tree.Title)
	for _, c := range tree.Commands {
		if c.Brief != "" {
			h.printf("    %-16s %s\n", c.Name, c.Brief)
		}
	}
}

// parseAddr interprets a numeric argument under the current input
// mode.
func (h *Host) parseAddr(s string) (region.Offset, error) {
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "$"):
		s, base = s[1:], 16
	case h.settings.HexMode:
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, errors.Errorf("invalid address %q", s)
	}
	return v, nil
}

func (h *Host) needSession() error {
	if h.session == nil {
		return errors.New("no image loaded")
	}
	return nil
}

// activeRegion names the region commands refer to, defaulting to the
// root region.
func (h *Host) activeRegion() string {
	if h.settings.ActiveRegion != "" {
		return h.settings.ActiveRegion
	}
	if h.session != nil {
		if root, ok := region.Root(h.session.Regions); ok {
			return h.session.Regions.Node(root).Name()
		}
	}
	return ""
}

func (h *Host) activeProc(sel cmd.Selection) (string, *proc.Procedure, error) {
	uuid := h.settings.ActiveProc
	if len(sel.Args) > 0 {
		uuid = sel.Args[0]
	}
	if uuid == "" {
		return "", nil, errors.New("no procedure selected; pass a uuid or set activeproc")
	}
	if err := h.needSession(); err != nil {
		return "", nil, err
	}
	p, ok := h.session.Procedure(uuid)
	if !ok {
		return "", nil, errors.Errorf("unknown procedure %s", uuid)
	}
	return uuid, p, nil
}

func (h *Host) cmdHelp(sel cmd.Selection) error {
	if len(sel.Args) == 0 {
		h.displayCommands(cmds)
		return nil
	}
	c, err := cmds.Lookup(strings.Join(sel.Args, " "))
	if err != nil {
		h.println("Command not found.")
		return nil
	}
	if c.Command.Description != "" {
		h.printf("%s\n", c.Command.Description)
	}
	if c.Command.Usage != "" {
		h.printf("Usage: %s\n", c.Command.Usage)
	}
	return nil
}

func (h *Host) cmdLoad(sel cmd.Selection) error {
	if len(sel.Args) < 1 {
		return errors.New("usage: load <filename>")
	}
	path := sel.Args[0]

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	magic := make([]byte, 2)
	_, err = f.Read(magic)
	f.Close()
	if err != nil {
		return err
	}

	var s *session.Session
	if magic[0] == 'M' && magic[1] == 'Z' {
		s, err = session.OpenPE(path)
	} else {
		s, err = session.OpenRaw(path)
	}
	if err != nil {
		return err
	}

	h.session = s
	for _, prog := range s.Programs {
		h.printf("loaded %s: %d procedures\n", prog.Name, len(prog.Procedures()))
	}
	return nil
}

func (h *Host) cmdSave(sel cmd.Selection) error {
	if len(sel.Args) < 1 {
		return errors.New("usage: save <filename>")
	}
	if err := h.needSession(); err != nil {
		return err
	}
	if err := h.session.Save(sel.Args[0]); err != nil {
		return err
	}
	h.printf("session saved to %s\n", sel.Args[0])
	return nil
}

func (h *Host) cmdOpen(sel cmd.Selection) error {
	if len(sel.Args) < 1 {
		return errors.New("usage: open <filename>")
	}
	s, err := session.Open(sel.Args[0])
	if err != nil {
		return err
	}
	h.session = s
	h.printf("session restored from %s\n", sel.Args[0])
	return nil
}

func (h *Host) cmdRegions(sel cmd.Selection) error {
	if err := h.needSession(); err != nil {
		return err
	}
	for _, p := range region.Projection(h.session.Regions) {
		h.printf("  [$%08X, $%08X) %s\n", p.Bound.Lower, p.Bound.Upper, p.Region.Name())
	}
	return nil
}

func (h *Host) cmdProcedures(sel cmd.Selection) error {
	if err := h.needSession(); err != nil {
		return err
	}

	type row struct {
		uuid  string
		p     *proc.Procedure
		entry region.Offset
	}
	var rows []row
	for uuid, p := range h.session.UUIDs() {
		r := row{uuid: uuid, p: p}
		if bb, ok := p.EntryBlock(); ok {
			r.entry = bb.Area().Lower
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].entry < rows[j].entry })

	for _, r := range rows {
		h.printf("  %s  $%08X  %-24s %d blocks\n", r.uuid, r.entry, r.p.Name, len(r.p.Blocks()))
	}
	return nil
}

func (h *Host) cmdList(sel cmd.Selection) error {
	_, p, err := h.activeProc(sel)
	if err != nil {
		return err
	}

	g := p.CFG
	for _, v := range p.RevPostorder() {
		bb := g.Node(v).Block
		h.printf("block $%08X..$%08X:\n", bb.Area().Lower, bb.Area().Upper)
		for _, m := range bb.Mnemonics() {
			cmt := ""
			if h.session != nil {
				ref := region.Ref{Region: h.activeRegion(), Offset: m.Area.Lower}
				if c, ok := h.session.Comments[ref]; ok {
					cmt = "  ; " + c
				}
			}
			h.printf("  $%08X  %s%s\n", m.Area.Lower, m.String(), cmt)
			if h.settings.ShowIL {
				for _, i := range m.Instructions {
					h.printf("              %s\n", i)
				}
			}
		}
		if h.settings.ShowGuards {
			for _, e := range g.OutEdges(v) {
				tgt := g.Node(g.Target(e))
				switch {
				case tgt.IsBlock():
					h.printf("  -> $%08X when %s\n", tgt.Block.Area().Lower, g.Edge(e))
				default:
					h.printf("  -> %s when %s\n", tgt.Value, g.Edge(e))
				}
			}
		}
	}
	return nil
}

func (h *Host) cmdComment(sel cmd.Selection) error {
	if len(sel.Args) < 2 {
		return errors.New("usage: comment <address> <text>")
	}
	if err := h.needSession(); err != nil {
		return err
	}
	addr, err := h.parseAddr(sel.Args[0])
	if err != nil {
		return err
	}
	text := strings.Join(sel.Args[1:], " ")
	return h.session.CommentOn(region.Ref{Region: h.activeRegion(), Offset: addr}, text)
}

func (h *Host) cmdRename(sel cmd.Selection) error {
	if len(sel.Args) < 2 {
		return errors.New("usage: rename <uuid> <name>")
	}
	if err := h.needSession(); err != nil {
		return err
	}
	return h.session.RenameFunction(sel.Args[0], sel.Args[1])
}

func (h *Host) cmdSetValue(sel cmd.Selection) error {
	if len(sel.Args) < 3 {
		return errors.New("usage: setvalue <uuid> <variable> <value>")
	}
	if err := h.needSession(); err != nil {
		return err
	}
	v, err := h.parseAddr(sel.Args[2])
	if err != nil {
		return err
	}
	return h.session.SetValueFor(sel.Args[0], sel.Args[1], v)
}

func (h *Host) cmdUndo(sel cmd.Selection) error {
	if err := h.needSession(); err != nil {
		return err
	}
	return h.session.Undo()
}

func (h *Host) cmdRedo(sel cmd.Selection) error {
	if err := h.needSession(); err != nil {
		return err
	}
	return h.session.Redo()
}

func (h *Host) cmdAnalyze(sel cmd.Selection) error {
	_, p, err := h.activeProc(sel)
	if err != nil {
		return err
	}

	dom, err := dflow.Dominance(p)
	if err != nil {
		return err
	}
	live := dflow.Liveness(p)
	if err := dflow.SSA(p, dom, live); err != nil {
		return err
	}

	env := interp.Interpret[interp.KSetValue](p, interp.NewKSet(h.settings.KSetBound))

	type row struct {
		v il.Variable
		k interp.KSetValue
	}
	var rows []row
	for v, k := range env {
		if k.Kind == interp.KSetBottom {
			continue
		}
		rows = append(rows, row{v, k})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].v.Name != rows[j].v.Name {
			return rows[i].v.Name < rows[j].v.Name
		}
		return rows[i].v.Subscript < rows[j].v.Subscript
	})
	for _, r := range rows {
		h.printf("  %-12s %s\n", r.v, r.k)
	}
	return nil
}

func (h *Host) cmdSettingsList(sel cmd.Selection) error {
	h.settings.Display(h.output)
	return nil
}

func (h *Host) cmdSettingsValue(sel cmd.Selection) error {
	if len(sel.Args) < 2 {
		return errors.New("usage: set value <name> <value>")
	}
	key, val := sel.Args[0], sel.Args[1]

	var parsed any
	switch h.settings.Kind(key) {
	case reflect.Bool:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return errors.Errorf("invalid bool %q", val)
		}
		parsed = b
	case reflect.String:
		parsed = val
	default:
		n, err := h.parseAddr(val)
		if err != nil {
			return err
		}
		parsed = n
	}
	return h.settings.Set(key, parsed)
}

func (h *Host) cmdQuit(sel cmd.Selection) error {
	return errQuit
}
