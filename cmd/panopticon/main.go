// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/das-labor/panopticon/avr"
	"github.com/das-labor/panopticon/host"
	"github.com/das-labor/panopticon/proc"
	"github.com/das-labor/panopticon/region"
	"github.com/das-labor/panopticon/session"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "panopticon",
		Short: "Panopticon — disassemble program images into an explorable IR",
	}

	var arch string
	var offset uint64
	var verbose bool

	disasmCmd := &cobra.Command{
		Use:   "disasm <image>",
		Short: "Disassemble an image and dump the recovered procedures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				log.SetLevel(log.WarnLevel)
			}

			var (
				s   *session.Session
				err error
			)
			switch arch {
			case "avr":
				if offset == 0 {
					s, err = session.OpenRaw(args[0])
				} else {
					s, err = openRawAt(args[0], offset)
				}
			case "pe", "x86", "amd64":
				s, err = session.OpenPE(args[0])
			default:
				return fmt.Errorf("unknown architecture %q", arch)
			}
			if err != nil {
				return err
			}

			for _, prog := range s.Programs {
				fmt.Printf("program %s (%s)\n", prog.Name, prog.Region)
				for _, p := range prog.Procedures() {
					dumpProcedure(p)
				}
			}
			return nil
		},
	}
	disasmCmd.Flags().StringVarP(&arch, "arch", "a", "avr", "architecture: avr, pe")
	disasmCmd.Flags().Uint64VarP(&offset, "offset", "o", 0, "entry offset for raw images")
	disasmCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log disassembly progress")
	rootCmd.AddCommand(disasmCmd)

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			h := host.New()
			for _, a := range args {
				if err := preload(h, a); err != nil {
					return err
				}
			}
			h.RunCommands(os.Stdin, os.Stdout, host.Interactive())
			return nil
		},
	}
	rootCmd.AddCommand(shellCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openRawAt(path string, offset uint64) (*session.Session, error) {
	r, err := region.MapRegion("flash", path)
	if err != nil {
		return nil, err
	}
	regs := region.NewRegions()
	regs.InsertNode(r)

	s := session.New(regs)
	data := r.Read()
	prog, err := avr.Disassemble(avr.Mega128(), nil, data, region.Ref{Region: "flash", Offset: offset})
	if err != nil {
		return nil, err
	}
	if prog != nil {
		s.AddProgram(prog)
	}
	return s, nil
}

func preload(h *host.Host, path string) error {
	// feed the shell a load command before going interactive
	h.RunCommands(strings.NewReader("load "+path+"\n"), os.Stdout, false)
	return nil
}

func dumpProcedure(p *proc.Procedure) {
	fmt.Printf("  %s:\n", p.Name)
	for _, v := range p.RevPostorder() {
		bb := p.CFG.Node(v).Block
		fmt.Printf("    block [%#x, %#x):\n", bb.Area().Lower, bb.Area().Upper)
		for _, m := range bb.Mnemonics() {
			fmt.Printf("      %#08x  %s\n", m.Area.Lower, m.String())
		}
	}
}
