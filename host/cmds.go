// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "github.com/beevik/cmd"

var cmds *cmd.Tree

func init() {
	root := cmd.NewTree("panopticon")
	root.AddCommand(cmd.Command{
		Name:        "help",
		Description: "Display help for a command.",
		Usage:       "help [<command>]",
		Data:        (*Host).cmdHelp,
	})
	root.AddCommand(cmd.Command{
		Name:  "load",
		Brief: "Open a program image",
		Description: "Open a program image and disassemble it. PE binaries" +
			" are detected by their header; anything else is treated as a" +
			" raw AVR flash image.",
		Usage: "load <filename>",
		Data:  (*Host).cmdLoad,
	})
	root.AddCommand(cmd.Command{
		Name:        "save",
		Brief:       "Save the session",
		Description: "Write the session, including comments and renames, to disk.",
		Usage:       "save <filename>",
		Data:        (*Host).cmdSave,
	})
	root.AddCommand(cmd.Command{
		Name:        "open",
		Brief:       "Open a saved session",
		Description: "Read a previously saved session back from disk.",
		Usage:       "open <filename>",
		Data:        (*Host).cmdOpen,
	})
	root.AddCommand(cmd.Command{
		Name:  "regions",
		Brief: "List the regions graph",
		Description: "Display the projection of the regions graph: the" +
			" non-overlapping bounds covering the root region.",
		Usage: "regions",
		Data:  (*Host).cmdRegions,
	})
	root.AddCommand(cmd.Command{
		Name:        "procedures",
		Brief:       "List recovered procedures",
		Description: "Display every recovered procedure with its uuid, entry and size.",
		Usage:       "procedures",
		Data:        (*Host).cmdProcedures,
	})
	root.AddCommand(cmd.Command{
		Name:  "list",
		Brief: "List a procedure's basic blocks",
		Description: "Display the basic blocks and mnemonics of the active" +
			" procedure (see the activeproc setting).",
		Usage: "list [<uuid>]",
		Data:  (*Host).cmdList,
	})
	root.AddCommand(cmd.Command{
		Name:        "comment",
		Brief:       "Annotate an address",
		Description: "Attach a comment to an address in the active region.",
		Usage:       "comment <address> <text>",
		Data:        (*Host).cmdComment,
	})
	root.AddCommand(cmd.Command{
		Name:        "rename",
		Brief:       "Rename a procedure",
		Description: "Set the human-readable name of a procedure.",
		Usage:       "rename <uuid> <name>",
		Data:        (*Host).cmdRename,
	})
	root.AddCommand(cmd.Command{
		Name:        "setvalue",
		Brief:       "Pin a variable's value",
		Description: "Pin a variable of a procedure to a fixed value.",
		Usage:       "setvalue <uuid> <variable> <value>",
		Data:        (*Host).cmdSetValue,
	})
	root.AddCommand(cmd.Command{
		Name:        "undo",
		Brief:       "Undo the last command",
		Description: "Revert the most recent comment, rename or setvalue.",
		Usage:       "undo",
		Data:        (*Host).cmdUndo,
	})
	root.AddCommand(cmd.Command{
		Name:        "redo",
		Brief:       "Redo an undone command",
		Description: "Reapply the most recently undone command.",
		Usage:       "redo",
		Data:        (*Host).cmdRedo,
	})
	root.AddCommand(cmd.Command{
		Name:  "analyze",
		Brief: "Run the kset analysis",
		Description: "Run SSA construction and the k-set abstract" +
			" interpretation over the active procedure and display the" +
			" non-bottom variable values.",
		Usage: "analyze [<uuid>]",
		Data:  (*Host).cmdAnalyze,
	})

	// Settings commands
	set := cmd.NewTree("Settings")
	root.AddCommand(cmd.Command{
		Name:    "set",
		Brief:   "Settings commands",
		Subtree: set,
	})
	set.AddCommand(cmd.Command{
		Name:        "list",
		Brief:       "List settings",
		Description: "Display the current settings.",
		Usage:       "set list",
		Data:        (*Host).cmdSettingsList,
	})
	set.AddCommand(cmd.Command{
		Name:        "value",
		Brief:       "Change a setting",
		Description: "Set a setting to a new value.",
		Usage:       "set value <name> <value>",
		Data:        (*Host).cmdSettingsValue,
	})

	root.AddCommand(cmd.Command{
		Name:        "quit",
		Brief:       "Quit the shell",
		Description: "Exit the interactive shell.",
		Usage:       "quit",
		Data:        (*Host).cmdQuit,
	})

	cmds = root
}
