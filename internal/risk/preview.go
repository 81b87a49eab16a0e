// SPDX-License-Identifier: AGPL-3.0-or-later
package risk

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

const maxAffectedPaths = 50

// Preview describes what a command would do, computed statically from the
// command text. Previews never touch the host; they exist so a human can see
// the effects before anything executes.
type Preview struct {
	Command       string   `json:"command"`
	Description   string   `json:"description"`
	IsDestructive bool     `json:"is_destructive"`
	AffectedPaths []string `json:"affected_paths,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Reversible    bool     `json:"reversible"`
	UndoCommand   string   `json:"undo_command,omitempty"`
}

// BuildPreview analyzes a command and synthesizes an undo command where one
// can be derived (mv, service stop/disable/mask). Destructive commands never
// get an undo: a deletion cannot be reversed without a backup.
func BuildPreview(command string) Preview {
	cls := Classify(command)
	p := Preview{
		Command:       command,
		Description:   "Execute command",
		IsDestructive: cls.IsDestructive,
		Warnings:      append([]string(nil), cls.Reasons...),
		Reversible:    !cls.IsDestructive,
	}

	tokens, err := shellquote.Split(command)
	if err != nil || len(tokens) == 0 {
		return p
	}
	if tokens[0] == "sudo" && len(tokens) > 1 {
		tokens = tokens[1:]
	}
	base := trimPath(tokens[0])

	switch {
	case base == "rm":
		p.Description = "Delete files/directories"
		p.IsDestructive = true
		p.Reversible = false
		p.UndoCommand = ""
		flags, paths := splitArgs(tokens[1:])
		p.AffectedPaths = capPaths(paths)
		if hasRecursiveFlag(flags) {
			p.Warnings = append(p.Warnings, "Recursive deletion - will delete entire directory trees")
		}
		if hasFlagLetter(flags, 'f') {
			p.Warnings = append(p.Warnings, "Force mode - will not prompt for confirmation")
		}

	case base == "mv" && len(tokens) >= 3:
		_, operands := splitArgs(tokens[1:])
		if len(operands) >= 2 {
			dest := operands[len(operands)-1]
			sources := operands[:len(operands)-1]
			p.Description = "Move/rename to " + dest
			p.AffectedPaths = capPaths(sources)
			if !p.IsDestructive && len(sources) == 1 {
				p.Reversible = true
				p.UndoCommand = shellquote.Join("mv", dest, sources[0])
			}
		}

	case packageManagers[base]:
		if isPackageMutation(base, tokens[1:]) {
			p.Description = "Package installation/removal"
			p.Warnings = append(p.Warnings, "Package operations modify system-wide software")
		}

	case base == "systemctl" || base == "service":
		action, unit := serviceAction(base, tokens[1:])
		if undo, ok := serviceUndoActions[action]; ok && unit != "" {
			p.Description = "Stop/disable system service"
			p.Warnings = append(p.Warnings, "Stopping services may affect system functionality")
			if !p.IsDestructive {
				p.Reversible = true
				if base == "systemctl" {
					p.UndoCommand = shellquote.Join("systemctl", undo, unit)
				} else {
					p.UndoCommand = shellquote.Join("service", unit, undo)
				}
			}
		}
	}

	return p
}

var serviceUndoActions = map[string]string{
	"stop":    "start",
	"disable": "enable",
	"mask":    "unmask",
}

// serviceAction extracts the verb and unit from a systemctl/service
// invocation. The two tools put the verb in opposite positions.
func serviceAction(base string, args []string) (action, unit string) {
	_, operands := splitArgs(args)
	if len(operands) < 2 {
		return "", ""
	}
	if base == "service" {
		return operands[1], operands[0]
	}
	return operands[0], operands[1]
}

func isPackageMutation(base string, args []string) bool {
	if base == "pacman" {
		for _, arg := range args {
			if strings.HasPrefix(arg, "-S") || strings.HasPrefix(arg, "-R") {
				return true
			}
		}
		return false
	}
	for _, arg := range args {
		switch arg {
		case "install", "remove", "purge", "autoremove", "uninstall":
			return true
		}
	}
	return false
}

func splitArgs(args []string) (flags, operands []string) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
		} else {
			operands = append(operands, arg)
		}
	}
	return flags, operands
}

func hasRecursiveFlag(flags []string) bool {
	for _, f := range flags {
		if f == "--recursive" {
			return true
		}
		if !strings.HasPrefix(f, "--") && (strings.ContainsRune(f, 'r') || strings.ContainsRune(f, 'R')) {
			return true
		}
	}
	return false
}

func hasFlagLetter(flags []string, letter rune) bool {
	for _, f := range flags {
		if !strings.HasPrefix(f, "--") && strings.ContainsRune(f, letter) {
			return true
		}
	}
	return false
}

func capPaths(paths []string) []string {
	if len(paths) > maxAffectedPaths {
		paths = paths[:maxAffectedPaths]
	}
	return append([]string(nil), paths...)
}
