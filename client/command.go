package main

import (
	"strings"

	"github.com/pkg/errors"
)

type commandKind int

const (
	cmdSay commandKind = iota
	cmdTo
	cmdTyping
	cmdStopTyping
	cmdWho
	cmdLogout
	cmdQuit
)

type command struct {
	kind commandKind
	arg  string
}

// parseCommand turns one input line into a command. Lines not starting
// with a slash are messages for the current target.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errors.New("empty line")
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSay, arg: line}, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "to", "dm":
		if arg == "" {
			return command{}, errors.Errorf("/%s needs a username", name)
		}
		return command{kind: cmdTo, arg: arg}, nil
	case "typing":
		return command{kind: cmdTyping}, nil
	case "stop":
		return command{kind: cmdStopTyping}, nil
	case "who":
		return command{kind: cmdWho}, nil
	case "logout":
		return command{kind: cmdLogout}, nil
	case "quit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, errors.Errorf("unknown command /%s", name)
}
