package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// prompt prints label and reads one trimmed line. EOF after partial input
// returns the partial line.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label+": ")
	return readLine(a.in)
}

// promptSecret prints label and reads a line without echo.
func (a *app) promptSecret(label string) (string, error) {
	fmt.Fprint(a.out, label+": ")
	secret, err := a.readSecret()
	fmt.Fprintln(a.out)
	return secret, err
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// terminalSecretReader hides input when in is a terminal and falls back to
// plain line reads otherwise, e.g. when input is piped.
func terminalSecretReader(in io.Reader, buffered *bufio.Reader) func() (string, error) {
	file, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return func() (string, error) {
			return readLine(buffered)
		}
	}
	return func() (string, error) {
		secret, err := readPassword(int(file.Fd()))
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}
}
