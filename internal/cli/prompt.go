package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrEmptyPassword = errors.New("empty password")

// PromptPassword asks for the password of user. It is a variable so tests
// can replace the interactive prompt.
var PromptPassword = func(w io.Writer, user string) (string, error) {
	return readPassword(os.Stdin, w, user)
}

// readPassword reads without echo when in is a terminal, and a single line
// otherwise.
func readPassword(in *os.File, w io.Writer, user string) (string, error) {
	fmt.Fprintf(w, "Enter password for user '%s': ", user)

	var password string
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password = string(b)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if password == "" {
		return "", ErrEmptyPassword
	}
	return password, nil
}
