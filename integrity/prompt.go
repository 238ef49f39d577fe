package integrity

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// PromptPassphrase reads a passphrase from stdin without echoing it, when
// stdin is a terminal, falling back to a plain line read otherwise (e.g.
// piped input in scripted verification).
func PromptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("integrity: read passphrase: %w", err)
		}
		return string(raw), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("integrity: read passphrase: %w", err)
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}
