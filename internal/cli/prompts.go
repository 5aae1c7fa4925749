package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt functions are variables so tests can script the answers.
var (
	promptSecretFn  = promptSecret
	promptConfirmFn = promptConfirm
)

// pinLayout is how the positions typed at a PIN prompt map onto the
// scrambled keypad the device shows.
const pinLayout = `The device shows a scrambled keypad. Type the position of each PIN
digit as it appears on the device, using this layout:

    7 8 9
    4 5 6
    1 2 3
`

// promptSecret reads one line without echo. The device ciphers make the
// input meaningless without the screen, but it is still kept off the
// terminal history.
func promptSecret(prompt string) (string, error) {
	out(os.Stderr, "%s", prompt)

	fd := int(os.Stdin.Fd()) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.ReadPassword
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	secret, err := term.ReadPassword(fd)
	outln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(secret), nil
}

// promptConfirm asks a yes/no question on stderr.
func promptConfirm(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
