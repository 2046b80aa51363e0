package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// readSecret reads a value without echo. It only works on a terminal; in
// non-interactive mode the value must come from a flag or the environment.
func readSecret(rt *Runtime, label, hint string) (string, error) {
	f, ok := rt.In.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("%s is required in non-interactive mode (%s)", strings.ToLower(label), hint)
	}

	fmt.Fprintf(rt.Err, "%s: ", label)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(rt.Err) // New line after password input
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(secret), nil
}

// validateCode accepts a 6-digit TOTP code
func validateCode(input string) error {
	input = strings.TrimSpace(input)
	if len(input) != 6 {
		return errors.New("code must be 6 digits")
	}
	for _, r := range input {
		if r < '0' || r > '9' {
			return errors.New("code must be 6 digits")
		}
	}
	return nil
}

// promptCode asks for a 2FA code
func promptCode(rt *Runtime) (string, error) {
	prompt := promptui.Prompt{
		Label:    "2FA code",
		Validate: validateCode,
		Stdin:    rt.In,
	}
	code, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("2FA verification cancelled: %w", err)
	}
	return strings.TrimSpace(code), nil
}
