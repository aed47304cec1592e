// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when asked to prompt on something other than a
// terminal.
var ErrNotTerminal = errors.New("passphrase prompt requires a terminal")

// ProvidePrivPassphrase is used to prompt for the private passphrase the
// wallet is unlocked with before signing.  fd must refer to a terminal; the
// prompt is written to out.  Empty input is rejected and asked for again.
func ProvidePrivPassphrase(fd int, out io.Writer) (string, error) {
	if !term.IsTerminal(fd) {
		return "", ErrNotTerminal
	}

	prompt := "Enter the private passphrase of your wallet: "
	for {
		fmt.Fprint(out, prompt)
		pass, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		fmt.Fprint(out, "\n")
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			continue
		}

		return string(pass), nil
	}
}
