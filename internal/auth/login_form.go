// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package auth

import (
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// Hidden inputs of the upstream login page.
const (
	fieldReturnURL         = "ReturnUrl"
	fieldVerificationToken = "__RequestVerificationToken"
)

// loginForm holds the hidden inputs the login POST must echo back.
type loginForm struct {
	ReturnURL         string
	VerificationToken string
}

// parseLoginForm reads the authorize page and extracts the hidden inputs.
// The first input with a given name wins.
func parseLoginForm(r io.Reader) (loginForm, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return loginForm{}, fmt.Errorf("parse login page: %w", err)
	}

	inputs := make(map[string]string)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			var name, value string
			hasValue := false
			for _, a := range n.Attr {
				switch a.Key {
				case "name":
					name = a.Val
				case "value":
					value = a.Val
					hasValue = true
				}
			}
			if _, seen := inputs[name]; name != "" && hasValue && !seen {
				inputs[name] = value
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	form := loginForm{
		ReturnURL:         inputs[fieldReturnURL],
		VerificationToken: inputs[fieldVerificationToken],
	}
	if form.ReturnURL == "" {
		return form, fmt.Errorf("%w: %s", ErrMissingFormField, fieldReturnURL)
	}
	if form.VerificationToken == "" {
		return form, fmt.Errorf("%w: %s", ErrMissingFormField, fieldVerificationToken)
	}
	return form, nil
}
