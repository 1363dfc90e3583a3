package screener

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Page is the handle an OnLoad callback gets for the page being captured.
type Page interface {
	// Eval runs a JavaScript function expression in the page and waits for
	// a returned promise to settle.
	Eval(ctx context.Context, fn string) error
}

// OnLoad runs after navigation and before the capture wait.
type OnLoad func(ctx context.Context, page Page) error

// Script returns an OnLoad that evaluates fn, a function expression such as
// `() => document.querySelector('#cookies')?.remove()`.
func Script(fn string) OnLoad {
	fn = strings.TrimSpace(fn)
	return func(ctx context.Context, page Page) error {
		return page.Eval(ctx, fn)
	}
}

// LoadOnLoadScript reads a script file and returns it as an OnLoad.
func LoadOnLoadScript(path string) (OnLoad, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return Script(string(data)), nil
}
