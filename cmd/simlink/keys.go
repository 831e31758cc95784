package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/wro-sim/simlink/internal/controller"
)

var keyActions = map[string]controller.Action{
	"w":          controller.ActionAccelerate,
	"s":          controller.ActionBrake,
	"a":          controller.ActionLeft,
	"d":          controller.ActionRight,
	"accelerate": controller.ActionAccelerate,
	"brake":      controller.ActionBrake,
	"left":       controller.ActionLeft,
	"right":      controller.ActionRight,
}

// readKeys feeds the manual controller from line-oriented input. Each token
// is an action name or w/a/s/d; "+" presses it, "-" releases it and a bare
// token toggles it. Unknown tokens are logged and skipped. It returns when r
// is exhausted or fails.
func readKeys(r io.Reader, keys *controller.KeyState, logger *slog.Logger) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		for _, tok := range strings.Fields(strings.ToLower(sc.Text())) {
			if err := applyKey(tok, keys); err != nil {
				logger.Warn("Ignoring key", "error", err)
			}
		}
	}
	return sc.Err()
}

func applyKey(tok string, keys *controller.KeyState) error {
	op := byte(0)
	if tok[0] == '+' || tok[0] == '-' {
		op, tok = tok[0], tok[1:]
	}
	a, ok := keyActions[tok]
	if !ok {
		return fmt.Errorf("unknown key %q", tok)
	}
	switch {
	case op == '+', op == 0 && !keys.Pressed(a):
		keys.Press(a)
	default:
		keys.Release(a)
	}
	return nil
}
