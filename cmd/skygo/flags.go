package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

var _ pflag.Value = (*webPortFlag)(nil)

// webPortFlag implements pflag.Value for --web: 0 = disabled, --web or
// --web= gives the default port, --web=8980 a custom one.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) Type() string { return "port" }

func (w *webPortFlag) port() int { return w.val }
