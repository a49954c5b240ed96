// Package fsutil provides filesystem utilities.
package fsutil

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"sophys.sh/cli/pkg/env"
)

// GetHome finds the home directory of a specified user. When given an empty
// string, it finds the home directory of the current user.
func GetHome(uname string) (string, error) {
	if uname == "" {
		// Use $HOME as override if we are looking for the home of the current
		// user.
		if home := os.Getenv(env.HOME); home != "" {
			return home, nil
		}
	}

	var u *user.User
	var err error
	if uname == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(uname)
	}
	if err != nil {
		return "", fmt.Errorf("can't resolve ~%s: %w", uname, err)
	}
	return strings.TrimSuffix(u.HomeDir, "/"), nil
}

// StateDir returns the directory where sophys-cli keeps its state, such as
// the command history database. It is $XDG_STATE_HOME/sophys-cli, falling
// back to ~/.local/state/sophys-cli. The directory is created if needed.
func StateDir() (string, error) {
	base := os.Getenv(env.XDG_STATE_HOME)
	if base == "" {
		home, err := GetHome("")
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(base, "sophys-cli")
	return dir, os.MkdirAll(dir, 0700)
}

// UserName returns the name of the current user, or "?".
func UserName() string {
	if name := os.Getenv(env.USER); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "?"
}
