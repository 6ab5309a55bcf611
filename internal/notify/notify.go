// Package notify shows desktop notifications.
package notify

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnsupported is returned where no notification command is known.
var ErrUnsupported = errors.New("desktop notifications not supported on " + runtime.GOOS)

// Send shows a notification through osascript on macOS and notify-send
// elsewhere.
func Send(title, message string) error {
	name, args, err := command(runtime.GOOS, title, message)
	if err != nil {
		return err
	}
	if out, err := exec.Command(name, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func command(goos, title, message string) (string, []string, error) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf(
			`display notification %q with title %q sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		return "osascript", []string{"-e", script}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", []string{"--app-name=tasktxt", title, message}, nil
	default:
		return "", nil, ErrUnsupported
	}
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
