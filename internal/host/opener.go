package host

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/gen2brain/beeep"
)

const (
	osWindows = "windows"
	osDarwin  = "darwin"
	osLinux   = "linux"
)

// Opener launches target in the user's default handler, usually a browser.
type Opener func(ctx context.Context, target string) error

// Notifier shows a desktop notification.
type Notifier func(title, message string) error

// OpenBrowser opens target with the OS opener. It only starts the opener
// process; it does not wait for the user.
func OpenBrowser(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var cmd string
	var args []string

	switch runtime.GOOS {
	case osWindows:
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", target}
	case osDarwin:
		cmd = "open"
		args = []string{target}
	case osLinux:
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return fmt.Errorf("xdg-open not found in PATH: %w", err)
		}
		cmd = "xdg-open"
		args = []string{target}
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return exec.Command(cmd, args...).Start()
}

// HasGUIEnvironment reports whether a graphical session looks available.
// Only meaningful on Linux; other platforms always report true.
func HasGUIEnvironment() bool {
	if runtime.GOOS != osLinux {
		return true
	}
	for _, envVar := range []string{"DISPLAY", "WAYLAND_DISPLAY", "XDG_SESSION_TYPE"} {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

// DesktopNotify shows a notification through the platform notifier.
func DesktopNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}
