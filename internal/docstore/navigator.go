package docstore

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Navigator hands a URL to something that opens it in place, such as the
// user's browser. It neither reads the response nor controls the saved name.
type Navigator interface {
	Open(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// SystemNavigator opens URLs with the platform's default handler.
type SystemNavigator struct{}

func (SystemNavigator) Open(ctx context.Context, url string) error {
	switch runtime.GOOS {
	case "darwin":
		return runCommand(ctx, "open", url)
	case "windows":
		return runCommand(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return runCommand(ctx, "xdg-open", url)
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not available: %w", name, err)
	}
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	return execCmd.Run()
}
