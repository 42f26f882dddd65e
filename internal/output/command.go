package output

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runCommandWithInput executes argv and writes input to its stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("run %s: %w (%s)", argv[0], err, detail)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
