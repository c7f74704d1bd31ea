package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Converter turns an export page into DOCX bytes.
type Converter interface {
	ConvertDOCX(ctx context.Context, html string) ([]byte, error)
}

// Pandoc converts with the pandoc binary at Path, or "pandoc" on PATH.
type Pandoc struct {
	Path string
}

func (p Pandoc) ConvertDOCX(ctx context.Context, html string) ([]byte, error) {
	bin := p.Path
	if bin == "" {
		bin = "pandoc"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-f", "html",
		"-t", "docx",
		"--standalone",
		"-o", "-",
	)
	cmd.Stdin = strings.NewReader(html)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pandoc failed: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("pandoc execution failed: %w", err)
	}
	return output, nil
}
