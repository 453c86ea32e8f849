package secgate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/sessionkit/internal/ctxlog"
)

// FileCopier performs path-validated copies, symlinks, and writes into a
// session directory. Every request validates both endpoints before any
// filesystem mutation; permission bits are applied after the write
// completes so partial content is never briefly readable under looser
// permissions.
type FileCopier struct {
	paths  *PathValidator
	cipher *ArtifactCipher
}

// NewFileCopier builds a copier around the given validator and cipher. The
// cipher may be nil if no rule uses encryption; an encrypting request
// against a nil cipher fails.
func NewFileCopier(paths *PathValidator, cipher *ArtifactCipher) *FileCopier {
	return &FileCopier{paths: paths, cipher: cipher}
}

// CopyRequest describes one gated file materialization.
type CopyRequest struct {
	// Source is relative to ProjectRoot and must exist.
	Source      string
	ProjectRoot string
	// Destination is relative to SessionRoot.
	Destination string
	SessionRoot string
	// Symlink links the destination to the source instead of copying.
	Symlink bool
	// Mode is applied to the destination after the write. Ignored for
	// symlinks.
	Mode os.FileMode
	// Encrypt seals the payload before writing and marks the outcome
	// encrypted.
	Encrypt bool
}

// CopyOutcome reports a completed materialization.
type CopyOutcome struct {
	SourcePath      string
	DestinationPath string
	Checksum        string
	Encrypted       bool
}

// Copy validates both paths, then copies or symlinks source to destination.
// It returns before any mutation if validation fails.
func (c *FileCopier) Copy(ctx context.Context, req CopyRequest) (*CopyOutcome, error) {
	logger := ctxlog.FromContext(ctx)

	src, err := c.paths.Validate(req.Source, req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	dst, err := c.paths.Validate(req.Destination, req.SessionRoot)
	if err != nil {
		return nil, err
	}

	if req.Symlink {
		if req.Encrypt {
			return nil, fmt.Errorf("cannot encrypt a symlinked file: %s", req.Source)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("creating destination directory: %w", err)
		}
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("replacing existing destination %s: %w", dst, err)
		}
		if err := os.Symlink(src, dst); err != nil {
			return nil, fmt.Errorf("symlinking %s -> %s: %w", dst, src, err)
		}
		sum, err := checksumFile(src)
		if err != nil {
			return nil, err
		}
		logger.Debug("Symlinked file into session.", "source", src, "destination", dst)
		return &CopyOutcome{SourcePath: src, DestinationPath: dst, Checksum: sum}, nil
	}

	payload, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", src, err)
	}

	if req.Encrypt {
		if c.cipher == nil {
			return nil, fmt.Errorf("encryption requested for %s but no cipher is configured", req.Source)
		}
		payload, err = c.cipher.Seal(payload)
		if err != nil {
			return nil, fmt.Errorf("encrypting %s: %w", req.Source, err)
		}
	}

	outcome, err := c.writePayload(dst, payload, req.Mode)
	if err != nil {
		return nil, err
	}
	outcome.SourcePath = src
	outcome.Encrypted = req.Encrypt
	logger.Debug("Copied file into session.", "source", src, "destination", dst, "encrypted", req.Encrypt)
	return outcome, nil
}

// Write materializes already-produced content (e.g. a rendered template)
// at a session-relative destination through the same validated path.
func (c *FileCopier) Write(ctx context.Context, destination, sessionRoot string, content []byte, mode os.FileMode) (*CopyOutcome, error) {
	dst, err := c.paths.Validate(destination, sessionRoot)
	if err != nil {
		return nil, err
	}
	outcome, err := c.writePayload(dst, content, mode)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Wrote rendered content into session.", "destination", dst)
	return outcome, nil
}

// writePayload writes restrictively first and widens to the requested mode
// only after the content is fully on disk.
func (c *FileCopier) writePayload(dst string, payload []byte, mode os.FileMode) (*CopyOutcome, error) {
	if mode == 0 {
		mode = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("creating destination directory: %w", err)
	}
	if err := os.WriteFile(dst, payload, 0o600); err != nil {
		return nil, fmt.Errorf("writing %s: %w", dst, err)
	}
	if err := os.Chmod(dst, mode); err != nil {
		return nil, fmt.Errorf("setting permissions on %s: %w", dst, err)
	}

	sum := sha256.Sum256(payload)
	return &CopyOutcome{
		DestinationPath: dst,
		Checksum:        "sha256:" + hex.EncodeToString(sum[:]),
	}, nil
}

func checksumFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("checksumming %s: %w", path, err)
	}
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
