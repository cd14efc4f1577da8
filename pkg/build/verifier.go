// Package build verifies the cumulative implementation set by overlaying it
// on a project skeleton and running the external build toolchain.
package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"forgeloop/pkg/logx"
	"forgeloop/pkg/plan"
)

// Verifier runs install-then-build checks in disposable workspaces.
type Verifier struct {
	skeletonDir string
	tool        string
	logger      *logx.Logger
}

// NewVerifier creates a verifier. tool is the build toolchain binary (npm);
// it is injectable so degraded mode is testable.
func NewVerifier(skeletonDir, tool string, logger *logx.Logger) *Verifier {
	if tool == "" {
		tool = "npm"
	}
	if logger == nil {
		logger = logx.NewLogger("build")
	}
	return &Verifier{skeletonDir: skeletonDir, tool: tool, logger: logger}
}

// Verify materializes the skeleton plus implementations into a temp
// workspace and runs install then build. A missing toolchain is degraded
// mode, not failure: it returns passed=true with a skip diagnostic. Either
// step exiting non-zero fails with the combined output.
func (v *Verifier) Verify(ctx context.Context, filePlans map[string]plan.FilePlan, implementations map[string]string) (bool, string) {
	if _, err := exec.LookPath(v.tool); err != nil {
		return true, fmt.Sprintf("%s not available in environment; build check skipped.", v.tool)
	}

	if _, err := os.Stat(v.skeletonDir); err != nil {
		return false, fmt.Sprintf("skeleton source missing at %s", v.skeletonDir)
	}

	workspace, err := os.MkdirTemp("", "forgeloop-verify-*")
	if err != nil {
		return false, fmt.Sprintf("failed to create workspace: %v", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			v.logger.Warn("failed to clean workspace %s: %v", workspace, rmErr)
		}
	}()

	project := filepath.Join(workspace, "project")
	if err := CopySkeleton(v.skeletonDir, project); err != nil {
		return false, fmt.Sprintf("skeleton copy failed: %v", err)
	}

	for filename, content := range implementations {
		fp, ok := filePlans[filename]
		if !ok {
			return false, fmt.Sprintf("no plan info for %s", filename)
		}
		target := filepath.Join(project, fp.Path, filename)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return false, fmt.Sprintf("failed to create %s: %v", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return false, fmt.Sprintf("failed to write %s: %v", target, err)
		}
	}

	v.logger.Debug("running %s install in %s", v.tool, project)
	if out, err := v.run(ctx, project, "install", "--silent"); err != nil {
		return false, out
	}

	v.logger.Debug("running %s run build in %s", v.tool, project)
	out, err := v.run(ctx, project, "run", "build")
	if err != nil {
		return false, out
	}
	return true, out
}

// run executes one toolchain step with captured combined output.
func (v *Verifier) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, v.tool, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text == "" {
			text = err.Error()
		}
		return text, fmt.Errorf("%s %s failed: %w", v.tool, strings.Join(args, " "), err)
	}
	return text, nil
}
