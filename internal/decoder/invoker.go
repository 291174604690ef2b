package decoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// Request is one decode attempt: an aligned payload plus the canonical
// copybook describing its layout.
type Request struct {
	Copybook     string
	Data         []byte
	RecordLength int
	Encoding     models.Encoding
}

// Invoker runs the external fixed-width decoder over an aligned payload.
type Invoker interface {
	Invoke(ctx context.Context, req Request) ([]models.DecodedRecord, error)
}

// SubprocessInvoker shells out to the decoder binary. The payload and
// copybook are staged in a per-call temp directory so concurrent requests
// never share decoder working state.
type SubprocessInvoker struct {
	command string
	args    []string
	timeout time.Duration
}

func NewSubprocessInvoker(command string, args []string, timeout time.Duration) *SubprocessInvoker {
	return &SubprocessInvoker{command: command, args: args, timeout: timeout}
}

func (s *SubprocessInvoker) Invoke(ctx context.Context, req Request) ([]models.DecodedRecord, error) {
	workDir, err := os.MkdirTemp("", "normalizer-decode-*")
	if err != nil {
		return nil, fmt.Errorf("error creating decoder work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	copybookPath := filepath.Join(workDir, "layout.cpy")
	extractPath := filepath.Join(workDir, "extract.dat")
	if err := os.WriteFile(copybookPath, []byte(req.Copybook), 0o600); err != nil {
		return nil, fmt.Errorf("error staging copybook: %w", err)
	}
	if err := os.WriteFile(extractPath, req.Data, 0o600); err != nil {
		return nil, fmt.Errorf("error staging extract: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := append([]string{}, s.args...)
	args = append(args,
		"--copybook", copybookPath,
		"--data", extractPath,
		"--record-length", strconv.Itoa(req.RecordLength),
		"--encoding", strings.ToLower(string(req.Encoding)),
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, s.command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &TimeoutError{After: s.timeout}
	}
	if runErr != nil {
		output := strings.TrimSpace(stderr.String())
		if output == "" {
			output = strings.TrimSpace(stdout.String())
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &DecodeError{Output: output, ExitCode: exitCode}
	}

	return parseRecords(stdout.Bytes())
}

// parseRecords reads the decoder's stdout as JSON lines, one record per
// line. Blank lines are tolerated; anything else malformed is a failure
// of the decoder contract, not of the input data.
func parseRecords(output []byte) ([]models.DecodedRecord, error) {
	var records []models.DecodedRecord
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec models.DecodedRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("error parsing decoder output line %q: %w", string(line), err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading decoder output: %w", err)
	}
	return records, nil
}
