package submitter

// Chain submission boundary
// Transaction construction and signing happen outside this process; the
// scheduler only needs "submit this payload on that chain" with a timeout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"printr-launcher/internal/chains"
	"printr-launcher/internal/infra/config"
	execinfra "printr-launcher/internal/infra/exec"
	"printr-launcher/internal/infra/log"
)

// Result is a successful submission.
type Result struct {
	TxID string
}

// ErrTimeout marks a submission that exceeded its deadline; the scheduler
// records it as error(timeout).
var ErrTimeout = errors.New("submission timed out")

// Submitter signs and submits a token-creation payload on one chain.
type Submitter interface {
	Submit(ctx context.Context, chain chains.Chain, payload json.RawMessage, cred config.ChainConfig) (Result, error)
}

// ExecSubmitter delegates to per-chain Node.js signer scripts
// (<dir>/sign-<chain>.mjs). The payload is passed through a temp file and the
// credentials through the script environment; the script prints the
// transaction id on its last output line.
type ExecSubmitter struct {
	ScriptDir string
	Timeout   time.Duration
}

// NewExecSubmitter builds a submitter using signer scripts under dir.
func NewExecSubmitter(dir string, timeout time.Duration) *ExecSubmitter {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ExecSubmitter{ScriptDir: dir, Timeout: timeout}
}

func (s *ExecSubmitter) Submit(ctx context.Context, chain chains.Chain, payload json.RawMessage, cred config.ChainConfig) (Result, error) {
	if cred.PrivateKey == "" || cred.RPC == "" {
		return Result{}, fmt.Errorf("missing private key or RPC endpoint for %s", chain)
	}

	payloadFile, err := writePayloadFile(chain, payload)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(payloadFile)

	script := filepath.Join(s.ScriptDir, fmt.Sprintf("sign-%s.mjs", chain))
	env := []string{
		"SIGNER_PRIVATE_KEY=" + cred.PrivateKey,
		"SIGNER_RPC_ENDPOINT=" + cred.RPC,
		"SIGNER_CHAIN_ID=" + cred.CAIP2,
	}

	output, err := execinfra.RunNodeScript(ctx, script, s.Timeout, env, payloadFile)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, ErrTimeout
		}
		log.LogError("Signer script failed",
			zap.String("chain", string(chain)),
			zap.String("output", strings.TrimSpace(string(output))),
			zap.Error(err))
		return Result{}, fmt.Errorf("signer script failed on %s: %w", chain, err)
	}

	txID := lastLine(string(output))
	if txID == "" {
		return Result{}, fmt.Errorf("signer script on %s produced no transaction id", chain)
	}

	log.LogInfo("Transaction submitted",
		zap.String("chain", string(chain)),
		zap.String("tx_id", txID))
	return Result{TxID: txID}, nil
}

func writePayloadFile(chain chains.Chain, payload json.RawMessage) (string, error) {
	f, err := os.CreateTemp("", fmt.Sprintf("printr-payload-%s-*.json", chain))
	if err != nil {
		return "", fmt.Errorf("failed to create payload file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write payload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
