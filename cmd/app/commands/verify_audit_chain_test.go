package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	auditDomain "github.com/keyfold/keyfold/internal/audit/domain"
)

// stubVerifier returns canned reports for command-level tests.
type stubVerifier struct {
	report *auditDomain.IntegrityReport
	err    error

	verifyAllCalled bool
	from, to        uint64
}

func (s *stubVerifier) VerifyChainIntegrity(ctx context.Context, from, to uint64) (*auditDomain.IntegrityReport, error) {
	s.from, s.to = from, to
	return s.report, s.err
}

func (s *stubVerifier) VerifyAll(ctx context.Context) (*auditDomain.IntegrityReport, error) {
	s.verifyAllCalled = true
	return s.report, s.err
}

func TestRunVerifyAuditChain(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cleanReport := &auditDomain.IntegrityReport{
		From:         0,
		To:           10,
		TotalChecked: 10,
	}

	t.Run("success-text", func(t *testing.T) {
		verifier := &stubVerifier{report: cleanReport}

		var out bytes.Buffer
		err := RunVerifyAuditChain(ctx, verifier, logger, &out, 0, 10, "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "Audit Chain Integrity Verification")
		require.Contains(t, out.String(), "Status: PASSED")
		require.Equal(t, uint64(0), verifier.from)
		require.Equal(t, uint64(10), verifier.to)
	})

	t.Run("success-json", func(t *testing.T) {
		verifier := &stubVerifier{report: cleanReport}

		var out bytes.Buffer
		err := RunVerifyAuditChain(ctx, verifier, logger, &out, 0, 10, "json")
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(out.Bytes(), &result)
		require.NoError(t, err)
		require.Equal(t, float64(10), result["total_checked"])
		require.Equal(t, true, result["passed"])
	})

	t.Run("full-chain-when-to-omitted", func(t *testing.T) {
		verifier := &stubVerifier{report: cleanReport}

		var out bytes.Buffer
		err := RunVerifyAuditChain(ctx, verifier, logger, &out, 0, -1, "text")
		require.NoError(t, err)
		require.True(t, verifier.verifyAllCalled)
	})

	t.Run("invalid-range", func(t *testing.T) {
		err := RunVerifyAuditChain(ctx, nil, logger, nil, 5, 5, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "to must be greater than from")

		err = RunVerifyAuditChain(ctx, nil, logger, nil, -1, 5, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "from must not be negative")
	})

	t.Run("integrity-failure", func(t *testing.T) {
		verifier := &stubVerifier{report: &auditDomain.IntegrityReport{
			From:         0,
			To:           10,
			TotalChecked: 10,
			Violations: []auditDomain.Violation{
				{SequenceIndex: 4, Reason: "entry hash mismatch", Expected: "aa", Found: "bb"},
				{SequenceIndex: 5, Reason: "previous hash mismatch", Expected: "cc", Found: "dd"},
			},
		}}

		var out bytes.Buffer
		err := RunVerifyAuditChain(ctx, verifier, logger, &out, 0, 10, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "integrity check failed: 2 violation(s)")
		require.Contains(t, out.String(), "sequence 4: entry hash mismatch")
		require.Contains(t, out.String(), "Status: FAILED")
	})

	t.Run("verifier-error", func(t *testing.T) {
		verifier := &stubVerifier{err: errors.New("connection refused")}

		err := RunVerifyAuditChain(ctx, verifier, logger, io.Discard, 0, 10, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to verify audit chain")
	})
}
