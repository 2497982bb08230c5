package cqlerr_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cqlwire/cqlwire/cqlerr"
)

func TestKindPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		pred func(error) bool
	}{
		{cqlerr.New(cqlerr.BadData, "short buffer"), cqlerr.IsBadData},
		{cqlerr.New(cqlerr.ProtocolViolation, "bad version"), cqlerr.IsProtocolViolation},
		{cqlerr.New(cqlerr.ConnectionClosed, "gone"), cqlerr.IsConnectionClosed},
		{cqlerr.New(cqlerr.HandshakeTimeout, "slow"), cqlerr.IsHandshakeTimeout},
		{cqlerr.Server(0x2200, "invalid", nil), cqlerr.IsServerError},
		{cqlerr.New(cqlerr.BadParameter, "arity"), cqlerr.IsBadParameter},
		{cqlerr.New(cqlerr.Unsupported, "batch"), cqlerr.IsUnsupported},
	}
	for _, tc := range tests {
		if !tc.pred(tc.err) {
			t.Errorf("%v does not satisfy its own predicate", tc.err)
		}
	}
	if cqlerr.IsBadData(cqlerr.New(cqlerr.Unsupported, "x")) {
		t.Error("predicate matched a different kind")
	}
	if cqlerr.IsBadData(io.EOF) {
		t.Error("predicate matched a foreign error")
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	t.Parallel()

	inner := cqlerr.New(cqlerr.ConnectionClosed, "transport gone")
	outer := fmt.Errorf("conn: submit: %w", inner)
	if !cqlerr.IsConnectionClosed(outer) {
		t.Error("kind lost through fmt.Errorf wrapping")
	}
	if cqlerr.KindOf(outer) != cqlerr.ConnectionClosed {
		t.Errorf("KindOf: %v", cqlerr.KindOf(outer))
	}
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	err := cqlerr.Wrap(cqlerr.ConnectionClosed, io.ErrUnexpectedEOF, "frame: read header")
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("cause not reachable through Unwrap")
	}
	if !cqlerr.IsConnectionClosed(err) {
		t.Error("kind missing")
	}
}

func TestServerErrorMessage(t *testing.T) {
	t.Parallel()

	err := cqlerr.Server(0x2200, "unconfigured table", map[string]string{"keyspace": "ks"})
	if err.Code != 0x2200 {
		t.Errorf("code: %#x", err.Code)
	}
	msg := err.Error()
	if !strings.Contains(msg, "0x2200") || !strings.Contains(msg, "unconfigured table") {
		t.Errorf("message: %q", msg)
	}
}

func TestKindOfForeignError(t *testing.T) {
	t.Parallel()

	if k := cqlerr.KindOf(io.EOF); k != 0 {
		t.Errorf("foreign error has kind %v", k)
	}
}
