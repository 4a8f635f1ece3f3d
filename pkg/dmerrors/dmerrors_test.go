package dmerrors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"configuration", &ConfigurationError{Op: "register", Err: io.EOF}, IsConfiguration},
		{"transport", &TransportError{Op: "register", Err: io.EOF}, IsTransport},
		{"protocol", &ProtocolError{Op: "register", StatusCode: 500, Err: io.EOF}, IsProtocol},
		{"storage", &StorageError{Op: "store dm token", Err: io.EOF}, IsStorage},
		{"validation", &ValidationError{Op: "register", Err: io.EOF}, IsValidation},
	}

	all := []func(error) bool{IsConfiguration, IsTransport, IsProtocol, IsStorage, IsValidation}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", c.err)
			require.True(t, c.check(wrapped))
			require.ErrorIs(t, wrapped, io.EOF)

			matches := 0
			for _, fn := range all {
				if fn(wrapped) {
					matches++
				}
			}
			require.Equal(t, 1, matches)
		})
	}

	require.False(t, IsTransport(errors.New("plain")))
}

func TestProtocolErrorMessage(t *testing.T) {
	err := &ProtocolError{Op: "register", StatusCode: 401, ServerMessage: "bad token"}
	require.Equal(t, `register: protocol: status code 401: server returned "bad token"`, err.Error())

	err = &ProtocolError{Op: "register", Err: errors.New("malformed")}
	require.Equal(t, "register: protocol: malformed", err.Error())
}
