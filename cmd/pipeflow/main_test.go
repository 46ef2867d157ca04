package main

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeflow/internal/transport"
)

func TestParseContext(t *testing.T) {
	got, err := parseContext([]string{"env:prod", "url:http://example.com:8080", "empty:"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"env": "prod", "url": "http://example.com:8080", "empty": ""}, got)

	_, err = parseContext([]string{"novalue"})
	require.Error(t, err)
	_, err = parseContext([]string{":x"})
	require.Error(t, err)

	got, err = parseContext(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeInput(t *testing.T) {
	assert.Equal(t, map[string]any{"id": 1.0}, decodeInput(`{"id": 1}`))
	assert.Equal(t, []any{"a", "b"}, decodeInput(` ["a","b"] `))
	assert.Equal(t, "plain text", decodeInput("plain text"))
	assert.Nil(t, decodeInput("  "))
}

func TestReadInputFromStdin(t *testing.T) {
	execFromStdin = true
	defer func() { execFromStdin = false }()
	got, err := readInput(strings.NewReader(`{"name":"ada"}` + "\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada"}, got)
}

func TestCheckHealth(t *testing.T) {
	srv, err := transport.StartServer(0)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	addr := fmt.Sprintf("localhost:%d", srv.Port())

	serving, err := checkHealth(ctx, addr)
	require.NoError(t, err)
	assert.False(t, serving)

	srv.SetServing(true)
	serving, err = checkHealth(ctx, addr)
	require.NoError(t, err)
	assert.True(t, serving)
}
