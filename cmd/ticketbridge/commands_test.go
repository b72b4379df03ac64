package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketbridge/internal/config"
	"ticketbridge/internal/content"
)

func TestProbeInvalidTargetSkipsDiagnostics(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, probe(context.Background(), cmd, config.DiagnosticsConfig{}, "   "))
	assert.Contains(t, out.String(), "Could not extract a valid target")
	assert.Contains(t, out.String(), content.InvalidTargetSummary)
}

func TestProbeCommandRequiresOneArgument(t *testing.T) {
	cmd := newProbeCommand()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
