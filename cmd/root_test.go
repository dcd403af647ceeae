package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/datamover/internal/buildinfo"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := RootCommand(buildinfo.NewContext("1.2.3", "2026-01-01"))

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"archive", "migrate-products", "serve", "version"})
}

func TestVersionSkipsConfigLoading(t *testing.T) {
	root := RootCommand(buildinfo.NewContext("1.2.3", "2026-01-01"))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--config", "/nonexistent/config.yaml"})

	require.NoError(t, root.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), "datamover 1.2.3")
}
