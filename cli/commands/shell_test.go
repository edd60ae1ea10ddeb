package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlbridge/cli/config"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	d, err := EnvFrom(context.Background()).OpenDataset(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	var out, errOut bytes.Buffer
	return &shell{d: d, out: &out, errOut: &errOut, format: config.FormatCSV}, &out, &errOut
}

func TestShellMultiLineStatements(t *testing.T) {
	ctx := context.Background()
	sh, out, errOut := newTestShell(t)

	assert.False(t, sh.feed(ctx, "CREATE TABLE pets ("))
	assert.True(t, sh.pending())
	assert.False(t, sh.feed(ctx, "  name TEXT"))
	assert.False(t, sh.feed(ctx, ");"))
	assert.False(t, sh.pending())
	assert.Equal(t, "ok\n", out.String())

	out.Reset()
	sh.feed(ctx, "INSERT INTO pets VALUES ('rex');")
	assert.Equal(t, "last insert id: 1\n", out.String())

	out.Reset()
	sh.feed(ctx, "SELECT name FROM pets;")
	assert.Contains(t, out.String(), "rex")
	assert.Empty(t, errOut.String())

	sh.feed(ctx, "SELECT * FROM nowhere;")
	assert.Contains(t, errOut.String(), "Error:")
}

func TestShellDotCommands(t *testing.T) {
	ctx := context.Background()
	sh, out, errOut := newTestShell(t)
	sh.feed(ctx, "CREATE TABLE pets (name TEXT NOT NULL);")
	out.Reset()

	assert.False(t, sh.feed(ctx, ".tables"))
	assert.Equal(t, "pets\n", out.String())

	out.Reset()
	sh.feed(ctx, ".schema pets")
	assert.Contains(t, out.String(), "name,TEXT,true")

	sh.feed(ctx, ".schema")
	assert.Contains(t, errOut.String(), "Usage: .schema")

	sh.feed(ctx, ".format json")
	assert.Equal(t, config.FormatJSON, sh.format)
	sh.feed(ctx, ".format yaml")
	assert.Equal(t, config.FormatJSON, sh.format)
	assert.Contains(t, errOut.String(), "Unknown format")

	out.Reset()
	sh.feed(ctx, ".help")
	assert.Contains(t, out.String(), ".schema <table>")

	sh.feed(ctx, ".bogus")
	assert.Contains(t, errOut.String(), "Unknown command: .bogus")

	assert.True(t, sh.feed(ctx, ".quit"))
	assert.True(t, sh.feed(ctx, ".EXIT"))
}

func TestShellResetDropsPartialStatement(t *testing.T) {
	ctx := context.Background()
	sh, out, _ := newTestShell(t)
	sh.feed(ctx, "SELECT")
	sh.reset()
	assert.False(t, sh.pending())
	sh.feed(ctx, "SELECT 7 AS n;")
	assert.Contains(t, out.String(), "7")
}
