package main

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
)

func TestLineDiff(t *testing.T) {
	text.DisableColors()
	defer text.EnableColors()

	before := "&controls\n  initial_mass = 1.0\n  initial_z = 0.02\n/\n"
	after := "&controls\n  initial_mass = 2.0\n  initial_z = 0.02\n/\n"

	got := lineDiff(before, after)
	assert.Equal(t, "-  initial_mass = 1.0\n+  initial_mass = 2.0\n", got)
	assert.Empty(t, lineDiff(before, before))
}

func TestLineDiffInsert(t *testing.T) {
	text.DisableColors()
	defer text.EnableColors()

	before := "&star_job\n/\n"
	after := "&star_job\n    pgstar_flag = .true.\n/\n"

	got := lineDiff(before, after)
	assert.Equal(t, "+    pgstar_flag = .true.\n", got)
	assert.False(t, strings.Contains(got, "-"))
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	assert.True(t, newLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("info").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("WARN").Enabled(ctx, slog.LevelInfo))
	assert.True(t, newLogger("error").Enabled(ctx, slog.LevelError))
	assert.True(t, newLogger("bogus").Enabled(ctx, slog.LevelInfo))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdef12", shortID("abcdef12-3456"))
	assert.Equal(t, "abc", shortID("abc"))
}
