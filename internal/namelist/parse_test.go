package namelist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInlist = `! inlist for a 1 Msun model

&star_job
    ! begin with a pre-main sequence model
    create_pre_main_sequence_model = .true.
    save_model_when_terminate = .true.
    save_model_filename = 'final.mod'   ! written at the end
    pgstar_flag = .false.
/ ! end of star_job namelist

&controls
    initial_mass = 1.0
    Initial_Z = 2d-2,
    x_ctrl(1) = 0.5
    log_directory = 'LOGS'
    initial_mass = 2.0
/ ! end of controls namelist
`

func TestParseDocument(t *testing.T) {
	doc, err := Parse(sampleInlist)
	require.NoError(t, err)

	assigns := doc.Assignments()
	require.Len(t, assigns, 9)

	assert.Equal(t, "create_pre_main_sequence_model", assigns[0].Key)
	assert.Equal(t, ".true.", assigns[0].Raw)
	assert.Equal(t, "star_job", assigns[0].Group)
	assert.Equal(t, 5, assigns[0].Line)

	model, ok := doc.Lookup("save_model_filename")
	require.True(t, ok)
	assert.Equal(t, "'final.mod'", model.Raw)
	assert.Equal(t, "'final.mod'", sampleInlist[model.Start:model.End])

	z, ok := doc.Lookup("initial_z")
	require.True(t, ok)
	assert.Equal(t, "Initial_Z", z.Name)
	assert.Equal(t, "2d-2", z.Raw)
	assert.Equal(t, "controls", z.Group)

	x, ok := doc.Lookup("x_ctrl( 1 )")
	require.True(t, ok)
	assert.Equal(t, "x_ctrl(1)", x.Key)
}

func TestParseLastWriteWins(t *testing.T) {
	doc, err := Parse(sampleInlist)
	require.NoError(t, err)

	params := doc.Params()
	raw, ok := params.Get("initial_mass")
	require.True(t, ok)
	assert.Equal(t, "2.0", raw)

	// first insertion position is retained
	assert.Equal(t, []string{
		"create_pre_main_sequence_model",
		"save_model_when_terminate",
		"save_model_filename",
		"pgstar_flag",
		"initial_mass",
		"initial_z",
		"x_ctrl(1)",
		"log_directory",
	}, params.Keys())

	a, ok := doc.Lookup("initial_mass")
	require.True(t, ok)
	assert.Equal(t, 16, a.Line)
}

func TestParseGroups(t *testing.T) {
	doc, err := Parse(sampleInlist)
	require.NoError(t, err)

	groups := doc.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "star_job", groups[0].Name)
	assert.Equal(t, "controls", groups[1].Name)

	g, ok := doc.Group("CONTROLS")
	require.True(t, ok)
	assert.Equal(t, byte('/'), sampleInlist[g.Close])
	assert.Equal(t, "/ ! end of controls namelist\n", sampleInlist[g.CloseLineStart:])

	last, ok := doc.LastInGroup("star_job")
	require.True(t, ok)
	assert.Equal(t, "pgstar_flag", last.Key)
	assert.Equal(t, "    ", doc.Indent(last))
}

func TestParseInlineTerminator(t *testing.T) {
	doc, err := Parse("&pgstar\n  Grid1_win_flag = .true. /\n")
	require.NoError(t, err)

	a, ok := doc.Lookup("grid1_win_flag")
	require.True(t, ok)
	assert.Equal(t, ".true.", a.Raw)

	g, ok := doc.Group("pgstar")
	require.True(t, ok)
	assert.NotEqual(t, -1, g.Close)
}

func TestParseIgnoresCommentsAndNoise(t *testing.T) {
	text := "! x = 1\n\n   ! y = 2\nnot a statement\nz =   \nw = 'a/b' ! c = 3\n"
	doc, err := Parse(text)
	require.NoError(t, err)

	params := doc.Params()
	assert.Equal(t, 1, params.Len())
	raw, _ := params.Get("w")
	assert.Equal(t, "'a/b'", raw)
}

func TestReplacePreservesSurroundings(t *testing.T) {
	doc, err := Parse(sampleInlist)
	require.NoError(t, err)

	a, ok := doc.Lookup("save_model_filename")
	require.True(t, ok)

	out := doc.Replace(a, "'other.mod'")
	assert.Contains(t, out, "    save_model_filename = 'other.mod'   ! written at the end\n")
	assert.Equal(t, len(sampleInlist)+len("'other.mod'")-len("'final.mod'"), len(out))
}

func TestParseCRLF(t *testing.T) {
	doc, err := Parse("&controls\r\n  mesh_delta_coeff = 0.5\r\n/\r\n")
	require.NoError(t, err)

	a, ok := doc.Lookup("mesh_delta_coeff")
	require.True(t, ok)
	assert.Equal(t, "0.5", a.Raw)
}

func TestParseStatementsOnHeaderLine(t *testing.T) {
	text := "&star_job pgstar_flag = .true. /\n&controls\n  initial_mass = 1d0\n/\n&pgstar /\n"
	doc, err := Parse(text)
	require.NoError(t, err)

	a, ok := doc.Lookup("pgstar_flag")
	require.True(t, ok)
	assert.Equal(t, ".true.", a.Raw)
	assert.Equal(t, "star_job", a.Group)
	assert.Equal(t, ".true.", text[a.Start:a.End])
	assert.Equal(t, "    ", doc.Indent(a))

	groups := doc.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, strings.Index(text, "/"), groups[0].Close)
	assert.Equal(t, 0, groups[0].CloseLineStart)

	m, ok := doc.Lookup("initial_mass")
	require.True(t, ok)
	assert.Equal(t, "controls", m.Group)

	pg, ok := doc.Group("pgstar")
	require.True(t, ok)
	assert.Equal(t, byte('/'), text[pg.Close])
	assert.Equal(t, strings.LastIndex(text, "&pgstar"), pg.CloseLineStart)
}

func TestParseSeveralStatementsPerLine(t *testing.T) {
	text := "&controls\n  a = 1d0, b = 2d0 c = 'x, d = y', x_ctrl(2) = 3, 4 ! e = 5\n/\n"
	doc, err := Parse(text)
	require.NoError(t, err)

	params := doc.Params()
	assert.Equal(t, []string{"a", "b", "c", "x_ctrl(2)"}, params.Keys())
	for key, want := range map[string]string{"a": "1d0", "b": "2d0", "c": "'x, d = y'", "x_ctrl(2)": "3, 4"} {
		raw, _ := params.Get(key)
		assert.Equal(t, want, raw, key)
	}

	b, _ := doc.Lookup("b")
	assert.Equal(t, "2d0", text[b.Start:b.End])
	assert.Equal(t, "  ", doc.Indent(b))

	out := doc.Replace(b, "7d0")
	assert.Contains(t, out, "  a = 1d0, b = 7d0 c = 'x, d = y'")
}

func TestInsertLineKeepsLineEndings(t *testing.T) {
	text := "&controls\r\n  a = 1d0\r\n/\r\n"
	doc, err := Parse(text)
	require.NoError(t, err)

	g, ok := doc.Group("controls")
	require.True(t, ok)
	assert.Equal(t, "&controls\r\n  a = 1d0\r\n  b = 2d0\r\n/\r\n", doc.InsertLine(g, "  b = 2d0"))
}

func TestInsertLineSplitsTerminator(t *testing.T) {
	doc, err := Parse("&pgstar /\n")
	require.NoError(t, err)
	g, _ := doc.Group("pgstar")
	assert.Equal(t, "&pgstar\n    pgstar_interval = 5\n/\n", doc.InsertLine(g, "    pgstar_interval = 5"))

	doc, err = Parse("&star_job\n  a = 1 /")
	require.NoError(t, err)
	g, _ = doc.Group("star_job")
	assert.Equal(t, "&star_job\n  a = 1\n  b = 2\n/", doc.InsertLine(g, "  b = 2"))
}
