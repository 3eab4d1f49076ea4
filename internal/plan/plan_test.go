package plan

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesactl/internal/defaults"
	"mesactl/internal/defaults/defaultstest"
	"mesactl/internal/namelist"
)

const planYAML = `
name: 1M to TAMS
description: pre-main sequence through core hydrogen exhaustion
steps:
  - name: zams
    inlist: inlist_to_zams
    set:
      initial_mass: 1
      initial_z: 1.4d-2
      save_model_filename: zams.mod
      x_ctrl(3): 0.25
    pgstar: false
  - inlist: inlist_to_tams
    set:
      max_model_number: 2000
      pause_before_terminate: .false.
    archive: LOGS_tams
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(planYAML))
	require.NoError(t, err)

	assert.Equal(t, "1M to TAMS", p.Name)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, []string{"inlist_to_zams", "inlist_to_tams"}, p.Inlists())

	zams := p.Steps[0]
	assert.Equal(t, "zams", zams.Label())
	require.Len(t, zams.Set, 4)
	assert.Equal(t, "initial_mass", zams.Set[0].Name)
	assert.Equal(t, namelist.Int(1), zams.Set[0].Value)
	assert.Equal(t, namelist.Text("1.4d-2"), zams.Set[1].Value)
	assert.Equal(t, "x_ctrl(3)", zams.Set[3].Name)
	require.NotNil(t, zams.Pgstar)
	assert.False(t, *zams.Pgstar)
	assert.Nil(t, zams.Pause)

	tams := p.Steps[1]
	assert.Equal(t, "inlist_to_tams", tams.Label())
	assert.Equal(t, "LOGS_tams", tams.Archive)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "steps:\n  - inlist: a\n    sett: {x: 1}\n"},
		{"set not a mapping", "steps:\n  - inlist: a\n    set: [1, 2]\n"},
		{"nested value", "steps:\n  - inlist: a\n    set:\n      x: [1]\n"},
		{"null value", "steps:\n  - inlist: a\n    set:\n      x:\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestResolve(t *testing.T) {
	p, err := Parse([]byte(planYAML))
	require.NoError(t, err)
	require.NoError(t, p.Resolve(defaultstest.Registry(t)))

	zams := p.Steps[0].Set
	assert.Equal(t, namelist.Float(1), zams[0].Value, "int widened to float")
	assert.Equal(t, namelist.Float(0.014), zams[1].Value, "fortran literal parsed")
	assert.Equal(t, namelist.Text("zams.mod"), zams[2].Value)
	assert.Equal(t, namelist.Float(0.25), zams[3].Value)

	tams := p.Steps[1].Set
	assert.Equal(t, namelist.Int(2000), tams[0].Value)
	assert.Equal(t, namelist.Bool(false), tams[1].Value)
}

func TestResolveMismatch(t *testing.T) {
	p, err := Parse([]byte("steps:\n  - inlist: a\n    set:\n      max_model_number: 1.5\n"))
	require.NoError(t, err)

	err = p.Resolve(defaultstest.Registry(t))
	var mismatch *defaults.TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)

	p, err = Parse([]byte("steps:\n  - inlist: a\n    set:\n      pgstar_flag: sometimes\n"))
	require.NoError(t, err)
	assert.Error(t, p.Resolve(defaultstest.Registry(t)))
}

func TestLoadAndValidate(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("work", 0755))
	require.NoError(t, afero.WriteFile(fs, "work/plan.yaml", []byte(planYAML), 0644))
	require.NoError(t, afero.WriteFile(fs, "work/inlist_to_zams", nil, 0644))
	require.NoError(t, afero.WriteFile(fs, "work/inlist_to_tams", nil, 0644))

	p, err := Load(fs, "work/plan.yaml")
	require.NoError(t, err)
	assert.Equal(t, "work/plan.yaml", p.Path())

	reg := defaultstest.Registry(t)
	require.NoError(t, p.Resolve(reg))

	result := p.Validate(Env{Fs: fs, WorkDir: "work", ActiveInlist: "inlist", Registry: reg})
	assert.True(t, result.IsValid(), result.Err())
	assert.False(t, result.HasWarnings())
	assert.NoError(t, result.Err())
}

func TestValidate(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("work", 0755))
	require.NoError(t, afero.WriteFile(fs, "work/inlist_a", nil, 0644))

	p, err := Parse([]byte(`
steps:
  - inlist: inlist
  - inlist: inlist_missing
  - inlist: inlist_a
    set:
      "bad name!": 1
      my_knob: 3
      initial_mass: 2.0
      Initial_Mass: 3.0
      pgstar_flag: 4
    archive: ../outside
  - inlist: inlist_a
    archive: LOGS_a
  - name: again
    inlist: inlist_a
    archive: LOGS_a
  - set: {initial_mass: 1.0}
`))
	require.NoError(t, err)

	result := p.Validate(Env{
		Fs:           fs,
		WorkDir:      "work",
		ActiveInlist: "inlist",
		Registry:     defaultstest.Registry(t),
	})
	assert.False(t, result.IsValid())

	fields := func(errs []ValidationError) []string {
		var out []string
		for _, e := range errs {
			out = append(out, e.Step+"."+e.Field)
		}
		return out
	}
	assert.ElementsMatch(t, []string{
		"inlist.inlist",
		"inlist_missing.inlist",
		"inlist_a.set.bad name!",
		"inlist_a.set.pgstar_flag",
		"inlist_a.archive",
		"steps[5].inlist",
	}, fields(result.Errors))
	assert.ElementsMatch(t, []string{
		"inlist_a.set.my_knob",
		"inlist_a.set.Initial_Mass",
		"again.archive",
	}, fields(result.Warnings))
	assert.Error(t, result.Err())

	empty, err := Parse(nil)
	require.NoError(t, err)
	assert.False(t, empty.Validate(Env{}).IsValid())
}

func TestFromInlists(t *testing.T) {
	p := FromInlists("inlist_1M", "inlist_2M")
	assert.Equal(t, []string{"inlist_1M", "inlist_2M"}, p.Inlists())
	assert.True(t, p.Validate(Env{ActiveInlist: "inlist"}).IsValid())
}

func TestMarshalRoundTrip(t *testing.T) {
	p, err := Parse([]byte(planYAML))
	require.NoError(t, err)

	data, err := p.Marshal()
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, again.Steps, 2)
	require.Len(t, again.Steps[0].Set, len(p.Steps[0].Set))
	for i, ov := range p.Steps[0].Set {
		assert.Equal(t, ov.Name, again.Steps[0].Set[i].Name)
		assert.Equal(t, ov.Value, again.Steps[0].Set[i].Value)
	}
	assert.Equal(t, "LOGS_tams", again.Steps[1].Archive)
}

func TestOverrideNames(t *testing.T) {
	p, err := Parse([]byte(planYAML + `  - inlist: inlist_again
    set:
      Initial_Mass: 2
`))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"initial_mass",
		"initial_z",
		"max_model_number",
		"pause_before_terminate",
		"save_model_filename",
		"x_ctrl(3)",
	}, p.OverrideNames())
	assert.Empty(t, FromInlists("inlist_1M").OverrideNames())
}
