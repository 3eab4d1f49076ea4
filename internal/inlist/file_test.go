package inlist

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesactl/internal/defaults"
	"mesactl/internal/defaults/defaultstest"
	"mesactl/internal/namelist"
)

const projectInlist = `
&star_job
  ! start from a pre-ms model
  create_pre_main_sequence_model = .true.

  save_model_when_terminate = .true.
  save_model_filename = '1M_at_TAMS.mod'  ! keep this

/ ! end of star_job namelist


&controls
  initial_mass = 1.0 ! in Msun units
  initial_z = 2d-2
  x_ctrl(1) = 0.5
  my_custom_knob = 3

  initial_mass = 1.5
/ ! end of controls namelist
`

func newTestFile(t *testing.T, content string) (*File, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("work", 0755))
	require.NoError(t, afero.WriteFile(fs, "work/inlist", []byte(content), 0644))

	f, err := Open(Options{
		Path:     "work/inlist",
		Fs:       fs,
		Registry: defaultstest.Registry(t),
	})
	require.NoError(t, err)
	return f, fs
}

func readFile(t *testing.T, fs afero.Fs) string {
	t.Helper()
	data, err := afero.ReadFile(fs, "work/inlist")
	require.NoError(t, err)
	return string(data)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(Options{Path: "nope", Fs: afero.NewMemMapFs(), Registry: defaultstest.Registry(t)})
	assert.Error(t, err)

	_, err = Open(Options{Path: "nope", Fs: afero.NewMemMapFs()})
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	f, _ := newTestFile(t, projectInlist)

	v, err := f.Get("save_model_filename")
	require.NoError(t, err)
	assert.Equal(t, namelist.Text("1M_at_TAMS.mod"), v)

	// last assignment wins
	v, err = f.Get("initial_mass")
	require.NoError(t, err)
	assert.Equal(t, namelist.Float(1.5), v)

	// not in file, taken from defaults
	v, err = f.Get("log_directory")
	require.NoError(t, err)
	assert.Equal(t, namelist.Text("LOGS"), v)

	v, err = f.Get("x_ctrl(7)")
	require.NoError(t, err)
	assert.Equal(t, namelist.Float(0), v)

	// unknown to defaults but present in file
	v, err = f.Get("my_custom_knob")
	require.NoError(t, err)
	assert.Equal(t, namelist.Int(3), v)

	_, err = f.Get("profile_nonsense")
	var notFound *KeyNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSetPreservesFile(t *testing.T) {
	f, fs := newTestFile(t, projectInlist)

	require.NoError(t, f.Set("save_model_filename", namelist.Text("2M.mod")))
	got := readFile(t, fs)
	want := strings.Replace(projectInlist, "'1M_at_TAMS.mod'", "'2M.mod'", 1)
	assert.Equal(t, want, got)

	require.NoError(t, f.Set("initial_mass", namelist.Float(123450.0)))
	got = readFile(t, fs)
	assert.Contains(t, got, "  initial_mass = 1.0 ! in Msun units\n")
	assert.Contains(t, got, "  initial_mass = 1.2345d5\n")

	v, err := f.Get("initial_mass")
	require.NoError(t, err)
	assert.Equal(t, namelist.Float(123450.0), v)
}

func TestSetTypeMismatchDoesNotWrite(t *testing.T) {
	f, fs := newTestFile(t, projectInlist)

	err := f.Set("create_pre_main_sequence_model", namelist.Text("yes"))
	var mismatch *defaults.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)

	err = f.Set("pause_before_terminate", namelist.Text("yes"))
	require.ErrorAs(t, err, &mismatch)

	assert.Equal(t, projectInlist, readFile(t, fs))
}

func TestSetIdempotent(t *testing.T) {
	f, fs := newTestFile(t, projectInlist)

	for _, name := range []string{"save_model_filename", "create_pre_main_sequence_model", "x_ctrl(1)", "my_custom_knob"} {
		v, err := f.Get(name)
		require.NoError(t, err)
		require.NoError(t, f.Set(name, v))
	}
	assert.Equal(t, projectInlist, readFile(t, fs))

	v, err := f.Get("initial_z")
	require.NoError(t, err)
	require.NoError(t, f.Set("initial_z", v))
	first := readFile(t, fs)
	assert.Contains(t, first, "initial_z = 2.0000d-2\n")

	require.NoError(t, f.Set("initial_z", v))
	assert.Equal(t, first, readFile(t, fs))
}

func TestSetAbsentIsRejected(t *testing.T) {
	f, fs := newTestFile(t, projectInlist)

	err := f.Set("pgstar_flag", namelist.Bool(true))
	assert.ErrorIs(t, err, ErrNotInFile)
	assert.Equal(t, projectInlist, readFile(t, fs))
}

func TestInsert(t *testing.T) {
	f, fs := newTestFile(t, projectInlist)

	require.NoError(t, f.Insert("pgstar_flag", namelist.Bool(true)))
	got := readFile(t, fs)
	assert.Contains(t, got, "  save_model_filename = '1M_at_TAMS.mod'  ! keep this\n\n  pgstar_flag = .true.\n/ ! end of star_job namelist\n")

	v, err := f.Get("pgstar_flag")
	require.NoError(t, err)
	assert.Equal(t, namelist.Bool(true), v)

	err = f.Insert("pgstar_flag", namelist.Bool(false))
	assert.Error(t, err)

	// pgstar section has no group in this file
	err = f.Insert("pgstar_interval", namelist.Int(5))
	assert.ErrorIs(t, err, ErrGroupNotFound)

	// unknown names cannot be placed
	err = f.Insert("brand_new_knob", namelist.Int(5))
	var notFound *KeyNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestUpsert(t *testing.T) {
	f, fs := newTestFile(t, projectInlist)

	require.NoError(t, f.Upsert("pause_before_terminate", namelist.Bool(false)))
	require.NoError(t, f.Upsert("pause_before_terminate", namelist.Bool(true)))
	require.NoError(t, f.Upsert("max_model_number", namelist.Int(500)))

	got := readFile(t, fs)
	assert.Contains(t, got, "  pause_before_terminate = .true.\n/ ! end of star_job namelist")
	assert.Contains(t, got, "  initial_mass = 1.5\n  max_model_number = 500\n/ ! end of controls namelist")
}

func TestPreview(t *testing.T) {
	f, fs := newTestFile(t, projectInlist)

	before, after, err := f.Preview("initial_z", namelist.Float(0.014), false)
	require.NoError(t, err)
	assert.Equal(t, projectInlist, before)
	assert.Contains(t, after, "initial_z = 1.4000d-2")
	assert.Equal(t, projectInlist, readFile(t, fs))
}

func TestEntries(t *testing.T) {
	f, _ := newTestFile(t, projectInlist)

	entries, err := f.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 7)

	byKey := map[string]Entry{}
	for _, e := range entries {
		byKey[e.Key] = e
	}
	assert.Equal(t, "controls", byKey["initial_mass"].Section)
	assert.Equal(t, namelist.Float(1.5), byKey["initial_mass"].Value)
	assert.Equal(t, namelist.Float(1), byKey["initial_mass"].Default)
	assert.Equal(t, "controls", byKey["x_ctrl(1)"].Section)
	assert.Equal(t, "", byKey["my_custom_knob"].Section)
	assert.Equal(t, "controls", byKey["my_custom_knob"].Group)
}

func TestList(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("run", 0755))
	for _, name := range []string{"inlist", "inlist_1M", "inlist_2M", "inlist_pgstar", "inlist_project", "notes.txt"} {
		require.NoError(t, afero.WriteFile(fs, "run/"+name, []byte(""), 0644))
	}
	require.NoError(t, fs.MkdirAll("run/inlist_dir", 0755))

	names, err := List(fs, "run")
	require.NoError(t, err)
	assert.Equal(t, []string{"inlist_1M", "inlist_2M", "inlist_project"}, names)
}

func TestOneLineGroups(t *testing.T) {
	content := "&star_job pgstar_flag = .true. /\n&controls\n  initial_mass = 1d0\n/\n&pgstar /\n"
	f, fs := newTestFile(t, content)

	v, err := f.Get("pgstar_flag")
	require.NoError(t, err)
	assert.Equal(t, namelist.Bool(true), v)

	require.NoError(t, f.Insert("pgstar_interval", namelist.Int(5)))
	require.NoError(t, f.Upsert("pause_before_terminate", namelist.Bool(true)))

	assert.Equal(t, "&star_job pgstar_flag = .true.\n    pause_before_terminate = .true.\n/\n"+
		"&controls\n  initial_mass = 1d0\n/\n"+
		"&pgstar\n    pgstar_interval = 5\n/\n", readFile(t, fs))

	v, err = f.Get("pause_before_terminate")
	require.NoError(t, err)
	assert.Equal(t, namelist.Bool(true), v)
}

func TestInsertCRLF(t *testing.T) {
	f, fs := newTestFile(t, "&controls\r\n  initial_mass = 1d0\r\n/\r\n")

	require.NoError(t, f.Insert("initial_z", namelist.Float(0.014)))
	assert.Equal(t, "&controls\r\n  initial_mass = 1d0\r\n  initial_z = 1.4000d-2\r\n/\r\n", readFile(t, fs))
}
