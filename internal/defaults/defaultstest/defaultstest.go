// Package defaultstest provides a small MESA defaults tree for tests.
package defaultstest

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"mesactl/internal/defaults"
)

// Root is the installation root used by Install.
const Root = "/opt/mesa"

// Files holds a trimmed copy of the star defaults.
var Files = map[string]string{
	"star_job.defaults": `
      create_pre_main_sequence_model = .false.
      save_model_when_terminate = .false.
      save_model_filename = 'undefined'
      pause_before_terminate = .false.
      pgstar_flag = .false.
      history_columns_file = ''
`,
	"controls.defaults": `
      initial_mass = 1d0
      initial_z = 0.02d0
      max_age = 1d36
      max_model_number = -1
      log_directory = 'LOGS'
      profile_data_prefix = 'profile'
      filename_for_profile_when_terminate = ''
      x_ctrl(1:num_x_ctrls) = 0d0
      x_integer_ctrl(1:num_x_ctrls) = 0
      x_logical_ctrl(1:num_x_ctrls) = .false.
`,
	"pgstar.defaults": `
      Grid1_win_flag = .false.
      pgstar_interval = 2
`,
}

// Install writes the defaults tree into fs below Root.
func Install(t testing.TB, fs afero.Fs) {
	t.Helper()
	dir := filepath.Join(Root, defaults.Subdir)
	require.NoError(t, fs.MkdirAll(dir, 0755))
	for name, content := range Files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name), []byte(content), 0644))
	}
}

// Registry loads a registry from a fresh in-memory defaults tree.
func Registry(t testing.TB) *defaults.Registry {
	t.Helper()
	fs := afero.NewMemMapFs()
	Install(t, fs)
	r, err := defaults.Load(defaults.Options{Root: Root, Fs: fs})
	require.NoError(t, err)
	return r
}
