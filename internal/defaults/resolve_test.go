package defaults

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesactl/internal/namelist"
)

func TestResolveExact(t *testing.T) {
	r := newTestRegistry(t)

	res, err := r.Resolve("initial_mass", namelist.Value{})
	require.NoError(t, err)
	assert.True(t, res.Known())
	assert.Equal(t, "controls", res.Section)
	assert.Equal(t, "initial_mass", res.Key)
	assert.Equal(t, namelist.Float(1), res.Value)

	res, err = r.Resolve("initial_mass", namelist.Float(2.5))
	require.NoError(t, err)
	assert.Equal(t, namelist.Float(1), res.Value)
}

func TestResolveFirstSectionWins(t *testing.T) {
	r := newTestRegistry(t)

	res, err := r.Resolve("shared_name", namelist.Value{})
	require.NoError(t, err)
	assert.Equal(t, "controls", res.Section)
	assert.Equal(t, namelist.Int(1), res.Value)

	// the pgstar definition is never consulted, so its kind does not count
	_, err = r.Resolve("shared_name", namelist.Text("x"))
	var mismatch *TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestResolveIndexedControls(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name    string
		key     string
		value   namelist.Value
		section string
	}{
		{"x_ctrl(5)", "x_ctrl(1:num_x_ctrls)", namelist.Float(0), "controls"},
		{"x_ctrl (5)", "x_ctrl(1:num_x_ctrls)", namelist.Float(0), "controls"},
		{"X_INTEGER_CTRL(2)", "x_integer_ctrl(1:num_x_ctrls)", namelist.Int(0), "controls"},
		{"x_logical_ctrl( 12 )", "x_logical_ctrl(1:num_x_ctrls)", namelist.Bool(false), "controls"},
		{"xa_central_lower_limit_species(3)", "xa_central_lower_limit_species(:)", namelist.Text(""), "controls"},
	}

	for _, tt := range tests {
		res, err := r.Resolve(tt.name, namelist.Value{})
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.key, res.Key, tt.name)
		assert.Equal(t, tt.section, res.Section, tt.name)
		assert.Equal(t, tt.value, res.Value, tt.name)
	}
}

func TestResolveTypeMismatch(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Resolve("pause_before_terminate", namelist.Text("yes"))
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, namelist.KindBool, mismatch.Want)
	assert.Equal(t, namelist.KindText, mismatch.Got)

	_, err = r.Resolve("x_ctrl(1)", namelist.Int(1))
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "x_ctrl(1:num_x_ctrls)", mismatch.Name)

	// integers are not silently accepted for real parameters
	_, err = r.Resolve("initial_mass", namelist.Int(1))
	assert.ErrorAs(t, err, &mismatch)
}

func TestResolveUnknownPassthrough(t *testing.T) {
	r := newTestRegistry(t)

	res, err := r.Resolve("totally_unknown_name", namelist.Int(42))
	require.NoError(t, err)
	assert.False(t, res.Known())
	assert.Equal(t, "", res.Section)
	assert.Equal(t, namelist.Int(42), res.Value)

	res, err = r.Resolve("unknown_array(3)", namelist.Value{})
	require.NoError(t, err)
	assert.False(t, res.Known())
	assert.True(t, res.Value.IsZero())
}
