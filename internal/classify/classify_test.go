package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		output   string
		expected Category
	}{
		{"terminated evolution: cannot find acceptable model", CategoryConvergence},
		{" 1234 retry: logT > 9\n dt < min_timestep_limit", CategoryConvergence},
		{"got NaN in eval_eos", CategoryNumerical},
		{"Program received signal SIGFPE: Floating-point exception", CategoryNumerical},
		{"Fortran runtime error: Cannot match namelist object name inital_mass", CategoryInlist},
		{"failed in read_controls", CategoryInlist},
		{"./star: No such file or directory", CategoryEnvironment},
		{"please set MESA_DIR", CategoryEnvironment},
		{"make: *** [star] Error 1", CategoryBuild},
		{"run_star_extras.f90:12:3:\nError: Symbol 'foo' has no IMPLICIT type", CategoryBuild},
		{"all good here", CategoryUnknown},
		{"", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.output))
		})
	}
}

func TestClassifyWithMatches(t *testing.T) {
	c := NewClassifier()
	cat, matches := c.ClassifyWithMatches("NaN in solver\nfloating point exception")
	assert.Equal(t, CategoryNumerical, cat)
	assert.Len(t, matches, 2)

	// one vote each: the category matched first wins
	cat, _ = c.ClassifyWithMatches("got NaN\ncannot find acceptable model")
	assert.Equal(t, CategoryConvergence, cat)
}

func TestAddPatternsFromString(t *testing.T) {
	c := NewClassifier()
	require.NoError(t, c.AddPatternsFromString("my_hook failed:environment, custom_stop:convergence"))

	assert.Equal(t, CategoryEnvironment, c.Classify("my_hook failed"))
	assert.Equal(t, CategoryConvergence, c.Classify("custom_stop"))

	assert.Error(t, c.AddPatternsFromString("([:build"))
	assert.NoError(t, c.AddPatternsFromString(""))
}

func TestExtractErrorMessage(t *testing.T) {
	tests := []struct {
		output string
		maxLen int
		want   string
	}{
		{"step 1\nERROR: bad things\nstep 3", 100, "ERROR: bad things"},
		{"model 100\nterminated evolution: hydro_failed\n", 100, "terminated evolution: hydro_failed"},
		{"line one\nlast words\n\n", 100, "last words"},
		{"error: " + "x", 5, "error..."},
		{"", 10, "no output"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractErrorMessage(tt.output, tt.maxLen))
	}
}

func TestSuggestions(t *testing.T) {
	for _, cat := range []Category{CategoryConvergence, CategoryNumerical, CategoryInlist, CategoryEnvironment, CategoryBuild, CategoryUnknown} {
		assert.NotEmpty(t, Suggestions(cat), cat)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(CategoryConvergence))
	assert.True(t, IsRetryable(CategoryNumerical))
	assert.False(t, IsRetryable(CategoryInlist))
	assert.False(t, IsRetryable(CategoryBuild))
}
