// -- cmd/root_test.go --
package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out.String())
}

func TestApplyFlagOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, rootCmd.Flags().Set("no-scripts", "true"))
	require.NoError(t, rootCmd.Flags().Set("wait", "timeout"))
	require.NoError(t, rootCmd.Flags().Set("max-scripts", "7"))

	applyFlagOverrides(rootCmd)

	assert.False(t, viper.GetBool("run.execute_scripts"))
	assert.Equal(t, "timeout", viper.GetString("run.wait_strategy"))
	assert.Equal(t, 7, viper.GetInt("run.max_scripts"))
	// Untouched flags stay unset so defaults win.
	assert.False(t, viper.IsSet("run.engine"))
}
