package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "relaycheck", cmd.Use)
	assert.Contains(t, cmd.Long, "two-sink relay")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "verify", "watch", "report", "gen"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	dbFlag := runCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "relaycheck.db", dbFlag.DefValue)

	artifactsFlag := runCmd.Flags().Lookup("artifacts")
	require.NotNil(t, artifactsFlag)
	assert.Equal(t, "artifacts", artifactsFlag.DefValue)

	workdirFlag := runCmd.Flags().Lookup("workdir")
	require.NotNil(t, workdirFlag)

	skipFlag := runCmd.Flags().Lookup("skip-compose")
	require.NotNil(t, skipFlag)
	assert.Equal(t, "false", skipFlag.DefValue)
}

func TestVerifyCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	verifyCmd, _, err := cmd.Find([]string{"verify"})
	require.NoError(t, err)

	sourceFlag := verifyCmd.Flags().Lookup("source")
	require.NotNil(t, sourceFlag)
	// --source is required, so default is empty
	assert.Equal(t, "", sourceFlag.DefValue)

	sinkFlag := verifyCmd.Flags().Lookup("sink")
	require.NotNil(t, sinkFlag)
}

func TestWatchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	watchCmd, _, err := cmd.Find([]string{"watch"})
	require.NoError(t, err)

	targetFlag := watchCmd.Flags().Lookup("target")
	require.NotNil(t, targetFlag)

	timeoutFlag := watchCmd.Flags().Lookup("timeout")
	require.NotNil(t, timeoutFlag)
	assert.Equal(t, "1m0s", timeoutFlag.DefValue)

	pollFlag := watchCmd.Flags().Lookup("poll")
	require.NotNil(t, pollFlag)
	assert.Equal(t, "250ms", pollFlag.DefValue)

	stabilizationFlag := watchCmd.Flags().Lookup("stabilization")
	require.NotNil(t, stabilizationFlag)
	assert.Equal(t, "2s", stabilizationFlag.DefValue)

	composeFlag := watchCmd.Flags().Lookup("compose")
	require.NotNil(t, composeFlag)

	minBytesFlag := watchCmd.Flags().Lookup("min-bytes")
	require.NotNil(t, minBytesFlag)
	assert.Equal(t, "0", minBytesFlag.DefValue)
}

func TestReportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	reportCmd, _, err := cmd.Find([]string{"report"})
	require.NoError(t, err)

	dbFlag := reportCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "relaycheck.db", dbFlag.DefValue)

	scenarioFlag := reportCmd.Flags().Lookup("scenario")
	require.NotNil(t, scenarioFlag)

	limitFlag := reportCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)

	latestFlag := reportCmd.Flags().Lookup("latest")
	require.NotNil(t, latestFlag)
	assert.Equal(t, "false", latestFlag.DefValue)
}

func TestGenCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	genCmd, _, err := cmd.Find([]string{"gen"})
	require.NoError(t, err)

	volumeFlag := genCmd.Flags().Lookup("volume")
	require.NotNil(t, volumeFlag)

	seedFlag := genCmd.Flags().Lookup("seed")
	require.NotNil(t, seedFlag)
	assert.Equal(t, "0", seedFlag.DefValue)

	recordBytesFlag := genCmd.Flags().Lookup("record-bytes")
	require.NotNil(t, recordBytesFlag)
	assert.Equal(t, "64", recordBytesFlag.DefValue)

	outFlag := genCmd.Flags().Lookup("out")
	require.NotNil(t, outFlag)
}

func TestCommandHelp(t *testing.T) {
	cmd := NewRootCommand()

	// Verify help text contains key elements
	assert.Contains(t, cmd.Short, "relay pipeline")
	assert.Contains(t, cmd.Long, "no loss")
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--format", "yaml", "report"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
