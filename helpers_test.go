package hydrate

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var update = flag.Bool("update", false, "update .golden files")

var patternNonAlphanumeric = regexp.MustCompile("[^A-Za-z0-9]")

//goldenFile maps a test name onto its file under testdata
func goldenFile(name string) string {
	return filepath.Join("testdata", patternNonAlphanumeric.ReplaceAllString(name, "-")+".golden")
}

//assertGolden compares the JSON encoding of actual with the golden file of the test name.
//With -update the golden file is rewritten from actual first.
func assertGolden(t *testing.T, name string, actual interface{}) bool {
	t.Helper()

	data, err := json.MarshalIndent(actual, "", "\t")
	require.NoError(t, err, "marshal %s", name)

	file := goldenFile(name)
	if *update {
		require.NoError(t, os.WriteFile(file, data, 0644), "update golden file")
	}

	expected, err := os.ReadFile(file)
	require.NoError(t, err, "read golden file")

	return assert.JSONEq(t, string(expected), string(data), "expected output did not match %s", file)
}
