package vcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemoteRefs(t *testing.T) {
	out := "e5fa44f2b31c1fb553b6021e7360d07d5d91ff5e\tHEAD\n" +
		"7448d8798a4380162d4b56f9b452e2f6f9e24e7a\trefs/heads/main\n" +
		"a3db5c13ff90a36963278c6a39e4ee3c22e2a436\trefs/heads/integration\n"

	refs, err := parseRemoteRefs(out)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"HEAD":                   "e5fa44f2b31c1fb553b6021e7360d07d5d91ff5e",
		"refs/heads/main":        "7448d8798a4380162d4b56f9b452e2f6f9e24e7a",
		"refs/heads/integration": "a3db5c13ff90a36963278c6a39e4ee3c22e2a436",
	}, refs)
}

func TestParseRemoteRefsMalformed(t *testing.T) {
	_, err := parseRemoteRefs("this is not ls-remote output\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVCS)
}

func TestParseRemoteRefsEmpty(t *testing.T) {
	refs, err := parseRemoteRefs("")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestCleanCloneURL(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name     string
		cloneURL string
		expected string
	}{
		{
			"no username",
			"https://api-gw.example.com/vcs/cray/compute-config-management.git",
			"https://api-gw.example.com/vcs/cray/compute-config-management.git",
		},
		{
			"username stripped",
			"https://crayvcs@api-gw.example.com/vcs/cray/compute-config-management.git",
			"https://api-gw.example.com/vcs/cray/compute-config-management.git",
		},
		{
			"unparseable URL passed through",
			"://not-a-url",
			"://not-a-url",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, client.cleanCloneURL(tc.cloneURL))
		})
	}
}
