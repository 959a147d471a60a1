package identity

import (
	"testing"

	"duet/cmd/security/password"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredentials() *Credentials {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	return NewCredentials(cfg)
}

func TestCredentials_HashVerify(t *testing.T) {
	t.Parallel()

	c := testCredentials()
	h, err := c.Hash("hunter2hunter2")
	require.NoError(t, err)
	assert.NotContains(t, h, "hunter2")

	assert.True(t, c.Verify(h, "hunter2hunter2"))
	assert.False(t, c.Verify(h, "hunter3hunter3"))
	assert.False(t, c.Verify("plain-text-password", "plain-text-password"))
}

func TestCredentials_PolicyIsInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := testCredentials().Hash("short")
	assert.True(t, IsInvalidInput(err))
}

func TestCredentials_VerifyAbsentDoesNotPanic(t *testing.T) {
	t.Parallel()

	c := testCredentials()
	c.VerifyAbsent("anything")
	c.VerifyAbsent("")
}

func TestCleanUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "  alice ", want: "alice"},
		{in: "Bob_99", want: "Bob_99"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "two words", wantErr: true},
		{in: "tab\there", wantErr: true},
		{in: string(make([]byte, MaxUsernameLen+1)), wantErr: true},
	}

	for _, tc := range cases {
		got, err := CleanUsername(tc.in)
		if tc.wantErr {
			assert.True(t, IsInvalidInput(err), "input %q", tc.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}
