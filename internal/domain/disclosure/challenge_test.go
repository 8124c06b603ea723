package disclosure_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/sealab/internal/domain/disclosure"
)

func TestBuildChallenge_Exact(t *testing.T) {
	msg := disclosure.BuildChallenge(disclosure.Context{
		PublicKey:          "0xabc",
		ContractAddress:    "0xdef",
		ChainID:            1,
		WindowStart:        1000,
		WindowDurationDays: 30,
	})
	require.Equal(t,
		"publickey:0xabc\ncontractAddresses:0xdef\ncontractsChainId:1\nstartTimestamp:1000\ndurationDays:30",
		msg)
}

func TestGeneratePublicKey(t *testing.T) {
	a, err := disclosure.GeneratePublicKey()
	require.NoError(t, err)
	require.Len(t, a, 2002)
	require.True(t, strings.HasPrefix(a, "0x"))
	require.Regexp(t, `^0x[0-9a-f]+$`, a)

	b, err := disclosure.GeneratePublicKey()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestNewContext(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c, err := disclosure.NewContext("0xdef", 11155111, 30, now)
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000), c.WindowStart)
	require.Equal(t, now.Add(30*24*time.Hour), c.WindowEnd())

	_, err = disclosure.NewContext("", 1, 30, now)
	require.ErrorIs(t, err, disclosure.ErrInvalidInput)
	_, err = disclosure.NewContext("0xdef", 1, 0, now)
	require.ErrorIs(t, err, disclosure.ErrInvalidInput)
}

func TestContext_RejectsLineBreaks(t *testing.T) {
	c := disclosure.Context{PublicKey: "0xabc", ContractAddress: "0xdef\nevil:1", WindowDurationDays: 1}
	require.ErrorIs(t, c.Validate(), disclosure.ErrInvalidInput)
}
