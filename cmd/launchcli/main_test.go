package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCreation(t *testing.T, args ...string) creationArgs {
	t.Helper()
	fs := flag.NewFlagSet("prepare", flag.ContinueOnError)
	c := creationFlags(fs)
	require.NoError(t, fs.Parse(args))
	return c
}

func TestCreationArgs(t *testing.T) {
	c := parseCreation(t, "-name", "Pepe", "-symbol", "pepe", "-supply", "1000000",
		"-creator", "0x00000000000000000000000000000000000C0FFE",
		"-lp-tokens", "500000", "-lp-native", "0.25")
	req, err := c.request()
	require.NoError(t, err)
	assert.Equal(t, "1000000", req.InitialSupply.String())
	assert.Equal(t, uint8(18), req.Decimals)
	assert.Equal(t, "basic", req.Tier)
	require.NotNil(t, req.Liquidity)
	assert.Equal(t, "250000000000000000", req.Liquidity.NativeAmount.String())

	c = parseCreation(t, "-supply", "10")
	req, err = c.request()
	require.NoError(t, err)
	assert.Nil(t, req.Liquidity)

	_, err = parseCreation(t, "-supply", "10", "-lp-tokens", "5").request()
	assert.ErrorContains(t, err, "lp-native")

	_, err = parseCreation(t, "-supply", "ten").request()
	assert.ErrorContains(t, err, "supply")

	_, err = parseCreation(t, "-supply", "10", "-decimals", "300").request()
	assert.ErrorContains(t, err, "decimals")
}

func TestMaskHex(t *testing.T) {
	assert.Equal(t, "(not set)", maskHex(""))
	assert.Equal(t, "***", maskHex("0x1234"))
	assert.Equal(t, "0xb71c…f291", maskHex("0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"))
}
