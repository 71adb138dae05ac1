package hpke

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dap-aggregator/messages"
)

func TestSealOpenRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair(1)
	require.NoError(t, err)

	taskID := messages.TaskID{1, 2, 3}
	info := InputShareInfo(taskID, true)
	aad := InputShareAAD([]byte("metadata"), []byte("public-share"))
	plaintext := []byte("input share bytes")

	ct, err := Seal(kp.Config, info, aad, plaintext)
	require.NoError(t, err)
	require.Equal(t, kp.Config.ID, ct.ConfigID)

	pt, err := Open(kp.Config, kp.PrivateKey, ct, info, aad)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestOpenRejectsConfigIDMismatch(t *testing.T) {
	kp, err := GenerateKeyPair(1)
	require.NoError(t, err)

	taskID := messages.TaskID{1}
	info := InputShareInfo(taskID, true)
	ct, err := Seal(kp.Config, info, nil, []byte("x"))
	require.NoError(t, err)

	ct.ConfigID = 2
	_, err = Open(kp.Config, kp.PrivateKey, ct, info, nil)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestOpenRejectsAADMismatch(t *testing.T) {
	kp, err := GenerateKeyPair(1)
	require.NoError(t, err)

	taskID := messages.TaskID{1}
	info := InputShareInfo(taskID, true)
	ct, err := Seal(kp.Config, info, []byte("aad-1"), []byte("x"))
	require.NoError(t, err)

	_, err = Open(kp.Config, kp.PrivateKey, ct, info, []byte("aad-2"))
	require.Error(t, err)
}

func TestUnimplementedCodepoint(t *testing.T) {
	cfg := messages.HpkeConfig{ID: 1, KemID: 0xffff, KdfID: messages.KdfHkdfSha256, AeadID: messages.AeadAes128Gcm}
	require.False(t, cfg.KemRecognized())
	_, err := Seal(cfg, nil, nil, []byte("x"))
	require.ErrorIs(t, err, ErrUnimplementedConfig)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	kp, err := GenerateKeyPair(1)
	require.NoError(t, err)
	reg.Add(kp)

	active, ok := reg.ActiveConfig()
	require.True(t, ok)
	require.Equal(t, uint8(1), active.ID)

	taskID := messages.TaskID{1}
	info := InputShareInfo(taskID, true)
	ct, err := Seal(kp.Config, info, nil, []byte("payload"))
	require.NoError(t, err)

	pt, err := reg.Open(ct, info, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), pt)

	ct.ConfigID = 99
	_, err = reg.Open(ct, info, nil)
	require.ErrorIs(t, err, ErrConfigNotFound)
}
