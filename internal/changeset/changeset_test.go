package changeset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belgiumluv/docker-cont/internal/domain"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
)

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpn", "changes_dict.json")
	cs := domain.ChangeSet{
		"v10-vless-ws":    "/assetsABC",
		"v10-vless-grpc":  "apiXYZ",
		"realityin_43124": "priv_key-value",
	}

	require.NoError(t, Write(path, cs))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, cs, got)
}

func TestEncodeIsStable(t *testing.T) {
	cs := domain.ChangeSet{"b": "/2", "a": "/1&<x>"}

	out, err := Encode(cs)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"a\": \"/1&<x>\",\n    \"b\": \"/2\"\n}\n", string(out))

	again, err := Encode(cs)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestWriteReplacesPreviousArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes_dict.json")
	require.NoError(t, Write(path, domain.ChangeSet{"old": "/x"}))
	require.NoError(t, Write(path, domain.ChangeSet{"new": "/y"}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeSet{"new": "/y"}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "changes_dict.json"))
	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeMissingPrerequisite, rerrors.GetErrorCode(err))
}

func TestDecodeRejectsNonFlatObjects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "array", data: `["/a"]`},
		{name: "null", data: `null`},
		{name: "nested", data: `{"v10-vless-ws": {"path": "/a"}}`},
		{name: "number", data: `{"v10-vless-ws": 5}`},
		{name: "null value", data: `{"v10-vless-ws": null}`},
		{name: "null among strings", data: `{"v10-vless-tcp": "/user1", "v10-vless-ws": null}`},
		{name: "garbage", data: `v10-vless-ws=/a`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			require.Error(t, err)
			assert.Equal(t, rerrors.ErrCodeInvalidInput, rerrors.GetErrorCode(err))
		})
	}
}

func TestDecodeEmptyObject(t *testing.T) {
	cs, err := Decode([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, cs)
}
