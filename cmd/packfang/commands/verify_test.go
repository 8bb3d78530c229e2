package commands

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/packfang/pkg/config"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
	"github.com/Sumatoshi-tech/packfang/pkg/pack/packtest"
)

// threeObjectPack builds a pack with two blobs (one an ofs-delta) and a
// commit, in that on-disk order.
func threeObjectPack() packtest.Built {
	commit := "tree 3b18e512dba79e4c8300dd08aeb37f8e728b8dad\n" +
		"author Ada <ada@example.com> 1700000000 +0000\n" +
		"committer Ada <ada@example.com> 1700000000 +0000\n" +
		"\n" +
		"initial\n"

	builder := packtest.NewBuilder()
	base := builder.AddBase(object.Blob, []byte("the quick brown fox"))
	builder.AddOfsDelta(base, packtest.InsertDelta(19, []byte("jumps over the lazy dog")))
	builder.AddBase(object.Commit, []byte(commit))

	return builder.Build()
}

// writePackPair renders built into a temp directory and returns the pack
// file path.
func writePackPair(t *testing.T, built packtest.Built) string {
	t.Helper()

	dir := t.TempDir()
	packPath := filepath.Join(dir, "fixture.pack")

	require.NoError(t, os.WriteFile(packPath, built.PackData, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixture.idx"), built.IndexData, 0o644))

	return packPath
}

// verifyReport mirrors the yaml emitted by the verify command.
type verifyReport struct {
	IndexChecksum string `yaml:"index_checksum"`
	SafetyCheck   string `yaml:"safety_check"`
	Commits       uint32 `yaml:"commits"`
	Trees         uint32 `yaml:"trees"`
	Blobs         uint32 `yaml:"blobs"`
	Tags          uint32 `yaml:"tags"`
	TotalObjects  uint32 `yaml:"total_objects"`
}

func TestVerifyCommandReportsSoundPack(t *testing.T) {
	t.Parallel()

	packPath := writePackPair(t, threeObjectPack())

	command := newVerifyCommandWithDeps(testLoader(testConfig()))

	stdout, stderr, err := execute(t, command, packPath, "-q")
	require.NoError(t, err)

	assert.Contains(t, stderr, "OK")
	assert.Contains(t, stdout, "blobs")
	assert.Contains(t, stdout, "total objects")
}

func TestVerifyCommandYAMLReport(t *testing.T) {
	t.Parallel()

	built := threeObjectPack()
	packPath := writePackPair(t, built)

	command := newVerifyCommandWithDeps(testLoader(testConfig()))

	stdout, _, err := execute(t, command, packPath, "-q", "--format", "yaml")
	require.NoError(t, err)

	var report verifyReport
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &report))

	wantChecksum := hex.EncodeToString(built.IndexData[len(built.IndexData)-20:])
	assert.Equal(t, wantChecksum, report.IndexChecksum)
	assert.Equal(t, "all", report.SafetyCheck)
	assert.Equal(t, uint32(1), report.Commits)
	assert.Equal(t, uint32(2), report.Blobs)
	assert.Equal(t, uint32(0), report.Trees)
	assert.Equal(t, uint32(3), report.TotalObjects)
}

func TestVerifyCommandFailsOnChecksumMismatch(t *testing.T) {
	t.Parallel()

	built := threeObjectPack()
	built.PackData = packtest.FlipByte(built.PackData, 13)
	packPath := writePackPair(t, built)

	command := newVerifyCommandWithDeps(testLoader(testConfig()))

	_, stderr, err := execute(t, command, packPath, "-q")
	require.Error(t, err)

	var mismatch *pack.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Contains(t, stderr, "FAIL")
}

func TestVerifyCommandKeepGoingSkipsCorruptEntry(t *testing.T) {
	t.Parallel()

	built := threeObjectPack()
	// Break the adler32 trailer of the last entry, the commit.
	built.PackData = packtest.FlipByte(built.PackData, len(built.PackData)-21)
	packPath := writePackPair(t, built)

	command := newVerifyCommandWithDeps(testLoader(testConfig()))

	stdout, stderr, err := execute(t, command, packPath, "-q", "--keep-going", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, stderr, "OK")

	var report verifyReport
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "skip-file-and-object-checksum-no-abort", report.SafetyCheck)
	assert.Equal(t, uint32(0), report.Commits)
	assert.Equal(t, uint32(2), report.Blobs)
	assert.Equal(t, uint32(2), report.TotalObjects)
}

func TestVerifyCommandRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	packPath := writePackPair(t, threeObjectPack())

	command := newVerifyCommandWithDeps(testLoader(testConfig()))

	_, _, err := execute(t, command, packPath, "-q", "--format", "csv")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestVerifyCommandMissingPack(t *testing.T) {
	t.Parallel()

	command := newVerifyCommandWithDeps(testLoader(testConfig()))

	_, _, err := execute(t, command, filepath.Join(t.TempDir(), "absent.pack"), "-q")
	require.Error(t, err)
}

func TestResolveSafetyCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.VerifyConfig
		want pack.SafetyCheck
	}{
		{
			name: "defaults verify everything",
			cfg:  config.VerifyConfig{FileChecksum: true, ObjectChecksum: true},
			want: pack.All,
		},
		{
			name: "file checksum off",
			cfg:  config.VerifyConfig{FileChecksum: false, ObjectChecksum: true},
			want: pack.SkipFileChecksum,
		},
		{
			name: "object checksum off",
			cfg:  config.VerifyConfig{FileChecksum: false, ObjectChecksum: false},
			want: pack.SkipFileAndObjectChecksum,
		},
		{
			name: "object checksum off implies file checksum off",
			cfg:  config.VerifyConfig{FileChecksum: true, ObjectChecksum: false},
			want: pack.SkipFileAndObjectChecksum,
		},
		{
			name: "keep going wins",
			cfg:  config.VerifyConfig{FileChecksum: true, ObjectChecksum: true, KeepGoing: true},
			want: pack.SkipFileAndObjectChecksumNoAbortOnDecodeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, resolveSafetyCheck(tt.cfg))
		})
	}
}
