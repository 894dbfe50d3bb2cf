package bagit

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	var table = []struct {
		name     string
		contents zdata
		nerrors  int
	}{
		{"ok-1", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n5d41402abc4b2a76b9719d911017c592 data/hello2\n",
			"tagmanifest-md5.txt": "04cf2a9d73f5e9d0f78065166da0aef6 manifest-md5.txt\n9e5ad981e0d29adc278f6a294b8c2aca bagit.txt\n",
		}, 0},
		// upper case checksums are fine
		{"ok-2", zdata{
			"data/hello1":       "hello",
			"manifest-sha1.txt": "AAF4C61DDCC5E8A2DABEDE0F3B482CD9AEA9434D data/hello1\n",
		}, 0},
		// extra payload file
		{"extra-1", zdata{
			"data/hello1":      "hello",
			"data/hello2":      "hello",
			"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
		}, 1},
		// missing payload file
		{"missing-1", zdata{
			"data/hello1":         "hello",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello1\n2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
		}, 1},
		// missing tag file
		{"missing-2", zdata{
			"data/hello1":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"tagmanifest-md5.txt": "9e5ad981e0d29adc278f6a294b8c2aca bagit.txt\nd41d8cd98f00b204e9800998ecf8427e missing.txt\n",
		}, 1},
		// mismatch payload file
		{"checksum-1", zdata{
			"data/hello1":      "hello",
			"data/hello2":      "hello",
			"manifest-md5.txt": "00000000000000000000000000000000 data/hello1\n5d41402abc4b2a76b9719d911017c592 data/hello2\n",
		}, 1},
		// mismatch tag file
		{"checksum-2", zdata{
			"data/hello1":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"tagmanifest-md5.txt": "00000000000000000000000000000000 bagit.txt\n",
		}, 1},
		// extra tag files are not payload
		{"checksum-3", zdata{
			"data/hello1":      "hello",
			"tagfile.txt":      "extra tag file",
			"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
		}, 0},
		// missing final newline
		{"manifest-1", zdata{
			"data/hello1":      "hello",
			"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 data/hello1",
		}, 0},
		// every kind of problem at once
		{"all-1", zdata{
			"data/hello1":      "hello",
			"data/hello2":      "altered",
			"data/zzz":         "hello",
			"data/aaa":         "hello",
			"fetch.txt":        "http://example.com/x 5 data/x\nbroken\n",
			"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 data/hello1\n5d41402abc4b2a76b9719d911017c592 data/hello2\n5d41402abc4b2a76b9719d911017c592 data/hello3\n",
		}, 5},
	}

	v := NewValidator()
	for _, tab := range table {
		t.Logf("Doing %s", tab.name)
		a := openzip(t, tab.name, tab.contents)
		bag, err := Read(a, tab.name)
		require.NoError(t, err, tab.name)

		result := v.Validate(bag, a)
		assert.Len(t, result.Errors, tab.nerrors, "%s: %v", tab.name, result.Errors)
		assert.Len(t, result.Problems, tab.nerrors, tab.name)
		if tab.nerrors == 0 {
			assert.Equal(t, Valid, result.Outcome, tab.name)
		} else {
			assert.Equal(t, Invalid, result.Outcome, tab.name)
		}
	}
}

func TestVerifyOrder(t *testing.T) {
	a := NewMemArchive().
		Add("b/bagit.txt", declaration).
		Add("b/data/zzz", "hello").
		Add("b/data/hello2", "altered").
		Add("b/data/aaa", "hello").
		Add("b/fetch.txt", "broken\n").
		Add("b/manifest-md5.txt",
			"5d41402abc4b2a76b9719d911017c592 data/hello3\n"+
				"5d41402abc4b2a76b9719d911017c592 data/hello2\n")
	bag, err := Read(a, "b")
	require.NoError(t, err)

	result := NewValidator().Validate(bag, a)
	require.Len(t, result.Problems, 5)

	var missing *MissingFileError
	require.True(t, errors.As(result.Problems[0], &missing))
	assert.Equal(t, "data/hello3", missing.Path)
	assert.Equal(t, "manifest-md5.txt", missing.Manifest)

	var mismatch *ChecksumMismatchError
	require.True(t, errors.As(result.Problems[1], &mismatch))
	assert.Equal(t, "data/hello2", mismatch.Path)
	assert.Equal(t, "md5", mismatch.Algorithm)

	var extra *UnmanifestedFileError
	require.True(t, errors.As(result.Problems[2], &extra))
	assert.Equal(t, "data/aaa", extra.Path)
	require.True(t, errors.As(result.Problems[3], &extra))
	assert.Equal(t, "data/zzz", extra.Path)

	var fetch *MalformedFetchError
	require.True(t, errors.As(result.Problems[4], &fetch))
	assert.Equal(t, 1, fetch.Line)

	assert.Equal(t, result.Problems[1].Error(), result.Errors[1])
	assert.EqualValues(t, len("altered"), result.BytesRead)
}

func TestVerifyHoleyBag(t *testing.T) {
	a := NewMemArchive().
		Add("h/bagit.txt", declaration).
		Add("h/data/here.txt", "hello").
		Add("h/fetch.txt", "http://example.com/there.txt 5 data/there.txt\n").
		Add("h/manifest-md5.txt",
			"5d41402abc4b2a76b9719d911017c592 data/here.txt\n"+
				"5d41402abc4b2a76b9719d911017c592 data/there.txt\n")
	bag, err := Read(a, "h")
	require.NoError(t, err)

	result := NewValidator().Validate(bag, a)
	assert.Equal(t, Valid, result.Outcome, "%v", result.Errors)
	assert.Empty(t, result.Errors)
}

func TestVerifyTimestamp(t *testing.T) {
	mock := clock.NewMock()
	mock.Add(time.Hour)
	v := &Validator{Clock: mock}

	a := NewMemArchive().Add("t/bagit.txt", declaration)
	bag, err := Read(a, "t")
	require.NoError(t, err)

	result := v.Validate(bag, a)
	assert.Equal(t, time.UTC, result.Timestamp.Location())
	assert.True(t, result.Timestamp.Equal(mock.Now()))
}

func TestVerifyDoesNotChangeBag(t *testing.T) {
	a := NewMemArchive().
		Add("b/bagit.txt", declaration).
		Add("b/data/hello1", "hello").
		Add("b/manifest-md5.txt", "5d41402abc4b2a76b9719d911017c592 data/hello1\n")
	bag, err := Read(a, "b")
	require.NoError(t, err)
	before := *bag
	before.Manifest.Entries = append([]ManifestEntry(nil), bag.Manifest.Entries...)

	NewValidator().Validate(bag, a)
	NewValidator().Validate(bag, a)
	assert.Equal(t, before.Manifest, bag.Manifest)
	assert.Equal(t, before.Tags.Names(), bag.Tags.Names())
}

func TestVerifyDamagedZipMember(t *testing.T) {
	var buf bytes.Buffer
	makezipfile(&buf, zdata{
		"data/a": "alpha content",
		"data/b": "bravo content",
		"data/c": "charlie content",
		"manifest-md5.txt": "eb4d7780082d0362fdefdcef0d81343b data/a\n" +
			"e654cb16d9f687fd3422ffebbac0f7d6 data/b\n" +
			"c1abd4967293cb3e33b251eb2ed85182 data/c\n",
	})
	// flip bytes of a stored member in place, so its CRC no longer matches
	data := bytes.Replace(buf.Bytes(), []byte("bravo content"), []byte("bravo CONTENT"), 1)
	a, err := NewZipArchive(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	bag, err := Read(a, "test.zip")
	require.NoError(t, err)

	result := NewValidator().Validate(bag, a)
	require.Len(t, result.Problems, 1, "%v", result.Errors)
	var unreadable *UnreadableFileError
	require.True(t, errors.As(result.Problems[0], &unreadable), "%v", result.Problems[0])
	assert.Equal(t, "data/b", unreadable.Path)
	assert.Equal(t, Invalid, result.Outcome)
}

func TestVerifyUnopenableFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "d")
	files := zdata{
		"bagit.txt": declaration,
		"data/a":    "alpha content",
		"data/b":    "bravo content",
		"manifest-md5.txt": "eb4d7780082d0362fdefdcef0d81343b data/a\n" +
			"e654cb16d9f687fd3422ffebbac0f7d6 data/b\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	a, err := NewDirArchive(dir)
	require.NoError(t, err)
	bag, err := Read(a, dir)
	require.NoError(t, err)

	// listed when the archive was opened, gone when it is walked
	require.NoError(t, os.Remove(filepath.Join(dir, "data", "a")))
	result := NewValidator().Validate(bag, a)
	require.Len(t, result.Problems, 1, "%v", result.Errors)
	var unreadable *UnreadableFileError
	require.True(t, errors.As(result.Problems[0], &unreadable), "%v", result.Problems[0])
	assert.Equal(t, "data/a", unreadable.Path)
}

func TestVerifyManyFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("large bag")
	}
	const n = 40000
	a := NewMemArchive().Add("m/bagit.txt", declaration)
	var manifest strings.Builder
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("data/f%05d", i)
		a.Add("m/"+name, "x")
		// md5 of "x"
		fmt.Fprintf(&manifest, "9dd4e461268c8034f5c8564e155c67a6 %s\n", name)
	}
	a.Add("m/manifest-md5.txt", manifest.String())
	bag, err := Read(a, "m")
	require.NoError(t, err)

	start := time.Now()
	result := NewValidator().Validate(bag, a)
	elapsed := time.Since(start)
	assert.Equal(t, Valid, result.Outcome, "%v", result.Errors)
	assert.EqualValues(t, n, result.BytesRead)
	// a scan of the manifest per file takes seconds here
	assert.Less(t, elapsed, 2*time.Second)
}
