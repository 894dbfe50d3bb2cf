package bagit

import (
	"archive/zip"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjordan/bagit-indexer/store"
)

type zdata map[string]string

const declaration = "BagIt-Version: 0.97\nTag-File-Character-Encoding: UTF-8\n"

// makezipfile writes contents as a zip file with every name inside the
// folder "test/". A bagit.txt is added unless contents has a "bagit.txt" key,
// which may be given as "" to leave it out.
func makezipfile(w io.Writer, contents zdata) {
	const dirname = "test/"
	if _, ok := contents["bagit.txt"]; !ok {
		contents["bagit.txt"] = declaration
	}
	z := zip.NewWriter(w)
	for k, v := range contents {
		if k == "bagit.txt" && v == "" {
			continue
		}
		header := zip.FileHeader{
			Name:   dirname + k,
			Method: zip.Store,
		}
		header.Modified = time.Now()
		out, _ := z.CreateHeader(&header)
		out.Write([]byte(v))
	}
	z.Close()
}

// openzip stores contents as a zip file in a memory store and opens it.
func openzip(t *testing.T, name string, contents zdata) *ZipArchive {
	t.Helper()
	mstore := store.NewMemory()
	f, err := mstore.Create(name)
	require.NoError(t, err)
	makezipfile(f, contents)
	require.NoError(t, f.Close())

	f2, size, err := mstore.Open(name)
	require.NoError(t, err)
	a, err := NewZipArchive(f2, size)
	require.NoError(t, err)
	return a
}

func TestRead(t *testing.T) {
	a := openzip(t, "test.zip", zdata{
		"bag-info.txt":     "Source-Organization:  Acme \nContact-Name: Nobody\n",
		"data/hello1":      "hello",
		"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592  data/hello1\n",
	})
	bag, err := Read(a, "/bags/test.zip")
	require.NoError(t, err)

	assert.Equal(t, "/bags/test.zip", bag.Location)
	assert.Equal(t, "test", bag.ID)
	assert.Equal(t, "test", bag.Root)
	assert.Equal(t, "0.97", bag.Version)
	assert.Equal(t, "UTF-8", bag.Encoding)
	org, _ := bag.Tags.Get("Source-Organization")
	assert.Equal(t, "Acme", org)
	assert.Equal(t, []string{"Source-Organization", "Contact-Name"}, bag.Tags.Names())
	assert.Equal(t, "manifest-md5.txt", bag.Manifest.FileName)
	assert.Equal(t, "md5", bag.Manifest.Algorithm)
	assert.Equal(t, []string{"data/hello1"}, bag.DataFiles())
	assert.Empty(t, bag.Fetch)
}

func TestReadMalformed(t *testing.T) {
	var table = []struct {
		name     string
		contents zdata
		file     string // expected file in the MalformedBagError
	}{
		{"no-bagit", zdata{"bagit.txt": "", "data/hello1": "hello"}, "bagit.txt"},
		{"no-version", zdata{"bagit.txt": "Tag-File-Character-Encoding: UTF-8\n"}, "bagit.txt"},
		{"tag-no-colon", zdata{"bag-info.txt": "first tag:important\nthis line has no colon\n"}, "bag-info.txt"},
		{"tag-leading-continuation", zdata{"bag-info.txt": "  continues nothing\n"}, "bag-info.txt"},
		// manifest not hex
		{"manifest-1", zdata{
			"data/hello1":      "hello",
			"manifest-md5.txt": "thisisnothexdata0000000000000000 data/hello1\n",
		}, "manifest-md5.txt"},
		// manifest line only has hash
		{"manifest-2", zdata{
			"data/hello2":         "hello",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824\n",
		}, "manifest-sha256.txt"},
		// checksum is the wrong length for the algorithm
		{"manifest-3", zdata{
			"data/hello1":       "hello",
			"manifest-sha1.txt": "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
		}, "manifest-sha1.txt"},
	}

	for _, tab := range table {
		t.Logf("Doing %s", tab.name)
		a := openzip(t, tab.name, tab.contents)
		_, err := Read(a, tab.name)
		var merr *MalformedBagError
		if assert.True(t, errors.As(err, &merr), "%s: received %v", tab.name, err) {
			assert.Equal(t, tab.file, merr.File, tab.name)
		}
	}
}

func TestTagParser(t *testing.T) {
	var table = []struct {
		name     string
		contents zdata
		tags     []string // name, value pairs
	}{
		// Parse normal tag file
		{"ok-1",
			zdata{
				"bag-info.txt": "a-tag: some text\nanother-tag: more text\n  extended line",
			},
			[]string{"a-tag", "some text", "another-tag", "more text extended line"},
		},
		{"ok-2",
			zdata{
				"bag-info.txt": "first tag:important\n\n this line continues the first\n",
			},
			[]string{"first tag", "important this line continues the first"},
		},
		// last value wins, first position is kept
		{"ok-3",
			zdata{
				"bag-info.txt": "B: 1\r\nA: 2\r\nB: 3\r\n",
			},
			[]string{"B", "3", "A", "2"},
		},
		{"bom",
			zdata{
				"bag-info.txt": "\ufeffExternal-Description: a bag\n",
			},
			[]string{"External-Description", "a bag"},
		},
		{"empty", zdata{"bag-info.txt": ""}, nil},
		{"absent", zdata{}, nil},
	}

	for _, tab := range table {
		t.Logf("Doing %s", tab.name)
		a := openzip(t, tab.name, tab.contents)
		bag, err := Read(a, tab.name)
		require.NoError(t, err)
		var got []string
		for _, name := range bag.Tags.Names() {
			v, _ := bag.Tags.Get(name)
			got = append(got, name, v)
		}
		assert.Equal(t, tab.tags, got, tab.name)
	}
}

func TestFetch(t *testing.T) {
	a := openzip(t, "fetch", zdata{
		"fetch.txt": "http://example.com/a.tif 1024 data/sub/dir/a.tif\n" +
			"https://example.com/b.tif - data/b file.tif\n" +
			"\n" +
			"not-a-url 12 data/c.tif\n" +
			"http://example.com/d.tif -5 data/d.tif\n" +
			"http://example.com/e.tif\n",
	})
	bag, err := Read(a, "fetch")
	require.NoError(t, err)

	require.Len(t, bag.Fetch, 2)
	assert.Equal(t, "http://example.com/a.tif", bag.Fetch[0].URL)
	require.NotNil(t, bag.Fetch[0].Size)
	assert.EqualValues(t, 1024, *bag.Fetch[0].Size)
	assert.Equal(t, "data/sub/dir/a.tif", bag.Fetch[0].Target)
	assert.Nil(t, bag.Fetch[1].Size)
	assert.Equal(t, "data/b file.tif", bag.Fetch[1].Target)

	require.Len(t, bag.FetchLines, 3)
	assert.Equal(t, 4, bag.FetchLines[0].Line)
	assert.Equal(t, "invalid URL", bag.FetchLines[0].Reason)
	assert.Equal(t, "invalid length", bag.FetchLines[1].Reason)
	assert.Equal(t, 6, bag.FetchLines[2].Line)
}

func TestManifestPreference(t *testing.T) {
	a := openzip(t, "pref", zdata{
		"data/hello1":         "hello",
		"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
		"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 *./data/hello1\n",
		"tagmanifest-md5.txt": "9e5ad981e0d29adc278f6a294b8c2aca bagit.txt\n",
	})
	bag, err := Read(a, "pref")
	require.NoError(t, err)
	assert.Equal(t, "sha256", bag.Manifest.Algorithm)
	assert.Equal(t, "manifest-sha256.txt", bag.Manifest.FileName)
	assert.Equal(t, []string{"data/hello1"}, bag.DataFiles())
	assert.Equal(t, "tagmanifest-md5.txt", bag.TagManifest.FileName)

	sum, ok := bag.Manifest.Lookup("data/hello1")
	assert.True(t, ok)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
	_, ok = bag.Manifest.Lookup("data/hello3")
	assert.False(t, ok)
}

func TestNoManifest(t *testing.T) {
	a := openzip(t, "bare", zdata{"data/hello1": "hello"})
	bag, err := Read(a, "bare")
	require.NoError(t, err)
	assert.Empty(t, bag.Manifest.Entries)
	assert.Empty(t, bag.DataFiles())
}

func TestTopLevelRoot(t *testing.T) {
	a := NewMemArchive().
		Add("bagit.txt", declaration).
		Add("data/x.txt", "x")
	bag, err := Read(a, "/some/dir/flat")
	require.NoError(t, err)
	assert.Equal(t, "", bag.Root)
	assert.Equal(t, "flat", bag.ID)
}

func TestBagID(t *testing.T) {
	var table = []struct{ input, output string }{
		{"/bags/one.zip", "one"},
		{"/bags/two.tar.gz", "two"},
		{"/bags/three.TGZ", "three"},
		{"four.tar", "four"},
		{"/bags/bag.v1", "bag.v1"},
		{"/bags/dirbag/", "dirbag"},
		{".zip", ".zip"},
	}
	for _, tab := range table {
		assert.Equal(t, tab.output, BagID(tab.input), tab.input)
	}
}

func TestDecodePath(t *testing.T) {
	assert.Equal(t, "data/a%b", decodePath("data/a%25b"))
	assert.Equal(t, "data/line\nbreak", decodePath("data/line%0Abreak"))
	assert.Equal(t, "data/plain", decodePath("data/plain"))
}
