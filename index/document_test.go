package index

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mjordan/bagit-indexer/bagit"
)

func sampleBag() *bagit.Bag {
	size := int64(1024)
	tags := bagit.NewTags()
	tags.Set("Source-Organization", "Acme")
	tags.Set("Bagging-Date", "2020-01-01")
	return &bagit.Bag{
		Location: "/bags/sample.zip",
		ID:       "sample",
		Root:     "sample",
		Version:  "0.97",
		Tags:     tags,
		Fetch: []bagit.FetchEntry{
			{URL: "http://example.com/a.tif", Size: &size, Target: "data/sub/dir/a.tif"},
			{URL: "http://example.com/b.tif", Target: "data/b.tif"},
		},
		Manifest: bagit.Manifest{
			FileName:  "manifest-sha1.txt",
			Algorithm: "sha1",
			Entries: []bagit.ManifestEntry{
				{Path: "data/z.txt", Checksum: "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
				{Path: "data/a.txt", Checksum: "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
			},
		},
	}
}

func sampleValidation() bagit.ValidationResult {
	return bagit.ValidationResult{
		Timestamp: time.Date(2021, 6, 7, 8, 9, 10, 0, time.FixedZone("EST", -5*3600)),
		Outcome:   bagit.Valid,
	}
}

func build(t *testing.T) *Document {
	doc, err := NewBuilder("/bags/sample.zip").
		Bag(sampleBag()).
		Validation(sampleValidation()).
		ContentHash(ContentHash{Algorithm: "sha1", Value: "abc123"}).
		DescriptiveText("Hello World").
		Build()
	require.NoError(t, err)
	return doc
}

func TestBuild(t *testing.T) {
	doc := build(t)
	assert.Equal(t, "sample", doc.ID)
	assert.Equal(t, "/bags/sample.zip", doc.Location)
	assert.Equal(t, "2021-06-07T13:09:10Z", doc.Validation.Timestamp)
	assert.Equal(t, "valid", doc.Validation.Outcome)
	assert.Nil(t, doc.Validation.Errors)
	assert.Equal(t, "0.97", doc.Version)
	assert.Equal(t, "Hello World", doc.DescriptiveText)
	assert.Equal(t, []string{"data/z.txt", "data/a.txt"}, doc.DataFiles)
	assert.Equal(t, "manifest-sha1.txt", doc.Manifest.FileName)

	require.Len(t, doc.FetchEntries, 2)
	assert.Equal(t, "a.tif", doc.FetchEntries[0].TargetName)
	assert.EqualValues(t, 1024, *doc.FetchEntries[0].Size)
	assert.Equal(t, "b.tif", doc.FetchEntries[1].TargetName)
	assert.Nil(t, doc.FetchEntries[1].Size)
}

func TestBuildCopies(t *testing.T) {
	bag := sampleBag()
	v := sampleValidation()
	v.Outcome = bagit.Invalid
	v.Errors = []string{"one"}
	doc, err := NewBuilder("x").Bag(bag).Validation(v).
		ContentHash(ContentHash{Algorithm: "sha1", Value: "abc"}).
		DescriptiveText("").Build()
	require.NoError(t, err)

	bag.Tags.Set("Source-Organization", "Changed")
	bag.Manifest.Entries[0].Checksum = "changed"
	*bag.Fetch[0].Size = 1
	v.Errors[0] = "changed"

	org, _ := doc.Tags.Get("Source-Organization")
	assert.Equal(t, "Acme", org)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", doc.Manifest.Entries[0].Checksum)
	assert.EqualValues(t, 1024, *doc.FetchEntries[0].Size)
	assert.Equal(t, []string{"one"}, doc.Validation.Errors)
}

func TestBuildIncomplete(t *testing.T) {
	_, err := NewBuilder("/bags/x.zip").Bag(sampleBag()).Build()
	var ierr *IncompleteDocumentError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, []string{"validation", "content hash", "descriptive text"}, ierr.Missing)

	_, err = NewBuilder("").
		Validation(sampleValidation()).
		ContentHash(ContentHash{Algorithm: "sha1", Value: "abc"}).
		DescriptiveText("").
		Build()
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, []string{"location", "bag"}, ierr.Missing)
	assert.Equal(t, "incomplete index document: missing location, bag", err.Error())
}

func TestDocumentJSON(t *testing.T) {
	b, err := json.Marshal(build(t))
	require.NoError(t, err)

	const expected = `{"location":"/bags/sample.zip",` +
		`"validation":{"timestamp":"2021-06-07T13:09:10Z","outcome":"valid"},` +
		`"contentHash":{"algorithm":"sha1","value":"abc123"},` +
		`"version":"0.97",` +
		`"fetchEntries":[{"sourceUrl":"http://example.com/a.tif","size":1024,"targetName":"a.tif"},` +
		`{"sourceUrl":"http://example.com/b.tif","targetName":"b.tif"}],` +
		`"descriptiveText":"Hello World",` +
		`"tags":{"Source-Organization":"Acme","Bagging-Date":"2020-01-01"},` +
		`"dataFiles":["data/z.txt","data/a.txt"],` +
		`"manifest":{"fileName":"manifest-sha1.txt","algorithm":"sha1",` +
		`"entries":{"data/z.txt":"aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d","data/a.txt":"da39a3ee5e6b4b0d3255bfef95601890afd80709"}}}`
	assert.Equal(t, expected, string(b))
	assert.NotContains(t, string(b), "pathPrefix")

	var back Document
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, build(t).Manifest, back.Manifest)
	assert.Equal(t, []string{"Source-Organization", "Bagging-Date"}, back.Tags.Names())
}

func TestEmptyBagJSON(t *testing.T) {
	doc, err := NewBuilder("/bags/empty").
		Bag(&bagit.Bag{ID: "empty", Version: "1.0", Tags: bagit.NewTags()}).
		Validation(sampleValidation()).
		ContentHash(ContentHash{Algorithm: "sha1", Value: "abc"}).
		DescriptiveText("").
		Build()
	require.NoError(t, err)
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"fetchEntries":[]`)
	assert.Contains(t, string(b), `"dataFiles":[]`)
	assert.Contains(t, string(b), `"tags":{}`)
	assert.Contains(t, string(b), `"entries":{}`)
}

func TestDocumentYAML(t *testing.T) {
	b, err := yaml.Marshal(build(t))
	require.NoError(t, err)
	var generic map[string]interface{}
	require.NoError(t, yaml.Unmarshal(b, &generic))
	assert.Equal(t, "Hello World", generic["descriptiveText"])
	manifest := generic["manifest"].(map[string]interface{})
	entries := manifest["entries"].(map[string]interface{})
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", entries["data/z.txt"])
	assert.NotContains(t, generic, "ID")
}

func TestHashArtifact(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "bag.zip")
	require.NoError(t, os.WriteFile(f, []byte("hello"), 0644))
	h, n, err := HashArtifact(f)
	require.NoError(t, err)
	assert.Equal(t, ContentHash{Algorithm: "sha1", Value: "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"}, h)
	assert.EqualValues(t, 5, n)

	bagdir := filepath.Join(dir, "bag")
	require.NoError(t, os.MkdirAll(filepath.Join(bagdir, "data"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bagdir, "bagit.txt"), []byte("BagIt-Version: 0.97\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(bagdir, "bag-info.txt"), []byte("A: 1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(bagdir, "data", "x.txt"), []byte("payload"), 0644))
	h, _, err = HashArtifact(bagdir)
	require.NoError(t, err)
	assert.Equal(t, "b89aa35d36596a2e9d57b073db8f8a528b4f41f5", h.Value)

	// a payload file changed in place changes the hash
	require.NoError(t, os.WriteFile(filepath.Join(bagdir, "data", "x.txt"), []byte("Payload"), 0644))
	h, _, err = HashArtifact(bagdir)
	require.NoError(t, err)
	assert.Equal(t, "ea32d41047674f9ff5f9c767e7c852d0ecfc6c24", h.Value)

	// so does an added file
	require.NoError(t, os.WriteFile(filepath.Join(bagdir, "data", "y.txt"), nil, 0644))
	h2, _, err := HashArtifact(bagdir)
	require.NoError(t, err)
	assert.NotEqual(t, h.Value, h2.Value)

	_, _, err = HashArtifact(filepath.Join(dir, "absent"))
	assert.True(t, os.IsNotExist(err))
}
