package bagit

import (
	"bufio"
	"encoding/hex"
	"io"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mjordan/bagit-indexer/util"
)

// manifest algorithms we understand, most preferred first
var manifestAlgorithms = []string{util.SHA512, util.SHA256, util.SHA1, util.MD5}

// Read parses the structural files of the bag held in a. The location is
// recorded in the bag and used to derive its ID.
//
// The checksums are not checked. Use a Validator for that.
func Read(a Archive, location string) (*Bag, error) {
	files := a.Files()
	root, ok := findRoot(files)
	if !ok {
		return nil, malformed("bagit.txt", 0, "not found")
	}
	bag := &Bag{
		Location: location,
		ID:       BagID(location),
		Root:     root,
		Tags:     NewTags(),
	}

	decl, err := readTagFile(a, bag.entry("bagit.txt"), "bagit.txt")
	if err != nil {
		return nil, err
	}
	var found bool
	bag.Version, found = decl.Get("BagIt-Version")
	if !found || bag.Version == "" {
		return nil, malformed("bagit.txt", 0, "no BagIt-Version")
	}
	bag.Encoding, _ = decl.Get("Tag-File-Character-Encoding")

	present := make(map[string]bool, len(files))
	for _, name := range files {
		present[name] = true
	}

	// bag-info.txt is optional
	if present[bag.entry("bag-info.txt")] {
		bag.Tags, err = readTagFile(a, bag.entry("bag-info.txt"), "bag-info.txt")
		if err != nil {
			return nil, err
		}
	}

	if present[bag.entry("fetch.txt")] {
		err = bag.readFetch(a)
		if err != nil {
			return nil, err
		}
	}

	bag.Manifest, err = readPreferredManifest(a, bag, present, "manifest-")
	if err != nil {
		return nil, err
	}
	bag.TagManifest, err = readPreferredManifest(a, bag, present, "tagmanifest-")
	if err != nil {
		return nil, err
	}
	return bag, nil
}

// readPreferredManifest reads the manifest with the strongest algorithm
// among those present. It returns an empty Manifest if there are none.
func readPreferredManifest(a Archive, bag *Bag, present map[string]bool, kind string) (Manifest, error) {
	for _, alg := range manifestAlgorithms {
		fname := kind + alg + ".txt"
		if present[bag.entry(fname)] {
			return readManifest(a, bag.entry(fname), fname, alg)
		}
	}
	return Manifest{}, nil
}

// findRoot returns the folder containing bagit.txt. A bagit.txt at the top
// level wins over one inside a folder.
func findRoot(files []string) (string, bool) {
	var root string
	var found bool
	for _, name := range files {
		if name == "bagit.txt" {
			return "", true
		}
		dir, file := path.Split(name)
		if found || file != "bagit.txt" {
			continue
		}
		dir = strings.TrimSuffix(dir, "/")
		if !strings.Contains(dir, "/") {
			root, found = dir, true
		}
	}
	return root, found
}

// readTagFile parses a file of "Name: value" lines. Lines beginning with
// white space continue the previous value. Blank lines are ignored.
func readTagFile(a Archive, name, label string) (*Tags, error) {
	rc, err := a.Open(name)
	if err != nil {
		return nil, &MalformedBagError{File: label, Err: err}
	}
	defer rc.Close()

	tags := NewTags()
	var tag, value string
	flush := func() {
		if tag != "" {
			tags.Set(tag, value)
		}
	}
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if lineno == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if tag == "" {
				return nil, malformed(label, lineno, "continuation line without a tag")
			}
			value = value + " " + strings.TrimSpace(line)
			continue
		}
		i := strings.Index(line, ":")
		if i <= 0 {
			return nil, malformed(label, lineno, "missing colon")
		}
		flush()
		tag = line[:i]
		value = line[i+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, &MalformedBagError{File: label, Err: err}
	}
	flush()
	return tags, nil
}

var fetchLine = regexp.MustCompile(`^(\S+)[ \t]+(\S+)[ \t]+(.+)$`)

// readFetch records the lines of fetch.txt. Lines that are not well formed
// are kept in FetchLines rather than making the whole bag unreadable.
func (b *Bag) readFetch(a Archive) error {
	rc, err := a.Open(b.entry("fetch.txt"))
	if err != nil {
		return &MalformedBagError{File: "fetch.txt", Err: err}
	}
	defer rc.Close()
	scanner := bufio.NewScanner(rc)
	lineno := 0
	for scanner.Scan() {
		lineno++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		entry, reason := parseFetchLine(text)
		if reason != "" {
			b.FetchLines = append(b.FetchLines, FetchLine{Line: lineno, Text: text, Reason: reason})
			continue
		}
		b.Fetch = append(b.Fetch, entry)
	}
	if err := scanner.Err(); err != nil {
		return &MalformedBagError{File: "fetch.txt", Err: err}
	}
	return nil
}

func parseFetchLine(text string) (FetchEntry, string) {
	m := fetchLine.FindStringSubmatch(text)
	if m == nil {
		return FetchEntry{}, "expected URL, LENGTH and FILENAME"
	}
	var entry FetchEntry
	u, err := url.Parse(m[1])
	if err != nil || u.Scheme == "" {
		return entry, "invalid URL"
	}
	entry.URL = m[1]
	if m[2] != "-" {
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil || n < 0 {
			return entry, "invalid length"
		}
		entry.Size = &n
	}
	entry.Target = decodePath(strings.TrimSpace(m[3]))
	if entry.Target == "" || strings.HasPrefix(path.Clean(entry.Target), "..") {
		return entry, "invalid file name"
	}
	return entry, ""
}

// readManifest parses a manifest file. Each line has a hex checksum and a
// path separated by white space.
func readManifest(a Archive, name, label, alg string) (Manifest, error) {
	m := Manifest{FileName: label, Algorithm: alg}
	h, err := util.NewHash(alg)
	if err != nil {
		return m, &MalformedBagError{File: label, Err: err}
	}
	size := h.Size() * 2

	rc, err := a.Open(name)
	if err != nil {
		return m, &MalformedBagError{File: label, Err: err}
	}
	defer rc.Close()
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i < 0 {
			return m, malformed(label, lineno, "expected checksum and path")
		}
		checksum := line[:i]
		p := strings.TrimLeft(line[i:], " \t")
		// GNU md5sum marks binary mode with an asterisk
		p = strings.TrimPrefix(p, "*")
		p = strings.TrimPrefix(decodePath(p), "./")
		if p == "" {
			return m, malformed(label, lineno, "expected checksum and path")
		}
		if _, err := hex.DecodeString(checksum); err != nil || len(checksum) != size {
			return m, malformed(label, lineno, "invalid %s checksum %q", alg, checksum)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		m.Entries = append(m.Entries, ManifestEntry{Path: p, Checksum: checksum})
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return m, &MalformedBagError{File: label, Err: err}
	}
	return m, nil
}

// decodePath undoes the percent encoding BagIt 1.0 applies to line breaks
// and percent signs in file names.
func decodePath(p string) string {
	if !strings.Contains(p, "%") {
		return p
	}
	r := strings.NewReplacer("%0A", "\n", "%0a", "\n", "%0D", "\r", "%0d", "\r", "%25", "%")
	return r.Replace(p)
}
