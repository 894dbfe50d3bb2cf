package index

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/mjordan/bagit-indexer/util"
)

// HashAlgorithm is used for content hashes.
const HashAlgorithm = util.SHA1

// HashArtifact computes the content hash of the bag at location. For an
// archive this is the checksum of the file itself. A directory has no single
// serialization, so its hash covers every regular file under it, sorted by
// slash separated relative path, each as its path, a NUL byte, its size in
// decimal, a NUL byte, and its content.
func HashArtifact(location string) (ContentHash, int64, error) {
	fi, err := os.Stat(location)
	if err != nil {
		return ContentHash{}, 0, err
	}
	hw, err := util.NewHashWriterPlain(HashAlgorithm)
	if err != nil {
		return ContentHash{}, 0, err
	}
	var n int64
	if fi.IsDir() {
		n, err = hashTree(hw, location)
	} else {
		n, err = hashFile(hw, location)
	}
	if err != nil {
		return ContentHash{}, n, err
	}
	return ContentHash{Algorithm: HashAlgorithm, Value: hw.Sum(HashAlgorithm)}, n, nil
}

func hashFile(w io.Writer, name string) (int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

func hashTree(w io.Writer, dir string) (int64, error) {
	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return 0, err
	}
	sort.Strings(names)
	var total int64
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return total, err
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return total, err
		}
		fmt.Fprintf(w, "%s\x00%d\x00", name, fi.Size())
		n, err := io.Copy(w, f)
		f.Close()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
