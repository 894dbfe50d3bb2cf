package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/mjordan/bagit-indexer/bagit"
)

// Run packages the source directory as a zipped bag.
func (c *BagCmd) Run(deps *Dependencies) error {
	out, err := os.Create(c.Out)
	if err != nil {
		return err
	}
	bw := bagit.NewWriter(out, bagit.BagID(c.Out))
	for _, t := range c.Tags {
		name, value, ok := strings.Cut(t, "=")
		if !ok || strings.TrimSpace(name) == "" {
			out.Close()
			os.Remove(c.Out)
			return fmt.Errorf("tag %q is not NAME=VALUE", t)
		}
		bw.SetTag(strings.TrimSpace(name), value)
	}

	var nfiles int
	err = filepath.WalkDir(c.Source, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(c.Source, p)
		if err != nil {
			return err
		}
		nfiles++
		return copyInto(bw, filepath.ToSlash(rel), p)
	})
	if err == nil {
		err = bw.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(c.Out)
		return err
	}

	fi, err := os.Stat(c.Out)
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "wrote %s: %d files, %s\n", c.Out, nfiles, humanize.Bytes(uint64(fi.Size())))
	return nil
}

func copyInto(bw *bagit.Writer, name, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := bw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return errors.Wrap(err, name)
}
