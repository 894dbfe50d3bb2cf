package main

import (
	"errors"
	"fmt"

	"github.com/mjordan/bagit-indexer/bagit"
	"github.com/mjordan/bagit-indexer/indexer"
)

var errNotValid = errors.New("not every bag is valid")

// Run validates each bag and prints its outcome. Every bag is checked even
// after one fails.
func (c *ValidateCmd) Run(deps *Dependencies) error {
	var failed bool
	v := bagit.NewValidator()
	for _, input := range c.Paths {
		paths, err := indexer.Enumerate(input)
		if err != nil {
			fmt.Fprintf(deps.Stdout, "%s: %s\n", input, err)
			failed = true
			continue
		}
		for _, p := range paths {
			if deps.Ctx.Err() != nil {
				return deps.Ctx.Err()
			}
			if !validateOne(deps, v, p) {
				failed = true
			}
		}
	}
	if failed {
		return errNotValid
	}
	return nil
}

func validateOne(deps *Dependencies, v *bagit.Validator, p string) bool {
	a, err := bagit.OpenArchive(p)
	if err != nil {
		fmt.Fprintf(deps.Stdout, "%s: unreadable: %s\n", p, err)
		return false
	}
	defer a.Close()
	b, err := bagit.Read(a, p)
	if err != nil {
		fmt.Fprintf(deps.Stdout, "%s: malformed: %s\n", p, err)
		return false
	}
	res := v.Validate(b, a)
	fmt.Fprintf(deps.Stdout, "%s: %s\n", p, res.Outcome)
	for _, e := range res.Errors {
		fmt.Fprintf(deps.Stdout, "    %s\n", e)
	}
	return res.Outcome == bagit.Valid
}
