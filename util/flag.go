package util

import (
	"fmt"
	"strings"
)

// ArrayFlags collects a repeatable CLI flag.
type ArrayFlags []string

func (r *ArrayFlags) String() string {
	str := make([]string, 0, len(*r))
	for i, v := range *r {
		str = append(str, fmt.Sprintf("%d: %s", i+1, v))
	}
	return strings.Join(str, ";")
}

func (r *ArrayFlags) Set(value string) error {
	*r = append(*r, value)
	return nil
}
