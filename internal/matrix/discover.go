package matrix

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/signalnine/simbench/internal/config"
)

var firstInt = regexp.MustCompile(`\d+`)

// leadingCount returns the first integer in name, or -1.
func leadingCount(name string) int {
	m := firstInt.FindString(name)
	if m == "" {
		return -1
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return -1
	}
	return n
}

func populationOf(name string) int {
	if n := leadingCount(name); n > 0 {
		return n
	}
	return 1
}

// DiscoverModels lists *.xml files in dir ordered by the first integer in
// the file name, then by name. Files without a number sort first and
// count as a population of one.
func DiscoverModels(dir string) ([]config.Model, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning models: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := leadingCount(names[i]), leadingCount(names[j])
		if ci != cj {
			return ci < cj
		}
		return names[i] < names[j]
	})
	models := make([]config.Model, len(names))
	for i, n := range names {
		models[i] = config.Model{Count: populationOf(n), File: n}
	}
	return models, nil
}
