package dailyupdate

import (
	"bufio"
	"errors"
	"os"
	"strings"
)

// LoadSymbols reads one symbol per line from file (text after '#' is ignored)
// and appends the comma separated lists in args. Duplicates are dropped,
// first occurrence wins. A missing file contributes nothing.
func LoadSymbols(file string, args []string) ([]string, error) {
	var raw []string
	if file != "" {
		f, err := os.Open(file)
		switch {
		case err == nil:
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line, _, _ := strings.Cut(scanner.Text(), "#")
				if s := strings.TrimSpace(line); s != "" {
					raw = append(raw, s)
				}
			}
			err = scanner.Err()
			f.Close()
			if err != nil {
				return nil, err
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if s := strings.TrimSpace(part); s != "" {
				raw = append(raw, s)
			}
		}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}
