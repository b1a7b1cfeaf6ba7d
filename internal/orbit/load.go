package orbit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Load reads an orbit file, choosing the format by extension (.EOF, .xml)
// or, failing that, by whether the content starts with '<'. from and to
// crop Earth Explorer files; they are ignored for text tables.
func Load(path string, from, to time.Time) (*Orbit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening orbit %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	isXML := false
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eof", ".xml":
		isXML = true
	default:
		for {
			b, err := br.Peek(1)
			if err != nil || len(b) == 0 {
				break
			}
			if b[0] == ' ' || b[0] == '\t' || b[0] == '\r' || b[0] == '\n' || b[0] == 0xEF || b[0] == 0xBB || b[0] == 0xBF {
				br.ReadByte()
				continue
			}
			isXML = b[0] == '<'
			break
		}
	}

	var o *Orbit
	if isXML {
		o, err = ReadEOF(br, from, to)
	} else {
		o, err = ReadText(br)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return o, nil
}
