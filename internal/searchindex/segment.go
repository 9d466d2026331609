package searchindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// segment record: one Document per line, JSON-encoded. Deleted=true
// lines are tombstones that shadow an earlier segment's record for the
// same ID once segments are merged in file order.
func writeSegment(path string, docs []Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("searchindex: create segment %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("searchindex: encode doc: %w", err)
		}
	}
	return w.Flush()
}

func readSegment(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("searchindex: open segment %s: %w", path, err)
	}
	defer f.Close()

	var docs []Document
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var d Document
		if err := json.Unmarshal(line, &d); err != nil {
			continue
		}
		docs = append(docs, d)
	}
	return docs, scanner.Err()
}
