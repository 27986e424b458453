package transport

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SerialInfo describes one candidate serial device discovered on disk.
type SerialInfo struct {
	Path string
}

// SerialScanner enumerates tty device nodes that plausibly carry a
// CORTEX adapter (USB-serial and platform UARTs); it never opens them.
type SerialScanner struct {
	devPath string
}

// NewSerialScanner creates a scanner rooted at /dev.
func NewSerialScanner() *SerialScanner {
	return &SerialScanner{devPath: "/dev"}
}

var serialPrefixes = []string{"ttyUSB", "ttyACM", "ttyS"}

// Scan lists /dev entries matching known serial device prefixes.
func (s *SerialScanner) Scan() ([]SerialInfo, error) {
	devPath := s.devPath
	if devPath == "" {
		devPath = "/dev"
	}

	entries, err := os.ReadDir(devPath)
	if err != nil {
		return nil, err
	}

	var found []SerialInfo
	for _, entry := range entries {
		name := entry.Name()
		for _, prefix := range serialPrefixes {
			if strings.HasPrefix(name, prefix) {
				found = append(found, SerialInfo{Path: filepath.Join(devPath, name)})
				break
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}
