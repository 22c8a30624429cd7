package symbolize_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/retsnoop/internal/filetest"
	"github.com/mna/retsnoop/internal/symbolize"
)

var testUpdatePathTests = flag.Bool("test.update-path-tests", false, "If set, replace expected ShortenPath test results with actual results.")

// TestShortenPath exercises §4.5 step 7's kernel-source-root truncation
// against a golden file, one input path per line, same layout as the
// paths.want fixture.
func TestShortenPath(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "in"), filepath.Join("testdata", "out")
	for _, fi := range filetest.SourceFiles(t, srcDir, ".paths") {
		t.Run(fi.Name(), func(t *testing.T) {
			b, err := os.ReadFile(filepath.Join(srcDir, fi.Name()))
			if err != nil {
				t.Fatal(err)
			}
			var out []byte
			for _, line := range splitLines(string(b)) {
				out = append(out, symbolize.ShortenPath(line)...)
				out = append(out, '\n')
			}
			filetest.DiffOutput(t, fi, string(out), resultDir, testUpdatePathTests)
		})
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
