package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFile creates path (and its parents) with the given content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// testConfig returns a valid descriptor rooted in a fresh temp directory.
func testConfig(t *testing.T) *Config {
	t.Helper()
	root := t.TempDir()
	return &Config{
		LangCode:      "en",
		LangTitle:     "English",
		TextDirection: DirectionLTR,
		SentencesFile: filepath.Join(root, "sentences.tsv"),
		OutputDir:     filepath.Join(root, "output"),
		WavsDir:       filepath.Join(root, "output", "wavs"),
		SampleRate:    22050,
		BitDepth:      16,
		Channels:      1,
		Speaker:       "spk1",
		Gender:        "female",
	}
}
