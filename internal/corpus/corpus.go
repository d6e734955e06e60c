// Package corpus supplies realistic request payloads for synthetic probes.
//
// Prompts are pre-loaded from YAML files (optionally gzip-compressed) at
// startup; payload construction afterward is a pure function of the chosen
// service and an RNG, so cycles never touch the filesystem.
package corpus

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/gzip"
)

// Message is one turn of a conversation prompt.
type Message struct {
	Role    string `yaml:"role" json:"role"`
	Content string `yaml:"content" json:"content"`
}

// Conversation is a prompt made of ordered messages.
type Conversation struct {
	Messages []Message `yaml:"messages"`
}

// file is the on-disk corpus shape.
type file struct {
	Conversations []Conversation `yaml:"conversations"`
	Images        []string       `yaml:"images"`
}

// Corpus holds the pre-loaded prompt collections.
type Corpus struct {
	conversations []Conversation
	images        []string
}

// Load reads the text corpus at textPath and, when imagePath is non-empty,
// the image prompt corpus at imagePath.
func Load(textPath, imagePath string) (*Corpus, error) {
	c := &Corpus{}

	text, err := readCorpusFile(textPath)
	if err != nil {
		return nil, fmt.Errorf("load text corpus: %w", err)
	}
	c.conversations = text.Conversations
	if len(c.conversations) == 0 {
		return nil, fmt.Errorf("load text corpus: %s contains no conversations", textPath)
	}

	if imagePath != "" {
		images, err := readCorpusFile(imagePath)
		if err != nil {
			return nil, fmt.Errorf("load image corpus: %w", err)
		}
		c.images = images.Images
	}

	return c, nil
}

// readCorpusFile decodes one YAML corpus file, transparently handling
// gzip-compressed files by extension.
func readCorpusFile(path string) (*file, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var out file
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &out, nil
}

// Conversations returns the number of loaded conversations.
func (c *Corpus) Conversations() int {
	return len(c.conversations)
}

// Images returns the number of loaded image prompts.
func (c *Corpus) Images() int {
	return len(c.images)
}
